// =============================================================================
// 📦 Conclave 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("conclave.yaml").
//	    WithEnvPrefix("CONCLAVE").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/conclave/types"
)

// APIKeyFallbackEnv 未配置 llm.api_key 时读取的环境变量
const APIKeyFallbackEnv = "GEMINI_API_KEY"

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 conclave 的完整配置结构
type Config struct {
	// Consensus 共识循环配置
	Consensus ConsensusConfig `yaml:"consensus" env:"CONSENSUS"`

	// LLM 补全服务配置
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Pool 补全调用的 goroutine 池
	Pool PoolConfig `yaml:"pool" env:"POOL"`

	// Personas 角色名单
	Personas []types.Profile `yaml:"personas"`

	// PersonasFile 角色名单文件，设置后覆盖 Personas
	PersonasFile string `yaml:"personas_file" env:"PERSONAS_FILE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Server 观测 HTTP 服务配置
	Server ServerConfig `yaml:"server" env:"SERVER"`
}

// ConsensusConfig 共识循环配置
type ConsensusConfig struct {
	// 评审轮次上限
	MaxRounds int `yaml:"max_rounds" env:"MAX_ROUNDS"`
	// 驱动轮询就绪状态的间隔
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	// 轮次无进展多久判定为停滞，0 表示不判定
	StallTimeout time.Duration `yaml:"stall_timeout" env:"STALL_TIMEOUT"`
	// 单个问题的总超时，0 表示不限制
	AskTimeout time.Duration `yaml:"ask_timeout" env:"ASK_TIMEOUT"`
	// 协调者邮箱容量
	MailboxSize int `yaml:"mailbox_size" env:"MAILBOX_SIZE"`
	// 角色收件箱容量
	InboxSize int `yaml:"inbox_size" env:"INBOX_SIZE"`
}

// LLMConfig 补全服务配置
type LLMConfig struct {
	// Provider 名称，目前只支持 gemini
	Provider string `yaml:"provider" env:"PROVIDER"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（可选）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// 单次调用超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 温度参数，0 表示使用服务端默认值
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 最大输出 Token 数，0 表示不限制
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// 可重试错误的最大重试次数，默认 0
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 首次重试延迟
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay" env:"RETRY_INITIAL_DELAY"`
	// 最大重试延迟
	RetryMaxDelay time.Duration `yaml:"retry_max_delay" env:"RETRY_MAX_DELAY"`
	// 每秒请求数上限，0 表示不限流
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 连续失败多少次后熔断，0 表示不启用
	BreakerThreshold int `yaml:"breaker_threshold" env:"BREAKER_THRESHOLD"`
	// 熔断后多久进入半开
	BreakerResetTimeout time.Duration `yaml:"breaker_reset_timeout" env:"BREAKER_RESET_TIMEOUT"`
}

// PoolConfig goroutine 池配置
type PoolConfig struct {
	// 最大 worker 数
	MaxWorkers int `yaml:"max_workers" env:"MAX_WORKERS"`
	// 队列容量
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
	// 空闲 worker 回收时间
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// ServerConfig 观测 HTTP 服务配置
type ServerConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 监听地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "CONCLAVE",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv(APIKeyFallbackEnv)
	}

	// 4. 加载角色名单文件，相对路径以配置文件所在目录为准
	if cfg.PersonasFile != "" {
		path := cfg.PersonasFile
		if !filepath.IsAbs(path) && l.configPath != "" {
			path = filepath.Join(filepath.Dir(l.configPath), path)
		}
		profiles, err := LoadPersonas(path)
		if err != nil {
			return nil, err
		}
		cfg.Personas = profiles
	}

	// 5. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// personasFile 角色名单文件格式
type personasFile struct {
	Personas []types.Profile `yaml:"personas"`
}

// LoadPersonas 从 YAML 文件读取角色名单
func LoadPersonas(path string) ([]types.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read personas file: %w", err)
	}
	var f personasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse personas file: %w", err)
	}
	if len(f.Personas) == 0 {
		return nil, fmt.Errorf("personas file %s defines no personas", path)
	}
	return f.Personas, nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 校验
// =============================================================================

// ErrMissingAPIKey 没有可用的补全服务凭证
var ErrMissingAPIKey = types.NewError(types.ErrMissingCredential,
	`No Gemini API key has been set in the GEMINI_API_KEY environment variable. Generate an API key and set it with "export GEMINI_API_KEY=<your API key>".`)

// Validate 验证配置，凭证缺失单独返回 ErrMissingAPIKey
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return ErrMissingAPIKey
	}

	var errs []string

	if c.LLM.Provider != "gemini" {
		errs = append(errs, fmt.Sprintf("unsupported llm provider %q", c.LLM.Provider))
	}
	if c.LLM.Timeout < 0 {
		errs = append(errs, "llm.timeout must not be negative")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "llm.temperature must be between 0 and 2")
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, "llm.max_retries must not be negative")
	}
	if c.LLM.RateLimitRPS < 0 {
		errs = append(errs, "llm.rate_limit_rps must not be negative")
	}

	if c.Consensus.MaxRounds <= 0 {
		errs = append(errs, "consensus.max_rounds must be positive")
	}
	if c.Consensus.PollInterval <= 0 {
		errs = append(errs, "consensus.poll_interval must be positive")
	}
	if c.Consensus.StallTimeout < 0 || c.Consensus.AskTimeout < 0 {
		errs = append(errs, "consensus timeouts must not be negative")
	}

	if c.Pool.MaxWorkers <= 0 {
		errs = append(errs, "pool.max_workers must be positive")
	}
	if c.Pool.QueueSize <= 0 {
		errs = append(errs, "pool.queue_size must be positive")
	}

	errs = append(errs, validatePersonas(c.Personas)...)

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid log level %q", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Sprintf("invalid log format %q", c.Log.Format))
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}
	if c.Server.Enabled && c.Server.Addr == "" {
		errs = append(errs, "server.addr is required when the server is enabled")
	}

	if len(errs) > 0 {
		return types.NewError(types.ErrInvalidConfig, "config validation errors").
			WithCause(errors.New(strings.Join(errs, "; ")))
	}

	return nil
}

func validatePersonas(profiles []types.Profile) []string {
	if len(profiles) == 0 {
		return []string{"at least one persona is required"}
	}
	var errs []string
	seen := make(map[string]bool, len(profiles))
	for i, p := range profiles {
		switch {
		case p.Name == "":
			errs = append(errs, fmt.Sprintf("personas[%d].name is required", i))
		case p.Domain == "":
			errs = append(errs, fmt.Sprintf("persona %q has no domain", p.Name))
		case seen[p.Name]:
			errs = append(errs, fmt.Sprintf("duplicate persona %q", p.Name))
		}
		seen[p.Name] = true
	}
	return errs
}
