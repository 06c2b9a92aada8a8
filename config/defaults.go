// =============================================================================
// 📦 Conclave 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/conclave/agent/persona"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Consensus: DefaultConsensusConfig(),
		LLM:       DefaultLLMConfig(),
		Pool:      DefaultPoolConfig(),
		Personas:  persona.DefaultRoster(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Server:    DefaultServerConfig(),
	}
}

// DefaultConsensusConfig 返回默认共识配置
func DefaultConsensusConfig() ConsensusConfig {
	return ConsensusConfig{
		MaxRounds:    5,
		PollInterval: 500 * time.Millisecond,
		MailboxSize:  64,
		InboxSize:    16,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:            "gemini",
		Model:               "gemini-2.0-flash",
		Timeout:             60 * time.Second,
		RetryInitialDelay:   time.Second,
		RetryMaxDelay:       30 * time.Second,
		RateLimitBurst:      1,
		BreakerResetTimeout: 60 * time.Second,
	}
}

// DefaultPoolConfig 返回默认 goroutine 池配置
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxWorkers:  16,
		QueueSize:   256,
		IdleTimeout: 60 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     false,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "conclave",
		SampleRate:   0.1,
	}
}

// DefaultServerConfig 返回默认观测服务配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Enabled:         false,
		Addr:            ":9464",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}
