package main

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/conclave/agent/collaboration"
	"github.com/BaSui01/conclave/agent/council"
	"github.com/BaSui01/conclave/agent/persona"
	"github.com/BaSui01/conclave/agent/session"
	"github.com/BaSui01/conclave/config"
	"github.com/BaSui01/conclave/internal/metrics"
	"github.com/BaSui01/conclave/internal/pool"
	"github.com/BaSui01/conclave/internal/server"
	"github.com/BaSui01/conclave/internal/telemetry"
	"github.com/BaSui01/conclave/llm"
	"github.com/BaSui01/conclave/llm/providers"
	"github.com/BaSui01/conclave/llm/providers/gemini"
)

const metricsNamespace = "conclave"

// =============================================================================
// 🧩 应用组装
// =============================================================================

// app 一次命令执行所需的全部组件
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	registry  *prometheus.Registry
	collector *metrics.Collector
	telemetry *telemetry.Providers
	council   *council.Council
	driver    *session.Driver
	server    *server.Manager
}

// newApp 按配置组装组件；completer 为 nil 时使用配置的 Gemini Provider
func newApp(cfg *config.Config, completer llm.Completer, renderer session.Renderer, logger *zap.Logger) (*app, error) {
	tp, err := telemetry.Init(cfg, logger)
	if err != nil {
		// 遥测失败不影响问答
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		tp = &telemetry.Providers{}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(metricsNamespace, registry, logger)

	if completer == nil {
		completer = newCompleter(cfg.LLM, logger)
	}

	c, err := council.New(council.Config{
		Personas: cfg.Personas,
		Persona: persona.Config{
			InboxSize:   cfg.Consensus.InboxSize,
			CallTimeout: cfg.LLM.Timeout,
		},
		Coordinator: collaboration.Config{
			MaxRounds:    cfg.Consensus.MaxRounds,
			MailboxSize:  cfg.Consensus.MailboxSize,
			StallTimeout: cfg.Consensus.StallTimeout,
		},
		Pool: pool.GoroutinePoolConfig{
			MaxWorkers:  cfg.Pool.MaxWorkers,
			QueueSize:   cfg.Pool.QueueSize,
			IdleTimeout: cfg.Pool.IdleTimeout,
		},
	}, completer, logger,
		council.WithCoordinatorOptions(collaboration.WithRecorder(collector)),
		council.WithPersonaOptions(
			persona.WithRecorder(collector),
			persona.WithTracer(tp.PersonaTracer()),
		),
	)
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, err
	}
	if err := collector.RegisterPool(c.PoolStats); err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, err
	}

	opts := []session.Option{session.WithTracer(tp.SessionTracer())}
	if renderer != nil {
		opts = append(opts, session.WithRenderer(renderer))
	}
	driver := session.NewDriver(c.Coordinator(), session.Config{
		PollInterval: cfg.Consensus.PollInterval,
		AskTimeout:   cfg.Consensus.AskTimeout,
	}, logger, opts...)

	a := &app{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		collector: collector,
		telemetry: tp,
		council:   c,
		driver:    driver,
	}

	if cfg.Server.Enabled {
		router := server.NewRouter(server.RouterConfig{
			Status:   c.Coordinator(),
			Ready:    c.Ready(),
			Gatherer: registry,
			Recorder: collector,
			Version:  Version,
		}, logger)
		a.server = server.NewManager(router, server.FromConfig(cfg.Server), logger)
	}

	return a, nil
}

// newCompleter 构建 Gemini Provider 并叠加弹性策略
func newCompleter(cfg config.LLMConfig, logger *zap.Logger) llm.Completer {
	provider := gemini.NewProvider(providers.GeminiConfig{
		BaseProviderConfig: providers.BaseProviderConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		},
	}, logger)

	completer := llm.NewProviderCompleter(provider,
		llm.WithModel(cfg.Model),
		llm.WithTemperature(float32(cfg.Temperature)),
		llm.WithMaxTokens(cfg.MaxTokens),
	)

	return llm.NewResilientCompleter(completer, llm.ResilienceConfig{
		MaxRetries:          cfg.MaxRetries,
		InitialDelay:        cfg.RetryInitialDelay,
		MaxDelay:            cfg.RetryMaxDelay,
		RateLimitRPS:        cfg.RateLimitRPS,
		RateLimitBurst:      cfg.RateLimitBurst,
		BreakerThreshold:    cfg.BreakerThreshold,
		BreakerResetTimeout: cfg.BreakerResetTimeout,
	}, logger)
}

// run 启动 council 与可选的观测服务，在角色全部注册后执行 fn，
// fn 返回后停止所有组件
func (a *app) run(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.council.Run(gctx) })

	if a.server != nil {
		if err := a.server.Start(); err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		g.Go(func() error {
			select {
			case err := <-a.server.Errors():
				return err
			case <-gctx.Done():
				return nil
			}
		})
	}

	var err error
	select {
	case <-a.council.Ready():
		a.logger.Debug("council ready", zap.Int("personas", len(a.cfg.Personas)))
		err = fn(gctx, a)
	case <-gctx.Done():
		err = ctx.Err()
	}

	cancel()
	if werr := g.Wait(); err == nil {
		err = werr
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	a.shutdown()
	return err
}

func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn("server shutdown failed", zap.Error(err))
		}
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
}

// runWithApp 校验配置、初始化日志、组装并运行应用
func runWithApp(ctx context.Context, cfg *config.Config, flags *globalFlags, out io.Writer, fn func(ctx context.Context, a *app) error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting conclave",
		zap.String("version", Version),
		zap.String("git_commit", GitCommit),
		zap.Int("personas", len(cfg.Personas)),
		zap.String("model", cfg.LLM.Model),
	)

	a, err := newApp(cfg, nil, newRenderer(out, flags.plain), logger)
	if err != nil {
		return err
	}
	return a.run(ctx, fn)
}
