// Package council 组装并运行一组角色与它们的协调者。
package council

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/conclave/agent/collaboration"
	"github.com/BaSui01/conclave/agent/persona"
	"github.com/BaSui01/conclave/internal/pool"
	"github.com/BaSui01/conclave/llm"
	"github.com/BaSui01/conclave/types"
)

// Config 议会配置
type Config struct {
	Personas    []types.Profile
	Persona     persona.Config
	Coordinator collaboration.Config
	Pool        pool.GoroutinePoolConfig
}

// Option 配置 Council
type Option func(*options)

type options struct {
	coordinator []collaboration.Option
	persona     []persona.Option
}

// WithCoordinatorOptions 透传协调者选项
func WithCoordinatorOptions(opts ...collaboration.Option) Option {
	return func(o *options) { o.coordinator = append(o.coordinator, opts...) }
}

// WithPersonaOptions 透传给每个角色的选项
func WithPersonaOptions(opts ...persona.Option) Option {
	return func(o *options) { o.persona = append(o.persona, opts...) }
}

// Council 持有协调者、角色与共享的 goroutine 池
type Council struct {
	coordinator *collaboration.Coordinator
	personas    []*persona.Persona
	pool        *pool.GoroutinePool
	ready       chan struct{}
	logger      *zap.Logger
}

// New 校验配置并构造议会，Run 之前不会启动任何 goroutine
func New(cfg Config, completer llm.Completer, logger *zap.Logger, opts ...Option) (*Council, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := validate(cfg.Personas); err != nil {
		return nil, err
	}
	if completer == nil {
		return nil, types.NewError(types.ErrInvalidConfig, "completer is required")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	c := &Council{
		pool:   pool.NewGoroutinePool(cfg.Pool, logger),
		ready:  make(chan struct{}),
		logger: logger.With(zap.String("component", "council")),
	}
	c.coordinator = collaboration.NewCoordinator(cfg.Coordinator, logger, o.coordinator...)
	for _, profile := range cfg.Personas {
		p := persona.New(profile, completer, c.coordinator, c.pool, cfg.Persona, logger, o.persona...)
		c.personas = append(c.personas, p)
	}
	return c, nil
}

func validate(profiles []types.Profile) error {
	if len(profiles) == 0 {
		return types.NewError(types.ErrInvalidConfig, "at least one persona is required")
	}
	seen := make(map[string]bool, len(profiles))
	for _, p := range profiles {
		if p.Name == "" {
			return types.NewError(types.ErrInvalidConfig, "persona name is required")
		}
		if p.Domain == "" {
			return types.NewError(types.ErrInvalidConfig, fmt.Sprintf("persona %q has no domain", p.Name))
		}
		if seen[p.Name] {
			return types.NewError(types.ErrInvalidConfig, fmt.Sprintf("duplicate persona %q", p.Name))
		}
		seen[p.Name] = true
	}
	return nil
}

// Run 启动协调者与所有角色并注册角色，阻塞直到 ctx 结束或任一成员出错。
// 返回前会关闭 goroutine 池。
func (c *Council) Run(ctx context.Context) error {
	defer c.pool.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.coordinator.Run(gctx) })
	for _, p := range c.personas {
		p := p
		g.Go(func() error { return p.Run(gctx) })
	}
	g.Go(func() error {
		for _, p := range c.personas {
			if _, err := c.coordinator.Register(gctx, p); err != nil {
				return fmt.Errorf("register %s: %w", p.Name(), err)
			}
		}
		c.logger.Info("council assembled", zap.Int("personas", len(c.personas)))
		close(c.ready)
		return nil
	})

	err := g.Wait()
	if err != nil && ctx.Err() == nil {
		c.logger.Error("council stopped", zap.Error(err))
		return err
	}
	return nil
}

// Ready 在所有角色注册完成后关闭
func (c *Council) Ready() <-chan struct{} { return c.ready }

// Coordinator 返回协调者
func (c *Council) Coordinator() *collaboration.Coordinator { return c.coordinator }

// Profiles 返回所有角色身份
func (c *Council) Profiles() []types.Profile {
	out := make([]types.Profile, 0, len(c.personas))
	for _, p := range c.personas {
		out = append(out, p.Profile())
	}
	return out
}

// PoolStats 返回 goroutine 池统计
func (c *Council) PoolStats() pool.GoroutinePoolStats { return c.pool.Stats() }
