package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/conclave/llm/circuitbreaker"
	"github.com/BaSui01/conclave/llm/retry"
)

// ResilienceConfig 补全调用的弹性配置，零值表示全部关闭
type ResilienceConfig struct {
	// MaxRetries 对 Retryable 错误的最大重试次数，0 表示不重试
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// RateLimitRPS 每秒允许的补全调用数，0 表示不限流
	RateLimitRPS   float64
	RateLimitBurst int

	// BreakerThreshold 连续失败多少次后熔断，0 表示不启用熔断
	BreakerThreshold    int
	BreakerResetTimeout time.Duration
}

// ResilientCompleter 为 Completer 叠加限流、熔断与重试。
// 顺序为：重试包裹（限流 → 熔断 → 调用）。
type ResilientCompleter struct {
	next    Completer
	retryer *retry.Retryer
	limiter *rate.Limiter
	breaker *circuitbreaker.Breaker
	logger  *zap.Logger
}

// NewResilientCompleter 创建 ResilientCompleter
func NewResilientCompleter(next Completer, cfg ResilienceConfig, logger *zap.Logger) *ResilientCompleter {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "resilient_completer"))

	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.MaxRetries
	if cfg.InitialDelay > 0 {
		policy.InitialDelay = cfg.InitialDelay
	}
	if cfg.MaxDelay > 0 {
		policy.MaxDelay = cfg.MaxDelay
	}
	policy.ShouldRetry = IsRetryable

	rc := &ResilientCompleter{
		next:    next,
		retryer: retry.New(policy, logger),
		logger:  logger,
	}

	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		rc.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}

	if cfg.BreakerThreshold > 0 {
		rc.breaker = circuitbreaker.New(circuitbreaker.Config{
			Threshold:    cfg.BreakerThreshold,
			ResetTimeout: cfg.BreakerResetTimeout,
			IsFailure:    func(err error) bool { return !IsClientError(err) },
			OnStateChange: func(from, to circuitbreaker.State) {
				logger.Info("completion breaker state changed",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}, logger)
	}

	return rc
}

// Complete 实现 Completer
func (c *ResilientCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return retry.Do(ctx, c.retryer, func(ctx context.Context) (string, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}
		if c.breaker == nil {
			return c.next.Complete(ctx, prompt)
		}
		return circuitbreaker.Call(ctx, c.breaker, func(ctx context.Context) (string, error) {
			return c.next.Complete(ctx, prompt)
		})
	})
}

// BreakerState 返回熔断器状态，未启用时恒为 Closed
func (c *ResilientCompleter) BreakerState() circuitbreaker.State {
	if c.breaker == nil {
		return circuitbreaker.StateClosed
	}
	return c.breaker.State()
}
