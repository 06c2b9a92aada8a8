package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/conclave/agent/collaboration"
	"github.com/BaSui01/conclave/types"
)

const instrumentationName = "github.com/BaSui01/conclave/agent/session"

// ExitCommand 结束交互循环的输入
const ExitCommand = "exit"

var ErrRoundStalled = types.NewError(types.ErrRoundStalled, "round stopped making progress")

// Coordinator 驱动方需要的协调者操作
type Coordinator interface {
	Submit(ctx context.Context, question string) (bool, error)
	IsReady(ctx context.Context) (bool, error)
	FetchAnswer(ctx context.Context) (string, error)
	Reset(ctx context.Context) (bool, error)
	Status(ctx context.Context) (collaboration.Status, error)
}

// Renderer 在输出前格式化最终答案
type Renderer func(answer string) (string, error)

// Config 驱动配置
type Config struct {
	// PollInterval 就绪轮询间隔
	PollInterval time.Duration
	// AskTimeout 单个问题的总超时，0 表示不限制
	AskTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{PollInterval: 500 * time.Millisecond}
}

// Result 单个问题的结果
type Result struct {
	Question string
	Answer   string
	Rounds   int
	Forced   bool
	Duration time.Duration
}

// Option 配置 Driver
type Option func(*Driver)

// WithRenderer 设置答案渲染器
func WithRenderer(r Renderer) Option {
	return func(d *Driver) { d.render = r }
}

// WithTracer 设置 tracer
func WithTracer(t trace.Tracer) Option {
	return func(d *Driver) { d.tracer = t }
}

// Driver 会话驱动
type Driver struct {
	coord  Coordinator
	config Config
	render Renderer
	tracer trace.Tracer
	logger *zap.Logger
}

// NewDriver 创建 Driver
func NewDriver(coord Coordinator, config Config, logger *zap.Logger, opts ...Option) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	d := &Driver{
		coord:  coord,
		config: config,
		tracer: otel.Tracer(instrumentationName),
		logger: logger.With(zap.String("component", "session")),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Ask 提交问题并等待共识，返回前总会重置协调者
func (d *Driver) Ask(ctx context.Context, question string) (result Result, err error) {
	ctx, span := d.tracer.Start(ctx, "session.ask")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("rounds", result.Rounds), attribute.Bool("forced", result.Forced))
		}
		span.End()
	}()

	if d.config.AskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.AskTimeout)
		defer cancel()
	}

	start := time.Now()
	if _, err := d.coord.Submit(ctx, question); err != nil {
		return Result{}, fmt.Errorf("submit question: %w", err)
	}
	defer d.reset(ctx)

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		ready, err := d.coord.IsReady(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("check readiness: %w", err)
		}
		if ready {
			break
		}

		status, err := d.coord.Status(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("read status: %w", err)
		}
		if status.Phase == collaboration.PhaseStalled {
			return Result{}, ErrRoundStalled
		}

		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-ticker.C:
		}
	}

	answer, err := d.coord.FetchAnswer(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetch answer: %w", err)
	}
	status, err := d.coord.Status(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read status: %w", err)
	}

	result = Result{
		Question: question,
		Answer:   answer,
		Rounds:   status.Round,
		Forced:   status.Forced,
		Duration: time.Since(start),
	}
	if result.Forced {
		d.logger.Warn("answer accepted by round cap, not by consensus", zap.Int("rounds", result.Rounds))
	}
	return result, nil
}

func (d *Driver) reset(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := d.coord.Reset(ctx); err != nil {
		d.logger.Error("failed to reset coordinator", zap.Error(err))
	}
}

// Run 逐行读取问题并输出最终答案，直到读到 exit、输入结束或 ctx 结束
func (d *Driver) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		if _, err := fmt.Fprint(out, "Enter a question: "); err != nil {
			return err
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read question: %w", err)
			}
			return nil
		}

		question := strings.TrimSpace(scanner.Text())
		if question == ExitCommand {
			return nil
		}
		if question == "" {
			continue
		}

		result, err := d.Ask(ctx, question)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Error("question failed", zap.String("question", question), zap.Error(err))
			if _, werr := fmt.Fprintf(out, "Error: %v\n", err); werr != nil {
				return werr
			}
			continue
		}

		if err := d.WriteResult(out, result); err != nil {
			return err
		}
	}
}

// WriteResult 以 "Final answer:" 格式输出结果，渲染失败时输出原文
func (d *Driver) WriteResult(out io.Writer, result Result) error {
	answer := result.Answer
	if d.render != nil {
		rendered, err := d.render(answer)
		if err != nil {
			d.logger.Warn("render failed, printing raw answer", zap.Error(err))
		} else {
			answer = rendered
		}
	}
	d.logger.Info("final answer",
		zap.Int("rounds", result.Rounds),
		zap.Bool("forced", result.Forced),
		zap.Duration("duration", result.Duration),
	)
	_, err := fmt.Fprintf(out, "Final answer:\n%s\n", strings.TrimRight(answer, "\n"))
	return err
}

// IsStalled 判断错误是否因轮次停滞
func IsStalled(err error) bool {
	return errors.Is(err, ErrRoundStalled)
}
