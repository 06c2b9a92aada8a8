package persona

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/conclave/internal/pool"
	"github.com/BaSui01/conclave/llm"
	"github.com/BaSui01/conclave/types"
)

const instrumentationName = "github.com/BaSui01/conclave/agent/persona"

// 请求类型，同时用作指标与 span 的标签
const (
	KindAnswer   = "answer"
	KindEvaluate = "evaluate"
	KindRevise   = "revise"
)

var (
	ErrResponderStopped = types.NewError(types.ErrResponderStopped, "persona is not running")
	ErrEmptyCompletion  = types.NewError(types.ErrEmptyCompletion, "completion returned no text")
)

// Reporter 接收角色的异步回报，由协调者实现
type Reporter interface {
	AnsweredQuestion(ctx context.Context, answer types.Answer) error
	Evaluated(ctx context.Context, vote types.Vote) error
	Revised(ctx context.Context, revision types.Revision) error
}

// Scheduler 运行补全调用，*pool.GoroutinePool 满足此接口
type Scheduler interface {
	Submit(ctx context.Context, name string, task pool.Task) error
}

// Recorder 记录补全调用的结果
type Recorder interface {
	RecordCompletion(persona, kind, status string, duration time.Duration)
	RecordMalformedVerdict(persona string)
}

type nopRecorder struct{}

func (nopRecorder) RecordCompletion(string, string, string, time.Duration) {}
func (nopRecorder) RecordMalformedVerdict(string)                          {}

// Config 角色运行参数
type Config struct {
	// InboxSize 收件箱容量
	InboxSize int
	// CallTimeout 单次补全调用的超时，0 表示不限制
	CallTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		InboxSize:   16,
		CallTimeout: 60 * time.Second,
	}
}

// Option 配置 Persona
type Option func(*Persona)

// WithPromptBuilder 替换提示词模板
func WithPromptBuilder(b PromptBuilder) Option {
	return func(p *Persona) { p.prompts = b }
}

// WithRecorder 设置指标记录器
func WithRecorder(r Recorder) Option {
	return func(p *Persona) { p.recorder = r }
}

// WithTracer 设置 tracer
func WithTracer(t trace.Tracer) Option {
	return func(p *Persona) { p.tracer = t }
}

type request struct {
	kind       string
	questionID string
	round      int
	question   string
	answer     string
}

// Persona 是一个有固定领域视角的应答者
type Persona struct {
	profile   types.Profile
	completer llm.Completer
	reporter  Reporter
	scheduler Scheduler
	prompts   PromptBuilder
	recorder  Recorder
	tracer    trace.Tracer
	config    Config
	logger    *zap.Logger

	inbox    chan request
	done     chan struct{}
	stopOnce sync.Once
}

// New 创建 Persona，调用 Run 之后才会处理请求
func New(profile types.Profile, completer llm.Completer, reporter Reporter, scheduler Scheduler, config Config, logger *zap.Logger, opts ...Option) *Persona {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.InboxSize <= 0 {
		config.InboxSize = DefaultConfig().InboxSize
	}
	p := &Persona{
		profile:   profile,
		completer: completer,
		reporter:  reporter,
		scheduler: scheduler,
		prompts:   DefaultPrompts{},
		recorder:  nopRecorder{},
		tracer:    otel.Tracer(instrumentationName),
		config:    config,
		logger:    logger.With(zap.String("component", "persona"), zap.String("persona", profile.Name)),
		inbox:     make(chan request, config.InboxSize),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name 返回角色名
func (p *Persona) Name() string { return p.profile.Name }

// Profile 返回角色身份
func (p *Persona) Profile() types.Profile { return p.profile }

// Answer 请求回答问题
func (p *Persona) Answer(ctx context.Context, req types.AnswerRequest) error {
	return p.enqueue(ctx, request{kind: KindAnswer, questionID: req.QuestionID, question: req.Question})
}

// Evaluate 请求评审答案
func (p *Persona) Evaluate(ctx context.Context, req types.EvaluationRequest) error {
	return p.enqueue(ctx, request{
		kind:       KindEvaluate,
		questionID: req.QuestionID,
		round:      req.Round,
		question:   req.Question,
		answer:     req.Answer,
	})
}

// Revise 请求修订答案
func (p *Persona) Revise(ctx context.Context, req types.RevisionRequest) error {
	return p.enqueue(ctx, request{kind: KindRevise, questionID: req.QuestionID, question: req.Question, answer: req.Answer})
}

func (p *Persona) enqueue(ctx context.Context, req request) error {
	select {
	case <-p.done:
		return ErrResponderStopped
	default:
	}
	select {
	case p.inbox <- req:
		return nil
	case <-p.done:
		return ErrResponderStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run 逐条处理收件箱，直到 ctx 结束
func (p *Persona) Run(ctx context.Context) error {
	defer p.stopOnce.Do(func() { close(p.done) })
	p.logger.Debug("persona started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("persona stopped")
			return nil
		case req := <-p.inbox:
			p.dispatch(ctx, req)
		}
	}
}

func (p *Persona) dispatch(ctx context.Context, req request) {
	var prompt string
	switch req.kind {
	case KindAnswer:
		prompt = p.prompts.AnswerPrompt(req.question)
	case KindEvaluate:
		prompt = p.prompts.EvaluationPrompt(p.profile, req.question, req.answer)
	case KindRevise:
		prompt = p.prompts.RevisionPrompt(p.profile, req.question, req.answer)
	}

	err := p.scheduler.Submit(ctx, p.profile.Name+"/"+req.kind, func(ctx context.Context) error {
		return p.execute(ctx, req, prompt)
	})
	if err != nil {
		p.recorder.RecordCompletion(p.profile.Name, req.kind, "rejected", 0)
		p.logger.Error("failed to schedule completion",
			zap.String("kind", req.kind),
			zap.String("question_id", req.questionID),
			zap.Error(err),
		)
	}
}

// execute 在池中运行：调用补全、解析并回报
func (p *Persona) execute(ctx context.Context, req request, prompt string) error {
	text, err := p.complete(ctx, req, prompt)
	if err != nil {
		p.logger.Error("completion failed, no report will be sent",
			zap.String("kind", req.kind),
			zap.String("question_id", req.questionID),
			zap.Int("round", req.round),
			zap.Error(err),
		)
		return err
	}

	switch req.kind {
	case KindAnswer:
		err = p.reporter.AnsweredQuestion(ctx, types.Answer{QuestionID: req.questionID, From: p.profile.Name, Text: text})
	case KindEvaluate:
		verdict, rationale, ok := ParseEvaluation(text)
		if !ok {
			p.recorder.RecordMalformedVerdict(p.profile.Name)
			p.logger.Error("unexpected evaluation response", zap.String("response", text))
		}
		p.logger.Debug("evaluated answer",
			zap.Stringer("verdict", verdict),
			zap.Int("round", req.round),
		)
		err = p.reporter.Evaluated(ctx, types.Vote{
			QuestionID: req.questionID,
			Round:      req.round,
			Name:       p.profile.Name,
			Verdict:    verdict,
			Rationale:  rationale,
		})
	case KindRevise:
		err = p.reporter.Revised(ctx, types.Revision{QuestionID: req.questionID, From: p.profile.Name, Text: text})
	}
	if err != nil {
		p.logger.Warn("report not delivered", zap.String("kind", req.kind), zap.Error(err))
	}
	return err
}

func (p *Persona) complete(ctx context.Context, req request, prompt string) (string, error) {
	ctx, span := p.tracer.Start(ctx, "persona."+req.kind,
		trace.WithAttributes(
			attribute.String("persona.name", p.profile.Name),
			attribute.String("persona.domain", p.profile.Domain),
			attribute.String("question.id", req.questionID),
			attribute.Int("round", req.round),
		))
	defer span.End()

	if p.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.CallTimeout)
		defer cancel()
	}

	start := time.Now()
	text, err := p.completer.Complete(ctx, prompt)
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptyCompletion
	}
	status := "success"
	if err != nil {
		status = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	p.recorder.RecordCompletion(p.profile.Name, req.kind, status, time.Since(start))
	return text, err
}
