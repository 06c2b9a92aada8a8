package collaboration

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/conclave/types"
)

// NotReadyAnswer 在答案产生之前调用 FetchAnswer 时返回
const NotReadyAnswer = "System error: Requested answer when answer was not ready."

// DefaultMaxRounds 默认评审轮次上限
const DefaultMaxRounds = 5

var (
	ErrNoResponders       = types.NewError(types.ErrNoResponders, "no responders registered")
	ErrRoundInProgress    = types.NewError(types.ErrRoundInProgress, "a question is already active, reset first")
	ErrCoordinatorStopped = types.NewError(types.ErrCoordinatorStopped, "coordinator is not running")
	ErrInvalidResponder   = types.NewError(types.ErrInvalidConfig, "responder must have a non-empty name")
)

// Responder 是协调者眼中的角色句柄，*persona.Persona 满足此接口
type Responder interface {
	Name() string
	Answer(ctx context.Context, req types.AnswerRequest) error
	Evaluate(ctx context.Context, req types.EvaluationRequest) error
	Revise(ctx context.Context, req types.RevisionRequest) error
}

// Rand 随机源，*math/rand.Rand 满足此接口
type Rand interface {
	Intn(n int) int
}

// Recorder 记录共识过程的指标
type Recorder interface {
	RecordSubmission(accepted bool)
	RecordRound()
	RecordVote(verdict types.Verdict)
	RecordConsensus(rounds int, forced bool)
	RecordStaleReport(kind string)
	RecordStall()
}

type nopRecorder struct{}

func (nopRecorder) RecordSubmission(bool)     {}
func (nopRecorder) RecordRound()              {}
func (nopRecorder) RecordVote(types.Verdict)  {}
func (nopRecorder) RecordConsensus(int, bool) {}
func (nopRecorder) RecordStaleReport(string)  {}
func (nopRecorder) RecordStall()              {}

// Config 协调者配置
type Config struct {
	// MaxRounds 评审轮次上限，达到后强制通过
	MaxRounds int `json:"max_rounds" yaml:"max_rounds"`
	// MailboxSize 邮箱容量
	MailboxSize int `json:"mailbox_size" yaml:"mailbox_size"`
	// StallTimeout 轮次无进展多久后进入 Stalled，0 表示永不超时
	StallTimeout time.Duration `json:"stall_timeout" yaml:"stall_timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxRounds:   DefaultMaxRounds,
		MailboxSize: 64,
	}
}

// Option 配置 Coordinator
type Option func(*Coordinator)

// WithRand 注入随机源
func WithRand(r Rand) Option {
	return func(c *Coordinator) { c.rand = r }
}

// WithRecorder 设置指标记录器
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

type roundState struct {
	id       string
	question string
	answer   string
	hasAns   bool
	votes    map[string]types.Verdict
	round    int
	phase    Phase
	forced   bool
}

// Coordinator 共识协调者
type Coordinator struct {
	config   Config
	mailbox  chan func(ctx context.Context)
	done     chan struct{}
	rand     Rand
	recorder Recorder
	logger   *zap.Logger

	// 以下字段只在 Run 所在的 goroutine 上访问
	registry map[string]Responder
	state    roundState
	stall    *time.Timer
}

// NewCoordinator 创建协调者，调用 Run 之后才会处理请求
func NewCoordinator(config Config, logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultConfig()
	if config.MaxRounds <= 0 {
		config.MaxRounds = defaults.MaxRounds
	}
	if config.MailboxSize <= 0 {
		config.MailboxSize = defaults.MailboxSize
	}
	c := &Coordinator{
		config:   config,
		mailbox:  make(chan func(ctx context.Context), config.MailboxSize),
		done:     make(chan struct{}),
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		recorder: nopRecorder{},
		logger:   logger.With(zap.String("component", "coordinator")),
		registry: make(map[string]Responder),
		state:    roundState{phase: PhaseIdle},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run 逐条处理邮箱，直到 ctx 结束
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.done)
	defer c.stopStallTimer()
	c.logger.Debug("coordinator started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("coordinator stopped")
			return nil
		case fn := <-c.mailbox:
			fn(ctx)
		case <-c.stallC():
			c.onStall()
		}
	}
}

// ask 把 fn 投递到邮箱并等待结果
func ask[T any](ctx context.Context, c *Coordinator, fn func(ctx context.Context) T) (T, error) {
	var zero T
	reply := make(chan T, 1)
	err := c.post(ctx, func(runCtx context.Context) {
		reply <- fn(runCtx)
	})
	if err != nil {
		return zero, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-c.done:
		return zero, ErrCoordinatorStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// post 把 fn 投递到邮箱，不等待执行
func (c *Coordinator) post(ctx context.Context, fn func(ctx context.Context)) error {
	select {
	case <-c.done:
		return ErrCoordinatorStopped
	default:
	}
	select {
	case c.mailbox <- fn:
		return nil
	case <-c.done:
		return ErrCoordinatorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================
// 驱动方接口
// =============================================================================

// Register 注册角色，同名角色会被替换。轮次进行中注册只影响完成判定所用的
// 注册表大小，新角色不会参与当前轮次的评审。
func (c *Coordinator) Register(ctx context.Context, r Responder) (bool, error) {
	if r == nil || r.Name() == "" {
		return false, ErrInvalidResponder
	}
	return ask(ctx, c, func(context.Context) bool {
		name := r.Name()
		if _, exists := c.registry[name]; exists {
			c.logger.Warn("responder re-registered, replacing handle", zap.String("responder", name))
		}
		if c.state.phase.Active() {
			c.logger.Warn("responder registered mid-round", zap.String("responder", name),
				zap.String("question_id", c.state.id))
		}
		c.registry[name] = r
		c.logger.Debug("responder registered", zap.String("responder", name))
		return true
	})
}

type result struct {
	ok  bool
	err error
}

// Submit 提交问题并随机选择一个角色作答
func (c *Coordinator) Submit(ctx context.Context, question string) (bool, error) {
	res, err := ask(ctx, c, func(runCtx context.Context) result {
		return c.submit(runCtx, question)
	})
	if err != nil {
		return false, err
	}
	return res.ok, res.err
}

func (c *Coordinator) submit(ctx context.Context, question string) result {
	if len(c.registry) == 0 {
		c.recorder.RecordSubmission(false)
		return result{err: ErrNoResponders}
	}
	if c.state.phase != PhaseIdle {
		c.recorder.RecordSubmission(false)
		return result{err: ErrRoundInProgress}
	}

	c.state = roundState{
		id:       uuid.NewString(),
		question: question,
		votes:    make(map[string]types.Verdict),
		phase:    PhaseAwaitingAnswer,
	}
	name := c.pick(c.names())
	c.logger.Debug("question submitted",
		zap.String("question_id", c.state.id),
		zap.String("question", question),
		zap.String("answerer", name),
	)

	err := c.registry[name].Answer(ctx, types.AnswerRequest{QuestionID: c.state.id, Question: question})
	if err != nil {
		c.logger.Error("failed to dispatch question", zap.String("responder", name), zap.Error(err))
		c.state = roundState{phase: PhaseIdle}
		c.recorder.RecordSubmission(false)
		return result{err: err}
	}
	c.recorder.RecordSubmission(true)
	c.touchStallTimer()
	return result{ok: true}
}

// IsReady 当且仅当答案存在、所有注册角色都已投票且全部通过时为真
func (c *Coordinator) IsReady(ctx context.Context) (bool, error) {
	return ask(ctx, c, func(context.Context) bool {
		return c.ready()
	})
}

func (c *Coordinator) ready() bool {
	if !c.state.hasAns || len(c.state.votes) == 0 || len(c.state.votes) != len(c.registry) {
		return false
	}
	for _, v := range c.state.votes {
		if v != types.VerdictAccept {
			return false
		}
	}
	return true
}

// FetchAnswer 返回当前答案，尚无答案时返回 NotReadyAnswer
func (c *Coordinator) FetchAnswer(ctx context.Context) (string, error) {
	return ask(ctx, c, func(context.Context) string {
		if !c.state.hasAns {
			return NotReadyAnswer
		}
		return c.state.answer
	})
}

// Reset 清空轮次状态，可重复调用
func (c *Coordinator) Reset(ctx context.Context) (bool, error) {
	return ask(ctx, c, func(context.Context) bool {
		if c.state.phase != PhaseIdle {
			c.logger.Debug("round reset", zap.String("question_id", c.state.id),
				zap.String("phase", string(c.state.phase)))
		}
		c.stopStallTimer()
		c.state = roundState{phase: PhaseIdle}
		return true
	})
}

// Status 返回状态快照
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	return ask(ctx, c, func(context.Context) Status {
		votes := make(map[string]types.Verdict, len(c.state.votes))
		for k, v := range c.state.votes {
			votes[k] = v
		}
		return Status{
			Phase:      c.state.phase,
			QuestionID: c.state.id,
			Question:   c.state.question,
			Answer:     c.state.answer,
			Round:      c.state.round,
			Votes:      votes,
			Forced:     c.state.forced,
			Ready:      c.ready(),
			Responders: c.names(),
		}
	})
}

// =============================================================================
// 角色回报
// =============================================================================

// AnsweredQuestion 接收初始答案
func (c *Coordinator) AnsweredQuestion(ctx context.Context, answer types.Answer) error {
	return c.post(ctx, func(runCtx context.Context) {
		c.onAnswer(runCtx, answer)
	})
}

// Evaluated 接收一张投票
func (c *Coordinator) Evaluated(ctx context.Context, vote types.Vote) error {
	return c.post(ctx, func(runCtx context.Context) {
		c.onVote(runCtx, vote)
	})
}

// Revised 接收修订后的答案
func (c *Coordinator) Revised(ctx context.Context, revision types.Revision) error {
	return c.post(ctx, func(runCtx context.Context) {
		c.onRevision(runCtx, revision)
	})
}

func (c *Coordinator) stale(kind, questionID, from string, fields ...zap.Field) {
	c.recorder.RecordStaleReport(kind)
	c.logger.Warn("dropping stale report", append([]zap.Field{
		zap.String("kind", kind),
		zap.String("question_id", questionID),
		zap.String("from", from),
		zap.String("active_question_id", c.state.id),
		zap.String("phase", string(c.state.phase)),
	}, fields...)...)
}

func (c *Coordinator) onAnswer(ctx context.Context, answer types.Answer) {
	if answer.QuestionID != c.state.id || c.state.phase != PhaseAwaitingAnswer {
		c.stale("answer", answer.QuestionID, answer.From)
		return
	}
	c.logger.Debug("received answer", zap.String("from", answer.From), zap.String("answer", answer.Text))
	c.state.answer = answer.Text
	c.state.hasAns = true
	c.broadcast(ctx)
}

// broadcast 开始新一轮评审
func (c *Coordinator) broadcast(ctx context.Context) {
	c.state.votes = make(map[string]types.Verdict)
	c.state.round++
	c.state.phase = PhaseAwaitingVotes
	c.recorder.RecordRound()
	c.touchStallTimer()

	req := types.EvaluationRequest{
		QuestionID: c.state.id,
		Round:      c.state.round,
		Question:   c.state.question,
		Answer:     c.state.answer,
	}
	c.logger.Debug("asking responders to evaluate answer", zap.Int("round", c.state.round))
	for _, name := range c.names() {
		if err := c.registry[name].Evaluate(ctx, req); err != nil {
			c.logger.Error("failed to dispatch evaluation", zap.String("responder", name), zap.Error(err))
		}
	}
}

func (c *Coordinator) onVote(ctx context.Context, vote types.Vote) {
	if vote.QuestionID != c.state.id || vote.Round != c.state.round || c.state.phase != PhaseAwaitingVotes {
		c.stale("vote", vote.QuestionID, vote.Name, zap.Int("round", vote.Round))
		return
	}
	c.logger.Debug("answer evaluated",
		zap.String("from", vote.Name),
		zap.Stringer("verdict", vote.Verdict),
		zap.String("rationale", vote.Rationale),
		zap.Int("round", vote.Round),
	)
	c.state.votes[vote.Name] = vote.Verdict
	c.recorder.RecordVote(vote.Verdict)
	c.touchStallTimer()

	if len(c.state.votes) != len(c.registry) {
		return
	}

	var rejecting []string
	for name, v := range c.state.votes {
		if v != types.VerdictAccept {
			rejecting = append(rejecting, name)
		}
	}
	if len(rejecting) == 0 {
		c.state.phase = PhaseReady
		c.stopStallTimer()
		c.recorder.RecordConsensus(c.state.round, false)
		c.logger.Info("consensus reached", zap.String("question_id", c.state.id), zap.Int("rounds", c.state.round))
		return
	}

	sort.Strings(rejecting)
	name := c.pick(rejecting)
	responder, ok := c.registry[name]
	if !ok {
		c.logger.Warn("rejecting voter is not registered", zap.String("responder", name))
		return
	}
	c.state.phase = PhaseRevising
	c.logger.Debug("asking responder to refine the answer", zap.String("responder", name))
	err := responder.Revise(ctx, types.RevisionRequest{
		QuestionID: c.state.id,
		Question:   c.state.question,
		Answer:     c.state.answer,
	})
	if err != nil {
		c.logger.Error("failed to dispatch revision", zap.String("responder", name), zap.Error(err))
	}
}

func (c *Coordinator) onRevision(ctx context.Context, revision types.Revision) {
	if revision.QuestionID != c.state.id || c.state.phase != PhaseRevising {
		c.stale("revision", revision.QuestionID, revision.From)
		return
	}
	c.logger.Debug("received revised answer", zap.String("from", revision.From), zap.String("answer", revision.Text))
	c.state.answer = revision.Text

	if c.state.round < c.config.MaxRounds {
		c.broadcast(ctx)
		return
	}

	for name := range c.state.votes {
		c.state.votes[name] = types.VerdictAccept
	}
	c.state.forced = true
	c.state.phase = PhaseReady
	c.stopStallTimer()
	c.recorder.RecordConsensus(c.state.round, true)
	c.logger.Warn("round cap reached, forcing acceptance",
		zap.String("question_id", c.state.id),
		zap.Int("rounds", c.state.round),
	)
}

// =============================================================================
// 内部工具
// =============================================================================

func (c *Coordinator) names() []string {
	names := make([]string, 0, len(c.registry))
	for name := range c.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// pick 从已排序的名单中均匀随机选择一个
func (c *Coordinator) pick(names []string) string {
	return names[c.rand.Intn(len(names))]
}

func (c *Coordinator) touchStallTimer() {
	if c.config.StallTimeout <= 0 {
		return
	}
	if c.stall == nil {
		c.stall = time.NewTimer(c.config.StallTimeout)
		return
	}
	c.stall.Reset(c.config.StallTimeout)
}

func (c *Coordinator) stopStallTimer() {
	if c.stall != nil {
		c.stall.Stop()
	}
}

func (c *Coordinator) stallC() <-chan time.Time {
	if c.stall == nil {
		return nil
	}
	return c.stall.C
}

func (c *Coordinator) onStall() {
	if !c.state.phase.Active() {
		return
	}
	c.recorder.RecordStall()
	c.logger.Error("round stalled, no progress within stall timeout",
		zap.String("question_id", c.state.id),
		zap.String("phase", string(c.state.phase)),
		zap.Int("round", c.state.round),
		zap.Int("votes", len(c.state.votes)),
		zap.Int("responders", len(c.registry)),
		zap.Duration("timeout", c.config.StallTimeout),
	)
	c.state.phase = PhaseStalled
}
