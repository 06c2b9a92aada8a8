package collaboration

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/BaSui01/conclave/testutil"
	"github.com/BaSui01/conclave/types"
)

// =============================================================================
// 测试替身
// =============================================================================

type fakeResponder struct {
	name      string
	answers   chan types.AnswerRequest
	evals     chan types.EvaluationRequest
	revisions chan types.RevisionRequest
	err       error
}

func newFakeResponder(name string) *fakeResponder {
	return &fakeResponder{
		name:      name,
		answers:   make(chan types.AnswerRequest, 64),
		evals:     make(chan types.EvaluationRequest, 64),
		revisions: make(chan types.RevisionRequest, 64),
	}
}

func (r *fakeResponder) Name() string { return r.name }

func (r *fakeResponder) Answer(_ context.Context, req types.AnswerRequest) error {
	if r.err != nil {
		return r.err
	}
	r.answers <- req
	return nil
}

func (r *fakeResponder) Evaluate(_ context.Context, req types.EvaluationRequest) error {
	r.evals <- req
	return nil
}

func (r *fakeResponder) Revise(_ context.Context, req types.RevisionRequest) error {
	r.revisions <- req
	return nil
}

// scriptedRand 按顺序返回预设下标，用完后返回 0
type scriptedRand struct {
	mu  sync.Mutex
	seq []int
}

func (r *scriptedRand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.seq) == 0 {
		return 0
	}
	v := r.seq[0]
	r.seq = r.seq[1:]
	return v % n
}

type fakeRecorder struct {
	mu          sync.Mutex
	submissions map[bool]int
	rounds      int
	votes       int
	consensus   []string
	stale       map[string]int
	stalls      int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{submissions: map[bool]int{}, stale: map[string]int{}}
}

func (r *fakeRecorder) RecordSubmission(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submissions[ok]++
}

func (r *fakeRecorder) RecordRound() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rounds++
}

func (r *fakeRecorder) RecordVote(types.Verdict) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.votes++
}

func (r *fakeRecorder) RecordStall() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stalls++
}

func (r *fakeRecorder) RecordConsensus(rounds int, forced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consensus = append(r.consensus, fmt.Sprintf("%d/%t", rounds, forced))
}

func (r *fakeRecorder) RecordStaleReport(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stale[kind]++
}

func (r *fakeRecorder) staleCount(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stale[kind]
}

func startCoordinator(t *testing.T, cfg Config, opts ...Option) *Coordinator {
	t.Helper()
	c := NewCoordinator(cfg, zaptest.NewLogger(t), opts...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return c
}

func register(t *testing.T, c *Coordinator, responders ...*fakeResponder) {
	t.Helper()
	for _, r := range responders {
		ok, err := c.Register(testutil.TestContext(t), r)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

const recvTimeout = 2 * time.Second

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	v, ok := testutil.WaitForChannel(ch, recvTimeout)
	require.True(t, ok, "expected a request")
	return v
}

func mustStatus(t *testing.T, c *Coordinator) Status {
	t.Helper()
	s, err := c.Status(testutil.TestContext(t))
	require.NoError(t, err)
	return s
}

func mustReady(t *testing.T, c *Coordinator) bool {
	t.Helper()
	ok, err := c.IsReady(testutil.TestContext(t))
	require.NoError(t, err)
	return ok
}

func vote(t *testing.T, c *Coordinator, req types.EvaluationRequest, name string, v types.Verdict) {
	t.Helper()
	require.NoError(t, c.Evaluated(testutil.TestContext(t), types.Vote{
		QuestionID: req.QuestionID,
		Round:      req.Round,
		Name:       name,
		Verdict:    v,
		Rationale:  "because",
	}))
}

// =============================================================================
// 驱动方接口
// =============================================================================

func TestCoordinator_BeforeSubmit(t *testing.T) {
	c := startCoordinator(t, DefaultConfig())
	ctx := testutil.TestContext(t)

	answer, err := c.FetchAnswer(ctx)
	require.NoError(t, err)
	assert.Equal(t, NotReadyAnswer, answer)
	assert.False(t, mustReady(t, c))
	assert.Equal(t, PhaseIdle, mustStatus(t, c).Phase)
}

func TestCoordinator_SubmitWithoutResponders(t *testing.T) {
	rec := newFakeRecorder()
	c := startCoordinator(t, DefaultConfig(), WithRecorder(rec))

	ok, err := c.Submit(testutil.TestContext(t), "Q1")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNoResponders)
	assert.Equal(t, types.ErrNoResponders, types.GetErrorCode(err))

	status := mustStatus(t, c)
	assert.Equal(t, PhaseIdle, status.Phase)
	assert.Empty(t, status.Question)
	assert.Equal(t, 1, rec.submissions[false])
}

func TestCoordinator_SubmitWhileActive(t *testing.T) {
	c := startCoordinator(t, DefaultConfig())
	a := newFakeResponder("A")
	register(t, c, a)
	ctx := testutil.TestContext(t)

	ok, err := c.Submit(ctx, "Q1")
	require.NoError(t, err)
	require.True(t, ok)
	first := recv(t, a.answers)

	ok, err = c.Submit(ctx, "Q2")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrRoundInProgress)

	status := mustStatus(t, c)
	assert.Equal(t, "Q1", status.Question)
	assert.Equal(t, first.QuestionID, status.QuestionID)
}

func TestCoordinator_SubmitDispatchFailure(t *testing.T) {
	c := startCoordinator(t, DefaultConfig())
	a := newFakeResponder("A")
	a.err = errors.New("inbox closed")
	register(t, c, a)

	ok, err := c.Submit(testutil.TestContext(t), "Q1")
	assert.False(t, ok)
	assert.EqualError(t, err, "inbox closed")
	assert.Equal(t, PhaseIdle, mustStatus(t, c).Phase)
}

func TestCoordinator_Register(t *testing.T) {
	c := startCoordinator(t, DefaultConfig(), WithRand(&scriptedRand{}))
	ctx := testutil.TestContext(t)

	_, err := c.Register(ctx, nil)
	assert.ErrorIs(t, err, ErrInvalidResponder)
	_, err = c.Register(ctx, newFakeResponder(""))
	assert.ErrorIs(t, err, ErrInvalidResponder)

	first, second := newFakeResponder("A"), newFakeResponder("A")
	register(t, c, first, second, newFakeResponder("B"))
	assert.Equal(t, []string{"A", "B"}, mustStatus(t, c).Responders)

	// 同名注册替换旧句柄
	_, err = c.Submit(ctx, "Q1")
	require.NoError(t, err)
	recv(t, second.answers)
	assert.Empty(t, first.answers)
}

func TestCoordinator_ResetIsIdempotent(t *testing.T) {
	c := startCoordinator(t, DefaultConfig())
	a := newFakeResponder("A")
	register(t, c, a)
	ctx := testutil.TestContext(t)

	_, err := c.Submit(ctx, "Q1")
	require.NoError(t, err)
	req := recv(t, a.answers)
	require.NoError(t, c.AnsweredQuestion(ctx, types.Answer{QuestionID: req.QuestionID, From: "A", Text: "42"}))
	assert.Equal(t, 1, mustStatus(t, c).Round)

	ok, err := c.Reset(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	once := mustStatus(t, c)

	ok, err = c.Reset(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	twice := mustStatus(t, c)

	assert.Equal(t, once, twice)
	assert.Equal(t, PhaseIdle, twice.Phase)
	assert.Empty(t, twice.Question)
	assert.Empty(t, twice.Answer)
	assert.Empty(t, twice.Votes)
	assert.Zero(t, twice.Round)
	assert.False(t, twice.Forced)

	answer, err := c.FetchAnswer(ctx)
	require.NoError(t, err)
	assert.Equal(t, NotReadyAnswer, answer)

	// 重置后可以提交新问题
	ok, err = c.Submit(ctx, "Q2")
	require.NoError(t, err)
	assert.True(t, ok)
}

// =============================================================================
// 共识流程
// =============================================================================

func TestCoordinator_RefinementScenario(t *testing.T) {
	rec := newFakeRecorder()
	// 第一次选择作答者 A，第二次在拒绝者 [B] 中选择
	c := startCoordinator(t, DefaultConfig(), WithRand(&scriptedRand{seq: []int{0, 0}}), WithRecorder(rec))
	a, b := newFakeResponder("A"), newFakeResponder("B")
	register(t, c, a, b)
	ctx := testutil.TestContext(t)

	ok, err := c.Submit(ctx, "Q1")
	require.NoError(t, err)
	require.True(t, ok)

	ask := recv(t, a.answers)
	assert.Equal(t, "Q1", ask.Question)
	assert.Empty(t, b.answers)

	require.NoError(t, c.AnsweredQuestion(ctx, types.Answer{QuestionID: ask.QuestionID, From: "A", Text: "42"}))

	status := mustStatus(t, c)
	assert.Equal(t, PhaseAwaitingVotes, status.Phase)
	assert.Equal(t, "42", status.Answer)
	assert.Empty(t, status.Votes)
	assert.Equal(t, 1, status.Round)

	evalA, evalB := recv(t, a.evals), recv(t, b.evals)
	assert.Equal(t, types.EvaluationRequest{QuestionID: ask.QuestionID, Round: 1, Question: "Q1", Answer: "42"}, evalA)
	assert.Equal(t, evalA, evalB)

	vote(t, c, evalA, "A", types.VerdictAccept)
	assert.False(t, mustReady(t, c))
	vote(t, c, evalB, "B", types.VerdictNeedsRefinement)
	assert.False(t, mustReady(t, c))

	revise := recv(t, b.revisions)
	assert.Equal(t, types.RevisionRequest{QuestionID: ask.QuestionID, Question: "Q1", Answer: "42"}, revise)
	assert.Empty(t, a.revisions)
	assert.Equal(t, PhaseRevising, mustStatus(t, c).Phase)

	require.NoError(t, c.Revised(ctx, types.Revision{QuestionID: ask.QuestionID, From: "B", Text: "43"}))

	evalA, evalB = recv(t, a.evals), recv(t, b.evals)
	assert.Equal(t, "43", evalA.Answer)
	assert.Equal(t, 2, evalB.Round)

	vote(t, c, evalA, "A", types.VerdictAccept)
	assert.False(t, mustReady(t, c))
	vote(t, c, evalB, "B", types.VerdictAccept)
	assert.True(t, mustReady(t, c))

	answer, err := c.FetchAnswer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "43", answer)

	status = mustStatus(t, c)
	assert.Equal(t, PhaseReady, status.Phase)
	assert.False(t, status.Forced)
	assert.True(t, status.Ready)
	assert.Equal(t, []string{"2/false"}, rec.consensus)
}

func TestCoordinator_RoundCapForcesAcceptance(t *testing.T) {
	rec := newFakeRecorder()
	c := startCoordinator(t, DefaultConfig(), WithRand(&scriptedRand{}), WithRecorder(rec))
	a, b := newFakeResponder("A"), newFakeResponder("B")
	register(t, c, a, b)
	ctx := testutil.TestContext(t)

	_, err := c.Submit(ctx, "Q1")
	require.NoError(t, err)
	ask := recv(t, a.answers)
	require.NoError(t, c.AnsweredQuestion(ctx, types.Answer{QuestionID: ask.QuestionID, From: "A", Text: "v0"}))

	for round := 1; round <= DefaultMaxRounds; round++ {
		evalA, evalB := recv(t, a.evals), recv(t, b.evals)
		require.Equal(t, round, evalA.Round)

		vote(t, c, evalA, "A", types.VerdictNeedsRefinement)
		vote(t, c, evalB, "B", types.VerdictNeedsRefinement)
		assert.False(t, mustReady(t, c), "round %d", round)

		revise := recv(t, a.revisions)
		require.NoError(t, c.Revised(ctx, types.Revision{
			QuestionID: revise.QuestionID,
			From:       "A",
			Text:       fmt.Sprintf("v%d", round),
		}))
	}

	assert.True(t, mustReady(t, c))
	status := mustStatus(t, c)
	assert.True(t, status.Forced)
	assert.Equal(t, DefaultMaxRounds, status.Round)
	assert.Equal(t, "v5", status.Answer)
	assert.Equal(t, map[string]types.Verdict{"A": types.VerdictAccept, "B": types.VerdictAccept}, status.Votes)

	// 达到上限后不再发起新一轮评审
	assert.Empty(t, a.evals)
	assert.Empty(t, b.evals)
	assert.Equal(t, []string{"5/true"}, rec.consensus)
	assert.Equal(t, DefaultMaxRounds, rec.rounds)
}

func TestCoordinator_CustomMaxRounds(t *testing.T) {
	c := startCoordinator(t, Config{MaxRounds: 1})
	a := newFakeResponder("A")
	register(t, c, a)
	ctx := testutil.TestContext(t)

	_, err := c.Submit(ctx, "Q1")
	require.NoError(t, err)
	ask := recv(t, a.answers)
	require.NoError(t, c.AnsweredQuestion(ctx, types.Answer{QuestionID: ask.QuestionID, From: "A", Text: "x"}))
	vote(t, c, recv(t, a.evals), "A", types.VerdictNeedsRefinement)
	recv(t, a.revisions)
	require.NoError(t, c.Revised(ctx, types.Revision{QuestionID: ask.QuestionID, From: "A", Text: "y"}))

	assert.True(t, mustReady(t, c))
	assert.True(t, mustStatus(t, c).Forced)
}

func TestCoordinator_StaleReportsAreDropped(t *testing.T) {
	rec := newFakeRecorder()
	c := startCoordinator(t, DefaultConfig(), WithRecorder(rec))
	a, b := newFakeResponder("A"), newFakeResponder("B")
	register(t, c, a, b)
	ctx := testutil.TestContext(t)

	// 没有活动问题时的回报
	require.NoError(t, c.AnsweredQuestion(ctx, types.Answer{QuestionID: "old", From: "A", Text: "stale"}))
	answer, err := c.FetchAnswer(ctx)
	require.NoError(t, err)
	assert.Equal(t, NotReadyAnswer, answer)

	_, err = c.Submit(ctx, "Q1")
	require.NoError(t, err)
	ask := recv(t, a.answers)

	// 问题 ID 不符
	require.NoError(t, c.AnsweredQuestion(ctx, types.Answer{QuestionID: "old", From: "A", Text: "stale"}))
	assert.Equal(t, PhaseAwaitingAnswer, mustStatus(t, c).Phase)

	// 等待答案时的修订
	require.NoError(t, c.Revised(ctx, types.Revision{QuestionID: ask.QuestionID, From: "B", Text: "early"}))

	require.NoError(t, c.AnsweredQuestion(ctx, types.Answer{QuestionID: ask.QuestionID, From: "A", Text: "42"}))
	evalA := recv(t, a.evals)
	recv(t, b.evals)

	// 重复的答案与错误轮次的投票
	require.NoError(t, c.AnsweredQuestion(ctx, types.Answer{QuestionID: ask.QuestionID, From: "A", Text: "dup"}))
	stale := evalA
	stale.Round = 7
	vote(t, c, stale, "B", types.VerdictNeedsRefinement)

	status := mustStatus(t, c)
	assert.Equal(t, "42", status.Answer)
	assert.Empty(t, status.Votes)
	assert.Equal(t, 3, rec.staleCount("answer"))
	assert.Equal(t, 1, rec.staleCount("vote"))
	assert.Equal(t, 1, rec.staleCount("revision"))
}

func TestCoordinator_LateRegistrationBlocksReadiness(t *testing.T) {
	c := startCoordinator(t, DefaultConfig(), WithRand(&scriptedRand{}))
	a, b := newFakeResponder("A"), newFakeResponder("B")
	register(t, c, a, b)
	ctx := testutil.TestContext(t)

	_, err := c.Submit(ctx, "Q1")
	require.NoError(t, err)
	ask := recv(t, a.answers)
	require.NoError(t, c.AnsweredQuestion(ctx, types.Answer{QuestionID: ask.QuestionID, From: "A", Text: "42"}))
	evalA, evalB := recv(t, a.evals), recv(t, b.evals)

	late := newFakeResponder("C")
	register(t, c, late)

	vote(t, c, evalA, "A", types.VerdictAccept)
	vote(t, c, evalB, "B", types.VerdictAccept)

	// 新角色没有收到评审请求，注册表大小却已变化
	assert.False(t, mustReady(t, c))
	assert.Empty(t, late.evals)
	assert.Equal(t, PhaseAwaitingVotes, mustStatus(t, c).Phase)
}

func TestCoordinator_StallTimeout(t *testing.T) {
	rec := newFakeRecorder()
	c := startCoordinator(t, Config{StallTimeout: 30 * time.Millisecond}, WithRecorder(rec))
	a := newFakeResponder("A")
	register(t, c, a)
	ctx := testutil.TestContext(t)

	_, err := c.Submit(ctx, "Q1")
	require.NoError(t, err)
	recv(t, a.answers)

	testutil.AssertEventuallyTrue(t, func() bool {
		return mustStatus(t, c).Phase == PhaseStalled
	}, recvTimeout)
	assert.False(t, mustReady(t, c))

	_, err = c.Submit(ctx, "Q2")
	assert.ErrorIs(t, err, ErrRoundInProgress)

	_, err = c.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, mustStatus(t, c).Phase)
	rec.mu.Lock()
	assert.Equal(t, 1, rec.stalls)
	rec.mu.Unlock()
}

func TestCoordinator_NoStallAfterConsensus(t *testing.T) {
	c := startCoordinator(t, Config{StallTimeout: 20 * time.Millisecond})
	a := newFakeResponder("A")
	register(t, c, a)
	ctx := testutil.TestContext(t)

	_, err := c.Submit(ctx, "Q1")
	require.NoError(t, err)
	ask := recv(t, a.answers)
	require.NoError(t, c.AnsweredQuestion(ctx, types.Answer{QuestionID: ask.QuestionID, From: "A", Text: "42"}))
	vote(t, c, recv(t, a.evals), "A", types.VerdictAccept)
	require.True(t, mustReady(t, c))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, PhaseReady, mustStatus(t, c).Phase)
}

func TestCoordinator_Stopped(t *testing.T) {
	c := NewCoordinator(DefaultConfig(), zaptest.NewLogger(t))
	require.NoError(t, c.Run(testutil.CancelledContext()))

	_, err := c.Submit(context.Background(), "Q1")
	assert.ErrorIs(t, err, ErrCoordinatorStopped)
	assert.ErrorIs(t, c.Evaluated(context.Background(), types.Vote{}), ErrCoordinatorStopped)
}

// =============================================================================
// 随机选择
// =============================================================================

// 提交总是选择某个已注册角色，且选择结果由随机源决定
func TestProperty_SubmitSelectsRegisteredResponder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "responders")
		idx := rapid.IntRange(0, n-1).Draw(rt, "index")

		c := NewCoordinator(DefaultConfig(), nil, WithRand(&scriptedRand{seq: []int{idx}}))
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = c.Run(ctx)
		}()
		defer func() {
			cancel()
			<-done
		}()

		responders := make([]*fakeResponder, n)
		for i := range responders {
			responders[i] = newFakeResponder(fmt.Sprintf("r%02d", i))
			_, err := c.Register(ctx, responders[i])
			require.NoError(rt, err)
		}

		ok, err := c.Submit(ctx, "Q")
		require.NoError(rt, err)
		require.True(rt, ok)

		for i, r := range responders {
			if i == idx {
				assert.Len(rt, r.answers, 1)
			} else {
				assert.Empty(rt, r.answers)
			}
		}
	})
}

func TestCoordinator_SelectionIsUniform(t *testing.T) {
	const trials = 4000
	names := []string{"A", "B", "C", "D"}

	counts := make(map[string]int)
	var mu sync.Mutex
	c := startCoordinator(t, DefaultConfig(), WithRand(rand.New(rand.NewSource(7))))
	for _, name := range names {
		ok, err := c.Register(testutil.TestContext(t), countingResponder{name: name, mu: &mu, counts: counts})
		require.NoError(t, err)
		require.True(t, ok)
	}

	ctx := testutil.TestContext(t)
	for i := 0; i < trials; i++ {
		_, err := c.Submit(ctx, "Q")
		require.NoError(t, err)
		_, err = c.Reset(ctx)
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	expected := trials / len(names)
	for _, name := range names {
		assert.InDelta(t, expected, counts[name], float64(expected)*0.2, name)
	}
}

type countingResponder struct {
	name   string
	mu     *sync.Mutex
	counts map[string]int
}

func (r countingResponder) Name() string { return r.name }

func (r countingResponder) Answer(context.Context, types.AnswerRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[r.name]++
	return nil
}

func (r countingResponder) Evaluate(context.Context, types.EvaluationRequest) error { return nil }
func (r countingResponder) Revise(context.Context, types.RevisionRequest) error     { return nil }
