package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/conclave/agent/collaboration"
	"github.com/BaSui01/conclave/agent/persona"
	"github.com/BaSui01/conclave/internal/pool"
	"github.com/BaSui01/conclave/types"
)

// Collector 直接注入角色与协调者
var (
	_ persona.Recorder       = (*Collector)(nil)
	_ collaboration.Recorder = (*Collector)(nil)
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector("test", reg, zap.NewNop()), reg
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

var testNamespaceSeq atomic.Int64

// nextTestNamespace 为注册到全局 Registerer 的测试生成唯一 namespace
func nextTestNamespace() string {
	return fmt.Sprintf("test_default_%d", testNamespaceSeq.Add(1))
}

func TestNewCollector_DefaultRegisterer(t *testing.T) {
	c := NewCollector(nextTestNamespace(), nil, nil)
	assert.Equal(t, prometheus.DefaultRegisterer, c.registerer)
}

func TestCollector_RecordCompletion(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordCompletion("A", "answer", "success", 200*time.Millisecond)
	c.RecordCompletion("A", "answer", "success", 300*time.Millisecond)
	c.RecordCompletion("B", "evaluate", "rejected", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.completionsTotal.WithLabelValues("A", "answer", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.completionsTotal.WithLabelValues("B", "evaluate", "rejected")))
	// 被拒绝的调用没有耗时
	assert.Equal(t, 1, testutil.CollectAndCount(c.completionDuration))
}

func TestCollector_RecordMalformedVerdict(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordMalformedVerdict("A")
	c.RecordMalformedVerdict("A")
	assert.Equal(t, 2.0, testutil.ToFloat64(c.malformedVerdicts.WithLabelValues("A")))
}

func TestCollector_ConsensusMetrics(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordSubmission(true)
	c.RecordSubmission(false)
	c.RecordRound()
	c.RecordRound()
	c.RecordVote(types.VerdictAccept)
	c.RecordVote(types.VerdictNeedsRefinement)
	c.RecordVote(types.VerdictNeedsRefinement)
	c.RecordConsensus(2, false)
	c.RecordConsensus(5, true)
	c.RecordStaleReport("vote")
	c.RecordStall()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.submissionsTotal.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.submissionsTotal.WithLabelValues("rejected")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.roundsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.votesTotal.WithLabelValues("Good")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.votesTotal.WithLabelValues("NeedsRefinement")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.consensusTotal.WithLabelValues("unanimous")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.consensusTotal.WithLabelValues("forced")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.forcedConsensus))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.staleReports.WithLabelValues("vote")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.stalledRounds))
	assert.Equal(t, 1, testutil.CollectAndCount(c.roundsPerQuestion))
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordHTTPRequest("GET", "/status", 200, 10*time.Millisecond)
	c.RecordHTTPRequest("GET", "/status", 503, 10*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/status", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/status", "5xx")))
}

func TestCollector_RegisterPool(t *testing.T) {
	c, reg := newTestCollector(t)

	stats := pool.GoroutinePoolStats{Workers: 3, Active: 2, Queued: 5}
	require.NoError(t, c.RegisterPool(func() pool.GoroutinePoolStats { return stats }))

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, f := range families {
		if len(f.GetMetric()) == 1 && f.GetMetric()[0].GetGauge() != nil {
			values[f.GetName()] = f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.Equal(t, 3.0, values["test_pool_workers"])
	assert.Equal(t, 2.0, values["test_pool_active_tasks"])
	assert.Equal(t, 5.0, values["test_pool_queued_tasks"])

	// 重复注册会失败
	assert.Error(t, c.RegisterPool(func() pool.GoroutinePoolStats { return stats }))
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{500, "5xx"},
		{100, "100"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCode(tt.code))
	}
}
