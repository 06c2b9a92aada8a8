// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/conclave/internal/pool"
	"github.com/BaSui01/conclave/types"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 补全指标
	completionsTotal   *prometheus.CounterVec
	completionDuration *prometheus.HistogramVec
	malformedVerdicts  *prometheus.CounterVec

	// 共识指标
	submissionsTotal  *prometheus.CounterVec
	roundsTotal       prometheus.Counter
	votesTotal        *prometheus.CounterVec
	consensusTotal    *prometheus.CounterVec
	forcedConsensus   prometheus.Counter
	roundsPerQuestion prometheus.Histogram
	staleReports      *prometheus.CounterVec
	stalledRounds     prometheus.Counter

	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	namespace  string
	registerer prometheus.Registerer
	logger     *zap.Logger
}

// NewCollector 创建指标收集器，reg 为 nil 时注册到默认 Registerer
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		namespace:  namespace,
		registerer: reg,
		logger:     logger.With(zap.String("component", "metrics")),
	}

	// 补全指标
	c.completionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Total number of completion calls made by personas",
		},
		[]string{"persona", "kind", "status"},
	)

	c.completionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "Completion call duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"persona", "kind"},
	)

	c.malformedVerdicts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_verdicts_total",
			Help:      "Evaluation responses whose first line was not a verdict token",
		},
		[]string{"persona"},
	)

	// 共识指标
	c.submissionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Total number of question submissions",
		},
		[]string{"result"},
	)

	c.roundsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Total number of evaluation rounds broadcast",
		},
	)

	c.votesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_total",
			Help:      "Total number of votes recorded",
		},
		[]string{"verdict"},
	)

	c.consensusTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consensus_total",
			Help:      "Total number of questions that reached a final answer",
		},
		[]string{"outcome"},
	)

	c.forcedConsensus = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forced_consensus_total",
			Help:      "Questions whose answer was accepted because the round cap was reached",
		},
	)

	c.roundsPerQuestion = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rounds_per_question",
			Help:      "Evaluation rounds needed to finalize an answer",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		},
	)

	c.staleReports = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_reports_total",
			Help:      "Reports dropped because they did not match the active question or round",
		},
		[]string{"kind"},
	)

	c.stalledRounds = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stalled_rounds_total",
			Help:      "Rounds that made no progress within the stall timeout",
		},
	)

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.logger.Debug("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 记录方法
// =============================================================================

// RecordCompletion 记录补全调用
func (c *Collector) RecordCompletion(persona, kind, status string, duration time.Duration) {
	c.completionsTotal.WithLabelValues(persona, kind, status).Inc()
	if duration > 0 {
		c.completionDuration.WithLabelValues(persona, kind).Observe(duration.Seconds())
	}
}

// RecordMalformedVerdict 记录无法解析的评审回复
func (c *Collector) RecordMalformedVerdict(persona string) {
	c.malformedVerdicts.WithLabelValues(persona).Inc()
}

// RecordSubmission 记录提交结果
func (c *Collector) RecordSubmission(accepted bool) {
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	c.submissionsTotal.WithLabelValues(result).Inc()
}

// RecordRound 记录一轮评审
func (c *Collector) RecordRound() {
	c.roundsTotal.Inc()
}

// RecordVote 记录一张投票
func (c *Collector) RecordVote(verdict types.Verdict) {
	c.votesTotal.WithLabelValues(verdict.String()).Inc()
}

// RecordConsensus 记录最终答案
func (c *Collector) RecordConsensus(rounds int, forced bool) {
	outcome := "unanimous"
	if forced {
		outcome = "forced"
		c.forcedConsensus.Inc()
	}
	c.consensusTotal.WithLabelValues(outcome).Inc()
	c.roundsPerQuestion.Observe(float64(rounds))
}

// RecordStaleReport 记录被丢弃的过期回报
func (c *Collector) RecordStaleReport(kind string) {
	c.staleReports.WithLabelValues(kind).Inc()
}

// RecordStall 记录停滞的轮次
func (c *Collector) RecordStall() {
	c.stalledRounds.Inc()
}

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RegisterPool 以 GaugeFunc 暴露 goroutine 池状态
func (c *Collector) RegisterPool(stats func() pool.GoroutinePoolStats) error {
	gauges := []struct {
		name, help string
		value      func(pool.GoroutinePoolStats) float64
	}{
		{"pool_workers", "Live workers in the completion pool", func(s pool.GoroutinePoolStats) float64 { return float64(s.Workers) }},
		{"pool_active_tasks", "Tasks currently running in the completion pool", func(s pool.GoroutinePoolStats) float64 { return float64(s.Active) }},
		{"pool_queued_tasks", "Tasks waiting in the completion pool queue", func(s pool.GoroutinePoolStats) float64 { return float64(s.Queued) }},
	}
	for _, g := range gauges {
		value := g.value
		gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      g.name,
			Help:      g.help,
		}, func() float64 { return value(stats()) })
		if err := c.registerer.Register(gauge); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串（归类）
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return strconv.Itoa(code)
	}
}
