// Package metrics counts what the practice service does. Counters are kept
// in process for the /api/stats snapshot and mirrored into OpenTelemetry
// instruments that the Prometheus exporter serves on /metrics.
package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "ielts-speaking"

var latencyBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	TestsStarted       int64     `json:"tests_started"`
	TestsCompleted     int64     `json:"tests_completed"`
	QuestionsAsked     int64     `json:"questions_asked"`
	ReportsGenerated   int64     `json:"reports_generated"`
	APICallsTotal      int64     `json:"api_calls_total"`
	APICallsSuccessful int64     `json:"api_calls_successful"`
	LastUpdateTime     time.Time `json:"last_update_time"`
}

type Metrics struct {
	mu       sync.RWMutex
	counters Snapshot

	tests        metric.Int64Counter
	questions    metric.Int64Counter
	reports      metric.Int64Counter
	llmRequests  metric.Int64Counter
	llmDuration  metric.Float64Histogram
	httpDuration metric.Float64Histogram
	activeTests  metric.Int64UpDownCounter
}

// New creates Metrics whose instruments come from mp. A nil mp uses the
// global provider.
func New(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)
	m := &Metrics{counters: Snapshot{LastUpdateTime: time.Now()}}

	var err error
	if m.tests, err = meter.Int64Counter("ielts.tests",
		metric.WithDescription("Speaking tests by event (started, completed)."),
	); err != nil {
		return nil, err
	}
	if m.questions, err = meter.Int64Counter("ielts.questions.asked",
		metric.WithDescription("Questions put to candidates, by part."),
	); err != nil {
		return nil, err
	}
	if m.reports, err = meter.Int64Counter("ielts.reports.generated",
		metric.WithDescription("Evaluation reports produced."),
	); err != nil {
		return nil, err
	}
	if m.llmRequests, err = meter.Int64Counter("ielts.llm.requests",
		metric.WithDescription("LLM calls by operation and status."),
	); err != nil {
		return nil, err
	}
	if m.llmDuration, err = meter.Float64Histogram("ielts.llm.duration",
		metric.WithDescription("Latency of LLM calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if m.httpDuration, err = meter.Float64Histogram("ielts.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.activeTests, err = meter.Int64UpDownCounter("ielts.tests.active",
		metric.WithDescription("Speaking tests currently in progress."),
	); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) bump(field *int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*field++
	m.counters.LastUpdateTime = time.Now()
}

func (m *Metrics) IncrementTestsStarted() {
	m.bump(&m.counters.TestsStarted)
	ctx := context.Background()
	m.tests.Add(ctx, 1, metric.WithAttributes(attribute.String("event", "started")))
	m.activeTests.Add(ctx, 1)
}

// IncrementTestsCompleted counts a test that reached Finished. Abandoned
// tests should call TestAbandoned instead so the active gauge stays right.
func (m *Metrics) IncrementTestsCompleted() {
	m.bump(&m.counters.TestsCompleted)
	ctx := context.Background()
	m.tests.Add(ctx, 1, metric.WithAttributes(attribute.String("event", "completed")))
	m.activeTests.Add(ctx, -1)
}

func (m *Metrics) TestAbandoned() {
	m.activeTests.Add(context.Background(), -1)
}

func (m *Metrics) IncrementQuestionsAsked(part int) {
	m.bump(&m.counters.QuestionsAsked)
	m.questions.Add(context.Background(), 1, metric.WithAttributes(attribute.Int("part", part)))
}

func (m *Metrics) IncrementReportsGenerated() {
	m.bump(&m.counters.ReportsGenerated)
	m.reports.Add(context.Background(), 1)
}

// IncrementAPICall records one LLM call for operation.
func (m *Metrics) IncrementAPICall(ctx context.Context, operation string, success bool, took time.Duration) {
	m.mu.Lock()
	m.counters.APICallsTotal++
	if success {
		m.counters.APICallsSuccessful++
	}
	m.counters.LastUpdateTime = time.Now()
	m.mu.Unlock()

	status := "ok"
	if !success {
		status = "error"
	}
	m.llmRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
	m.llmDuration.Record(ctx, took.Seconds(), metric.WithAttributes(attribute.String("operation", operation)))
}

func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters
}
