package runtime

import (
	"context"
	"errors"
	"sync"
	"time"

	errspkg "github.com/drblury/crudflow/internal/runtime/errors"
	"github.com/drblury/crudflow/internal/runtime/jsoncodec"
	"github.com/drblury/crudflow/internal/runtime/rpc"
)

const (
	latencySampleSize    = 256
	throughputWindowSize = time.Minute
)

// ProcedureInfo describes one registered procedure for introspection.
type ProcedureInfo struct {
	Name string `json:"name"`
	// BusTopic is set when the procedure is also served over Pub/Sub.
	BusTopic string          `json:"bus_topic,omitempty"`
	Stats    *ProcedureStats `json:"stats"`
}

// ProcedureStats accumulates call statistics for one procedure.
type ProcedureStats struct {
	mu   sync.Mutex
	data StatsSnapshot

	latencyWindow    *latencyWindow
	throughputWindow *throughputWindow
	resourceSampler  *resourceTracker
}

// StatsSnapshot is a point-in-time copy of ProcedureStats.
type StatsSnapshot struct {
	CallsTotal          uint64    `json:"calls_total"`
	CallsFailed         uint64    `json:"calls_failed"`
	TotalProcessingTime int64     `json:"total_processing_time_ns"`
	LastCalledAt        time.Time `json:"last_called_at"`
	InFlight            uint64    `json:"in_flight"`
	MaxInFlight         uint64    `json:"max_in_flight"`

	Latency    LatencyMetrics    `json:"latency"`
	Throughput ThroughputMetrics `json:"throughput"`
	Errors     ErrorBreakdown    `json:"errors"`
	Resource   ResourceUsage     `json:"resource"`
}

type LatencyMetrics struct {
	AverageNs  int64 `json:"average_ns"`
	P50Ns      int64 `json:"p50_ns"`
	P95Ns      int64 `json:"p95_ns"`
	P99Ns      int64 `json:"p99_ns"`
	LastNs     int64 `json:"last_ns"`
	SampleSize int   `json:"sample_size"`
}

type ThroughputMetrics struct {
	CurrentRPS    float64 `json:"current_rps"`
	WindowSeconds float64 `json:"window_seconds"`
	CallsInWindow uint64  `json:"calls_in_window"`
}

type ErrorBreakdown struct {
	InvalidParams uint64 `json:"invalid_params"`
	Canceled      uint64 `json:"canceled"`
	Store         uint64 `json:"store"`
	Other         uint64 `json:"other"`
	LastError     string `json:"last_error,omitempty"`
}

type ResourceUsage struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryBytes uint64  `json:"memory_bytes"`
	Goroutines  int     `json:"goroutines"`
}

type ErrorCategory string

const (
	ErrorCategoryNone          ErrorCategory = "none"
	ErrorCategoryInvalidParams ErrorCategory = "invalid_params"
	ErrorCategoryCanceled      ErrorCategory = "canceled"
	ErrorCategoryStore         ErrorCategory = "store"
	ErrorCategoryOther         ErrorCategory = "other"
)

// ErrorClassifier buckets procedure errors for stats and metric labels.
type ErrorClassifier func(error) ErrorCategory

func newProcedureStats(sampler *resourceTracker) *ProcedureStats {
	return &ProcedureStats{
		resourceSampler:  sampler,
		latencyWindow:    newLatencyWindow(latencySampleSize),
		throughputWindow: newThroughputWindow(throughputWindowSize),
	}
}

func (p *ProcedureStats) onCallStart() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.data.InFlight++
	if p.data.InFlight > p.data.MaxInFlight {
		p.data.MaxInFlight = p.data.InFlight
	}
}

func (p *ProcedureStats) onCallFinish(now time.Time, duration time.Duration, err error, category ErrorCategory) {
	p.mu.Lock()
	defer p.mu.Unlock()

	d := &p.data
	if d.InFlight > 0 {
		d.InFlight--
	}
	d.CallsTotal++
	if err != nil {
		d.CallsFailed++
	}
	d.TotalProcessingTime += int64(duration)
	d.LastCalledAt = now.UTC()

	p.latencyWindow.Add(duration)
	latency := p.latencyWindow.Snapshot()
	latency.AverageNs = d.TotalProcessingTime / int64(d.CallsTotal)
	d.Latency = latency

	tp := p.throughputWindow.AddAndSnapshot(now)
	d.Throughput = ThroughputMetrics{
		CurrentRPS:    tp.CurrentRPS,
		WindowSeconds: tp.WindowSeconds,
		CallsInWindow: uint64(tp.Count),
	}

	d.Errors.Record(category, err)
	if p.resourceSampler != nil {
		d.Resource = p.resourceSampler.Snapshot()
	}
}

func (p *ProcedureStats) Snapshot() StatsSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data
}

func (p *ProcedureStats) MarshalJSON() ([]byte, error) {
	return jsoncodec.Marshal(p.Snapshot())
}

func (e *ErrorBreakdown) Record(category ErrorCategory, err error) {
	switch category {
	case ErrorCategoryNone:
		if err == nil {
			return
		}
		e.Other++
	case ErrorCategoryInvalidParams:
		e.InvalidParams++
	case ErrorCategoryCanceled:
		e.Canceled++
	case ErrorCategoryStore:
		e.Store++
	default:
		e.Other++
	}
	if err != nil {
		e.LastError = err.Error()
	}
}

func defaultErrorClassifier(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryNone
	}
	var rpcErr *rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.Code == rpc.CodeInvalidParams {
		return ErrorCategoryInvalidParams
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryCanceled
	}
	if errors.Is(err, errspkg.ErrStoreClosed) || errors.Is(err, errspkg.ErrStoreFailure) {
		return ErrorCategoryStore
	}
	return ErrorCategoryOther
}
