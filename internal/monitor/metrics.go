package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SystemMetrics tracks executor throughput and exchange latency.
type SystemMetrics struct {
	// Latency histograms
	GatewayLatency   *LatencyHistogram
	ExecutionLatency *LatencyHistogram
	TickLatency      *LatencyHistogram
	APILatency       *LatencyHistogram

	// Counters
	signalsQueued   uint64
	signalsDropped  uint64
	signalsDone     uint64
	signalsRejected uint64
	signalsFailed   uint64
	workerRestarts  uint64
	gatewayRequests uint64
	gatewayErrors   uint64
	ticks           uint64
	tickErrors      uint64
	positionsClosed uint64
	apiRequests     uint64
	apiErrors       uint64

	mu         sync.RWMutex
	queueDepth int
	started    time.Time
}

// LatencyHistogram tracks latency samples with sliding window.
// Stats are recomputed lazily, only after new samples arrive.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// NewSystemMetrics creates a new metrics instance.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		GatewayLatency:   NewLatencyHistogram(1000),
		ExecutionLatency: NewLatencyHistogram(200),
		TickLatency:      NewLatencyHistogram(200),
		APILatency:       NewLatencyHistogram(500),
		started:          time.Now(),
	}
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false

	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// ObserveRequest records one exchange REST call.
func (m *SystemMetrics) ObserveRequest(method, path string, elapsed time.Duration, err error) {
	atomic.AddUint64(&m.gatewayRequests, 1)
	if err != nil {
		atomic.AddUint64(&m.gatewayErrors, 1)
	}
	m.GatewayLatency.RecordDuration(elapsed)
}

// IncrementWorkerRestarts counts pipeline worker restarts.
func (m *SystemMetrics) IncrementWorkerRestarts() {
	atomic.AddUint64(&m.workerRestarts, 1)
}

// ObserveExecution records how long one signal took from dequeue to terminal stage.
func (m *SystemMetrics) ObserveExecution(elapsed time.Duration) {
	m.ExecutionLatency.RecordDuration(elapsed)
}

// ObserveTick records one reconciliation pass.
func (m *SystemMetrics) ObserveTick(elapsed time.Duration, err error) {
	atomic.AddUint64(&m.ticks, 1)
	if err != nil {
		atomic.AddUint64(&m.tickErrors, 1)
	}
	m.TickLatency.RecordDuration(elapsed)
}

// ObserveAPI records one control API request.
func (m *SystemMetrics) ObserveAPI(elapsed time.Duration, status int) {
	atomic.AddUint64(&m.apiRequests, 1)
	if status >= 400 {
		atomic.AddUint64(&m.apiErrors, 1)
	}
	m.APILatency.RecordDuration(elapsed)
}

// SetQueueDepth records the current signal queue length.
func (m *SystemMetrics) SetQueueDepth(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueDepth = n
}

// MetricsSnapshot is a point-in-time view of every counter.
type MetricsSnapshot struct {
	GatewayLatency   LatencyStats `json:"gateway_latency"`
	ExecutionLatency LatencyStats `json:"execution_latency"`
	TickLatency      LatencyStats `json:"tick_latency"`
	APILatency       LatencyStats `json:"api_latency"`
	SignalsQueued    uint64       `json:"signals_queued"`
	SignalsDropped   uint64       `json:"signals_dropped"`
	SignalsDone      uint64       `json:"signals_done"`
	SignalsRejected  uint64       `json:"signals_rejected"`
	SignalsFailed    uint64       `json:"signals_failed"`
	WorkerRestarts   uint64       `json:"worker_restarts"`
	GatewayRequests  uint64       `json:"gateway_requests"`
	GatewayErrors    uint64       `json:"gateway_errors"`
	Ticks            uint64       `json:"tracker_ticks"`
	TickErrors       uint64       `json:"tracker_tick_errors"`
	PositionsClosed  uint64       `json:"positions_closed"`
	APIRequests      uint64       `json:"api_requests"`
	APIErrors        uint64       `json:"api_errors"`
	QueueDepth       int          `json:"queue_depth"`
	GoroutineCount   int          `json:"goroutine_count"`
	HeapAlloc        uint64       `json:"heap_alloc_bytes"`
	Uptime           string       `json:"uptime"`
	Timestamp        time.Time    `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *SystemMetrics) GetSnapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.mu.RLock()
	depth := m.queueDepth
	m.mu.RUnlock()

	return MetricsSnapshot{
		GatewayLatency:   m.GatewayLatency.Stats(),
		ExecutionLatency: m.ExecutionLatency.Stats(),
		TickLatency:      m.TickLatency.Stats(),
		APILatency:       m.APILatency.Stats(),
		SignalsQueued:    atomic.LoadUint64(&m.signalsQueued),
		SignalsDropped:   atomic.LoadUint64(&m.signalsDropped),
		SignalsDone:      atomic.LoadUint64(&m.signalsDone),
		SignalsRejected:  atomic.LoadUint64(&m.signalsRejected),
		SignalsFailed:    atomic.LoadUint64(&m.signalsFailed),
		WorkerRestarts:   atomic.LoadUint64(&m.workerRestarts),
		GatewayRequests:  atomic.LoadUint64(&m.gatewayRequests),
		GatewayErrors:    atomic.LoadUint64(&m.gatewayErrors),
		Ticks:            atomic.LoadUint64(&m.ticks),
		TickErrors:       atomic.LoadUint64(&m.tickErrors),
		PositionsClosed:  atomic.LoadUint64(&m.positionsClosed),
		APIRequests:      atomic.LoadUint64(&m.apiRequests),
		APIErrors:        atomic.LoadUint64(&m.apiErrors),
		QueueDepth:       depth,
		GoroutineCount:   runtime.NumGoroutine(),
		HeapAlloc:        memStats.HeapAlloc,
		Uptime:           time.Since(m.started).Truncate(time.Second).String(),
		Timestamp:        time.Now(),
	}
}

// Timer helps measure operation duration.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer creates a timer that records to the given histogram.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{
		start:     time.Now(),
		histogram: h,
	}
}

// Stop records elapsed time to histogram.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
