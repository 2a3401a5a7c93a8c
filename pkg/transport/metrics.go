package transport

import (
	"sort"
	"sync"
	"time"

	"github.com/cryptogift-wallets/giftclaim/pkg/metrics"
)

// DefaultMetricsWindow is the number of recent calls kept per endpoint
const DefaultMetricsWindow = 50

// EndpointStats is the diagnostic view of one endpoint
type EndpointStats struct {
	EndpointID          string    `json:"endpointId"`
	Successes           uint64    `json:"successes"`
	Failures            uint64    `json:"failures"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	RecentCalls         int       `json:"recentCalls"`
	RecentSuccessRate   float64   `json:"recentSuccessRate"`
	LastKind            string    `json:"lastKind,omitempty"`
	LastError           string    `json:"lastError,omitempty"`
	LastUpdated         time.Time `json:"lastUpdated"`
}

type endpointCounters struct {
	stats  EndpointStats
	recent []bool
	next   int
	filled bool
}

// TransportMetrics keeps rolling success and failure counters per endpoint.
// One instance is created at process start and injected into the Selector; it is never reset.
// Selection does not read it today, but Stats is the input a weighted strategy would use.
type TransportMetrics struct {
	mu        sync.Mutex
	window    int
	endpoints map[string]*endpointCounters
	now       func() time.Time
}

// NewTransportMetrics creates counters with the given rolling window size
func NewTransportMetrics(window int) *TransportMetrics {
	if window <= 0 {
		window = DefaultMetricsWindow
	}
	return &TransportMetrics{
		window:    window,
		endpoints: make(map[string]*endpointCounters),
		now:       time.Now,
	}
}

func (m *TransportMetrics) counters(endpointID string) *endpointCounters {
	c, ok := m.endpoints[endpointID]
	if !ok {
		c = &endpointCounters{
			stats:  EndpointStats{EndpointID: endpointID},
			recent: make([]bool, m.window),
		}
		m.endpoints[endpointID] = c
	}
	return c
}

func (c *endpointCounters) push(ok bool, window int) {
	c.recent[c.next] = ok
	c.next = (c.next + 1) % window
	if c.next == 0 {
		c.filled = true
	}
}

// RecordSuccess records a successful call
func (m *TransportMetrics) RecordSuccess(endpointID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.counters(endpointID)
	c.stats.Successes++
	c.stats.ConsecutiveFailures = 0
	c.stats.LastUpdated = m.now()
	c.push(true, m.window)

	metrics.RPCCalls.WithLabelValues(endpointID, "success").Inc()
}

// RecordFailure records a failed call with its classification
func (m *TransportMetrics) RecordFailure(endpointID string, class Classification, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.counters(endpointID)
	c.stats.Failures++
	c.stats.ConsecutiveFailures++
	c.stats.LastKind = class.Kind.String()
	if err != nil {
		c.stats.LastError = err.Error()
	}
	c.stats.LastUpdated = m.now()
	c.push(false, m.window)

	metrics.RPCCalls.WithLabelValues(endpointID, class.Kind.String()).Inc()
}

// Stats returns the counters of one endpoint
func (m *TransportMetrics) Stats(endpointID string) (EndpointStats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.endpoints[endpointID]
	if !ok {
		return EndpointStats{EndpointID: endpointID}, false
	}
	return c.snapshot(m.window), true
}

// Snapshot returns the counters of every endpoint sorted by id
func (m *TransportMetrics) Snapshot() []EndpointStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]EndpointStats, 0, len(m.endpoints))
	for _, c := range m.endpoints {
		out = append(out, c.snapshot(m.window))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EndpointID < out[j].EndpointID
	})
	return out
}

func (c *endpointCounters) snapshot(window int) EndpointStats {
	stats := c.stats
	n := c.next
	if c.filled {
		n = window
	}
	ok := 0
	for i := 0; i < n; i++ {
		if c.recent[i] {
			ok++
		}
	}
	stats.RecentCalls = n
	if n > 0 {
		stats.RecentSuccessRate = float64(ok) / float64(n)
	}
	return stats
}
