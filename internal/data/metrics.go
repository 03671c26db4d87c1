package data

import (
	"slices"
	"sync"
	"time"
)

// FetchEventType classifies fetch events.
type FetchEventType int

const (
	FetchStart FetchEventType = iota
	FetchComplete
	FetchError
)

// FetchEvent records a single fetch event.
type FetchEvent struct {
	Timestamp time.Time
	Key       string
	EventType FetchEventType
	Duration  time.Duration
	DataSize  int
}

// KeyStats holds aggregate statistics for a single key.
type KeyStats struct {
	FetchCount  int
	ErrorCount  int
	TotalTimeMs int64
	LastFetch   time.Time
}

// ServeEvent records what a reader was shown when a key was loaded.
type ServeEvent struct {
	Timestamp time.Time
	Key       string
	Quality   float64 // see Source.Quality
}

// MetricsSummary provides a point-in-time snapshot of fetch health.
type MetricsSummary struct {
	ActiveKeys int
	P50Latency time.Duration
	ErrorRate  float64
	Apdex      float64
}

// Metrics collects fetch telemetry for the status line.
type Metrics struct {
	mu     sync.RWMutex
	events []FetchEvent // ring buffer, last 100
	stats  map[string]*KeyStats
	serves []ServeEvent // last 20 loads
}

// NewMetrics creates an empty metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{stats: make(map[string]*KeyStats)}
}

const maxEvents = 100
const maxServes = 20

// Record adds a fetch event to the ring buffer and updates stats.
func (m *Metrics) Record(e FetchEvent) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.events) >= maxEvents {
		m.events = m.events[1:]
	}
	m.events = append(m.events, e)

	if e.EventType == FetchComplete || e.EventType == FetchError {
		s, ok := m.stats[e.Key]
		if !ok {
			s = &KeyStats{}
			m.stats[e.Key] = s
		}
		s.FetchCount++
		s.TotalTimeMs += e.Duration.Milliseconds()
		s.LastFetch = e.Timestamp
		if e.EventType == FetchError {
			s.ErrorCount++
		}
	}
}

// RecordServe logs the quality of data shown for a load.
func (m *Metrics) RecordServe(e ServeEvent) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.serves) >= maxServes {
		m.serves = m.serves[1:]
	}
	m.serves = append(m.serves, e)
}

// Stats returns a copy of the aggregate stats for key.
func (m *Metrics) Stats(key string) (KeyStats, bool) {
	if m == nil {
		return KeyStats{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stats[key]
	if !ok {
		return KeyStats{}, false
	}
	return *s, true
}

// Summary returns aggregate metrics for status line display.
func (m *Metrics) Summary() MetricsSummary {
	if m == nil {
		return MetricsSummary{Apdex: 1.0}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := MetricsSummary{
		ActiveKeys: len(m.stats),
	}

	// p50 over the most recent completions
	var latencies []time.Duration
	var errors int
	var total int
	for i := len(m.events) - 1; i >= 0 && len(latencies) < 50; i-- {
		e := m.events[i]
		switch e.EventType {
		case FetchComplete:
			latencies = append(latencies, e.Duration)
			total++
		case FetchError:
			errors++
			total++
		default:
		}
	}

	if len(latencies) > 0 {
		slices.Sort(latencies)
		summary.P50Latency = latencies[len(latencies)/2]
	}
	if total > 0 {
		summary.ErrorRate = float64(errors) / float64(total)
	}

	summary.Apdex = m.apdex()
	return summary
}

func (m *Metrics) apdex() float64 {
	if len(m.serves) == 0 {
		return 1.0
	}
	var sum float64
	for _, s := range m.serves {
		sum += s.Quality
	}
	return sum / float64(len(m.serves))
}
