package data

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSummary(t *testing.T) {
	m := NewMetrics()
	now := time.Now()
	for i, d := range []time.Duration{30, 10, 20} {
		m.Record(FetchEvent{Timestamp: now, Key: "k", EventType: FetchStart})
		m.Record(FetchEvent{Timestamp: now.Add(time.Duration(i)), Key: "k", EventType: FetchComplete, Duration: d * time.Millisecond})
	}
	m.Record(FetchEvent{Timestamp: now, Key: "j", EventType: FetchError, Duration: time.Millisecond})

	s := m.Summary()
	assert.Equal(t, 2, s.ActiveKeys)
	assert.Equal(t, 20*time.Millisecond, s.P50Latency)
	assert.InDelta(t, 0.25, s.ErrorRate, 0.001)
	assert.InDelta(t, 1.0, s.Apdex, 0.001)
}

func TestMetricsApdexFromServes(t *testing.T) {
	m := NewMetrics()
	m.RecordServe(ServeEvent{Key: "a", Quality: SourceNetwork.Quality()})
	m.RecordServe(ServeEvent{Key: "b", Quality: SourcePersistent.Quality()})
	m.RecordServe(ServeEvent{Key: "c", Quality: SourceNone.Quality()})
	assert.InDelta(t, 0.5, m.Summary().Apdex, 0.001)
}

func TestMetricsRingBufferBounded(t *testing.T) {
	m := NewMetrics()
	for range maxEvents + 50 {
		m.Record(FetchEvent{Key: "k", EventType: FetchStart})
	}
	assert.Len(t, m.events, maxEvents)
}

func TestMetricsNilIsSafe(t *testing.T) {
	var m *Metrics
	m.Record(FetchEvent{})
	m.RecordServe(ServeEvent{})
	assert.InDelta(t, 1.0, m.Summary().Apdex, 0.001)
}
