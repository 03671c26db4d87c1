package data

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPollerTicksUntilStopped(t *testing.T) {
	var ticks atomic.Int32
	p := NewPoller(5*time.Millisecond, func(context.Context) { ticks.Add(1) })

	p.Start(context.Background())
	assert.True(t, p.Running())
	assert.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, time.Millisecond)

	p.Stop()
	assert.False(t, p.Running())
	settled := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, ticks.Load(), settled+1)
}

func TestPollerStartIsIdempotent(t *testing.T) {
	var ticks atomic.Int32
	p := NewPoller(20*time.Millisecond, func(context.Context) { ticks.Add(1) })
	p.Start(context.Background())
	p.Start(context.Background())
	defer p.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, ticks.Load(), int32(3))
}

func TestPollerDisabledWithoutInterval(t *testing.T) {
	p := NewPoller(0, func(context.Context) {})
	p.Start(context.Background())
	assert.False(t, p.Running())
}

func TestPollerStopFromInsideTick(t *testing.T) {
	var p *Poller
	var ticks atomic.Int32
	p = NewPoller(5*time.Millisecond, func(context.Context) {
		ticks.Add(1)
		p.Stop()
	})
	p.Start(context.Background())
	assert.Eventually(t, func() bool { return !p.Running() }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), ticks.Load())
}

func TestPollerEndsWithParent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPoller(5*time.Millisecond, func(context.Context) {})
	p.Start(ctx)
	cancel()
	assert.Eventually(t, func() bool { return !p.Running() }, time.Second, time.Millisecond)

	// It can be started again under a live context.
	p.Start(context.Background())
	assert.True(t, p.Running())
	p.Stop()
}
