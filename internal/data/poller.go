package data

import (
	"context"
	"sync"
	"time"
)

// Poller runs tick on a fixed interval in its own goroutine until stopped.
// Ticks never overlap: the next interval starts after tick returns.
//
// A Poller can be started and stopped any number of times. Stop does not
// wait for a running tick, so it is safe to call from inside one.
type Poller struct {
	mu       sync.Mutex
	interval time.Duration
	tick     func(ctx context.Context)
	cancel   context.CancelFunc
	runs     uint64 // incremented per Start; ties goroutines to their run
}

// NewPoller creates a stopped poller. An interval <= 0 disables it.
func NewPoller(interval time.Duration, tick func(ctx context.Context)) *Poller {
	return &Poller{interval: interval, tick: tick}
}

// Interval returns the configured interval.
func (p *Poller) Interval() time.Duration { return p.interval }

// Start begins polling under parent. It is a no-op when already running.
func (p *Poller) Start(parent context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil || p.interval <= 0 || p.tick == nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	p.cancel = cancel
	p.runs++
	go p.loop(ctx, p.runs)
}

// Stop cancels the running loop, if any.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// Running reports whether a loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Poller) loop(ctx context.Context, run uint64) {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	defer func() {
		// Parent cancellation ends the loop without Stop; release our
		// slot unless a newer run already took it.
		p.mu.Lock()
		if p.runs == run && p.cancel != nil {
			p.cancel()
			p.cancel = nil
		}
		p.mu.Unlock()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if ctx.Err() != nil {
				return
			}
			p.tick(ctx)
		}
	}
}
