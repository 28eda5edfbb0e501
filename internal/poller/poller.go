// Package poller runs a callback on a fixed interval, firing once
// immediately on start.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Poller owns at most one polling loop at a time.
type Poller struct {
	clock clockwork.Clock
	tick  func(ctx context.Context)

	mu       sync.Mutex
	cancel   context.CancelFunc
	interval time.Duration
}

// New returns an idle Poller that calls tick on each interval. tick receives
// a context cancelled when the loop is stopped or replaced.
func New(clock clockwork.Clock, tick func(ctx context.Context)) *Poller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Poller{clock: clock, tick: tick}
}

// Start replaces any running loop with one that ticks now and then every
// interval. The ticker is armed before Start returns.
func (p *Poller) Start(interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	ctx, cancel := context.WithCancel(context.Background())
	ticker := p.clock.NewTicker(interval)
	p.cancel = cancel
	p.interval = interval
	go p.run(ctx, ticker)
}

// Stop cancels the loop without waiting for an in-flight tick.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// Active reports whether a loop is armed.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Interval returns the interval of the armed loop, or 0.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

func (p *Poller) stopLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
		p.interval = 0
	}
}

func (p *Poller) run(ctx context.Context, ticker clockwork.Ticker) {
	defer ticker.Stop()

	if ctx.Err() != nil {
		return
	}
	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if ctx.Err() != nil {
				return
			}
			p.tick(ctx)
		}
	}
}
