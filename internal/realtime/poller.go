package realtime

import (
	"context"
	"sync"
	"time"
)

// Fallback polling defaults.
const (
	DefaultPollFloor   = 2 * time.Second
	DefaultPollCeiling = 30 * time.Second
	DefaultPollFactor  = 1.5
)

// PollFunc queries the store for rows newer than the local watermark
// and returns how many it applied.
type PollFunc func(ctx context.Context) (int, error)

// Poller guarantees eventual delivery while the push channel is down.
// It owns its timer: polls never overlap, and the next poll is
// scheduled only after the previous one completes. Stop is permanent
// and idempotent.
type Poller struct {
	floor   time.Duration
	ceiling time.Duration
	factor  float64

	interval time.Duration
	poll     PollFunc

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewPoller(floor, ceiling time.Duration, factor float64, poll PollFunc) *Poller {
	if floor <= 0 {
		floor = DefaultPollFloor
	}
	if ceiling <= 0 {
		ceiling = DefaultPollCeiling
	}
	if factor <= 1 {
		factor = DefaultPollFactor
	}

	return &Poller{
		floor:    floor,
		ceiling:  ceiling,
		factor:   factor,
		interval: floor,
		poll:     poll,
		stopCh:   make(chan struct{}),
	}
}

// Run polls until stopped or the context is cancelled. The first poll
// fires after the floor interval; afterwards the interval backs off on
// empty polls and snaps back to the floor when rows arrive.
func (p *Poller) Run(ctx context.Context) {
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-timer.C:
		}

		delivered, err := p.poll(ctx)

		timer.Reset(p.advance(delivered, err))
	}
}

// Stop halts polling permanently. Safe to call any number of times,
// from any goroutine.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
}

// advance computes the next poll interval: a poll that delivered rows
// resets to the floor, an empty or failed poll multiplies by the
// backoff factor up to the ceiling.
func (p *Poller) advance(delivered int, err error) time.Duration {
	if err == nil && delivered > 0 {
		p.interval = p.floor
		return p.interval
	}

	next := time.Duration(float64(p.interval) * p.factor)
	if next > p.ceiling {
		next = p.ceiling
	}
	p.interval = next
	return p.interval
}
