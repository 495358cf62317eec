package scheduler

import (
	"context"
	"log/slog"
	"time"
)

const DefaultPollInterval = 30 * time.Second

// PollFunc is invoked on every poller tick with the tick time.
type PollFunc func(ctx context.Context, now time.Time) error

// Poller is the in-process backstop for a NotificationPort that may not
// deliver: it periodically asks the scheduler for everything already due.
type Poller struct {
	interval time.Duration
	poll     PollFunc
	resume   PollFunc
	now      func() time.Time
	last     time.Time
	logger   *slog.Logger
}

func NewPoller(interval time.Duration, poll PollFunc, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{interval: interval, poll: poll, now: time.Now, logger: logger.With("component", "poller")}
}

// OnResume sets the pass run instead of the regular poll when the wall clock
// moved by more than two intervals since the previous tick. Monotonic timers
// stall while the machine sleeps, so this is how a wake is noticed.
func (p *Poller) OnResume(fn PollFunc) *Poller {
	p.resume = fn
	return p
}

// Run polls once immediately and then on every tick until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ticker.C:
			p.tick(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	// Round(0) strips the monotonic reading so the gap is wall-clock time.
	now := p.now().Round(0)
	fn := p.poll
	if p.resume != nil && !p.last.IsZero() {
		if gap := now.Sub(p.last); gap > 2*p.interval || gap < -p.interval {
			p.logger.Info("wall clock jumped, resuming", "gap", gap.Round(time.Second))
			fn = p.resume
		}
	}
	p.last = now
	if err := fn(ctx, now); err != nil && ctx.Err() == nil {
		p.logger.Warn("poll failed", "error", err)
	}
}
