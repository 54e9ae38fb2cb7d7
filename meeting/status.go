package meeting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vocaris/vocaris/backend"
)

const (
	// DefaultStatusInterval is the pause between status ticks.
	DefaultStatusInterval = 5 * time.Second
	// DefaultInactiveThreshold is how many consecutive inactive snapshots are
	// tolerated; one more ends the meeting.
	DefaultInactiveThreshold = 3
)

// ErrTickInFlight indicates a tick was skipped because another was running.
var ErrTickInFlight = errors.New("status tick already in flight")

// StatusPollerOptions configures a StatusPoller.
type StatusPollerOptions struct {
	Interval          time.Duration
	InactiveThreshold int
	// OnStatus receives every successful snapshot.
	OnStatus func(status backend.MeetingStatus)
	// OnEnded is called once when the poller ends the meeting.
	OnEnded func(session Session)
}

// TickResult describes one status tick.
type TickResult struct {
	Status              backend.MeetingStatus
	ConsecutiveInactive int
	Ended               bool
}

// StatusPoller watches an Active meeting and ends it after the bot has
// reported inactive too many times in a row.
type StatusPoller struct {
	lifecycle *Lifecycle
	interval  time.Duration
	threshold int
	onStatus  func(backend.MeetingStatus)
	onEnded   func(Session)

	inFlight atomic.Bool

	mu       sync.Mutex
	botID    string
	inactive int
	latest   *backend.MeetingStatus
}

// StatusPoller returns a poller bound to this lifecycle.
func (l *Lifecycle) StatusPoller(opts StatusPollerOptions) *StatusPoller {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultStatusInterval
	}
	threshold := opts.InactiveThreshold
	if threshold <= 0 {
		threshold = DefaultInactiveThreshold
	}
	return &StatusPoller{
		lifecycle: l,
		botID:     l.botID(),
		interval:  interval,
		threshold: threshold,
		onStatus:  opts.OnStatus,
		onEnded:   opts.OnEnded,
	}
}

// Interval returns the pause between ticks.
func (p *StatusPoller) Interval() time.Duration {
	return p.interval
}

// Latest returns the most recent snapshot, if any.
func (p *StatusPoller) Latest() (backend.MeetingStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest == nil {
		return backend.MeetingStatus{}, false
	}
	return *p.latest, true
}

// ConsecutiveInactive returns the current inactive streak.
func (p *StatusPoller) ConsecutiveInactive() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inactive
}

// Tick fetches one status snapshot. The session is reloaded from the store
// first, so a meeting ended elsewhere reports Ended and a slot taken over by
// another bot returns ErrSessionMismatch. Transport and upstream failures
// are returned without touching the inactive streak. A tick that overlaps
// another returns ErrTickInFlight.
func (p *StatusPoller) Tick(ctx context.Context) (TickResult, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return TickResult{}, ErrTickInFlight
	}
	defer p.inFlight.Store(false)

	session, err := p.lifecycle.Refresh()
	if err != nil {
		return TickResult{}, err
	}
	if err := p.claim(session); err != nil {
		return TickResult{}, err
	}
	if p.lifecycle.Phase() != PhaseActive {
		return TickResult{Ended: true}, ErrNotActive
	}

	status, err := p.lifecycle.backend.Status(ctx, session.BotID)
	if err != nil {
		p.lifecycle.logger.Printf("status tick for %s skipped: %v", session.BotID, err)
		return TickResult{ConsecutiveInactive: p.ConsecutiveInactive()}, err
	}

	p.mu.Lock()
	p.latest = &status
	if status.IsActive {
		p.inactive = 0
	} else {
		p.inactive++
	}
	result := TickResult{Status: status, ConsecutiveInactive: p.inactive}
	p.mu.Unlock()

	if p.onStatus != nil {
		p.onStatus(status)
	}
	if result.ConsecutiveInactive <= p.threshold {
		return result, nil
	}

	ended, err := p.lifecycle.markEnded(session.BotID)
	if errors.Is(err, ErrSessionMismatch) {
		return result, err
	}
	if err != nil {
		return result, err
	}
	result.Ended = true
	if ended && p.onEnded != nil {
		final, _ := p.lifecycle.Session()
		p.onEnded(final)
	}
	return result, nil
}

// Run ticks immediately and then on every interval until the meeting ends
// or ctx is cancelled. Failed ticks are skipped.
func (p *StatusPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		result, err := p.Tick(ctx)
		switch {
		case result.Ended:
			return nil
		case errors.Is(err, ErrNoSession), errors.Is(err, ErrSessionMismatch):
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// claim binds the poller to the first bot it sees and rejects any other.
func (p *StatusPoller) claim(session Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.botID == "" {
		p.botID = session.BotID
	}
	if session.BotID != p.botID {
		return fmt.Errorf("%w: watching %s, slot holds %s", ErrSessionMismatch, p.botID, session.BotID)
	}
	return nil
}
