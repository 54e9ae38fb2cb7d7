package meeting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vocaris/vocaris/backend"
)

const (
	// DefaultReadinessInterval is the pause between readiness ticks.
	DefaultReadinessInterval = 5 * time.Second
	// DefaultSlowAfter is the attempt count after which polling is reported slow.
	DefaultSlowAfter = 10
	// DefaultMaxAttempts caps readiness polling. Zero disables the cap.
	DefaultMaxAttempts = 120
)

// ErrReadinessTimeout indicates the attempt cap was reached before every
// artifact was ready.
var ErrReadinessTimeout = errors.New("results are not ready yet")

// ReadinessPollerOptions configures a ReadinessPoller.
type ReadinessPollerOptions struct {
	Interval time.Duration
	// Cooldown is the wait after the meeting ends before the first probe.
	Cooldown  time.Duration
	SlowAfter int
	// MaxAttempts of zero uses DefaultMaxAttempts; negative disables the cap.
	MaxAttempts int
	// OnTick receives every completed tick.
	OnTick func(tick ReadinessTick)
	Now    func() time.Time
}

// ReadinessTick describes one readiness tick.
type ReadinessTick struct {
	Attempt   int
	Readiness Readiness
	Slow      bool
	// Done is true once every artifact that applies to the session is ready.
	Done bool
}

// ReadinessPoller probes the results endpoints of an Ended meeting until the
// chat artifact, and the scrum artifact for scrum sessions, are available.
type ReadinessPoller struct {
	lifecycle   *Lifecycle
	interval    time.Duration
	cooldown    time.Duration
	slowAfter   int
	maxAttempts int
	onTick      func(ReadinessTick)
	now         func() time.Time

	mu       sync.Mutex
	botID    string
	attempts int
}

// ReadinessPoller returns a poller bound to this lifecycle.
func (l *Lifecycle) ReadinessPoller(opts ReadinessPollerOptions) *ReadinessPoller {
	p := &ReadinessPoller{
		lifecycle:   l,
		botID:       l.botID(),
		interval:    opts.Interval,
		cooldown:    opts.Cooldown,
		slowAfter:   opts.SlowAfter,
		maxAttempts: opts.MaxAttempts,
		onTick:      opts.OnTick,
		now:         opts.Now,
	}
	if p.interval <= 0 {
		p.interval = DefaultReadinessInterval
	}
	if p.cooldown < 0 {
		p.cooldown = 0
	}
	if p.slowAfter <= 0 {
		p.slowAfter = DefaultSlowAfter
	}
	switch {
	case p.maxAttempts == 0:
		p.maxAttempts = DefaultMaxAttempts
	case p.maxAttempts < 0:
		p.maxAttempts = 0
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Attempts returns how many ticks have probed the backend.
func (p *ReadinessPoller) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// Slow reports whether polling has taken longer than usual.
func (p *ReadinessPoller) Slow() bool {
	return p.Attempts() > p.slowAfter
}

// Interval returns the pause between ticks.
func (p *ReadinessPoller) Interval() time.Duration {
	return p.interval
}

// Exhausted reports whether the attempt cap has been reached.
func (p *ReadinessPoller) Exhausted() bool {
	return p.maxAttempts > 0 && p.Attempts() >= p.maxAttempts
}

// CooldownRemaining returns how long to wait before the first probe.
func (p *ReadinessPoller) CooldownRemaining() (time.Duration, error) {
	session, err := p.lifecycle.Session()
	if err != nil {
		return 0, err
	}
	return p.remainingCooldown(session), nil
}

// Tick probes every artifact that is not ready yet and records new flags.
// Probe failures are logged and returned joined; the tick still counts.
func (p *ReadinessPoller) Tick(ctx context.Context) (ReadinessTick, error) {
	session, err := p.lifecycle.Refresh()
	if err != nil {
		return ReadinessTick{}, err
	}
	if err := p.claim(session); err != nil {
		return ReadinessTick{}, err
	}
	if p.lifecycle.Phase() != PhaseEnded {
		return ReadinessTick{}, ErrNotEnded
	}
	store := p.lifecycle.store
	readiness, err := store.Readiness(session.BotID)
	if err != nil {
		return ReadinessTick{}, err
	}
	if done(session, readiness) {
		return p.tick(session, readiness), nil
	}

	p.mu.Lock()
	p.attempts++
	p.mu.Unlock()

	var chat, scrum bool
	var errs error
	if !readiness.ChatReady {
		results, err := p.probe(ctx, session, backend.ModeSimple)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("chat probe: %w", err))
		}
		chat = results.ChatReady()
	}
	if session.IsScrum && !readiness.ScrumReady {
		results, err := p.probe(ctx, session, backend.ModeScrum)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("scrum probe: %w", err))
		}
		scrum = results.ScrumReady()
	}
	if errs != nil {
		p.lifecycle.logger.Printf("readiness tick for %s: %v", session.BotID, errs)
	}

	if chat || scrum {
		readiness, err = store.MarkReady(session.BotID, chat, scrum)
		if err != nil {
			return ReadinessTick{}, err
		}
	}
	tick := p.tick(session, readiness)
	if p.onTick != nil {
		p.onTick(tick)
	}
	return tick, errs
}

// Run waits out the cooldown, then ticks until every applicable artifact is
// ready, the attempt cap is reached, or ctx is cancelled.
func (p *ReadinessPoller) Run(ctx context.Context) (Readiness, error) {
	session, err := p.lifecycle.Refresh()
	if err != nil {
		return Readiness{}, err
	}
	if err := p.claim(session); err != nil {
		return Readiness{}, err
	}
	if p.lifecycle.Phase() != PhaseEnded {
		return Readiness{}, ErrNotEnded
	}
	if err := sleep(ctx, p.remainingCooldown(session)); err != nil {
		return Readiness{}, err
	}

	for {
		tick, err := p.Tick(ctx)
		if tick.Done {
			return tick.Readiness, nil
		}
		if errors.Is(err, ErrNoSession) || errors.Is(err, ErrNotEnded) || errors.Is(err, ErrSessionMismatch) {
			return tick.Readiness, err
		}
		if ctx.Err() != nil {
			return tick.Readiness, ctx.Err()
		}
		if p.Exhausted() {
			return tick.Readiness, fmt.Errorf("%w after %d attempts", ErrReadinessTimeout, p.Attempts())
		}
		if err := sleep(ctx, p.interval); err != nil {
			return tick.Readiness, err
		}
	}
}

// claim binds the poller to the first bot it sees and rejects any other.
func (p *ReadinessPoller) claim(session Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.botID == "" {
		p.botID = session.BotID
	}
	if session.BotID != p.botID {
		return fmt.Errorf("%w: waiting on %s, slot holds %s", ErrSessionMismatch, p.botID, session.BotID)
	}
	return nil
}

func (p *ReadinessPoller) remainingCooldown(session Session) time.Duration {
	if session.EndedAt.IsZero() {
		return p.cooldown
	}
	remaining := session.EndedAt.Add(p.cooldown).Sub(p.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (p *ReadinessPoller) probe(ctx context.Context, session Session, mode backend.Mode) (backend.Results, error) {
	return p.lifecycle.backend.Transcripts(ctx, backend.TranscriptQuery{
		BotID:     session.BotID,
		SessionID: session.SessionID,
		Mode:      mode,
	})
}

func (p *ReadinessPoller) tick(session Session, readiness Readiness) ReadinessTick {
	return ReadinessTick{
		Attempt:   p.Attempts(),
		Readiness: readiness,
		Slow:      p.Slow(),
		Done:      done(session, readiness),
	}
}

func done(session Session, readiness Readiness) bool {
	if !readiness.ChatReady {
		return false
	}
	return !session.IsScrum || readiness.ScrumReady
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
