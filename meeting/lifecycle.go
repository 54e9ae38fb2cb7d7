// Package meeting drives one meeting from start to generated results.
//
// A Lifecycle owns the single session slot and moves it through Idle, Active,
// and Ended. While Active a StatusPoller watches the bot; once Ended a
// ReadinessPoller waits for the chat and scrum artifacts, and a Dispatcher
// unlocks each action when its artifact is ready.
package meeting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/vocaris/vocaris/backend"
	"github.com/vocaris/vocaris/internal/state"
)

// Session is the persisted record of the current meeting.
type Session = state.Session

// Readiness holds the monotonic artifact flags for a session.
type Readiness = state.Readiness

var (
	// ErrNoSession indicates there is no meeting to act on.
	ErrNoSession = state.ErrNoSession
	// ErrNotActive indicates the meeting is not in the Active phase.
	ErrNotActive = errors.New("meeting is not active")
	// ErrNotEnded indicates the meeting has not been finalized yet.
	ErrNotEnded = errors.New("meeting has not ended")
	// ErrSessionMismatch indicates the session slot now belongs to another
	// bot, usually because a newer meeting was started elsewhere.
	ErrSessionMismatch = state.ErrSessionMismatch
)

// Backend is the subset of the upstream API the lifecycle needs.
type Backend interface {
	StartMeeting(ctx context.Context, request backend.StartRequest) (backend.StartResponse, error)
	EndMeeting(ctx context.Context, botID string) error
	Status(ctx context.Context, botID string) (backend.MeetingStatus, error)
	Transcripts(ctx context.Context, query backend.TranscriptQuery) (backend.Results, error)
}

// Store is the single-slot session repository.
type Store interface {
	Session() (Session, error)
	SetSession(session Session) error
	ClearSession() error
	MarkEnded(botID string) (bool, error)
	Readiness(botID string) (Readiness, error)
	MarkReady(botID string, chat, scrum bool) (Readiness, error)
}

// Phase is the lifecycle position of the current meeting.
type Phase int

const (
	// PhaseIdle means no session exists.
	PhaseIdle Phase = iota
	// PhaseActive means the bot is in (or joining) the call.
	PhaseActive
	// PhaseEnded means the meeting was finalized and results are pending.
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseActive:
		return "active"
	case PhaseEnded:
		return "ended"
	default:
		return "idle"
	}
}

// Options configures a Lifecycle.
type Options struct {
	Backend Backend
	Store   Store
	// Logger receives skipped ticks and swallowed failures. Nil discards.
	Logger *log.Logger
}

// Lifecycle is the meeting state machine.
type Lifecycle struct {
	backend Backend
	store   Store
	logger  *log.Logger

	mu      sync.Mutex
	phase   Phase
	session Session
}

// New loads the current session from the store and derives its phase.
func New(opts Options) (*Lifecycle, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	l := &Lifecycle{backend: opts.Backend, store: opts.Store, logger: logger}

	session, err := opts.Store.Session()
	switch {
	case errors.Is(err, ErrNoSession):
		l.phase = PhaseIdle
	case err != nil:
		return nil, err
	case session.Ended():
		l.phase, l.session = PhaseEnded, session
	default:
		l.phase, l.session = PhaseActive, session
	}
	return l, nil
}

// Phase returns the current phase.
func (l *Lifecycle) Phase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase
}

// Session returns the current session, or ErrNoSession when idle.
func (l *Lifecycle) Session() (Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase == PhaseIdle {
		return Session{}, ErrNoSession
	}
	return l.session, nil
}

// Refresh reloads the session slot from the store so changes made by other
// processes, such as an end or a new start, become visible.
func (l *Lifecycle) Refresh() (Session, error) {
	session, err := l.store.Session()
	if err != nil && !errors.Is(err, ErrNoSession) {
		return Session{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case err != nil:
		l.phase, l.session = PhaseIdle, Session{}
		return Session{}, ErrNoSession
	case session.Ended():
		l.phase, l.session = PhaseEnded, session
	default:
		l.phase, l.session = PhaseActive, session
	}
	return session, nil
}

func (l *Lifecycle) botID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session.BotID
}

// Start sends a bot into the meeting and replaces the session slot. Any
// previous session and its readiness flags are discarded.
func (l *Lifecycle) Start(ctx context.Context, request backend.StartRequest) (Session, error) {
	response, err := l.backend.StartMeeting(ctx, request)
	if err != nil {
		return Session{}, err
	}
	session := Session{
		BotID:      response.BotID,
		SessionID:  response.SessionID,
		MeetingURL: response.MeetingURL,
		IsScrum:    response.IsScrum,
	}
	if err := l.store.SetSession(session); err != nil {
		return Session{}, fmt.Errorf("save session: %w", err)
	}
	stored, err := l.store.Session()
	if err != nil {
		return Session{}, err
	}

	l.mu.Lock()
	l.phase, l.session = PhaseActive, stored
	l.mu.Unlock()
	return stored, nil
}

// Reset clears the session slot.
func (l *Lifecycle) Reset() error {
	if err := l.store.ClearSession(); err != nil {
		return err
	}
	l.mu.Lock()
	l.phase, l.session = PhaseIdle, Session{}
	l.mu.Unlock()
	return nil
}

// FinalizeOptions selects the end-of-meeting discipline.
type FinalizeOptions struct {
	// Confirm asks the backend to remove the bot before ending locally. A
	// not-found answer counts as success; any other failure keeps the
	// meeting Active.
	Confirm bool
}

// Finalize moves an Active meeting to Ended. By default the transition is
// immediate and a single results fetch with auto_process=true is sent, whose
// failure is ignored. It reports false when the meeting had already ended.
func (l *Lifecycle) Finalize(ctx context.Context, opts FinalizeOptions) (bool, error) {
	session, err := l.Session()
	if err != nil {
		return false, err
	}
	if l.Phase() == PhaseEnded {
		return false, nil
	}

	if opts.Confirm {
		if err := l.backend.EndMeeting(ctx, session.BotID); err != nil && !backend.IsNotFound(err) {
			return false, fmt.Errorf("end meeting: %w", err)
		}
		return l.markEnded(session.BotID)
	}

	ended, err := l.markEnded(session.BotID)
	if err != nil || !ended {
		return ended, err
	}
	if _, err := l.backend.Transcripts(ctx, finalQuery(session)); err != nil {
		l.logger.Printf("final results fetch for %s failed: %v", session.BotID, err)
	}
	return true, nil
}

// markEnded performs the Active to Ended transition at most once.
func (l *Lifecycle) markEnded(botID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase != PhaseActive || l.session.BotID != botID {
		return false, nil
	}
	if _, err := l.store.MarkEnded(botID); err != nil {
		return false, fmt.Errorf("save ended session: %w", err)
	}
	stored, err := l.store.Session()
	if err != nil {
		return false, err
	}
	l.phase, l.session = PhaseEnded, stored
	return true, nil
}

func finalQuery(session Session) backend.TranscriptQuery {
	return backend.TranscriptQuery{
		BotID:       session.BotID,
		SessionID:   session.SessionID,
		Mode:        sessionMode(session),
		AutoProcess: true,
	}
}

func sessionMode(session Session) backend.Mode {
	if session.IsScrum {
		return backend.ModeScrum
	}
	return backend.ModeSimple
}
