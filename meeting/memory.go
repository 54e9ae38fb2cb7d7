package meeting

import (
	"fmt"
	"sync"
	"time"

	"github.com/vocaris/vocaris/internal/state"
)

// MemoryStore is an in-process Store for callers that do not need the
// session to outlive the process.
type MemoryStore struct {
	mu        sync.Mutex
	session   *Session
	readiness Readiness
	now       func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) Session() (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return Session{}, ErrNoSession
	}
	return *s.session, nil
}

func (s *MemoryStore) SetSession(session Session) error {
	if session.BotID == "" {
		return fmt.Errorf("bot id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.StartedAt.IsZero() {
		session.StartedAt = s.now().UTC()
	}
	s.session = &session
	s.readiness = Readiness{BotID: session.BotID}
	return nil
}

func (s *MemoryStore) ClearSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	s.readiness = Readiness{}
	return nil
}

func (s *MemoryStore) MarkEnded(botID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || s.session.BotID != botID {
		return false, fmt.Errorf("%w: %s", state.ErrSessionMismatch, botID)
	}
	if s.session.Ended() {
		return false, nil
	}
	s.session.EndedAt = s.now().UTC()
	return true, nil
}

func (s *MemoryStore) Readiness(botID string) (Readiness, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readiness.BotID != botID {
		return Readiness{BotID: botID}, nil
	}
	return s.readiness, nil
}

func (s *MemoryStore) MarkReady(botID string, chat, scrum bool) (Readiness, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || s.session.BotID != botID {
		return Readiness{}, fmt.Errorf("%w: %s", state.ErrSessionMismatch, botID)
	}
	s.readiness.BotID = botID
	s.readiness.ChatReady = s.readiness.ChatReady || chat
	s.readiness.ScrumReady = s.readiness.ScrumReady || scrum
	return s.readiness, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*state.Store)(nil)
)
