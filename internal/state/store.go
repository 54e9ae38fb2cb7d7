package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	internalstrings "github.com/vocaris/vocaris/internal/strings"
)

var (
	// ErrNoSession indicates the session slot is empty.
	ErrNoSession = errors.New("no active meeting session")
	// ErrSessionMismatch indicates a write for a bot that no longer owns the slot.
	ErrSessionMismatch = errors.New("session belongs to a different bot")
)

// Store manages the state file with locking.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore creates a new state store using the given directory.
func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// statePath returns the path to the state file.
func (s *Store) statePath() string {
	return filepath.Join(s.dir, "state.json")
}

// lockPath returns the path to the lock file.
func (s *Store) lockPath() string {
	return filepath.Join(s.dir, "state.lock")
}

// Load reads the state from disk. Returns an empty state if the file doesn't exist.
func (s *Store) Load() (*State, error) {
	data, err := os.ReadFile(s.statePath())
	if os.IsNotExist(err) {
		return &State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &st, nil
}

// Save writes the state to disk.
func (s *Store) Save(st *State) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if existing, err := os.ReadFile(s.statePath()); err == nil {
		if bytes.Equal(existing, data) {
			return nil
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read state file: %w", err)
	}

	// Write atomically via temp file
	tmpFile, err := os.CreateTemp(s.dir, filepath.Base(s.statePath())+".tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	name := tmpFile.Name()
	_, err = tmpFile.Write(data)
	if err1 := tmpFile.Close(); err1 != nil && err == nil {
		err = err1
	}
	if err != nil {
		os.Remove(name)
		return fmt.Errorf("write temp state file: %w", err)
	}

	if err := os.Rename(name, s.statePath()); err != nil {
		os.Remove(name)
		return fmt.Errorf("rename state file: %w", err)
	}

	return nil
}

// Update atomically reads, modifies, and writes the state with file locking.
func (s *Store) Update(fn func(st *State) error) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	lockFile, err := os.OpenFile(s.lockPath(), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer lockFile.Close()

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN)

	st, err := s.Load()
	if err != nil {
		return err
	}

	if err := fn(st); err != nil {
		return err
	}
	st.UpdatedAt = s.now().UTC()

	return s.Save(st)
}

// Session returns the active session or ErrNoSession.
func (s *Store) Session() (Session, error) {
	st, err := s.Load()
	if err != nil {
		return Session{}, err
	}
	if st.Session == nil || internalstrings.IsBlank(st.Session.BotID) {
		return Session{}, ErrNoSession
	}
	return *st.Session, nil
}

// SetSession replaces the session slot and resets readiness for the new bot.
func (s *Store) SetSession(session Session) error {
	if internalstrings.IsBlank(session.BotID) {
		return fmt.Errorf("bot id is required")
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = s.now().UTC()
	}
	return s.Update(func(st *State) error {
		st.Session = &session
		st.Readiness = Readiness{BotID: session.BotID}
		return nil
	})
}

// ClearSession empties the session slot and its readiness flags.
func (s *Store) ClearSession() error {
	return s.Update(func(st *State) error {
		st.Session = nil
		st.Readiness = Readiness{}
		return nil
	})
}

// MarkEnded records that botID's meeting was finalized. It reports false when
// the session was already ended.
func (s *Store) MarkEnded(botID string) (bool, error) {
	changed := false
	err := s.Update(func(st *State) error {
		if st.Session == nil || st.Session.BotID != botID {
			return fmt.Errorf("%w: %s", ErrSessionMismatch, botID)
		}
		if st.Session.Ended() {
			return nil
		}
		st.Session.EndedAt = s.now().UTC()
		changed = true
		return nil
	})
	return changed, err
}

// Readiness returns the stored flags for botID. Flags recorded for another
// bot are reported as not ready.
func (s *Store) Readiness(botID string) (Readiness, error) {
	st, err := s.Load()
	if err != nil {
		return Readiness{}, err
	}
	if st.Readiness.BotID != botID {
		return Readiness{BotID: botID}, nil
	}
	return st.Readiness, nil
}

// MarkReady sets the given flags for botID. Flags only move from false to
// true; passing false leaves a stored true untouched.
func (s *Store) MarkReady(botID string, chat, scrum bool) (Readiness, error) {
	var result Readiness
	err := s.Update(func(st *State) error {
		if st.Session == nil || st.Session.BotID != botID {
			return fmt.Errorf("%w: %s", ErrSessionMismatch, botID)
		}
		if st.Readiness.BotID != botID {
			st.Readiness = Readiness{BotID: botID}
		}
		st.Readiness.ChatReady = st.Readiness.ChatReady || chat
		st.Readiness.ScrumReady = st.Readiness.ScrumReady || scrum
		result = st.Readiness
		return nil
	})
	return result, err
}

// SetToken stores the backend auth token and user label.
func (s *Store) SetToken(token, user string) error {
	return s.Update(func(st *State) error {
		st.Token = internalstrings.TrimSpace(token)
		st.User = internalstrings.TrimSpace(user)
		return nil
	})
}

// SetClickUpToken stores the active ClickUp access token.
func (s *Store) SetClickUpToken(token string) error {
	return s.Update(func(st *State) error {
		st.ClickUpToken = internalstrings.TrimSpace(token)
		return nil
	})
}

// SetTheme stores the display preference.
func (s *Store) SetTheme(theme Theme) error {
	if !theme.IsValid() {
		return fmt.Errorf("invalid theme %q", theme)
	}
	return s.Update(func(st *State) error {
		st.Theme = theme
		return nil
	})
}
