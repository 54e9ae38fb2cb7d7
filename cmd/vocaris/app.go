package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/vocaris/vocaris/backend"
	"github.com/vocaris/vocaris/internal/config"
	"github.com/vocaris/vocaris/internal/ledger"
	"github.com/vocaris/vocaris/internal/paths"
	"github.com/vocaris/vocaris/internal/state"
	"github.com/vocaris/vocaris/meeting"
)

var errNoMeeting = errors.New("no active meeting; run `vocaris start <meeting-url>` first")

// app carries the configuration and state shared by every command.
type app struct {
	cfg      *config.Config
	stateDir string
	store    *state.Store
}

func loadApp() (*app, error) {
	cwd, err := paths.WorkingDir()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, err
	}
	stateDir, err := paths.DefaultStateDir()
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, stateDir: stateDir, store: state.NewStore(stateDir)}, nil
}

func (a *app) logger() *log.Logger {
	if !rootVerbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "vocaris: ", log.LstdFlags)
}

// client returns a backend client carrying the stored auth token.
func (a *app) client() (*backend.Client, error) {
	st, err := a.store.Load()
	if err != nil {
		return nil, err
	}
	return backend.NewClient(backend.Options{
		BaseURL: a.cfg.Backend.BaseURL,
		Token:   st.Token,
		Timeout: a.cfg.Backend.Timeout.Duration,
	}), nil
}

func (a *app) lifecycle() (*meeting.Lifecycle, *backend.Client, error) {
	client, err := a.client()
	if err != nil {
		return nil, nil, err
	}
	lc, err := meeting.New(meeting.Options{Backend: client, Store: a.store, Logger: a.logger()})
	if err != nil {
		return nil, nil, err
	}
	return lc, client, nil
}

func (a *app) statusOptions() meeting.StatusPollerOptions {
	return meeting.StatusPollerOptions{
		Interval:          a.cfg.Poll.StatusInterval.Duration,
		InactiveThreshold: a.cfg.Poll.InactiveThreshold,
	}
}

func (a *app) readinessOptions(onTick func(meeting.ReadinessTick)) meeting.ReadinessPollerOptions {
	maxAttempts := a.cfg.Poll.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = -1
	}
	return meeting.ReadinessPollerOptions{
		Interval:    a.cfg.Poll.ReadinessInterval.Duration,
		Cooldown:    a.cfg.Poll.Cooldown.Duration,
		SlowAfter:   a.cfg.Poll.SlowAfter,
		MaxAttempts: maxAttempts,
		OnTick:      onTick,
	}
}

func (a *app) openLedger(ctx context.Context) (*ledger.Ledger, error) {
	return ledger.Open(ctx, ledger.Path(a.stateDir))
}

// recordMeeting writes the session to the local ledger. Failures only warn;
// the ledger is a convenience record.
func (a *app) recordMeeting(ctx context.Context, session meeting.Session) {
	l, err := a.openLedger(ctx)
	if err != nil {
		warnf("open ledger: %v", err)
		return
	}
	defer l.Close()
	if err := l.RecordMeeting(ctx, session); err != nil {
		warnf("%v", err)
	}
}

// currentSession returns the stored session or errNoMeeting.
func currentSession(lc *meeting.Lifecycle) (meeting.Session, error) {
	session, err := lc.Session()
	if errors.Is(err, meeting.ErrNoSession) {
		return meeting.Session{}, errNoMeeting
	}
	if err != nil {
		return meeting.Session{}, fmt.Errorf("load session: %w", err)
	}
	return session, nil
}

func sessionMode(session meeting.Session) string {
	if session.IsScrum {
		return "scrum"
	}
	return "chat"
}
