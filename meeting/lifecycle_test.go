package meeting

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/vocaris/vocaris/backend"
	"github.com/vocaris/vocaris/internal/state"
)

func newLifecycle(t *testing.T, fake *fakeBackend, store Store) *Lifecycle {
	t.Helper()
	lifecycle, err := New(Options{Backend: fake, Store: store})
	if err != nil {
		t.Fatalf("new lifecycle: %v", err)
	}
	return lifecycle
}

func startedLifecycle(t *testing.T, fake *fakeBackend, isScrum bool) *Lifecycle {
	t.Helper()
	fake.start = backend.StartResponse{BotID: "b1", SessionID: "s1", IsScrum: isScrum}
	lifecycle := newLifecycle(t, fake, NewMemoryStore())
	if _, err := lifecycle.Start(context.Background(), backend.StartRequest{MeetingURL: "https://meet.google.com/abc-defg-hij"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	return lifecycle
}

func TestNewLifecycleIdleWithoutSession(t *testing.T) {
	lifecycle := newLifecycle(t, &fakeBackend{}, NewMemoryStore())
	if lifecycle.Phase() != PhaseIdle {
		t.Fatalf("expected idle, got %s", lifecycle.Phase())
	}
	if _, err := lifecycle.Session(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestStartStoresSession(t *testing.T) {
	store := state.NewStore(t.TempDir())
	fake := &fakeBackend{start: backend.StartResponse{BotID: "b1", SessionID: "s1", IsScrum: true}}
	lifecycle := newLifecycle(t, fake, store)

	session, err := lifecycle.Start(context.Background(), backend.StartRequest{MeetingURL: "https://meet.google.com/abc-defg-hij"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if session.BotID != "b1" || session.SessionID != "s1" || !session.IsScrum {
		t.Fatalf("unexpected session %+v", session)
	}
	if session.MeetingURL != "https://meet.google.com/abc-defg-hij" {
		t.Fatalf("expected meeting url, got %q", session.MeetingURL)
	}

	reloaded := newLifecycle(t, fake, store)
	if reloaded.Phase() != PhaseActive {
		t.Fatalf("expected reloaded lifecycle to be active, got %s", reloaded.Phase())
	}
}

func TestStartResetsReadiness(t *testing.T) {
	store := NewMemoryStore()
	fake := &fakeBackend{start: backend.StartResponse{BotID: "b1"}}
	lifecycle := newLifecycle(t, fake, store)
	if _, err := lifecycle.Start(context.Background(), backend.StartRequest{MeetingURL: "u"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := store.MarkReady("b1", true, true); err != nil {
		t.Fatalf("mark ready: %v", err)
	}

	fake.start = backend.StartResponse{BotID: "b2"}
	if _, err := lifecycle.Start(context.Background(), backend.StartRequest{MeetingURL: "u"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	readiness, err := lifecycle.Readiness()
	if err != nil {
		t.Fatalf("readiness: %v", err)
	}
	if readiness.ChatReady || readiness.ScrumReady {
		t.Fatalf("expected reset flags, got %+v", readiness)
	}
}

func TestFinalizeOptimisticFetchesOnce(t *testing.T) {
	fake := &fakeBackend{resultsErr: errTransport}
	lifecycle := startedLifecycle(t, fake, true)

	ended, err := lifecycle.Finalize(context.Background(), FinalizeOptions{})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !ended || lifecycle.Phase() != PhaseEnded {
		t.Fatalf("expected ended, got %v %s", ended, lifecycle.Phase())
	}
	calls := fake.transcriptCalls()
	if len(calls) != 1 {
		t.Fatalf("expected one final fetch, got %d", len(calls))
	}
	if !calls[0].AutoProcess || calls[0].Mode != backend.ModeScrum || calls[0].SessionID != "s1" {
		t.Fatalf("unexpected final fetch %+v", calls[0])
	}

	ended, err = lifecycle.Finalize(context.Background(), FinalizeOptions{})
	if err != nil || ended {
		t.Fatalf("expected second finalize to be a no-op, got %v %v", ended, err)
	}
	if len(fake.transcriptCalls()) != 1 {
		t.Fatalf("expected no second fetch")
	}
}

func TestFinalizeConfirmTreatsNotFoundAsSuccess(t *testing.T) {
	fake := &fakeBackend{endErr: backend.NewAPIError(http.StatusNotFound, []byte(`{"detail":"Bot not found"}`))}
	lifecycle := startedLifecycle(t, fake, false)

	ended, err := lifecycle.Finalize(context.Background(), FinalizeOptions{Confirm: true})
	if err != nil || !ended {
		t.Fatalf("expected benign not found, got %v %v", ended, err)
	}
	if lifecycle.Phase() != PhaseEnded {
		t.Fatalf("expected ended, got %s", lifecycle.Phase())
	}
}

func TestFinalizeConfirmFailureStaysActive(t *testing.T) {
	fake := &fakeBackend{endErr: backend.NewAPIError(http.StatusInternalServerError, []byte(`{"error":"boom"}`))}
	lifecycle := startedLifecycle(t, fake, false)

	_, err := lifecycle.Finalize(context.Background(), FinalizeOptions{Confirm: true})
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "boom" {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if lifecycle.Phase() != PhaseActive {
		t.Fatalf("expected active, got %s", lifecycle.Phase())
	}
}

func TestFinalizeWithoutSession(t *testing.T) {
	lifecycle := newLifecycle(t, &fakeBackend{}, NewMemoryStore())
	if _, err := lifecycle.Finalize(context.Background(), FinalizeOptions{}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestReset(t *testing.T) {
	lifecycle := startedLifecycle(t, &fakeBackend{}, false)
	if err := lifecycle.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if lifecycle.Phase() != PhaseIdle {
		t.Fatalf("expected idle, got %s", lifecycle.Phase())
	}
}
