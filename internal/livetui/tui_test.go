package livetui

import (
	"context"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/vocaris/vocaris/backend"
	"github.com/vocaris/vocaris/meeting"
)

type fakeBackend struct {
	mu       sync.Mutex
	statuses []backend.MeetingStatus
	results  backend.Results
	ends     int
}

func (f *fakeBackend) StartMeeting(ctx context.Context, request backend.StartRequest) (backend.StartResponse, error) {
	return backend.StartResponse{BotID: "b1", MeetingURL: request.MeetingURL}, nil
}

func (f *fakeBackend) EndMeeting(ctx context.Context, botID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ends++
	return nil
}

func (f *fakeBackend) Status(ctx context.Context, botID string) (backend.MeetingStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return backend.MeetingStatus{BotID: botID, IsActive: true}, nil
	}
	status := f.statuses[0]
	f.statuses = f.statuses[1:]
	return status, nil
}

func (f *fakeBackend) Transcripts(ctx context.Context, query backend.TranscriptQuery) (backend.Results, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results, nil
}

func useASCIIRenderer(t *testing.T) {
	originalProfile := lipgloss.ColorProfile()
	lipgloss.SetColorProfile(termenv.Ascii)
	t.Cleanup(func() {
		lipgloss.SetColorProfile(originalProfile)
	})
}

func newTestModel(t *testing.T, fake *fakeBackend, ended bool, opts Options) model {
	t.Helper()
	store := meeting.NewMemoryStore()
	session := meeting.Session{BotID: "b1", MeetingURL: "https://meet.example/abc", IsScrum: false}
	if err := store.SetSession(session); err != nil {
		t.Fatalf("set session: %v", err)
	}
	if ended {
		if _, err := store.MarkEnded("b1"); err != nil {
			t.Fatalf("mark ended: %v", err)
		}
	}
	lifecycle, err := meeting.New(meeting.Options{Backend: fake, Store: store})
	if err != nil {
		t.Fatalf("new lifecycle: %v", err)
	}
	opts.Lifecycle = lifecycle
	m := newModel(context.Background(), opts)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 90, Height: 24})
	return updated.(model)
}

func keyPress(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestActiveViewShowsLatestStatus(t *testing.T) {
	useASCIIRenderer(t)

	count := 3
	fake := &fakeBackend{statuses: []backend.MeetingStatus{{BotID: "b1", IsActive: true, UptimeSeconds: 125, TranscriptCount: &count}}}
	m := newTestModel(t, fake, false, Options{})

	view := m.View()
	if !strings.Contains(view, "Waiting for first status") {
		t.Fatalf("expected waiting message, got:\n%s", view)
	}
	if !strings.Contains(view, "https://meet.example/abc") {
		t.Fatalf("expected meeting url, got:\n%s", view)
	}

	updated, cmd := m.Update(m.statusTickCmd()())
	m = updated.(model)
	if cmd == nil {
		t.Fatal("expected next status tick to be scheduled")
	}
	view = m.View()
	for _, want := range []string{"in call", "2m 05s", "Transcripts", "active"} {
		if !strings.Contains(view, want) {
			t.Fatalf("expected %q in view, got:\n%s", want, view)
		}
	}
}

func TestInactiveStreakEndsMeeting(t *testing.T) {
	useASCIIRenderer(t)

	fake := &fakeBackend{statuses: []backend.MeetingStatus{
		{BotID: "b1", IsActive: false},
		{BotID: "b1", IsActive: false},
	}}
	m := newTestModel(t, fake, false, Options{Status: meeting.StatusPollerOptions{InactiveThreshold: 1}})

	updated, _ := m.Update(m.statusTickCmd()())
	m = updated.(model)
	if m.phase != meeting.PhaseActive {
		t.Fatalf("expected active after first inactive status, got %s", m.phase)
	}
	if !strings.Contains(m.View(), "1 in a row") {
		t.Fatalf("expected inactive streak in view, got:\n%s", m.View())
	}

	updated, cmd := m.Update(m.statusTickCmd()())
	m = updated.(model)
	if m.phase != meeting.PhaseEnded {
		t.Fatalf("expected ended after streak, got %s", m.phase)
	}
	if cmd == nil || !m.polling {
		t.Fatal("expected readiness polling to start")
	}
	if !strings.Contains(m.View(), "Bot left the call") {
		t.Fatalf("expected ended message, got:\n%s", m.View())
	}
}

func TestEndKeyAsksBeforeFinalizing(t *testing.T) {
	useASCIIRenderer(t)

	fake := &fakeBackend{}
	m := newTestModel(t, fake, false, Options{Confirm: true})

	updated, _ := m.Update(keyPress('e'))
	m = updated.(model)
	if !strings.Contains(m.View(), "End the meeting now?") {
		t.Fatalf("expected confirmation prompt, got:\n%s", m.View())
	}

	updated, _ = m.Update(keyPress('n'))
	m = updated.(model)
	if m.confirming {
		t.Fatal("expected prompt to close on cancel")
	}

	updated, _ = m.Update(keyPress('e'))
	m = updated.(model)
	updated, cmd := m.Update(keyPress('y'))
	m = updated.(model)
	if cmd == nil {
		t.Fatal("expected finalize command")
	}
	updated, _ = m.Update(cmd())
	m = updated.(model)

	if m.phase != meeting.PhaseEnded {
		t.Fatalf("expected ended phase, got %s", m.phase)
	}
	if fake.ends != 1 {
		t.Fatalf("expected confirmed end to call backend once, got %d", fake.ends)
	}
	view := m.View()
	if !strings.Contains(view, "Chat") || !strings.Contains(view, "pending") {
		t.Fatalf("expected readiness view, got:\n%s", view)
	}
}

func TestReadinessDone(t *testing.T) {
	useASCIIRenderer(t)

	fake := &fakeBackend{results: backend.Results{Shape: backend.ShapeSummary, Summary: "We shipped."}}
	m := newTestModel(t, fake, true, Options{})

	updated, cmd := m.Update(m.readinessTickCmd()())
	m = updated.(model)
	if cmd != nil {
		t.Fatal("expected polling to stop once results are ready")
	}
	if !m.done || !m.result().Readiness.ChatReady {
		t.Fatalf("expected chat ready, got %+v", m.result())
	}
	if !strings.Contains(m.View(), "Results ready") {
		t.Fatalf("expected ready message, got:\n%s", m.View())
	}
}

func TestReadinessTimeoutPointsAtWait(t *testing.T) {
	useASCIIRenderer(t)

	fake := &fakeBackend{results: backend.Results{Shape: backend.ShapeEmpty, IsEmpty: true}}
	m := newTestModel(t, fake, true, Options{Readiness: meeting.ReadinessPollerOptions{MaxAttempts: 1}})

	updated, cmd := m.Update(m.readinessTickCmd()())
	m = updated.(model)
	if cmd != nil {
		t.Fatal("expected polling to stop at the attempt cap")
	}
	if !m.result().TimedOut {
		t.Fatal("expected timed out result")
	}
	if !strings.Contains(m.View(), "vocaris wait") {
		t.Fatalf("expected retry hint, got:\n%s", m.View())
	}
}

func TestQuitKey(t *testing.T) {
	m := newTestModel(t, &fakeBackend{}, false, Options{})
	_, cmd := m.Update(keyPress('q'))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected quit message")
	}
}
