package main

import (
	"strings"
	"testing"
	"time"

	"github.com/vocaris/vocaris/internal/config"
	"github.com/vocaris/vocaris/internal/ledger"
)

func TestResolveMeetingURL(t *testing.T) {
	got, err := resolveMeetingURL("", []string{" https://meet.example.com/a "})
	if err != nil {
		t.Fatalf("resolve from arg: %v", err)
	}
	if got != "https://meet.example.com/a" {
		t.Fatalf("expected trimmed url, got %q", got)
	}

	got, err = resolveMeetingURL("https://meet.example.com/b", nil)
	if err != nil || got != "https://meet.example.com/b" {
		t.Fatalf("expected flag url, got %q (%v)", got, err)
	}

	if _, err := resolveMeetingURL("https://meet.example.com/b", []string{"https://meet.example.com/a"}); err == nil {
		t.Fatal("expected error for conflicting urls")
	}
	if _, err := resolveMeetingURL("  ", nil); err == nil {
		t.Fatal("expected error for missing url")
	}
}

func TestReadinessOptionsTreatsZeroMaxAttemptsAsUnlimited(t *testing.T) {
	cfg := config.Default()
	cfg.Poll.MaxAttempts = 0
	a := &app{cfg: cfg}

	opts := a.readinessOptions(nil)
	if opts.MaxAttempts >= 0 {
		t.Fatalf("expected negative max attempts for unlimited, got %d", opts.MaxAttempts)
	}

	cfg.Poll.MaxAttempts = 5
	if got := a.readinessOptions(nil).MaxAttempts; got != 5 {
		t.Fatalf("expected max attempts 5, got %d", got)
	}
}

func TestFormatLedgerTable(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	ended := now.Add(-10 * time.Minute)
	meetings := []ledger.Meeting{
		{BotID: "bot-2", MeetingURL: "https://meet.example.com/b", StartedAt: now.Add(-5 * time.Minute)},
		{BotID: "bot-1", MeetingURL: "https://meet.example.com/a", IsScrum: true, StartedAt: now.Add(-40 * time.Minute), EndedAt: &ended},
	}

	got := formatLedgerTable(meetings, now)
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %q", got)
	}
	if !strings.Contains(lines[1], "chat") || !strings.Contains(lines[1], "in progress") || !strings.Contains(lines[1], "5m ago") {
		t.Fatalf("unexpected active row %q", lines[1])
	}
	if !strings.Contains(lines[2], "scrum") || !strings.Contains(lines[2], "30m") {
		t.Fatalf("unexpected ended row %q", lines[2])
	}
}
