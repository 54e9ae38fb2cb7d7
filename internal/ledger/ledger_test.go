package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/vocaris/vocaris/clickup"
	"github.com/vocaris/vocaris/internal/state"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", FileName))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestRecordMeetingUpserts(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	session := state.Session{BotID: "b1", SessionID: "s1", MeetingURL: "https://meet.google.com/abc", IsScrum: true, StartedAt: started}
	if err := l.RecordMeeting(ctx, session); err != nil {
		t.Fatalf("record meeting: %v", err)
	}
	session.EndedAt = started.Add(30 * time.Minute)
	if err := l.RecordMeeting(ctx, session); err != nil {
		t.Fatalf("record ended meeting: %v", err)
	}
	if err := l.RecordMeeting(ctx, state.Session{BotID: "b2", MeetingURL: "u", StartedAt: started.Add(time.Hour)}); err != nil {
		t.Fatalf("record second meeting: %v", err)
	}

	meetings, err := l.Meetings(ctx, 10)
	if err != nil {
		t.Fatalf("meetings: %v", err)
	}
	if len(meetings) != 2 {
		t.Fatalf("expected 2 meetings, got %d", len(meetings))
	}
	if meetings[0].BotID != "b2" || meetings[0].EndedAt != nil {
		t.Fatalf("expected newest first, got %+v", meetings[0])
	}
	first := meetings[1]
	if !first.IsScrum || first.EndedAt == nil || !first.EndedAt.Equal(started.Add(30*time.Minute)) {
		t.Fatalf("unexpected meeting %+v", first)
	}
	if !first.StartedAt.Equal(started) {
		t.Fatalf("expected start time kept, got %s", first.StartedAt)
	}
}

func TestRecordPushAndPushedTitles(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	attempts := []clickup.Attempt{
		{BatchID: "batch", ListID: "L1", Title: "first", TaskID: "T1"},
		{BatchID: "batch", ListID: "L1", Title: "second", Error: "rate limited"},
		{BatchID: "other", ListID: "L2", Title: "third", TaskID: "T3"},
	}
	for _, attempt := range attempts {
		if err := l.RecordPush(ctx, attempt); err != nil {
			t.Fatalf("record push: %v", err)
		}
	}

	got, err := l.Pushes(ctx, "batch")
	if err != nil {
		t.Fatalf("pushes: %v", err)
	}
	if len(got) != 2 || got[0].Title != "first" || got[1].Error != "rate limited" {
		t.Fatalf("unexpected attempts %+v", got)
	}
	if got[0].At.IsZero() {
		t.Fatal("expected attempt time to default to now")
	}

	titles, err := l.PushedTitles(ctx, "L1")
	if err != nil {
		t.Fatalf("pushed titles: %v", err)
	}
	if !titles["first"] || titles["second"] || titles["third"] {
		t.Fatalf("unexpected titles %v", titles)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	for i := 0; i < 2; i++ {
		l, err := Open(context.Background(), path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		if err := l.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
}
