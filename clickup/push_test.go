package clickup

import (
	"bytes"
	"context"
	"errors"
	"log"
	"reflect"
	"strings"
	"testing"

	"github.com/vocaris/vocaris/backend"
)

type scriptedCreator struct {
	fail  map[string]error
	calls []backend.ClickUpTaskRequest
}

func (c *scriptedCreator) CreateClickUpTask(ctx context.Context, token string, task backend.ClickUpTaskRequest) (backend.ClickUpTaskResponse, error) {
	c.calls = append(c.calls, task)
	if err := c.fail[task.Name]; err != nil {
		return backend.ClickUpTaskResponse{}, err
	}
	return backend.ClickUpTaskResponse{ID: "task-" + task.Name}, nil
}

type memoryRecorder struct {
	attempts []Attempt
}

func (r *memoryRecorder) RecordPush(ctx context.Context, attempt Attempt) error {
	r.attempts = append(r.attempts, attempt)
	return nil
}

func TestMapPriority(t *testing.T) {
	cases := map[string]int{
		"URGENT":  1,
		"urgent":  1,
		" High ":  2,
		"normal":  3,
		"Low":     4,
		"blocker": 3,
		"":        3,
		"1":       1,
		" 4 ":     4,
		"0":       3,
		"7":       3,
	}
	for input, want := range cases {
		if got := MapPriority(input); got != want {
			t.Fatalf("MapPriority(%q) = %d, want %d", input, got, want)
		}
	}
}

func TestPushCountsFailuresWithoutAborting(t *testing.T) {
	creator := &scriptedCreator{fail: map[string]error{"second": errors.New("rate limited")}}
	recorder := &memoryRecorder{}
	var logs bytes.Buffer
	pusher := NewPusher(PusherOptions{Creator: creator, Recorder: recorder, Logger: log.New(&logs, "", 0)})

	result, err := pusher.Push(context.Background(), PushRequest{
		Token:  "pk",
		ListID: "L1",
		BotID:  "b1",
		Tickets: []backend.Ticket{
			{Title: "first", Priority: "urgent"},
			{Title: "second"},
			{Title: "third", Priority: "low", Tags: []string{"ops"}},
		},
	})
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if result.Success != 2 || result.Total != 3 {
		t.Fatalf("expected 2/3, got %d/%d", result.Success, result.Total)
	}
	if result.Summary() != "2/3 tickets pushed" {
		t.Fatalf("unexpected summary %q", result.Summary())
	}
	if len(creator.calls) != 3 || creator.calls[2].Name != "third" {
		t.Fatalf("expected the third ticket to be attempted, got %+v", creator.calls)
	}
	if creator.calls[0].Priority != 1 || creator.calls[1].Priority != 3 || creator.calls[2].Priority != 4 {
		t.Fatalf("unexpected priorities %+v", creator.calls)
	}
	if creator.calls[0].DueDays != DefaultDueDays {
		t.Fatalf("expected default due days, got %d", creator.calls[0].DueDays)
	}
	if failed := result.Failed(); len(failed) != 1 || failed[0].Ticket.Title != "second" {
		t.Fatalf("unexpected failures %+v", failed)
	}
	if !strings.Contains(logs.String(), "rate limited") {
		t.Fatalf("expected failure to be logged, got %q", logs.String())
	}

	if len(recorder.attempts) != 3 {
		t.Fatalf("expected 3 recorded attempts, got %d", len(recorder.attempts))
	}
	for _, attempt := range recorder.attempts {
		if attempt.BatchID != result.BatchID || attempt.BotID != "b1" {
			t.Fatalf("unexpected attempt %+v", attempt)
		}
	}
	if recorder.attempts[1].Error != "rate limited" || recorder.attempts[0].TaskID != "task-first" {
		t.Fatalf("unexpected attempts %+v", recorder.attempts)
	}
}

func TestPushValidatesTarget(t *testing.T) {
	pusher := NewPusher(PusherOptions{Creator: &scriptedCreator{}})
	if _, err := pusher.Push(context.Background(), PushRequest{ListID: "L1"}); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
	if _, err := pusher.Push(context.Background(), PushRequest{Token: "pk"}); !errors.Is(err, ErrMissingList) {
		t.Fatalf("expected ErrMissingList, got %v", err)
	}
}

func TestPushStopsOnCancelledContext(t *testing.T) {
	creator := &scriptedCreator{}
	pusher := NewPusher(PusherOptions{Creator: creator})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := pusher.Push(ctx, PushRequest{Token: "pk", ListID: "L1", Tickets: []backend.Ticket{{Title: "a"}}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if len(creator.calls) != 0 || result.Summary() != "0/1 tickets pushed" {
		t.Fatalf("expected no calls, got %d (%s)", len(creator.calls), result.Summary())
	}
}

func TestTaskRequest(t *testing.T) {
	task := TaskRequest(backend.Ticket{Title: "Fix", Description: "d", Priority: "HIGH"}, "L1", 3, 42)
	want := backend.ClickUpTaskRequest{
		ListID:      "L1",
		Name:        "Fix",
		Description: "d",
		Priority:    2,
		DueDays:     3,
		Tags:        []string{},
		Assignees:   []int64{42},
	}
	if !reflect.DeepEqual(task, want) {
		t.Fatalf("expected %+v, got %+v", want, task)
	}
}

func TestTaskRequestKeepsNumericPriority(t *testing.T) {
	results, err := backend.DecodeResults([]byte(`{"tickets":[{"title":"Fix outage","priority":1}]}`))
	if err != nil {
		t.Fatalf("decode results: %v", err)
	}
	if len(results.Tickets) != 1 {
		t.Fatalf("expected one ticket, got %+v", results.Tickets)
	}
	task := TaskRequest(results.Tickets[0], "L1", 3, 0)
	if task.Priority != 1 {
		t.Fatalf("expected urgent priority 1, got %d", task.Priority)
	}
}
