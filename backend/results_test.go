package backend

import (
	"errors"
	"reflect"
	"testing"
)

func TestDecodeResultsEmptyBodies(t *testing.T) {
	for _, body := range []string{"", "  ", "null"} {
		results, err := DecodeResults([]byte(body))
		if err != nil {
			t.Fatalf("decode %q: %v", body, err)
		}
		if results.Shape != ShapeEmpty || !results.IsEmpty {
			t.Fatalf("expected empty for %q, got %+v", body, results)
		}
		if results.ChatReady() || results.ScrumReady() {
			t.Fatalf("expected empty results to be unready")
		}
	}
}

func TestDecodeResultsTicketsObject(t *testing.T) {
	body := `{"tickets":[{"title":"Fix login","priority":"high","tags":"auth, web"},{"title":"  "}],"summary":"done","extra":1}`
	results, err := DecodeResults([]byte(body))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if results.Shape != ShapeTickets {
		t.Fatalf("expected tickets shape, got %q", results.Shape)
	}
	if len(results.Tickets) != 1 {
		t.Fatalf("expected untitled ticket dropped, got %d", len(results.Tickets))
	}
	ticket := results.Tickets[0]
	if ticket.Priority != "high" || !reflect.DeepEqual(ticket.Tags, []string{"auth", "web"}) {
		t.Fatalf("unexpected ticket %+v", ticket)
	}
	if !reflect.DeepEqual(results.Unrecognized, []string{"extra"}) {
		t.Fatalf("expected unrecognized extra, got %v", results.Unrecognized)
	}
	if !results.ChatReady() || !results.ScrumReady() {
		t.Fatalf("expected ready results")
	}
}

func TestDecodeResultsParticipants(t *testing.T) {
	body := `{"participants":[{"name":"Ada","tickets":[{"title":"Write docs"},{"title":"Review","assignee":"Bob"}]},{"speaker":"Cy","tasks":[{"name":"Deploy","priority":1}]}]}`
	results, err := DecodeResults([]byte(body))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if results.Shape != ShapeParticipants {
		t.Fatalf("expected participants shape, got %q", results.Shape)
	}
	want := []Ticket{
		{Title: "Write docs", Assignee: "Ada"},
		{Title: "Review", Assignee: "Bob"},
		{Title: "Deploy", Assignee: "Cy", Priority: "1"},
	}
	if !reflect.DeepEqual(results.Tickets, want) {
		t.Fatalf("expected %+v, got %+v", want, results.Tickets)
	}
}

func TestDecodeResultsArray(t *testing.T) {
	results, err := DecodeResults([]byte(`[{"title":"A"},{"name":"B"}]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if results.Shape != ShapeArray || len(results.Tickets) != 2 || results.Tickets[1].Title != "B" {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestDecodeResultsSummaryOnly(t *testing.T) {
	results, err := DecodeResults([]byte(`{"summary":"We agreed.","transcript":"hello"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if results.Shape != ShapeSummary {
		t.Fatalf("expected summary shape, got %q", results.Shape)
	}
	if !results.ChatReady() || results.ScrumReady() {
		t.Fatalf("expected chat ready only, got %+v", results)
	}
	if len(results.Transcript) != 1 || results.Transcript[0].Text != "hello" {
		t.Fatalf("expected string transcript, got %+v", results.Transcript)
	}
}

func TestDecodeResultsProcessingIsNotReady(t *testing.T) {
	results, err := DecodeResults([]byte(`{"is_processing":true,"tickets":[{"title":"A"}]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if results.ChatReady() || results.ScrumReady() {
		t.Fatalf("expected processing results to be unready")
	}
}

func TestDecodeResultsRejectsScalars(t *testing.T) {
	_, err := DecodeResults([]byte(`"text"`))
	if !errors.Is(err, ErrUnknownShape) {
		t.Fatalf("expected ErrUnknownShape, got %v", err)
	}
}
