package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Shape names the layout a results payload arrived in.
type Shape string

const (
	// ShapeTickets is an object with a "tickets" array.
	ShapeTickets Shape = "tickets"
	// ShapeParticipants is an object with per-participant ticket groups.
	ShapeParticipants Shape = "participants"
	// ShapeArray is a bare JSON array of tickets.
	ShapeArray Shape = "array"
	// ShapeSummary is an object carrying only summary or transcript text.
	ShapeSummary Shape = "summary"
	// ShapeEmpty is an empty body, null, or an object with no recognized content.
	ShapeEmpty Shape = "empty"
)

// Results is the canonical form of a transcripts response.
type Results struct {
	Shape           Shape
	Tickets         []Ticket
	Summary         string
	FormattedOutput string
	Transcript      []TranscriptLine
	IsProcessing    bool
	IsEmpty         bool
	// Unrecognized lists top-level keys the normalizer ignored.
	Unrecognized []string
}

// TranscriptLine is one spoken segment.
type TranscriptLine struct {
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text"`
}

// HasContent reports whether any artifact text or tickets are present.
func (r Results) HasContent() bool {
	return len(r.Tickets) > 0 ||
		strings.TrimSpace(r.Summary) != "" ||
		strings.TrimSpace(r.FormattedOutput) != "" ||
		len(r.Transcript) > 0
}

// ChatReady reports whether the payload can back the chat view.
func (r Results) ChatReady() bool {
	if r.IsProcessing || r.IsEmpty {
		return false
	}
	return r.HasContent()
}

// ScrumReady reports whether the payload carries at least one ticket.
func (r Results) ScrumReady() bool {
	if r.IsProcessing {
		return false
	}
	return len(r.Tickets) > 0
}

type participantGroup struct {
	Name    string   `json:"name"`
	Speaker string   `json:"speaker"`
	Tickets []Ticket `json:"tickets"`
	Tasks   []Ticket `json:"tasks"`
}

var knownResultKeys = map[string]bool{
	"tickets":          true,
	"participants":     true,
	"summary":          true,
	"formatted_output": true,
	"transcript":       true,
	"transcripts":      true,
	"is_processing":    true,
	"is_empty":         true,
	"bot_id":           true,
	"session_id":       true,
	"mode":             true,
	"format":           true,
	"status":           true,
	"message":          true,
	"meeting_url":      true,
	"created_at":       true,
}

// DecodeResults normalizes the tickets, participants, and bare-array layouts
// into one Results value. Scalars are rejected with ErrUnknownShape.
func DecodeResults(body []byte) (Results, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Results{Shape: ShapeEmpty, IsEmpty: true}, nil
	}

	switch trimmed[0] {
	case '[':
		var tickets []Ticket
		if err := json.Unmarshal(trimmed, &tickets); err != nil {
			return Results{}, fmt.Errorf("decode results array: %w", err)
		}
		return Results{Shape: ShapeArray, Tickets: dropUntitled(tickets), IsEmpty: len(tickets) == 0}, nil
	case '{':
		return decodeResultsObject(trimmed)
	default:
		return Results{}, fmt.Errorf("%w: starts with %q", ErrUnknownShape, trimmed[0])
	}
}

func decodeResultsObject(body []byte) (Results, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return Results{}, fmt.Errorf("decode results object: %w", err)
	}

	var results Results
	decodeOptional(fields["is_processing"], &results.IsProcessing)
	decodeOptional(fields["is_empty"], &results.IsEmpty)
	decodeOptional(fields["summary"], &results.Summary)
	decodeOptional(fields["formatted_output"], &results.FormattedOutput)
	results.Transcript = decodeTranscript(fields["transcript"])
	if len(results.Transcript) == 0 {
		results.Transcript = decodeTranscript(fields["transcripts"])
	}

	switch {
	case isPresent(fields["tickets"]):
		var tickets []Ticket
		if err := json.Unmarshal(fields["tickets"], &tickets); err != nil {
			return Results{}, fmt.Errorf("decode tickets: %w", err)
		}
		results.Shape = ShapeTickets
		results.Tickets = dropUntitled(tickets)
	case isPresent(fields["participants"]):
		var groups []participantGroup
		if err := json.Unmarshal(fields["participants"], &groups); err != nil {
			return Results{}, fmt.Errorf("decode participants: %w", err)
		}
		results.Shape = ShapeParticipants
		results.Tickets = flattenParticipants(groups)
	case results.HasContent():
		results.Shape = ShapeSummary
	default:
		results.Shape = ShapeEmpty
	}

	for key := range fields {
		if !knownResultKeys[key] {
			results.Unrecognized = append(results.Unrecognized, key)
		}
	}
	sort.Strings(results.Unrecognized)
	return results, nil
}

func flattenParticipants(groups []participantGroup) []Ticket {
	var tickets []Ticket
	for _, group := range groups {
		owner := strings.TrimSpace(group.Name)
		if owner == "" {
			owner = strings.TrimSpace(group.Speaker)
		}
		for _, ticket := range append(group.Tickets, group.Tasks...) {
			if ticket.Assignee == "" {
				ticket.Assignee = owner
			}
			tickets = append(tickets, ticket)
		}
	}
	return dropUntitled(tickets)
}

func dropUntitled(tickets []Ticket) []Ticket {
	out := tickets[:0]
	for _, ticket := range tickets {
		if strings.TrimSpace(ticket.Title) == "" {
			continue
		}
		out = append(out, ticket)
	}
	return out
}

func decodeTranscript(raw json.RawMessage) []TranscriptLine {
	if !isPresent(raw) {
		return nil
	}
	var lines []TranscriptLine
	if err := json.Unmarshal(raw, &lines); err == nil {
		return lines
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil && strings.TrimSpace(text) != "" {
		return []TranscriptLine{{Text: text}}
	}
	return nil
}

func decodeOptional(raw json.RawMessage, dest any) {
	if !isPresent(raw) {
		return
	}
	_ = json.Unmarshal(raw, dest)
}

func isPresent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
