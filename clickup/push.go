package clickup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/vocaris/vocaris/backend"
	internalstrings "github.com/vocaris/vocaris/internal/strings"
)

// DefaultPriority is ClickUp's "normal" priority.
const DefaultPriority = 3

// DefaultDueDays is how far out new tasks are due.
const DefaultDueDays = 7

var priorities = map[string]int{
	"urgent": 1,
	"high":   2,
	"normal": 3,
	"low":    4,
}

var (
	// ErrMissingToken indicates a push without a ClickUp token.
	ErrMissingToken = errors.New("clickup token is required")
	// ErrMissingList indicates a push without a target list.
	ErrMissingList = errors.New("clickup list id is required")
)

// MapPriority converts a ticket priority name to ClickUp's numeric scale.
// Numbers already on the scale ("1" to "4") pass through. Unknown and
// empty names map to DefaultPriority.
func MapPriority(name string) int {
	name = internalstrings.NormalizeLowerTrimSpace(name)
	if value, ok := priorities[name]; ok {
		return value
	}
	if value, err := strconv.Atoi(name); err == nil && value >= 1 && value <= 4 {
		return value
	}
	return DefaultPriority
}

// TaskCreator creates one ClickUp task.
type TaskCreator interface {
	CreateClickUpTask(ctx context.Context, token string, task backend.ClickUpTaskRequest) (backend.ClickUpTaskResponse, error)
}

// Attempt is one recorded task creation.
type Attempt struct {
	BatchID string    `json:"batch_id"`
	BotID   string    `json:"bot_id,omitempty"`
	ListID  string    `json:"list_id"`
	Title   string    `json:"title"`
	TaskID  string    `json:"task_id,omitempty"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// Recorder keeps a history of push attempts.
type Recorder interface {
	RecordPush(ctx context.Context, attempt Attempt) error
}

// PushRequest is one batch of tickets bound for a list.
type PushRequest struct {
	Token      string
	ListID     string
	AssigneeID int64
	// BotID links the batch to the meeting that produced it.
	BotID   string
	DueDays int
	Tickets []backend.Ticket
}

// Outcome is the result for one ticket.
type Outcome struct {
	Ticket backend.Ticket
	TaskID string
	Err    error
}

// PushResult summarizes a batch.
type PushResult struct {
	BatchID  string
	Success  int
	Total    int
	Outcomes []Outcome
}

// Summary returns "{success}/{total} tickets pushed".
func (r PushResult) Summary() string {
	return fmt.Sprintf("%d/%d tickets pushed", r.Success, r.Total)
}

// Failed returns the outcomes that did not create a task.
func (r PushResult) Failed() []Outcome {
	var failed []Outcome
	for _, outcome := range r.Outcomes {
		if outcome.Err != nil {
			failed = append(failed, outcome)
		}
	}
	return failed
}

// PusherOptions configures a Pusher.
type PusherOptions struct {
	Creator  TaskCreator
	Recorder Recorder
	Logger   *log.Logger
	Now      func() time.Time
}

// Pusher creates tasks one ticket at a time.
type Pusher struct {
	creator  TaskCreator
	recorder Recorder
	logger   *log.Logger
	now      func() time.Time
}

// NewPusher creates a Pusher.
func NewPusher(opts PusherOptions) *Pusher {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Pusher{creator: opts.Creator, recorder: opts.Recorder, logger: logger, now: now}
}

// Push creates one task per ticket, in order. A failed ticket is logged and
// counted and the loop moves on. There is no idempotency key, so pushing the
// same batch twice creates duplicates. Only a cancelled context stops the
// loop early.
func (p *Pusher) Push(ctx context.Context, request PushRequest) (PushResult, error) {
	if internalstrings.IsBlank(request.Token) {
		return PushResult{}, ErrMissingToken
	}
	if internalstrings.IsBlank(request.ListID) {
		return PushResult{}, ErrMissingList
	}
	dueDays := request.DueDays
	if dueDays <= 0 {
		dueDays = DefaultDueDays
	}

	result := PushResult{BatchID: uuid.NewString(), Total: len(request.Tickets)}
	for _, ticket := range request.Tickets {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		task := TaskRequest(ticket, request.ListID, dueDays, request.AssigneeID)
		response, err := p.creator.CreateClickUpTask(ctx, request.Token, task)
		outcome := Outcome{Ticket: ticket, TaskID: response.TaskID(), Err: err}
		if err != nil {
			p.logger.Printf("push %q to list %s failed: %v", ticket.Title, request.ListID, err)
		} else {
			result.Success++
		}
		result.Outcomes = append(result.Outcomes, outcome)
		p.record(ctx, result.BatchID, request, outcome)
	}
	return result, nil
}

func (p *Pusher) record(ctx context.Context, batchID string, request PushRequest, outcome Outcome) {
	if p.recorder == nil {
		return
	}
	attempt := Attempt{
		BatchID: batchID,
		BotID:   request.BotID,
		ListID:  request.ListID,
		Title:   outcome.Ticket.Title,
		TaskID:  outcome.TaskID,
		At:      p.now().UTC(),
	}
	if outcome.Err != nil {
		attempt.Error = outcome.Err.Error()
	}
	if err := p.recorder.RecordPush(ctx, attempt); err != nil {
		p.logger.Printf("record push attempt: %v", err)
	}
}

// TaskRequest builds the create-task body for one ticket.
func TaskRequest(ticket backend.Ticket, listID string, dueDays int, assigneeID int64) backend.ClickUpTaskRequest {
	tags := ticket.Tags
	if tags == nil {
		tags = []string{}
	}
	task := backend.ClickUpTaskRequest{
		ListID:      listID,
		Name:        ticket.Title,
		Description: ticket.Description,
		Priority:    MapPriority(ticket.Priority),
		DueDays:     dueDays,
		Tags:        tags,
	}
	if assigneeID != 0 {
		task.Assignees = []int64{assigneeID}
	}
	return task
}
