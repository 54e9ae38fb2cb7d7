package backend

import (
	"encoding/json"
	"math"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultHistoryLimit is the page size when none is given.
	DefaultHistoryLimit = 20
	// MaxHistoryLimit is the largest page the backend accepts.
	MaxHistoryLimit = 100
)

// StartRequest is the body of POST /meeting/start.
type StartRequest struct {
	MeetingURL string `json:"meeting_url"`
	BotName    string `json:"bot_name,omitempty"`
}

// StartResponse identifies the bot sent into a meeting.
type StartResponse struct {
	BotID      string `json:"bot_id"`
	SessionID  string `json:"session_id"`
	MeetingURL string `json:"meeting_url"`
	IsScrum    bool   `json:"is_scrum"`
}

// MeetingStatus is one status snapshot for a bot.
type MeetingStatus struct {
	IsActive        bool    `json:"is_active"`
	BotID           string  `json:"bot_id"`
	SessionID       *string `json:"session_id"`
	MeetingURL      string  `json:"meeting_url"`
	UptimeSeconds   int     `json:"uptime_seconds"`
	TranscriptCount *int    `json:"transcript_count,omitempty"`
	BotInCall       *bool   `json:"bot_in_call,omitempty"`
}

// UnmarshalJSON accepts fractional uptimes.
func (s *MeetingStatus) UnmarshalJSON(data []byte) error {
	type alias MeetingStatus
	var wire struct {
		alias
		UptimeSeconds float64 `json:"uptime_seconds"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*s = MeetingStatus(wire.alias)
	s.UptimeSeconds = int(math.Floor(wire.UptimeSeconds))
	return nil
}

// HistoryEntry is one past meeting.
type HistoryEntry struct {
	BotID      string `json:"bot_id"`
	SessionID  string `json:"session_id,omitempty"`
	MeetingURL string `json:"meeting_url"`
	Title      string `json:"title,omitempty"`
	Status     string `json:"status,omitempty"`
	IsScrum    bool   `json:"is_scrum,omitempty"`
	StartedAt  string `json:"started_at,omitempty"`
	EndedAt    string `json:"ended_at,omitempty"`
}

// HistoryResponse is a page of past meetings.
type HistoryResponse struct {
	Meetings []HistoryEntry `json:"meetings"`
	Total    int            `json:"total,omitempty"`
}

// Mode selects how the backend formats results.
type Mode string

const (
	// ModeSimple requests the chat transcript and summary.
	ModeSimple Mode = "simple"
	// ModeScrum requests scrum tickets.
	ModeScrum Mode = "scrum"
)

// TranscriptQuery selects results for a bot.
type TranscriptQuery struct {
	BotID       string
	SessionID   string
	Mode        Mode
	AutoProcess bool
}

// Values renders the query string.
func (q TranscriptQuery) Values() url.Values {
	values := url.Values{}
	values.Set("bot_id", q.BotID)
	if q.SessionID != "" {
		values.Set("session_id", q.SessionID)
	}
	if q.Mode != "" {
		values.Set("mode", string(q.Mode))
	}
	values.Set("format", "json")
	if q.AutoProcess {
		values.Set("auto_process", "true")
	}
	return values
}

// Ticket is a backend-generated scrum ticket.
type Ticket struct {
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Status      string   `json:"status,omitempty" yaml:"status,omitempty"`
	Assignee    string   `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	Priority    string   `json:"priority,omitempty" yaml:"priority,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// UnmarshalJSON accepts "name" for the title, numeric priorities, and a
// comma-separated tag string.
func (t *Ticket) UnmarshalJSON(data []byte) error {
	var wire struct {
		Title       string          `json:"title"`
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Status      string          `json:"status"`
		Assignee    string          `json:"assignee"`
		Priority    json.RawMessage `json:"priority"`
		Tags        json.RawMessage `json:"tags"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*t = Ticket{
		Title:       strings.TrimSpace(wire.Title),
		Description: wire.Description,
		Status:      wire.Status,
		Assignee:    wire.Assignee,
		Priority:    rawScalar(wire.Priority),
		Tags:        rawTags(wire.Tags),
	}
	if t.Title == "" {
		t.Title = strings.TrimSpace(wire.Name)
	}
	return nil
}

func rawScalar(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return strconv.FormatFloat(number, 'f', -1, 64)
	}
	return ""
}

func rawTags(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err == nil {
		return tags
	}
	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		var out []string
		for _, tag := range strings.Split(joined, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				out = append(out, tag)
			}
		}
		return out
	}
	return nil
}

// QueryRequest asks a question about a meeting.
type QueryRequest struct {
	BotID          string `json:"bot_id,omitempty"`
	Query          string `json:"query"`
	TopK           int    `json:"top_k,omitempty"`
	IncludeSources bool   `json:"include_sources"`
}

// QueryResponse is the answer to a meeting query.
type QueryResponse struct {
	Answer  string            `json:"answer"`
	Sources []json.RawMessage `json:"sources,omitempty"`
}

// ClickUpTaskRequest is the body of POST /clickup/task.
type ClickUpTaskRequest struct {
	ListID      string   `json:"list_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Priority    int      `json:"priority"`
	DueDays     int      `json:"due_days"`
	Tags        []string `json:"tags"`
	Assignees   []int64  `json:"assignees,omitempty"`
}

// ClickUpTaskResponse identifies a created task.
type ClickUpTaskResponse struct {
	ID   string `json:"id"`
	URL  string `json:"url,omitempty"`
	Task *struct {
		ID  string `json:"id"`
		URL string `json:"url,omitempty"`
	} `json:"task,omitempty"`
}

// TaskID returns the created task id from either response layout.
func (r ClickUpTaskResponse) TaskID() string {
	if r.ID != "" {
		return r.ID
	}
	if r.Task != nil {
		return r.Task.ID
	}
	return ""
}

// ClickUpWorkspace is the team hierarchy returned by /clickup/workspace.
type ClickUpWorkspace struct {
	Teams []ClickUpTeam `json:"teams"`
}

// ClickUpTeam is a ClickUp workspace.
type ClickUpTeam struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Members []ClickUpMember `json:"members,omitempty"`
	Spaces  []ClickUpSpace  `json:"spaces,omitempty"`
}

// ClickUpMember is a user in a team.
type ClickUpMember struct {
	User ClickUpUser `json:"user"`
}

// ClickUpUser identifies a ClickUp user.
type ClickUpUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// ClickUpSpace groups folders and folderless lists.
type ClickUpSpace struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Folders []ClickUpFolder `json:"folders,omitempty"`
	Lists   []ClickUpList   `json:"lists,omitempty"`
}

// ClickUpFolder groups lists.
type ClickUpFolder struct {
	ID    string        `json:"id"`
	Name  string        `json:"name"`
	Lists []ClickUpList `json:"lists,omitempty"`
}

// ClickUpList receives tasks.
type ClickUpList struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
