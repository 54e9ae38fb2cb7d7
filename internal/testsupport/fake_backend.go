package testsupport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/vocaris/vocaris/backend"
)

// FakeBackend is an in-memory meeting-assistant backend for scripts and
// end-to-end tests.
//
// Meeting URLs steer its behavior: "noscrum" starts a chat-only meeting,
// "leave" makes the bot report inactive from the first status, and "slow"
// keeps results processing forever. Task names containing "fail" are
// rejected.
type FakeBackend struct {
	mu       sync.Mutex
	meetings map[string]*fakeMeeting
	order    []string
	tasks    []backend.ClickUpTaskRequest
}

type fakeMeeting struct {
	start backend.StartResponse
	ended bool
}

// NewFakeBackend returns an empty fake backend.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{meetings: make(map[string]*fakeMeeting)}
}

// Tasks returns the ClickUp tasks created so far.
func (f *FakeBackend) Tasks() []backend.ClickUpTaskRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.ClickUpTaskRequest(nil), f.tasks...)
}

// Handler returns the backend routes.
func (f *FakeBackend) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /meeting/start", f.handleStart)
	mux.HandleFunc("POST /meeting/end", f.handleEnd)
	mux.HandleFunc("GET /meeting/status", f.handleStatus)
	mux.HandleFunc("GET /meeting/history", f.handleHistory)
	mux.HandleFunc("GET /meeting/transcripts/{botID}", f.handleTranscripts)
	mux.HandleFunc("POST /meeting/{botID}/query", f.handleQuery)
	mux.HandleFunc("POST /clickup/task", f.handleTask)
	mux.HandleFunc("GET /clickup/workspace", f.handleWorkspace)
	mux.HandleFunc("GET /auth/clickup/authorize", f.handleAuthorize)
	return mux
}

func (f *FakeBackend) handleStart(w http.ResponseWriter, r *http.Request) {
	var req backend.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.MeetingURL) == "" {
		writeFakeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "meeting_url is required"})
		return
	}

	f.mu.Lock()
	n := len(f.order) + 1
	start := backend.StartResponse{
		BotID:      fmt.Sprintf("bot-%d", n),
		SessionID:  fmt.Sprintf("session-%d", n),
		MeetingURL: req.MeetingURL,
		IsScrum:    !strings.Contains(req.MeetingURL, "noscrum"),
	}
	f.meetings[start.BotID] = &fakeMeeting{start: start}
	f.order = append(f.order, start.BotID)
	f.mu.Unlock()

	writeFakeJSON(w, http.StatusOK, start)
}

func (f *FakeBackend) handleEnd(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	m, ok := f.meetings[r.URL.Query().Get("bot_id")]
	if ok {
		m.ended = true
	}
	f.mu.Unlock()
	if !ok {
		writeFakeJSON(w, http.StatusNotFound, map[string]string{"detail": "Meeting not found"})
		return
	}
	writeFakeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

func (f *FakeBackend) handleStatus(w http.ResponseWriter, r *http.Request) {
	botID := r.URL.Query().Get("bot_id")
	if botID == "" {
		writeFakeJSON(w, http.StatusOK, map[string]any{"is_active": false})
		return
	}
	m, ok := f.meeting(botID)
	if !ok {
		writeFakeJSON(w, http.StatusNotFound, map[string]string{"detail": "Meeting not found"})
		return
	}
	active := !m.ended && !strings.Contains(m.start.MeetingURL, "leave")
	writeFakeJSON(w, http.StatusOK, map[string]any{
		"is_active":        active,
		"bot_id":           m.start.BotID,
		"session_id":       m.start.SessionID,
		"meeting_url":      m.start.MeetingURL,
		"uptime_seconds":   125,
		"transcript_count": 4,
		"bot_in_call":      active,
	})
}

func (f *FakeBackend) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	f.mu.Lock()
	entries := make([]backend.HistoryEntry, 0, len(f.order))
	for i := len(f.order) - 1; i >= 0; i-- {
		m := f.meetings[f.order[i]]
		status := "active"
		if m.ended {
			status = "completed"
		}
		entries = append(entries, backend.HistoryEntry{
			BotID:      m.start.BotID,
			SessionID:  m.start.SessionID,
			MeetingURL: m.start.MeetingURL,
			Status:     status,
			IsScrum:    m.start.IsScrum,
		})
	}
	f.mu.Unlock()

	total := len(entries)
	if offset > total {
		offset = total
	}
	entries = entries[offset:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	writeFakeJSON(w, http.StatusOK, backend.HistoryResponse{Meetings: entries, Total: total})
}

func (f *FakeBackend) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	m, ok := f.meeting(r.PathValue("botID"))
	if !ok {
		writeFakeJSON(w, http.StatusNotFound, map[string]string{"detail": "Meeting not found"})
		return
	}
	if strings.Contains(m.start.MeetingURL, "slow") {
		writeFakeJSON(w, http.StatusOK, map[string]any{"is_processing": true})
		return
	}
	if backend.Mode(r.URL.Query().Get("mode")) == backend.ModeScrum {
		writeFakeJSON(w, http.StatusOK, map[string]any{
			"tickets": []map[string]any{
				{"title": "Fix login redirect", "description": "Users land on a blank page after signing in.", "assignee": "Ada", "priority": "high", "tags": "auth,web"},
				{"title": "Write release notes", "assignee": "Grace", "priority": "low"},
			},
		})
		return
	}
	writeFakeJSON(w, http.StatusOK, map[string]any{
		"summary": "## Summary\n\nThe team agreed to ship on Friday.",
		"transcript": []map[string]string{
			{"speaker": "Ada", "text": "Can we ship on Friday?"},
			{"speaker": "Grace", "text": "Yes, once the login fix lands."},
		},
	})
}

func (f *FakeBackend) handleQuery(w http.ResponseWriter, r *http.Request) {
	if _, ok := f.meeting(r.PathValue("botID")); !ok {
		writeFakeJSON(w, http.StatusNotFound, map[string]string{"detail": "Meeting not found"})
		return
	}
	var req backend.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFakeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	writeFakeJSON(w, http.StatusOK, map[string]any{"answer": "The team agreed to ship on Friday."})
}

func (f *FakeBackend) handleTask(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("token") == "" {
		writeFakeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "token is required"})
		return
	}
	var task backend.ClickUpTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		writeFakeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	if strings.Contains(strings.ToLower(task.Name), "fail") {
		writeFakeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "ClickUp rejected the task"})
		return
	}

	f.mu.Lock()
	f.tasks = append(f.tasks, task)
	id := fmt.Sprintf("task-%d", len(f.tasks))
	f.mu.Unlock()

	writeFakeJSON(w, http.StatusOK, map[string]string{"id": id, "url": "https://app.clickup.com/t/" + id})
}

func (f *FakeBackend) handleWorkspace(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("token") == "" {
		writeFakeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "token is required"})
		return
	}
	writeFakeJSON(w, http.StatusOK, backend.ClickUpWorkspace{Teams: []backend.ClickUpTeam{{
		ID:   "t1",
		Name: "Acme",
		Members: []backend.ClickUpMember{
			{User: backend.ClickUpUser{ID: 42, Username: "ada", Email: "ada@example.com"}},
			{User: backend.ClickUpUser{ID: 43, Username: "grace", Email: "grace@example.com"}},
		},
		Spaces: []backend.ClickUpSpace{{
			ID:      "s1",
			Name:    "Engineering",
			Folders: []backend.ClickUpFolder{{ID: "f1", Name: "Sprint", Lists: []backend.ClickUpList{{ID: "901", Name: "Backlog"}}}},
			Lists:   []backend.ClickUpList{{ID: "902", Name: "Bugs"}},
		}},
	}}})
}

func (f *FakeBackend) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("code") != "good" {
		writeFakeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid code"})
		return
	}
	writeFakeJSON(w, http.StatusOK, map[string]string{"access_token": "cu-token"})
}

func (f *FakeBackend) meeting(botID string) (fakeMeeting, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.meetings[botID]
	if !ok {
		return fakeMeeting{}, false
	}
	return *m, true
}

func writeFakeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
