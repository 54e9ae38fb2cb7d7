package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Options{BaseURL: server.URL, Token: "secret", Timeout: 5 * time.Second})
}

func TestNewClientAddsSchemeAndTrimsSlash(t *testing.T) {
	client := NewClient(Options{BaseURL: " api.example.com/ "})
	if got := client.BaseURL(); got != "https://api.example.com" {
		t.Fatalf("expected normalized base url, got %q", got)
	}
}

func TestDoSendsBearerTokenAndJSON(t *testing.T) {
	var gotAuth, gotType string
	var gotBody map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, `{"ok":true}`)
	})

	resp, err := client.Do(context.Background(), Request{Method: http.MethodPost, Path: "/x", Body: map[string]string{"a": "b"}})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if resp.Status != http.StatusAccepted || !resp.OK() {
		t.Fatalf("expected 202, got %d", resp.Status)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("expected bearer token, got %q", gotAuth)
	}
	if gotType != "application/json" {
		t.Fatalf("expected json content type, got %q", gotType)
	}
	if gotBody["a"] != "b" {
		t.Fatalf("expected body to round trip, got %v", gotBody)
	}
}

func TestDoKeepsCallerAuthorizationAndStripsForNoAuth(t *testing.T) {
	var seen []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
	})

	header := http.Header{"Authorization": {"Bearer caller"}}
	if _, err := client.Do(context.Background(), Request{Path: "/x", Header: header}); err != nil {
		t.Fatalf("do: %v", err)
	}
	if _, err := client.Do(context.Background(), Request{Path: "/x", Header: header, NoAuth: true}); err != nil {
		t.Fatalf("do: %v", err)
	}
	if seen[0] != "Bearer caller" {
		t.Fatalf("expected caller auth, got %q", seen[0])
	}
	if seen[1] != "" {
		t.Fatalf("expected no auth, got %q", seen[1])
	}
}

func TestStartMeetingRequiresBotID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"session_id":"s1"}`)
	})
	_, err := client.StartMeeting(context.Background(), StartRequest{MeetingURL: "https://meet.google.com/abc"})
	if err == nil {
		t.Fatalf("expected error for missing bot_id")
	}
}

func TestStartMeetingFillsMeetingURL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/meeting/start" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"bot_id":"b1","session_id":"s1","is_scrum":true}`)
	})
	resp, err := client.StartMeeting(context.Background(), StartRequest{MeetingURL: "https://meet.google.com/abc"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if resp.BotID != "b1" || !resp.IsScrum || resp.MeetingURL != "https://meet.google.com/abc" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestEndMeetingReturnsAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("bot_id") != "b1" {
			t.Errorf("expected bot_id query, got %q", r.URL.RawQuery)
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"Bot not found"}`)
	})
	err := client.EndMeeting(context.Background(), "b1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "Bot not found" {
		t.Fatalf("expected detail message, got %q", apiErr.Message)
	}
	if !IsNotFound(err) {
		t.Fatalf("expected not found")
	}
}

func TestStatusFloorsUptime(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"is_active":true,"bot_id":"b1","session_id":null,"meeting_url":"u","uptime_seconds":125.9}`)
	})
	status, err := client.Status(context.Background(), "b1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.IsActive || status.UptimeSeconds != 125 {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.SessionID != nil {
		t.Fatalf("expected nil session id")
	}
}

func TestHistoryClampsLimit(t *testing.T) {
	var gotLimit string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		_, _ = io.WriteString(w, `{"meetings":[{"bot_id":"b1","meeting_url":"u"}],"total":1}`)
	})
	resp, err := client.History(context.Background(), 500, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if gotLimit != "100" {
		t.Fatalf("expected limit 100, got %q", gotLimit)
	}
	if len(resp.Meetings) != 1 || resp.Meetings[0].BotID != "b1" {
		t.Fatalf("unexpected history %+v", resp)
	}
}

func TestClampHistoryLimit(t *testing.T) {
	cases := map[int]int{-5: 20, 0: 20, 1: 1, 50: 50, 100: 100, 101: 100}
	for input, want := range cases {
		if got := ClampHistoryLimit(input); got != want {
			t.Fatalf("clamp(%d) = %d, want %d", input, got, want)
		}
	}
}

func TestTranscriptsSendsModeAndAutoProcess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/meeting/transcripts/b1" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		query := r.URL.Query()
		if query.Get("mode") != "scrum" || query.Get("format") != "json" || query.Get("auto_process") != "true" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `{"tickets":[{"title":"Ship it"}]}`)
	})
	results, err := client.Transcripts(context.Background(), TranscriptQuery{BotID: "b1", Mode: ModeScrum, AutoProcess: true})
	if err != nil {
		t.Fatalf("transcripts: %v", err)
	}
	if !results.ScrumReady() {
		t.Fatalf("expected scrum ready, got %+v", results)
	}
}

func TestCreateClickUpTaskSendsToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "cu" {
			t.Errorf("expected token query")
		}
		var task ClickUpTaskRequest
		if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
			t.Errorf("decode: %v", err)
		}
		if task.ListID != "L1" || task.Priority != 2 {
			t.Errorf("unexpected task %+v", task)
		}
		_, _ = io.WriteString(w, `{"task":{"id":"T9"}}`)
	})
	resp, err := client.CreateClickUpTask(context.Background(), "cu", ClickUpTaskRequest{ListID: "L1", Name: "n", Priority: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if resp.TaskID() != "T9" {
		t.Fatalf("expected nested task id, got %q", resp.TaskID())
	}
}

func TestNewAPIErrorFallsBackToStatusText(t *testing.T) {
	err := NewAPIError(http.StatusBadGateway, []byte("<html>"))
	if err.Message != "bad gateway" {
		t.Fatalf("expected status text, got %q", err.Message)
	}
	nested := NewAPIError(http.StatusBadRequest, []byte(`{"detail":[{"msg":"field required"}]}`))
	if nested.Message != "field required" {
		t.Fatalf("expected nested message, got %q", nested.Message)
	}
	if !IsAuthError(NewAPIError(http.StatusForbidden, nil)) {
		t.Fatalf("expected auth error")
	}
}
