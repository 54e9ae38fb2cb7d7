package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type probeHit struct {
	path  string
	query string
	auth  string
}

type probeServer struct {
	mu     sync.Mutex
	hits   []probeHit
	status func(hit probeHit) int
}

func (s *probeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	hit := probeHit{path: r.URL.Path, query: r.URL.RawQuery, auth: r.Header.Get("Authorization")}
	s.mu.Lock()
	s.hits = append(s.hits, hit)
	s.mu.Unlock()
	status := s.status(hit)
	w.WriteHeader(status)
	if status < 300 {
		_, _ = io.WriteString(w, `{"answer":"42"}`)
	}
}

func startProbeServer(t *testing.T, status func(hit probeHit) int) (*probeServer, *Client) {
	t.Helper()
	probe := &probeServer{status: status}
	server := httptest.NewServer(probe)
	t.Cleanup(server.Close)
	return probe, NewClient(Options{BaseURL: server.URL, Token: "tok", Timeout: 5 * time.Second})
}

func TestQueryProbesFirstSuccessWins(t *testing.T) {
	probe, client := startProbeServer(t, func(hit probeHit) int {
		if hit.path == "/meeting/query" {
			return http.StatusOK
		}
		return http.StatusNotFound
	})

	answer, err := client.QueryMeeting(context.Background(), QueryRequest{BotID: "b1", Query: "what?"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if answer.Answer != "42" {
		t.Fatalf("expected answer, got %+v", answer)
	}
	if len(probe.hits) != 3 {
		t.Fatalf("expected 3 probes, got %d", len(probe.hits))
	}
	if probe.hits[2].query != "bot_id=b1" {
		t.Fatalf("expected bot_id query, got %q", probe.hits[2].query)
	}
}

func TestQueryProbesMethodNotAllowedAdvances(t *testing.T) {
	probe, client := startProbeServer(t, func(hit probeHit) int {
		if hit.path == "/meeting/b1/query" {
			return http.StatusCreated
		}
		return http.StatusMethodNotAllowed
	})
	resp, err := client.RunQueryProbes(context.Background(), QueryRequest{BotID: "b1", Query: "q"}, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if resp.Status != http.StatusCreated || len(probe.hits) != 2 {
		t.Fatalf("expected second probe to win, got %d after %d", resp.Status, len(probe.hits))
	}
}

func TestQueryProbesOtherStatusIsFinal(t *testing.T) {
	probe, client := startProbeServer(t, func(hit probeHit) int {
		return http.StatusInternalServerError
	})
	resp, err := client.RunQueryProbes(context.Background(), QueryRequest{BotID: "b1", Query: "q"}, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if resp.Status != http.StatusInternalServerError || len(probe.hits) != 1 {
		t.Fatalf("expected first probe to be final, got %d after %d", resp.Status, len(probe.hits))
	}
}

func TestQueryProbesExhaustedReturnsLast(t *testing.T) {
	probe, client := startProbeServer(t, func(hit probeHit) int {
		return http.StatusNotFound
	})
	resp, err := client.RunQueryProbes(context.Background(), QueryRequest{BotID: "b1", Query: "q"}, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if resp.Status != http.StatusNotFound || len(probe.hits) != len(QueryProbes) {
		t.Fatalf("expected all probes tried, got %d after %d", resp.Status, len(probe.hits))
	}
}

func TestQueryProbesRetriesWithoutAuthOnce(t *testing.T) {
	probe, client := startProbeServer(t, func(hit probeHit) int {
		if hit.auth != "" {
			return http.StatusUnauthorized
		}
		return http.StatusOK
	})
	resp, err := client.RunQueryProbes(context.Background(), QueryRequest{BotID: "b1", Query: "q"}, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Fatalf("expected unauthenticated retry to succeed, got %d", resp.Status)
	}
	if len(probe.hits) != 2 || probe.hits[0].auth != "Bearer tok" || probe.hits[1].auth != "" {
		t.Fatalf("unexpected hits %+v", probe.hits)
	}
}

func TestQueryProbesAuthRetryIsNotRepeated(t *testing.T) {
	probe, client := startProbeServer(t, func(hit probeHit) int {
		return http.StatusForbidden
	})
	resp, err := client.RunQueryProbes(context.Background(), QueryRequest{BotID: "b1", Query: "q"}, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if resp.Status != http.StatusForbidden || len(probe.hits) != 2 {
		t.Fatalf("expected one retry, got %d after %d", resp.Status, len(probe.hits))
	}
}

func TestQueryProbesNoneAnswered(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	client := NewClient(Options{BaseURL: url, Timeout: time.Second})

	_, err := client.RunQueryProbes(context.Background(), QueryRequest{BotID: "b1", Query: "q"}, nil)
	if !errors.Is(err, ErrNoProbeAnswered) {
		t.Fatalf("expected ErrNoProbeAnswered, got %v", err)
	}
}

func TestQueryProbesValidateInput(t *testing.T) {
	client := NewClient(Options{BaseURL: "http://127.0.0.1:1"})
	if _, err := client.RunQueryProbes(context.Background(), QueryRequest{Query: "q"}, nil); err == nil {
		t.Fatalf("expected missing bot id error")
	}
	if _, err := client.RunQueryProbes(context.Background(), QueryRequest{BotID: "b1"}, nil); err == nil {
		t.Fatalf("expected missing query error")
	}
}
