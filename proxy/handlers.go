package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/vocaris/vocaris/backend"
	"github.com/vocaris/vocaris/clickup"
	internalstrings "github.com/vocaris/vocaris/internal/strings"
)

const maxRequestBytes = 1 << 20

var transcriptParams = []string{"session_id", "mode", "format", "auto_process"}

type startRequest struct {
	MeetingURL string `json:"meeting_url"`
	BotName    string `json:"bot_name,omitempty"`
}

type queryRequest struct {
	BotID          string `json:"bot_id"`
	Query          string `json:"query"`
	TopK           int    `json:"top_k,omitempty"`
	IncludeSources bool   `json:"include_sources"`
}

type pushRequest struct {
	Token      string           `json:"token"`
	ListID     string           `json:"list_id"`
	AssigneeID int64            `json:"assignee_id,omitempty"`
	DueDays    int              `json:"due_days,omitempty"`
	BotID      string           `json:"bot_id,omitempty"`
	Tickets    []backend.Ticket `json:"tickets"`
}

type pushFailure struct {
	Title string `json:"title"`
	Error string `json:"error"`
}

type pushResponse struct {
	BatchID  string        `json:"batch_id"`
	Success  int           `json:"success"`
	Total    int           `json:"total"`
	Summary  string        `json:"summary"`
	Failures []pushFailure `json:"failures,omitempty"`
}

type authorizeFailure struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if internalstrings.IsBlank(req.MeetingURL) {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("meeting_url is required"))
		return
	}
	s.forward(w, r, backend.Request{Method: http.MethodPost, Path: "/meeting/start", Body: req})
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	botID := internalstrings.TrimSpace(r.URL.Query().Get("bot_id"))
	if botID == "" {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("bot_id is required"))
		return
	}
	query := url.Values{}
	query.Set("bot_id", botID)
	s.forward(w, r, backend.Request{Method: http.MethodPost, Path: "/meeting/end", Query: query})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	var query url.Values
	if botID := internalstrings.TrimSpace(r.URL.Query().Get("bot_id")); botID != "" {
		query = url.Values{}
		query.Set("bot_id", botID)
	}
	s.forward(w, r, backend.Request{Path: "/meeting/status", Query: query})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	offset, err := intParam(r, "offset")
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	s.forward(w, r, backend.Request{Path: "/meeting/history", Query: backend.HistoryQuery(limit, offset)})
}

func (s *Server) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	botID := internalstrings.TrimSpace(r.PathValue("botID"))
	if botID == "" {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("bot id is required"))
		return
	}
	incoming := r.URL.Query()
	query := url.Values{}
	query.Set("bot_id", botID)
	for _, key := range transcriptParams {
		if value := incoming.Get(key); value != "" {
			query.Set(key, value)
		}
	}
	s.forward(w, r, backend.Request{Path: backend.TranscriptsPath(botID), Query: query})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if internalstrings.IsBlank(req.BotID) || internalstrings.IsBlank(req.Query) {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("bot_id and query are required"))
		return
	}
	resp, err := s.backend.RunQueryProbes(r.Context(), backend.QueryRequest{
		BotID:          req.BotID,
		Query:          req.Query,
		TopK:           req.TopK,
		IncludeSources: req.IncludeSources,
	}, forwardHeader(r))
	if err != nil {
		s.writeError(w, r, http.StatusBadGateway, err)
		return
	}
	s.passThrough(w, r, resp)
}

func (s *Server) handleClickUpAuthorize(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	token, err := s.authorizer.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		var authErr *clickup.AuthorizeError
		if errors.As(err, &authErr) {
			s.logRequestError(r, authErr.Status, err)
			writeJSON(w, authErr.Status, authorizeFailure{Error: "clickup authorization failed", Details: authErr.Body})
			return
		}
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (s *Server) handleClickUpTask(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	query, ok := s.tokenQuery(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	s.forward(w, r, backend.Request{Method: http.MethodPost, Path: "/clickup/task", Query: query, Body: body})
}

func (s *Server) handleClickUpWorkspace(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	query, ok := s.tokenQuery(w, r)
	if !ok {
		return
	}
	s.forward(w, r, backend.Request{Path: "/clickup/workspace", Query: query})
}

func (s *Server) handleClickUpPush(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var req pushRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	result, err := s.pusher.Push(r.Context(), clickup.PushRequest{
		Token:      req.Token,
		ListID:     req.ListID,
		AssigneeID: req.AssigneeID,
		BotID:      req.BotID,
		DueDays:    req.DueDays,
		Tickets:    req.Tickets,
	})
	if errors.Is(err, clickup.ErrMissingToken) || errors.Is(err, clickup.ErrMissingList) {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		s.logRequestError(r, http.StatusOK, err)
	}
	response := pushResponse{
		BatchID: result.BatchID,
		Success: result.Success,
		Total:   result.Total,
		Summary: result.Summary(),
	}
	for _, failed := range result.Failed() {
		response.Failures = append(response.Failures, pushFailure{Title: failed.Ticket.Title, Error: failed.Err.Error()})
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) tokenQuery(w http.ResponseWriter, r *http.Request) (url.Values, bool) {
	token := internalstrings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("token is required"))
		return nil, false
	}
	query := url.Values{}
	query.Set("token", token)
	return query, true
}

// forward sends req upstream with the caller's auth and request id, then
// copies the upstream status and body back.
func (s *Server) forward(w http.ResponseWriter, r *http.Request, req backend.Request) {
	req.Header = forwardHeader(r)
	resp, err := s.backend.Do(r.Context(), req)
	if err != nil {
		s.writeError(w, r, http.StatusBadGateway, fmt.Errorf("upstream %s: %w", req.Path, err))
		return
	}
	s.passThrough(w, r, resp)
}

func (s *Server) passThrough(w http.ResponseWriter, r *http.Request, resp *backend.Response) {
	if !resp.OK() {
		s.logRequestError(r, resp.Status, backend.NewAPIError(resp.Status, resp.Body))
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

func forwardHeader(r *http.Request) http.Header {
	header := http.Header{}
	if auth := r.Header.Get("Authorization"); auth != "" {
		header.Set("Authorization", auth)
	}
	if id := r.Header.Get(RequestIDHeader); id != "" {
		header.Set(RequestIDHeader, id)
	}
	return header
}

func intParam(r *http.Request, key string) (int, error) {
	raw := internalstrings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return value, nil
}

func (s *Server) requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	s.writeError(w, r, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	return false
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	if decoder.More() {
		return fmt.Errorf("unexpected extra JSON data")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.logRequestError(r, status, err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) logRequestError(r *http.Request, status int, err error) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Printf("request %s %s failed (%d): %v", r.Method, r.URL.Path, status, err)
}
