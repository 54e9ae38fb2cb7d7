// Package backend talks to the Vocaris meeting-assistant API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	internalstrings "github.com/vocaris/vocaris/internal/strings"
)

const maxResponseBytes = 8 << 20

// Options configures a backend client.
type Options struct {
	BaseURL string
	// Token is sent as a bearer token unless a request carries its own
	// Authorization header.
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client calls the upstream backend.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a client for the given options.
func NewClient(opts Options) *Client {
	baseURL := internalstrings.TrimTrailingSlash(strings.TrimSpace(opts.BaseURL))
	if baseURL != "" && !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "https://" + baseURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{baseURL: baseURL, token: strings.TrimSpace(opts.Token), client: client}
}

// BaseURL returns the normalized upstream base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request describes one upstream call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body is JSON-encoded unless it is already a []byte.
	Body   any
	Header http.Header
	// Timeout bounds this call in addition to the client timeout.
	Timeout time.Duration
	// NoAuth strips any Authorization header.
	NoAuth bool
}

// Response is a fully-read upstream response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Do sends the request and reads the whole body. Non-2xx statuses are not
// errors here; callers decide how to treat them.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var body io.Reader
	switch payload := req.Body.(type) {
	case nil:
	case []byte:
		body = bytes.NewReader(payload)
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	switch {
	case req.NoAuth:
		httpReq.Header.Del("Authorization")
	case httpReq.Header.Get("Authorization") == "" && c.token != "":
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: data}, nil
}

func (c *Client) call(ctx context.Context, req Request, dest any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return NewAPIError(resp.Status, resp.Body)
	}
	if dest == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, dest); err != nil {
		return fmt.Errorf("decode %s response: %w", req.Path, err)
	}
	return nil
}

// StartMeeting asks the backend to send a bot into the meeting.
func (c *Client) StartMeeting(ctx context.Context, request StartRequest) (StartResponse, error) {
	if internalstrings.IsBlank(request.MeetingURL) {
		return StartResponse{}, fmt.Errorf("meeting url is required")
	}
	var response StartResponse
	if err := c.call(ctx, Request{Method: http.MethodPost, Path: "/meeting/start", Body: request}, &response); err != nil {
		return StartResponse{}, err
	}
	if internalstrings.IsBlank(response.BotID) {
		return StartResponse{}, fmt.Errorf("start meeting: response has no bot_id")
	}
	if response.MeetingURL == "" {
		response.MeetingURL = request.MeetingURL
	}
	return response, nil
}

// EndMeeting asks the backend to remove the bot from the call.
func (c *Client) EndMeeting(ctx context.Context, botID string) error {
	query := url.Values{}
	query.Set("bot_id", botID)
	return c.call(ctx, Request{Method: http.MethodPost, Path: "/meeting/end", Query: query}, nil)
}

// Status returns the latest status snapshot. An empty botID asks for the
// caller's current meeting.
func (c *Client) Status(ctx context.Context, botID string) (MeetingStatus, error) {
	var query url.Values
	if !internalstrings.IsBlank(botID) {
		query = url.Values{}
		query.Set("bot_id", botID)
	}
	var status MeetingStatus
	if err := c.call(ctx, Request{Path: "/meeting/status", Query: query}, &status); err != nil {
		return MeetingStatus{}, err
	}
	if status.BotID == "" {
		status.BotID = botID
	}
	return status, nil
}

// History lists past meetings. The limit is clamped to [1, 100].
func (c *Client) History(ctx context.Context, limit, offset int) (HistoryResponse, error) {
	var response HistoryResponse
	if err := c.call(ctx, Request{Path: "/meeting/history", Query: HistoryQuery(limit, offset)}, &response); err != nil {
		return HistoryResponse{}, err
	}
	return response, nil
}

// Transcripts fetches generated results for a bot and normalizes them.
func (c *Client) Transcripts(ctx context.Context, query TranscriptQuery) (Results, error) {
	resp, err := c.Do(ctx, Request{Path: TranscriptsPath(query.BotID), Query: query.Values()})
	if err != nil {
		return Results{}, err
	}
	if !resp.OK() {
		return Results{}, NewAPIError(resp.Status, resp.Body)
	}
	return DecodeResults(resp.Body)
}

// AuthorizeClickUp exchanges an OAuth code through the backend.
func (c *Client) AuthorizeClickUp(ctx context.Context, code string) (*Response, error) {
	query := url.Values{}
	query.Set("code", code)
	return c.Do(ctx, Request{Path: "/auth/clickup/authorize", Query: query})
}

// CreateClickUpTask creates one task in a ClickUp list.
func (c *Client) CreateClickUpTask(ctx context.Context, token string, task ClickUpTaskRequest) (ClickUpTaskResponse, error) {
	query := url.Values{}
	query.Set("token", token)
	var response ClickUpTaskResponse
	if err := c.call(ctx, Request{Method: http.MethodPost, Path: "/clickup/task", Query: query, Body: task}, &response); err != nil {
		return ClickUpTaskResponse{}, err
	}
	return response, nil
}

// ClickUpWorkspace returns the team hierarchy visible to token.
func (c *Client) ClickUpWorkspace(ctx context.Context, token string) (ClickUpWorkspace, error) {
	query := url.Values{}
	query.Set("token", token)
	var workspace ClickUpWorkspace
	if err := c.call(ctx, Request{Path: "/clickup/workspace", Query: query}, &workspace); err != nil {
		return ClickUpWorkspace{}, err
	}
	return workspace, nil
}

// TranscriptsPath returns the results path for a bot.
func TranscriptsPath(botID string) string {
	return "/meeting/transcripts/" + url.PathEscape(botID)
}

// HistoryQuery builds clamped history query parameters.
func HistoryQuery(limit, offset int) url.Values {
	query := url.Values{}
	query.Set("limit", fmt.Sprint(ClampHistoryLimit(limit)))
	if offset < 0 {
		offset = 0
	}
	query.Set("offset", fmt.Sprint(offset))
	return query
}

// ClampHistoryLimit bounds a history page size to [1, 100], defaulting to 20.
func ClampHistoryLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}
