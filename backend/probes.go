package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	internalstrings "github.com/vocaris/vocaris/internal/strings"
)

// QueryTimeout bounds each meeting-query probe.
const QueryTimeout = 10 * time.Second

// Probe is one known location of the meeting-query endpoint across backend versions.
type Probe struct {
	Name string
	// Path returns the request path for a bot.
	Path func(botID string) string
	// BotIDQuery sends bot_id as a query parameter.
	BotIDQuery bool
	// BotIDBody sends bot_id inside the JSON body.
	BotIDBody bool
}

// QueryProbes lists the meeting-query locations in the order they are tried.
// The first 2xx response wins. 404 and 405 move on to the next probe; any
// other status is final.
var QueryProbes = []Probe{
	{Name: "transcripts-path", Path: func(botID string) string { return TranscriptsPath(botID) + "/query" }},
	{Name: "meeting-path", Path: func(botID string) string { return "/meeting/" + url.PathEscape(botID) + "/query" }},
	{Name: "meeting-query", Path: func(string) string { return "/meeting/query" }, BotIDQuery: true},
	{Name: "transcripts-body", Path: func(string) string { return "/meeting/transcripts/query" }, BotIDBody: true},
	{Name: "root-query", Path: func(string) string { return "/query" }, BotIDQuery: true},
}

// ErrNoProbeAnswered indicates every probe failed at the transport level.
var ErrNoProbeAnswered = errors.New("no meeting query endpoint answered")

type queryBody struct {
	BotID          string `json:"bot_id,omitempty"`
	Query          string `json:"query"`
	TopK           int    `json:"top_k,omitempty"`
	IncludeSources bool   `json:"include_sources"`
}

// RunQueryProbes sends the query to each probe in order and returns the
// selected response. header is forwarded on every attempt. If the selected
// response is 401 or 403 and an Authorization header was sent, the probes are
// run exactly once more without it.
func (c *Client) RunQueryProbes(ctx context.Context, request QueryRequest, header http.Header) (*Response, error) {
	if internalstrings.IsBlank(request.BotID) {
		return nil, fmt.Errorf("bot id is required")
	}
	if internalstrings.IsBlank(request.Query) {
		return nil, fmt.Errorf("query is required")
	}

	resp, err := c.runProbes(ctx, request, header, false)
	if err != nil {
		return nil, err
	}
	if isAuthStatus(resp.Status) && c.sendsAuth(header) {
		return c.runProbes(ctx, request, header, true)
	}
	return resp, nil
}

// QueryMeeting asks a question about a meeting and returns the answer.
func (c *Client) QueryMeeting(ctx context.Context, request QueryRequest) (QueryResponse, error) {
	resp, err := c.RunQueryProbes(ctx, request, nil)
	if err != nil {
		return QueryResponse{}, err
	}
	if !resp.OK() {
		return QueryResponse{}, NewAPIError(resp.Status, resp.Body)
	}
	var answer QueryResponse
	if err := json.Unmarshal(resp.Body, &answer); err != nil {
		return QueryResponse{}, fmt.Errorf("decode query response: %w", err)
	}
	return answer, nil
}

func (c *Client) runProbes(ctx context.Context, request QueryRequest, header http.Header, noAuth bool) (*Response, error) {
	var last *Response
	var transportErr error
	for _, probe := range QueryProbes {
		body := queryBody{Query: request.Query, TopK: request.TopK, IncludeSources: request.IncludeSources}
		if probe.BotIDBody {
			body.BotID = request.BotID
		}
		var query url.Values
		if probe.BotIDQuery {
			query = url.Values{}
			query.Set("bot_id", request.BotID)
		}
		resp, err := c.Do(ctx, Request{
			Method:  http.MethodPost,
			Path:    probe.Path(request.BotID),
			Query:   query,
			Body:    body,
			Header:  header,
			Timeout: QueryTimeout,
			NoAuth:  noAuth,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			transportErr = errors.Join(transportErr, fmt.Errorf("probe %s: %w", probe.Name, err))
			continue
		}
		if resp.OK() {
			return resp, nil
		}
		last = resp
		if resp.Status == http.StatusNotFound || resp.Status == http.StatusMethodNotAllowed {
			continue
		}
		return resp, nil
	}
	if last != nil {
		return last, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrNoProbeAnswered, transportErr)
}

func (c *Client) sendsAuth(header http.Header) bool {
	if header != nil && header.Get("Authorization") != "" {
		return true
	}
	return c.token != ""
}

func isAuthStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}
