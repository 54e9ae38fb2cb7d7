// Package clickup connects meeting tickets to ClickUp lists.
package clickup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vocaris/vocaris/backend"
	internalstrings "github.com/vocaris/vocaris/internal/strings"
)

// DefaultTokenURL is ClickUp's OAuth token endpoint.
const DefaultTokenURL = "https://api.clickup.com/api/v2/oauth/token"

const maxErrorBody = 500

// ErrMissingCode indicates an empty authorization code.
var ErrMissingCode = errors.New("authorization code is required")

// AuthorizeError reports that no endpoint produced an access token.
type AuthorizeError struct {
	Status int
	// Body is the raw upstream body, truncated to 500 characters.
	Body string
}

func (e *AuthorizeError) Error() string {
	if e.Body == "" {
		return "clickup authorization failed"
	}
	return fmt.Sprintf("clickup authorization failed: %s", e.Body)
}

// TokenSource names the endpoint that issued a token.
type TokenSource string

const (
	// SourceClickUp is ClickUp's own token endpoint.
	SourceClickUp TokenSource = "clickup"
	// SourceBackend is the backend's authorize fallback.
	SourceBackend TokenSource = "backend"
)

// Token is an exchanged access token.
type Token struct {
	AccessToken string      `json:"access_token"`
	Source      TokenSource `json:"source"`
}

// BackendAuthorizer exchanges a code through the backend.
type BackendAuthorizer interface {
	AuthorizeClickUp(ctx context.Context, code string) (*backend.Response, error)
}

// AuthorizerOptions configures an Authorizer.
type AuthorizerOptions struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Backend      BackendAuthorizer
	HTTPClient   *http.Client
}

// Authorizer exchanges OAuth codes for access tokens.
type Authorizer struct {
	tokenURL     string
	clientID     string
	clientSecret string
	backend      BackendAuthorizer
	client       *http.Client
}

// NewAuthorizer creates an Authorizer.
func NewAuthorizer(opts AuthorizerOptions) *Authorizer {
	tokenURL := internalstrings.TrimSpace(opts.TokenURL)
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Authorizer{
		tokenURL:     tokenURL,
		clientID:     internalstrings.TrimSpace(opts.ClientID),
		clientSecret: internalstrings.TrimSpace(opts.ClientSecret),
		backend:      opts.Backend,
		client:       client,
	}
}

// Exchange trades code for an access token. ClickUp's token endpoint is
// tried first and the backend second; the first access_token wins.
func (a *Authorizer) Exchange(ctx context.Context, code string) (Token, error) {
	code = internalstrings.TrimSpace(code)
	if code == "" {
		return Token{}, ErrMissingCode
	}

	var lastBody string
	if a.clientID != "" && a.clientSecret != "" {
		body, err := a.direct(ctx, code)
		if token := accessToken(body); err == nil && token != "" {
			return Token{AccessToken: token, Source: SourceClickUp}, nil
		}
		lastBody = errorBody(body, err)
	}

	if a.backend != nil {
		resp, err := a.backend.AuthorizeClickUp(ctx, code)
		var body []byte
		if resp != nil {
			body = resp.Body
		}
		if token := accessToken(body); err == nil && resp.OK() && token != "" {
			return Token{AccessToken: token, Source: SourceBackend}, nil
		}
		if text := errorBody(body, err); text != "" {
			lastBody = text
		}
	}

	return Token{}, &AuthorizeError{Status: http.StatusBadRequest, Body: lastBody}
}

func (a *Authorizer) direct(ctx context.Context, code string) ([]byte, error) {
	query := url.Values{}
	query.Set("client_id", a.clientID)
	query.Set("client_secret", a.clientSecret)
	query.Set("code", code)
	target := a.tokenURL + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

func accessToken(body []byte) string {
	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.AccessToken)
}

func errorBody(body []byte, err error) string {
	text := strings.TrimSpace(string(body))
	if text == "" && err != nil {
		text = err.Error()
	}
	return internalstrings.TruncateRunes(text, maxErrorBody)
}
