package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/sipp/internal/apperror"
	"github.com/sakif/sipp/internal/auth"
	"github.com/sakif/sipp/internal/config"
	"github.com/sakif/sipp/internal/model"
)

// maxResponseBytes caps how much of a response body is read. A full list
// of maximum-size snippets can be large, so this is generous.
const maxResponseBytes = 256 << 20

// RemoteOptions configures a Remote backend.
type RemoteOptions struct {
	BaseURL string        // e.g. "https://sipp.example.com", no trailing slash needed
	APIKey  string        // sent as X-API-Key on every call when non-empty
	Timeout time.Duration // per call; 0 = config.DefaultRemoteTimeout

	// HTTPClient overrides the client built from Timeout (tests).
	HTTPClient *http.Client
}

// Remote talks to a sipp server's JSON API.
//
// Every request carries a fresh X-Request-Id. The server's access log
// records the same id, so a failure seen here can be found there.
type Remote struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewRemote validates the base URL and builds the client.
func NewRemote(opts RemoteOptions) (*Remote, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperror.ValidationFailed("remote_url", fmt.Sprintf("remote URL %q must be an absolute http(s) URL", opts.BaseURL))
	}

	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = config.DefaultRemoteTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Remote{
		baseURL:    base,
		apiKey:     opts.APIKey,
		httpClient: client,
	}, nil
}

func (r *Remote) List(ctx context.Context, opts ListOptions) ([]model.Snippet, error) {
	q := url.Values{}
	if opts.Filter != "" {
		q.Set("q", opts.Filter)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	path := "/api/snippets"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var header http.Header
	if opts.Refresh {
		header = http.Header{"Cache-Control": {"no-cache"}}
	}

	var snippets []model.Snippet
	if err := r.do(ctx, http.MethodGet, path, header, nil, &snippets); err != nil {
		return nil, err
	}
	if snippets == nil {
		snippets = []model.Snippet{}
	}
	return snippets, nil
}

func (r *Remote) Create(ctx context.Context, name, content, language string) (*model.Snippet, error) {
	body := map[string]string{"name": name, "content": content}
	if language != "" {
		body["language"] = language
	}

	var snippet model.Snippet
	if err := r.do(ctx, http.MethodPost, "/api/snippets", nil, body, &snippet); err != nil {
		return nil, err
	}
	return &snippet, nil
}

func (r *Remote) Get(ctx context.Context, shortID string) (*model.Snippet, error) {
	var snippet model.Snippet
	if err := r.do(ctx, http.MethodGet, snippetPath(shortID), nil, nil, &snippet); err != nil {
		return nil, err
	}
	return &snippet, nil
}

func (r *Remote) Update(ctx context.Context, shortID string, patch model.SnippetPatch) (*model.Snippet, error) {
	var snippet model.Snippet
	if err := r.do(ctx, http.MethodPut, snippetPath(shortID), nil, patch, &snippet); err != nil {
		return nil, err
	}
	return &snippet, nil
}

// Delete maps the server's not_found answer back to "nothing removed".
// Any other 404 stays an error.
func (r *Remote) Delete(ctx context.Context, shortID string) (bool, error) {
	var res struct {
		Deleted bool `json:"deleted"`
	}
	err := r.do(ctx, http.MethodDelete, snippetPath(shortID), nil, nil, &res)
	if errors.Is(err, apperror.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return res.Deleted, nil
}

func (r *Remote) Link(shortID string) string { return r.baseURL + "/s/" + shortID }

func (r *Remote) Close() error {
	r.httpClient.CloseIdleConnections()
	return nil
}

const snippetPrefix = "/api/snippets/"

func snippetPath(shortID string) string {
	return snippetPrefix + url.PathEscape(shortID)
}

// errNotFound is the server's error type for a missing snippet.
const errNotFound = "not_found"

// errorBody is the server's JSON error shape.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

// do sends one request and decodes a 2xx JSON answer into out.
//
// ERROR MAPPING:
//
//	transport error, timeout, cancel → ErrRemoteUnavailable
//	400                              → ErrValidation (server message and field kept)
//	401                              → ErrUnauthorized
//	404 not_found on a snippet path  → ErrNotFound
//	any other non-2xx                → ErrRemoteRejected
//
// A 404 is only trusted when it comes from the snippet API itself: the
// path addresses one snippet and the body is the server's not_found error.
// A proxy's page or a wrong path prefix is a rejection, not a missing
// snippet.
//	2xx with an undecodable body     → ErrRemoteRejected
func (r *Remote) do(ctx context.Context, method, path string, header http.Header, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return apperror.RemoteUnavailable(err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "sipp-client")
	req.Header.Set("X-Request-Id", xid.New().String())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.apiKey != "" {
		req.Header.Set(auth.HeaderName, r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return apperror.RemoteUnavailable(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return apperror.RemoteUnavailable(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, raw, strings.HasPrefix(path, snippetPrefix))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperror.RemoteRejected(resp.StatusCode, "unreadable response body")
	}
	return nil
}

func statusError(status int, raw []byte, bySnippet bool) error {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err != nil || eb.Message == "" {
		eb.Error = ""
		eb.Message = strings.TrimSpace(string(raw))
		if eb.Message == "" {
			eb.Message = http.StatusText(status)
		}
	}

	switch status {
	case http.StatusBadRequest:
		return &apperror.AppError{Err: apperror.ErrValidation, Message: eb.Message, Field: eb.Field, Status: status}
	case http.StatusUnauthorized:
		return &apperror.AppError{Err: apperror.ErrUnauthorized, Message: eb.Message, Status: status}
	case http.StatusNotFound:
		if bySnippet && eb.Error == errNotFound {
			return &apperror.AppError{Err: apperror.ErrNotFound, Message: eb.Message, Status: status}
		}
		return apperror.RemoteRejected(status, eb.Message)
	default:
		return apperror.RemoteRejected(status, eb.Message)
	}
}
