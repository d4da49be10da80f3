package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-mizu/rippledb/change"
	"github.com/go-mizu/rippledb/logbroker"
)

// Client speaks the /pull and /append wire shapes against a remote
// Handler. It satisfies the Replicator's Remote contract, so a
// replicator configured with a Client syncs across processes exactly
// as it would against an in-process Db.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying *http.Client (default
// http.DefaultClient). Timeouts belong there.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpc = c }
}

// NewClient builds a Client for baseURL, e.g. "http://localhost:8080".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	cl := &Client{baseURL: strings.TrimRight(baseURL, "/"), httpc: http.DefaultClient}
	for _, o := range opts {
		o(cl)
	}
	return cl
}

// Pull fetches up to req.Limit changes strictly after req.Cursor.
func (cl *Client) Pull(ctx context.Context, req logbroker.PullRequest) (logbroker.PullResult, error) {
	body := PullRequestBody{Stream: req.Stream, Limit: req.Limit}
	if req.Cursor != logbroker.NoCursor {
		s := string(req.Cursor)
		body.Cursor = &s
	}

	var resp PullResponseBody
	if err := cl.post(ctx, "/pull", body, &resp); err != nil {
		return logbroker.PullResult{}, err
	}

	changes := make([]change.Change, len(resp.Changes))
	for i, wc := range resp.Changes {
		changes[i] = wc.ToChange()
	}
	next := logbroker.NoCursor
	if resp.NextCursor != nil {
		next = logbroker.Cursor(*resp.NextCursor)
	}
	return logbroker.PullResult{Changes: changes, NextCursor: next}, nil
}

// Append pushes req.Changes to the remote stream's log.
func (cl *Client) Append(ctx context.Context, req logbroker.AppendRequest) (logbroker.AppendResult, error) {
	changes := make([]WireChange, len(req.Changes))
	for i, c := range req.Changes {
		changes[i] = FromChange(c)
	}
	body := AppendRequestBody{Stream: req.Stream, IdempotencyKey: req.IdempotencyKey, Changes: changes}

	var resp AppendResponseBody
	if err := cl.post(ctx, "/append", body, &resp); err != nil {
		return logbroker.AppendResult{}, err
	}
	return logbroker.AppendResult{Accepted: resp.Accepted}, nil
}

func (cl *Client) post(ctx context.Context, path string, reqBody, respBody any) error {
	raw, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("transport/http: encoding %s request: %w", path, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cl.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("transport/http: building %s request: %w", path, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := cl.httpc.Do(httpReq)
	if err != nil {
		return fmt.Errorf("transport/http: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var wire struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &wire) == nil && wire.Error != "" {
			return remoteError(resp.StatusCode, wire.Error)
		}
		return remoteError(resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("transport/http: decoding %s response: %w", path, err)
	}
	return nil
}

// remoteError maps wire status codes back onto the broker's sentinel
// errors so callers can match with errors.Is across the transport.
func remoteError(status int, msg string) error {
	switch status {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", logbroker.ErrValidation, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", logbroker.ErrConflict, msg)
	default:
		return fmt.Errorf("transport/http: remote returned %d: %s", status, msg)
	}
}
