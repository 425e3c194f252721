package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/matheus3301/glasschat/internal/store"
	"go.uber.org/zap"
)

// TokenSource supplies the bearer credential and renews it after a 401.
// *auth.Manager satisfies this.
type TokenSource interface {
	Token() string
	Refresh(ctx context.Context) (string, error)
}

// Client talks to the chat REST API. Every request carries the bearer
// token; a 401 triggers exactly one refresh-and-retry before the error
// is surfaced.
type Client struct {
	base   string
	httpc  *http.Client
	tokens TokenSource
	logger *zap.Logger
}

// NewClient creates a client for the API at base.
func NewClient(base string, httpc *http.Client, tokens TokenSource, logger *zap.Logger) *Client {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	return &Client{
		base:   strings.TrimSuffix(base, "/"),
		httpc:  httpc,
		tokens: tokens,
		logger: logger,
	}
}

// listEnvelope is the paginated response shape shared by list endpoints.
type listEnvelope struct {
	Data struct {
		Data json.RawMessage `json:"data"`
		Meta store.PageMeta  `json:"meta"`
	} `json:"data"`
	Message string `json:"message"`
}

// Inbox fetches one page of the conversation list, optionally filtered
// by a search term.
func (c *Client) Inbox(ctx context.Context, page, limit int, search string) ([]store.Conversation, store.PageMeta, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	if search != "" {
		q.Set("search", search)
	}

	var env listEnvelope
	if err := c.do(ctx, http.MethodGet, "/chat/inbox?"+q.Encode(), nil, &env); err != nil {
		return nil, store.PageMeta{}, err
	}
	var convs []store.Conversation
	if err := json.Unmarshal(env.Data.Data, &convs); err != nil {
		return nil, store.PageMeta{}, fmt.Errorf("decode inbox page: %w", err)
	}
	return convs, env.Data.Meta, nil
}

// Messages fetches one page of a conversation's history, newest first.
func (c *Client) Messages(ctx context.Context, conversationID string, page, limit int) ([]store.Message, store.PageMeta, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	path := "/chat/conversations/" + url.PathEscape(conversationID) + "/messages?" + q.Encode()
	var env listEnvelope
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, store.PageMeta{}, err
	}
	var msgs []store.Message
	if err := json.Unmarshal(env.Data.Data, &msgs); err != nil {
		return nil, store.PageMeta{}, fmt.Errorf("decode message page: %w", err)
	}
	return msgs, env.Data.Meta, nil
}

// CreateDirectChat creates (or returns the existing) direct conversation
// with the given user.
func (c *Client) CreateDirectChat(ctx context.Context, receiverID string) (*store.Conversation, error) {
	body := map[string]string{"receiverId": receiverID}
	var env struct {
		Data    store.Conversation `json:"data"`
		Message string             `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/chat/conversations/direct", body, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

// MarkAsRead marks every message in the conversation as read.
func (c *Client) MarkAsRead(ctx context.Context, conversationID string) error {
	path := "/chat/conversations/" + url.PathEscape(conversationID) + "/read"
	return c.do(ctx, http.MethodPatch, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	resp, raw, err := c.send(ctx, method, path, body, c.tokens.Token())
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		token, rerr := c.tokens.Refresh(ctx)
		if rerr != nil {
			return fmt.Errorf("%s %s: unauthorized and refresh failed: %w", method, path, rerr)
		}
		c.logger.Debug("retrying request with refreshed token", zap.String("path", path))
		resp, raw, err = c.send(ctx, method, path, body, token)
		if err != nil {
			return err
		}
	}

	if resp.StatusCode >= 300 {
		return apiError(method, path, resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body any, token string) (*http.Response, []byte, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal %s %s body: %w", method, path, err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	return resp, raw, nil
}

func apiError(method, path string, code int, raw []byte) error {
	var env struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &env) == nil && env.Message != "" {
		return fmt.Errorf("%s %s: %s (status %d)", method, path, env.Message, code)
	}
	return fmt.Errorf("%s %s: status %d", method, path, code)
}
