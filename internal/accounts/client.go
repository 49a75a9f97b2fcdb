// Package accounts is the HTTP client for the external user-account service
// that owns canonical user tokens.
package accounts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// ErrRequestFailed is returned when the account service answers with an
// error status or success=false
var ErrRequestFailed = errors.New("account service request failed")

// Service is the subset of the account service the gateway consumes
type Service interface {
	// Register creates an account and returns its canonical user token
	Register(ctx context.Context, email, password, displayName string) (string, error)
	// Exists checks an email (byToken=false) or a canonical token (byToken=true)
	Exists(ctx context.Context, identifier string, byToken bool) (bool, error)
	// UpdateDisplayName pushes a new display name for a canonical user
	UpdateDisplayName(ctx context.Context, user, displayName string) error
}

// Client talks to the account service over JSON/HTTP
type Client struct {
	baseURL     string
	application string
	http        *http.Client
	log         *slog.Logger
}

// envelope is the account service's response wrapper
type envelope struct {
	Success  bool            `json:"success"`
	Response json.RawMessage `json:"response"`
	Errors   []any           `json:"errors"`
}

// NewClient creates an account service client. application is the gateway's
// application token, sent with updates.
func NewClient(baseURL, application string, httpClient *http.Client, log *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		application: application,
		http:        httpClient,
		log:         log.With(slog.String("component", "accounts")),
	}
}

// Register creates a new account
func (c *Client) Register(ctx context.Context, email, password, displayName string) (string, error) {
	var out struct {
		User struct {
			Token string `json:"token"`
		} `json:"user"`
	}
	err := c.post(ctx, "/user/register", map[string]string{
		"email":           email,
		"password":        password,
		"passwordConfirm": password,
		"displayName":     displayName,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.User.Token == "" {
		return "", fmt.Errorf("%w: register returned no token", ErrRequestFailed)
	}
	return out.User.Token, nil
}

// Exists checks whether an account matches identifier
func (c *Client) Exists(ctx context.Context, identifier string, byToken bool) (bool, error) {
	body := map[string]any{"user": identifier}
	if byToken {
		body["token"] = true
	}

	var out struct {
		Exists bool `json:"exists"`
	}
	if err := c.post(ctx, "/user/exists", body, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

// UpdateDisplayName pushes a display name change
func (c *Client) UpdateDisplayName(ctx context.Context, user, displayName string) error {
	return c.post(ctx, "/user/update", map[string]string{
		"user":        user,
		"displayName": displayName,
		"application": c.application,
	}, nil)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", path, err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s returned status %d", ErrRequestFailed, path, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	if !env.Success {
		c.log.Debug("account service rejected request",
			slog.String("path", path),
			slog.Any("errors", env.Errors))
		return fmt.Errorf("%w: %s: %v", ErrRequestFailed, path, env.Errors)
	}

	if out != nil && len(env.Response) > 0 {
		if err := json.Unmarshal(env.Response, out); err != nil {
			return fmt.Errorf("failed to decode %s payload: %w", path, err)
		}
	}
	return nil
}

var _ Service = (*Client)(nil)
