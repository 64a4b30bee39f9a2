// Package api is the HTTP client for the server's management surface.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/dropvault/internal/common"
)

type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// SetToken installs the operator token used on management calls.
func (c *Client) SetToken(token string) {
	c.token = token
}

type Payload struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	ContentRefs []string  `json:"contentRefs"`
	CreatedAt   time.Time `json:"createdAt"`
	AccessCount int64     `json:"accessCount"`
}

type PendingTask struct {
	ID               string    `json:"id"`
	SourcePayload    string    `json:"sourcePayload"`
	TargetChannel    string    `json:"targetChannel"`
	DueAt            time.Time `json:"dueAt"`
	MinutesRemaining int       `json:"minutesRemaining"`
	Overdue          bool      `json:"overdue"`
}

type apiError struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		switch resp.StatusCode {
		case http.StatusNotFound:
			return common.ErrorNotFound
		case http.StatusUnauthorized:
			return common.ErrorUnauthorized
		}
		var ae apiError
		if err := json.NewDecoder(resp.Body).Decode(&ae); err == nil && ae.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, ae.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// Authenticate exchanges the operator secret for a token and installs it on
// the client.
func (c *Client) Authenticate(ctx context.Context, secret string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/auth", map[string]string{"secret": secret}, &resp)
	if err != nil {
		return "", err
	}
	c.token = resp.Token
	return resp.Token, nil
}

func (c *Client) CreatePayload(ctx context.Context, name string, contentRefs []string) (*Payload, error) {
	var payload Payload
	err := c.do(ctx, http.MethodPost, "/payloads",
		map[string]any{"name": name, "contentRefs": contentRefs}, &payload)
	if err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *Client) ListPayloads(ctx context.Context) ([]Payload, error) {
	var payloads []Payload
	if err := c.do(ctx, http.MethodGet, "/payloads", nil, &payloads); err != nil {
		return nil, err
	}
	return payloads, nil
}

func (c *Client) DeletePayload(ctx context.Context, code string) error {
	return c.do(ctx, http.MethodDelete, "/payloads/"+code, nil, nil)
}

func (c *Client) PendingTasks(ctx context.Context) ([]PendingTask, error) {
	var tasks []PendingTask
	if err := c.do(ctx, http.MethodGet, "/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *Client) Snapshot(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/admin/snapshot", nil, nil)
}

// Restore returns how many tables the server installed from snapshots.
func (c *Client) Restore(ctx context.Context) (int, error) {
	var resp struct {
		Restored int `json:"restored"`
	}
	if err := c.do(ctx, http.MethodPost, "/admin/restore", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Restored, nil
}
