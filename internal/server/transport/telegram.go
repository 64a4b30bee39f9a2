package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// Telegram implements Transport over the Telegram Bot API. Channel handles
// are chat identifiers and content/artifact references are message
// identifiers, both carried as opaque strings by the core.
type Telegram struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewTelegram constructs a transport. baseURL is normally
// "https://api.telegram.org"; tests point it at a local server.
func NewTelegram(baseURL, token string, client *http.Client) *Telegram {
	if client == nil {
		client = http.DefaultClient
	}
	return &Telegram{baseURL: baseURL, token: token, client: client}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

func (t *Telegram) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", method, err)
	}

	var api apiResponse
	if err := json.Unmarshal(raw, &api); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if !api.OK {
		return fmt.Errorf("%s failed: %s", method, api.Description)
	}
	if out != nil {
		if err := json.Unmarshal(api.Result, out); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
	}
	return nil
}

func (t *Telegram) Deliver(ctx context.Context, sourceChannel, targetChannel, contentRef string) (string, error) {
	messageID, err := strconv.ParseInt(contentRef, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid content ref %q: %w", contentRef, err)
	}

	var result struct {
		MessageID int64 `json:"message_id"`
	}
	err = t.call(ctx, "copyMessage", map[string]any{
		"chat_id":      targetChannel,
		"from_chat_id": sourceChannel,
		"message_id":   messageID,
	}, &result)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(result.MessageID, 10), nil
}

func (t *Telegram) RemoveArtifact(ctx context.Context, targetChannel, artifactRef string) error {
	messageID, err := strconv.ParseInt(artifactRef, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid artifact ref %q: %w", artifactRef, err)
	}
	return t.call(ctx, "deleteMessage", map[string]any{
		"chat_id":    targetChannel,
		"message_id": messageID,
	}, nil)
}

func (t *Telegram) Notify(ctx context.Context, targetChannel, text string) error {
	return t.call(ctx, "sendMessage", map[string]any{
		"chat_id": targetChannel,
		"text":    text,
	}, nil)
}
