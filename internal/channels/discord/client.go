package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/gabriel-vasile/mimetype"

	. "github.com/hwestman/personabot/internal/logging"
)

const defaultAPIBase = "https://discord.com/api/v10"

// maxMessageLen is Discord's per-message content limit.
const maxMessageLen = 2000

// Client wraps the Discord REST API: bot-token auth, JSON bodies,
// multipart attachments and a single wait on rate-limit responses.
type Client struct {
	base  string
	token string
	appID string
	httpc *http.Client
}

// NewClient creates a REST client for one bot application.
func NewClient(token, appID string) *Client {
	return &Client{
		base:  defaultAPIBase,
		token: token,
		appID: appID,
		httpc: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from Discord.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord api: status %d: %s", e.Status, e.Body)
}

// do sends one JSON request. A 429 is retried once after the advertised
// wait; repeat limits surface as errors for the caller's retry policy.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Authorization", "Bot "+c.token)
		req.Header.Set("User-Agent", userAgent)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		retry, err := c.send(req, path, out)
		if !retry || attempt > 0 {
			return err
		}
	}
}

const userAgent = "DiscordBot (github.com/hwestman/personabot, 1.0)"

// send executes one prepared request. It returns retry=true when the
// call hit a rate limit and the advertised wait has already elapsed.
func (c *Client) send(req *http.Request, path string, out any) (retry bool, err error) {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		wait := retryAfter(respBody)
		L_warn("discord: rate limited", "path", path, "wait", wait)
		select {
		case <-time.After(wait):
			return true, &APIError{Status: resp.StatusCode, Body: string(respBody)}
		case <-req.Context().Done():
			return false, req.Context().Err()
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}

	L_trace("discord: api call", "method", req.Method, "path", path, "status", resp.StatusCode)

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return false, fmt.Errorf("decoding response: %w", err)
		}
	}
	return false, nil
}

// retryAfter extracts the wait from a 429 body, with a safe fallback.
func retryAfter(body []byte) time.Duration {
	var r struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.Unmarshal(body, &r); err == nil && r.RetryAfter > 0 {
		return time.Duration(r.RetryAfter * float64(time.Second))
	}
	return time.Second
}

// doMultipart sends payload as the payload_json part with one file part
// per attachment. Used for replies carrying generated images.
func (c *Client) doMultipart(ctx context.Context, method, path string, payload any, files []namedFile, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	meta, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	jsonHeader := textproto.MIMEHeader{}
	jsonHeader.Set("Content-Disposition", `form-data; name="payload_json"`)
	jsonHeader.Set("Content-Type", "application/json")
	part, err := w.CreatePart(jsonHeader)
	if err != nil {
		return fmt.Errorf("building form: %w", err)
	}
	if _, err := part.Write(meta); err != nil {
		return fmt.Errorf("building form: %w", err)
	}

	for i, f := range files {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="files[%d]"; filename=%q`, i, f.name))
		header.Set("Content-Type", mimetype.Detect(f.data).String())
		part, err := w.CreatePart(header)
		if err != nil {
			return fmt.Errorf("building form: %w", err)
		}
		if _, err := part.Write(f.data); err != nil {
			return fmt.Errorf("building form: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("building form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &buf)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", w.FormDataContentType())

	_, err = c.send(req, path, out)
	return err
}

type namedFile struct {
	name string
	data []byte
}

// CreateInteractionResponse answers an interaction through the callback
// endpoint. Valid once per interaction, within three seconds of
// receiving it.
func (c *Client) CreateInteractionResponse(ctx context.Context, id, token string, resp interactionResponse) error {
	path := fmt.Sprintf("/interactions/%s/%s/callback", id, token)
	return c.do(ctx, http.MethodPost, path, resp, nil)
}

// EditOriginal rewrites the interaction's original response, which is
// the deferred placeholder until the first edit lands.
func (c *Client) EditOriginal(ctx context.Context, token string, p messagePayload) error {
	path := fmt.Sprintf("/webhooks/%s/%s/messages/@original", c.appID, token)
	return c.do(ctx, http.MethodPatch, path, p, nil)
}

// EditOriginalWithFiles rewrites the original response and attaches
// files to it.
func (c *Client) EditOriginalWithFiles(ctx context.Context, token string, p messagePayload, files []namedFile) error {
	path := fmt.Sprintf("/webhooks/%s/%s/messages/@original", c.appID, token)
	return c.doMultipart(ctx, http.MethodPatch, path, p, files, nil)
}

// CreateFollowup posts an additional message under the interaction.
func (c *Client) CreateFollowup(ctx context.Context, token string, p messagePayload) (Message, error) {
	path := fmt.Sprintf("/webhooks/%s/%s", c.appID, token)
	var msg Message
	err := c.do(ctx, http.MethodPost, path, p, &msg)
	return msg, err
}

// CreateFollowupWithFiles posts a followup carrying attachments.
func (c *Client) CreateFollowupWithFiles(ctx context.Context, token string, p messagePayload, files []namedFile) error {
	path := fmt.Sprintf("/webhooks/%s/%s", c.appID, token)
	return c.doMultipart(ctx, http.MethodPost, path, p, files, nil)
}

// CreateMessage posts a message to a channel.
func (c *Client) CreateMessage(ctx context.Context, channelID string, p messagePayload) (Message, error) {
	path := fmt.Sprintf("/channels/%s/messages", channelID)
	var msg Message
	err := c.do(ctx, http.MethodPost, path, p, &msg)
	return msg, err
}

// CreateMessageWithFiles posts a channel message carrying attachments.
func (c *Client) CreateMessageWithFiles(ctx context.Context, channelID string, p messagePayload, files []namedFile) (Message, error) {
	path := fmt.Sprintf("/channels/%s/messages", channelID)
	var msg Message
	err := c.doMultipart(ctx, http.MethodPost, path, p, files, &msg)
	return msg, err
}

// EditMessage rewrites a previously sent channel message.
func (c *Client) EditMessage(ctx context.Context, channelID, messageID string, p messagePayload) error {
	path := fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID)
	return c.do(ctx, http.MethodPatch, path, p, nil)
}

// TriggerTyping shows the typing indicator in a channel for up to ten
// seconds.
func (c *Client) TriggerTyping(ctx context.Context, channelID string) error {
	path := fmt.Sprintf("/channels/%s/typing", channelID)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// BulkOverwriteCommands replaces the registered command set. A guild id
// scopes the sync to that guild, where changes propagate instantly;
// empty syncs globally.
func (c *Client) BulkOverwriteCommands(ctx context.Context, guildID string, cmds []ApplicationCommand) error {
	path := fmt.Sprintf("/applications/%s/commands", c.appID)
	if guildID != "" {
		path = fmt.Sprintf("/applications/%s/guilds/%s/commands", c.appID, guildID)
	}
	return c.do(ctx, http.MethodPut, path, cmds, nil)
}

// GatewayURL asks Discord where to open the realtime websocket.
func (c *Client) GatewayURL(ctx context.Context) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodGet, "/gateway/bot", nil, &resp); err != nil {
		return "", err
	}
	if resp.URL == "" {
		return "", fmt.Errorf("gateway endpoint returned no url")
	}
	return resp.URL, nil
}

// CurrentUser fetches the bot's own user record.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var u User
	err := c.do(ctx, http.MethodGet, "/users/@me", nil, &u)
	return u, err
}
