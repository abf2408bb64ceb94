package discord

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

const apiBase = "https://discord.com/api/v10"

// RateLimitError is returned on HTTP 429. RetryAfter carries the
// server-suggested delay.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("discord: rate limited, retry after %s", e.RetryAfter)
}

// ErrForbidden is returned on HTTP 403 (missing permissions).
var ErrForbidden = errors.New("discord: missing permissions")

// rest is a minimal authenticated Discord REST client.
type rest struct {
	token  string
	client *http.Client
}

func newREST(token string) *rest {
	return &rest{
		token:  token,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// do performs one JSON request against the API and decodes the response
// into out when non-nil.
func (r *rest) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, apiBase+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+r.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s %s response: %w", method, path, err)
		}
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		retry := time.Second
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.ParseFloat(v, 64); err == nil {
				retry = time.Duration(secs * float64(time.Second))
			}
		}
		return &RateLimitError{RetryAfter: retry}
	case resp.StatusCode == http.StatusForbidden:
		return ErrForbidden
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("http %d: %s", resp.StatusCode, body)
	}
}

// postMultipart sends payload as payload_json plus one file to url.
// Used for webhook executions and interaction callbacks that attach a
// file.
func (r *rest) postMultipart(url string, payload any, file *File, authed bool) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	if err := w.WriteField("payload_json", string(data)); err != nil {
		return fmt.Errorf("writing payload field: %w", err)
	}

	part, err := w.CreateFormFile("files[0]", file.Name)
	if err != nil {
		return fmt.Errorf("creating file part: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return fmt.Errorf("writing file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing multipart body: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if authed {
		req.Header.Set("Authorization", "Bot "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// postJSON sends payload to an absolute URL without auth (webhook URLs
// embed their own token).
func (r *rest) postJSON(url string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	resp, err := r.client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// getBytes fetches an arbitrary URL.
func (r *rest) getBytes(url string) ([]byte, error) {
	resp, err := r.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: http %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}

// webhookInfo is the subset of the webhook object we care about.
type webhookInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Token string `json:"token"`
}

func (w webhookInfo) url() string {
	return fmt.Sprintf("%s/webhooks/%s/%s", apiBase, w.ID, w.Token)
}

func (r *rest) channelWebhooks(channelID int64) ([]webhookInfo, error) {
	var hooks []webhookInfo
	err := r.do(http.MethodGet, fmt.Sprintf("/channels/%d/webhooks", channelID), nil, &hooks)
	return hooks, err
}

func (r *rest) createWebhook(channelID int64, name string) (webhookInfo, error) {
	var hook webhookInfo
	err := r.do(http.MethodPost, fmt.Sprintf("/channels/%d/webhooks", channelID),
		map[string]string{"name": name}, &hook)
	return hook, err
}

func (r *rest) editTopic(channelID int64, topic string) error {
	return r.do(http.MethodPatch, fmt.Sprintf("/channels/%d", channelID),
		map[string]string{"topic": topic}, nil)
}

type messageReference struct {
	MessageID string `json:"message_id"`
}

type createMessage struct {
	Embeds           []Embed           `json:"embeds,omitempty"`
	MessageReference *messageReference `json:"message_reference,omitempty"`
	AllowedMentions  map[string]any    `json:"allowed_mentions"`
}

func (r *rest) sendEmbed(channelID int64, embed Embed, replyTo string) error {
	msg := createMessage{
		Embeds:          []Embed{embed},
		AllowedMentions: map[string]any{"parse": []string{}, "replied_user": false},
	}
	if replyTo != "" {
		msg.MessageReference = &messageReference{MessageID: replyTo}
	}
	return r.do(http.MethodPost, fmt.Sprintf("/channels/%d/messages", channelID), msg, nil)
}

type commandDef struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        int    `json:"type"`
}

// syncCommands bulk-overwrites the application's slash commands,
// guild-scoped when guildID is nonzero (instant) or global otherwise.
func (r *rest) syncCommands(appID string, guildID int64, defs []commandDef) error {
	path := fmt.Sprintf("/applications/%s/commands", appID)
	if guildID != 0 {
		path = fmt.Sprintf("/applications/%s/guilds/%d/commands", appID, guildID)
	}
	return r.do(http.MethodPut, path, defs, nil)
}

const (
	callbackChannelMessage = 4
	flagEphemeral          = 64
)

type interactionCallback struct {
	Type int                     `json:"type"`
	Data interactionCallbackData `json:"data"`
}

type interactionCallbackData struct {
	Embeds []Embed `json:"embeds,omitempty"`
	Flags  int     `json:"flags,omitempty"`
}

// respondInteraction answers a slash command, with a file attachment
// when reply.File is set.
func (r *rest) respondInteraction(id, token string, reply InteractionReply) error {
	cb := interactionCallback{
		Type: callbackChannelMessage,
		Data: interactionCallbackData{Embeds: []Embed{reply.Embed}},
	}
	if reply.Ephemeral {
		cb.Data.Flags = flagEphemeral
	}

	url := fmt.Sprintf("%s/interactions/%s/%s/callback", apiBase, id, token)
	if reply.File != nil {
		return r.postMultipart(url, cb, reply.File, false)
	}
	return r.postJSON(url, cb)
}
