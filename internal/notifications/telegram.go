package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/eng540/Falsniper/internal/config"
)

const (
	defaultAPIBase     = "https://api.telegram.org"
	defaultSendTimeout = 10 * time.Second
	pollTimeoutSeconds = 20
)

// Telegram is the bot-API client behind the notification service. It also
// serves as the human relay for captcha codes: SendPhoto posts the challenge,
// RequestCode waits for the reply.
type Telegram struct {
	token      string
	chatID     string
	apiBase    string
	client     *http.Client
	pollClient *http.Client
}

// Option customizes the Telegram client.
type Option func(*Telegram)

// WithAPIBase overrides the bot API base URL (useful for tests/mocks).
func WithAPIBase(base string) Option {
	return func(t *Telegram) {
		base = strings.TrimSpace(base)
		if base != "" {
			t.apiBase = strings.TrimRight(base, "/")
		}
	}
}

// WithHTTPClient overrides both the send and poll HTTP clients.
func WithHTTPClient(client *http.Client) Option {
	return func(t *Telegram) {
		if client != nil {
			t.client = client
			t.pollClient = client
		}
	}
}

// NewTelegram builds the bot client, or returns nil when the token or chat
// id is not configured.
func NewTelegram(cfg *config.Config, opts ...Option) *Telegram {
	token := strings.TrimSpace(cfg.Telegram.Token)
	chatID := strings.TrimSpace(cfg.Telegram.ChatID)
	if token == "" || chatID == "" {
		return nil
	}

	timeout := cfg.TelegramRequestTimeout()
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}

	t := &Telegram{
		token:   token,
		chatID:  chatID,
		apiBase: defaultAPIBase,
		client:  &http.Client{Timeout: timeout},
		// Long polls sit idle for pollTimeoutSeconds; give the client
		// headroom beyond that.
		pollClient: &http.Client{Timeout: (pollTimeoutSeconds + 15) * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type apiEnvelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		MessageID int64  `json:"message_id"`
		Text      string `json:"text"`
		Chat      struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

func (t *Telegram) call(ctx context.Context, client *http.Client, method, contentType string, body io.Reader, out any) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", t.apiBase, t.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("telegram %s: request: %w", method, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: request failed: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("telegram %s: read body: %w", method, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("telegram %s: http %d: %s", method, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("telegram %s: decode response: %w", method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("telegram %s: api error: %s", method, strings.TrimSpace(envelope.Description))
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}

func (t *Telegram) sendMessage(ctx context.Context, text string, silent bool) error {
	payload := map[string]any{
		"chat_id":                  t.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
		"disable_notification":     silent,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram sendMessage: encode request: %w", err)
	}
	return t.call(ctx, t.client, "sendMessage", "application/json", bytes.NewReader(encoded), nil)
}

// SendPhoto posts a PNG with an optional caption.
func (t *Telegram) SendPhoto(ctx context.Context, image []byte, caption string) error {
	if len(image) == 0 {
		return errors.New("telegram sendPhoto: empty image")
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("chat_id", t.chatID); err != nil {
		return fmt.Errorf("telegram sendPhoto: build form: %w", err)
	}
	if caption != "" {
		if err := writer.WriteField("caption", caption); err != nil {
			return fmt.Errorf("telegram sendPhoto: build form: %w", err)
		}
	}
	part, err := writer.CreateFormFile("photo", "capture.png")
	if err != nil {
		return fmt.Errorf("telegram sendPhoto: build form: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return fmt.Errorf("telegram sendPhoto: build form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("telegram sendPhoto: build form: %w", err)
	}

	return t.call(ctx, t.client, "sendPhoto", writer.FormDataContentType(), &buf, nil)
}

// RequestCode posts the challenge image and blocks until a human replies in
// the configured chat or ctx expires. The first non-empty text message after
// the photo wins; it is returned trimmed but otherwise untouched.
func (t *Telegram) RequestCode(ctx context.Context, image []byte, prompt string) (string, error) {
	offset, err := t.latestUpdateID(ctx)
	if err != nil {
		// Stale updates would be mistaken for the reply; without a
		// watermark we cannot tell them apart.
		return "", fmt.Errorf("telegram relay: read update offset: %w", err)
	}

	if err := t.SendPhoto(ctx, image, prompt); err != nil {
		return "", err
	}

	for {
		updates, err := t.updates(ctx, offset+1)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			// Transient poll failure; back off briefly and retry.
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(2 * time.Second):
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID > offset {
				offset = u.UpdateID
			}
			if u.Message == nil || !t.fromConfiguredChat(u.Message.Chat.ID) {
				continue
			}
			if code := strings.TrimSpace(u.Message.Text); code != "" {
				return code, nil
			}
		}
	}
}

// latestUpdateID fetches the newest update id so RequestCode only considers
// messages sent after the challenge went out.
func (t *Telegram) latestUpdateID(ctx context.Context) (int64, error) {
	payload := map[string]any{"offset": -1, "limit": 1, "timeout": 0}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("telegram getUpdates: encode request: %w", err)
	}
	var result []update
	if err := t.call(ctx, t.client, "getUpdates", "application/json", bytes.NewReader(encoded), &result); err != nil {
		return 0, err
	}
	if len(result) == 0 {
		return 0, nil
	}
	return result[len(result)-1].UpdateID, nil
}

func (t *Telegram) updates(ctx context.Context, offset int64) ([]update, error) {
	payload := map[string]any{"offset": offset, "timeout": pollTimeoutSeconds}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("telegram getUpdates: encode request: %w", err)
	}
	var result []update
	if err := t.call(ctx, t.pollClient, "getUpdates", "application/json", bytes.NewReader(encoded), &result); err != nil {
		return nil, err
	}
	return result, nil
}

// fromConfiguredChat filters replies to the configured chat. Non-numeric
// chat ids (channel names) cannot be compared against the numeric id in
// updates, so they pass everything through.
func (t *Telegram) fromConfiguredChat(chatID int64) bool {
	want, err := strconv.ParseInt(t.chatID, 10, 64)
	if err != nil {
		return true
	}
	return chatID == want
}
