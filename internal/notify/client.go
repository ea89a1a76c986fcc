// Package notify is the operator surface: trade cards and lifecycle
// alerts pushed to a Telegram chat, plus a long-poll listener for
// commands and inline-button callbacks. Everything here is best
// effort; a dead messenger never blocks the trading path.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const defaultAPIBase = "https://api.telegram.org"

// Button is one inline keyboard button.
type Button struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// Client talks to the Bot API for one bot and one chat.
type Client struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a client. With empty credentials every send is a
// silent no-op, which keeps the rest of the system oblivious to whether
// a messenger is attached.
func NewClient(token, chatID string, log zerolog.Logger) *Client {
	return &Client{
		token:   token,
		chatID:  chatID,
		baseURL: defaultAPIBase,
		// Long polls ride on their own timeout; this covers sends.
		client: &http.Client{Timeout: 75 * time.Second},
		log:    log.With().Str("client", "telegram").Logger(),
	}
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c.token != "" && c.chatID != ""
}

func (c *Client) apiURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

func (c *Client) post(method string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", method, err)
	}

	resp, err := c.client.Post(c.apiURL(method), "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s returned status %d: %s", method, resp.StatusCode, string(raw))
	}
	return nil
}

// Send pushes a plain-text message to the chat. Failures are logged,
// not returned.
func (c *Client) Send(text string) {
	if !c.Configured() {
		return
	}
	payload := map[string]string{"chat_id": c.chatID, "text": text}
	if err := c.post("sendMessage", payload); err != nil {
		c.log.Error().Err(err).Msg("Failed to send message")
	}
}

// SendWithButtons pushes a message with inline keyboard rows.
func (c *Client) SendWithButtons(text string, rows [][]Button) {
	if !c.Configured() {
		return
	}
	keyboard, err := json.Marshal(map[string]interface{}{"inline_keyboard": rows})
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to marshal keyboard")
		return
	}
	payload := map[string]string{
		"chat_id":      c.chatID,
		"text":         text,
		"reply_markup": string(keyboard),
	}
	if err := c.post("sendMessage", payload); err != nil {
		c.log.Error().Err(err).Msg("Failed to send interactive message")
	}
}

func (c *Client) answerCallback(id string) {
	if err := c.post("answerCallbackQuery", map[string]string{"callback_query_id": id}); err != nil {
		c.log.Warn().Err(err).Msg("Failed to answer callback query")
	}
}

// update is the partial Update schema the listener cares about.
type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From struct {
			Username string `json:"username"`
		} `json:"from"`
	} `json:"message"`
	CallbackQuery *struct {
		ID      string `json:"id"`
		Data    string `json:"data"`
		From    struct {
			Username string `json:"username"`
		} `json:"from"`
		Message struct {
			Chat struct {
				ID int64 `json:"id"`
			} `json:"chat"`
		} `json:"message"`
	} `json:"callback_query"`
}

type updateResponse struct {
	OK          bool     `json:"ok"`
	Result      []update `json:"result"`
	Description string   `json:"description"`
	ErrorCode   int      `json:"error_code"`
}

func (c *Client) getUpdates(ctx context.Context, offset int64) ([]update, error) {
	url := fmt.Sprintf("%s?offset=%d&timeout=60", c.apiURL("getUpdates"), offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getUpdates failed: %w", err)
	}
	defer resp.Body.Close()

	var result updateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode getUpdates response: %w", err)
	}
	if !result.OK {
		return nil, fmt.Errorf("getUpdates returned error %d: %s", result.ErrorCode, result.Description)
	}
	return result.Result, nil
}
