//go:build !no_automation

package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Notifier delivers a text message from a script's airwatch.notify call.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Telegram sends notifications through the Telegram Bot API.
type Telegram struct {
	Token   string
	ChatIDs []string
	// APIBase overrides https://api.telegram.org.
	APIBase string
	Client  *http.Client
}

// Notify posts text to every chat. A failure for one chat does not stop the
// others; all failures are joined into the returned error.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	if t.Token == "" || len(t.ChatIDs) == 0 {
		return errors.New("telegram: bot token and chat ids are required")
	}
	base := t.APIBase
	if base == "" {
		base = "https://api.telegram.org"
	}
	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	endpoint := base + "/bot" + t.Token + "/sendMessage"

	var errs []error
	for _, chat := range t.ChatIDs {
		if err := t.send(ctx, client, endpoint, chat, text); err != nil {
			errs = append(errs, fmt.Errorf("chat %s: %w", chat, err))
		}
	}
	return errors.Join(errs...)
}

func (t *Telegram) send(ctx context.Context, client *http.Client, endpoint, chat, text string) error {
	body, err := json.Marshal(struct {
		ChatID string `json:"chat_id"`
		Text   string `json:"text"`
	}{chat, text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
