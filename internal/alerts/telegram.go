package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const telegramBaseURL = "https://api.telegram.org"

type Config struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

// Telegram delivers alert messages through the Bot API sendMessage call.
type Telegram struct {
	cfg      Config
	endpoint string
	client   *http.Client
	log      *zap.Logger
}

func NewTelegram(cfg Config, log *zap.Logger) *Telegram {
	return newTelegram(cfg, log, telegramBaseURL, nil)
}

func newTelegram(cfg Config, log *zap.Logger, baseURL string, client *http.Client) *Telegram {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	cfg.Token = strings.TrimSpace(cfg.Token)
	cfg.ChatID = strings.TrimSpace(cfg.ChatID)
	return &Telegram{
		cfg:      cfg,
		endpoint: fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(baseURL, "/"), cfg.Token),
		client:   client,
		log:      log,
	}
}

func (t *Telegram) Send(ctx context.Context, message string) error {
	if !t.cfg.Enabled {
		return nil
	}
	if t.cfg.Token == "" || t.cfg.ChatID == "" {
		return errors.New("telegram token and chat_id are required")
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return errors.New("telegram message is empty")
	}
	form := url.Values{}
	form.Set("chat_id", t.cfg.ChatID)
	form.Set("text", message)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkTelegramResponse(resp)
}

func checkTelegramResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram send failed: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	// The API reports failures inside a 200 body as {"ok":false,...}.
	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(body, &result); err != nil || result.OK {
		return nil
	}
	desc := strings.TrimSpace(result.Description)
	if desc == "" {
		desc = "unknown telegram error"
	}
	return fmt.Errorf("telegram send failed: %s", desc)
}
