package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Notification summarises one updater run.
type Notification struct {
	RunAt           time.Time
	Tickers         []string
	Appended        int
	Failed          []string
	NoData          []string
	StoreUnreadable bool
	Error           string
}

// Notifier delivers run reports.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramOptions configure a TelegramNotifier.
type TelegramOptions struct {
	BotToken string
	ChatID   string
	APIBase  string
	Timeout  time.Duration
	// Retries is the number of extra attempts after a failed send.
	Retries int
	// Backoff is the delay before the first retry; it doubles on each attempt.
	Backoff time.Duration
}

// TelegramNotifier sends run reports through the Telegram Bot API.
type TelegramNotifier struct {
	opts   TelegramOptions
	client *http.Client
	logger zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(opts TelegramOptions, logger zerolog.Logger) *TelegramNotifier {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.APIBase == "" {
		opts.APIBase = "https://api.telegram.org"
	}
	opts.APIBase = strings.TrimRight(opts.APIBase, "/")
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}

	return &TelegramNotifier{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify sends the rendered report, retrying with exponential backoff.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	text := renderMessage(note)

	var lastErr error
	backoff := n.opts.Backoff
	for attempt := 0; attempt <= n.opts.Retries; attempt++ {
		if attempt > 0 {
			n.logger.Warn().Err(lastErr).Int("attempt", attempt).Dur("backoff", backoff).Msg("telegram send failed; retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if lastErr = n.send(ctx, text); lastErr == nil {
			n.logger.Info().Time("run_at", note.RunAt).
				Int("appended", note.Appended).
				Strs("failed", note.Failed).
				Msg("run report sent")
			return nil
		}
	}
	return fmt.Errorf("telegram: %d attempts failed: %w", n.opts.Retries+1, lastErr)
}

func (n *TelegramNotifier) send(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{
		"chat_id":    n.opts.ChatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.opts.APIBase, n.opts.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(raw, &result); err == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false: %s", result.Description)
	}
	return nil
}

func renderMessage(note Notification) string {
	var b strings.Builder
	b.WriteString("<b>BIST Tracker</b>\n")
	fmt.Fprintf(&b, "Run: %s UTC\n", note.RunAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Tickers: %s\n", html.EscapeString(strings.Join(note.Tickers, ", ")))
	fmt.Fprintf(&b, "Appended rows: %d\n", note.Appended)
	if len(note.Failed) > 0 {
		fmt.Fprintf(&b, "Fetch failed: %s\n", html.EscapeString(strings.Join(note.Failed, ", ")))
	}
	if len(note.NoData) > 0 {
		fmt.Fprintf(&b, "No data: %s\n", html.EscapeString(strings.Join(note.NoData, ", ")))
	}
	if note.StoreUnreadable {
		b.WriteString("<b>Warning:</b> store was unreadable; duplicates possible\n")
	}
	if note.Error != "" {
		fmt.Fprintf(&b, "<b>Error:</b> %s\n", html.EscapeString(note.Error))
	}
	return b.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
