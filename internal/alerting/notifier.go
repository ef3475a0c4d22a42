package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fuel-fraud-alerts/internal/detection"
)

// RunSummary captures the outcome of one scheduled analysis run.
type RunSummary struct {
	Day        time.Time
	Stations   int
	NewAlerts  int
	Suppressed int
	ByType     map[detection.AlertType]int
	Channels   []string
}

// Notifier delivers run summaries to operators.
type Notifier interface {
	Notify(ctx context.Context, summary RunSummary) error
}

// TelegramNotifier pushes run summaries through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls the sendMessage API with a rendered summary.
func (n *TelegramNotifier) Notify(ctx context.Context, summary RunSummary) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(summary),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
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

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().
		Time("day", summary.Day).
		Int("new_alerts", summary.NewAlerts).
		Str("channels", strings.Join(summary.Channels, ",")).
		Msg("run summary sent")
	return nil
}

func renderMessage(summary RunSummary) string {
	builder := strings.Builder{}
	builder.WriteString("[Fuelwatch Fraud Alerts]\n")
	builder.WriteString(fmt.Sprintf("Day: %s\n", summary.Day.Format("2006-01-02")))
	builder.WriteString(fmt.Sprintf("Stations analyzed: %d\n", summary.Stations))
	builder.WriteString(fmt.Sprintf("New alerts: %d (suppressed %d already known)\n", summary.NewAlerts, summary.Suppressed))
	for _, typ := range []detection.AlertType{
		detection.TypeUnitPriceOutlier,
		detection.TypeImprobableVelocity,
		detection.TypeDuplicateInvoice,
		detection.TypeOffHours,
		detection.TypeRoundNumberClustering,
		detection.TypeZeroVarianceRun,
	} {
		if count := summary.ByType[typ]; count > 0 {
			builder.WriteString(fmt.Sprintf("  %s: %d\n", typ, count))
		}
	}
	if len(summary.Channels) > 0 {
		builder.WriteString(fmt.Sprintf("Channels: %s\n", strings.Join(summary.Channels, ",")))
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
