package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const webhookTimeout = 10 * time.Second

// Channel is a named webhook delivery target. Alerts reference channels by
// name in NotificationChannels.
type Channel struct {
	Name string
	// Type is one of: slack | teams | pagerduty | http.
	Type string
	URL  string
}

// WebhookNotifier posts alert events to the channels named by the alert.
// Deliveries share one rate limiter across all channels.
//
// WebhookNotifier is safe for concurrent use.
type WebhookNotifier struct {
	channels map[string]Channel
	client   *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewWebhookNotifier returns a notifier for channels. A non-positive limit
// disables throttling.
func NewWebhookNotifier(channels []Channel, limit rate.Limit, burst int, logger *zap.Logger) *WebhookNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limit <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	byName := make(map[string]Channel, len(channels))
	for _, ch := range channels {
		byName[ch.Name] = ch
	}
	return &WebhookNotifier{
		channels: byName,
		client:   &http.Client{Timeout: webhookTimeout},
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger.Named("webhook"),
	}
}

// Notify delivers ev to every configured channel the alert names. Unknown
// channels are skipped. Errors are logged.
func (n *WebhookNotifier) Notify(ctx context.Context, ev Event) {
	for _, name := range ev.Alert.NotificationChannels {
		ch, ok := n.channels[name]
		if !ok || ch.URL == "" {
			n.logger.Debug("no webhook configured for channel", zap.String("channel", name))
			continue
		}

		if err := n.limiter.Wait(ctx); err != nil {
			n.logger.Warn("webhook delivery abandoned", zap.String("channel", name), zap.Error(err))
			return
		}

		var err error
		switch ch.Type {
		case "slack":
			err = n.sendSlack(ctx, ch.URL, ev)
		case "teams":
			err = n.sendTeams(ctx, ch.URL, ev)
		case "pagerduty", "http":
			err = n.sendHTTP(ctx, ch.URL, ev)
		default:
			n.logger.Warn("unknown webhook type, skipping", zap.String("channel", name), zap.String("type", ch.Type))
			continue
		}

		if err != nil {
			n.logger.Error("webhook delivery failed",
				zap.String("channel", name),
				zap.String("type", ch.Type),
				zap.String("alert", ev.Alert.Name),
				zap.Error(err),
			)
		} else {
			n.logger.Debug("webhook delivered",
				zap.String("channel", name),
				zap.String("alert", ev.Alert.Name),
				zap.String("kind", string(ev.Kind)),
			)
		}
	}
}

func (n *WebhookNotifier) sendSlack(ctx context.Context, url string, ev Event) error {
	body, _ := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*%s* %s", severityLabel(ev.Alert.Severity), message(ev)),
	})
	return n.post(ctx, url, body)
}

func (n *WebhookNotifier) sendTeams(ctx context.Context, url string, ev Event) error {
	payload := map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(ev.Alert.Severity),
		"summary":    ev.Alert.Name,
		"title":      fmt.Sprintf("pi-monitor alert: %s", ev.Alert.Name),
		"text":       message(ev),
	}
	body, _ := json.Marshal(payload)
	return n.post(ctx, url, body)
}

func (n *WebhookNotifier) sendHTTP(ctx context.Context, url string, ev Event) error {
	body, _ := json.Marshal(map[string]any{"event": ev})
	return n.post(ctx, url, body)
}

func (n *WebhookNotifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func message(ev Event) string {
	return fmt.Sprintf("%s %s: %s (value %s, threshold %s)",
		ev.Alert.Name, ev.Kind, ev.Alert.Condition,
		strconv.FormatFloat(ev.Value, 'g', -1, 64),
		strconv.FormatFloat(ev.Alert.Threshold, 'g', -1, 64),
	)
}

func severityLabel(s Severity) string {
	switch s {
	case SeverityCritical:
		return "[CRITICAL]"
	case SeverityWarning:
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(s Severity) string {
	switch s {
	case SeverityCritical:
		return "FF4F6A"
	case SeverityWarning:
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
