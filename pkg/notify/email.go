package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/peakshed/peakshed/pkg/common"
	"github.com/peakshed/peakshed/pkg/log"
	"github.com/peakshed/peakshed/pkg/types"
)

const mailAPIBase = "https://api.sendgrid.com"

// Email implements Notifier by calling the mail provider's v3 send API
// directly through the resilient client rather than pulling in the vendor
// SDK. Email is reserved for WARNING and above; INFO-level decisions only go
// to telemetry.
type Email struct {
	client  *common.Client
	baseURL string
	apiKey  string
	from    string
	to      string
}

// NewEmail creates an Email notifier.
func NewEmail(apiKey, from, to string) *Email {
	return &Email{
		client:  common.NewClient("mail", 10*time.Second, common.DefaultRetryPolicy()),
		baseURL: mailAPIBase,
		apiKey:  apiKey,
		from:    from,
		to:      to,
	}
}

// Send implements Notifier.
func (e *Email) Send(ctx context.Context, level types.NotificationLevel, subject, body string) error {
	if level < types.LevelWarning {
		return nil
	}

	payload := map[string]interface{}{
		"personalizations": []map[string]interface{}{
			{"to": []map[string]string{{"email": e.to}}},
		},
		"from":    map[string]string{"email": e.from},
		"subject": fmt.Sprintf("[%s] %s", level, subject),
		"content": []map[string]string{
			{"type": "text/plain", "value": body},
		},
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal mail payload: %w", err)
	}

	u := strings.TrimSuffix(e.baseURL, "/") + "/v3/mail/send"
	req, err := http.NewRequestWithContext(ctx, "POST", u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("mail send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		log.Ctx(ctx).ErrorContext(ctx, "mail send rejected",
			slog.Int("status", resp.StatusCode), slog.String("body", string(respBody)))
		return fmt.Errorf("mail send status %d", resp.StatusCode)
	}

	log.Ctx(ctx).InfoContext(ctx, "notification sent",
		slog.String("level", level.String()),
		slog.String("subject", subject),
	)
	return nil
}
