package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/levenlabs/go-lflag"

	"github.com/peakshed/peakshed/pkg/config"
	"github.com/peakshed/peakshed/pkg/log"
	"github.com/peakshed/peakshed/pkg/types"
)

// Multi fans a notification out to every notifier and joins the errors so
// one failing channel never blocks the others.
type Multi []Notifier

// Send implements Notifier.
func (m Multi) Send(ctx context.Context, level types.NotificationLevel, subject, body string) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, level, subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier implements Notifier by writing to the log. It is the fallback
// when no delivery channel is configured and is always part of the Multi so
// every notification leaves a trace.
type LogNotifier struct{}

// Send implements Notifier.
func (LogNotifier) Send(ctx context.Context, level types.NotificationLevel, subject, body string) error {
	log.Ctx(ctx).InfoContext(ctx, "notification",
		slog.String("level", level.String()),
		slog.String("subject", subject),
		slog.String("body", body),
	)
	return nil
}

// Mock records notifications for tests.
type Mock struct {
	mu sync.Mutex

	// Err is returned by Send when set.
	Err error

	// Sent records every delivered notification.
	Sent []SentNotification
}

// SentNotification is one recorded Send call.
type SentNotification struct {
	Level   types.NotificationLevel
	Subject string
	Body    string
}

// Send implements Notifier.
func (m *Mock) Send(ctx context.Context, level types.NotificationLevel, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, SentNotification{Level: level, Subject: subject, Body: body})
	return nil
}

// Last returns the most recent notification, or nil.
func (m *Mock) Last() *SentNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return nil
	}
	n := m.Sent[len(m.Sent)-1]
	return &n
}

// Configured sets up the notifier and optional telemetry publisher based on
// flags and configured secrets. Call config.Configured first.
type ConfiguredNotify struct {
	Notifier  Notifier
	Telemetry *Telemetry
}

// Configured sets up notification delivery. Email and MQTT are enabled when
// their secrets are present unless disabled by flag.
func Configured(conf *config.Loaded) *ConfiguredNotify {
	emailEnabled := lflag.Bool("notify-email", true, "Send email notifications when mail secrets are configured")
	mqttEnabled := lflag.Bool("notify-mqtt", true, "Publish decisions to MQTT when a broker is configured")

	n := &ConfiguredNotify{}

	lflag.Do(func() {
		multi := Multi{LogNotifier{}}

		mail := conf.Secrets.Mail
		if *emailEnabled && mail.APIKey != "" && mail.To != "" {
			multi = append(multi, NewEmail(mail.APIKey, mail.From, mail.To))
		}
		n.Notifier = multi

		mq := conf.Secrets.MQTT
		if *mqttEnabled && mq.Broker != "" {
			tel, err := NewTelemetry(mq.Broker, mq.Username, mq.Password, mq.Topic)
			if err != nil {
				panic(err.Error())
			}
			n.Telemetry = tel
		}
	})

	return n
}
