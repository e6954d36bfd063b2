package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/peakshed/peakshed/pkg/log"
	"github.com/peakshed/peakshed/pkg/types"
)

// Telemetry publishes every decision to an MQTT topic so home automation
// (Home Assistant and friends) can react to period changes without polling
// the HTTP API.
type Telemetry struct {
	client mqtt.Client
	topic  string
}

// NewTelemetry connects to the broker and returns a Telemetry publisher.
func NewTelemetry(broker, username, password, topic string) (*Telemetry, error) {
	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID("peakshed")
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetAutoReconnect(true)
	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect failed: %w", token.Error())
	}
	return &Telemetry{client: client, topic: topic}, nil
}

// PublishDecision publishes the decision as retained JSON so late
// subscribers see the current state immediately.
func (t *Telemetry) PublishDecision(ctx context.Context, d types.DecisionResult) error {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal decision: %w", err)
	}

	token := t.client.Publish(t.topic, 0, true, b)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt publish timed out")
	}
	if token.Error() != nil {
		return fmt.Errorf("mqtt publish failed: %w", token.Error())
	}

	log.Ctx(ctx).DebugContext(ctx, "published decision",
		slog.String("topic", t.topic),
		slog.String("cycleID", d.CycleID),
	)
	return nil
}

// Close disconnects from the broker.
func (t *Telemetry) Close() {
	t.client.Disconnect(250)
}
