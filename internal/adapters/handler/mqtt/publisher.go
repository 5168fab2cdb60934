package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"picpic.transcode/internal/core/domain"
	"picpic.transcode/internal/core/logger"
)

const publishTimeout = 5 * time.Second

// Publisher mirrors progress snapshots and attempt results onto MQTT topics:
//
//	<prefix>/progress            latest registry snapshot (retained)
//	<prefix>/attempts/<label>    every finished attempt of that file
type Publisher struct {
	client mqtt.Client
	prefix string
}

// NewPublisher connects to the broker and returns a ready publisher.
func NewPublisher(brokerURL, prefix string) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(fmt.Sprintf("picpic-transcode-%d", time.Now().UnixNano()))
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	logger.Info("Connected to MQTT broker", "broker", brokerURL)
	return &Publisher{
		client: client,
		prefix: strings.TrimSuffix(prefix, "/"),
	}, nil
}

func (p *Publisher) ProgressTopic() string {
	return p.prefix + "/progress"
}

// AttemptTopic sanitises the label so MQTT wildcards and separators in file
// names cannot leak into the topic tree.
func (p *Publisher) AttemptTopic(label string) string {
	r := strings.NewReplacer("/", "_", "+", "_", "#", "_")
	return p.prefix + "/attempts/" + r.Replace(label)
}

func (p *Publisher) PublishProgress(ctx context.Context, entries []domain.ProgressEntry) error {
	data, err := json.Marshal(map[string]any{
		"type":    "progress",
		"payload": entries,
	})
	if err != nil {
		return err
	}
	return p.publish(ctx, p.ProgressTopic(), true, data)
}

func (p *Publisher) PublishAttempt(ctx context.Context, attempt *domain.Attempt) error {
	data, err := json.Marshal(map[string]any{
		"type":    "attempt",
		"payload": attempt,
	})
	if err != nil {
		return err
	}
	return p.publish(ctx, p.AttemptTopic(attempt.Label), false, data)
}

func (p *Publisher) publish(ctx context.Context, topic string, retained bool, payload []byte) error {
	token := p.client.Publish(topic, 0, retained, payload)

	timeout := publishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt publish to %s timed out", topic)
	}
	return token.Error()
}

// Close disconnects from the broker, giving in-flight messages 250ms.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
