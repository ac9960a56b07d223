// Package notify publishes dispatch and device events to Redis
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/thereceipt/label-dispatch/internal/printer"
)

const publishTimeout = 2 * time.Second

// Message is the JSON document published for every event
type Message struct {
	Kind       string               `json:"kind"` // dispatch, usb
	Time       time.Time            `json:"time"`
	Transport  string               `json:"transport,omitempty"`
	Target     string               `json:"target,omitempty"`
	Copies     int                  `json:"copies,omitempty"`
	Result     *printer.Result      `json:"result,omitempty"`
	DurationMs int64                `json:"duration_ms,omitempty"`
	Device     *printer.DeviceEvent `json:"device,omitempty"`
}

// DispatchMessage converts a dispatch event
func DispatchMessage(ev printer.Event) Message {
	result := ev.Result
	return Message{
		Kind:       "dispatch",
		Time:       ev.StartedAt,
		Transport:  ev.Transport.String(),
		Target:     ev.Target,
		Copies:     ev.Copies,
		Result:     &result,
		DurationMs: ev.Duration.Milliseconds(),
	}
}

// DeviceMessage converts a USB attach or detach
func DeviceMessage(ev printer.DeviceEvent) Message {
	return Message{
		Kind:   "usb",
		Time:   time.Now(),
		Device: &ev,
	}
}

// Publisher sends events to a Pub/Sub channel and keeps the latest ones in a
// capped list named "<channel>:history"
type Publisher struct {
	client     *redis.Client
	channel    string
	historyLen int64
	log        logrus.FieldLogger
}

// NewPublisher connects to addr and verifies the connection
func NewPublisher(ctx context.Context, addr, password string, db int, channel string, historyLen int64, log logrus.FieldLogger) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.WithField("addr", addr).Info("redis connected")

	return &Publisher{
		client:     client,
		channel:    channel,
		historyLen: historyLen,
		log:        log,
	}, nil
}

// HistoryKey is the list holding recent messages
func (p *Publisher) HistoryKey() string {
	return p.channel + ":history"
}

// Publish sends msg to the channel and prepends it to the history list
func (p *Publisher) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	if p.historyLen > 0 {
		pipe := p.client.TxPipeline()
		pipe.LPush(ctx, p.HistoryKey(), data)
		pipe.LTrim(ctx, p.HistoryKey(), 0, p.historyLen-1)
		if _, err := pipe.Exec(ctx); err != nil {
			p.log.WithError(err).Warn("failed to save event history")
		}
	}
	return nil
}

// History returns up to n recent messages, newest first
func (p *Publisher) History(ctx context.Context, n int64) ([]Message, error) {
	if n <= 0 {
		n = p.historyLen
	}
	raw, err := p.client.LRange(ctx, p.HistoryKey(), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	messages := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			p.log.WithError(err).Debug("skipping malformed history entry")
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// ObserveDispatch publishes ev without blocking the caller for longer than
// the publish timeout
func (p *Publisher) ObserveDispatch(ev printer.Event) {
	p.publishAsync(DispatchMessage(ev))
}

// ObserveDevice publishes a USB attach or detach
func (p *Publisher) ObserveDevice(ev printer.DeviceEvent) {
	p.publishAsync(DeviceMessage(ev))
}

func (p *Publisher) publishAsync(msg Message) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := p.Publish(ctx, msg); err != nil {
			p.log.WithError(err).WithField("kind", msg.Kind).Warn("event not published")
		}
	}()
}

// Close closes the connection
func (p *Publisher) Close() error {
	return p.client.Close()
}
