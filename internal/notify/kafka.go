package notify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// EventPasswordReset is the "type" field of reset events.
const EventPasswordReset = "password_reset"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes reset requests to a topic. A mail service
// consuming the topic does the actual delivery.
type KafkaNotifier struct {
	writer messageWriter
}

// NewKafkaNotifier writes to broker/topic. When username is set the
// connection uses SASL/PLAIN over TLS, as managed Kafka services require.
func NewKafkaNotifier(broker, topic, username, password string) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 10 * time.Second,
	}
	if username != "" {
		w.Transport = &kafka.Transport{
			SASL: plain.Mechanism{Username: username, Password: password},
			TLS:  &tls.Config{},
		}
	}
	return &KafkaNotifier{writer: w}
}

type resetEvent struct {
	Type    string        `json:"type"`
	Subject string        `json:"subject"`
	Body    string        `json:"body"`
	Reset   PasswordReset `json:"reset"`
}

// SendPasswordReset keys the message by recipient so all events for one
// address land on the same partition, in order.
func (n *KafkaNotifier) SendPasswordReset(ctx context.Context, msg PasswordReset) error {
	body, err := renderResetBody(msg)
	if err != nil {
		return err
	}
	value, err := json.Marshal(resetEvent{
		Type:    EventPasswordReset,
		Subject: resetSubject,
		Body:    body,
		Reset:   msg,
	})
	if err != nil {
		return fmt.Errorf("notify: kafka: encoding event: %w", err)
	}

	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.To),
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("notify: kafka: publishing: %w", err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
