package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sakif/ballot/internal/config"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testReset = PasswordReset{
	To:        "ann@example.com",
	Name:      "Ann",
	Link:      "https://vote.example.com/reset-password/abc123",
	ExpiresAt: time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC),
}

func TestRenderResetBody(t *testing.T) {
	body, err := renderResetBody(testReset)
	require.NoError(t, err)
	assert.Contains(t, body, "Hi Ann,")
	assert.Contains(t, body, "Reset your password here: https://vote.example.com/reset-password/abc123")
	assert.Contains(t, body, "2026-01-02 15:04 UTC")
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, n.SendPasswordReset(context.Background(), testReset))
	assert.Contains(t, buf.String(), "link=https://vote.example.com/reset-password/abc123")
	assert.NoError(t, n.Close())
}

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("noreply@example.com", "ann@example.com", resetSubject, "line1\nline2\n"))

	assert.True(t, strings.HasPrefix(msg, "From: noreply@example.com\r\nTo: ann@example.com\r\n"))
	assert.Contains(t, msg, "Subject: Password Reset Request\r\n")
	assert.Contains(t, msg, "\r\n\r\nline1\r\nline2\r\n")
}

func TestSMTPNotifier_RejectsBadRecipient(t *testing.T) {
	n := NewSMTPNotifier("127.0.0.1", 1, "", "", "noreply@example.com")

	bad := testReset
	bad.To = "not an address"
	assert.Error(t, n.SendPasswordReset(context.Background(), bad))
}

func TestSMTPNotifier_UnreachableRelay(t *testing.T) {
	n := NewSMTPNotifier("127.0.0.1", 1, "", "", "noreply@example.com")
	n.timeout = time.Second

	err := n.SendPasswordReset(context.Background(), testReset)
	assert.Error(t, err)
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaNotifier_PublishesEvent(t *testing.T) {
	w := &fakeWriter{}
	n := &KafkaNotifier{writer: w}

	require.NoError(t, n.SendPasswordReset(context.Background(), testReset))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "ann@example.com", string(w.msgs[0].Key))

	var ev resetEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, EventPasswordReset, ev.Type)
	assert.Equal(t, resetSubject, ev.Subject)
	assert.Equal(t, testReset.Link, ev.Reset.Link)
	assert.Contains(t, ev.Body, testReset.Link)

	require.NoError(t, n.Close())
	assert.True(t, w.closed)
}

func TestKafkaNotifier_WriteError(t *testing.T) {
	n := &KafkaNotifier{writer: &fakeWriter{err: errors.New("broker down")}}

	err := n.SendPasswordReset(context.Background(), testReset)
	assert.ErrorContains(t, err, "broker down")
}

func TestNewKafkaNotifier_SASL(t *testing.T) {
	n := NewKafkaNotifier("broker:9092", "password-reset", "user", "pass")
	w, ok := n.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "password-reset", w.Topic)
	assert.NotNil(t, w.Transport)

	plainText := NewKafkaNotifier("broker:9092", "password-reset", "", "")
	assert.Nil(t, plainText.writer.(*kafka.Writer).Transport)
}

func TestNew(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	tests := []struct {
		notifier string
		want     any
	}{
		{config.NotifierLog, &LogNotifier{}},
		{config.NotifierSMTP, &SMTPNotifier{}},
		{config.NotifierKafka, &KafkaNotifier{}},
	}
	for _, tt := range tests {
		t.Run(tt.notifier, func(t *testing.T) {
			cfg := &config.Config{Notifier: tt.notifier, Kafka: config.Kafka{Broker: "localhost:9092", Topic: "t"}}
			assert.IsType(t, tt.want, New(cfg, logger))
		})
	}
}
