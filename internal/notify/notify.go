// Package notify delivers out-of-band messages to voters. The only message
// today is the password reset link.
//
// Three transports are available, chosen by the NOTIFIER setting:
//   - log:   writes the link to the server log (development)
//   - smtp:  sends the email directly over SMTP with STARTTLS
//   - kafka: publishes a JSON event for a separate mail service to deliver
package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"text/template"
	"time"

	"github.com/sakif/ballot/internal/config"
)

// PasswordReset is everything needed to tell a voter how to reset.
type PasswordReset struct {
	To        string    `json:"to"`
	Name      string    `json:"name"`
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Notifier sends messages. Implementations must be safe for concurrent use.
type Notifier interface {
	SendPasswordReset(ctx context.Context, msg PasswordReset) error
	Close() error
}

const resetSubject = "Password Reset Request"

var resetBody = template.Must(template.New("reset").Parse(
	`Hi {{.Name}},

Reset your password here: {{.Link}}

This link expires at {{.ExpiresAt.UTC.Format "2006-01-02 15:04 MST"}}. If you did not ask for a reset you can ignore this email.
`))

func renderResetBody(msg PasswordReset) (string, error) {
	var buf bytes.Buffer
	if err := resetBody.Execute(&buf, msg); err != nil {
		return "", fmt.Errorf("notify: rendering reset email: %w", err)
	}
	return buf.String(), nil
}

// LogNotifier writes reset links to the log instead of sending them.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendPasswordReset(ctx context.Context, msg PasswordReset) error {
	n.logger.InfoContext(ctx, "password reset link",
		slog.String("to", msg.To),
		slog.String("link", msg.Link),
		slog.Time("expiresAt", msg.ExpiresAt),
	)
	return nil
}

func (n *LogNotifier) Close() error { return nil }

// New returns the notifier selected by cfg.Notifier.
func New(cfg *config.Config, logger *slog.Logger) Notifier {
	switch cfg.Notifier {
	case config.NotifierSMTP:
		return NewSMTPNotifier(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
	case config.NotifierKafka:
		return NewKafkaNotifier(cfg.Kafka.Broker, cfg.Kafka.Topic, cfg.Kafka.Username, cfg.Kafka.Password)
	default:
		return NewLogNotifier(logger)
	}
}
