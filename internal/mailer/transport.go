package mailer

import (
	"context"
	"fmt"
	"sync"

	"gopkg.in/gomail.v2"

	"onboardline/internal/domain"
	"onboardline/internal/logging"
)

const (
	KindLowStock = "IT_LOW_STOCK"
	KindWelcome  = "WELCOME"
)

// Message is a rendered email plus the routing data the transports need.
type Message struct {
	Kind   string         `json:"kind"`
	CaseID string         `json:"case_id"`
	From   string         `json:"from"`
	Email  domain.Email   `json:"email"`
	Meta   map[string]any `json:"meta,omitempty"`
	// GuardKey is released when delivery fails.
	GuardKey string `json:"guard_key,omitempty"`
}

type Transport interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

type SMTPTransport struct {
	dialer *gomail.Dialer
}

func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	return &SMTPTransport{dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)}
}

func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.Email.To)
	m.SetHeader("Subject", msg.Email.Subject)
	if msg.CaseID != "" {
		m.SetHeader("X-Onboardline-Case", msg.CaseID)
	}
	m.SetBody("text/plain", msg.Email.Body)
	if err := t.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// OutboxTransport appends each message as one JSON line to a rotating file.
type OutboxTransport struct {
	log *logging.ZapLogger
}

func NewOutboxTransport(path string) *OutboxTransport {
	return &OutboxTransport{log: logging.NewIsolated(path)}
}

func (t *OutboxTransport) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.log.Info("mailer", msg.Kind, map[string]any{
		"case_id": msg.CaseID,
		"from":    msg.From,
		"to":      msg.Email.To,
		"subject": msg.Email.Subject,
		"body":    msg.Email.Body,
		"meta":    msg.Meta,
	})
	return t.log.Sync()
}

// Path is the outbox file.
func (t *OutboxTransport) Path() string { return t.log.Path() }

// MemoryTransport keeps sent messages in memory. Err, when set, fails every send.
type MemoryTransport struct {
	mu   sync.Mutex
	sent []Message
	Err  error
}

func (t *MemoryTransport) Send(ctx context.Context, msg Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return t.Err
	}
	t.sent = append(t.sent, msg)
	return nil
}

func (t *MemoryTransport) Sent() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.sent))
	copy(out, t.sent)
	return out
}

func (t *MemoryTransport) Fail(err error) {
	t.mu.Lock()
	t.Err = err
	t.mu.Unlock()
}
