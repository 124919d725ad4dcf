package engine

import (
	"context"
	"strings"

	"onboardline/internal/domain"
	"onboardline/internal/idempotency"
	"onboardline/internal/mailer"
)

func (e Engine) CheckStock(model string) (domain.StockCheck, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return domain.StockCheck{}, domain.InvalidInput("model is required")
	}
	return e.Stock.Check(model), nil
}

// LowStockRequest asks IT to restock for a case.
type LowStockRequest struct {
	CaseID       string   `validate:"required"`
	ITEmail      string   `validate:"required,email"`
	Model        string   `validate:"required"`
	MissingItems []string `validate:"-"`
	Force        bool     `validate:"-"`
}

// SendLowStockEmail notifies IT once per (case, model, missing items); a
// repeat is skipped unless forced.
func (e Engine) SendLowStockEmail(ctx context.Context, req LowStockRequest) (domain.EmailOutcome, error) {
	req.ITEmail = strings.TrimSpace(req.ITEmail)
	req.Model = strings.TrimSpace(req.Model)
	if req.ITEmail == "" && e.Config != nil {
		req.ITEmail = e.Config.Mail.ITDefaultEmail
	}
	if err := e.check(req); err != nil {
		return domain.EmailOutcome{}, err
	}
	c, err := e.GetCase(ctx, req.CaseID)
	if err != nil {
		return domain.EmailOutcome{}, err
	}
	key := idempotency.LowStockKey(c.ID, req.Model, req.MissingItems)
	email := mailer.LowStock(c, req.ITEmail, req.Model, req.MissingItems)
	return e.deliver(ctx, mailer.Message{
		Kind:     mailer.KindLowStock,
		CaseID:   c.ID,
		Email:    email,
		Meta:     map[string]any{"model": req.Model, "missing_items": req.MissingItems},
		GuardKey: key,
	}, req.Force)
}

// SendWelcomeEmail sends the candidate's welcome message once per case. The
// recipient falls back to the email captured in the wizard.
func (e Engine) SendWelcomeEmail(ctx context.Context, caseID, to string, force bool) (domain.EmailOutcome, error) {
	c, err := e.GetCase(ctx, caseID)
	if err != nil {
		return domain.EmailOutcome{}, err
	}
	if c.Status == domain.StatusDeclined {
		return domain.EmailOutcome{}, domain.CaseTerminal(c.ID, c.Status)
	}
	to = strings.TrimSpace(to)
	if to == "" {
		to = mailer.CandidateEmail(c)
	}
	if to == "" {
		return domain.EmailOutcome{}, domain.InvalidInput("case %s has no candidate email", c.ID)
	}
	if err := e.validator().Var(to, "email"); err != nil {
		return domain.EmailOutcome{}, domain.InvalidInput("invalid recipient %q", to)
	}
	return e.deliver(ctx, mailer.Message{
		Kind:     mailer.KindWelcome,
		CaseID:   c.ID,
		Email:    mailer.Welcome(c, to),
		GuardKey: idempotency.WelcomeKey(c.ID),
	}, force)
}

// deliver claims the guard key, then sends inline or hands the message to the
// queue. The key is released whenever delivery fails.
func (e Engine) deliver(ctx context.Context, msg mailer.Message, force bool) (domain.EmailOutcome, error) {
	if msg.From == "" && e.Config != nil {
		msg.From = e.Config.Mail.From
	}
	acquired, err := e.Guard.Acquire(ctx, msg.GuardKey)
	if err != nil {
		return domain.EmailOutcome{}, domain.Upstream("idempotency guard", err)
	}
	if !acquired && !force {
		e.logger().Info("engine", "email skipped", map[string]any{"case_id": msg.CaseID, "kind": msg.Kind, "reason": "already_sent"})
		return domain.EmailOutcome{Result: domain.EmailSkipped, Reason: "already_sent"}, nil
	}
	email := msg.Email
	e.publish(msg.CaseID, "email.queued", emailPayload(msg))

	if e.MailQueue != nil {
		if err := e.MailQueue.Enqueue(ctx, msg); err != nil {
			e.mailFailed(ctx, msg, err)
			return domain.EmailOutcome{Email: &email}, domain.Upstream("mailer", err)
		}
		return domain.EmailOutcome{Result: domain.EmailQueued, Email: &email}, nil
	}
	if err := e.Mail.Send(ctx, msg); err != nil {
		e.mailFailed(ctx, msg, err)
		return domain.EmailOutcome{Email: &email}, domain.Upstream("mailer", err)
	}
	e.publish(msg.CaseID, "email.sent", emailPayload(msg))
	return domain.EmailOutcome{Result: domain.EmailSent, Email: &email}, nil
}

func (e Engine) mailFailed(ctx context.Context, msg mailer.Message, err error) {
	if rerr := e.Guard.Release(ctx, msg.GuardKey); rerr != nil {
		e.logger().Warn("engine", "release email guard", map[string]any{"key": msg.GuardKey, "error": rerr})
	}
	payload := emailPayload(msg)
	payload["error"] = err.Error()
	e.publish(msg.CaseID, "email.error", payload)
}

// HandleMailResult records the outcome of a queued delivery. It is the
// queue's result callback.
func (e Engine) HandleMailResult(msg mailer.Message, err error) {
	if err != nil {
		e.mailFailed(context.Background(), msg, err)
		return
	}
	e.publish(msg.CaseID, "email.sent", emailPayload(msg))
}

func emailPayload(msg mailer.Message) map[string]any {
	return map[string]any{"kind": msg.Kind, "to": msg.Email.To, "subject": msg.Email.Subject}
}
