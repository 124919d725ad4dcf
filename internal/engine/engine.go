package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"onboardline/internal/caselock"
	"onboardline/internal/config"
	"onboardline/internal/domain"
	"onboardline/internal/events"
	"onboardline/internal/idempotency"
	"onboardline/internal/logging"
	"onboardline/internal/mailer"
	"onboardline/internal/orchestrator"
	"onboardline/internal/repo"
	"onboardline/internal/stock"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Bus    *events.Bus
	Locks  *caselock.Locker
	Guard  idempotency.Guard
	Stock  stock.Inventory
	Config *config.Config
	Log    logging.Logger
	Now    func() time.Time

	// Orchestrator defaults to the built-in rules when nil.
	Orchestrator orchestrator.Runner
	// Mail delivers synchronously unless MailQueue is set.
	Mail      mailer.Transport
	MailQueue *mailer.Queue
	// Jobs carries async orchestration requests; nil disables async mode.
	Jobs *JobQueue

	validate *validator.Validate
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	log := logging.Nop()
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Bus:    events.NewBus(events.Options{Capacity: cfg.Feed.BufferSize, SubscriberBuffer: cfg.Feed.SubscriberBuffer}),
		Locks:  caselock.New(nil, cfg.Redis.LockTTL, log),
		Guard:  idempotency.NewMemoryGuard(0),
		Stock:  stock.Demo(),
		Config: cfg,
		Log:    log,
		Now:    time.Now,
		Mail:   &mailer.MemoryTransport{},

		validate: validator.New(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) ts() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() logging.Logger {
	if e.Log == nil {
		return logging.Nop()
	}
	return e.Log
}

func (e Engine) runner() orchestrator.Runner {
	if e.Orchestrator != nil {
		return e.Orchestrator
	}
	return orchestrator.Rules{Now: e.now}
}

func (e Engine) validator() *validator.Validate {
	if e.validate != nil {
		return e.validate
	}
	return validator.New()
}

// check runs struct validation and folds failures into one InvalidInput error.
func (e Engine) check(v any) error {
	err := e.validator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := map[string]any{}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	verr := domain.InvalidInput("invalid input: %s", strings.Join(parts, ", "))
	verr.Details = map[string]any{"fields": fields}
	return verr
}

func (e Engine) publish(caseID, evtType string, payload map[string]any) domain.Event {
	if e.Bus == nil {
		return domain.Event{CaseID: caseID, Type: evtType, Payload: payload}
	}
	return e.Bus.Publish(caseID, evtType, payload)
}

// lock serialises mutations of one case.
func (e Engine) lock(ctx context.Context, caseID string) (func(), error) {
	if e.Locks == nil {
		return func() {}, nil
	}
	return e.Locks.Lock(ctx, caseID)
}

func notFoundCase(caseID string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return domain.NotFound("case %s not found", caseID)
	}
	return err
}

// loadCase reads a case inside tx, mapping a missing row to NotFound.
func (e Engine) loadCase(ctx context.Context, tx *sql.Tx, caseID string) (domain.Case, error) {
	c, err := e.Repo.GetCaseTx(ctx, tx, caseID)
	if err != nil {
		return c, notFoundCase(caseID, err)
	}
	return c, nil
}

// mutateCase runs fn against the locked, freshly loaded case and persists the
// result. Events returned by fn are published after commit, before unlock, so
// subscribers see them in commit order.
func (e Engine) mutateCase(ctx context.Context, caseID string, fn func(tx *sql.Tx, c *domain.Case) ([]pendingEvent, error)) (domain.Case, error) {
	unlock, err := e.lock(ctx, caseID)
	if err != nil {
		return domain.Case{}, err
	}
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Case{}, err
	}
	defer tx.Rollback()

	c, err := e.loadCase(ctx, tx, caseID)
	if err != nil {
		return c, err
	}
	evts, err := fn(tx, &c)
	if err != nil {
		return c, err
	}
	c.UpdatedAt = e.ts()
	if err := e.Repo.UpdateCase(ctx, tx, c); err != nil {
		return c, notFoundCase(caseID, err)
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	for _, evt := range evts {
		e.publish(caseID, evt.Type, evt.Payload)
	}
	return c, nil
}

type pendingEvent struct {
	Type    string
	Payload map[string]any
}

func statusChanged(from, to domain.Status, actorID, reason string, forced bool) pendingEvent {
	payload := map[string]any{"from": from, "to": to}
	if actorID != "" {
		payload["actor_id"] = actorID
	}
	if reason != "" {
		payload["reason"] = reason
	}
	if forced {
		payload["forced"] = true
	}
	return pendingEvent{Type: "system.status_changed", Payload: payload}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
