// Package app wires the workspace database, config and background
// collaborators into a ready engine.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"onboardline/internal/caselock"
	"onboardline/internal/config"
	"onboardline/internal/db"
	"onboardline/internal/engine"
	"onboardline/internal/events"
	"onboardline/internal/idempotency"
	"onboardline/internal/logging"
	"onboardline/internal/mailer"
	"onboardline/internal/migrate"
)

type App struct {
	Workspace string
	Config    *config.Config
	Log       *logging.ZapLogger
	DB        *sql.DB
	Redis     *redis.Client
	PubSub    *gochannel.GoChannel
	Engine    engine.Engine
}

type Options struct {
	Workspace string
	// Config overrides the workspace config file when set.
	Config *config.Config
	// Quiet drops console logging; the log file is still written.
	Quiet bool
}

// resolve anchors a relative path at the workspace.
func resolve(workspace, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, path)
}

// Open loads config, migrates the workspace database and builds the engine.
func Open(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load(opts.Workspace)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	var log *logging.ZapLogger
	if opts.Quiet {
		log = logging.NewIsolated(resolve(opts.Workspace, cfg.Log.Path))
	} else {
		log = logging.New(logging.Options{Path: resolve(opts.Workspace, cfg.Log.Path), Level: cfg.Log.Level, Format: cfg.Log.Format})
	}

	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	applied, err := migrate.Migrate(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if applied > 0 {
		log.Info("app", "migrations applied", map[string]any{"count": applied, "path": db.Path(opts.Workspace)})
	}

	a := &App{
		Workspace: opts.Workspace,
		Config:    cfg,
		Log:       log,
		DB:        conn,
		PubSub:    gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false)),
	}
	a.Redis = connectRedis(ctx, cfg.Redis.URL, log)

	eng := engine.New(conn, cfg)
	eng.Log = log
	eng.Bus = events.NewBus(events.Options{
		Capacity:         cfg.Feed.BufferSize,
		SubscriberBuffer: cfg.Feed.SubscriberBuffer,
		Mirror:           a.PubSub,
		Logger:           log,
	})
	if a.Redis != nil {
		eng.Locks = caselock.New(redislock.New(a.Redis), cfg.Redis.LockTTL, log)
		eng.Guard = idempotency.NewRedisGuard(a.Redis, 0)
	} else {
		eng.Locks = caselock.New(nil, cfg.Redis.LockTTL, log)
	}

	switch cfg.Mail.Mode {
	case config.MailModeSMTP:
		eng.Mail = mailer.NewSMTPTransport(mailer.SMTPConfig{
			Host:     cfg.Mail.SMTP.Host,
			Port:     cfg.Mail.SMTP.Port,
			Username: cfg.Mail.SMTP.Username,
			Password: cfg.Mail.SMTP.Password,
		})
	default:
		eng.Mail = mailer.NewOutboxTransport(resolve(opts.Workspace, cfg.Mail.OutboxPath))
	}
	if cfg.Mail.Async {
		q := mailer.NewQueue(a.PubSub, a.PubSub, eng.Mail, log)
		q.OnResult(eng.HandleMailResult)
		eng.MailQueue = q
	}
	if cfg.Orchestrator.AsyncWorkers > 0 {
		eng.Jobs = &engine.JobQueue{Pub: a.PubSub, Sub: a.PubSub}
	}
	a.Engine = eng
	return a, nil
}

// connectRedis returns nil when url is empty or the server is unreachable;
// callers then fall back to in-process locks and guards.
func connectRedis(ctx context.Context, url string, log logging.Logger) *redis.Client {
	if url == "" {
		return nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Warn("app", "invalid redis url, using it as an address", map[string]any{"error": err})
		opt = &redis.Options{Addr: url}
	}
	rdb := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("app", "redis unreachable, continuing without it", map[string]any{"error": err})
		rdb.Close()
		return nil
	}
	log.Info("app", "redis connected", map[string]any{"addr": opt.Addr})
	return rdb
}

// Start launches the background consumers: queued mail and async orchestration.
func (a *App) Start(ctx context.Context) error {
	if a.Engine.MailQueue != nil {
		if err := a.Engine.MailQueue.Consume(ctx); err != nil {
			return fmt.Errorf("start mail queue: %w", err)
		}
	}
	if a.Engine.Jobs != nil {
		if err := a.Engine.ConsumeOrchestrations(ctx, a.Config.Orchestrator.AsyncWorkers); err != nil {
			return fmt.Errorf("start orchestration workers: %w", err)
		}
	}
	return nil
}

func (a *App) Close() error {
	if a.PubSub != nil {
		_ = a.PubSub.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	_ = a.Log.Sync()
	return a.DB.Close()
}
