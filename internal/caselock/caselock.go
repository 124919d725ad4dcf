package caselock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"

	"onboardline/internal/logging"
)

// Locker serialises read-validate-write sequences per case.
// The in-process mutex is authoritative; the redis lock, when configured,
// extends the exclusion across instances on a best-effort basis.
type Locker struct {
	mu      sync.Mutex
	entries map[string]*entry
	redis   *redislock.Client
	ttl     time.Duration
	log     logging.Logger
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func New(redis *redislock.Client, ttl time.Duration, log logging.Logger) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Locker{entries: map[string]*entry{}, redis: redis, ttl: ttl, log: log}
}

func key(caseID string) string {
	return "lock:case:" + caseID
}

// Lock blocks until the case is exclusively held and returns its release func.
func (l *Locker) Lock(ctx context.Context, caseID string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[caseID]
	if !ok {
		e = &entry{}
		l.entries[caseID] = e
	}
	e.refs++
	l.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		e.mu.Lock()
		close(acquired)
	}()
	select {
	case <-acquired:
	case <-ctx.Done():
		// hand the mutex back once the pending Lock goes through
		go func() {
			<-acquired
			l.release(caseID, e)
		}()
		return nil, ctx.Err()
	}

	remote := l.obtainRemote(ctx, caseID)
	return func() {
		if remote != nil {
			if err := remote.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				l.log.Warn("caselock", "redis lock release failed", map[string]any{"case_id": caseID, "error": err})
			}
		}
		l.release(caseID, e)
	}, nil
}

func (l *Locker) release(caseID string, e *entry) {
	e.mu.Unlock()
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, caseID)
	}
	l.mu.Unlock()
}

func (l *Locker) obtainRemote(ctx context.Context, caseID string) *redislock.Lock {
	if l.redis == nil {
		return nil
	}
	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 20),
	}
	lock, err := l.redis.Obtain(ctx, key(caseID), l.ttl, opts)
	if errors.Is(err, redislock.ErrNotObtained) {
		l.log.Warn("caselock", "could not obtain redis lock; proceeding without redis lock", map[string]any{"case_id": caseID})
		return nil
	}
	if err != nil {
		l.log.Warn("caselock", "error obtaining redis lock; proceeding without redis lock", map[string]any{"case_id": caseID, "error": err})
		return nil
	}
	return lock
}

// Held reports how many callers currently hold or wait for caseID.
func (l *Locker) Held(caseID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[caseID]; ok {
		return e.refs
	}
	return 0
}
