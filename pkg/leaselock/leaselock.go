// Package leaselock keeps batch jobs from running twice for the same
// window. Leases live in the job_leases table and are renewed while the
// job runs; a lease that is not renewed expires and can be taken over.
package leaselock

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/OFFIS-RIT/macrokg/pkg/logger"
)

var (
	ErrBusy = errors.New("lease lock busy")
	ErrLost = errors.New("lease lock lost")
)

const (
	DefaultTTL          = 5 * time.Minute
	DefaultWaitInterval = 250 * time.Millisecond
)

// JobKey is the lease key of a batch job over a window.
func JobKey(job string, windowDays int) string {
	return fmt.Sprintf("job:%s:%d", job, windowDays)
}

// Locker runs fn while holding the lease on key. fn receives a context
// that is cancelled when the lease is lost.
type Locker interface {
	WithLease(ctx context.Context, key string, opts Options, fn func(ctx context.Context) error) error
}

type Options struct {
	TTL        time.Duration
	RenewEvery time.Duration

	// Wait retries until the lease is free instead of returning ErrBusy.
	Wait         bool
	WaitInterval time.Duration
	WaitJitter   time.Duration

	TokenPrefix string
}

func (o Options) withDefaults() Options {
	if o.TTL <= time.Millisecond {
		o.TTL = DefaultTTL
	}
	if o.RenewEvery <= 0 || o.RenewEvery >= o.TTL {
		o.RenewEvery = max(o.TTL/2, time.Second)
	}
	if o.WaitInterval <= 0 {
		o.WaitInterval = DefaultWaitInterval
	}
	o.WaitJitter = max(o.WaitJitter, 0)
	return o
}

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Client holds leases in Postgres. db is usually a *pgxpool.Pool.
type Client struct {
	db dbConn
}

func New(db dbConn) *Client {
	return &Client{db: db}
}

type Lease struct {
	Key   string
	Token string

	Context context.Context

	client *Client
	cancel context.CancelCauseFunc

	stopOnce sync.Once
	stopCh   chan struct{}
}

func (c *Client) WithLease(ctx context.Context, key string, opts Options, fn func(ctx context.Context) error) error {
	lease, err := c.Acquire(ctx, key, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("[Lease] Failed to release lease", "key", key, "err", err)
		}
	}()
	err = fn(lease.Context)
	if cause := context.Cause(lease.Context); errors.Is(cause, ErrLost) && err != nil {
		return fmt.Errorf("%w: %w", ErrLost, err)
	}
	return err
}

func (c *Client) Acquire(ctx context.Context, key string, opts Options) (*Lease, error) {
	if key == "" {
		return nil, errors.New("lease lock key is empty")
	}
	opts = opts.withDefaults()
	ttlMs := opts.TTL.Milliseconds()

	tok, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	token := opts.TokenPrefix + tok

	for {
		ok, err := c.tryAcquire(ctx, key, token, ttlMs)
		if err != nil {
			return nil, fmt.Errorf("acquire lease %s: %w", key, err)
		}
		if ok {
			break
		}
		if !opts.Wait {
			return nil, ErrBusy
		}
		if err := sleepWithJitter(ctx, opts.WaitInterval, opts.WaitJitter); err != nil {
			return nil, err
		}
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	l := &Lease{
		Key:     key,
		Token:   token,
		Context: leaseCtx,
		client:  c,
		cancel:  cancel,
		stopCh:  make(chan struct{}),
	}
	logger.Debug("[Lease] Acquired", "key", key, "ttl", opts.TTL)

	go l.renewLoop(opts.RenewEvery, ttlMs)

	return l, nil
}

func (c *Client) tryAcquire(ctx context.Context, key, token string, ttlMs int64) (bool, error) {
	var returnedKey string
	err := c.db.QueryRow(ctx, tryAcquireSQL, key, token, ttlMs).Scan(&returnedKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return returnedKey != "", nil
}

func (l *Lease) Release(ctx context.Context) error {
	l.stopOnce.Do(func() {
		close(l.stopCh)
		l.cancel(context.Canceled)
	})

	_, err := l.client.db.Exec(ctx, releaseSQL, l.Key, l.Token)
	return err
}

func (l *Lease) renewLoop(every time.Duration, ttlMs int64) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-l.Context.Done():
			return
		case <-t.C:
			if err := l.renewOnce(ttlMs); err != nil {
				logger.Error("[Lease] Lease lost", "key", l.Key, "err", err)
				l.cancel(fmt.Errorf("%w: %w", ErrLost, err))
				return
			}
		}
	}
}

func (l *Lease) renewOnce(ttlMs int64) error {
	for attempt := range 3 {
		renewCtx, cancel := context.WithTimeout(l.Context, 15*time.Second)
		var returnedKey string
		err := l.client.db.QueryRow(renewCtx, renewSQL, l.Key, l.Token, ttlMs).Scan(&returnedKey)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrLost
		}
		if attempt == 2 {
			return err
		}
		if err := sleepWithJitter(l.Context, 200*time.Millisecond, 0); err != nil {
			return err
		}
	}
	return ErrLost
}

func sleepWithJitter(ctx context.Context, base, jitter time.Duration) error {
	d := base
	if jitter > 0 {
		d += time.Duration(rand.Int64N(int64(jitter) + 1))
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// MemoryLocker holds leases in process. Leases do not expire; they are
// held until fn returns.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: map[string]bool{}}
}

func (m *MemoryLocker) WithLease(ctx context.Context, key string, opts Options, fn func(ctx context.Context) error) error {
	opts = opts.withDefaults()
	for !m.tryHold(key) {
		if !opts.Wait {
			return ErrBusy
		}
		if err := sleepWithJitter(ctx, opts.WaitInterval, opts.WaitJitter); err != nil {
			return err
		}
	}
	defer m.release(key)
	return fn(ctx)
}

func (m *MemoryLocker) tryHold(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] {
		return false
	}
	m.held[key] = true
	return true
}

func (m *MemoryLocker) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, key)
}

const tryAcquireSQL = `
INSERT INTO job_leases (lock_key, locked_by, expires_at)
VALUES ($1, $2, now() + ($3::bigint * interval '1 millisecond'))
ON CONFLICT (lock_key) DO UPDATE
SET locked_by  = EXCLUDED.locked_by,
    expires_at = EXCLUDED.expires_at
WHERE job_leases.expires_at < now()
   OR job_leases.locked_by = EXCLUDED.locked_by
RETURNING lock_key;
`

const renewSQL = `
UPDATE job_leases
SET expires_at = now() + ($3::bigint * interval '1 millisecond')
WHERE lock_key = $1 AND locked_by = $2
RETURNING lock_key;
`

const releaseSQL = `
DELETE FROM job_leases
WHERE lock_key = $1 AND locked_by = $2;
`
