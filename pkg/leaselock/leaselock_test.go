package leaselock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type keyRow struct {
	key string
	err error
}

func (r keyRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.key
	return nil
}

type fakeDB struct {
	free     bool
	released []string
}

func (f *fakeDB) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	f.released = append(f.released, args[0].(string))
	return pgconn.NewCommandTag("DELETE 1"), nil
}

func (f *fakeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	if !f.free {
		return keyRow{err: pgx.ErrNoRows}
	}
	return keyRow{key: args[0].(string)}
}

func TestJobKey(t *testing.T) {
	if got := JobKey("stories", 30); got != "job:stories:30" {
		t.Fatalf("JobKey() = %s, want job:stories:30", got)
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{TTL: 10 * time.Second, RenewEvery: time.Minute}.withDefaults()
	if o.RenewEvery != 5*time.Second || o.WaitInterval != DefaultWaitInterval {
		t.Fatalf("withDefaults() = %+v", o)
	}
	if got := (Options{}).withDefaults().TTL; got != DefaultTTL {
		t.Fatalf("withDefaults().TTL = %v, want %v", got, DefaultTTL)
	}
}

func TestClient_WithLease(t *testing.T) {
	db := &fakeDB{}
	c := New(db)
	ctx := context.Background()
	key := JobKey("correlations", 90)

	ran := false
	err := c.WithLease(ctx, key, Options{}, func(context.Context) error { ran = true; return nil })
	if !errors.Is(err, ErrBusy) || ran {
		t.Fatalf("WithLease() = %v, ran %v, want ErrBusy", err, ran)
	}

	db.free = true
	if err := c.WithLease(ctx, key, Options{TokenPrefix: "w1-"}, func(context.Context) error { ran = true; return nil }); err != nil {
		t.Fatalf("WithLease() error = %v", err)
	}
	if !ran || len(db.released) != 1 || db.released[0] != key {
		t.Fatalf("ran %v released %v", ran, db.released)
	}
}

func TestMemoryLocker(t *testing.T) {
	m := NewMemoryLocker()
	ctx := context.Background()
	key := JobKey("stories", 30)

	err := m.WithLease(ctx, key, Options{}, func(ctx context.Context) error {
		if err := m.WithLease(ctx, key, Options{}, func(context.Context) error { return nil }); !errors.Is(err, ErrBusy) {
			t.Fatalf("nested WithLease() = %v, want ErrBusy", err)
		}
		return m.WithLease(ctx, JobKey("stories", 7), Options{}, func(context.Context) error { return nil })
	})
	if err != nil {
		t.Fatalf("WithLease() error = %v", err)
	}
	if err := m.WithLease(ctx, key, Options{}, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("WithLease() after release error = %v", err)
	}
}
