package leaselock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRow struct {
	value string
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.value
	return nil
}

// fakeDB holds at most one lease per key, with no expiry.
type fakeDB struct {
	mu       sync.Mutex
	holders  map[string]string
	released int
}

func newFakeDB() *fakeDB {
	return &fakeDB{holders: make(map[string]string)}
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, token := args[0].(string), args[1].(string)
	current, held := f.holders[key]
	switch {
	case strings.Contains(sql, "INSERT INTO sweep_leases"):
		if held && current != token {
			return fakeRow{err: pgx.ErrNoRows}
		}
		f.holders[key] = token
		return fakeRow{value: key}
	default:
		if current != token {
			return fakeRow{err: pgx.ErrNoRows}
		}
		return fakeRow{value: key}
	}
}

func (f *fakeDB) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, token := args[0].(string), args[1].(string)
	if f.holders[key] == token {
		delete(f.holders, key)
		f.released++
	}
	return pgconn.CommandTag{}, nil
}

func TestOptionsNormalize(t *testing.T) {
	o := Options{}.normalize()
	if o.TTL != 5*time.Minute || o.RenewEvery != 150*time.Second || o.WaitInterval != time.Second {
		t.Fatalf("unexpected defaults %+v", o)
	}
	o = Options{TTL: time.Second, RenewEvery: 2 * time.Second}.normalize()
	if o.RenewEvery != time.Second {
		t.Fatalf("expected renew interval bounded to 1s, got %s", o.RenewEvery)
	}
}

func TestAcquire_BusyThenReleased(t *testing.T) {
	db := newFakeDB()
	a := New(db, Options{Holder: "a-"})
	b := New(db, Options{Holder: "b-"})
	ctx := context.Background()

	lease, err := a.Acquire(ctx, SweepOverlapKey)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !strings.HasPrefix(lease.Token, "a-") {
		t.Fatalf("expected token prefixed by holder, got %q", lease.Token)
	}

	if _, err := b.Acquire(ctx, SweepOverlapKey); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if _, err := b.Acquire(ctx, SweepSignalsKey); err != nil {
		t.Fatalf("expected other key to be free, got %v", err)
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if lease.Context.Err() == nil {
		t.Fatal("expected lease context to be canceled after release")
	}
	if _, err := b.Acquire(ctx, SweepOverlapKey); err != nil {
		t.Fatalf("expected key to be free after release, got %v", err)
	}
}

func TestAcquire_EmptyKey(t *testing.T) {
	if _, err := New(newFakeDB(), Options{}).Acquire(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestWithLease(t *testing.T) {
	db := newFakeDB()
	l := New(db, Options{})

	ran := false
	err := l.WithLease(context.Background(), SweepSignalsKey, func(ctx context.Context) error {
		ran = true
		if ctx.Err() != nil {
			t.Fatalf("expected live lease context, got %v", ctx.Err())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !ran {
		t.Fatal("expected fn to run")
	}
	if db.released != 1 {
		t.Fatalf("expected lease to be released once, got %d", db.released)
	}

	want := errors.New("boom")
	err = l.WithLease(context.Background(), SweepSignalsKey, func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("expected fn error, got %v", err)
	}
}

func TestAcquire_WaitHonorsContext(t *testing.T) {
	db := newFakeDB()
	holder := New(db, Options{})
	if _, err := holder.Acquire(context.Background(), SweepOverlapKey); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	waiter := New(db, Options{Wait: true, WaitInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := waiter.Acquire(ctx, SweepOverlapKey); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
