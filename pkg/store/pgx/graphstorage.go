package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// GraphDBStorage implements store.Storage on PostgreSQL. Edge strength and
// signal rows are written with single-statement upserts, so concurrent
// workers never lose updates.
type GraphDBStorage struct {
	conn pgxIConn
	now  func() time.Time
}

var _ store.Storage = (*GraphDBStorage)(nil)

type GraphDBStorageOption func(*GraphDBStorage)

// WithClock overrides the time source used for created/updated stamps.
func WithClock(now func() time.Time) GraphDBStorageOption {
	return func(s *GraphDBStorage) {
		s.now = now
	}
}

// NewGraphDBStorageWithConnection creates a GraphDBStorage on top of an
// existing pool or transaction.
func NewGraphDBStorageWithConnection(
	ctx context.Context,
	conn pgxIConn,
	opts ...GraphDBStorageOption,
) (*GraphDBStorage, error) {
	if conn == nil {
		return nil, errors.New("pgx storage: nil connection")
	}
	s := &GraphDBStorage{
		conn: conn,
		now:  time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s, nil
}

// notFound maps pgx.ErrNoRows onto store.ErrNotFound.
func notFound(err error, what, id string) error {
	if errors.Is(err, pgxv5.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, store.ErrNotFound)
	}
	return err
}
