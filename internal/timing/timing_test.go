package timing

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRow struct{ ms int64 }

func (r fakeRow) Scan(dest ...any) error {
	*(dest[0].(*int64)) = r.ms
	return nil
}

type fakeConn struct {
	args []any
	avg  int64
}

func (f *fakeConn) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	f.args = args
	return pgconn.CommandTag{}, nil
}

func (f *fakeConn) QueryRow(context.Context, string, ...any) pgx.Row {
	return fakeRow{ms: f.avg}
}

func TestSweepRuns(t *testing.T) {
	conn := &fakeConn{avg: 1500}
	runs := NewSweepRuns(conn)
	ctx := context.Background()

	if err := runs.Record(ctx, "overlap", 4, 2*time.Second); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if conn.args[0] != "overlap" || conn.args[1] != 4 || conn.args[2] != int64(2000) {
		t.Fatalf("unexpected insert args %v", conn.args)
	}

	d, err := runs.Predict(ctx, "overlap")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if d != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s, got %s", d)
	}
}
