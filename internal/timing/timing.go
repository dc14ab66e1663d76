package timing

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SweepRuns keeps a history of sweep durations, used to predict how long
// the next run of the same sweep will take.
type SweepRuns struct {
	db dbConn
}

func NewSweepRuns(db dbConn) *SweepRuns {
	return &SweepRuns{db: db}
}

func (r *SweepRuns) Record(ctx context.Context, sweep string, items int, d time.Duration) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO sweep_runs (sweep, items, duration_ms, finished_at) VALUES ($1, $2, $3, now())`,
		sweep, items, d.Milliseconds(),
	)
	return err
}

// Predict averages the last 20 runs. It returns 0 when there is no history.
func (r *SweepRuns) Predict(ctx context.Context, sweep string) (time.Duration, error) {
	var ms int64
	err := r.db.QueryRow(ctx, predictSQL, sweep).Scan(&ms)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

const predictSQL = `
SELECT COALESCE(AVG(duration_ms), 0)::bigint
FROM (
	SELECT duration_ms
	FROM sweep_runs
	WHERE sweep = $1
	ORDER BY finished_at DESC
	LIMIT 20
) recent
`
