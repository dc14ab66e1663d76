package pgx

import (
	"context"
	"fmt"

	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/common"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/logger"

	pgxv5 "github.com/jackc/pgx/v5"
)

var overlapCopyColumns = []string{
	"id", "canonical_person_id", "matched_person_id", "tenant_ids",
	"basis", "confidence", "state", "detected_at",
}

// ReplaceOverlaps swaps the whole overlap set inside one transaction. On
// any error the transaction rolls back and the previous set stays visible.
func (s *GraphDBStorage) ReplaceOverlaps(ctx context.Context, overlaps []common.Overlap) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM overlaps`); err != nil {
		return fmt.Errorf("failed to clear overlaps: %w", err)
	}

	if len(overlaps) > 0 {
		rows := make([][]any, len(overlaps))
		for i, o := range overlaps {
			rows[i] = []any{
				o.ID,
				o.CanonicalPersonID,
				o.MatchedPersonID,
				o.TenantIDs,
				string(o.Basis),
				o.Confidence,
				string(o.State),
				o.DetectedAt,
			}
		}
		n, err := tx.CopyFrom(ctx, pgxv5.Identifier{"overlaps"}, overlapCopyColumns, pgxv5.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to insert overlaps: %w", err)
		}
		logger.Debug("[Store][ReplaceOverlaps] Inserted overlaps", "count", n)
	}

	return tx.Commit(ctx)
}

func (s *GraphDBStorage) ListOverlaps(ctx context.Context) ([]common.Overlap, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, canonical_person_id, matched_person_id, tenant_ids, basis, confidence, state, detected_at
		FROM overlaps
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]common.Overlap, 0)
	for rows.Next() {
		var o common.Overlap
		var basis, state string
		if err := rows.Scan(&o.ID, &o.CanonicalPersonID, &o.MatchedPersonID, &o.TenantIDs, &basis, &o.Confidence, &state, &o.DetectedAt); err != nil {
			return nil, err
		}
		o.Basis = common.MatchBasis(basis)
		o.State = common.OverlapState(state)
		out = append(out, o)
	}
	return out, rows.Err()
}
