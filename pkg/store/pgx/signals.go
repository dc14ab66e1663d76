package pgx

import (
	"context"

	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/common"

	pgxv5 "github.com/jackc/pgx/v5"
)

const upsertSignalsSQL = `
INSERT INTO contact_signals (
	tenant_id, contact_id, last_interaction_at, interactions_90d,
	reciprocity_ratio, sentiment_avg, decay_days, role_tags,
	shared_context_tags, goal_alignment_score, capacity_cost, computed_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (tenant_id, contact_id) DO UPDATE
SET last_interaction_at  = EXCLUDED.last_interaction_at,
    interactions_90d     = EXCLUDED.interactions_90d,
    reciprocity_ratio    = EXCLUDED.reciprocity_ratio,
    sentiment_avg        = EXCLUDED.sentiment_avg,
    decay_days           = EXCLUDED.decay_days,
    role_tags            = EXCLUDED.role_tags,
    shared_context_tags  = EXCLUDED.shared_context_tags,
    goal_alignment_score = EXCLUDED.goal_alignment_score,
    capacity_cost        = EXCLUDED.capacity_cost,
    computed_at          = EXCLUDED.computed_at;
`

func (s *GraphDBStorage) UpsertSignals(ctx context.Context, sig common.ContactSignals) error {
	roleTags := sig.RoleTags
	if roleTags == nil {
		roleTags = []string{}
	}
	contextTags := sig.SharedContextTags
	if contextTags == nil {
		contextTags = []string{}
	}
	computedAt := sig.ComputedAt
	if computedAt.IsZero() {
		computedAt = s.now()
	}
	_, err := s.conn.Exec(ctx, upsertSignalsSQL,
		sig.TenantID,
		sig.ContactID,
		sig.LastInteractionAt,
		sig.Interactions90d,
		sig.ReciprocityRatio,
		sig.SentimentAvg,
		sig.DecayDays,
		roleTags,
		contextTags,
		sig.GoalAlignmentScore,
		sig.CapacityCost,
		computedAt,
	)
	return err
}

const signalColumns = `
	tenant_id, contact_id, last_interaction_at, interactions_90d,
	reciprocity_ratio, sentiment_avg, decay_days, role_tags,
	shared_context_tags, goal_alignment_score, capacity_cost, computed_at`

func scanSignals(row pgxv5.Row) (common.ContactSignals, error) {
	var sig common.ContactSignals
	err := row.Scan(
		&sig.TenantID,
		&sig.ContactID,
		&sig.LastInteractionAt,
		&sig.Interactions90d,
		&sig.ReciprocityRatio,
		&sig.SentimentAvg,
		&sig.DecayDays,
		&sig.RoleTags,
		&sig.SharedContextTags,
		&sig.GoalAlignmentScore,
		&sig.CapacityCost,
		&sig.ComputedAt,
	)
	return sig, err
}

func (s *GraphDBStorage) GetSignals(ctx context.Context, tenantID, contactID string) (common.ContactSignals, error) {
	sig, err := scanSignals(s.conn.QueryRow(ctx,
		`SELECT `+signalColumns+` FROM contact_signals WHERE tenant_id = $1 AND contact_id = $2`,
		tenantID, contactID,
	))
	if err != nil {
		return common.ContactSignals{}, notFound(err, "signals for", contactID)
	}
	return sig, nil
}

func (s *GraphDBStorage) ListSignals(ctx context.Context, tenantID string) ([]common.ContactSignals, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+signalColumns+` FROM contact_signals WHERE tenant_id = $1 ORDER BY contact_id`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]common.ContactSignals, 0)
	for rows.Next() {
		sig, err := scanSignals(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}
