package pgx

import (
	"context"
	"errors"

	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/common"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const edgeColumns = `id, tenant_id, from_id, to_id, type, strength, metadata, created_at, updated_at`

// The conflict branch is the atomic increment-and-cap: concurrent callers
// on the same key serialize on the unique index.
const upsertEncounterEdgeSQL = `
INSERT INTO edges (id, tenant_id, from_id, to_id, type, strength, metadata, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
ON CONFLICT (tenant_id, from_id, to_id, type) DO UPDATE
SET strength   = LEAST(edges.strength + 1, 10),
    metadata   = edges.metadata || EXCLUDED.metadata,
    updated_at = EXCLUDED.updated_at
RETURNING ` + edgeColumns + `, (xmax = 0) AS inserted;
`

const insertEdgeIfAbsentSQL = `
INSERT INTO edges (id, tenant_id, from_id, to_id, type, strength, metadata, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
ON CONFLICT (tenant_id, from_id, to_id, type) DO NOTHING
RETURNING ` + edgeColumns + `;
`

const selectEdgeByKeySQL = `
SELECT ` + edgeColumns + `
FROM edges
WHERE tenant_id = $1 AND from_id = $2 AND to_id = $3 AND type = $4;
`

func scanEdge(row pgxv5.Row, extra ...any) (common.Edge, error) {
	var e common.Edge
	var edgeType string
	dest := []any{&e.ID, &e.TenantID, &e.FromID, &e.ToID, &edgeType, &e.Strength, &e.Metadata, &e.CreatedAt, &e.UpdatedAt}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return common.Edge{}, err
	}
	e.Type = common.EdgeType(edgeType)
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	return e, nil
}

func (s *GraphDBStorage) edgeArgs(edge common.Edge) ([]any, error) {
	id := edge.ID
	if id == "" {
		var err error
		id, err = gonanoid.New()
		if err != nil {
			return nil, err
		}
	}
	metadata := edge.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	stamp := edge.UpdatedAt
	if stamp.IsZero() {
		stamp = s.now()
	}
	strength := common.Clamp(edge.Strength, common.MinEdgeStrength, common.MaxEdgeStrength)
	return []any{id, edge.TenantID, edge.FromID, edge.ToID, string(edge.Type), strength, metadata, stamp}, nil
}

func (s *GraphDBStorage) UpsertEncounterEdge(ctx context.Context, edge common.Edge) (common.Edge, bool, error) {
	args, err := s.edgeArgs(edge)
	if err != nil {
		return common.Edge{}, false, err
	}
	var inserted bool
	stored, err := scanEdge(s.conn.QueryRow(ctx, upsertEncounterEdgeSQL, args...), &inserted)
	if err != nil {
		return common.Edge{}, false, err
	}
	return stored, inserted, nil
}

func (s *GraphDBStorage) InsertEdgeIfAbsent(ctx context.Context, edge common.Edge) (common.Edge, bool, error) {
	args, err := s.edgeArgs(edge)
	if err != nil {
		return common.Edge{}, false, err
	}
	stored, err := scanEdge(s.conn.QueryRow(ctx, insertEdgeIfAbsentSQL, args...))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgxv5.ErrNoRows) {
		return common.Edge{}, false, err
	}

	existing, err := scanEdge(s.conn.QueryRow(ctx, selectEdgeByKeySQL, edge.TenantID, edge.FromID, edge.ToID, string(edge.Type)))
	if err != nil {
		return common.Edge{}, false, notFound(err, "edge", edge.FromID+"->"+edge.ToID)
	}
	return existing, false, nil
}

func (s *GraphDBStorage) DeleteEdges(ctx context.Context, tenantID string, edgeIDs []string) (int64, error) {
	ids := store.DedupeStrings(edgeIDs)
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.conn.Exec(ctx,
		`DELETE FROM edges WHERE tenant_id = $1 AND id = ANY($2::text[])`,
		tenantID, ids,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *GraphDBStorage) SetEdgeStrength(ctx context.Context, tenantID, edgeID string, strength int) (common.Edge, error) {
	strength = common.Clamp(strength, common.MinEdgeStrength, common.MaxEdgeStrength)
	e, err := scanEdge(s.conn.QueryRow(ctx, `
		UPDATE edges
		SET strength = $3, updated_at = $4
		WHERE tenant_id = $1 AND id = $2
		RETURNING `+edgeColumns,
		tenantID, edgeID, strength, s.now(),
	))
	if err != nil {
		return common.Edge{}, notFound(err, "edge", edgeID)
	}
	return e, nil
}

func (s *GraphDBStorage) ListEdges(ctx context.Context, tenantID string) ([]common.Edge, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+edgeColumns+` FROM edges WHERE tenant_id = $1 ORDER BY type, from_id, to_id`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	edges := make([]common.Edge, 0)
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
