package pgx

import (
	"context"
	"fmt"
	"time"

	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/common"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

const personColumns = `id, tenant_id, owner_id, name, COALESCE(email, ''), COALESCE(location, ''), created_at, updated_at`

func scanPerson(row pgxv5.Row) (common.Person, error) {
	var p common.Person
	err := row.Scan(&p.ID, &p.TenantID, &p.OwnerID, &p.Name, &p.Email, &p.Location, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *GraphDBStorage) GetPerson(ctx context.Context, tenantID, personID string) (common.Person, error) {
	p, err := scanPerson(s.conn.QueryRow(ctx,
		`SELECT `+personColumns+` FROM people WHERE tenant_id = $1 AND id = $2`,
		tenantID, personID,
	))
	if err != nil {
		return common.Person{}, notFound(err, "person", personID)
	}
	return p, nil
}

func (s *GraphDBStorage) ListPeople(ctx context.Context, tenantID string) ([]common.Person, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+personColumns+` FROM people WHERE tenant_id = $1 ORDER BY id`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	people := make([]common.Person, 0)
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		people = append(people, p)
	}
	return people, rows.Err()
}

const claimColumns = `id, tenant_id, subject_id, key, value, confidence, COALESCE(source, ''), observed_at`

func (s *GraphDBStorage) queryClaims(ctx context.Context, sql string, args ...any) ([]common.Claim, error) {
	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	claims := make([]common.Claim, 0)
	for rows.Next() {
		var c common.Claim
		var k string
		if err := rows.Scan(&c.ID, &c.TenantID, &c.SubjectID, &k, &c.Value, &c.Confidence, &c.Source, &c.ObservedAt); err != nil {
			return nil, err
		}
		c.Key = common.ClaimKey(k)
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

func (s *GraphDBStorage) ListClaimsForPerson(ctx context.Context, tenantID, personID string) ([]common.Claim, error) {
	return s.queryClaims(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE tenant_id = $1 AND subject_id = $2 ORDER BY observed_at, id`,
		tenantID, personID,
	)
}

func (s *GraphDBStorage) ListClaimsByKey(ctx context.Context, tenantID string, key common.ClaimKey) ([]common.Claim, error) {
	return s.queryClaims(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE tenant_id = $1 AND key = $2 ORDER BY subject_id, id`,
		tenantID, string(key),
	)
}

const encounterByPersonSQL = `
SELECT
	e.id,
	e.tenant_id,
	e.owner_id,
	e.kind,
	e.occurred_at,
	COALESCE(e.summary, ''),
	ARRAY(
		SELECT ep2.person_id
		FROM encounter_people ep2
		WHERE ep2.tenant_id = e.tenant_id AND ep2.encounter_id = e.id
		ORDER BY ep2.person_id
	)
FROM encounters e
JOIN encounter_people ep ON ep.tenant_id = e.tenant_id AND ep.encounter_id = e.id
WHERE e.tenant_id = $1
  AND ep.person_id = $2
  AND ($3::timestamptz IS NULL OR e.occurred_at >= $3::timestamptz)
ORDER BY e.occurred_at, e.id;
`

func (s *GraphDBStorage) ListEncountersForPerson(ctx context.Context, tenantID, personID string, since time.Time) ([]common.Encounter, error) {
	var sinceArg *time.Time
	if !since.IsZero() {
		sinceArg = &since
	}
	rows, err := s.conn.Query(ctx, encounterByPersonSQL, tenantID, personID, sinceArg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	encounters := make([]common.Encounter, 0)
	for rows.Next() {
		var e common.Encounter
		var kind string
		if err := rows.Scan(&e.ID, &e.TenantID, &e.OwnerID, &kind, &e.OccurredAt, &e.Summary, &e.PersonIDs); err != nil {
			return nil, err
		}
		e.Kind = common.EncounterKind(kind)
		encounters = append(encounters, e)
	}
	return encounters, rows.Err()
}

const encounterParticipantsSQL = `
SELECT ARRAY(
	SELECT ep.person_id
	FROM encounter_people ep
	WHERE ep.tenant_id = e.tenant_id AND ep.encounter_id = e.id
	ORDER BY ep.person_id
)
FROM encounters e
WHERE e.tenant_id = $1 AND e.id = $2;
`

func (s *GraphDBStorage) GetEncounterParticipants(ctx context.Context, tenantID, encounterID string) ([]string, error) {
	var ids []string
	if err := s.conn.QueryRow(ctx, encounterParticipantsSQL, tenantID, encounterID).Scan(&ids); err != nil {
		return nil, notFound(err, "encounter", encounterID)
	}
	return ids, nil
}

func (s *GraphDBStorage) GetSuggestion(ctx context.Context, tenantID, suggestionID string) (common.Suggestion, error) {
	var sg common.Suggestion
	err := s.conn.QueryRow(ctx, `
		SELECT id, tenant_id, person_a_id, person_b_id, score, COALESCE(rationale, '')
		FROM suggestions
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, suggestionID,
	).Scan(&sg.ID, &sg.TenantID, &sg.PersonAID, &sg.PersonBID, &sg.Score, &sg.Rationale)
	if err != nil {
		return common.Suggestion{}, notFound(err, "suggestion", suggestionID)
	}
	return sg, nil
}

func (s *GraphDBStorage) GetGoal(ctx context.Context, tenantID, goalID string) (common.Goal, error) {
	var g common.Goal
	err := s.conn.QueryRow(ctx,
		`SELECT id, tenant_id, title FROM goals WHERE tenant_id = $1 AND id = $2`,
		tenantID, goalID,
	).Scan(&g.ID, &g.TenantID, &g.Title)
	if err != nil {
		return common.Goal{}, notFound(err, "goal", goalID)
	}
	return g, nil
}

func (s *GraphDBStorage) ListTenants(ctx context.Context) ([]common.Tenant, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT t.id, t.owner_id, COALESCE(t.owner_email, '')
		FROM tenants t
		ORDER BY t.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tenants := make([]common.Tenant, 0)
	for rows.Next() {
		var t common.Tenant
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.OwnerEmail); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

const claimInsertChunk = 500

const insertClaimsSQL = `
INSERT INTO claims (id, tenant_id, subject_id, key, value, confidence, source, observed_at)
SELECT * FROM unnest(
	$1::text[], $2::text[], $3::text[], $4::text[], $5::text[], $6::int[], $7::text[], $8::timestamptz[]
)
ON CONFLICT (id) DO NOTHING
`

func (s *GraphDBStorage) InsertClaims(ctx context.Context, claims []common.Claim) (int64, error) {
	var inserted int64
	err := store.ChunkRange(len(claims), claimInsertChunk, func(start, end int) error {
		chunk := claims[start:end]
		ids := make([]string, len(chunk))
		tenants := make([]string, len(chunk))
		subjects := make([]string, len(chunk))
		keys := make([]string, len(chunk))
		values := make([]string, len(chunk))
		confidences := make([]int32, len(chunk))
		sources := make([]string, len(chunk))
		observed := make([]time.Time, len(chunk))
		for i, c := range chunk {
			ids[i] = c.ID
			tenants[i] = c.TenantID
			subjects[i] = c.SubjectID
			keys[i] = string(c.Key)
			values[i] = c.Value
			confidences[i] = int32(c.Confidence)
			sources[i] = c.Source
			observed[i] = c.ObservedAt
			if observed[i].IsZero() {
				observed[i] = s.now().UTC()
			}
		}

		tag, err := s.conn.Exec(ctx, insertClaimsSQL, ids, tenants, subjects, keys, values, confidences, sources, observed)
		if err != nil {
			return fmt.Errorf("failed to insert claims: %w", err)
		}
		inserted += tag.RowsAffected()
		return nil
	})
	return inserted, err
}
