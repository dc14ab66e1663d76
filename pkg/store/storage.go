package store

import (
	"context"
	"errors"
	"time"

	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/common"
)

var (
	// ErrNotFound is returned when a referenced row does not exist in the
	// requested tenant.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks malformed input, e.g. an event naming a person
	// outside its own participant set.
	ErrValidation = errors.New("validation failure")
)

// PersonStore reads contact records. All lookups are tenant scoped.
type PersonStore interface {
	GetPerson(ctx context.Context, tenantID, personID string) (common.Person, error)
	ListPeople(ctx context.Context, tenantID string) ([]common.Person, error)
}

// ClaimStore reads claims about people.
type ClaimStore interface {
	ListClaimsForPerson(ctx context.Context, tenantID, personID string) ([]common.Claim, error)
	// ListClaimsByKey returns every claim with the given key in the tenant.
	ListClaimsByKey(ctx context.Context, tenantID string, key common.ClaimKey) ([]common.Claim, error)
}

// ClaimWriter appends claims. Claims whose id already exists are skipped.
type ClaimWriter interface {
	InsertClaims(ctx context.Context, claims []common.Claim) (int64, error)
}

// EncounterStore reads encounters and their participants.
type EncounterStore interface {
	// ListEncountersForPerson returns encounters involving personID that
	// occurred at or after since. A zero since means all time.
	ListEncountersForPerson(ctx context.Context, tenantID, personID string, since time.Time) ([]common.Encounter, error)
	GetEncounterParticipants(ctx context.Context, tenantID, encounterID string) ([]string, error)
}

// SignalStore persists derived contact signals.
type SignalStore interface {
	// UpsertSignals inserts or replaces the row keyed by (tenant, contact)
	// in a single atomic statement.
	UpsertSignals(ctx context.Context, signals common.ContactSignals) error
	GetSignals(ctx context.Context, tenantID, contactID string) (common.ContactSignals, error)
	ListSignals(ctx context.Context, tenantID string) ([]common.ContactSignals, error)
}

// EdgeStore maintains typed edges. Both write primitives are atomic per
// (tenant, from, to, type) key.
type EdgeStore interface {
	// UpsertEncounterEdge creates the edge with createStrength or, when it
	// exists, adds one to its strength capped at common.MaxEdgeStrength and
	// merges metadata into the stored metadata. It reports whether the edge
	// was created.
	UpsertEncounterEdge(ctx context.Context, edge common.Edge) (common.Edge, bool, error)
	// InsertEdgeIfAbsent creates the edge only when no edge with the same key
	// exists. The stored edge is returned either way.
	InsertEdgeIfAbsent(ctx context.Context, edge common.Edge) (common.Edge, bool, error)
	DeleteEdges(ctx context.Context, tenantID string, edgeIDs []string) (int64, error)
	SetEdgeStrength(ctx context.Context, tenantID, edgeID string, strength int) (common.Edge, error)
	ListEdges(ctx context.Context, tenantID string) ([]common.Edge, error)
}

// EventSourceStore resolves the objects graph events point at.
type EventSourceStore interface {
	GetSuggestion(ctx context.Context, tenantID, suggestionID string) (common.Suggestion, error)
	GetGoal(ctx context.Context, tenantID, goalID string) (common.Goal, error)
}

// OverlapStore is used by the cross-tenant sweep.
type OverlapStore interface {
	ListTenants(ctx context.Context) ([]common.Tenant, error)
	// ReplaceOverlaps deletes every stored overlap and inserts the given set
	// in one transaction. Readers never observe a partial set.
	ReplaceOverlaps(ctx context.Context, overlaps []common.Overlap) error
	ListOverlaps(ctx context.Context) ([]common.Overlap, error)
}

// Storage bundles every collaborator the engine consumes.
type Storage interface {
	PersonStore
	ClaimStore
	ClaimWriter
	EncounterStore
	SignalStore
	EdgeStore
	EventSourceStore
	OverlapStore
}
