package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/common"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/store"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Store is an in-memory implementation of store.Storage. A single mutex
// guards all state, which makes every write primitive atomic.
type Store struct {
	mu sync.RWMutex

	tenants     map[string]common.Tenant
	people      map[string]common.Person
	claims      []common.Claim
	encounters  map[string]common.Encounter
	suggestions map[string]common.Suggestion
	goals       map[string]common.Goal
	signals     map[string]common.ContactSignals
	edges       map[string]common.Edge
	overlaps    []common.Overlap

	now func() time.Time
}

var _ store.Storage = (*Store)(nil)

func New() *Store {
	return &Store{
		tenants:     make(map[string]common.Tenant),
		people:      make(map[string]common.Person),
		encounters:  make(map[string]common.Encounter),
		suggestions: make(map[string]common.Suggestion),
		goals:       make(map[string]common.Goal),
		signals:     make(map[string]common.ContactSignals),
		edges:       make(map[string]common.Edge),
		now:         time.Now,
	}
}

func key(parts ...string) string {
	return strings.Join(parts, "\x00")
}

func (s *Store) AddTenant(t common.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = t
}

func (s *Store) AddPerson(p common.Person) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.people[key(p.TenantID, p.ID)] = p
}

func (s *Store) AddClaim(c common.Claim) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims = append(s.claims, c)
}

func (s *Store) AddEncounter(e common.Encounter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.PersonIDs = slices.Clone(e.PersonIDs)
	s.encounters[key(e.TenantID, e.ID)] = e
}

func (s *Store) AddSuggestion(sg common.Suggestion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suggestions[key(sg.TenantID, sg.ID)] = sg
}

func (s *Store) AddGoal(g common.Goal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals[key(g.TenantID, g.ID)] = g
}

func (s *Store) GetPerson(ctx context.Context, tenantID, personID string) (common.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.people[key(tenantID, personID)]
	if !ok {
		return common.Person{}, fmt.Errorf("person %s: %w", personID, store.ErrNotFound)
	}
	return p, nil
}

func (s *Store) ListPeople(ctx context.Context, tenantID string) ([]common.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Person, 0)
	for _, p := range s.people {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListClaimsForPerson(ctx context.Context, tenantID, personID string) ([]common.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Claim, 0)
	for _, c := range s.claims {
		if c.TenantID == tenantID && c.SubjectID == personID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) InsertClaims(ctx context.Context, claims []common.Claim) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := make(map[string]struct{}, len(s.claims))
	for _, c := range s.claims {
		existing[c.ID] = struct{}{}
	}
	var n int64
	for _, c := range claims {
		if _, ok := existing[c.ID]; ok {
			continue
		}
		existing[c.ID] = struct{}{}
		s.claims = append(s.claims, c)
		n++
	}
	return n, nil
}

func (s *Store) ListClaimsByKey(ctx context.Context, tenantID string, k common.ClaimKey) ([]common.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Claim, 0)
	for _, c := range s.claims {
		if c.TenantID == tenantID && c.Key == k {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) ListEncountersForPerson(ctx context.Context, tenantID, personID string, since time.Time) ([]common.Encounter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Encounter, 0)
	for _, e := range s.encounters {
		if e.TenantID != tenantID || !slices.Contains(e.PersonIDs, personID) {
			continue
		}
		if !since.IsZero() && e.OccurredAt.Before(since) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

func (s *Store) GetEncounterParticipants(ctx context.Context, tenantID, encounterID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.encounters[key(tenantID, encounterID)]
	if !ok {
		return nil, fmt.Errorf("encounter %s: %w", encounterID, store.ErrNotFound)
	}
	return slices.Clone(e.PersonIDs), nil
}

func (s *Store) UpsertSignals(ctx context.Context, signals common.ContactSignals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals[key(signals.TenantID, signals.ContactID)] = signals
	return nil
}

func (s *Store) GetSignals(ctx context.Context, tenantID, contactID string) (common.ContactSignals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.signals[key(tenantID, contactID)]
	if !ok {
		return common.ContactSignals{}, fmt.Errorf("signals for %s: %w", contactID, store.ErrNotFound)
	}
	return sig, nil
}

func (s *Store) ListSignals(ctx context.Context, tenantID string) ([]common.ContactSignals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.ContactSignals, 0)
	for _, sig := range s.signals {
		if sig.TenantID == tenantID {
			out = append(out, sig)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContactID < out[j].ContactID })
	return out, nil
}

func (s *Store) findEdge(e common.Edge) (common.Edge, bool) {
	for _, existing := range s.edges {
		if existing.TenantID == e.TenantID && existing.FromID == e.FromID &&
			existing.ToID == e.ToID && existing.Type == e.Type {
			return existing, true
		}
	}
	return common.Edge{}, false
}

func (s *Store) insertEdge(e common.Edge) (common.Edge, error) {
	if e.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return common.Edge{}, err
		}
		e.ID = id
	}
	now := s.now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}
	e.Strength = common.Clamp(e.Strength, common.MinEdgeStrength, common.MaxEdgeStrength)
	e.Metadata = store.MergeMetadata(nil, e.Metadata)
	s.edges[e.ID] = e
	return e, nil
}

func (s *Store) UpsertEncounterEdge(ctx context.Context, edge common.Edge) (common.Edge, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.findEdge(edge); ok {
		if edge.UpdatedAt.IsZero() {
			edge.UpdatedAt = s.now()
		}
		updated := store.StrengthenedEdge(existing, edge)
		s.edges[updated.ID] = updated
		return updated, false, nil
	}
	created, err := s.insertEdge(edge)
	return created, err == nil, err
}

func (s *Store) InsertEdgeIfAbsent(ctx context.Context, edge common.Edge) (common.Edge, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.findEdge(edge); ok {
		return existing, false, nil
	}
	created, err := s.insertEdge(edge)
	return created, err == nil, err
}

func (s *Store) DeleteEdges(ctx context.Context, tenantID string, edgeIDs []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range edgeIDs {
		e, ok := s.edges[id]
		if !ok || e.TenantID != tenantID {
			continue
		}
		delete(s.edges, id)
		n++
	}
	return n, nil
}

func (s *Store) SetEdgeStrength(ctx context.Context, tenantID, edgeID string, strength int) (common.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.edges[edgeID]
	if !ok || e.TenantID != tenantID {
		return common.Edge{}, fmt.Errorf("edge %s: %w", edgeID, store.ErrNotFound)
	}
	e.Strength = common.Clamp(strength, common.MinEdgeStrength, common.MaxEdgeStrength)
	e.UpdatedAt = s.now()
	s.edges[edgeID] = e
	return e, nil
}

func (s *Store) ListEdges(ctx context.Context, tenantID string) ([]common.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Edge, 0)
	for _, e := range s.edges {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		if out[i].FromID != out[j].FromID {
			return out[i].FromID < out[j].FromID
		}
		return out[i].ToID < out[j].ToID
	})
	return out, nil
}

func (s *Store) GetSuggestion(ctx context.Context, tenantID, suggestionID string) (common.Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sg, ok := s.suggestions[key(tenantID, suggestionID)]
	if !ok {
		return common.Suggestion{}, fmt.Errorf("suggestion %s: %w", suggestionID, store.ErrNotFound)
	}
	return sg, nil
}

func (s *Store) GetGoal(ctx context.Context, tenantID, goalID string) (common.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.goals[key(tenantID, goalID)]
	if !ok {
		return common.Goal{}, fmt.Errorf("goal %s: %w", goalID, store.ErrNotFound)
	}
	return g, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]common.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ReplaceOverlaps(ctx context.Context, overlaps []common.Overlap) error {
	seen := make(map[string]struct{}, len(overlaps))
	for _, o := range overlaps {
		if _, ok := seen[o.ID]; ok {
			return fmt.Errorf("duplicate overlap id %s: %w", o.ID, store.ErrValidation)
		}
		seen[o.ID] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlaps = slices.Clone(overlaps)
	return nil
}

func (s *Store) ListOverlaps(ctx context.Context) ([]common.Overlap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.overlaps), nil
}
