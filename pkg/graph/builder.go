package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/common"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/logger"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/store"

	"golang.org/x/sync/errgroup"
)

const (
	EncounterCreateStrength = 5
	IntroCreateStrength     = 8
	GoalLinkCreateStrength  = 6
)

// Outcome labels what an edge write did.
type Outcome string

const (
	OutcomeCreated      Outcome = "created"
	OutcomeStrengthened Outcome = "strengthened"
	OutcomeUnchanged    Outcome = "unchanged"
	OutcomeSkipped      Outcome = "skipped"
	OutcomeFailed       Outcome = "failed"
)

// Observer is notified after every edge write attempt.
type Observer interface {
	EdgeWritten(edgeType common.EdgeType, outcome Outcome)
}

// Storage is what the builder needs from the storage collaborator.
type Storage interface {
	store.PersonStore
	store.EncounterStore
	store.EdgeStore
	store.EventSourceStore
}

// Result summarizes one event.
type Result struct {
	Created      int `json:"created"`
	Strengthened int `json:"strengthened"`
	Unchanged    int `json:"unchanged"`
	Skipped      int `json:"skipped"`
	Failed       int `json:"failed"`
}

func (r *Result) add(o Outcome) {
	switch o {
	case OutcomeCreated:
		r.Created++
	case OutcomeStrengthened:
		r.Strengthened++
	case OutcomeUnchanged:
		r.Unchanged++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFailed:
		r.Failed++
	}
}

// Builder maintains the edge set in response to domain events. Handlers are
// best effort: missing references and per-edge failures are logged and do
// not surface as errors. Only a storage failure while resolving the event
// itself is returned, so the transport can redeliver it.
type Builder struct {
	store    Storage
	parallel int
	now      func() time.Time
	observer Observer
}

type NewBuilderParams struct {
	Store Storage
	// Parallel bounds concurrent edge writes per event. Defaults to 4.
	Parallel int
	Now      func() time.Time
	Observer Observer
}

func NewBuilder(params NewBuilderParams) *Builder {
	parallel := params.Parallel
	if parallel <= 0 {
		parallel = 4
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Builder{
		store:    params.Store,
		parallel: parallel,
		now:      now,
		observer: params.Observer,
	}
}

func (b *Builder) observe(t common.EdgeType, o Outcome) {
	if b.observer != nil {
		b.observer.EdgeWritten(t, o)
	}
}

// lookupFailed decides whether a failed lookup is swallowed or returned.
func lookupFailed(err error, what string, keyvals ...any) error {
	if errors.Is(err, store.ErrNotFound) {
		logger.Warn("[Graph] "+what+" not found, skipping", append(keyvals, "err", err)...)
		return nil
	}
	logger.Error("[Graph] Failed to load "+what, append(keyvals, "err", err)...)
	return fmt.Errorf("failed to load %s: %w", what, err)
}

// personMissing reports whether a referenced person is absent from the
// tenant. Any other lookup failure is returned.
func (b *Builder) personMissing(ctx context.Context, tenantID, personID string) (bool, error) {
	_, err := b.store.GetPerson(ctx, tenantID, personID)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, store.ErrNotFound):
		logger.Warn("[Graph] Referenced person not in tenant, skipping", "tenant_id", tenantID, "person_id", personID)
		return true, nil
	default:
		return false, fmt.Errorf("failed to load person %s: %w", personID, err)
	}
}

// Pair is an unordered pair of people in canonical order.
type Pair struct {
	From string
	To   string
}

// Pairs returns every unordered pair of distinct ids. Repeated ids are
// collapsed, so a person never pairs with themselves.
func Pairs(ids []string) []Pair {
	unique := store.DedupeStrings(ids)
	slices.Sort(unique)
	pairs := make([]Pair, 0, len(unique)*(len(unique)-1)/2)
	for i := 0; i < len(unique); i++ {
		for j := i + 1; j < len(unique); j++ {
			pairs = append(pairs, Pair{From: unique[i], To: unique[j]})
		}
	}
	return pairs
}

// OnEncounterRecorded creates or strengthens an encounter edge for every
// pair of participants. New edges start at 5; each further encounter adds
// 1 up to 10.
func (b *Builder) OnEncounterRecorded(ctx context.Context, ev EncounterRecorded) (Result, error) {
	var res Result

	participants, err := b.store.GetEncounterParticipants(ctx, ev.TenantID, ev.EncounterID)
	if err != nil {
		return res, lookupFailed(err, "encounter", "tenant_id", ev.TenantID, "encounter_id", ev.EncounterID)
	}

	pairs := Pairs(participants)
	if dupes := len(participants) - len(store.DedupeStrings(participants)); dupes > 0 {
		logger.Warn("[Graph] Encounter lists a participant more than once", "encounter_id", ev.EncounterID, "duplicates", dupes)
		res.Skipped += dupes
	}
	if len(pairs) == 0 {
		logger.Debug("[Graph] Encounter has fewer than two participants", "encounter_id", ev.EncounterID)
		return res, nil
	}

	stamp := b.now().UTC()
	var mu sync.Mutex
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(b.parallel)
	for _, p := range pairs {
		eg.Go(func() error {
			outcome := b.strengthenEncounterEdge(ectx, ev, p, stamp)
			mu.Lock()
			res.add(outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	logger.Info("[Graph] Encounter edges updated", "tenant_id", ev.TenantID, "encounter_id", ev.EncounterID,
		"pairs", len(pairs), "created", res.Created, "strengthened", res.Strengthened, "failed", res.Failed)
	return res, nil
}

func (b *Builder) strengthenEncounterEdge(ctx context.Context, ev EncounterRecorded, p Pair, stamp time.Time) Outcome {
	edge := common.Edge{
		TenantID: ev.TenantID,
		FromID:   p.From,
		ToID:     p.To,
		Type:     common.EdgeEncounter,
		Strength: EncounterCreateStrength,
		Metadata: map[string]any{
			"encounterId":     ev.EncounterID,
			"lastEncounterAt": stamp.Format(time.RFC3339),
		},
		CreatedAt: stamp,
		UpdatedAt: stamp,
	}
	if ev.OwnerID != "" {
		edge.Metadata["ownerId"] = ev.OwnerID
	}

	stored, created, err := b.store.UpsertEncounterEdge(ctx, edge)
	outcome := OutcomeStrengthened
	switch {
	case err != nil:
		logger.Error("[Graph] Failed to upsert encounter edge", "tenant_id", ev.TenantID, "from", p.From, "to", p.To, "err", err)
		outcome = OutcomeFailed
	case created:
		outcome = OutcomeCreated
	default:
		logger.Debug("[Graph] Strengthened encounter edge", "edge_id", stored.ID, "strength", stored.Strength)
	}
	b.observe(common.EdgeEncounter, outcome)
	return outcome
}

// OnSuggestionAccepted records an accepted introduction as an intro edge of
// strength 8. Processing the same suggestion again changes nothing.
func (b *Builder) OnSuggestionAccepted(ctx context.Context, ev SuggestionAccepted) (Result, error) {
	var res Result

	sg, err := b.store.GetSuggestion(ctx, ev.TenantID, ev.SuggestionID)
	if err != nil {
		return res, lookupFailed(err, "suggestion", "tenant_id", ev.TenantID, "suggestion_id", ev.SuggestionID)
	}

	pairs := Pairs([]string{sg.PersonAID, sg.PersonBID})
	if len(pairs) != 1 {
		logger.Warn("[Graph] Suggestion does not name two distinct people, skipping",
			"suggestion_id", sg.ID, "person_a", sg.PersonAID, "person_b", sg.PersonBID)
		res.add(OutcomeSkipped)
		b.observe(common.EdgeIntro, OutcomeSkipped)
		return res, nil
	}
	for _, personID := range []string{pairs[0].From, pairs[0].To} {
		missing, err := b.personMissing(ctx, ev.TenantID, personID)
		if err != nil {
			logger.Error("[Graph] Failed to load suggested person", "suggestion_id", sg.ID, "person_id", personID, "err", err)
			return res, err
		}
		if missing {
			res.add(OutcomeSkipped)
			b.observe(common.EdgeIntro, OutcomeSkipped)
			return res, nil
		}
	}

	stamp := b.now().UTC()
	edge := common.Edge{
		TenantID: ev.TenantID,
		FromID:   pairs[0].From,
		ToID:     pairs[0].To,
		Type:     common.EdgeIntro,
		Strength: IntroCreateStrength,
		Metadata: map[string]any{
			"suggestionId": sg.ID,
			"score":        sg.Score,
			"rationale":    sg.Rationale,
			"acceptedAt":   stamp.Format(time.RFC3339),
		},
		CreatedAt: stamp,
		UpdatedAt: stamp,
	}
	res.add(b.insertOnce(ctx, edge))
	return res, nil
}

// OnGoalReferencesPeople links each referenced person to the goal with a
// goal_link edge of strength 6. Existing links are left untouched.
func (b *Builder) OnGoalReferencesPeople(ctx context.Context, ev GoalReferencesPeople) (Result, error) {
	var res Result

	goal, err := b.store.GetGoal(ctx, ev.TenantID, ev.GoalID)
	if err != nil {
		return res, lookupFailed(err, "goal", "tenant_id", ev.TenantID, "goal_id", ev.GoalID)
	}

	people := store.DedupeStrings(ev.PersonIDs)
	if len(people) == 0 {
		return res, nil
	}

	stamp := b.now().UTC()
	var mu sync.Mutex
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(b.parallel)
	for _, personID := range people {
		if personID == goal.ID {
			mu.Lock()
			res.add(OutcomeSkipped)
			mu.Unlock()
			continue
		}
		eg.Go(func() error {
			outcome := b.linkGoal(ectx, ev.TenantID, goal.ID, personID, stamp)
			mu.Lock()
			res.add(outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	logger.Info("[Graph] Goal links updated", "tenant_id", ev.TenantID, "goal_id", goal.ID,
		"people", len(people), "created", res.Created, "unchanged", res.Unchanged, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

func (b *Builder) linkGoal(ctx context.Context, tenantID, goalID, personID string, stamp time.Time) Outcome {
	missing, err := b.personMissing(ctx, tenantID, personID)
	if err != nil {
		logger.Error("[Graph] Failed to load goal person", "goal_id", goalID, "person_id", personID, "err", err)
		b.observe(common.EdgeGoalLink, OutcomeFailed)
		return OutcomeFailed
	}
	if missing {
		b.observe(common.EdgeGoalLink, OutcomeSkipped)
		return OutcomeSkipped
	}

	edge := common.Edge{
		TenantID: tenantID,
		FromID:   personID,
		ToID:     goalID,
		Type:     common.EdgeGoalLink,
		Strength: GoalLinkCreateStrength,
		Metadata: map[string]any{
			"goalId":   goalID,
			"linkedAt": stamp.Format(time.RFC3339),
		},
		CreatedAt: stamp,
		UpdatedAt: stamp,
	}
	return b.insertOnce(ctx, edge)
}

func (b *Builder) insertOnce(ctx context.Context, edge common.Edge) Outcome {
	stored, created, err := b.store.InsertEdgeIfAbsent(ctx, edge)
	outcome := OutcomeUnchanged
	switch {
	case err != nil:
		logger.Error("[Graph] Failed to insert edge", "type", edge.Type, "tenant_id", edge.TenantID,
			"from", edge.FromID, "to", edge.ToID, "err", err)
		outcome = OutcomeFailed
	case created:
		outcome = OutcomeCreated
		logger.Debug("[Graph] Created edge", "type", edge.Type, "edge_id", stored.ID)
	}
	b.observe(edge.Type, outcome)
	return outcome
}

// RemoveEdges hard-deletes edges. Unknown ids are ignored.
func (b *Builder) RemoveEdges(ctx context.Context, tenantID string, edgeIDs []string) (int64, error) {
	n, err := b.store.DeleteEdges(ctx, tenantID, edgeIDs)
	if err != nil {
		logger.Error("[Graph] Failed to delete edges", "tenant_id", tenantID, "count", len(edgeIDs), "err", err)
		return 0, err
	}
	logger.Info("[Graph] Removed edges", "tenant_id", tenantID, "requested", len(edgeIDs), "deleted", n)
	return n, nil
}

// UpdateEdgeStrength overrides an edge's strength, clamped to [0, 10]. A
// missing edge is logged and ignored.
func (b *Builder) UpdateEdgeStrength(ctx context.Context, tenantID, edgeID string, strength int) error {
	clamped := common.Clamp(strength, common.MinEdgeStrength, common.MaxEdgeStrength)
	e, err := b.store.SetEdgeStrength(ctx, tenantID, edgeID, clamped)
	if err != nil {
		return lookupFailed(err, "edge", "tenant_id", tenantID, "edge_id", edgeID)
	}
	logger.Debug("[Graph] Set edge strength", "edge_id", e.ID, "requested", strength, "strength", e.Strength)
	return nil
}
