package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/extract"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/graph"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/logger"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/signals"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/store"
)

// Publisher sends follow-up messages, e.g. signal recomputations.
type Publisher interface {
	Publish(ctx context.Context, queueName string, body []byte) error
}

// Storage is what the handler reads directly, next to the builder and the
// signal service.
type Storage interface {
	store.PersonStore
	store.ClaimWriter
	store.EncounterStore
	store.EventSourceStore
}

type Handler struct {
	builder   *graph.Builder
	signals   *signals.Service
	store     Storage
	publisher Publisher
	now       func() time.Time
}

type NewHandlerParams struct {
	Builder   *graph.Builder
	Signals   *signals.Service
	Store     Storage
	Publisher Publisher
	Now       func() time.Time
}

func NewHandler(params NewHandlerParams) *Handler {
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{
		builder:   params.Builder,
		signals:   params.Signals,
		store:     params.Store,
		publisher: params.Publisher,
		now:       now,
	}
}

// Handle dispatches one message body by queue name. A returned error
// wrapping ErrInvalidMessage must not be retried.
func (h *Handler) Handle(ctx context.Context, queueName string, body []byte) error {
	switch queueName {
	case EncounterRecordedQueue:
		ev, err := decode[graph.EncounterRecorded](body)
		if err != nil {
			return err
		}
		return h.encounterRecorded(ctx, ev)
	case SuggestionAcceptedQueue:
		ev, err := decode[graph.SuggestionAccepted](body)
		if err != nil {
			return err
		}
		_, err = h.builder.OnSuggestionAccepted(ctx, ev)
		return err
	case GoalCreatedQueue:
		ev, err := decode[graph.GoalReferencesPeople](body)
		if err != nil {
			return err
		}
		return h.goalCreated(ctx, ev)
	case EdgesRetractedQueue:
		ev, err := decode[graph.EdgesRetracted](body)
		if err != nil {
			return err
		}
		_, err = h.builder.RemoveEdges(ctx, ev.TenantID, ev.EdgeIDs)
		return err
	case EdgeStrengthQueue:
		ev, err := decode[graph.EdgeStrengthSet](body)
		if err != nil {
			return err
		}
		return h.builder.UpdateEdgeStrength(ctx, ev.TenantID, ev.EdgeID, ev.Strength)
	case SignalsQueue:
		msg, err := decode[RecomputeSignalsMsg](body)
		if err != nil {
			return err
		}
		return h.recomputeSignals(ctx, msg)
	default:
		return fmt.Errorf("%w: unknown queue %s", ErrInvalidMessage, queueName)
	}
}

// encounterRecorded updates the edges, then schedules a signal recompute for
// each participant. Encounter strengthening is not idempotent, so failures
// after the edges were written are logged rather than returned.
func (h *Handler) encounterRecorded(ctx context.Context, ev graph.EncounterRecorded) error {
	if _, err := h.builder.OnEncounterRecorded(ctx, ev); err != nil {
		return err
	}

	participants, err := h.store.GetEncounterParticipants(ctx, ev.TenantID, ev.EncounterID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Error("[Queue] Failed to load participants for signal refresh", "encounter_id", ev.EncounterID, "err", err)
		}
		return nil
	}
	h.scheduleSignals(ctx, ev.TenantID, store.DedupeStrings(participants))
	return nil
}

func (h *Handler) goalCreated(ctx context.Context, ev graph.GoalReferencesPeople) error {
	if ev.Extraction != "" {
		// claims are only stored for a goal that exists
		if _, err := h.store.GetGoal(ctx, ev.TenantID, ev.GoalID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				logger.Warn("[Queue] Goal not found, dropping goal message", "tenant_id", ev.TenantID, "goal_id", ev.GoalID)
				return nil
			}
			return fmt.Errorf("failed to load goal %s: %w", ev.GoalID, err)
		}
		ev.PersonIDs = append(ev.PersonIDs, h.resolveExtraction(ctx, ev)...)
	}
	_, err := h.builder.OnGoalReferencesPeople(ctx, ev)
	return err
}

// resolveExtraction binds the people named in the goal's extraction payload
// and stores the claims made about them. It never fails the message: an
// unusable payload only loses the extra links.
func (h *Handler) resolveExtraction(ctx context.Context, ev graph.GoalReferencesPeople) []string {
	res, err := extract.Parse(ev.Extraction)
	if err != nil {
		logger.Warn("[Queue] Ignoring unreadable goal extraction", "goal_id", ev.GoalID, "err", err)
		return nil
	}
	people, err := h.store.ListPeople(ctx, ev.TenantID)
	if err != nil {
		logger.Error("[Queue] Failed to list people for goal extraction", "tenant_id", ev.TenantID, "err", err)
		return nil
	}

	resolved := extract.Resolve(res, people, ev.TenantID, "goal:"+ev.GoalID, h.now().UTC())
	if len(resolved.Unresolved) > 0 {
		logger.Debug("[Queue] Unresolved people in goal extraction", "goal_id", ev.GoalID, "names", resolved.Unresolved)
	}
	if len(resolved.Claims) > 0 {
		n, err := h.store.InsertClaims(ctx, resolved.Claims)
		if err != nil {
			logger.Error("[Queue] Failed to store extracted claims", "goal_id", ev.GoalID, "err", err)
		} else {
			logger.Info("[Queue] Stored extracted claims", "goal_id", ev.GoalID, "claims", n)
			subjects := make([]string, 0, len(resolved.Claims))
			for _, c := range resolved.Claims {
				subjects = append(subjects, c.SubjectID)
			}
			slices.Sort(subjects)
			h.scheduleSignals(ctx, ev.TenantID, slices.Compact(subjects))
		}
	}
	return resolved.PersonIDs
}

func (h *Handler) scheduleSignals(ctx context.Context, tenantID string, contactIDs []string) {
	if h.publisher == nil {
		return
	}
	for _, id := range contactIDs {
		body, err := json.Marshal(RecomputeSignalsMsg{TenantID: tenantID, ContactID: id})
		if err != nil {
			logger.Error("[Queue] Failed to marshal signals message", "contact_id", id, "err", err)
			continue
		}
		if err := h.publisher.Publish(ctx, SignalsQueue, body); err != nil {
			logger.Error("[Queue] Failed to publish signals message", "contact_id", id, "err", err)
		}
	}
}

func (h *Handler) recomputeSignals(ctx context.Context, msg RecomputeSignalsMsg) error {
	sig, err := h.signals.Recompute(ctx, msg.TenantID, msg.ContactID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Warn("[Queue] Contact no longer exists, dropping signals message", "tenant_id", msg.TenantID, "contact_id", msg.ContactID)
		return nil
	}
	if err != nil {
		return err
	}
	logger.Debug("[Queue] Recomputed signals", "contact_id", sig.ContactID, "decay_days", sig.DecayDays)
	return nil
}
