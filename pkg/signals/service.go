package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/common"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/logger"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/store"
)

// Storage is the subset of store.Storage the service reads and writes.
type Storage interface {
	store.PersonStore
	store.ClaimStore
	store.EncounterStore
	store.SignalStore
}

// Service loads a contact's history and computes or persists its signals.
// It holds no mutable state and is safe for concurrent use.
type Service struct {
	store Storage
	now   func() time.Time
}

type NewServiceParams struct {
	Store Storage
	// Now defaults to time.Now.
	Now func() time.Time
}

func NewService(params NewServiceParams) *Service {
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store: params.Store,
		now:   now,
	}
}

// ComputeSignals returns the current signals for a contact. A contact that
// does not exist in the tenant yields store.ErrNotFound; storage errors are
// returned unchanged so the caller can decide whether to retry.
func (s *Service) ComputeSignals(ctx context.Context, tenantID, contactID string) (common.ContactSignals, error) {
	if _, err := s.store.GetPerson(ctx, tenantID, contactID); err != nil {
		return common.ContactSignals{}, fmt.Errorf("failed to load contact: %w", err)
	}

	encounters, err := s.store.ListEncountersForPerson(ctx, tenantID, contactID, time.Time{})
	if err != nil {
		return common.ContactSignals{}, fmt.Errorf("failed to load encounters: %w", err)
	}
	claims, err := s.store.ListClaimsForPerson(ctx, tenantID, contactID)
	if err != nil {
		return common.ContactSignals{}, fmt.Errorf("failed to load claims: %w", err)
	}

	return Compute(Input{
		TenantID:   tenantID,
		ContactID:  contactID,
		Encounters: encounters,
		Claims:     claims,
	}, s.now()), nil
}

// UpsertSignals persists a row keyed by (tenant, contact). Writing the same
// row twice leaves one identical row.
func (s *Service) UpsertSignals(ctx context.Context, sig common.ContactSignals) error {
	if sig.TenantID == "" || sig.ContactID == "" {
		return fmt.Errorf("signals without tenant or contact: %w", store.ErrValidation)
	}
	return s.store.UpsertSignals(ctx, sig)
}

// Recompute computes and persists signals for one contact.
func (s *Service) Recompute(ctx context.Context, tenantID, contactID string) (common.ContactSignals, error) {
	sig, err := s.ComputeSignals(ctx, tenantID, contactID)
	if err != nil {
		return common.ContactSignals{}, err
	}
	if err := s.UpsertSignals(ctx, sig); err != nil {
		return common.ContactSignals{}, fmt.Errorf("failed to upsert signals: %w", err)
	}
	logger.Debug("[Signals] Recomputed contact", "tenant_id", tenantID, "contact_id", contactID,
		"interactions_90d", sig.Interactions90d, "decay_days", sig.DecayDays)
	return sig, nil
}
