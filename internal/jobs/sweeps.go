package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/common"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/layer"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/logger"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/overlap"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/signals"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/store"

	"golang.org/x/sync/errgroup"
)

type SignalSweepStorage interface {
	store.PersonStore
	ListTenants(ctx context.Context) ([]common.Tenant, error)
	ListSignals(ctx context.Context, tenantID string) ([]common.ContactSignals, error)
}

// SignalSweep recomputes the signals of every contact of every tenant, so
// decay keeps advancing for contacts nobody touches.
type SignalSweep struct {
	store    SignalSweepStorage
	signals  *signals.Service
	parallel int

	// LayerReport, when set, receives each tenant's Dunbar layer usage
	// after its contacts were recomputed.
	LayerReport func(tenantID string, usage []layer.LayerUsage)
}

func NewSignalSweep(st SignalSweepStorage, svc *signals.Service, parallel int) *SignalSweep {
	if parallel <= 0 {
		parallel = 8
	}
	return &SignalSweep{store: st, signals: svc, parallel: parallel}
}

// Run returns the number of contacts recomputed. A failing contact is
// logged and skipped; only cancellation and listing failures abort.
func (s *SignalSweep) Run(ctx context.Context) (int, error) {
	tenants, err := s.store.ListTenants(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list tenants: %w", err)
	}

	var done, failed atomic.Int64
	for _, t := range tenants {
		if err := ctx.Err(); err != nil {
			return int(done.Load()), err
		}
		people, err := s.store.ListPeople(ctx, t.ID)
		if err != nil {
			return int(done.Load()), fmt.Errorf("failed to list people for tenant %s: %w", t.ID, err)
		}

		eg := new(errgroup.Group)
		eg.SetLimit(s.parallel)
		for _, p := range people {
			if ctx.Err() != nil {
				break
			}
			eg.Go(func() error {
				_, err := s.signals.Recompute(ctx, t.ID, p.ID)
				switch {
				case err == nil:
					done.Add(1)
				case errors.Is(err, store.ErrNotFound):
					logger.Debug("[Jobs] Contact removed during sweep", "tenant_id", t.ID, "contact_id", p.ID)
				case ctx.Err() != nil:
				default:
					failed.Add(1)
					logger.Error("[Jobs] Failed to recompute signals", "tenant_id", t.ID, "contact_id", p.ID, "err", err)
				}
				return nil
			})
		}
		_ = eg.Wait()
		s.reportLayers(ctx, t.ID)
	}
	if err := ctx.Err(); err != nil {
		return int(done.Load()), err
	}

	if n := failed.Load(); n > 0 {
		logger.Warn("[Jobs] Signal sweep finished with failures", "recomputed", done.Load(), "failed", n)
	}
	return int(done.Load()), nil
}

func (s *SignalSweep) reportLayers(ctx context.Context, tenantID string) {
	if ctx.Err() != nil {
		return
	}
	rows, err := s.store.ListSignals(ctx, tenantID)
	if err != nil {
		logger.Error("[Jobs] Failed to list signals for layer report", "tenant_id", tenantID, "err", err)
		return
	}
	usage := layer.Report(rows)
	for _, u := range usage {
		if u.OverLimit {
			logger.Warn("[Jobs] Layer over capacity", "tenant_id", tenantID, "layer", u.Layer.Name,
				"contacts", u.Count, "capacity", u.Layer.Capacity)
		}
	}
	if s.LayerReport != nil {
		s.LayerReport(tenantID, usage)
	}
}

// OverlapSweep adapts the overlap detector to the scheduler.
type OverlapSweep struct {
	detector *overlap.Detector
}

func NewOverlapSweep(d *overlap.Detector) *OverlapSweep {
	return &OverlapSweep{detector: d}
}

func (s *OverlapSweep) Run(ctx context.Context) (int, error) {
	overlaps, err := s.detector.DetectOverlaps(ctx)
	if err != nil {
		return 0, err
	}
	return len(overlaps), nil
}
