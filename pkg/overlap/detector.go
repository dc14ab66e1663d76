package overlap

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/common"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/logger"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/store"

	"golang.org/x/sync/errgroup"
)

const (
	EmailConfidence = 95
	NameConfidence  = 70
)

type Storage interface {
	store.PersonStore
	store.ClaimStore
	store.OverlapStore
}

// Archiver receives every overlap set that was successfully persisted.
type Archiver interface {
	Archive(ctx context.Context, overlaps []common.Overlap, at time.Time) error
}

// Detector runs the cross-tenant identity sweep. It is a batch job and
// must not run on a request path: the name pass touches every person of
// every paired tenant.
type Detector struct {
	store          Storage
	ignoredDomains map[string]struct{}
	parallel       int
	now            func() time.Time
	archiver       Archiver
}

type NewDetectorParams struct {
	Store Storage
	// IgnoredDomains lists owner email domains that never imply a shared
	// organization, e.g. public mail providers.
	IgnoredDomains []string
	// Parallel bounds concurrent tenant loads. Defaults to 4.
	Parallel int
	Now      func() time.Time
	Archiver Archiver
}

func NewDetector(params NewDetectorParams) *Detector {
	ignored := make(map[string]struct{}, len(params.IgnoredDomains))
	for _, d := range params.IgnoredDomains {
		if d = NormalizeEmail(d); d != "" {
			ignored[d] = struct{}{}
		}
	}
	parallel := params.Parallel
	if parallel <= 0 {
		parallel = 4
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Detector{
		store:          params.Store,
		ignoredDomains: ignored,
		parallel:       parallel,
		now:            now,
		archiver:       params.Archiver,
	}
}

// SameOrganization is the pairing heuristic: both tenant owners use the
// same email domain, and that domain is not ignored.
func (d *Detector) SameOrganization(a, b common.Tenant) bool {
	da, db := EmailDomain(a.OwnerEmail), EmailDomain(b.OwnerEmail)
	if da == "" || da != db {
		return false
	}
	_, ignored := d.ignoredDomains[da]
	return !ignored
}

// tenantData is one tenant's people plus the email index of the email pass.
type tenantData struct {
	tenant common.Tenant
	people []common.Person
	emails map[string]string
}

func (d *Detector) loadTenant(ctx context.Context, t common.Tenant) (*tenantData, error) {
	people, err := d.store.ListPeople(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list people for tenant %s: %w", t.ID, err)
	}
	claims, err := d.store.ListClaimsByKey(ctx, t.ID, common.ClaimEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to list email claims for tenant %s: %w", t.ID, err)
	}

	sort.Slice(people, func(i, j int) bool { return people[i].ID < people[j].ID })
	known := make(map[string]struct{}, len(people))
	for _, p := range people {
		known[p.ID] = struct{}{}
	}

	// Several people in one tenant may share an address; the smallest id
	// claims it so the result does not depend on row order.
	emails := make(map[string]string)
	claim := func(email, personID string) {
		email = NormalizeEmail(email)
		if email == "" {
			return
		}
		if current, ok := emails[email]; !ok || personID < current {
			emails[email] = personID
		}
	}
	for _, p := range people {
		claim(p.Email, p.ID)
	}
	for _, c := range claims {
		if _, ok := known[c.SubjectID]; !ok {
			continue
		}
		claim(c.Value, c.SubjectID)
	}

	return &tenantData{tenant: t, people: people, emails: emails}, nil
}

// overlapID is stable across sweeps. Person ids are only unique within a
// tenant, so both tenant ids are part of the key.
func overlapID(basis common.MatchBasis, tenantA, canonical, tenantB, matched string) string {
	key := strings.Join([]string{string(basis), tenantA, canonical, tenantB, matched}, "\x00")
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:12])
}

func (d *Detector) newOverlap(a, b *tenantData, canonical, matched string, basis common.MatchBasis, confidence int, at time.Time) common.Overlap {
	return common.Overlap{
		ID:                overlapID(basis, a.tenant.ID, canonical, b.tenant.ID, matched),
		CanonicalPersonID: canonical,
		MatchedPersonID:   matched,
		TenantIDs:         []string{a.tenant.ID, b.tenant.ID},
		Basis:             basis,
		Confidence:        confidence,
		State:             common.OverlapActive,
		DetectedAt:        at,
	}
}

// matchPair runs the email pass and the name pass over two loaded tenants.
// A pair of people matched by both passes yields two overlaps.
func (d *Detector) matchPair(a, b *tenantData, at time.Time) []common.Overlap {
	out := make([]common.Overlap, 0)

	emails := make([]string, 0, len(a.emails))
	for email := range a.emails {
		if _, ok := b.emails[email]; ok {
			emails = append(emails, email)
		}
	}
	slices.Sort(emails)
	for _, email := range emails {
		out = append(out, d.newOverlap(a, b, a.emails[email], b.emails[email], common.MatchEmail, EmailConfidence, at))
	}

	// The name pass is a hash join on both match rules, equivalent to
	// comparing every cross-tenant pair with NamesMatch.
	bySorted := make(map[string][]string)
	byFirstLast := make(map[string][]string)
	for _, p := range b.people {
		k := NormalizeName(p.Name)
		if k.Empty() {
			continue
		}
		bySorted[k.Sorted] = append(bySorted[k.Sorted], p.ID)
		if fl := k.firstLast(); fl != "" {
			byFirstLast[fl] = append(byFirstLast[fl], p.ID)
		}
	}
	for _, p := range a.people {
		k := NormalizeName(p.Name)
		if k.Empty() {
			continue
		}
		candidates := slices.Clone(bySorted[k.Sorted])
		if fl := k.firstLast(); fl != "" {
			candidates = append(candidates, byFirstLast[fl]...)
		}
		slices.Sort(candidates)
		for _, matched := range slices.Compact(candidates) {
			out = append(out, d.newOverlap(a, b, p.ID, matched, common.MatchName, NameConfidence, at))
		}
	}

	return out
}

// FindPairOverlaps compares the people of two tenants. Tenant order is
// normalized so the result is the same for (a, b) and (b, a).
func (d *Detector) FindPairOverlaps(ctx context.Context, a, b common.Tenant) ([]common.Overlap, error) {
	if b.ID < a.ID {
		a, b = b, a
	}
	da, err := d.loadTenant(ctx, a)
	if err != nil {
		return nil, err
	}
	db, err := d.loadTenant(ctx, b)
	if err != nil {
		return nil, err
	}
	return d.matchPair(da, db, d.now().UTC()), nil
}

// DetectOverlaps runs a full sweep and replaces the stored overlap set with
// its result. On any failure nothing is written and the previous set stays
// in place. People missing from the current input lose their overlaps.
func (d *Detector) DetectOverlaps(ctx context.Context) ([]common.Overlap, error) {
	start := d.now()
	tenants, err := d.store.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].ID < tenants[j].ID })

	type tenantPair struct{ a, b int }
	pairs := make([]tenantPair, 0)
	involved := make(map[int]struct{})
	for i := range tenants {
		for j := i + 1; j < len(tenants); j++ {
			if d.SameOrganization(tenants[i], tenants[j]) {
				pairs = append(pairs, tenantPair{i, j})
				involved[i] = struct{}{}
				involved[j] = struct{}{}
			}
		}
	}
	logger.Info("[Overlap] Starting sweep", "tenants", len(tenants), "tenant_pairs", len(pairs))

	loaded := make(map[int]*tenantData, len(involved))
	var mu sync.Mutex
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(d.parallel)
	for idx := range involved {
		eg.Go(func() error {
			data, err := d.loadTenant(ectx, tenants[idx])
			if err != nil {
				return err
			}
			mu.Lock()
			loaded[idx] = data
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	at := start.UTC()
	overlaps := make([]common.Overlap, 0)
	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found := d.matchPair(loaded[p.a], loaded[p.b], at)
		logger.Debug("[Overlap] Compared tenants", "tenant_a", tenants[p.a].ID, "tenant_b", tenants[p.b].ID, "overlaps", len(found))
		overlaps = append(overlaps, found...)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.store.ReplaceOverlaps(ctx, overlaps); err != nil {
		return nil, fmt.Errorf("failed to replace overlaps: %w", err)
	}
	logger.Info("[Overlap] Sweep completed", "overlaps", len(overlaps), "duration_sec", d.now().Sub(start).Seconds())

	if d.archiver != nil {
		if err := d.archiver.Archive(ctx, overlaps, at); err != nil {
			logger.Warn("[Overlap] Failed to archive sweep result", "err", err)
		}
	}
	return overlaps, nil
}
