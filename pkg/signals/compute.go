package signals

import (
	"math"
	"time"

	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/common"
)

const (
	// Window is the trailing period for frequency-based terms.
	Window = 90 * 24 * time.Hour
	// NoContactDecayDays is the decay assigned to a contact nobody has met.
	NoContactDecayDays = 365

	activeSentimentBase   = 70
	inactiveSentimentBase = 30
)

// Input is everything Compute needs for one contact.
type Input struct {
	TenantID   string
	ContactID  string
	Encounters []common.Encounter
	Claims     []common.Claim
}

// Compute derives a ContactSignals row. It has no side effects and the
// same input and now always yield the same row.
func Compute(in Input, now time.Time) common.ContactSignals {
	cutoff := now.Add(-Window)

	var last *time.Time
	interactions := 0
	outbound, mutual := 0, 0
	for i := range in.Encounters {
		e := in.Encounters[i]
		if last == nil || e.OccurredAt.After(*last) {
			at := e.OccurredAt
			last = &at
		}
		if e.OccurredAt.Before(cutoff) {
			continue
		}
		interactions++
		switch e.Kind {
		case common.EncounterEmail, common.EncounterCall:
			outbound++
		case common.EncounterMeeting:
			mutual++
		}
	}

	decay := NoContactDecayDays
	if last != nil {
		decay = max(0, int(math.Floor(now.Sub(*last).Hours()/24)))
	}

	resolved := ResolveClaims(in.Claims)
	contextTags := ContextTags(resolved)

	return common.ContactSignals{
		TenantID:           in.TenantID,
		ContactID:          in.ContactID,
		LastInteractionAt:  last,
		Interactions90d:    interactions,
		ReciprocityRatio:   reciprocity(outbound, mutual),
		SentimentAvg:       sentiment(interactions, decay),
		DecayDays:          decay,
		RoleTags:           RoleTags(resolved),
		SharedContextTags:  contextTags,
		GoalAlignmentScore: min(100, 10*len(contextTags)+5*interactions),
		CapacityCost:       100 - common.Clamp(2*interactions+(100-decay), 0, 50),
		ComputedAt:         now,
	}
}

// reciprocity is outbound-initiated encounters per mutual one, as a
// percentage capped at 100. No mutual encounters means 0.
func reciprocity(outbound, mutual int) int {
	if mutual == 0 {
		return 0
	}
	ratio := math.Round(100 * float64(outbound) / float64(mutual))
	return common.Clamp(int(ratio), 0, 100)
}

// sentiment is a coarse proxy: a base that depends on recent activity,
// minus a fifth of a point per decay day.
func sentiment(interactions, decay int) int {
	base := inactiveSentimentBase
	if interactions > 0 {
		base = activeSentimentBase
	}
	v := math.Round(float64(base) - float64(decay)/5)
	return common.Clamp(int(v), 0, 100)
}
