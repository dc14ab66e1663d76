package layer

import (
	"math"

	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/common"
)

var (
	Intimate   = common.DunbarLayer{Level: 1, Name: "intimate", Capacity: 5}
	Close      = common.DunbarLayer{Level: 2, Name: "close", Capacity: 15}
	Meaningful = common.DunbarLayer{Level: 3, Name: "meaningful", Capacity: 50}
	Stable     = common.DunbarLayer{Level: 4, Name: "stable", Capacity: 150}
	Extended   = common.DunbarLayer{Level: 5, Name: "extended", Capacity: 1500}
)

// Layers lists the tiers from innermost to outermost.
var Layers = []common.DunbarLayer{Intimate, Close, Meaningful, Stable, Extended}

// rung is one step of the classification ladder. A contact must clear
// both bars to land on the rung.
type rung struct {
	minStrength float64
	minMonthly  float64
	layer       common.DunbarLayer
}

var ladder = []rung{
	{minStrength: 8, minMonthly: 8, layer: Intimate},
	{minStrength: 7, minMonthly: 2, layer: Close},
	{minStrength: 5, minMonthly: 0.5, layer: Meaningful},
	{minStrength: 3, minMonthly: 0.1, layer: Stable},
}

// Strength is the 0-10 relationship strength of a signals snapshot.
func Strength(sig common.ContactSignals) float64 {
	recency := math.Max(0, 1-float64(sig.DecayDays)/365)
	frequency := math.Min(1, float64(sig.Interactions90d)/12)
	sentiment := float64(sig.SentimentAvg) / 100
	return 10 * (0.3*recency + 0.4*frequency + 0.3*sentiment)
}

// MonthlyFrequency is the average number of interactions per month over
// the trailing 90 days.
func MonthlyFrequency(sig common.ContactSignals) float64 {
	return float64(sig.Interactions90d) / 3
}

// ForScores walks the ladder top-down and returns the first tier whose
// strength and frequency bars are both met.
func ForScores(strength, monthlyFrequency float64) common.DunbarLayer {
	for _, r := range ladder {
		if strength >= r.minStrength && monthlyFrequency >= r.minMonthly {
			return r.layer
		}
	}
	return Extended
}

// Classify maps a signals snapshot onto its Dunbar layer. It never fails.
func Classify(sig common.ContactSignals) common.DunbarLayer {
	return ForScores(Strength(sig), MonthlyFrequency(sig))
}

// LayerUsage is the population of one tier in a contact set.
type LayerUsage struct {
	Layer     common.DunbarLayer `json:"layer"`
	Count     int                `json:"count"`
	OverLimit bool               `json:"over_limit"`
}

// Report classifies every snapshot and counts contacts per tier, flagging
// tiers that exceed their nominal capacity.
func Report(signals []common.ContactSignals) []LayerUsage {
	counts := make(map[int]int, len(Layers))
	for _, sig := range signals {
		counts[Classify(sig).Level]++
	}
	out := make([]LayerUsage, len(Layers))
	for i, l := range Layers {
		out[i] = LayerUsage{
			Layer:     l,
			Count:     counts[l.Level],
			OverLimit: counts[l.Level] > l.Capacity,
		}
	}
	return out
}
