package layer

import (
	"math"
	"testing"

	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/common"
)

func TestForScores_Boundaries(t *testing.T) {
	cases := []struct {
		strength float64
		monthly  float64
		want     string
	}{
		{8, 8, "intimate"},
		{7.99, 100, "close"},
		{10, 7.99, "close"},
		{7, 2, "close"},
		{6.99, 2, "meaningful"},
		{10, 1.99, "meaningful"},
		{5, 0.5, "meaningful"},
		{4.99, 5, "stable"},
		{3, 0.1, "stable"},
		{2.99, 100, "extended"},
		{10, 0.09, "extended"},
		{0, 0, "extended"},
	}
	for _, tc := range cases {
		got := ForScores(tc.strength, tc.monthly)
		if got.Name != tc.want {
			t.Fatalf("ForScores(%v, %v): expected %s, got %s", tc.strength, tc.monthly, tc.want, got.Name)
		}
	}
}

func TestClassify_FrequencyGate(t *testing.T) {
	// 12 interactions in 90 days, last contact 5 days ago: strong, but only
	// 4 per month, so the contact is close rather than intimate.
	sig := common.ContactSignals{Interactions90d: 12, DecayDays: 5, SentimentAvg: 69}

	s := Strength(sig)
	if math.Abs(s-9.03) > 0.01 {
		t.Fatalf("expected strength ~9.03, got %v", s)
	}
	if got := Classify(sig); got != Close {
		t.Fatalf("expected close, got %+v", got)
	}
}

func TestClassify_Intimate(t *testing.T) {
	sig := common.ContactSignals{Interactions90d: 24, DecayDays: 0, SentimentAvg: 70}
	if got := Classify(sig); got != Intimate {
		t.Fatalf("expected intimate, got %+v", got)
	}
}

func TestClassify_NeverContacted(t *testing.T) {
	sig := common.ContactSignals{Interactions90d: 0, DecayDays: 365, SentimentAvg: 0, CapacityCost: 100}
	if got := Classify(sig); got != Extended {
		t.Fatalf("expected extended, got %+v", got)
	}
	if s := Strength(sig); s != 0 {
		t.Fatalf("expected strength 0, got %v", s)
	}
}

func TestStrength_DecayBeyondYearIsZeroRecency(t *testing.T) {
	a := Strength(common.ContactSignals{DecayDays: 365})
	b := Strength(common.ContactSignals{DecayDays: 5000})
	if a != b {
		t.Fatalf("expected equal strength past one year, got %v and %v", a, b)
	}
}

func TestLayers_Capacities(t *testing.T) {
	want := []int{5, 15, 50, 150, 1500}
	for i, l := range Layers {
		if l.Level != i+1 {
			t.Fatalf("expected level %d, got %d", i+1, l.Level)
		}
		if l.Capacity != want[i] {
			t.Fatalf("layer %s: expected capacity %d, got %d", l.Name, want[i], l.Capacity)
		}
	}
}

func TestReport_FlagsOverCapacity(t *testing.T) {
	signals := make([]common.ContactSignals, 0, 7)
	for range 6 {
		signals = append(signals, common.ContactSignals{Interactions90d: 30, SentimentAvg: 70})
	}
	signals = append(signals, common.ContactSignals{DecayDays: 365})

	report := Report(signals)
	if len(report) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(report))
	}
	if report[0].Count != 6 || !report[0].OverLimit {
		t.Fatalf("expected 6 intimate contacts over limit, got %+v", report[0])
	}
	if report[4].Count != 1 || report[4].OverLimit {
		t.Fatalf("expected 1 extended contact within limit, got %+v", report[4])
	}
}
