package signals

import (
	"reflect"
	"testing"
	"time"

	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/common"
)

func TestResolveClaims_HighestConfidenceWins(t *testing.T) {
	claims := []common.Claim{
		{ID: "c1", Key: common.ClaimCompany, Value: "Initech", Confidence: 40, ObservedAt: testNow},
		{ID: "c2", Key: common.ClaimCompany, Value: "Acme", Confidence: 90, ObservedAt: testNow.Add(-time.Hour)},
	}
	got := ResolveClaims(claims)[common.ClaimCompany]
	if got.ID != "c2" {
		t.Fatalf("expected c2, got %s", got.ID)
	}
}

func TestResolveClaims_MostRecentBreaksTie(t *testing.T) {
	claims := []common.Claim{
		{ID: "c1", Key: common.ClaimRole, Value: "VP", Confidence: 70, ObservedAt: testNow.Add(-48 * time.Hour)},
		{ID: "c2", Key: common.ClaimRole, Value: "CTO", Confidence: 70, ObservedAt: testNow},
	}
	got := ResolveClaims(claims)[common.ClaimRole]
	if got.Value != "CTO" {
		t.Fatalf("expected CTO, got %s", got.Value)
	}
}

func TestResolveClaims_OrderIndependent(t *testing.T) {
	a := common.Claim{ID: "a", Key: common.ClaimRole, Value: "x", Confidence: 50, ObservedAt: testNow}
	b := common.Claim{ID: "b", Key: common.ClaimRole, Value: "y", Confidence: 50, ObservedAt: testNow}

	first := ResolveClaims([]common.Claim{a, b})[common.ClaimRole]
	second := ResolveClaims([]common.Claim{b, a})[common.ClaimRole]
	if first.ID != second.ID {
		t.Fatalf("resolution depends on order: %s vs %s", first.ID, second.ID)
	}
}

func TestResolveClaims_SkipsBlankValues(t *testing.T) {
	claims := []common.Claim{
		{ID: "c1", Key: common.ClaimTitle, Value: "  ", Confidence: 100},
		{ID: "c2", Key: common.ClaimTitle, Value: "Founder", Confidence: 10},
	}
	got := ResolveClaims(claims)[common.ClaimTitle]
	if got.ID != "c2" {
		t.Fatalf("expected c2, got %s", got.ID)
	}
}

func TestTags_Normalization(t *testing.T) {
	resolved := ResolveClaims([]common.Claim{
		{ID: "c1", Key: common.ClaimCompany, Value: "Acme"},
		{ID: "c2", Key: common.ClaimLocation, Value: "Berlin, ,acme"},
		{ID: "c3", Key: common.ClaimInterests, Value: "Climbing,  Jazz ,climbing"},
		{ID: "c4", Key: common.ClaimPhone, Value: "+49 123"},
	})
	got := ContextTags(resolved)
	want := []string{"acme", "berlin", "climbing", "jazz"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestRoleTags_Empty(t *testing.T) {
	got := RoleTags(nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}
