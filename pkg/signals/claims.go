package signals

import (
	"strings"

	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/common"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/store"
)

var (
	roleKeys    = []common.ClaimKey{common.ClaimRole, common.ClaimTitle}
	contextKeys = []common.ClaimKey{
		common.ClaimCompany,
		common.ClaimLocation,
		common.ClaimExpertise,
		common.ClaimInterests,
	}
)

// Outranks reports whether claim a wins over claim b for the same key.
// Higher confidence wins, then the more recent observation, then the
// larger id so the choice never depends on input order.
func Outranks(a, b common.Claim) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if !a.ObservedAt.Equal(b.ObservedAt) {
		return a.ObservedAt.After(b.ObservedAt)
	}
	return a.ID > b.ID
}

// ResolveClaims picks the winning claim per key.
func ResolveClaims(claims []common.Claim) map[common.ClaimKey]common.Claim {
	resolved := make(map[common.ClaimKey]common.Claim, len(claims))
	for _, c := range claims {
		if strings.TrimSpace(c.Value) == "" {
			continue
		}
		current, ok := resolved[c.Key]
		if !ok || Outranks(c, current) {
			resolved[c.Key] = c
		}
	}
	return resolved
}

// Tags returns the normalized tag list for the given keys: values are
// lower-cased, split on commas and trimmed; empty and repeated tags are
// dropped. Order follows keys, then position inside each value.
func Tags(resolved map[common.ClaimKey]common.Claim, keys []common.ClaimKey) []string {
	raw := make([]string, 0, len(keys))
	for _, k := range keys {
		c, ok := resolved[k]
		if !ok {
			continue
		}
		for part := range strings.SplitSeq(strings.ToLower(c.Value), ",") {
			raw = append(raw, strings.TrimSpace(part))
		}
	}
	tags := store.DedupeStrings(raw)
	if tags == nil {
		return []string{}
	}
	return tags
}

func RoleTags(resolved map[common.ClaimKey]common.Claim) []string {
	return Tags(resolved, roleKeys)
}

func ContextTags(resolved map[common.ClaimKey]common.Claim) []string {
	return Tags(resolved, contextKeys)
}
