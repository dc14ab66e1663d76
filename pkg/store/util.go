package store

import (
	"maps"

	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/common"
)

func ChunkRange(total, chunkSize int, fn func(start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = total
	}
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}

func DedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// MergeMetadata returns a copy of base with every key of update written
// over it. Neither input is modified.
func MergeMetadata(base, update map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(update))
	maps.Copy(out, base)
	maps.Copy(out, update)
	return out
}

// StrengthenedEdge applies the encounter-edge rule to an existing edge:
// one step up, capped, metadata merged.
func StrengthenedEdge(existing common.Edge, update common.Edge) common.Edge {
	out := existing
	out.Strength = common.Clamp(existing.Strength+1, common.MinEdgeStrength, common.MaxEdgeStrength)
	out.Metadata = MergeMetadata(existing.Metadata, update.Metadata)
	out.UpdatedAt = update.UpdatedAt
	return out
}
