package matching

import (
	"context"
	"sort"
)

// collectInterestOverlaps scans every per-interest set sessionID belongs to
// and returns, for each other queued-or-not candidate session, the set of
// tags it shares with sessionID. TryOverlapMatch and TrySingleInterestMatch
// both need this same scan; they differ only in how they rank the result.
func (q *Queue) collectInterestOverlaps(ctx context.Context, sessionID string, interests []string) (map[string]map[string]bool, error) {
	shared := make(map[string]map[string]bool)

	for _, tag := range interests {
		members, err := q.GetInterestCandidates(ctx, tag)
		if err != nil {
			continue
		}
		for _, memberID := range members {
			if memberID == sessionID {
				continue
			}
			if shared[memberID] == nil {
				shared[memberID] = make(map[string]bool)
			}
			shared[memberID][tag] = true
		}
	}

	return shared, nil
}

// TryOverlapMatch attempts Tier 2 matching: scan per-interest sets and find
// the candidate with the highest number of overlapping interests. Returns nil
// if no overlap candidate is available.
func (q *Queue) TryOverlapMatch(ctx context.Context, sessionID string) (*MatchCandidate, error) {
	entry, err := q.GetEntry(ctx, sessionID)
	if err != nil || entry == nil {
		return nil, err
	}

	overlaps, err := q.collectInterestOverlaps(ctx, sessionID, entry.Interests)
	if err != nil || len(overlaps) == 0 {
		return nil, err
	}

	// Rank candidates by overlap count (descending).
	type scored struct {
		id    string
		count int
	}
	ranked := make([]scored, 0, len(overlaps))
	for id, tags := range overlaps {
		ranked = append(ranked, scored{id, len(tags)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].count > ranked[j].count
	})

	// Return the first valid candidate.
	for _, candidate := range ranked {
		queued, err := q.IsQueued(ctx, candidate.id)
		if err != nil || !queued {
			continue
		}

		shared := make([]string, 0, candidate.count)
		for tag := range overlaps[candidate.id] {
			shared = append(shared, tag)
		}
		sort.Strings(shared)

		return &MatchCandidate{
			SessionA:        sessionID,
			SessionB:        candidate.id,
			SharedInterests: shared,
		}, nil
	}

	return nil, nil
}
