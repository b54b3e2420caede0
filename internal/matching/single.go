package matching

import (
	"context"
	"sort"
)

// TrySingleInterestMatch attempts Tier 3 matching: find ANY queued user who
// shares at least one interest. Unlike Tier 2 (which picks the best overlap),
// this accepts the first candidate with any overlap >= 1. Returns nil if no
// candidate is available.
func (q *Queue) TrySingleInterestMatch(ctx context.Context, sessionID string) (*MatchCandidate, error) {
	entry, err := q.GetEntry(ctx, sessionID)
	if err != nil || entry == nil {
		return nil, err
	}

	overlaps, err := q.collectInterestOverlaps(ctx, sessionID, entry.Interests)
	if err != nil {
		return nil, err
	}

	// Return the first valid candidate (any overlap >= 1).
	for candidateID, tags := range overlaps {
		queued, err := q.IsQueued(ctx, candidateID)
		if err != nil || !queued {
			continue
		}

		shared := make([]string, 0, len(tags))
		for tag := range tags {
			shared = append(shared, tag)
		}
		sort.Strings(shared)

		return &MatchCandidate{
			SessionA:        sessionID,
			SessionB:        candidateID,
			SharedInterests: shared,
		}, nil
	}

	return nil, nil
}
