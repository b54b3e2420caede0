package matching

import (
	"context"
)

// TryFIFOMatch attempts the mandatory Tier 4 fallback: pair with whichever
// other queued session has been waiting longest, regardless of interests.
// GetAllQueued is already ordered oldest-first (sorted-set score = join
// timestamp), so the first non-self entry is always the session that has
// been waiting longest — this is what guarantees the eventual strict-FIFO
// pairing invariant once the interest tiers give up. Returns nil if no other
// session is queued. The candidate this returns is provisional: ClaimPair is
// what actually removes both sessions, atomically, at commit time.
func (q *Queue) TryFIFOMatch(ctx context.Context, sessionID string) (*MatchCandidate, error) {
	allQueued, err := q.GetAllQueued(ctx)
	if err != nil {
		return nil, err
	}

	for _, candidateID := range allQueued {
		if candidateID == sessionID {
			continue
		}

		queued, err := q.IsQueued(ctx, candidateID)
		if err != nil || !queued {
			continue
		}

		return &MatchCandidate{
			SessionA:        sessionID,
			SessionB:        candidateID,
			SharedInterests: nil, // no shared interests (FIFO fallback pairing)
		}, nil
	}

	return nil, nil
}
