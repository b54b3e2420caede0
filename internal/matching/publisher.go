package matching

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/haven-chat/signalroom/internal/messaging"
)

// MatchResult is the payload published via NATS when a match is found.
// Pairing is immediate (spec.md §4.2 step 2: both sessions become Paired
// under a single critical section) — there is no accept/decline handshake,
// so each matched user receives this once, as their Room assignment.
type MatchResult struct {
	RoomID          string   `json:"room_id"`
	PartnerID       string   `json:"partner_id"`
	SharedInterests []string `json:"shared_interests,omitempty"`
}

// PublishMatchFound publishes match results to both users via NATS.
func PublishMatchFound(nats *messaging.NATSClient, roomID string, candidate *MatchCandidate) error {
	msgA := MatchResult{
		RoomID:          roomID,
		PartnerID:       candidate.SessionB,
		SharedInterests: candidate.SharedInterests,
	}
	dataA, err := json.Marshal(msgA)
	if err != nil {
		return fmt.Errorf("matching: marshal result for A: %w", err)
	}
	if err := nats.Publish(messaging.SubjectMatchFound+"."+candidate.SessionA, dataA); err != nil {
		return fmt.Errorf("matching: publish match.found for %s: %w", candidate.SessionA, err)
	}

	msgB := MatchResult{
		RoomID:          roomID,
		PartnerID:       candidate.SessionA,
		SharedInterests: candidate.SharedInterests,
	}
	dataB, err := json.Marshal(msgB)
	if err != nil {
		return fmt.Errorf("matching: marshal result for B: %w", err)
	}
	if err := nats.Publish(messaging.SubjectMatchFound+"."+candidate.SessionB, dataB); err != nil {
		return fmt.Errorf("matching: publish match.found for %s: %w", candidate.SessionB, err)
	}

	log.Printf("[matcher] match published: room=%s a=%s b=%s shared=%v",
		roomID, candidate.SessionA, candidate.SessionB, candidate.SharedInterests)
	return nil
}
