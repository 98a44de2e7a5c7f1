package audit

import (
	"context"

	"lexsign/custodian/pkg/records"
	"lexsign/custodian/pkg/store"
)

// Verification failure reasons.
const (
	ReasonPrevHashMismatch = "prev_event_hash does not match the previous event"
	ReasonHashMismatch     = "event_hash does not match recomputed hash"
	ReasonAfterBreak       = "follows a broken event"
)

// EntryResult is the verification outcome of one event.
type EntryResult struct {
	EventID string `json:"eventId"`
	Intact  bool   `json:"intact"`
	Reason  string `json:"reason,omitempty"`
}

// VerifyResult is the outcome of verifying one chain.
type VerifyResult struct {
	SigningFileID string        `json:"signingFileId,omitempty"`
	Total         int           `json:"total"`
	Valid         bool          `json:"valid"`
	FirstBroken   string        `json:"firstBrokenEventId,omitempty"`
	Entries       []EntryResult `json:"entries"`
}

// Verify checks events given in chain order. Each event must link to the
// stored hash of its predecessor and its own hash must recompute. The first
// failure marks that event and every later event as broken.
func Verify(events []records.AuditEvent) VerifyResult {
	res := VerifyResult{
		Total:   len(events),
		Valid:   true,
		Entries: make([]EntryResult, len(events)),
	}

	prev := ""
	for i := range events {
		e := &events[i]
		entry := EntryResult{EventID: e.EventID, Intact: true}

		switch {
		case !res.Valid:
			entry.Intact = false
			entry.Reason = ReasonAfterBreak
		case e.PrevEventHash != prev:
			entry.Intact = false
			entry.Reason = ReasonPrevHashMismatch
		default:
			if h, err := ComputeHash(e); err != nil || h != e.EventHash {
				entry.Intact = false
				entry.Reason = ReasonHashMismatch
			}
		}

		if !entry.Intact && res.Valid {
			res.Valid = false
			res.FirstBroken = e.EventID
		}
		res.Entries[i] = entry
		prev = e.EventHash
	}
	return res
}

// VerifyDocument loads and verifies the chain of one signing file. An
// empty id verifies the system chain.
func VerifyDocument(ctx context.Context, q store.Querier, signingFileID string) (VerifyResult, error) {
	events, err := ListChain(ctx, q, signingFileID)
	if err != nil {
		return VerifyResult{}, err
	}
	res := Verify(events)
	res.SigningFileID = signingFileID
	return res, nil
}
