package events

import (
	"encoding/json"
	"fmt"

	"github.com/aibom-registry/aibom-registry/internal/db/models"
)

// State is registry state rebuilt from the event log. Every field can be
// compared with the registry's own query results.
type State struct {
	Records         []models.AIBOMRecord                   `json:"records"`
	Submissions     map[uint64][]models.SubmissionEntry    `json:"submissions"`
	Vulnerabilities map[uint64][]models.VulnerabilityEntry `json:"vulnerabilities"`
	Advisories      map[uint64][]models.AdvisoryEntry      `json:"advisories"`
	Decisions       map[uint64][]models.ReviewDecision     `json:"decisions"`
	LastSequence    uint64                                 `json:"last_sequence"`
	HeadHash        string                                 `json:"head_hash"`
}

// NewState returns an empty state
func NewState() *State {
	return &State{
		Records:         []models.AIBOMRecord{},
		Submissions:     make(map[uint64][]models.SubmissionEntry),
		Vulnerabilities: make(map[uint64][]models.VulnerabilityEntry),
		Advisories:      make(map[uint64][]models.AdvisoryEntry),
		Decisions:       make(map[uint64][]models.ReviewDecision),
	}
}

// Replay verifies the chain of evs from the start of the log and applies
// every event to an empty state.
func Replay(evs []models.RegistryEvent) (*State, error) {
	if err := Verify(evs, nil); err != nil {
		return nil, err
	}
	s := NewState()
	for _, ev := range evs {
		if err := s.Apply(ev); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Apply folds one event into the state. Events must arrive in sequence order.
func (s *State) Apply(ev models.RegistryEvent) error {
	if ev.Sequence != s.LastSequence+1 {
		return fmt.Errorf("%w: expected %d, got %d", ErrSequenceGap, s.LastSequence+1, ev.Sequence)
	}

	switch ev.Type {
	case models.EventRecordRegistered:
		var p models.RecordRegisteredPayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		if ev.ModelID != uint64(len(s.Records)) {
			return fmt.Errorf("event %d registers model %d, expected %d", ev.Sequence, ev.ModelID, len(s.Records))
		}
		s.Records = append(s.Records, models.AIBOMRecord{
			ModelID:   ev.ModelID,
			Owner:     p.Owner,
			CID:       p.CID,
			Status:    models.StatusDraft,
			Timestamp: ev.OccurredAt,
			CreatedAt: ev.OccurredAt,
		})

	case models.EventReviewSubmitted:
		var p models.ReviewSubmittedPayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		rec, err := s.record(ev)
		if err != nil {
			return err
		}
		if err := checkIndex(ev, p.Index, len(s.Submissions[ev.ModelID])); err != nil {
			return err
		}
		s.Submissions[ev.ModelID] = append(s.Submissions[ev.ModelID], models.SubmissionEntry{
			ModelID:   ev.ModelID,
			Index:     p.Index,
			CID:       p.CID,
			Submitter: ev.Actor,
			CreatedAt: ev.OccurredAt,
		})
		rec.Status = models.StatusSubmitted
		rec.Timestamp = ev.OccurredAt

	case models.EventReviewDecided:
		var p models.ReviewDecidedPayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		rec, err := s.record(ev)
		if err != nil {
			return err
		}
		if err := checkIndex(ev, p.Index, len(s.Decisions[ev.ModelID])); err != nil {
			return err
		}
		s.Decisions[ev.ModelID] = append(s.Decisions[ev.ModelID], models.ReviewDecision{
			ModelID:    ev.ModelID,
			Index:      p.Index,
			FromStatus: p.FromStatus,
			ToStatus:   p.ToStatus,
			Reason:     p.Reason,
			Decider:    ev.Actor,
			CreatedAt:  ev.OccurredAt,
		})
		rec.Status = p.ToStatus
		rec.ReviewReason = p.Reason
		rec.Timestamp = ev.OccurredAt

	case models.EventVulnerabilityReported:
		var p models.VulnerabilityReportedPayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		if _, err := s.record(ev); err != nil {
			return err
		}
		if err := checkIndex(ev, p.Index, len(s.Vulnerabilities[ev.ModelID])); err != nil {
			return err
		}
		s.Vulnerabilities[ev.ModelID] = append(s.Vulnerabilities[ev.ModelID], models.VulnerabilityEntry{
			ModelID:   ev.ModelID,
			Index:     p.Index,
			CID:       p.CID,
			Severity:  p.Severity,
			Active:    p.Active,
			Reporter:  ev.Actor,
			CreatedAt: ev.OccurredAt,
		})

	case models.EventAdvisoryRecorded:
		var p models.AdvisoryRecordedPayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		if _, err := s.record(ev); err != nil {
			return err
		}
		if err := checkIndex(ev, p.Index, len(s.Advisories[ev.ModelID])); err != nil {
			return err
		}
		s.Advisories[ev.ModelID] = append(s.Advisories[ev.ModelID], models.AdvisoryEntry{
			ModelID:   ev.ModelID,
			Index:     p.Index,
			CID:       p.CID,
			Scope:     p.Scope,
			Action:    p.Action,
			Reporter:  ev.Actor,
			CreatedAt: ev.OccurredAt,
		})

	default:
		return fmt.Errorf("event %d has unknown type %q", ev.Sequence, ev.Type)
	}

	s.LastSequence = ev.Sequence
	s.HeadHash = ev.Hash
	return nil
}

func (s *State) record(ev models.RegistryEvent) (*models.AIBOMRecord, error) {
	if ev.ModelID >= uint64(len(s.Records)) {
		return nil, fmt.Errorf("event %d references unknown model %d", ev.Sequence, ev.ModelID)
	}
	return &s.Records[ev.ModelID], nil
}

func checkIndex(ev models.RegistryEvent, got uint64, have int) error {
	if got != uint64(have) {
		return fmt.Errorf("event %d appends index %d, expected %d", ev.Sequence, got, have)
	}
	return nil
}

func decode(ev models.RegistryEvent, into any) error {
	if err := json.Unmarshal(ev.Payload, into); err != nil {
		return fmt.Errorf("event %d: invalid %s payload: %w", ev.Sequence, ev.Type, err)
	}
	return nil
}
