package models

import (
	"encoding/json"
	"time"
)

// EventType names a state-changing registry operation
type EventType string

const (
	EventRecordRegistered      EventType = "record.registered"
	EventReviewSubmitted       EventType = "review.submitted"
	EventReviewDecided         EventType = "review.decided"
	EventVulnerabilityReported EventType = "vulnerability.reported"
	EventAdvisoryRecorded      EventType = "advisory.recorded"
)

// RegistryEvent is one entry of the registry's event log. Sequence starts at 1
// and has no gaps. Hash covers every other field plus PrevHash, so the log
// forms a chain that can be verified end to end.
type RegistryEvent struct {
	Sequence   uint64          `db:"sequence" json:"sequence"`
	ID         string          `db:"id" json:"id"`
	Type       EventType       `db:"type" json:"type"`
	ModelID    uint64          `db:"model_id" json:"model_id"`
	Actor      string          `db:"actor" json:"actor"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	OccurredAt time.Time       `db:"occurred_at" json:"occurred_at"`
	PrevHash   string          `db:"prev_hash" json:"prev_hash"`
	Hash       string          `db:"hash" json:"hash"`
}

// RecordRegisteredPayload is the payload of EventRecordRegistered
type RecordRegisteredPayload struct {
	Owner string `json:"owner"`
	CID   string `json:"cid"`
}

// ReviewSubmittedPayload is the payload of EventReviewSubmitted
type ReviewSubmittedPayload struct {
	Index      uint64       `json:"index"`
	CID        string       `json:"cid"`
	FromStatus ReviewStatus `json:"from_status"`
}

// ReviewDecidedPayload is the payload of EventReviewDecided
type ReviewDecidedPayload struct {
	Index      uint64       `json:"index"`
	FromStatus ReviewStatus `json:"from_status"`
	ToStatus   ReviewStatus `json:"to_status"`
	Reason     string       `json:"reason"`
}

// VulnerabilityReportedPayload is the payload of EventVulnerabilityReported
type VulnerabilityReportedPayload struct {
	Index    uint64 `json:"index"`
	CID      string `json:"cid"`
	Severity string `json:"severity"`
	Active   bool   `json:"active"`
}

// AdvisoryRecordedPayload is the payload of EventAdvisoryRecorded
type AdvisoryRecordedPayload struct {
	Index  uint64 `json:"index"`
	CID    string `json:"cid"`
	Scope  string `json:"scope"`
	Action string `json:"action"`
}
