package models

import "time"

// Severity levels accepted for vulnerability reports
const (
	SeverityLow    = "LOW"
	SeverityMedium = "MEDIUM"
	SeverityHigh   = "HIGH"
)

// ValidSeverity reports whether s is one of the accepted severity levels.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// SubmissionEntry is one document submitted for review. Index is the entry's
// position in the model's submission ledger, starting at 0.
type SubmissionEntry struct {
	ModelID   uint64    `db:"model_id" json:"model_id"`
	Index     uint64    `db:"idx" json:"index"`
	CID       string    `db:"cid" json:"cid"`
	Submitter string    `db:"submitter" json:"submitter"`
	CreatedAt time.Time `db:"created_at" json:"timestamp"`
}

// VulnerabilityEntry is a post-approval security finding.
type VulnerabilityEntry struct {
	ModelID   uint64    `db:"model_id" json:"model_id"`
	Index     uint64    `db:"idx" json:"index"`
	CID       string    `db:"cid" json:"cid"`
	Severity  string    `db:"severity" json:"severity"`
	Active    bool      `db:"active" json:"active"`
	Reporter  string    `db:"reporter" json:"reporter"`
	CreatedAt time.Time `db:"created_at" json:"timestamp"`
}

// AdvisoryEntry is a post-approval recommendation.
type AdvisoryEntry struct {
	ModelID   uint64    `db:"model_id" json:"model_id"`
	Index     uint64    `db:"idx" json:"index"`
	CID       string    `db:"cid" json:"cid"`
	Scope     string    `db:"scope" json:"scope"`
	Action    string    `db:"action" json:"action"`
	Reporter  string    `db:"reporter" json:"reporter"`
	CreatedAt time.Time `db:"created_at" json:"timestamp"`
}

// ReviewDecision records one status change made through a review decision,
// including the status the record held before it.
type ReviewDecision struct {
	ModelID    uint64       `db:"model_id" json:"model_id"`
	Index      uint64       `db:"idx" json:"index"`
	FromStatus ReviewStatus `db:"from_status" json:"from_status"`
	ToStatus   ReviewStatus `db:"to_status" json:"to_status"`
	Reason     string       `db:"reason" json:"reason"`
	Decider    string       `db:"decider" json:"decider"`
	CreatedAt  time.Time    `db:"created_at" json:"timestamp"`
}
