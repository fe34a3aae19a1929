// Package models defines the data types shared by the registry core, its stores and the HTTP layer.
// Each persisted type carries db tags for sqlx row scanning and json tags for the API and the
// badger encoding. Models are plain data; rules live in internal/registry.
package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ReviewStatus is the position of a record in the review workflow.
// The numeric values are part of the public API and must not be reordered.
type ReviewStatus uint8

const (
	StatusDraft ReviewStatus = iota
	StatusSubmitted
	StatusInReview
	StatusApproved
	StatusRejected
)

var statusNames = [...]string{"Draft", "Submitted", "InReview", "Approved", "Rejected"}

// String returns the display name of the status
func (s ReviewStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("ReviewStatus(%d)", uint8(s))
}

// Valid reports whether s is one of the five known statuses
func (s ReviewStatus) Valid() bool {
	return int(s) < len(statusNames)
}

// IsDecision reports whether s may be the target of a review decision
func (s ReviewStatus) IsDecision() bool {
	return s == StatusInReview || s == StatusApproved || s == StatusRejected
}

// ParseReviewStatus accepts either the numeric value ("2") or a name
// ("InReview", "in_review", "IN_REVIEW").
func ParseReviewStatus(v string) (ReviewStatus, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.ParseUint(v, 10, 8); err == nil {
		return ReviewStatus(n), nil
	}
	key := strings.ToLower(strings.ReplaceAll(v, "_", ""))
	for i, name := range statusNames {
		if strings.ToLower(name) == key {
			return ReviewStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown review status %q", v)
}

// AIBOMRecord is the workflow state of one registered model document.
// Owner and CID are fixed at registration; Status, ReviewReason and Timestamp
// change only through submissions and decisions.
type AIBOMRecord struct {
	ModelID      uint64       `db:"model_id" json:"model_id"`
	Owner        string       `db:"owner" json:"owner"`
	CID          string       `db:"cid" json:"cid"`
	Status       ReviewStatus `db:"status" json:"status"`
	ReviewReason string       `db:"review_reason" json:"review_reason"`
	Timestamp    time.Time    `db:"status_changed_at" json:"timestamp"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
}
