package models

import (
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// ReviewStatus
// ---------------------------------------------------------------------------

func TestReviewStatus_String(t *testing.T) {
	cases := map[ReviewStatus]string{
		StatusDraft:     "Draft",
		StatusSubmitted: "Submitted",
		StatusInReview:  "InReview",
		StatusApproved:  "Approved",
		StatusRejected:  "Rejected",
		ReviewStatus(9): "ReviewStatus(9)",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("ReviewStatus(%d).String() = %q, want %q", uint8(s), got, want)
		}
	}
}

func TestReviewStatus_NumericValuesAreStable(t *testing.T) {
	if StatusDraft != 0 || StatusSubmitted != 1 || StatusInReview != 2 || StatusApproved != 3 || StatusRejected != 4 {
		t.Fatal("status numbering changed")
	}
}

func TestReviewStatus_IsDecision(t *testing.T) {
	for _, s := range []ReviewStatus{StatusInReview, StatusApproved, StatusRejected} {
		if !s.IsDecision() {
			t.Errorf("%s should be a decision target", s)
		}
	}
	for _, s := range []ReviewStatus{StatusDraft, StatusSubmitted, ReviewStatus(7)} {
		if s.IsDecision() {
			t.Errorf("%s should not be a decision target", s)
		}
	}
}

func TestParseReviewStatus(t *testing.T) {
	cases := map[string]ReviewStatus{
		"0":         StatusDraft,
		"2":         StatusInReview,
		"InReview":  StatusInReview,
		"in_review": StatusInReview,
		"APPROVED":  StatusApproved,
		" rejected": StatusRejected,
	}
	for in, want := range cases {
		got, err := ParseReviewStatus(in)
		if err != nil {
			t.Errorf("ParseReviewStatus(%q) error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseReviewStatus(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestParseReviewStatus_Unknown(t *testing.T) {
	if _, err := ParseReviewStatus("published"); err == nil {
		t.Error("expected error for unknown status name")
	}
}

func TestParseReviewStatus_OutOfRangeNumberIsNotValid(t *testing.T) {
	s, err := ParseReviewStatus("9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Valid() {
		t.Error("status 9 should not be valid")
	}
}

// ---------------------------------------------------------------------------
// Severity / APIKey
// ---------------------------------------------------------------------------

func TestValidSeverity(t *testing.T) {
	for _, s := range []string{"LOW", "MEDIUM", "HIGH"} {
		if !ValidSeverity(s) {
			t.Errorf("%s should be valid", s)
		}
	}
	for _, s := range []string{"", "low", "CRITICAL"} {
		if ValidSeverity(s) {
			t.Errorf("%q should not be valid", s)
		}
	}
}

func TestAPIKey_IsExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	if (&APIKey{}).IsExpired(now) {
		t.Error("key without expiry should not be expired")
	}
	if !(&APIKey{ExpiresAt: &past}).IsExpired(now) {
		t.Error("key with past expiry should be expired")
	}
	if (&APIKey{ExpiresAt: &future}).IsExpired(now) {
		t.Error("key with future expiry should not be expired")
	}
}
