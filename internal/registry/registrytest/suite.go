package registrytest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibom-registry/aibom-registry/internal/db/models"
	"github.com/aibom-registry/aibom-registry/internal/events"
	"github.com/aibom-registry/aibom-registry/internal/registry"
)

// StoreFactory returns a fresh, empty store. Implementations register their
// own cleanup on t.
type StoreFactory func(t *testing.T) registry.Store

// Run exercises a store implementation through the registry API
func Run(t *testing.T, newStore StoreFactory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, f *Fixture)
	}{
		{"OwnerSubmission", testOwnerSubmission},
		{"ReviewDecision", testReviewDecision},
		{"VulnerabilityReporting", testVulnerabilityReporting},
		{"DenseModelIDs", testDenseModelIDs},
		{"SubmitUnknownModel", testSubmitUnknownModel},
		{"DecideAuthorization", testDecideAuthorization},
		{"DecideCheckOrder", testDecideCheckOrder},
		{"FindingPermissions", testFindingPermissions},
		{"SeverityValidation", testSeverityValidation},
		{"Advisories", testAdvisories},
		{"LatestSubmission", testLatestSubmission},
		{"ApprovedSubmissions", testApprovedSubmissions},
		{"ResubmitAfterRejection", testResubmitAfterRejection},
		{"DecisionHistory", testDecisionHistory},
		{"RejectedCallsLeaveNoTrace", testRejectedCallsLeaveNoTrace},
		{"EventsFollowCommitOrder", testEventsFollowCommitOrder},
		{"ReplayMatchesState", testReplayMatchesState},
		{"EventPaging", testEventPaging},
		{"UnknownModelQueries", testUnknownModelQueries},
		{"HugeIdentifiers", testHugeIdentifiers},
		{"OwnerListing", testOwnerListing},
		{"ConcurrentRegistration", testConcurrentRegistration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, NewFixture(t, newStore(t)))
		})
	}

	t.Run("StorageFailureRollsBack", func(t *testing.T) {
		testStorageFailureRollsBack(t, newStore(t))
	})
}

func requireKind(t *testing.T, err error, sentinel error, reason string) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, sentinel)
	rerr, ok := registry.AsError(err)
	require.True(t, ok, "expected *registry.Error, got %T", err)
	assert.Equal(t, reason, rerr.Reason)
}

func cids(entries []*models.SubmissionEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.CID
	}
	return out
}

// registerAndSubmit leaves model 0 owned by Developer in Submitted
func registerAndSubmit(t *testing.T, f *Fixture) *models.AIBOMRecord {
	t.Helper()
	ctx := context.Background()
	rec, err := f.Registry.Register(ctx, Developer, "QmX")
	require.NoError(t, err)
	_, err = f.Registry.SubmitForReview(ctx, Developer, rec.ModelID, "QmY")
	require.NoError(t, err)
	return rec
}

// ---------------------------------------------------------------------------
// Walkthrough scenarios
// ---------------------------------------------------------------------------

func testOwnerSubmission(t *testing.T, f *Fixture) {
	ctx := context.Background()
	reg := f.Registry

	rec, err := reg.Register(ctx, Developer, "QmX")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), rec.ModelID)
	assert.Equal(t, registry.NormalizeIdentity(Developer), rec.Owner)
	assert.Equal(t, models.StatusDraft, rec.Status)
	assert.Equal(t, "QmX", rec.CID)

	sub, err := reg.SubmitForReview(ctx, Developer, 0, "QmY")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), sub.Index)

	got, err := reg.GetRecord(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, got.Status)

	subs, err := reg.Submissions(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"QmY"}, cids(subs))

	_, err = reg.SubmitForReview(ctx, Attacker, 0, "QmZ")
	requireKind(t, err, registry.ErrAuthorization, registry.ReasonNotOwner)

	subs, err = reg.Submissions(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"QmY"}, cids(subs))

	// the principal holds no ownership of someone else's record
	_, err = reg.SubmitForReview(ctx, Principal, 0, "QmP")
	requireKind(t, err, registry.ErrAuthorization, registry.ReasonNotOwner)
}

func testReviewDecision(t *testing.T, f *Fixture) {
	ctx := context.Background()
	reg := f.Registry
	registerAndSubmit(t, f)

	rec, err := reg.Decide(ctx, Principal, 0, models.StatusInReview, "start")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInReview, rec.Status)
	assert.Equal(t, "start", rec.ReviewReason)

	_, err = reg.Decide(ctx, Principal, 0, models.StatusDraft, "bad")
	requireKind(t, err, registry.ErrInvalidTransition, registry.ReasonInvalidStatus)

	_, err = reg.Decide(ctx, Principal, 0, models.StatusSubmitted, "bad")
	requireKind(t, err, registry.ErrInvalidTransition, registry.ReasonInvalidStatus)

	got, err := reg.GetRecord(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInReview, got.Status)
	assert.Equal(t, "start", got.ReviewReason)
}

func testVulnerabilityReporting(t *testing.T, f *Fixture) {
	ctx := context.Background()
	reg := f.Registry
	registerAndSubmit(t, f)

	_, err := reg.ReportVulnerability(ctx, Principal, 0, "QmVuln", "HIGH")
	require.NoError(t, err)

	v, err := reg.Vulnerability(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "QmVuln", v.CID)
	assert.Equal(t, models.SeverityHigh, v.Severity)
	assert.True(t, v.Active)

	_, err = reg.ReportVulnerability(ctx, Developer, 0, "QmVuln2", "HIGH")
	requireKind(t, err, registry.ErrAuthorization, registry.ReasonNotPrincipal)

	vulns, err := reg.Vulnerabilities(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, vulns, 1)
}

// ---------------------------------------------------------------------------
// State machine and authorization
// ---------------------------------------------------------------------------

func testDenseModelIDs(t *testing.T, f *Fixture) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		rec, err := f.Registry.Register(ctx, Developer, fmt.Sprintf("Qm%d", i))
		require.NoError(t, err)
		assert.Equal(t, uint64(i), rec.ModelID)
	}
	// registration is open to anyone, including an empty identifier
	rec, err := f.Registry.Register(ctx, Attacker, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), rec.ModelID)

	all, err := f.Registry.ListAllRecords(ctx)
	require.NoError(t, err)
	require.Len(t, all, 6)
	for i, r := range all {
		assert.Equal(t, uint64(i), r.ModelID)
	}
}

func testSubmitUnknownModel(t *testing.T, f *Fixture) {
	_, err := f.Registry.SubmitForReview(context.Background(), Developer, 42, "QmY")
	requireKind(t, err, registry.ErrAuthorization, registry.ReasonNotOwner)
}

func testDecideAuthorization(t *testing.T, f *Fixture) {
	ctx := context.Background()
	reg := f.Registry
	registerAndSubmit(t, f)

	_, err := reg.Decide(ctx, Developer, 0, models.StatusApproved, "self")
	requireKind(t, err, registry.ErrAuthorization, registry.ReasonNotPrincipal)

	_, err = reg.Decide(ctx, Supervisor, 0, models.StatusApproved, "nope")
	requireKind(t, err, registry.ErrAuthorization, registry.ReasonNotPrincipal)

	rec, err := reg.Decide(ctx, Regulator, 0, models.StatusApproved, "ok")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, rec.Status)

	_, err = reg.Decide(ctx, Principal, 99, models.StatusApproved, "ghost")
	requireKind(t, err, registry.ErrNotFound, registry.ReasonModelNotFound)
}

func testDecideCheckOrder(t *testing.T, f *Fixture) {
	ctx := context.Background()

	// the target status is checked before the caller
	_, err := f.Registry.Decide(ctx, Attacker, 0, models.StatusDraft, "x")
	requireKind(t, err, registry.ErrInvalidTransition, registry.ReasonInvalidStatus)

	_, err = f.Registry.Decide(ctx, Attacker, 0, models.ReviewStatus(9), "x")
	requireKind(t, err, registry.ErrInvalidTransition, registry.ReasonInvalidStatus)

	// and the caller before the record
	_, err = f.Registry.Decide(ctx, Attacker, 0, models.StatusApproved, "x")
	requireKind(t, err, registry.ErrAuthorization, registry.ReasonNotPrincipal)
}

func testFindingPermissions(t *testing.T, f *Fixture) {
	ctx := context.Background()
	reg := f.Registry
	registerAndSubmit(t, f)

	_, err := reg.ReportVulnerability(ctx, Supervisor, 0, "QmV", "low")
	require.NoError(t, err)
	_, err = reg.RecordAdvisory(ctx, Supervisor, 0, "QmA", "deployment", "restrict")
	require.NoError(t, err)

	_, err = reg.ReportVulnerability(ctx, Regulator, 0, "QmV", "LOW")
	requireKind(t, err, registry.ErrAuthorization, registry.ReasonNotPrincipal)
	_, err = reg.RecordAdvisory(ctx, Regulator, 0, "QmA", "s", "a")
	requireKind(t, err, registry.ErrAuthorization, registry.ReasonNotPrincipal)
	_, err = reg.RecordAdvisory(ctx, Developer, 0, "QmA", "s", "a")
	requireKind(t, err, registry.ErrAuthorization, registry.ReasonNotPrincipal)

	_, err = reg.ReportVulnerability(ctx, Principal, 7, "QmV", "LOW")
	requireKind(t, err, registry.ErrNotFound, registry.ReasonModelNotFound)
	_, err = reg.RecordAdvisory(ctx, Principal, 7, "QmA", "s", "a")
	requireKind(t, err, registry.ErrNotFound, registry.ReasonModelNotFound)
}

func testSeverityValidation(t *testing.T, f *Fixture) {
	ctx := context.Background()
	reg := f.Registry
	registerAndSubmit(t, f)

	v, err := reg.ReportVulnerability(ctx, Principal, 0, "QmV", " medium ")
	require.NoError(t, err)
	assert.Equal(t, models.SeverityMedium, v.Severity)

	_, err = reg.ReportVulnerability(ctx, Principal, 0, "QmV", "SEVERE")
	requireKind(t, err, registry.ErrInvalidArgument, registry.ReasonInvalidSeverity)

	// authorization is checked before the argument
	_, err = reg.ReportVulnerability(ctx, Attacker, 0, "QmV", "SEVERE")
	requireKind(t, err, registry.ErrAuthorization, registry.ReasonNotPrincipal)
}

func testAdvisories(t *testing.T, f *Fixture) {
	ctx := context.Background()
	reg := f.Registry
	registerAndSubmit(t, f)

	a, err := reg.RecordAdvisory(ctx, Principal, 0, "QmAdv", "eu-market", "withdraw")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), a.Index)

	got, err := reg.Advisory(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "QmAdv", got.CID)
	assert.Equal(t, "eu-market", got.Scope)
	assert.Equal(t, "withdraw", got.Action)
	assert.Equal(t, registry.NormalizeIdentity(Principal), got.Reporter)

	_, err = reg.Advisory(ctx, 0, 1)
	requireKind(t, err, registry.ErrNotFound, registry.ReasonIndexOutOfRange)
	_, err = reg.Vulnerability(ctx, 0, 0)
	requireKind(t, err, registry.ErrNotFound, registry.ReasonIndexOutOfRange)

	list, err := reg.Advisories(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, *got, *list[0])
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

func testLatestSubmission(t *testing.T, f *Fixture) {
	ctx := context.Background()
	reg := f.Registry

	_, err := reg.Register(ctx, Developer, "QmOrig")
	require.NoError(t, err)

	latest, err := reg.LatestSubmission(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "QmOrig", latest)

	_, err = reg.SubmitForReview(ctx, Developer, 0, "QmA")
	require.NoError(t, err)
	_, err = reg.SubmitForReview(ctx, Developer, 0, "QmB")
	require.NoError(t, err)

	latest, err = reg.LatestSubmission(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "QmB", latest)

	_, err = reg.LatestSubmission(ctx, 5)
	requireKind(t, err, registry.ErrNotFound, registry.ReasonModelNotFound)
}

func testApprovedSubmissions(t *testing.T, f *Fixture) {
	ctx := context.Background()
	reg := f.Registry
	registerAndSubmit(t, f)

	approved, err := reg.ApprovedSubmissions(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, approved)

	_, err = reg.Decide(ctx, Principal, 0, models.StatusApproved, "ok")
	require.NoError(t, err)
	approved, err = reg.ApprovedSubmissions(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"QmY"}, cids(approved))

	_, err = reg.Decide(ctx, Principal, 0, models.StatusRejected, "revoked")
	require.NoError(t, err)
	approved, err = reg.ApprovedSubmissions(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, approved)
}

func testResubmitAfterRejection(t *testing.T, f *Fixture) {
	ctx := context.Background()
	reg := f.Registry
	registerAndSubmit(t, f)

	_, err := reg.Decide(ctx, Principal, 0, models.StatusRejected, "missing data card")
	require.NoError(t, err)

	sub, err := reg.SubmitForReview(ctx, Developer, 0, "QmY2")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), sub.Index)

	rec, err := reg.GetRecord(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, rec.Status)
	// the last decision's reason is retained until the next decision
	assert.Equal(t, "missing data card", rec.ReviewReason)
}

func testDecisionHistory(t *testing.T, f *Fixture) {
	ctx := context.Background()
	reg := f.Registry
	registerAndSubmit(t, f)

	_, err := reg.Decide(ctx, Regulator, 0, models.StatusInReview, "start")
	require.NoError(t, err)
	_, err = reg.Decide(ctx, Principal, 0, models.StatusApproved, "done")
	require.NoError(t, err)

	decs, err := reg.Decisions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, decs, 2)
	assert.Equal(t, models.StatusSubmitted, decs[0].FromStatus)
	assert.Equal(t, models.StatusInReview, decs[0].ToStatus)
	assert.Equal(t, registry.NormalizeIdentity(Regulator), decs[0].Decider)
	assert.Equal(t, models.StatusInReview, decs[1].FromStatus)
	assert.Equal(t, models.StatusApproved, decs[1].ToStatus)
	assert.Equal(t, uint64(1), decs[1].Index)

	rec, err := reg.GetRecord(ctx, 0)
	require.NoError(t, err)
	assert.True(t, decs[1].CreatedAt.Equal(rec.Timestamp))
}

func testUnknownModelQueries(t *testing.T, f *Fixture) {
	ctx := context.Background()
	reg := f.Registry

	subs, err := reg.Submissions(ctx, 3)
	require.NoError(t, err)
	assert.NotNil(t, subs)
	assert.Empty(t, subs)

	vulns, err := reg.Vulnerabilities(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, vulns)

	advs, err := reg.Advisories(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, advs)

	approved, err := reg.ApprovedSubmissions(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, approved)

	_, err = reg.GetRecord(ctx, 3)
	requireKind(t, err, registry.ErrNotFound, registry.ReasonModelNotFound)

	owned, err := reg.IsRecordOwner(ctx, Developer, 3)
	require.NoError(t, err)
	assert.False(t, owned)
}

// Identifiers beyond the signed 64-bit range address nothing on any store
func testHugeIdentifiers(t *testing.T, f *Fixture) {
	ctx := context.Background()
	reg := f.Registry
	rec := registerAndSubmit(t, f)
	_, err := reg.ReportVulnerability(ctx, Principal, rec.ModelID, "QmVuln", "HIGH")
	require.NoError(t, err)
	_, err = reg.RecordAdvisory(ctx, Principal, rec.ModelID, "QmAdv", "runtime", "patch")
	require.NoError(t, err)

	for _, id := range []uint64{math.MaxInt64 + 1, math.MaxUint64} {
		_, err = reg.Vulnerability(ctx, rec.ModelID, id)
		requireKind(t, err, registry.ErrNotFound, registry.ReasonIndexOutOfRange)
		_, err = reg.Advisory(ctx, rec.ModelID, id)
		requireKind(t, err, registry.ErrNotFound, registry.ReasonIndexOutOfRange)
		_, err = reg.Vulnerability(ctx, id, 0)
		requireKind(t, err, registry.ErrNotFound, registry.ReasonIndexOutOfRange)

		_, err = reg.GetRecord(ctx, id)
		requireKind(t, err, registry.ErrNotFound, registry.ReasonModelNotFound)
		_, err = reg.LatestSubmission(ctx, id)
		requireKind(t, err, registry.ErrNotFound, registry.ReasonModelNotFound)

		subs, err := reg.Submissions(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, subs)
		decisions, err := reg.Decisions(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, decisions)

		_, err = reg.SubmitForReview(ctx, Developer, id, "QmY")
		requireKind(t, err, registry.ErrAuthorization, registry.ReasonNotOwner)
		_, err = reg.Decide(ctx, Principal, id, models.StatusApproved, "ok")
		requireKind(t, err, registry.ErrNotFound, registry.ReasonModelNotFound)
		_, err = reg.ReportVulnerability(ctx, Principal, id, "QmV", "LOW")
		requireKind(t, err, registry.ErrNotFound, registry.ReasonModelNotFound)
	}
}

func testOwnerListing(t *testing.T, f *Fixture) {
	ctx := context.Background()
	reg := f.Registry

	for _, owner := range []string{Developer, Attacker, Developer} {
		_, err := reg.Register(ctx, owner, "Qm")
		require.NoError(t, err)
	}

	mine, err := reg.ListRecordsByOwner(ctx, Developer)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, uint64(0), mine[0].ModelID)
	assert.Equal(t, uint64(2), mine[1].ModelID)

	none, err := reg.ListRecordsByOwner(ctx, Principal)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	owned, err := reg.IsRecordOwner(ctx, Attacker, 1)
	require.NoError(t, err)
	assert.True(t, owned)
}

// ---------------------------------------------------------------------------
// Atomicity and events
// ---------------------------------------------------------------------------

func testRejectedCallsLeaveNoTrace(t *testing.T, f *Fixture) {
	ctx := context.Background()
	reg := f.Registry
	registerAndSubmit(t, f)

	before, err := reg.Snapshot(ctx)
	require.NoError(t, err)
	f.Drain()

	_, err = reg.SubmitForReview(ctx, Attacker, 0, "QmZ")
	require.Error(t, err)
	_, err = reg.Decide(ctx, Principal, 0, models.StatusDraft, "bad")
	require.Error(t, err)
	_, err = reg.Decide(ctx, Developer, 0, models.StatusApproved, "self")
	require.Error(t, err)
	_, err = reg.ReportVulnerability(ctx, Developer, 0, "QmV", "HIGH")
	require.Error(t, err)
	_, err = reg.ReportVulnerability(ctx, Principal, 0, "QmV", "EXTREME")
	require.Error(t, err)
	_, err = reg.RecordAdvisory(ctx, Attacker, 0, "QmA", "s", "a")
	require.Error(t, err)

	after, err := reg.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, f.Drain())
}

func testEventsFollowCommitOrder(t *testing.T, f *Fixture) {
	ctx := context.Background()
	reg := f.Registry

	registerAndSubmit(t, f)
	_, err := reg.Decide(ctx, Principal, 0, models.StatusApproved, "ok")
	require.NoError(t, err)
	_, err = reg.ReportVulnerability(ctx, Principal, 0, "QmV", "MEDIUM")
	require.NoError(t, err)
	_, err = reg.RecordAdvisory(ctx, Principal, 0, "QmA", "all", "monitor")
	require.NoError(t, err)

	delivered := f.Drain()
	wantTypes := []models.EventType{
		models.EventRecordRegistered,
		models.EventReviewSubmitted,
		models.EventReviewDecided,
		models.EventVulnerabilityReported,
		models.EventAdvisoryRecorded,
	}
	require.Len(t, delivered, len(wantTypes))
	for i, ev := range delivered {
		assert.Equal(t, wantTypes[i], ev.Type)
		assert.Equal(t, uint64(i+1), ev.Sequence)
		assert.Equal(t, uint64(0), ev.ModelID)
	}
	require.NoError(t, events.Verify(delivered, nil))

	stored, err := reg.Events(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, stored, len(delivered))
	for i := range stored {
		assert.Equal(t, delivered[i].Hash, stored[i].Hash)
		assert.JSONEq(t, string(delivered[i].Payload), string(stored[i].Payload))
	}

	n, err := reg.VerifyEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(wantTypes), n)

	head, err := reg.EventHead(ctx)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, delivered[len(delivered)-1].Hash, head.Hash)

	// the record timestamp equals the time of the event that last changed it
	rec, err := reg.GetRecord(ctx, 0)
	require.NoError(t, err)
	assert.True(t, rec.Timestamp.Equal(delivered[2].OccurredAt))
}

func testReplayMatchesState(t *testing.T, f *Fixture) {
	ctx := context.Background()
	reg := f.Registry

	registerAndSubmit(t, f)
	_, err := reg.Register(ctx, Attacker, "QmOther")
	require.NoError(t, err)
	_, err = reg.Decide(ctx, Regulator, 0, models.StatusRejected, "incomplete")
	require.NoError(t, err)
	_, err = reg.SubmitForReview(ctx, Developer, 0, "QmY2")
	require.NoError(t, err)
	_, err = reg.Decide(ctx, Principal, 0, models.StatusApproved, "fixed")
	require.NoError(t, err)
	_, err = reg.ReportVulnerability(ctx, Supervisor, 0, "QmV", "HIGH")
	require.NoError(t, err)
	_, err = reg.RecordAdvisory(ctx, Supervisor, 0, "QmA", "eu", "patch")
	require.NoError(t, err)
	_, err = reg.SubmitForReview(ctx, Attacker, 1, "QmO2")
	require.NoError(t, err)

	evs, err := reg.Events(ctx, 0, 0)
	require.NoError(t, err)
	vals := make([]models.RegistryEvent, len(evs))
	for i, ev := range evs {
		vals[i] = *ev
	}

	replayed, err := events.Replay(vals)
	require.NoError(t, err)
	live, err := reg.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, live, replayed)
}

func testEventPaging(t *testing.T, f *Fixture) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := f.Registry.Register(ctx, Developer, fmt.Sprintf("Qm%d", i))
		require.NoError(t, err)
	}

	page, err := f.Registry.Events(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(3), page[0].Sequence)
	assert.Equal(t, uint64(4), page[1].Sequence)

	tail, err := f.Registry.Events(ctx, 4, 10)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, uint64(5), tail[0].Sequence)

	empty, err := f.Registry.Events(ctx, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, after := range []uint64{math.MaxInt64 + 1, math.MaxUint64} {
		page, err := f.Registry.Events(ctx, after, 10)
		require.NoError(t, err)
		assert.Empty(t, page, "after=%d", after)
	}
}

func testConcurrentRegistration(t *testing.T, f *Fixture) {
	ctx := context.Background()
	const n = 40

	var wg sync.WaitGroup
	ids := make(chan uint64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := f.Registry.Register(ctx, Developer, fmt.Sprintf("Qm%d", i))
			if assert.NoError(t, err) {
				ids <- rec.ModelID
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool)
	for id := range ids {
		assert.False(t, seen[id], "model id %d assigned twice", id)
		seen[id] = true
	}
	for i := uint64(0); i < n; i++ {
		assert.True(t, seen[i], "model id %d never assigned", i)
	}

	delivered := f.Drain()
	require.Len(t, delivered, n)
	require.NoError(t, events.Verify(delivered, nil))
}

// failingStore fails every AppendEvent after the domain writes of a
// mutation have already been applied inside the transaction.
type failingStore struct {
	registry.Store
}

var errInjected = errors.New("injected storage failure")

func (s failingStore) Update(ctx context.Context, fn func(tx registry.Tx) error) error {
	return s.Store.Update(ctx, func(tx registry.Tx) error {
		return fn(failingTx{tx})
	})
}

type failingTx struct {
	registry.Tx
}

func (failingTx) AppendEvent(context.Context, *models.RegistryEvent) error {
	return errInjected
}

func testStorageFailureRollsBack(t *testing.T, store registry.Store) {
	ctx := context.Background()

	good := NewFixture(t, store)
	registerAndSubmit(t, good)
	before, err := good.Registry.Snapshot(ctx)
	require.NoError(t, err)

	bad := NewFixture(t, failingStore{store})
	_, err = bad.Registry.Register(ctx, Developer, "QmLost")
	require.ErrorIs(t, err, errInjected)
	_, err = bad.Registry.SubmitForReview(ctx, Developer, 0, "QmLost")
	require.ErrorIs(t, err, errInjected)
	_, err = bad.Registry.Decide(ctx, Principal, 0, models.StatusApproved, "lost")
	require.ErrorIs(t, err, errInjected)
	_, err = bad.Registry.ReportVulnerability(ctx, Principal, 0, "QmLost", "LOW")
	require.ErrorIs(t, err, errInjected)
	_, err = bad.Registry.RecordAdvisory(ctx, Principal, 0, "QmLost", "s", "a")
	require.ErrorIs(t, err, errInjected)

	after, err := good.Registry.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, bad.Drain())

	// the store keeps working after the failures
	rec, err := good.Registry.Register(ctx, Developer, "QmNext")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.ModelID)
}
