package registry

import (
	"context"
	"fmt"

	"github.com/aibom-registry/aibom-registry/internal/db/models"
	"github.com/aibom-registry/aibom-registry/internal/events"
)

// Queries run in a read-only store view and never mutate state. List queries
// for an unknown model return an empty slice; point lookups return a
// not-found error.

// GetRecord returns the record for modelID
func (r *Registry) GetRecord(ctx context.Context, modelID uint64) (*models.AIBOMRecord, error) {
	var rec *models.AIBOMRecord
	err := r.store.View(ctx, func(tx Tx) error {
		var err error
		rec, err = tx.GetRecord(ctx, modelID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get record %d: %w", modelID, err)
	}
	if rec == nil {
		return nil, newError(KindNotFound, ReasonModelNotFound)
	}
	return rec, nil
}

// IsRecordOwner reports whether caller owns modelID. An unknown model is
// owned by nobody.
func (r *Registry) IsRecordOwner(ctx context.Context, caller string, modelID uint64) (bool, error) {
	var rec *models.AIBOMRecord
	err := r.store.View(ctx, func(tx Tx) error {
		var err error
		rec, err = tx.GetRecord(ctx, modelID)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to get record %d: %w", modelID, err)
	}
	return r.resolver.IsRecordOwner(caller, rec), nil
}

// ListAllRecords returns every record in model id order
func (r *Registry) ListAllRecords(ctx context.Context) ([]*models.AIBOMRecord, error) {
	var recs []*models.AIBOMRecord
	err := r.store.View(ctx, func(tx Tx) error {
		var err error
		recs, err = tx.ListRecords(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return nonNil(recs), nil
}

// ListRecordsByOwner returns the records registered by owner
func (r *Registry) ListRecordsByOwner(ctx context.Context, owner string) ([]*models.AIBOMRecord, error) {
	owner = NormalizeIdentity(owner)
	var recs []*models.AIBOMRecord
	err := r.store.View(ctx, func(tx Tx) error {
		var err error
		recs, err = tx.ListRecordsByOwner(ctx, owner)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list records for %s: %w", owner, err)
	}
	return nonNil(recs), nil
}

// Submissions returns the full submission ledger of modelID
func (r *Registry) Submissions(ctx context.Context, modelID uint64) ([]*models.SubmissionEntry, error) {
	var out []*models.SubmissionEntry
	err := r.store.View(ctx, func(tx Tx) error {
		var err error
		out, err = tx.ListSubmissions(ctx, modelID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions for %d: %w", modelID, err)
	}
	return nonNil(out), nil
}

// LatestSubmission returns the most recently submitted content identifier.
// A record that was never submitted yields the registration identifier.
func (r *Registry) LatestSubmission(ctx context.Context, modelID uint64) (string, error) {
	var (
		rec  *models.AIBOMRecord
		subs []*models.SubmissionEntry
	)
	err := r.store.View(ctx, func(tx Tx) error {
		var err error
		if rec, err = tx.GetRecord(ctx, modelID); err != nil || rec == nil {
			return err
		}
		subs, err = tx.ListSubmissions(ctx, modelID)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to get latest submission for %d: %w", modelID, err)
	}
	if rec == nil {
		return "", newError(KindNotFound, ReasonModelNotFound)
	}
	if len(subs) == 0 {
		return rec.CID, nil
	}
	return subs[len(subs)-1].CID, nil
}

// ApprovedSubmissions returns the whole submission ledger while the record
// is Approved and an empty slice otherwise.
func (r *Registry) ApprovedSubmissions(ctx context.Context, modelID uint64) ([]*models.SubmissionEntry, error) {
	var out []*models.SubmissionEntry
	err := r.store.View(ctx, func(tx Tx) error {
		rec, err := tx.GetRecord(ctx, modelID)
		if err != nil || rec == nil || rec.Status != models.StatusApproved {
			return err
		}
		out, err = tx.ListSubmissions(ctx, modelID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list approved submissions for %d: %w", modelID, err)
	}
	return nonNil(out), nil
}

// Vulnerabilities returns the vulnerability ledger of modelID
func (r *Registry) Vulnerabilities(ctx context.Context, modelID uint64) ([]*models.VulnerabilityEntry, error) {
	var out []*models.VulnerabilityEntry
	err := r.store.View(ctx, func(tx Tx) error {
		var err error
		out, err = tx.ListVulnerabilities(ctx, modelID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list vulnerabilities for %d: %w", modelID, err)
	}
	return nonNil(out), nil
}

// Vulnerability returns one vulnerability entry by per-model index
func (r *Registry) Vulnerability(ctx context.Context, modelID, index uint64) (*models.VulnerabilityEntry, error) {
	var v *models.VulnerabilityEntry
	err := r.store.View(ctx, func(tx Tx) error {
		var err error
		v, err = tx.GetVulnerability(ctx, modelID, index)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get vulnerability %d/%d: %w", modelID, index, err)
	}
	if v == nil {
		return nil, newError(KindNotFound, ReasonIndexOutOfRange)
	}
	return v, nil
}

// Advisories returns the advisory ledger of modelID
func (r *Registry) Advisories(ctx context.Context, modelID uint64) ([]*models.AdvisoryEntry, error) {
	var out []*models.AdvisoryEntry
	err := r.store.View(ctx, func(tx Tx) error {
		var err error
		out, err = tx.ListAdvisories(ctx, modelID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list advisories for %d: %w", modelID, err)
	}
	return nonNil(out), nil
}

// Advisory returns one advisory entry by per-model index
func (r *Registry) Advisory(ctx context.Context, modelID, index uint64) (*models.AdvisoryEntry, error) {
	var a *models.AdvisoryEntry
	err := r.store.View(ctx, func(tx Tx) error {
		var err error
		a, err = tx.GetAdvisory(ctx, modelID, index)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get advisory %d/%d: %w", modelID, index, err)
	}
	if a == nil {
		return nil, newError(KindNotFound, ReasonIndexOutOfRange)
	}
	return a, nil
}

// Decisions returns the review decision history of modelID
func (r *Registry) Decisions(ctx context.Context, modelID uint64) ([]*models.ReviewDecision, error) {
	var out []*models.ReviewDecision
	err := r.store.View(ctx, func(tx Tx) error {
		var err error
		out, err = tx.ListDecisions(ctx, modelID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions for %d: %w", modelID, err)
	}
	return nonNil(out), nil
}

// Events returns up to limit events with a sequence greater than after
func (r *Registry) Events(ctx context.Context, after uint64, limit int) ([]*models.RegistryEvent, error) {
	var out []*models.RegistryEvent
	err := r.store.View(ctx, func(tx Tx) error {
		var err error
		out, err = tx.ListEvents(ctx, after, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return nonNil(out), nil
}

// EventHead returns the newest event, or nil when the log is empty
func (r *Registry) EventHead(ctx context.Context) (*models.RegistryEvent, error) {
	var head *models.RegistryEvent
	err := r.store.View(ctx, func(tx Tx) error {
		var err error
		head, err = tx.LastEvent(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read event log head: %w", err)
	}
	return head, nil
}

// VerifyEvents checks the hash chain of the whole event log and returns the
// number of events verified.
func (r *Registry) VerifyEvents(ctx context.Context) (int, error) {
	evs, err := r.Events(ctx, 0, 0)
	if err != nil {
		return 0, err
	}
	if err := events.Verify(values(evs), nil); err != nil {
		return 0, err
	}
	return len(evs), nil
}

// Snapshot captures the registry state from a single consistent view, in the
// same shape events.Replay produces.
func (r *Registry) Snapshot(ctx context.Context) (*events.State, error) {
	st := events.NewState()
	err := r.store.View(ctx, func(tx Tx) error {
		recs, err := tx.ListRecords(ctx)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			st.Records = append(st.Records, *rec)
			id := rec.ModelID

			subs, err := tx.ListSubmissions(ctx, id)
			if err != nil {
				return err
			}
			if len(subs) > 0 {
				st.Submissions[id] = values(subs)
			}
			vulns, err := tx.ListVulnerabilities(ctx, id)
			if err != nil {
				return err
			}
			if len(vulns) > 0 {
				st.Vulnerabilities[id] = values(vulns)
			}
			advs, err := tx.ListAdvisories(ctx, id)
			if err != nil {
				return err
			}
			if len(advs) > 0 {
				st.Advisories[id] = values(advs)
			}
			decs, err := tx.ListDecisions(ctx, id)
			if err != nil {
				return err
			}
			if len(decs) > 0 {
				st.Decisions[id] = values(decs)
			}
		}
		head, err := tx.LastEvent(ctx)
		if err != nil {
			return err
		}
		if head != nil {
			st.LastSequence = head.Sequence
			st.HeadHash = head.Hash
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot registry: %w", err)
	}
	return st, nil
}

func nonNil[T any](s []*T) []*T {
	if s == nil {
		return []*T{}
	}
	return s
}

func values[T any](ptrs []*T) []T {
	out := make([]T, len(ptrs))
	for i, p := range ptrs {
		out[i] = *p
	}
	return out
}
