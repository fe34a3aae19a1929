// Package registry is the permissioned AIBOM registry: a role-gated review
// state machine over per-model records plus append-only submission,
// vulnerability, advisory and decision ledgers.
//
// Every mutation runs as a single store transaction under the registry's
// write lock. Authorization and argument checks happen inside that
// transaction, so a rejected call leaves no trace. Each committed mutation
// appends one hash-chained event to the event log in the same transaction
// and is then published on the event bus before the lock is released, which
// keeps event order identical to commit order.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aibom-registry/aibom-registry/internal/db/models"
	"github.com/aibom-registry/aibom-registry/internal/events"
	"github.com/aibom-registry/aibom-registry/internal/telemetry"
)

// Operation names used in logs and metrics
const (
	OpRegister            = "register"
	OpSubmitForReview     = "submit_for_review"
	OpDecide              = "decide"
	OpReportVulnerability = "report_vulnerability"
	OpRecordAdvisory      = "record_advisory"
)

// Registry coordinates the resolver, the store and the event bus
type Registry struct {
	store    Store
	resolver *Resolver
	bus      *events.Bus
	now      func() time.Time
	logger   *slog.Logger

	mu sync.Mutex
}

// Option configures a Registry
type Option func(*Registry)

// WithBus sets the bus committed events are published on
func WithBus(bus *events.Bus) Option {
	return func(r *Registry) { r.bus = bus }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// New creates a registry over store, authorizing callers with resolver
func New(store Store, resolver *Resolver, opts ...Option) *Registry {
	r := &Registry{
		store:    store,
		resolver: resolver,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolver returns the identity resolver
func (r *Registry) Resolver() *Resolver { return r.resolver }

// Bus returns the event bus, which may be nil
func (r *Registry) Bus() *events.Bus { return r.bus }

// Store returns the underlying store
func (r *Registry) Store() Store { return r.store }

// timestamp is truncated to microseconds so it survives a Postgres round
// trip unchanged and event hashes stay verifiable.
func (r *Registry) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

type mutation func(ctx context.Context, tx Tx, at time.Time) (models.RegistryEvent, error)

func (r *Registry) mutate(ctx context.Context, op, caller string, fn mutation) (models.RegistryEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	at := r.timestamp()

	var committed models.RegistryEvent
	err := r.store.Update(ctx, func(tx Tx) error {
		ev, err := fn(ctx, tx, at)
		if err != nil {
			return err
		}
		prev, err := tx.LastEvent(ctx)
		if err != nil {
			return fmt.Errorf("failed to read event log head: %w", err)
		}
		if err := events.Seal(&ev, prev); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, &ev); err != nil {
			return fmt.Errorf("failed to append event: %w", err)
		}
		committed = ev
		return nil
	})

	telemetry.RegistryOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	telemetry.RegistryOperationsTotal.WithLabelValues(op, outcome(err)).Inc()

	if err != nil {
		if rerr, ok := AsError(err); ok {
			r.logger.Debug("registry operation rejected",
				"op", op, "caller", caller, "kind", rerr.Kind, "reason", rerr.Reason)
		} else {
			r.logger.Error("registry operation failed", "op", op, "caller", caller, "error", err)
		}
		return models.RegistryEvent{}, err
	}

	r.logger.Info("registry operation committed",
		"op", op, "caller", caller, "model_id", committed.ModelID, "sequence", committed.Sequence)

	// Delivery must not depend on the caller's request lifetime; the mutation
	// is already committed.
	r.bus.Publish(context.WithoutCancel(ctx), committed)
	return committed, nil
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if rerr, ok := AsError(err); ok {
		return string(rerr.Kind)
	}
	return "error"
}

// Register creates a Draft record owned by caller. It succeeds for any caller.
func (r *Registry) Register(ctx context.Context, caller, cid string) (*models.AIBOMRecord, error) {
	owner := NormalizeIdentity(caller)
	var rec models.AIBOMRecord

	_, err := r.mutate(ctx, OpRegister, owner, func(ctx context.Context, tx Tx, at time.Time) (models.RegistryEvent, error) {
		rec = models.AIBOMRecord{
			Owner:     owner,
			CID:       cid,
			Status:    models.StatusDraft,
			Timestamp: at,
			CreatedAt: at,
		}
		if err := tx.InsertRecord(ctx, &rec); err != nil {
			return models.RegistryEvent{}, fmt.Errorf("failed to insert record: %w", err)
		}
		return events.New(models.EventRecordRegistered, rec.ModelID, owner, at,
			models.RecordRegisteredPayload{Owner: owner, CID: cid})
	})
	if err != nil {
		return nil, err
	}
	telemetry.RegistryRecords.Set(float64(rec.ModelID + 1))
	return &rec, nil
}

// SubmitForReview appends cid to the model's submission ledger and moves the
// record to Submitted. Only the record owner may submit; an unknown model is
// treated as not owned. Any prior status is accepted, including Rejected.
func (r *Registry) SubmitForReview(ctx context.Context, caller string, modelID uint64, cid string) (*models.SubmissionEntry, error) {
	id := NormalizeIdentity(caller)
	var entry models.SubmissionEntry

	_, err := r.mutate(ctx, OpSubmitForReview, id, func(ctx context.Context, tx Tx, at time.Time) (models.RegistryEvent, error) {
		rec, err := tx.GetRecord(ctx, modelID)
		if err != nil {
			return models.RegistryEvent{}, fmt.Errorf("failed to load record %d: %w", modelID, err)
		}
		if !r.resolver.IsRecordOwner(id, rec) {
			return models.RegistryEvent{}, newError(KindAuthorization, ReasonNotOwner)
		}

		entry = models.SubmissionEntry{ModelID: modelID, CID: cid, Submitter: id, CreatedAt: at}
		if err := tx.AppendSubmission(ctx, &entry); err != nil {
			return models.RegistryEvent{}, fmt.Errorf("failed to append submission: %w", err)
		}

		from := rec.Status
		rec.Status = models.StatusSubmitted
		rec.Timestamp = at
		if err := tx.UpdateRecord(ctx, rec); err != nil {
			return models.RegistryEvent{}, fmt.Errorf("failed to update record %d: %w", modelID, err)
		}
		return events.New(models.EventReviewSubmitted, modelID, id, at,
			models.ReviewSubmittedPayload{Index: entry.Index, CID: cid, FromStatus: from})
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Decide sets the review outcome of a record. The target must be InReview,
// Approved or Rejected; that check precedes authorization, so a disallowed
// target is reported as an invalid transition for every caller. The current
// status is not consulted.
func (r *Registry) Decide(ctx context.Context, caller string, modelID uint64, status models.ReviewStatus, reason string) (*models.AIBOMRecord, error) {
	id := NormalizeIdentity(caller)
	var updated models.AIBOMRecord

	_, err := r.mutate(ctx, OpDecide, id, func(ctx context.Context, tx Tx, at time.Time) (models.RegistryEvent, error) {
		if !status.IsDecision() {
			return models.RegistryEvent{}, newError(KindInvalidTransition, ReasonInvalidStatus)
		}
		if !r.resolver.Can(id, PermDecide) {
			return models.RegistryEvent{}, newError(KindAuthorization, ReasonNotPrincipal)
		}
		rec, err := tx.GetRecord(ctx, modelID)
		if err != nil {
			return models.RegistryEvent{}, fmt.Errorf("failed to load record %d: %w", modelID, err)
		}
		if rec == nil {
			return models.RegistryEvent{}, newError(KindNotFound, ReasonModelNotFound)
		}

		decision := models.ReviewDecision{
			ModelID:    modelID,
			FromStatus: rec.Status,
			ToStatus:   status,
			Reason:     reason,
			Decider:    id,
			CreatedAt:  at,
		}
		if err := tx.AppendDecision(ctx, &decision); err != nil {
			return models.RegistryEvent{}, fmt.Errorf("failed to append decision: %w", err)
		}

		rec.Status = status
		rec.ReviewReason = reason
		rec.Timestamp = at
		if err := tx.UpdateRecord(ctx, rec); err != nil {
			return models.RegistryEvent{}, fmt.Errorf("failed to update record %d: %w", modelID, err)
		}
		updated = *rec
		return events.New(models.EventReviewDecided, modelID, id, at, models.ReviewDecidedPayload{
			Index:      decision.Index,
			FromStatus: decision.FromStatus,
			ToStatus:   status,
			Reason:     reason,
		})
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ReportVulnerability appends an active finding to the model's vulnerability
// ledger. Severity is case-insensitive and stored upper-case.
func (r *Registry) ReportVulnerability(ctx context.Context, caller string, modelID uint64, cid, severity string) (*models.VulnerabilityEntry, error) {
	id := NormalizeIdentity(caller)
	sev := strings.ToUpper(strings.TrimSpace(severity))
	var entry models.VulnerabilityEntry

	_, err := r.mutate(ctx, OpReportVulnerability, id, func(ctx context.Context, tx Tx, at time.Time) (models.RegistryEvent, error) {
		if !r.resolver.Can(id, PermReportVulnerability) {
			return models.RegistryEvent{}, newError(KindAuthorization, ReasonNotPrincipal)
		}
		if !models.ValidSeverity(sev) {
			return models.RegistryEvent{}, newError(KindInvalidArgument, ReasonInvalidSeverity)
		}
		if err := requireRecord(ctx, tx, modelID); err != nil {
			return models.RegistryEvent{}, err
		}

		entry = models.VulnerabilityEntry{
			ModelID:   modelID,
			CID:       cid,
			Severity:  sev,
			Active:    true,
			Reporter:  id,
			CreatedAt: at,
		}
		if err := tx.AppendVulnerability(ctx, &entry); err != nil {
			return models.RegistryEvent{}, fmt.Errorf("failed to append vulnerability: %w", err)
		}
		return events.New(models.EventVulnerabilityReported, modelID, id, at, models.VulnerabilityReportedPayload{
			Index:    entry.Index,
			CID:      cid,
			Severity: sev,
			Active:   true,
		})
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// RecordAdvisory appends a recommendation to the model's advisory ledger,
// recording caller as the reporter.
func (r *Registry) RecordAdvisory(ctx context.Context, caller string, modelID uint64, cid, scope, action string) (*models.AdvisoryEntry, error) {
	id := NormalizeIdentity(caller)
	var entry models.AdvisoryEntry

	_, err := r.mutate(ctx, OpRecordAdvisory, id, func(ctx context.Context, tx Tx, at time.Time) (models.RegistryEvent, error) {
		if !r.resolver.Can(id, PermRecordAdvisory) {
			return models.RegistryEvent{}, newError(KindAuthorization, ReasonNotPrincipal)
		}
		if err := requireRecord(ctx, tx, modelID); err != nil {
			return models.RegistryEvent{}, err
		}

		entry = models.AdvisoryEntry{
			ModelID:   modelID,
			CID:       cid,
			Scope:     scope,
			Action:    action,
			Reporter:  id,
			CreatedAt: at,
		}
		if err := tx.AppendAdvisory(ctx, &entry); err != nil {
			return models.RegistryEvent{}, fmt.Errorf("failed to append advisory: %w", err)
		}
		return events.New(models.EventAdvisoryRecorded, modelID, id, at, models.AdvisoryRecordedPayload{
			Index:  entry.Index,
			CID:    cid,
			Scope:  scope,
			Action: action,
		})
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func requireRecord(ctx context.Context, tx Tx, modelID uint64) error {
	rec, err := tx.GetRecord(ctx, modelID)
	if err != nil {
		return fmt.Errorf("failed to load record %d: %w", modelID, err)
	}
	if rec == nil {
		return newError(KindNotFound, ReasonModelNotFound)
	}
	return nil
}
