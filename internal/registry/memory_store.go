package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/aibom-registry/aibom-registry/internal/db/models"
)

// MemoryStore keeps the whole registry in process memory. Writers hold an
// exclusive lock for the duration of Update and every write registers an undo
// step, so a failed transaction leaves no trace.
type MemoryStore struct {
	mu sync.RWMutex

	records         []models.AIBOMRecord
	submissions     *arena[models.SubmissionEntry]
	vulnerabilities *arena[models.VulnerabilityEntry]
	advisories      *arena[models.AdvisoryEntry]
	decisions       *arena[models.ReviewDecision]
	events          []models.RegistryEvent
}

// NewMemoryStore returns an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		submissions:     newArena[models.SubmissionEntry](),
		vulnerabilities: newArena[models.VulnerabilityEntry](),
		advisories:      newArena[models.AdvisoryEntry](),
		decisions:       newArena[models.ReviewDecision](),
	}
}

func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{s: s, writable: true}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (s *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memoryTx{s: s})
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close() error { return nil }

type memoryTx struct {
	s        *MemoryStore
	writable bool
	undo     []func()
}

func (t *memoryTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memoryTx) write() error {
	if !t.writable {
		return ErrReadOnly
	}
	return nil
}

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

func (t *memoryTx) InsertRecord(_ context.Context, rec *models.AIBOMRecord) error {
	if err := t.write(); err != nil {
		return err
	}
	rec.ModelID = uint64(len(t.s.records))
	t.s.records = append(t.s.records, *rec)
	t.undo = append(t.undo, func() { t.s.records = t.s.records[:len(t.s.records)-1] })
	return nil
}

func (t *memoryTx) UpdateRecord(_ context.Context, rec *models.AIBOMRecord) error {
	if err := t.write(); err != nil {
		return err
	}
	if rec.ModelID >= uint64(len(t.s.records)) {
		return newError(KindNotFound, ReasonModelNotFound)
	}
	prev := t.s.records[rec.ModelID]
	next := prev
	next.Status = rec.Status
	next.ReviewReason = rec.ReviewReason
	next.Timestamp = rec.Timestamp
	t.s.records[rec.ModelID] = next
	t.undo = append(t.undo, func() { t.s.records[prev.ModelID] = prev })
	return nil
}

func (t *memoryTx) GetRecord(_ context.Context, modelID uint64) (*models.AIBOMRecord, error) {
	if modelID >= uint64(len(t.s.records)) {
		return nil, nil
	}
	rec := t.s.records[modelID]
	return &rec, nil
}

func (t *memoryTx) ListRecords(_ context.Context) ([]*models.AIBOMRecord, error) {
	out := make([]*models.AIBOMRecord, len(t.s.records))
	for i := range t.s.records {
		rec := t.s.records[i]
		out[i] = &rec
	}
	return out, nil
}

func (t *memoryTx) ListRecordsByOwner(_ context.Context, owner string) ([]*models.AIBOMRecord, error) {
	out := []*models.AIBOMRecord{}
	for i := range t.s.records {
		if t.s.records[i].Owner == owner {
			rec := t.s.records[i]
			out = append(out, &rec)
		}
	}
	return out, nil
}

func (t *memoryTx) CountRecords(_ context.Context) (uint64, error) {
	return uint64(len(t.s.records)), nil
}

// ---------------------------------------------------------------------------
// Ledgers
// ---------------------------------------------------------------------------

func (t *memoryTx) AppendSubmission(_ context.Context, e *models.SubmissionEntry) error {
	if err := t.write(); err != nil {
		return err
	}
	e.Index = t.s.submissions.append(e.ModelID, *e)
	t.s.submissions.entries[len(t.s.submissions.entries)-1].Index = e.Index
	modelID := e.ModelID
	t.undo = append(t.undo, func() { t.s.submissions.dropLast(modelID) })
	return nil
}

func (t *memoryTx) ListSubmissions(_ context.Context, modelID uint64) ([]*models.SubmissionEntry, error) {
	return pointers(t.s.submissions.list(modelID)), nil
}

func (t *memoryTx) AppendVulnerability(_ context.Context, e *models.VulnerabilityEntry) error {
	if err := t.write(); err != nil {
		return err
	}
	e.Index = t.s.vulnerabilities.append(e.ModelID, *e)
	t.s.vulnerabilities.entries[len(t.s.vulnerabilities.entries)-1].Index = e.Index
	modelID := e.ModelID
	t.undo = append(t.undo, func() { t.s.vulnerabilities.dropLast(modelID) })
	return nil
}

func (t *memoryTx) GetVulnerability(_ context.Context, modelID, index uint64) (*models.VulnerabilityEntry, error) {
	v, ok := t.s.vulnerabilities.get(modelID, index)
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (t *memoryTx) ListVulnerabilities(_ context.Context, modelID uint64) ([]*models.VulnerabilityEntry, error) {
	return pointers(t.s.vulnerabilities.list(modelID)), nil
}

func (t *memoryTx) AppendAdvisory(_ context.Context, e *models.AdvisoryEntry) error {
	if err := t.write(); err != nil {
		return err
	}
	e.Index = t.s.advisories.append(e.ModelID, *e)
	t.s.advisories.entries[len(t.s.advisories.entries)-1].Index = e.Index
	modelID := e.ModelID
	t.undo = append(t.undo, func() { t.s.advisories.dropLast(modelID) })
	return nil
}

func (t *memoryTx) GetAdvisory(_ context.Context, modelID, index uint64) (*models.AdvisoryEntry, error) {
	a, ok := t.s.advisories.get(modelID, index)
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (t *memoryTx) ListAdvisories(_ context.Context, modelID uint64) ([]*models.AdvisoryEntry, error) {
	return pointers(t.s.advisories.list(modelID)), nil
}

func (t *memoryTx) AppendDecision(_ context.Context, d *models.ReviewDecision) error {
	if err := t.write(); err != nil {
		return err
	}
	d.Index = t.s.decisions.append(d.ModelID, *d)
	t.s.decisions.entries[len(t.s.decisions.entries)-1].Index = d.Index
	modelID := d.ModelID
	t.undo = append(t.undo, func() { t.s.decisions.dropLast(modelID) })
	return nil
}

func (t *memoryTx) ListDecisions(_ context.Context, modelID uint64) ([]*models.ReviewDecision, error) {
	return pointers(t.s.decisions.list(modelID)), nil
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

func (t *memoryTx) AppendEvent(_ context.Context, ev *models.RegistryEvent) error {
	if err := t.write(); err != nil {
		return err
	}
	e := *ev
	e.Payload = append([]byte(nil), ev.Payload...)
	t.s.events = append(t.s.events, e)
	t.undo = append(t.undo, func() { t.s.events = t.s.events[:len(t.s.events)-1] })
	return nil
}

func (t *memoryTx) LastEvent(_ context.Context) (*models.RegistryEvent, error) {
	if len(t.s.events) == 0 {
		return nil, nil
	}
	ev := t.s.events[len(t.s.events)-1]
	return &ev, nil
}

func (t *memoryTx) ListEvents(_ context.Context, after uint64, limit int) ([]*models.RegistryEvent, error) {
	start := sort.Search(len(t.s.events), func(i int) bool { return t.s.events[i].Sequence > after })
	end := len(t.s.events)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return pointers(t.s.events[start:end]), nil
}

func pointers[T any](vals []T) []*T {
	out := make([]*T, len(vals))
	for i := range vals {
		v := vals[i]
		out[i] = &v
	}
	return out
}
