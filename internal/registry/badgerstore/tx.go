package badgerstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/aibom-registry/aibom-registry/internal/db/models"
	"github.com/aibom-registry/aibom-registry/internal/registry"
)

// Key layout. Integers are big-endian so lexical order is numeric order.
//
//	rec/<model>               record JSON
//	own/<owner>\x00<model>    owner index, empty value
//	led/<kind>/<model><idx>   ledger entry JSON
//	cnt/<kind>/<model>        ledger length
//	cnt/records               record count
//	evt/<seq>                 event JSON
var (
	prefixRecord = []byte("rec/")
	prefixOwner  = []byte("own/")
	prefixEvent  = []byte("evt/")
	keyRecords   = []byte("cnt/records")
)

const (
	kindSubmission    = "sub"
	kindVulnerability = "vul"
	kindAdvisory      = "adv"
	kindDecision      = "dec"
)

func u64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func join(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func recordKey(id uint64) []byte { return join(prefixRecord, u64(id)) }

func ownerPrefix(owner string) []byte {
	return join(prefixOwner, []byte(owner), []byte{0})
}

func ledgerPrefix(kind string, modelID uint64) []byte {
	return join([]byte("led/"+kind+"/"), u64(modelID))
}

func ledgerKey(kind string, modelID, idx uint64) []byte {
	return join(ledgerPrefix(kind, modelID), u64(idx))
}

func countKey(kind string, modelID uint64) []byte {
	return join([]byte("cnt/"+kind+"/"), u64(modelID))
}

func eventKey(seq uint64) []byte { return join(prefixEvent, u64(seq)) }

type tx struct {
	txn      *badger.Txn
	writable bool
}

func (t *tx) write() error {
	if !t.writable {
		return registry.ErrReadOnly
	}
	return nil
}

func (t *tx) readCounter(key []byte) (uint64, error) {
	item, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var n uint64
	err = item.Value(func(b []byte) error {
		if len(b) != 8 {
			return fmt.Errorf("corrupt counter %q", key)
		}
		n = binary.BigEndian.Uint64(b)
		return nil
	})
	return n, err
}

func (t *tx) putJSON(key []byte, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return t.txn.Set(key, buf)
}

func getJSON[T any](t *tx, key []byte) (*T, error) {
	item, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := item.Value(func(b []byte) error { return json.Unmarshal(b, &v) }); err != nil {
		return nil, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return &v, nil
}

// scanJSON decodes every value under prefix, starting at seek, in key order.
// limit <= 0 means no limit.
func scanJSON[T any](t *tx, prefix, seek []byte, limit int) ([]*T, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	out := []*T{}
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		var v T
		if err := it.Item().Value(func(b []byte) error { return json.Unmarshal(b, &v) }); err != nil {
			return nil, fmt.Errorf("failed to decode %q: %w", it.Item().Key(), err)
		}
		out = append(out, &v)
	}
	return out, nil
}

// appendLedger stores v at the next index of the model's kind ledger and
// returns that index. setIndex is applied before the value is encoded.
func appendLedger[T any](t *tx, kind string, modelID uint64, v *T, setIndex func(uint64)) error {
	if err := t.write(); err != nil {
		return err
	}
	ck := countKey(kind, modelID)
	idx, err := t.readCounter(ck)
	if err != nil {
		return err
	}
	setIndex(idx)
	if err := t.putJSON(ledgerKey(kind, modelID, idx), v); err != nil {
		return err
	}
	return t.txn.Set(ck, u64(idx+1))
}

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

func (t *tx) InsertRecord(_ context.Context, rec *models.AIBOMRecord) error {
	if err := t.write(); err != nil {
		return err
	}
	n, err := t.readCounter(keyRecords)
	if err != nil {
		return err
	}
	rec.ModelID = n
	if err := t.putJSON(recordKey(n), rec); err != nil {
		return err
	}
	if err := t.txn.Set(join(ownerPrefix(rec.Owner), u64(n)), nil); err != nil {
		return err
	}
	return t.txn.Set(keyRecords, u64(n+1))
}

func (t *tx) UpdateRecord(ctx context.Context, rec *models.AIBOMRecord) error {
	if err := t.write(); err != nil {
		return err
	}
	cur, err := t.GetRecord(ctx, rec.ModelID)
	if err != nil {
		return err
	}
	if cur == nil {
		return &registry.Error{Kind: registry.KindNotFound, Reason: registry.ReasonModelNotFound}
	}
	cur.Status = rec.Status
	cur.ReviewReason = rec.ReviewReason
	cur.Timestamp = rec.Timestamp
	return t.putJSON(recordKey(rec.ModelID), cur)
}

func (t *tx) GetRecord(_ context.Context, modelID uint64) (*models.AIBOMRecord, error) {
	return getJSON[models.AIBOMRecord](t, recordKey(modelID))
}

func (t *tx) ListRecords(_ context.Context) ([]*models.AIBOMRecord, error) {
	return scanJSON[models.AIBOMRecord](t, prefixRecord, prefixRecord, 0)
}

func (t *tx) ListRecordsByOwner(ctx context.Context, owner string) ([]*models.AIBOMRecord, error) {
	prefix := ownerPrefix(owner)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := t.txn.NewIterator(opts)

	var ids []uint64
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		key := it.Item().Key()
		ids = append(ids, binary.BigEndian.Uint64(key[len(key)-8:]))
	}
	it.Close()

	out := make([]*models.AIBOMRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := t.GetRecord(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (t *tx) CountRecords(_ context.Context) (uint64, error) {
	return t.readCounter(keyRecords)
}

// ---------------------------------------------------------------------------
// Ledgers
// ---------------------------------------------------------------------------

func (t *tx) AppendSubmission(_ context.Context, e *models.SubmissionEntry) error {
	return appendLedger(t, kindSubmission, e.ModelID, e, func(i uint64) { e.Index = i })
}

func (t *tx) ListSubmissions(_ context.Context, modelID uint64) ([]*models.SubmissionEntry, error) {
	p := ledgerPrefix(kindSubmission, modelID)
	return scanJSON[models.SubmissionEntry](t, p, p, 0)
}

func (t *tx) AppendVulnerability(_ context.Context, e *models.VulnerabilityEntry) error {
	return appendLedger(t, kindVulnerability, e.ModelID, e, func(i uint64) { e.Index = i })
}

func (t *tx) GetVulnerability(_ context.Context, modelID, index uint64) (*models.VulnerabilityEntry, error) {
	return getJSON[models.VulnerabilityEntry](t, ledgerKey(kindVulnerability, modelID, index))
}

func (t *tx) ListVulnerabilities(_ context.Context, modelID uint64) ([]*models.VulnerabilityEntry, error) {
	p := ledgerPrefix(kindVulnerability, modelID)
	return scanJSON[models.VulnerabilityEntry](t, p, p, 0)
}

func (t *tx) AppendAdvisory(_ context.Context, e *models.AdvisoryEntry) error {
	return appendLedger(t, kindAdvisory, e.ModelID, e, func(i uint64) { e.Index = i })
}

func (t *tx) GetAdvisory(_ context.Context, modelID, index uint64) (*models.AdvisoryEntry, error) {
	return getJSON[models.AdvisoryEntry](t, ledgerKey(kindAdvisory, modelID, index))
}

func (t *tx) ListAdvisories(_ context.Context, modelID uint64) ([]*models.AdvisoryEntry, error) {
	p := ledgerPrefix(kindAdvisory, modelID)
	return scanJSON[models.AdvisoryEntry](t, p, p, 0)
}

func (t *tx) AppendDecision(_ context.Context, d *models.ReviewDecision) error {
	return appendLedger(t, kindDecision, d.ModelID, d, func(i uint64) { d.Index = i })
}

func (t *tx) ListDecisions(_ context.Context, modelID uint64) ([]*models.ReviewDecision, error) {
	p := ledgerPrefix(kindDecision, modelID)
	return scanJSON[models.ReviewDecision](t, p, p, 0)
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

func (t *tx) AppendEvent(_ context.Context, ev *models.RegistryEvent) error {
	if err := t.write(); err != nil {
		return err
	}
	return t.putJSON(eventKey(ev.Sequence), ev)
}

func (t *tx) LastEvent(_ context.Context) (*models.RegistryEvent, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefixEvent
	opts.Reverse = true
	it := t.txn.NewIterator(opts)
	defer it.Close()

	it.Seek(join(prefixEvent, bytes.Repeat([]byte{0xff}, 8)))
	if !it.ValidForPrefix(prefixEvent) {
		return nil, nil
	}
	var ev models.RegistryEvent
	if err := it.Item().Value(func(b []byte) error { return json.Unmarshal(b, &ev) }); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return &ev, nil
}

func (t *tx) ListEvents(_ context.Context, after uint64, limit int) ([]*models.RegistryEvent, error) {
	if after == math.MaxUint64 {
		return nil, nil
	}
	return scanJSON[models.RegistryEvent](t, prefixEvent, eventKey(after+1), limit)
}
