package registry

// arena stores the entries of one ledger kind for every model in a single
// append-only slice. Each model's ledger is a list of positions into that
// slice, so a per-model index maps to exactly one entry for the lifetime of
// the arena.
type arena[T any] struct {
	entries []T
	byModel map[uint64][]int
}

func newArena[T any]() *arena[T] {
	return &arena[T]{byModel: make(map[uint64][]int)}
}

// append adds v to the ledger of modelID and returns its per-model index
func (a *arena[T]) append(modelID uint64, v T) uint64 {
	a.entries = append(a.entries, v)
	a.byModel[modelID] = append(a.byModel[modelID], len(a.entries)-1)
	return uint64(len(a.byModel[modelID]) - 1)
}

// dropLast undoes the most recent append. It is only valid as the inverse of
// the last append made to the arena.
func (a *arena[T]) dropLast(modelID uint64) {
	positions := a.byModel[modelID]
	if len(positions) == 0 {
		return
	}
	a.byModel[modelID] = positions[:len(positions)-1]
	if len(a.byModel[modelID]) == 0 {
		delete(a.byModel, modelID)
	}
	a.entries = a.entries[:len(a.entries)-1]
}

func (a *arena[T]) count(modelID uint64) uint64 {
	return uint64(len(a.byModel[modelID]))
}

func (a *arena[T]) get(modelID, index uint64) (T, bool) {
	var zero T
	positions := a.byModel[modelID]
	if index >= uint64(len(positions)) {
		return zero, false
	}
	return a.entries[positions[index]], true
}

// list returns the model's entries oldest first, as copies
func (a *arena[T]) list(modelID uint64) []T {
	positions := a.byModel[modelID]
	out := make([]T, len(positions))
	for i, p := range positions {
		out[i] = a.entries[p]
	}
	return out
}

// all returns every entry in arena order, as copies
func (a *arena[T]) all() []T {
	return append([]T(nil), a.entries...)
}
