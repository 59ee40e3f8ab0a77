package assign

import (
	"context"
	"sort"
	"time"

	"memorio.org/internal/obs"
)

// unknownLoad is the rank assigned to a candidate whose count query failed:
// large enough that they are only picked when every alternative failed too.
const unknownLoad = 999999

// Ranker orders eligible editors best-first. Both implementations must
// produce the same order for the same underlying data; the store-native one
// is only a query-count optimization.
type Ranker interface {
	Rank(ctx context.Context) ([]Candidate, error)
}

// RankedEditorLister is the optional store capability of returning editors
// already ranked by (active count asc, created_at asc) in one query.
type RankedEditorLister interface {
	RankedEditors(ctx context.Context) ([]Candidate, error)
}

// NewRanker selects the store-native ranked query when the store supports
// it and falls back to client-side counting otherwise.
func NewRanker(store Store) Ranker {
	if lister, ok := store.(RankedEditorLister); ok {
		return &storeRanker{lister: lister}
	}
	return &countRanker{store: store}
}

type storeRanker struct {
	lister RankedEditorLister
}

func (r *storeRanker) Rank(ctx context.Context) ([]Candidate, error) {
	return r.lister.RankedEditors(ctx)
}

// countRanker lists eligible editors and counts each one's active
// assignments client-side.
type countRanker struct {
	store Store
}

func (r *countRanker) Rank(ctx context.Context) ([]Candidate, error) {
	candidates, err := r.store.ListEditors(ctx)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		count, err := r.store.ActiveAssignmentCount(ctx, candidates[i].ID)
		if err != nil {
			obs.LogRequest(map[string]any{
				"ts":     time.Now().UTC().Format(time.RFC3339Nano),
				"level":  "warn",
				"msg":    "active assignment count failed",
				"editor": candidates[i].ID,
				"error":  err.Error(),
			})
			count = unknownLoad
		}
		candidates[i].ActiveCount = count
	}
	SortCandidates(candidates)
	return candidates, nil
}

// SortCandidates orders by active count ascending, then by account creation
// time ascending so ties always resolve to the earliest-created editor.
func SortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].ActiveCount != candidates[j].ActiveCount {
			return candidates[i].ActiveCount < candidates[j].ActiveCount
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
}
