package memory

import (
	"context"
	"log/slog"
	"sort"
)

// Ranker orders candidate memories by relevance to a query and keeps at most limit.
type Ranker interface {
	Rank(ctx context.Context, query string, candidates []Record, limit int) []Record
}

// RecencyRanker treats the newest memories as the most relevant.
type RecencyRanker struct{}

func (RecencyRanker) Rank(_ context.Context, _ string, candidates []Record, limit int) []Record {
	out := make([]Record, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Retriever is the read side used during a turn. It never fails: a store outage
// degrades to "no memories".
type Retriever struct {
	store      Store
	ranker     Ranker
	limit      int
	candidates int
	logger     *slog.Logger
}

func NewRetriever(store Store, ranker Ranker, limit int, logger *slog.Logger) *Retriever {
	if ranker == nil {
		ranker = RecencyRanker{}
	}
	if limit <= 0 {
		limit = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		store:      store,
		ranker:     ranker,
		limit:      limit,
		candidates: limit,
		logger:     logger,
	}
}

// WithCandidatePool widens the number of records handed to the ranker.
func (r *Retriever) WithCandidatePool(n int) *Retriever {
	if n >= r.limit {
		r.candidates = n
	}
	return r
}

// Relevant returns up to limit memories for query, newest first for the default ranker.
func (r *Retriever) Relevant(ctx context.Context, query string) []Record {
	candidates, err := r.store.ListRecent(ctx, r.candidates)
	if err != nil {
		r.logger.Error("retrieving relevant memories failed", "err", err)
		return nil
	}
	ranked := r.ranker.Rank(ctx, query, candidates, r.limit)
	r.logger.Debug("retrieved relevant memories", "candidates", len(candidates), "selected", len(ranked))
	return ranked
}

// All lists every memory, or nothing if the store is unavailable.
func (r *Retriever) All(ctx context.Context) []Record {
	records, err := r.store.ListAll(ctx)
	if err != nil {
		r.logger.Error("listing memories failed", "err", err)
		return nil
	}
	return records
}
