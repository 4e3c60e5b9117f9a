package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/sanonone/vektor/pkg/config"
	"github.com/sanonone/vektor/pkg/core/hnsw"
	"github.com/sanonone/vektor/pkg/errs"
	"github.com/sanonone/vektor/pkg/lock"
	"github.com/sanonone/vektor/pkg/metrics"
	"github.com/sanonone/vektor/pkg/storage/flatfile"
)

// SearchOptions selects what a search result carries besides id and score.
type SearchOptions struct {
	IncludeVector   bool
	IncludeMetadata bool
}

// Result is one search hit.
type Result struct {
	ID       string    `json:"id"`
	Score    float64   `json:"score"`
	Vector   []float32 `json:"vector,omitempty"`
	Metadata any       `json:"metadata,omitempty"`
}

// Searcher answers queries under the shared lock.
type Searcher struct {
	cfg    config.Config
	open   storeOpener
	locker lock.Locker
	logger *slog.Logger
}

// NewSearcher creates a Searcher over the stores returned by open.
func NewSearcher(cfg config.Config, open storeOpener, locker lock.Locker, logger *slog.Logger) *Searcher {
	return &Searcher{cfg: cfg, open: open, locker: locker, logger: logger}
}

// Search returns up to k live documents ordered by similarity. The graph is
// asked for k+SearchOversample candidates so deleted records, which stay in
// the graph, can be dropped without starving the result.
func (s *Searcher) Search(ctx context.Context, vector []float32, k int, opts SearchOptions) (results []Result, err error) {
	start := time.Now()
	defer func() { observe("search", start, err) }()

	if len(vector) != s.cfg.Dimension {
		return nil, errs.Validation("search", "vector dimension mismatch: expected %d, got %d", s.cfg.Dimension, len(vector))
	}
	if k <= 0 {
		return nil, errs.Validation("search", "k must be positive (got %d)", k)
	}

	want := k + s.cfg.SearchOversample
	ef := max(want, s.cfg.MinSearchEf)

	err = withStores(ctx, s.locker, lock.Shared, s.open, s.logger, func(set *flatfile.Set) error {
		engine := hnsw.New(set.Vectors, set.Graph, s.cfg.M, s.cfg.EfConstruction)
		candidates, err := engine.Search(vector, want, ef)
		if err != nil {
			return err
		}
		results, err = hydrate(set, candidates, k, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// hydrate turns graph candidates into results, skipping deleted records,
// until k results are collected.
func hydrate(set *flatfile.Set, candidates []hnsw.Candidate, k int, opts SearchOptions) ([]Result, error) {
	results := make([]Result, 0, min(k, len(candidates)))
	for _, c := range candidates {
		if len(results) >= k {
			break
		}
		rec, ok, err := set.Vectors.Read(c.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			metrics.TombstonesSkipped.Inc()
			continue
		}

		r := Result{ID: rec.ExternalID, Score: c.Score}
		if opts.IncludeVector {
			r.Vector = rec.Vector
		}
		if opts.IncludeMetadata {
			if r.Metadata, err = readMetadata(set, rec); err != nil {
				return nil, err
			}
		}
		results = append(results, r)
	}
	return results, nil
}

// readMetadata returns the payload of rec, or nil if it has none.
func readMetadata(set *flatfile.Set, rec flatfile.Record) (any, error) {
	entry, found, err := set.Index.FindEntry(rec.ExternalID)
	if err != nil || !found || entry.Value != rec.InternalID || !entry.HasPayload() {
		return nil, err
	}
	md, _, err := set.Payloads.Read(flatfile.Locator{Offset: entry.PayloadOffset, Length: entry.PayloadLength})
	return md, err
}
