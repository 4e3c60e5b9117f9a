package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/sanonone/vektor/pkg/config"
	"github.com/sanonone/vektor/pkg/core/hnsw"
	"github.com/sanonone/vektor/pkg/errs"
	"github.com/sanonone/vektor/pkg/lock"
	"github.com/sanonone/vektor/pkg/storage/flatfile"
)

// Indexer performs writes: insert and delete under the exclusive lock.
// The locking policy is injected; the Compactor builds an Indexer with
// lock.Noop because it already holds the exclusive lock.
type Indexer struct {
	cfg    config.Config
	open   storeOpener
	locker lock.Locker
	logger *slog.Logger
	levels *levelSource
}

// levelSource serializes level draws; *rand.Rand is not safe for concurrent use.
type levelSource struct {
	mu     sync.Mutex
	rng    *rand.Rand
	levels int
}

func (s *levelSource) draw() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return hnsw.RandomLevel(s.rng, s.levels)
}

// NewIndexer creates an Indexer over the stores returned by open.
func NewIndexer(cfg config.Config, open storeOpener, locker lock.Locker, rng *rand.Rand, logger *slog.Logger) *Indexer {
	return &Indexer{
		cfg:    cfg,
		open:   open,
		locker: locker,
		logger: logger,
		levels: &levelSource{rng: rng, levels: cfg.Levels},
	}
}

// withLocker returns a copy of ix sharing its level source but using a
// different locking policy and store set.
func (ix *Indexer) withLocker(open storeOpener, locker lock.Locker) *Indexer {
	return &Indexer{cfg: ix.cfg, open: open, locker: locker, logger: ix.logger, levels: ix.levels}
}

func (ix *Indexer) validateVector(op string, vector []float32) error {
	if len(vector) != ix.cfg.Dimension {
		return errs.Wrap(op, errs.ErrValidation,
			fmt.Errorf("%w: expected %d, got %d", flatfile.ErrDimension, ix.cfg.Dimension, len(vector)))
	}
	return nil
}

// Insert stores vector under id and links it into the graph. An id that is
// already live is rejected with errs.ErrDuplicateKey; a deleted id may be
// reused and gets a new internal id.
func (ix *Indexer) Insert(ctx context.Context, id string, vector []float32, metadata any) (err error) {
	start := time.Now()
	defer func() { observe("insert", start, err) }()

	if err := flatfile.ValidateExternalID(id); err != nil {
		return err
	}
	if err := ix.validateVector("insert", vector); err != nil {
		return err
	}

	return ix.add(ctx, id, vector, metadata)
}

// add runs insert under the Indexer's locking policy on a store set from
// its opener. Input is assumed valid.
func (ix *Indexer) add(ctx context.Context, id string, vector []float32, metadata any) error {
	return withStores(ctx, ix.locker, lock.Exclusive, ix.open, ix.logger, func(set *flatfile.Set) error {
		internal, err := ix.insert(set, id, vector, metadata)
		if err != nil {
			return err
		}
		ix.logger.Debug("document inserted", "id", id, "internal_id", internal)
		return nil
	})
}

// insert runs the insertion algorithm on an already locked store set.
func (ix *Indexer) insert(set *flatfile.Set, id string, vector []float32, metadata any) (int32, error) {
	entry, found, err := set.Index.FindEntry(id)
	if err != nil {
		return 0, err
	}
	if found && !entry.Tombstoned() {
		return 0, errs.Wrap("insert", errs.ErrDuplicateKey, fmt.Errorf("id %q already exists", id))
	}

	loc := flatfile.NoPayload
	if metadata != nil {
		if loc, err = set.Payloads.Append(metadata); err != nil {
			return 0, err
		}
	}

	internal, err := set.Vectors.Append(id, vector)
	if err != nil {
		return 0, err
	}
	if found {
		if _, err := set.Index.UpdateWithPayload(id, internal, loc); err != nil {
			return 0, err
		}
	} else if err := set.Index.Insert(id, internal, loc); err != nil {
		return 0, err
	}

	engine := hnsw.New(set.Vectors, set.Graph, ix.cfg.M, ix.cfg.EfConstruction)
	if err := engine.Insert(internal, vector, ix.levels.draw()); err != nil {
		return 0, err
	}
	return internal, nil
}

// Delete tombstones id. It reports false, with no error, when id is absent
// or already deleted. Graph edges to the node are left in place.
func (ix *Indexer) Delete(ctx context.Context, id string) (deleted bool, err error) {
	start := time.Now()
	defer func() {
		if err == nil && !deleted {
			observe("delete", start, errs.Wrap("delete", errs.ErrNotFound, fmt.Errorf("id %q", id)))
			return
		}
		observe("delete", start, err)
	}()

	if err := flatfile.ValidateExternalID(id); err != nil {
		return false, err
	}

	err = withStores(ctx, ix.locker, lock.Exclusive, ix.open, ix.logger, func(set *flatfile.Set) error {
		internal, found, err := set.Index.Find(id)
		if err != nil || !found || internal == flatfile.NoID {
			return err
		}
		if err := set.Vectors.Delete(internal); err != nil {
			return err
		}
		if _, err := set.Index.Update(id, flatfile.NoID); err != nil {
			return err
		}
		deleted = true
		ix.logger.Debug("document deleted", "id", id, "internal_id", internal)
		return nil
	})
	return deleted, err
}
