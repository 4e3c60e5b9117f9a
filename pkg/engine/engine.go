// Package engine provides the embedded interface of a vektor database.
//
// It composes the flat-file stores and the HNSW engine into the three
// orchestrators (Indexer, Searcher, Compactor) and exposes them through DB.
// Nothing is cached between operations: every call acquires the database
// lock, opens the stores, does its work and closes them again, so several
// processes can share one data directory.
//
// Basic usage:
//
//	cfg := config.Default()
//	cfg.DataDir = "./data"
//	db, err := engine.Open(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = db.Insert(ctx, "doc-1", vec, map[string]any{"title": "hello"})
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/sanonone/vektor/pkg/config"
	"github.com/sanonone/vektor/pkg/errs"
	"github.com/sanonone/vektor/pkg/lock"
	"github.com/sanonone/vektor/pkg/metrics"
	"github.com/sanonone/vektor/pkg/storage/flatfile"
)

// Option customizes a DB.
type Option func(*options)

type options struct {
	logger *slog.Logger
	rng    *rand.Rand
	locker lock.Locker
}

// WithLogger sets the logger used by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRand sets the source of insertion levels. Tests use it to get a
// reproducible graph.
func WithRand(r *rand.Rand) Option {
	return func(o *options) { o.rng = r }
}

// WithLocker replaces the file lock in DataDir.
func WithLocker(l lock.Locker) Option {
	return func(o *options) { o.locker = l }
}

// DB is a handle on one data directory. It is safe for concurrent use and
// holds no open files between calls.
type DB struct {
	cfg       config.Config
	logger    *slog.Logger
	indexer   *Indexer
	searcher  *Searcher
	compactor *Compactor
}

// Open validates cfg, creates DataDir if missing and wires the components.
func Open(cfg config.Config, opts ...Option) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	o := options{
		logger: slog.Default(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		locker: lock.NewFileLocker(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(&o)
	}

	open := func() (*flatfile.Set, error) { return flatfile.OpenSet(cfg.Paths(), cfg) }
	indexer := NewIndexer(cfg, open, o.locker, o.rng, o.logger)
	return &DB{
		cfg:       cfg,
		logger:    o.logger,
		indexer:   indexer,
		searcher:  NewSearcher(cfg, open, o.locker, o.logger),
		compactor: NewCompactor(cfg, o.locker, indexer, o.logger),
	}, nil
}

// Config returns the configuration the DB was opened with.
func (db *DB) Config() config.Config {
	return db.cfg
}

// Insert adds a document. metadata may be nil.
func (db *DB) Insert(ctx context.Context, id string, vector []float32, metadata any) error {
	return db.indexer.Insert(ctx, id, vector, metadata)
}

// Delete tombstones a document and reports whether it was live.
func (db *DB) Delete(ctx context.Context, id string) (bool, error) {
	return db.indexer.Delete(ctx, id)
}

// Search returns up to k live documents most similar to vector.
func (db *DB) Search(ctx context.Context, vector []float32, k int, opts SearchOptions) ([]Result, error) {
	return db.searcher.Search(ctx, vector, k, opts)
}

// Optimize rebuilds every store from the live records.
func (db *DB) Optimize(ctx context.Context) error {
	return db.compactor.Run(ctx)
}

// Stats reports store sizes, record counts and parameters.
func (db *DB) Stats(ctx context.Context) (Stats, error) {
	return db.indexer.Stats(ctx)
}

// storeOpener opens the store set one operation works on.
type storeOpener func() (*flatfile.Set, error)

// withStores runs fn holding the lock in mode with a freshly opened store set.
func withStores(ctx context.Context, locker lock.Locker, mode lock.Mode, open storeOpener, logger *slog.Logger, fn func(*flatfile.Set) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	handle, err := locker.Acquire(mode)
	metrics.LockWait.WithLabelValues(mode.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	defer func() {
		if err := handle.Release(); err != nil {
			logger.Error("failed to release database lock", "mode", mode, "error", err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	set, err := open()
	if err != nil {
		return err
	}
	defer set.Close()
	return fn(set)
}

// observe records the outcome and duration of one operation.
func observe(op string, start time.Time, err error) {
	metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.OperationsTotal.WithLabelValues(op, statusOf(err)).Inc()
}

func statusOf(err error) string {
	if err == nil {
		return "ok"
	}
	switch errs.KindOf(err) {
	case errs.ErrValidation:
		return "validation"
	case errs.ErrDuplicateKey:
		return "duplicate"
	case errs.ErrNotFound:
		return "not_found"
	case errs.ErrCorruption:
		return "corruption"
	case errs.ErrLock:
		return "lock"
	}
	return "error"
}
