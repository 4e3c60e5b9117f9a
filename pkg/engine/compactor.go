package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/sanonone/vektor/pkg/config"
	"github.com/sanonone/vektor/pkg/errs"
	"github.com/sanonone/vektor/pkg/lock"
	"github.com/sanonone/vektor/pkg/metrics"
	"github.com/sanonone/vektor/pkg/storage/flatfile"
)

// Compactor rebuilds all stores from the live records. It holds the
// exclusive lock for the whole run, so readers and writers wait for it.
type Compactor struct {
	cfg     config.Config
	locker  lock.Locker
	indexer *Indexer
	logger  *slog.Logger
}

// NewCompactor creates a Compactor. indexer provides the insertion algorithm
// and level source used for the rebuild.
func NewCompactor(cfg config.Config, locker lock.Locker, indexer *Indexer, logger *slog.Logger) *Compactor {
	return &Compactor{cfg: cfg, locker: locker, indexer: indexer, logger: logger}
}

// Run writes a fresh generation of the stores into *.tmp files by
// reinserting every active record, then moves the current files to *.bak
// and the new ones into place. Any previous backups are removed first.
func (c *Compactor) Run(ctx context.Context) (err error) {
	start := time.Now()
	runID := uuid.NewString()
	log := c.logger.With("run_id", runID)
	defer func() {
		observe("optimize", start, err)
		if err != nil {
			log.Error("compaction failed", "error", err)
		}
	}()

	current := c.cfg.Paths()
	tmp := current.WithSuffix(config.TempSuffix)
	bak := current.WithSuffix(config.BackupSuffix)

	if err := ctx.Err(); err != nil {
		return err
	}
	handle, err := c.locker.Acquire(lock.Exclusive)
	if err != nil {
		return err
	}
	defer func() {
		if err := handle.Release(); err != nil {
			log.Error("failed to release database lock", "error", err)
		}
	}()

	log.Info("compaction started", "data_dir", c.cfg.DataDir)

	if err := removeAll(tmp.All()); err != nil {
		return err
	}

	copied, err := c.rebuild(ctx, current, tmp, log)
	if err != nil {
		// The active files are untouched; drop the partial generation.
		if rmErr := removeAll(tmp.All()); rmErr != nil {
			log.Warn("could not remove temporary files", "error", rmErr)
		}
		return err
	}

	if err := removeAll(bak.All()); err != nil {
		return err
	}
	if err := renameAll(current.All(), bak.All(), true); err != nil {
		return err
	}
	if err := renameAll(tmp.All(), current.All(), false); err != nil {
		return err
	}

	metrics.CompactionRecords.Add(float64(copied))
	log.Info("compaction finished", "records", copied, "duration", time.Since(start))
	return nil
}

// rebuild copies the active records of src into a fresh store set at dst
// and returns how many were copied. Both sets are closed on return.
func (c *Compactor) rebuild(ctx context.Context, src, dst config.Paths, log *slog.Logger) (int, error) {
	source, err := flatfile.OpenSet(src, c.cfg)
	if err != nil {
		return 0, err
	}
	defer source.Close()

	target, err := flatfile.OpenSet(dst, c.cfg)
	if err != nil {
		return 0, err
	}
	defer target.Close()

	// The exclusive lock is already held; reinsertion must not take it again.
	ix := c.indexer.withLocker(func() (*flatfile.Set, error) { return target.Borrow(), nil }, lock.Noop{})

	scanner, err := source.Vectors.Scan()
	if err != nil {
		return 0, err
	}
	defer scanner.Close()

	copied := 0
	for scanner.Next() {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		rec := scanner.Record()

		md, err := readMetadata(source, rec)
		if err != nil {
			return copied, err
		}
		if err := ix.add(ctx, rec.ExternalID, rec.Vector, md); err != nil {
			if errors.Is(err, errs.ErrDuplicateKey) {
				log.Warn("skipping duplicate active record", "id", rec.ExternalID, "internal_id", rec.InternalID)
				continue
			}
			return copied, fmt.Errorf("reinsert %q: %w", rec.ExternalID, err)
		}
		copied++
	}

	if err := target.Sync(); err != nil {
		return copied, fmt.Errorf("sync compacted stores: %w", err)
	}
	return copied, nil
}

func removeAll(paths []string) error {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

// renameAll renames from[i] to to[i]. With optional set, missing sources are skipped.
func renameAll(from, to []string, optional bool) error {
	for i := range from {
		if err := os.Rename(from[i], to[i]); err != nil {
			if optional && errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("rename %s: %w", from[i], err)
		}
	}
	return nil
}
