// Package reaper periodically evicts events older than the retention
// window from both stores.
package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loglite/loglite/internal/searchindex"
	"github.com/loglite/loglite/internal/storage"
)

// selectLimit is the per-tick cap on how many expired ids are selected.
const selectLimit = 10000

// Reaper deletes expired events from PrimaryStore and SearchIndex in
// lock-step, primary first.
type Reaper struct {
	events storage.EventStore
	index  *searchindex.Index
	log    *slog.Logger

	interval  time.Duration
	retention time.Duration
}

// New returns a Reaper. retention <= 0 disables eviction entirely.
func New(events storage.EventStore, index *searchindex.Index, log *slog.Logger, interval, retention time.Duration) *Reaper {
	return &Reaper{events: events, index: index, log: log, interval: interval, retention: retention}
}

// Run blocks, ticking every interval until ctx is canceled. Each tick's
// error is logged and swallowed; the reaper never stops on a store error.
func (r *Reaper) Run(ctx context.Context) {
	if r.retention <= 0 {
		r.log.InfoContext(ctx, "reaper disabled: non-positive retention")

		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.tick(ctx); err != nil {
				r.log.ErrorContext(ctx, "reaper tick failed", "error", err)
			}
		}
	}
}

// tick evicts one batch of expired events, returning the first error
// encountered. Primary is deleted before the index: a crash in between
// leaves only the index stale, which the next cycle's delete-by-term
// repairs idempotently and which the query planner never surfaces because
// it always joins back to primary.
func (r *Reaper) tick(ctx context.Context) error {
	cutoff := time.Now().Add(-r.retention)

	ids, err := r.events.SelectIDsOlderThan(ctx, "", cutoff, selectLimit)
	if err != nil {
		return fmt.Errorf("select expired ids: %w", err)
	}

	if len(ids) == 0 {
		return nil
	}

	if err := r.events.DeleteByIDs(ctx, ids); err != nil {
		return fmt.Errorf("delete expired events: %w", err)
	}

	err = r.index.WithWriter(func() error {
		for _, id := range ids {
			if err := r.index.DeleteByIDTerm(id); err != nil {
				return fmt.Errorf("delete index term %d: %w", id, err)
			}
		}

		return r.index.Commit()
	})
	if err != nil {
		return fmt.Errorf("commit index deletes: %w", err)
	}

	if err := r.index.Reload(); err != nil {
		return fmt.Errorf("reload index: %w", err)
	}

	r.log.InfoContext(ctx, "reaper evicted expired events", "count", len(ids), "cutoff", cutoff)

	return nil
}
