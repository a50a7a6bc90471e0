package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/libsync/internal/logging"
	"github.com/dmitrijs2005/libsync/internal/server/storage"
	"github.com/robfig/cron"
)

const sweepBatch = 100

// Sweeper removes the objects of soft-deleted libraries whose prefix
// deletion failed at delete time.
type Sweeper struct {
	catalog LibraryCatalog
	store   storage.ObjectStore
	layout  storage.Layout
	log     logging.Logger
	cron    *cron.Cron
	batch   int
}

// NewSweeper returns a sweeper that purges up to 100 libraries per run.
func NewSweeper(catalog LibraryCatalog, store storage.ObjectStore, layout storage.Layout, log logging.Logger) *Sweeper {
	return &Sweeper{catalog: catalog, store: store, layout: layout, log: log, batch: sweepBatch}
}

// RunOnce purges one batch of pending libraries. It keeps going past
// individual failures and returns them joined. A failed library is stamped
// so the next batch starts with libraries not yet tried.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	pending, err := s.catalog.PendingPurge(ctx, s.batch)
	if err != nil {
		return 0, err
	}

	purged := 0
	var errs []error
	for _, lib := range pending {
		if err := ctx.Err(); err != nil {
			return purged, err
		}

		prefix := s.layout.LibraryPrefix(lib.OwnerID, lib.ID)
		if _, err := s.store.DeletePrefix(ctx, prefix); err != nil {
			errs = append(errs, err)
			if err := s.catalog.MarkPurgeAttempted(ctx, lib.ID); err != nil {
				s.log.Warn(ctx, "purge attempt not recorded", "library_id", lib.ID, "error", err)
			}
			continue
		}
		if err := s.catalog.MarkPurged(ctx, lib.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		purged++
	}

	if purged > 0 || len(errs) > 0 {
		s.log.Info(ctx, "orphan sweep finished", "purged", purged, "failed", len(errs))
	}
	return purged, errors.Join(errs...)
}

// Start schedules RunOnce. Runs never overlap.
func (s *Sweeper) Start(ctx context.Context, schedule string) error {
	running := make(chan struct{}, 1)

	c := cron.New()
	err := c.AddFunc(schedule, func() {
		select {
		case running <- struct{}{}:
		default:
			return
		}
		defer func() { <-running }()

		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Warn(ctx, "orphan sweep incomplete", "error", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron = c
	c.Start()
	return nil
}

// Stop halts the schedule. A run in progress is not interrupted.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}
