// Package retention deletes stored objects that have outlived their
// configured age.
//
// A sweep deletes the ledger row before the bytes: a retrieval racing the
// sweep then sees a clean not-found instead of a read error. A crash between
// the two steps can leave an orphaned file behind, which is invisible to
// callers (no row points at it) and can be reclaimed by hand.
package retention

import (
	"fmt"
	"sync"
	"time"

	"github.com/dropgate/dropgate/internal/metadata"
	"github.com/dropgate/dropgate/internal/storage"
	"github.com/dropgate/dropgate/pkg/logging"
	"github.com/dropgate/dropgate/pkg/metrics"
)

// Sweeper removes expired objects from the ledger and the object store.
type Sweeper struct {
	ledger *metadata.Ledger
	store  storage.Store
	maxAge time.Duration

	now func() time.Time
}

// NewSweeper creates a sweeper that expires objects older than maxAge.
func NewSweeper(ledger *metadata.Ledger, store storage.Store, maxAge time.Duration) *Sweeper {
	return &Sweeper{
		ledger: ledger,
		store:  store,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Sweep removes every object older than the configured retention age and
// returns how many were deleted. Sweeping is idempotent: a second pass over
// the same objects deletes nothing further.
func (s *Sweeper) Sweep() (int, error) {
	return s.SweepOlderThan(s.maxAge)
}

// SweepOlderThan removes every object whose creation time is more than age
// in the past. A failure on one object is logged and does not abort the
// batch; the returned count covers successful deletions only.
func (s *Sweeper) SweepOlderThan(age time.Duration) (int, error) {
	cutoff := s.now().Add(-age)

	// Collect ids first: the scan holds a read transaction and badger does
	// not allow deletes inside it.
	var ids []string
	err := s.ledger.ForEachOlderThan(cutoff, func(id string) error {
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan expired records: %w", err)
	}

	deleted := 0
	for _, id := range ids {
		existed, err := s.ledger.Delete(id)
		if err != nil {
			logging.Log.WithError(err).WithField("id", id).Warn("could not delete expired record")
			continue
		}
		if !existed {
			// Someone else already removed it; nothing left to count.
			continue
		}
		if _, err := s.store.Delete(id); err != nil {
			logging.Log.WithError(err).WithField("id", id).Warn("could not delete expired object bytes")
		}
		deleted++
		metrics.SweptObjectsTotal.Inc()
	}

	if deleted > 0 {
		logging.Log.WithField("deleted", deleted).Info("retention sweep completed")
	}
	return deleted, nil
}

// Runner runs periodic sweeps in the background until stopped.
type Runner struct {
	sweeper  *Sweeper
	interval time.Duration
	stopChan chan bool
	wg       sync.WaitGroup
}

// NewRunner wraps a sweeper with a periodic schedule.
func NewRunner(sweeper *Sweeper, interval time.Duration) *Runner {
	return &Runner{
		sweeper:  sweeper,
		interval: interval,
		stopChan: make(chan bool),
	}
}

// Start launches the background sweep loop.
func (r *Runner) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := r.sweeper.Sweep(); err != nil {
					logging.Log.WithError(err).Error("scheduled retention sweep failed")
				}
			case <-r.stopChan:
				return
			}
		}
	}()
}

// Stop halts the sweep loop and waits for it to exit.
func (r *Runner) Stop() {
	close(r.stopChan)
	r.wg.Wait()
}
