// Package dedup groups near-simultaneous captures of the same payment.
// Every incoming bill is persisted first, then matched against a
// sliding fingerprint window; later captures become children of the
// earliest record with the same fingerprint.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/billfeed/internal/domain"
	"github.com/dvloznov/billfeed/internal/logger"
	"github.com/dvloznov/billfeed/internal/store"
)

// lockShards bounds lock contention: fingerprints are striped over this
// many mutexes, so unrelated bills never serialize on each other while
// two captures of the same payment always do.
const lockShards = 64

// Engine is the deduplication core. Safe for concurrent use.
type Engine struct {
	store   store.BillStore
	classes ChannelClasses
	window  *window
	shards  [lockShards]chan struct{}
	now     func() time.Time
}

// NewEngine creates an Engine. A non-positive ttl falls back to
// DefaultWindow; a nil classes map treats every channel as its own
// class.
func NewEngine(st store.BillStore, classes ChannelClasses, ttl time.Duration) *Engine {
	e := &Engine{
		store:   st,
		classes: classes,
		window:  newWindow(ttl),
		now:     time.Now,
	}
	for i := range e.shards {
		e.shards[i] = make(chan struct{}, 1)
	}
	return e
}

// lockShard acquires the stripe for a fingerprint, honoring ctx so a
// cancelled submission does not queue behind a slow insert.
func (e *Engine) lockShard(ctx context.Context, fp uint64) (unlock func(), err error) {
	shard := e.shards[fp%lockShards]
	select {
	case shard <- struct{}{}:
		return func() { <-shard }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Process persists a candidate and resolves its dedup verdict. The
// record is always inserted before matching, so a crash between insert
// and grouping loses only the grouping, never the bill. Storage
// failures abort the pipeline for this event.
func (e *Engine) Process(ctx context.Context, cand domain.BillCandidate, eventID string) (domain.BillRecord, domain.DedupResult, error) {
	fp := Fingerprint(cand, e.classes)

	unlock, err := e.lockShard(ctx, fp)
	if err != nil {
		return domain.BillRecord{}, domain.DedupResult{}, err
	}
	defer unlock()

	rec, err := e.store.Insert(ctx, domain.BillRecord{
		BillCandidate: cand,
		GroupID:       domain.UngroupedID,
		State:         domain.StateWait2Edit,
		EventID:       eventID,
	})
	if err != nil {
		return domain.BillRecord{}, domain.DedupResult{}, fmt.Errorf("insert bill for event %s: %w: %w", eventID, domain.ErrPersistence, err)
	}

	now := e.now()
	result := domain.DedupResult{Status: domain.DedupNew, Fingerprint: fp}

	entry, live := e.window.lookup(fp, now)
	switch {
	case live && entry.eventID != eventID:
		rec.GroupID = entry.parentID
		rec, err = e.store.Update(ctx, rec)
		if err != nil {
			return domain.BillRecord{}, domain.DedupResult{}, fmt.Errorf("group bill %d under %d: %w: %w", rec.ID, entry.parentID, domain.ErrPersistence, err)
		}
		result.Status = domain.DedupDuplicate
		result.ParentID = entry.parentID

		log := logger.Component(ctx, "dedup")
		log.Info().
			Int64("bill_id", rec.ID).
			Int64("parent_id", entry.parentID).
			Str("event_id", eventID).
			Msg("grouped duplicate capture")

	case live:
		// Same event seen again inside the window, typically a replay.
		// The original entry keeps the window; the record stands alone.

	default:
		e.window.record(fp, rec.ID, eventID, now)
	}

	return rec, result, nil
}

// StartSweeper launches a background sweep of expired window entries
// until ctx is cancelled. Lazy expiry already keeps lookups correct;
// the sweeper only bounds memory for fingerprints never seen again.
func (e *Engine) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultWindow
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := e.window.sweep(e.now()); removed > 0 {
					log := logger.Component(ctx, "dedup")
					log.Debug().
						Int("removed", removed).
						Int("live", e.window.size()).
						Msg("swept expired fingerprints")
				}
			}
		}
	}()
}
