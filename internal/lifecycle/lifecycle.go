// Package lifecycle drives bill records through their editing states
// and notifies downstream consumers of settled decisions. States only
// move forward: wait2edit -> edited -> synced.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/dvloznov/billfeed/internal/domain"
	"github.com/dvloznov/billfeed/internal/logger"
	"github.com/dvloznov/billfeed/internal/store"
)

// Dispatcher receives the settled decision for one ingested event.
// Implementations must not block the pipeline; the controller invokes
// OnDecision on its own goroutine and ignores the outcome.
type Dispatcher interface {
	OnDecision(rec domain.BillRecord, res domain.DedupResult)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(rec domain.BillRecord, res domain.DedupResult)

func (f DispatcherFunc) OnDecision(rec domain.BillRecord, res domain.DedupResult) {
	f(rec, res)
}

// Multi fans a decision out to several dispatchers. Nil entries are
// skipped.
func Multi(dispatchers ...Dispatcher) Dispatcher {
	var active []Dispatcher
	for _, d := range dispatchers {
		if d != nil {
			active = append(active, d)
		}
	}
	if len(active) == 0 {
		return nil
	}
	return DispatcherFunc(func(rec domain.BillRecord, res domain.DedupResult) {
		for _, d := range active {
			d.OnDecision(rec, res)
		}
	})
}

// TrustFunc reports whether a rule's candidates may skip user review.
type TrustFunc func(ruleName string) bool

// Controller owns state transitions for persisted bills.
type Controller struct {
	store      store.BillStore
	trusted    TrustFunc
	dispatcher Dispatcher // nil: decisions are not announced
}

// NewController creates a Controller. A nil trusted func trusts nothing.
func NewController(st store.BillStore, trusted TrustFunc, dispatcher Dispatcher) *Controller {
	if trusted == nil {
		trusted = func(string) bool { return false }
	}
	return &Controller{store: st, trusted: trusted, dispatcher: dispatcher}
}

// Settle finalizes a freshly persisted record: auto-accepted bills move
// straight to edited, the rest wait for the user. The decision is then
// announced to the dispatcher without blocking the caller.
func (c *Controller) Settle(ctx context.Context, rec domain.BillRecord, res domain.DedupResult, matchedBy domain.MatchedBy) (domain.BillRecord, error) {
	if c.autoAccept(rec, matchedBy) {
		updated, err := c.Confirm(ctx, rec.ID, nil)
		if err != nil {
			return domain.BillRecord{}, fmt.Errorf("auto-accept bill %d: %w", rec.ID, err)
		}
		log := logger.Component(ctx, "lifecycle")
		log.Info().
			Int64("bill_id", rec.ID).
			Str("rule_name", rec.RuleName).
			Msg("bill auto-accepted")
		rec = updated
	}

	c.dispatch(rec, res)
	return rec, nil
}

// autoAccept: the classifier flagged the bill, or a trusted rule
// produced it. AI candidates are never trusted.
func (c *Controller) autoAccept(rec domain.BillRecord, matchedBy domain.MatchedBy) bool {
	if rec.AutoFlag {
		return true
	}
	return matchedBy == domain.MatchedByRule && c.trusted(rec.RuleName)
}

// Confirm moves a bill from wait2edit to edited, applying the user's
// edits when given. Confirming an already edited bill is a no-op so
// retries stay safe.
func (c *Controller) Confirm(ctx context.Context, id int64, edits *domain.BillCandidate) (domain.BillRecord, error) {
	rec, err := c.store.Get(ctx, id)
	if err != nil {
		return domain.BillRecord{}, err
	}

	switch rec.State {
	case domain.StateWait2Edit:
	case domain.StateEdited:
		if edits == nil {
			return rec, nil
		}
	default:
		return domain.BillRecord{}, fmt.Errorf("confirm bill %d in state %s: %w", id, rec.State, domain.ErrInvalidTransition)
	}

	if edits != nil {
		rec.BillCandidate = *edits
	}
	rec.State = domain.StateEdited

	return c.store.Update(ctx, rec)
}

// MarkSynced records that the book-sync collaborator exported the bill.
func (c *Controller) MarkSynced(ctx context.Context, id int64) (domain.BillRecord, error) {
	rec, err := c.store.Get(ctx, id)
	if err != nil {
		return domain.BillRecord{}, err
	}

	switch rec.State {
	case domain.StateEdited:
	case domain.StateSynced:
		return rec, nil
	default:
		return domain.BillRecord{}, fmt.Errorf("sync bill %d in state %s: %w", id, rec.State, domain.ErrInvalidTransition)
	}

	rec.State = domain.StateSynced
	return c.store.Update(ctx, rec)
}

func (c *Controller) dispatch(rec domain.BillRecord, res domain.DedupResult) {
	if c.dispatcher == nil {
		return
	}
	go c.dispatcher.OnDecision(rec, res)
}
