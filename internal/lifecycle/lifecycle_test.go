package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/billfeed/internal/domain"
	"github.com/dvloznov/billfeed/internal/store/inmemory"
)

type recordedDecision struct {
	rec domain.BillRecord
	res domain.DedupResult
}

type recordingDispatcher struct {
	mu        sync.Mutex
	decisions []recordedDecision
	notify    chan struct{}
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{notify: make(chan struct{}, 16)}
}

func (d *recordingDispatcher) OnDecision(rec domain.BillRecord, res domain.DedupResult) {
	d.mu.Lock()
	d.decisions = append(d.decisions, recordedDecision{rec: rec, res: res})
	d.mu.Unlock()
	d.notify <- struct{}{}
}

func (d *recordingDispatcher) wait(t *testing.T) recordedDecision {
	t.Helper()
	select {
	case <-d.notify:
	case <-time.After(time.Second):
		t.Fatal("dispatcher was not notified")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.decisions[len(d.decisions)-1]
}

func insertBill(t *testing.T, s *inmemory.Store, autoFlag bool, ruleName string) domain.BillRecord {
	t.Helper()
	rec, err := s.Insert(context.Background(), domain.BillRecord{
		BillCandidate: domain.BillCandidate{
			Type:     domain.BillExpend,
			Money:    decimal.RequireFromString("12.50"),
			RuleName: ruleName,
			AutoFlag: autoFlag,
		},
		GroupID: domain.UngroupedID,
		State:   domain.StateWait2Edit,
		EventID: "ev-1",
	})
	require.NoError(t, err)
	return rec
}

func TestSettle_WaitsForUserByDefault(t *testing.T) {
	s := inmemory.NewStore()
	d := newRecordingDispatcher()
	c := NewController(s, nil, d)

	rec := insertBill(t, s, false, "bank-sms")

	settled, err := c.Settle(context.Background(), rec, domain.DedupResult{Status: domain.DedupNew}, domain.MatchedByRule)
	require.NoError(t, err)
	assert.Equal(t, domain.StateWait2Edit, settled.State)

	decision := d.wait(t)
	assert.Equal(t, domain.StateWait2Edit, decision.rec.State)
}

func TestSettle_AutoFlagCommits(t *testing.T) {
	s := inmemory.NewStore()
	d := newRecordingDispatcher()
	c := NewController(s, nil, d)

	rec := insertBill(t, s, true, "bank-sms")

	settled, err := c.Settle(context.Background(), rec, domain.DedupResult{Status: domain.DedupNew}, domain.MatchedByRule)
	require.NoError(t, err)
	assert.Equal(t, domain.StateEdited, settled.State)

	decision := d.wait(t)
	assert.Equal(t, domain.StateEdited, decision.rec.State)
}

func TestSettle_TrustedRuleCommits(t *testing.T) {
	s := inmemory.NewStore()
	trusted := func(name string) bool { return name == "bank-sms" }
	c := NewController(s, trusted, nil)

	rec := insertBill(t, s, false, "bank-sms")

	settled, err := c.Settle(context.Background(), rec, domain.DedupResult{Status: domain.DedupNew}, domain.MatchedByRule)
	require.NoError(t, err)
	assert.Equal(t, domain.StateEdited, settled.State)
}

func TestSettle_AICandidateNeverTrusted(t *testing.T) {
	s := inmemory.NewStore()
	trusted := func(string) bool { return true }
	c := NewController(s, trusted, nil)

	rec := insertBill(t, s, false, "gemini generated")

	settled, err := c.Settle(context.Background(), rec, domain.DedupResult{Status: domain.DedupNew}, domain.MatchedByAI)
	require.NoError(t, err)
	assert.Equal(t, domain.StateWait2Edit, settled.State)
}

func TestConfirm_AppliesEdits(t *testing.T) {
	s := inmemory.NewStore()
	c := NewController(s, nil, nil)

	rec := insertBill(t, s, false, "bank-sms")

	edits := rec.BillCandidate
	edits.CateName = "Food"
	updated, err := c.Confirm(context.Background(), rec.ID, &edits)
	require.NoError(t, err)
	assert.Equal(t, domain.StateEdited, updated.State)
	assert.Equal(t, "Food", updated.CateName)
}

func TestConfirm_IdempotentWithoutEdits(t *testing.T) {
	s := inmemory.NewStore()
	c := NewController(s, nil, nil)

	rec := insertBill(t, s, false, "bank-sms")

	_, err := c.Confirm(context.Background(), rec.ID, nil)
	require.NoError(t, err)
	again, err := c.Confirm(context.Background(), rec.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StateEdited, again.State)
}

func TestConfirm_SyncedBillRejected(t *testing.T) {
	s := inmemory.NewStore()
	c := NewController(s, nil, nil)

	rec := insertBill(t, s, false, "bank-sms")
	_, err := c.Confirm(context.Background(), rec.ID, nil)
	require.NoError(t, err)
	_, err = c.MarkSynced(context.Background(), rec.ID)
	require.NoError(t, err)

	edits := rec.BillCandidate
	_, err = c.Confirm(context.Background(), rec.ID, &edits)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
}

func TestMarkSynced_RequiresEdited(t *testing.T) {
	s := inmemory.NewStore()
	c := NewController(s, nil, nil)

	rec := insertBill(t, s, false, "bank-sms")

	_, err := c.MarkSynced(context.Background(), rec.ID)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))

	_, err = c.Confirm(context.Background(), rec.ID, nil)
	require.NoError(t, err)

	synced, err := c.MarkSynced(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSynced, synced.State)

	// Repeat is a no-op.
	again, err := c.MarkSynced(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSynced, again.State)
}

func TestMarkSynced_NotFound(t *testing.T) {
	c := NewController(inmemory.NewStore(), nil, nil)

	_, err := c.MarkSynced(context.Background(), 99)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
