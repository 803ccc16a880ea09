package dedup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/billfeed/internal/domain"
	"github.com/dvloznov/billfeed/internal/store"
	"github.com/dvloznov/billfeed/internal/store/inmemory"
)

func cardSwipe(channel string) domain.BillCandidate {
	return domain.BillCandidate{
		Type:    domain.BillExpend,
		Money:   decimal.RequireFromString("45.00"),
		Channel: channel,
	}
}

func testClasses() ChannelClasses {
	return ChannelClasses{
		"bank-sms":          "bank",
		"bank-notification": "bank",
	}
}

func TestEngine_ThreeCapturesSingleLevelGroup(t *testing.T) {
	e := NewEngine(inmemory.NewStore(), testClasses(), time.Minute)
	ctx := context.Background()

	parent, res, err := e.Process(ctx, cardSwipe("bank-sms"), "ev-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DedupNew, res.Status)
	assert.Equal(t, domain.UngroupedID, parent.GroupID)

	second, res, err := e.Process(ctx, cardSwipe("bank-notification"), "ev-2")
	require.NoError(t, err)
	assert.Equal(t, domain.DedupDuplicate, res.Status)
	assert.Equal(t, parent.ID, res.ParentID)
	assert.Equal(t, parent.ID, second.GroupID)

	third, res, err := e.Process(ctx, cardSwipe("bank-sms"), "ev-3")
	require.NoError(t, err)
	assert.Equal(t, domain.DedupDuplicate, res.Status)
	assert.Equal(t, parent.ID, third.GroupID, "later captures attach to the earliest record, never to another child")

	stored, err := e.store.Get(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UngroupedID, stored.GroupID, "parent never becomes a child")
}

func TestEngine_CrossChannelCaptureWithinWindow(t *testing.T) {
	e := NewEngine(inmemory.NewStore(), testClasses(), DefaultWindow)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return base }

	sms := cardSwipe("bank-sms")
	sms.Money = decimal.RequireFromString("50.00")
	first, res, err := e.Process(ctx, sms, "ev-sms")
	require.NoError(t, err)
	require.Equal(t, domain.DedupNew, res.Status)

	// The bank's push arrives 3s after its SMS for the same swipe.
	e.now = func() time.Time { return base.Add(3 * time.Second) }
	push := cardSwipe("bank-notification")
	push.Money = decimal.RequireFromString("50.00")
	second, res, err := e.Process(ctx, push, "ev-push")
	require.NoError(t, err)
	assert.Equal(t, domain.DedupDuplicate, res.Status)
	assert.Equal(t, first.ID, res.ParentID)
	assert.Equal(t, first.ID, second.GroupID)

	stored, err := e.store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UngroupedID, stored.GroupID)
}

func TestEngine_DistinctFingerprintsStayUngrouped(t *testing.T) {
	e := NewEngine(inmemory.NewStore(), testClasses(), time.Minute)
	ctx := context.Background()

	_, res, err := e.Process(ctx, cardSwipe("bank-sms"), "ev-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DedupNew, res.Status)

	other := cardSwipe("bank-sms")
	other.Money = decimal.RequireFromString("45.01")
	_, res, err = e.Process(ctx, other, "ev-2")
	require.NoError(t, err)
	assert.Equal(t, domain.DedupNew, res.Status)
}

func TestEngine_WindowExpiry(t *testing.T) {
	e := NewEngine(inmemory.NewStore(), testClasses(), time.Minute)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return base }

	first, res, err := e.Process(ctx, cardSwipe("bank-sms"), "ev-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DedupNew, res.Status)

	e.now = func() time.Time { return base.Add(2 * time.Minute) }

	second, res, err := e.Process(ctx, cardSwipe("bank-sms"), "ev-2")
	require.NoError(t, err)
	assert.Equal(t, domain.DedupNew, res.Status, "fingerprint expired, same payment shape is a new bill")
	assert.Equal(t, domain.UngroupedID, second.GroupID)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestEngine_DuplicateDoesNotExtendWindow(t *testing.T) {
	e := NewEngine(inmemory.NewStore(), testClasses(), time.Minute)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return base }

	_, _, err := e.Process(ctx, cardSwipe("bank-sms"), "ev-1")
	require.NoError(t, err)

	e.now = func() time.Time { return base.Add(50 * time.Second) }
	_, res, err := e.Process(ctx, cardSwipe("bank-sms"), "ev-2")
	require.NoError(t, err)
	require.Equal(t, domain.DedupDuplicate, res.Status)

	// 70s after the duplicate but beyond the first sighting's window.
	e.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, res, err = e.Process(ctx, cardSwipe("bank-sms"), "ev-3")
	require.NoError(t, err)
	assert.Equal(t, domain.DedupNew, res.Status)
}

func TestEngine_SameEventReplayNotGrouped(t *testing.T) {
	e := NewEngine(inmemory.NewStore(), testClasses(), time.Minute)
	ctx := context.Background()

	first, res, err := e.Process(ctx, cardSwipe("bank-sms"), "ev-1")
	require.NoError(t, err)
	require.Equal(t, domain.DedupNew, res.Status)

	replayed, res, err := e.Process(ctx, cardSwipe("bank-sms"), "ev-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DedupNew, res.Status)
	assert.Equal(t, domain.UngroupedID, replayed.GroupID)

	// The original sighting still owns the window.
	_, res, err = e.Process(ctx, cardSwipe("bank-sms"), "ev-2")
	require.NoError(t, err)
	assert.Equal(t, domain.DedupDuplicate, res.Status)
	assert.Equal(t, first.ID, res.ParentID)
}

type failingStore struct {
	store.BillStore
	insertErr error
	updateErr error
}

func (f *failingStore) Insert(ctx context.Context, rec domain.BillRecord) (domain.BillRecord, error) {
	if f.insertErr != nil {
		return domain.BillRecord{}, f.insertErr
	}
	return f.BillStore.Insert(ctx, rec)
}

func (f *failingStore) Update(ctx context.Context, rec domain.BillRecord) (domain.BillRecord, error) {
	if f.updateErr != nil {
		return domain.BillRecord{}, f.updateErr
	}
	return f.BillStore.Update(ctx, rec)
}

func TestEngine_InsertFailureAborts(t *testing.T) {
	e := NewEngine(&failingStore{
		BillStore: inmemory.NewStore(),
		insertErr: errors.New("connection reset"),
	}, nil, time.Minute)

	_, _, err := e.Process(context.Background(), cardSwipe("bank-sms"), "ev-1")
	assert.True(t, errors.Is(err, domain.ErrPersistence))
}

func TestEngine_GroupingUpdateFailureAborts(t *testing.T) {
	fs := &failingStore{BillStore: inmemory.NewStore()}
	e := NewEngine(fs, nil, time.Minute)
	ctx := context.Background()

	_, _, err := e.Process(ctx, cardSwipe("bank-sms"), "ev-1")
	require.NoError(t, err)

	fs.updateErr = errors.New("connection reset")
	_, _, err = e.Process(ctx, cardSwipe("bank-sms"), "ev-2")
	assert.True(t, errors.Is(err, domain.ErrPersistence))
}

func TestEngine_ConcurrentSameFingerprint(t *testing.T) {
	e := NewEngine(inmemory.NewStore(), testClasses(), time.Minute)
	ctx := context.Background()

	const n = 16
	results := make([]domain.DedupResult, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, res, err := e.Process(ctx, cardSwipe("bank-sms"), fmt.Sprintf("ev-%d", i))
			require.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	var parents int
	var parentID int64
	for _, res := range results {
		if res.Status == domain.DedupNew {
			parents++
		} else if parentID == 0 {
			parentID = res.ParentID
		} else {
			assert.Equal(t, parentID, res.ParentID, "all duplicates share one parent")
		}
	}
	assert.Equal(t, 1, parents, "exactly one capture wins the race")
}

func TestEngine_CancelledContext(t *testing.T) {
	e := NewEngine(inmemory.NewStore(), nil, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Hold the shard so the lock acquisition has to wait on ctx.
	fp := Fingerprint(cardSwipe("bank-sms"), nil)
	e.shards[fp%lockShards] <- struct{}{}
	defer func() { <-e.shards[fp%lockShards] }()

	_, _, err := e.Process(ctx, cardSwipe("bank-sms"), "ev-1")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestWindow_Sweep(t *testing.T) {
	w := newWindow(time.Minute)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	w.record(1, 10, "ev-1", base)
	w.record(2, 20, "ev-2", base.Add(30*time.Second))

	removed := w.sweep(base.Add(70 * time.Second))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, w.size())

	_, ok := w.lookup(2, base.Add(70*time.Second))
	assert.True(t, ok)
}
