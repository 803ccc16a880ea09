package bigquery

import (
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/dvloznov/billfeed/internal/domain"
)

func TestNewBillRow(t *testing.T) {
	occurred := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)

	rec := domain.BillRecord{
		BillCandidate: domain.BillCandidate{
			Type:        domain.BillExpend,
			Money:       decimal.RequireFromString("45.50"),
			ShopName:    "Starbucks",
			AccountFrom: "CMB Credit Card",
			Currency:    "CNY",
			Channel:     "bank-sms",
			BookName:    "daily",
			CateName:    "Coffee",
			RuleName:    "bank-sms-debit",
			OccurredAt:  occurred,
		},
		ID:      7,
		GroupID: 3,
		State:   domain.StateEdited,
		EventID: "ev-1",
	}

	row := NewBillRow(rec, domain.DedupResult{Status: domain.DedupDuplicate, ParentID: 3})

	assert.Equal(t, int64(7), row.BillID)
	assert.True(t, row.IsDuplicate)
	assert.True(t, row.GroupID.Valid)
	assert.Equal(t, int64(3), row.GroupID.Int64)
	assert.Equal(t, "expend", row.BillType)
	assert.Equal(t, "edited", row.State)
	assert.Equal(t, "2025-06-01", row.OccurredDate.String())
	assert.Zero(t, row.Amount.Cmp(big.NewRat(4550, 100)))
	assert.Nil(t, row.Fee, "zero fee stays null")
	assert.True(t, row.ShopName.Valid)
	assert.False(t, row.ShopItem.Valid, "empty strings stay null")
}

func TestNewBillRow_Parent(t *testing.T) {
	rec := domain.BillRecord{
		BillCandidate: domain.BillCandidate{
			Type:  domain.BillIncome,
			Money: decimal.RequireFromString("100"),
		},
		ID:      1,
		GroupID: domain.UngroupedID,
		State:   domain.StateWait2Edit,
	}

	row := NewBillRow(rec, domain.DedupResult{Status: domain.DedupNew})
	assert.False(t, row.GroupID.Valid, "parents mirror with a null group")
	assert.False(t, row.IsDuplicate)
}
