// Package bigquery mirrors settled bill records into an analytics
// dataset. The mirror is write-behind: the in-process store remains the
// source of truth and mirror failures never surface to the pipeline.
package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/billfeed/internal/domain"
)

type BillRow struct {
	BillID  int64  `bigquery:"bill_id"`  // REQUIRED
	EventID string `bigquery:"event_id"` // REQUIRED

	GroupID     bigquery.NullInt64 `bigquery:"group_id"` // NULLABLE, set for children
	IsDuplicate bool               `bigquery:"is_duplicate"`

	BillType string `bigquery:"bill_type"` // REQUIRED
	State    string `bigquery:"state"`     // REQUIRED

	OccurredDate civil.Date `bigquery:"occurred_date"` // REQUIRED
	OccurredTS   time.Time  `bigquery:"occurred_ts"`   // REQUIRED

	Amount   *big.Rat `bigquery:"amount"`   // REQUIRED NUMERIC
	Fee      *big.Rat `bigquery:"fee"`      // NULLABLE NUMERIC
	Currency string   `bigquery:"currency"` // NULLABLE

	ShopName bigquery.NullString `bigquery:"shop_name"` // NULLABLE
	ShopItem bigquery.NullString `bigquery:"shop_item"` // NULLABLE

	AccountFrom bigquery.NullString `bigquery:"account_from"` // NULLABLE
	AccountTo   bigquery.NullString `bigquery:"account_to"`   // NULLABLE

	BookName string `bigquery:"book_name"` // REQUIRED
	CateName string `bigquery:"cate_name"` // REQUIRED

	Channel  string              `bigquery:"channel"`   // NULLABLE
	RuleName bigquery.NullString `bigquery:"rule_name"` // NULLABLE
	Remark   bigquery.NullString `bigquery:"remark"`    // NULLABLE

	AutoFlag bool `bigquery:"auto_flag"`

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
	UpdatedTS time.Time `bigquery:"updated_ts"` // REQUIRED
}

// NewBillRow converts a persisted record into its mirror row.
func NewBillRow(rec domain.BillRecord, res domain.DedupResult) *BillRow {
	row := &BillRow{
		BillID:       rec.ID,
		EventID:      rec.EventID,
		IsDuplicate:  res.IsDuplicate(),
		BillType:     string(rec.Type),
		State:        string(rec.State),
		OccurredDate: civil.DateOf(rec.OccurredAt),
		OccurredTS:   rec.OccurredAt,
		Amount:       rec.Money.Rat(),
		Currency:     rec.Currency,
		ShopName:     nullString(rec.ShopName),
		ShopItem:     nullString(rec.ShopItem),
		AccountFrom:  nullString(rec.AccountFrom),
		AccountTo:    nullString(rec.AccountTo),
		BookName:     rec.BookName,
		CateName:     rec.CateName,
		Channel:      rec.Channel,
		RuleName:     nullString(rec.RuleName),
		Remark:       nullString(rec.Remark),
		AutoFlag:     rec.AutoFlag,
		CreatedTS:    rec.CreatedAt,
		UpdatedTS:    rec.UpdatedAt,
	}
	if !rec.Fee.IsZero() {
		row.Fee = rec.Fee.Rat()
	}
	if rec.IsChild() {
		row.GroupID = bigquery.NullInt64{Int64: rec.GroupID, Valid: true}
	}
	return row
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}
