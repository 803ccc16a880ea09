package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillType is the direction of money movement.
type BillType string

const (
	BillExpend   BillType = "expend"
	BillIncome   BillType = "income"
	BillTransfer BillType = "transfer"
)

// BillState is the lifecycle state of a persisted bill.
// Transitions only move forward: Wait2Edit -> Edited -> Synced.
type BillState string

const (
	// StateWait2Edit means the bill is awaiting user confirmation.
	StateWait2Edit BillState = "wait2edit"
	// StateEdited means the bill was confirmed by the user or auto-accepted.
	StateEdited BillState = "edited"
	// StateSynced means the book-sync collaborator confirmed the export.
	StateSynced BillState = "synced"
)

// MatchedBy records which classifier produced a candidate.
type MatchedBy string

const (
	MatchedByRule MatchedBy = "rule"
	MatchedByAI   MatchedBy = "ai"
)

// BillCandidate is a classified but not yet persisted bill. It is
// produced by exactly one classifier and mutated only by the resolver
// (book/category/account canonicalization) before reaching the dedup
// engine.
type BillCandidate struct {
	Type        BillType        `json:"type"`
	Money       decimal.Decimal `json:"money"`
	Fee         decimal.Decimal `json:"fee"`
	ShopName    string          `json:"shop_name"`
	ShopItem    string          `json:"shop_item"`
	AccountFrom string          `json:"account_from"`
	AccountTo   string          `json:"account_to"`
	Currency    string          `json:"currency"`
	Channel     string          `json:"channel"`
	BookName    string          `json:"book_name"`
	CateName    string          `json:"cate_name"`
	Remark      string          `json:"remark"`
	RuleName    string          `json:"rule_name"`
	OccurredAt  time.Time       `json:"occurred_at"`
	AutoFlag    bool            `json:"auto_flag"`
}

// UngroupedID marks a bill that is not a child of any dedup group.
const UngroupedID int64 = -1

// BillRecord is the persisted form of a candidate. GroupID > 0 points
// at a parent record whose own GroupID is UngroupedID; parent/child
// chains are exactly one level deep.
type BillRecord struct {
	BillCandidate

	ID         int64     `json:"id"`
	GroupID    int64     `json:"group_id"`
	State      BillState `json:"state"`
	ExtendData string    `json:"extend_data"`
	EventID    string    `json:"event_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsChild reports whether the record was grouped under a parent.
func (r *BillRecord) IsChild() bool {
	return r.GroupID > 0
}

// DedupStatus is the dedup engine's verdict for one incoming bill.
type DedupStatus string

const (
	DedupNew       DedupStatus = "new"
	DedupDuplicate DedupStatus = "duplicate"
)

// DedupResult carries the verdict plus, for duplicates, the parent id.
type DedupResult struct {
	Status      DedupStatus `json:"status"`
	ParentID    int64       `json:"parent_id,omitempty"`
	Fingerprint uint64      `json:"fingerprint"`
}

// IsDuplicate reports whether the bill was grouped under an earlier one.
func (r DedupResult) IsDuplicate() bool {
	return r.Status == DedupDuplicate
}
