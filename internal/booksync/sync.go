// Package booksync exports edited bills to the user's Notion ledger
// and marks them synced. The exporter is pull-based: it scans the
// store, so a crashed run simply resumes on the next pass.
package booksync

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/billfeed/internal/domain"
	"github.com/dvloznov/billfeed/internal/lifecycle"
	"github.com/dvloznov/billfeed/internal/logger"
	"github.com/dvloznov/billfeed/internal/store"
)

// Syncer pushes edited bills into one Notion database.
type Syncer struct {
	store   store.BillStore
	control *lifecycle.Controller
	notion  NotionService
	dbID    string
}

// NewSyncer creates a Syncer.
func NewSyncer(st store.BillStore, control *lifecycle.Controller, notion NotionService, dbID string) *Syncer {
	return &Syncer{store: st, control: control, notion: notion, dbID: dbID}
}

// SyncEdited exports all edited bills that are not yet in Notion and
// moves them to synced. Children of dedup groups are skipped; the
// parent carries the group's single ledger entry. Returns the number
// of bills exported.
func (s *Syncer) SyncEdited(ctx context.Context, dryRun bool) (int, error) {
	log := logger.Component(ctx, "booksync")

	bills, err := s.store.List(ctx, store.BillFilter{State: domain.StateEdited})
	if err != nil {
		return 0, fmt.Errorf("list edited bills: %w", err)
	}

	existing, err := s.existingBillIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("query existing pages: %w", err)
	}

	var exported, skipped int
	for _, bill := range bills {
		if bill.IsChild() {
			skipped++
			continue
		}
		if existing[bill.ID] {
			// Page exists from an earlier crashed run; just settle the state.
			if !dryRun {
				if _, err := s.control.MarkSynced(ctx, bill.ID); err != nil {
					log.Warn().Err(err).Int64("bill_id", bill.ID).Msg("failed to mark synced")
				}
			}
			skipped++
			continue
		}

		if dryRun {
			log.Info().Int64("bill_id", bill.ID).Msg("[DRY RUN] would export bill")
			exported++
			continue
		}

		page, err := s.notion.CreatePage(ctx, s.dbID, BillToNotionProperties(bill))
		if err != nil {
			log.Warn().Err(err).Int64("bill_id", bill.ID).Msg("failed to create Notion page")
			continue
		}

		if _, err := s.control.MarkSynced(ctx, bill.ID); err != nil {
			// The page exists but the state did not advance; the next
			// pass finds the page and settles the state.
			log.Warn().Err(err).Int64("bill_id", bill.ID).Msg("exported but failed to mark synced")
			continue
		}

		log.Info().
			Int64("bill_id", bill.ID).
			Str("page_id", string(page.ID)).
			Msg("exported bill")
		exported++
	}

	log.Info().
		Int("exported", exported).
		Int("skipped", skipped).
		Int("total", len(bills)).
		Msg("book sync completed")

	return exported, nil
}

// Run loops SyncEdited until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SyncEdited(ctx, false); err != nil {
				log := logger.Component(ctx, "booksync")
				log.Error().Err(err).Msg("sync pass failed")
			}
		}
	}
}

// existingBillIDs pages through the Notion database and collects the
// bill ids already exported.
func (s *Syncer) existingBillIDs(ctx context.Context) (map[int64]bool, error) {
	ids := make(map[int64]bool)
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{PageSize: 100}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := s.notion.QueryDatabase(ctx, s.dbID, req)
		if err != nil {
			return nil, err
		}

		for _, page := range resp.Results {
			if id := extractBillID(page); id != 0 {
				ids[id] = true
			}
		}

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return ids, nil
}
