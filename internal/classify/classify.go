// Package classify turns raw events into bill candidates. It runs the
// per-source rule script first and falls back to the AI classifier when
// no rule matched. Exactly one classifier produces a candidate.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/billfeed/internal/domain"
	"github.com/dvloznov/billfeed/internal/logger"
	"github.com/dvloznov/billfeed/internal/script"
)

// epochFence is the sanity bound for extracted timestamps. Anything
// earlier is an artifact of a bad extraction and is clamped to now.
var epochFence = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Classifier is the AI fallback collaborator. A nil candidate with a
// nil error means the provider declined to produce one.
type Classifier interface {
	// Provider names the backing model, used for ruleName tagging.
	Provider() string

	// Classify extracts a candidate from a payload given the known
	// category names. May fail or time out; the chain swallows both.
	Classify(ctx context.Context, payload string, categories []string) (*domain.BillCandidate, error)
}

// CategorySource lists the category names offered to the AI classifier.
type CategorySource interface {
	ListCategories(ctx context.Context) ([]string, error)
}

// StaticCategories is a fixed CategorySource, typically built from the
// configured category table.
type StaticCategories []string

// ListCategories implements CategorySource.
func (s StaticCategories) ListCategories(ctx context.Context) ([]string, error) {
	return s, nil
}

// Chain is the two-step classifier: rule script, then AI fallback.
type Chain struct {
	runner     *script.Runner
	rules      *script.RuleSet
	ai         Classifier
	categories CategorySource
	aiEnabled  bool
	now        func() time.Time
}

// NewChain builds a classifier chain. ai may be nil to disable the
// fallback entirely; aiEnabled gates it at runtime without rebuilding.
func NewChain(runner *script.Runner, rules *script.RuleSet, ai Classifier, categories CategorySource, aiEnabled bool) *Chain {
	return &Chain{
		runner:     runner,
		rules:      rules,
		ai:         ai,
		categories: categories,
		aiEnabled:  aiEnabled,
		now:        time.Now,
	}
}

// Classify resolves an event into a candidate. fromReplay disables the
// AI fallback: replayed payloads were already offered to it once.
func (c *Chain) Classify(ctx context.Context, event domain.RawEvent, fromReplay bool) (domain.BillCandidate, domain.MatchedBy, error) {
	log := logger.Component(ctx, "classify")

	// Step 1: per-source rule script.
	if s, ok := c.rules.Lookup(event.SourceApp, event.SourceType); ok {
		out, err := c.runner.Run(ctx, s, event.Payload)
		switch {
		case err == nil && out != "":
			cand, perr := c.parseRuleOutput(out, event)
			if perr != nil {
				return domain.BillCandidate{}, "", perr
			}
			return cand, domain.MatchedByRule, nil
		case errors.Is(err, domain.ErrScriptTimeout):
			log.Warn().Err(err).Str("event_id", event.EventID).Msg("rule script timed out, treating as no match")
		case err != nil:
			if ctx.Err() != nil {
				return domain.BillCandidate{}, "", err
			}
			log.Warn().Err(err).Str("event_id", event.EventID).Msg("rule script failed, treating as no match")
		}
	}

	// Step 2: AI fallback, unless disabled or replaying queued data.
	if c.ai != nil && c.aiEnabled && !fromReplay {
		if cand, ok := c.classifyWithAI(ctx, event); ok {
			return cand, domain.MatchedByAI, nil
		}
	}

	return domain.BillCandidate{}, "", fmt.Errorf("classify event %s: %w", event.EventID, domain.ErrNoMatch)
}

func (c *Chain) parseRuleOutput(out string, event domain.RawEvent) (domain.BillCandidate, error) {
	var cand domain.BillCandidate
	if err := json.Unmarshal([]byte(out), &cand); err != nil {
		return domain.BillCandidate{}, fmt.Errorf("parse rule output for event %s: %w", event.EventID, err)
	}
	if cand.Channel == "" {
		cand.Channel = fmt.Sprintf("%s/%s", event.SourceApp, event.SourceType)
	}
	c.fenceTime(&cand, event.ReceivedAt)
	return cand, nil
}

func (c *Chain) classifyWithAI(ctx context.Context, event domain.RawEvent) (domain.BillCandidate, bool) {
	log := logger.Component(ctx, "classify")

	var categories []string
	if c.categories != nil {
		var err error
		categories, err = c.categories.ListCategories(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("listing categories for AI classifier")
		}
	}

	cand, err := c.ai.Classify(ctx, event.Payload, categories)
	if err != nil {
		// AI failures never escalate; the chain reports no-match instead.
		log.Warn().Err(err).Str("event_id", event.EventID).Msg("AI classifier failed")
		return domain.BillCandidate{}, false
	}
	if cand == nil {
		return domain.BillCandidate{}, false
	}

	// Model output is noise when it carries no amount or no paying
	// account; negative amounts are sign mistakes, not refunds.
	if cand.Money.IsZero() || cand.AccountFrom == "" {
		log.Debug().Str("event_id", event.EventID).Msg("rejecting AI candidate without amount or account")
		return domain.BillCandidate{}, false
	}
	if cand.Money.IsNegative() {
		cand.Money = cand.Money.Neg()
	}

	cand.RuleName = c.ai.Provider() + " generated"
	if cand.Channel == "" {
		cand.Channel = fmt.Sprintf("%s/%s", event.SourceApp, event.SourceType)
	}
	c.fenceTime(cand, event.ReceivedAt)
	return *cand, true
}

// fenceTime clamps pre-epoch timestamps from untrusted extraction and
// defaults missing ones to the capture time.
func (c *Chain) fenceTime(cand *domain.BillCandidate, receivedAt time.Time) {
	switch {
	case cand.OccurredAt.IsZero():
		cand.OccurredAt = receivedAt
	case cand.OccurredAt.Before(epochFence):
		cand.OccurredAt = c.now()
	}
}
