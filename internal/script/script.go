// Package script defines the contracts for the sandboxed classification
// scripts and enforces their wall-clock budgets. The script runtime
// itself is an external collaborator: from the pipeline's point of view
// a script is a pure function with no shared mutable state.
package script

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/billfeed/internal/domain"
)

// Script is a per-source rule script. It receives the raw payload and
// returns a JSON-encoded bill candidate, or the empty string when the
// payload does not match.
type Script interface {
	// Name identifies the rule, used for ruleName tagging and the
	// trusted-rule lookup.
	Name() string

	// Run evaluates the payload. Empty string means "no match" and is
	// distinct from an error.
	Run(payload string) (string, error)
}

// CategoryInput is the fact set handed to a category script.
type CategoryInput struct {
	Type      domain.BillType `json:"type"`
	Money     decimal.Decimal `json:"money"`
	ShopName  string          `json:"shop_name"`
	ShopItem  string          `json:"shop_item"`
	TimeOfDay int             `json:"time_of_day"` // hour 0..23
}

// CategoryResult is a book/category pair assigned by a category script.
type CategoryResult struct {
	Book     string `json:"book"`
	Category string `json:"category"`
}

// CategoryScript assigns a book and category to an uncategorized
// candidate. Like Script it is a pure function behind a timeout.
type CategoryScript interface {
	Classify(in CategoryInput) (CategoryResult, error)
}

// DefaultTimeout bounds a single script call.
const DefaultTimeout = 3 * time.Second

// Runner executes scripts under a hard wall-clock budget. A timed-out
// script is reported as ErrScriptTimeout; callers treat that as "no
// match", never as a crash. The script goroutine is abandoned on
// timeout: scripts are pure, so nothing leaks but the goroutine until
// it returns.
type Runner struct {
	timeout time.Duration
}

// NewRunner creates a Runner. A non-positive timeout falls back to
// DefaultTimeout.
func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{timeout: timeout}
}

type runResult struct {
	out string
	err error
}

// Run executes a rule script against a payload within the budget.
func (r *Runner) Run(ctx context.Context, s Script, payload string) (string, error) {
	ch := make(chan runResult, 1)
	go func() {
		out, err := s.Run(payload)
		ch <- runResult{out: out, err: err}
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return "", fmt.Errorf("rule script %q: %w", s.Name(), res.err)
		}
		return res.out, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", fmt.Errorf("rule script %q after %s: %w", s.Name(), r.timeout, domain.ErrScriptTimeout)
	}
}

type categoryRunResult struct {
	out CategoryResult
	err error
}

// Classify executes a category script within the budget.
func (r *Runner) Classify(ctx context.Context, cs CategoryScript, in CategoryInput) (CategoryResult, error) {
	ch := make(chan categoryRunResult, 1)
	go func() {
		out, err := cs.Classify(in)
		ch <- categoryRunResult{out: out, err: err}
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return CategoryResult{}, fmt.Errorf("category script: %w", res.err)
		}
		return res.out, nil
	case <-ctx.Done():
		return CategoryResult{}, ctx.Err()
	case <-timer.C:
		return CategoryResult{}, fmt.Errorf("category script after %s: %w", r.timeout, domain.ErrScriptTimeout)
	}
}
