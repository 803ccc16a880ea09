package script

import (
	"sync"

	"github.com/dvloznov/billfeed/internal/domain"
)

// ruleKey addresses a script by origin: which app produced the payload
// and through which channel it was captured.
type ruleKey struct {
	SourceApp  string
	SourceType domain.SourceType
}

// RuleSet is the registry of rule scripts keyed by (sourceApp,
// sourceType), plus the trusted-rule list used for the auto-commit
// decision. Safe for concurrent use; registration normally happens at
// startup but hot-reloading rules is allowed.
type RuleSet struct {
	mu      sync.RWMutex
	scripts map[ruleKey]Script
	trusted map[string]bool
}

// NewRuleSet creates an empty RuleSet.
func NewRuleSet() *RuleSet {
	return &RuleSet{
		scripts: make(map[ruleKey]Script),
		trusted: make(map[string]bool),
	}
}

// Register binds a script to a source. A later registration for the
// same source replaces the earlier one.
func (rs *RuleSet) Register(sourceApp string, sourceType domain.SourceType, s Script) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.scripts[ruleKey{SourceApp: sourceApp, SourceType: sourceType}] = s
}

// Lookup returns the script registered for a source, if any.
func (rs *RuleSet) Lookup(sourceApp string, sourceType domain.SourceType) (Script, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	s, ok := rs.scripts[ruleKey{SourceApp: sourceApp, SourceType: sourceType}]
	return s, ok
}

// MarkTrusted flags a rule name as allowed to auto-commit without user
// confirmation.
func (rs *RuleSet) MarkTrusted(ruleNames ...string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, name := range ruleNames {
		rs.trusted[name] = true
	}
}

// IsTrusted reports whether a matched rule may auto-commit.
func (rs *RuleSet) IsTrusted(ruleName string) bool {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.trusted[ruleName]
}
