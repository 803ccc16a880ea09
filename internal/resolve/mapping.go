package resolve

import (
	"fmt"
	"regexp"
	"sort"
)

// Mapper canonicalizes a user-facing name. Implementations may be
// backed by tables or remote stores; a lookup failure is non-fatal and
// the resolver falls back to passthrough.
type Mapper interface {
	Map(name string) (string, error)
}

// MappingRule is one ordered regex rewrite: lower Sort runs first, the
// first matching rule wins.
type MappingRule struct {
	Pattern string `yaml:"pattern"`
	Target  string `yaml:"target"`
	Sort    int    `yaml:"sort"`
}

type compiledMapping struct {
	MappingRule
	re *regexp.Regexp
}

// NameMapping resolves names by exact lookup first, then by ordered
// regex rules. Unmapped names pass through unchanged. Names that are
// already canonical targets are never rewritten again, which keeps the
// mapping idempotent even when targets overlap rule patterns.
type NameMapping struct {
	exact   map[string]string
	rules   []compiledMapping
	targets map[string]bool
}

// NewNameMapping compiles a mapping table.
func NewNameMapping(exact map[string]string, rules []MappingRule) (*NameMapping, error) {
	m := &NameMapping{
		exact:   make(map[string]string, len(exact)),
		targets: make(map[string]bool),
	}

	for from, to := range exact {
		m.exact[from] = to
		m.targets[to] = true
	}

	compiled := make([]compiledMapping, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("mapping rule %q: %w", r.Pattern, err)
		}
		compiled = append(compiled, compiledMapping{MappingRule: r, re: re})
		m.targets[r.Target] = true
	}
	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Sort < compiled[j].Sort
	})
	m.rules = compiled

	return m, nil
}

// Map implements Mapper.
func (m *NameMapping) Map(name string) (string, error) {
	if name == "" || m.targets[name] {
		return name, nil
	}
	if to, ok := m.exact[name]; ok {
		return to, nil
	}
	for _, r := range m.rules {
		if r.re.MatchString(name) {
			return r.Target, nil
		}
	}
	return name, nil
}
