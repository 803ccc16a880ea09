package script

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/billfeed/internal/domain"
)

// PatternRule declares one regex extraction rule. Rules are evaluated
// lowest Priority first; the first whose Match expression matches the
// payload wins. The expression may carry named capture groups that
// populate candidate fields:
//
//	(?P<money>...)   amount, required for a usable candidate
//	(?P<shop>...)    shop name
//	(?P<item>...)    shop item
//	(?P<account>...) paying account
type PatternRule struct {
	Name        string          `yaml:"name"`
	Match       string          `yaml:"match"`
	Type        domain.BillType `yaml:"type"`
	Channel     string          `yaml:"channel"`
	AccountFrom string          `yaml:"account_from"`
	AccountTo   string          `yaml:"account_to"`
	BookName    string          `yaml:"book_name"`
	CateName    string          `yaml:"cate_name"`
	Currency    string          `yaml:"currency"`
	AutoFlag    bool            `yaml:"auto_flag"`
	Priority    int             `yaml:"priority"`
}

type compiledRule struct {
	PatternRule
	re *regexp.Regexp
}

// PatternScript is a precompiled rule-table implementation of Script.
// It stands in for the host-embedded script runtime in deployments that
// only need declarative extraction rules.
type PatternScript struct {
	name  string
	rules []compiledRule
}

// NewPatternScript compiles a rule table into a Script.
func NewPatternScript(name string, rules []PatternRule) (*PatternScript, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Match)
		if err != nil {
			return nil, fmt.Errorf("pattern rule %q: %w", r.Name, err)
		}
		compiled = append(compiled, compiledRule{PatternRule: r, re: re})
	}
	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Priority < compiled[j].Priority
	})
	return &PatternScript{name: name, rules: compiled}, nil
}

// Name implements Script. For a winning rule the candidate's ruleName
// is the rule's own name, not the table name.
func (p *PatternScript) Name() string {
	return p.name
}

// Run implements Script: first matching rule wins, no match yields "".
func (p *PatternScript) Run(payload string) (string, error) {
	for _, r := range p.rules {
		m := r.re.FindStringSubmatch(payload)
		if m == nil {
			continue
		}

		cand := domain.BillCandidate{
			Type:        r.Type,
			Channel:     r.Channel,
			AccountFrom: r.AccountFrom,
			AccountTo:   r.AccountTo,
			BookName:    r.BookName,
			CateName:    r.CateName,
			Currency:    r.Currency,
			RuleName:    r.Name,
			AutoFlag:    r.AutoFlag,
		}

		for i, name := range r.re.SubexpNames() {
			if i == 0 || name == "" || m[i] == "" {
				continue
			}
			switch name {
			case "money":
				money, err := decimal.NewFromString(m[i])
				if err != nil {
					return "", fmt.Errorf("pattern rule %q: bad money capture %q: %w", r.Name, m[i], err)
				}
				cand.Money = money
			case "shop":
				cand.ShopName = m[i]
			case "item":
				cand.ShopItem = m[i]
			case "account":
				cand.AccountFrom = m[i]
			}
		}

		if cand.Money.IsZero() {
			// A rule that matched but extracted no amount is useless;
			// fall through to lower-priority rules.
			continue
		}

		out, err := json.Marshal(cand)
		if err != nil {
			return "", fmt.Errorf("pattern rule %q: %w", r.Name, err)
		}
		return string(out), nil
	}
	return "", nil
}

// KeywordCategoryRule maps a shop keyword to a book/category pair.
type KeywordCategoryRule struct {
	Keyword  string `yaml:"keyword"`
	Book     string `yaml:"book"`
	Category string `yaml:"category"`
}

// KeywordCategoryScript is a keyword-table implementation of
// CategoryScript: the first rule whose keyword appears in the shop name
// or shop item wins.
type KeywordCategoryScript struct {
	rules []compiledKeywordRule
}

type compiledKeywordRule struct {
	KeywordCategoryRule
	re *regexp.Regexp
}

// NewKeywordCategoryScript compiles a keyword table. Keywords are
// treated as case-insensitive literals.
func NewKeywordCategoryScript(rules []KeywordCategoryRule) (*KeywordCategoryScript, error) {
	compiled := make([]compiledKeywordRule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(r.Keyword))
		if err != nil {
			return nil, fmt.Errorf("keyword rule %q: %w", r.Keyword, err)
		}
		compiled = append(compiled, compiledKeywordRule{KeywordCategoryRule: r, re: re})
	}
	return &KeywordCategoryScript{rules: compiled}, nil
}

// Classify implements CategoryScript.
func (k *KeywordCategoryScript) Classify(in CategoryInput) (CategoryResult, error) {
	haystack := in.ShopName + " " + in.ShopItem
	for _, r := range k.rules {
		if r.re.MatchString(haystack) {
			return CategoryResult{Book: r.Book, Category: r.Category}, nil
		}
	}
	return CategoryResult{}, fmt.Errorf("no keyword rule matched %q", in.ShopName)
}
