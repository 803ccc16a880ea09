// Package resolve canonicalizes classified candidates: it fills in
// missing book/category assignments, rewrites account and category
// names through mapping tables, and renders the human-readable remark.
// The whole stage is a pure, idempotent transform.
package resolve

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/billfeed/internal/domain"
	"github.com/dvloznov/billfeed/internal/logger"
	"github.com/dvloznov/billfeed/internal/script"
)

// Fallback assignment when no category script is configured or the
// script fails.
const (
	DefaultBook     = "default book"
	DefaultCategory = "uncategorized"
)

// uncategorizedSentinels are category values that mean "not assigned
// yet" rather than a real category.
var uncategorizedSentinels = map[string]bool{
	"":              true,
	"uncategorized": true,
	"other":         true,
	"unknown":       true,
}

// RemarkFunc renders the user-facing remark from resolved fields. It
// must be deterministic over its input.
type RemarkFunc func(cand domain.BillCandidate) string

// DefaultRemark joins shop name and item, falling back to the channel.
func DefaultRemark(cand domain.BillCandidate) string {
	switch {
	case cand.ShopName != "" && cand.ShopItem != "":
		return cand.ShopName + " - " + cand.ShopItem
	case cand.ShopName != "":
		return cand.ShopName
	case cand.ShopItem != "":
		return cand.ShopItem
	default:
		return cand.Channel
	}
}

// Resolver maps candidate shop/category/account strings to canonical
// book/category/asset identifiers.
type Resolver struct {
	runner     *script.Runner
	category   script.CategoryScript // nil: skip straight to defaults
	assets     Mapper
	categories Mapper
	remark     RemarkFunc
}

// New creates a Resolver. Any collaborator may be nil; the resolver
// degrades to passthrough or defaults for the missing piece.
func New(runner *script.Runner, category script.CategoryScript, assets, categories Mapper, remark RemarkFunc) *Resolver {
	if remark == nil {
		remark = DefaultRemark
	}
	return &Resolver{
		runner:     runner,
		category:   category,
		assets:     assets,
		categories: categories,
		remark:     remark,
	}
}

// Resolve canonicalizes a candidate. Re-running it on an already
// resolved candidate does not change the result.
func (r *Resolver) Resolve(ctx context.Context, cand domain.BillCandidate) domain.BillCandidate {
	log := logger.Component(ctx, "resolve")

	if uncategorizedSentinels[strings.ToLower(strings.TrimSpace(cand.CateName))] {
		cand.BookName, cand.CateName = r.assignCategory(ctx, cand)
	}
	if cand.BookName == "" {
		cand.BookName = DefaultBook
	}

	cand.AccountFrom = r.mapName(r.assets, cand.AccountFrom, "asset", log)
	cand.AccountTo = r.mapName(r.assets, cand.AccountTo, "asset", log)
	cand.CateName = r.mapName(r.categories, cand.CateName, "category", log)

	cand.Remark = r.remark(cand)
	return cand
}

// assignCategory runs the category classification script, falling back
// to the default pair on any failure.
func (r *Resolver) assignCategory(ctx context.Context, cand domain.BillCandidate) (book, category string) {
	if r.category == nil {
		return orDefaultBook(cand.BookName), DefaultCategory
	}

	res, err := r.runner.Classify(ctx, r.category, script.CategoryInput{
		Type:      cand.Type,
		Money:     cand.Money,
		ShopName:  cand.ShopName,
		ShopItem:  cand.ShopItem,
		TimeOfDay: cand.OccurredAt.Hour(),
	})
	if err != nil || res.Category == "" {
		if err != nil {
			log := logger.Component(ctx, "resolve")
			log.Debug().Err(err).
				Str("shop_name", cand.ShopName).
				Msg("category script failed, using defaults")
		}
		return orDefaultBook(cand.BookName), DefaultCategory
	}

	if res.Book == "" {
		res.Book = orDefaultBook(cand.BookName)
	}
	return res.Book, res.Category
}

func orDefaultBook(book string) string {
	if book == "" {
		return DefaultBook
	}
	return book
}

// mapName applies a mapper, degrading to passthrough when the lookup
// fails. Mapping failures never abort resolution.
func (r *Resolver) mapName(m Mapper, name, kind string, log zerolog.Logger) string {
	if m == nil || name == "" {
		return name
	}
	mapped, err := m.Map(name)
	if err != nil {
		log.Warn().Err(err).Str("kind", kind).Str("name", name).Msg("mapping lookup failed, passing through")
		return name
	}
	return mapped
}
