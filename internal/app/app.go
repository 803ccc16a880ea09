// Package app assembles the pipeline and its collaborators from
// configuration. Both the API server and the CLI build the same App.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dvloznov/billfeed/internal/archive"
	"github.com/dvloznov/billfeed/internal/booksync"
	"github.com/dvloznov/billfeed/internal/classify"
	"github.com/dvloznov/billfeed/internal/config"
	"github.com/dvloznov/billfeed/internal/dedup"
	infraBQ "github.com/dvloznov/billfeed/internal/infra/bigquery"
	"github.com/dvloznov/billfeed/internal/ingest"
	jobsinmemory "github.com/dvloznov/billfeed/internal/jobs/inmemory"
	"github.com/dvloznov/billfeed/internal/lifecycle"
	"github.com/dvloznov/billfeed/internal/resolve"
	"github.com/dvloznov/billfeed/internal/script"
	"github.com/dvloznov/billfeed/internal/store"
	"github.com/dvloznov/billfeed/internal/store/inmemory"
)

// App holds the assembled pipeline and its supporting infrastructure.
type App struct {
	Config   *config.Config
	Store    store.BillStore
	Rules    *script.RuleSet
	Pipeline *ingest.Pipeline
	Control  *lifecycle.Controller
	Engine   *dedup.Engine
	Mirror   *infraBQ.BillMirror // nil unless BigQuery is configured
	Syncer   *booksync.Syncer    // nil unless Notion is configured
	JobStore *jobsinmemory.Store
	Queue    *jobsinmemory.Queue

	closers []io.Closer
}

// Build assembles an App from configuration.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	rules, err := cfg.BuildRuleSet()
	if err != nil {
		return nil, fmt.Errorf("build rule set: %w", err)
	}
	a.Rules = rules

	categoryScript, err := cfg.BuildCategoryScript()
	if err != nil {
		return nil, fmt.Errorf("build category script: %w", err)
	}

	assets, categories, err := cfg.BuildMappings()
	if err != nil {
		return nil, fmt.Errorf("build mappings: %w", err)
	}

	runner := script.NewRunner(time.Duration(cfg.Pipeline.ScriptTimeout))

	var ai classify.Classifier
	if cfg.AI.Enabled {
		ai = classify.NewGeminiClassifier(cfg.AI.APIKey, cfg.AI.Model, 30*time.Second)
	}

	var categoryNames classify.StaticCategories
	for _, kw := range cfg.Category.Keywords {
		categoryNames = append(categoryNames, kw.Category)
	}

	chain := classify.NewChain(runner, rules, ai, categoryNames, cfg.AI.Enabled)
	resolver := resolve.New(runner, categoryScript, assets, categories, nil)

	billStore := inmemory.NewStore()
	a.Store = billStore

	a.Engine = dedup.NewEngine(billStore, cfg.ChannelClasses(), time.Duration(cfg.Pipeline.DedupWindow))

	var dispatchers []lifecycle.Dispatcher
	if cfg.BigQuery.ProjectID != "" {
		mirror, err := infraBQ.NewBillMirror(ctx, cfg.BigQuery.ProjectID, cfg.BigQuery.Dataset, cfg.BigQuery.Table)
		if err != nil {
			return nil, fmt.Errorf("build bill mirror: %w", err)
		}
		a.closers = append(a.closers, mirror)
		dispatchers = append(dispatchers, mirror)
		a.Mirror = mirror
	}

	a.Control = lifecycle.NewController(billStore, rules.IsTrusted, lifecycle.Multi(dispatchers...))

	var archiver archive.Archiver
	if cfg.Archive.Bucket != "" {
		gcs, err := archive.NewGCSArchiver(ctx, cfg.Archive.Bucket)
		if err != nil {
			return nil, fmt.Errorf("build archiver: %w", err)
		}
		a.closers = append(a.closers, gcs)
		archiver = gcs
	}

	a.Pipeline = ingest.New(chain, resolver, a.Engine, a.Control, archiver)

	if cfg.Notion.Token != "" && cfg.Notion.DatabaseID != "" {
		notion := booksync.NewNotionClient(cfg.Notion.Token)
		a.Syncer = booksync.NewSyncer(billStore, a.Control, notion, cfg.Notion.DatabaseID)
	}

	a.JobStore = jobsinmemory.NewStore()
	a.Queue = jobsinmemory.NewQueue(cfg.Queue.Buffer, cfg.Queue.Workers, a.JobStore)

	return a, nil
}

// Close releases clients held by the App.
func (a *App) Close() {
	for _, c := range a.closers {
		_ = c.Close()
	}
}
