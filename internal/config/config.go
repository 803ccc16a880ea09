// Package config loads the billfeed.yaml configuration and builds the
// rule tables and mapping tables the pipeline is assembled from.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dvloznov/billfeed/internal/dedup"
	"github.com/dvloznov/billfeed/internal/domain"
	"github.com/dvloznov/billfeed/internal/resolve"
	"github.com/dvloznov/billfeed/internal/script"
)

// Config represents the top-level billfeed.yaml configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Queue    QueueConfig    `yaml:"queue"`
	AI       AIConfig       `yaml:"ai"`
	Archive  ArchiveConfig  `yaml:"archive"`
	BigQuery BigQueryConfig `yaml:"bigquery"`
	Notion   NotionConfig   `yaml:"notion"`
	Rules    []RuleTable    `yaml:"rules,omitempty"`
	Category CategoryConfig `yaml:"category"`
	Mappings MappingsConfig `yaml:"mappings"`
}

// ServerConfig controls the HTTP ingress.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Duration wraps time.Duration so "90s" style values parse from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"90s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// PipelineConfig tunes the classification and dedup stages.
type PipelineConfig struct {
	ScriptTimeout  Duration          `yaml:"script_timeout"`
	DedupWindow    Duration          `yaml:"dedup_window"`
	ChannelClasses map[string]string `yaml:"channel_classes,omitempty"`
}

// QueueConfig sizes the in-memory ingestion queue.
type QueueConfig struct {
	Buffer  int `yaml:"buffer"`
	Workers int `yaml:"workers"`
}

// AIConfig controls the AI classification fallback.
type AIConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

// ArchiveConfig points at the raw payload archive. An empty bucket
// disables archival.
type ArchiveConfig struct {
	Bucket string `yaml:"bucket,omitempty"`
}

// BigQueryConfig points at the analytics mirror. An empty project
// disables mirroring.
type BigQueryConfig struct {
	ProjectID string `yaml:"project_id,omitempty"`
	Dataset   string `yaml:"dataset,omitempty"`
	Table     string `yaml:"table,omitempty"`
}

// NotionConfig points at the book-sync target. An empty token disables
// the exporter.
type NotionConfig struct {
	Token      string `yaml:"token,omitempty"`
	DatabaseID string `yaml:"database_id,omitempty"`
}

// RuleTable binds a pattern-rule script to one capture source.
type RuleTable struct {
	SourceApp  string               `yaml:"source_app"`
	SourceType string               `yaml:"source_type"`
	Name       string               `yaml:"name"`
	Trusted    bool                 `yaml:"trusted,omitempty"`
	Patterns   []script.PatternRule `yaml:"patterns"`
}

// CategoryConfig configures the keyword category script.
type CategoryConfig struct {
	Keywords []script.KeywordCategoryRule `yaml:"keywords,omitempty"`
}

// MappingsConfig holds the asset and category name mappings.
type MappingsConfig struct {
	Assets     MappingTable `yaml:"assets"`
	Categories MappingTable `yaml:"categories"`
}

// MappingTable is one exact-plus-regex name mapping.
type MappingTable struct {
	Exact map[string]string     `yaml:"exact,omitempty"`
	Rules []resolve.MappingRule `yaml:"rules,omitempty"`
}

// Load reads a billfeed.yaml file from disk and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a Config with sensible defaults for a new deployment.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Pipeline.ScriptTimeout <= 0 {
		c.Pipeline.ScriptTimeout = Duration(script.DefaultTimeout)
	}
	if c.Pipeline.DedupWindow <= 0 {
		c.Pipeline.DedupWindow = Duration(dedup.DefaultWindow)
	}
	if c.Queue.Buffer <= 0 {
		c.Queue.Buffer = 256
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 5
	}
}

// BuildRuleSet compiles the configured rule tables.
func (c *Config) BuildRuleSet() (*script.RuleSet, error) {
	rules := script.NewRuleSet()
	for _, table := range c.Rules {
		st, err := domain.ParseSourceType(table.SourceType)
		if err != nil {
			return nil, fmt.Errorf("rule table %q: %w", table.Name, err)
		}
		ps, err := script.NewPatternScript(table.Name, table.Patterns)
		if err != nil {
			return nil, fmt.Errorf("rule table %q: %w", table.Name, err)
		}
		rules.Register(table.SourceApp, st, ps)
		if table.Trusted {
			// Candidates carry the winning pattern's name, so trust is
			// granted per pattern.
			for _, p := range table.Patterns {
				rules.MarkTrusted(p.Name)
			}
		}
	}
	return rules, nil
}

// BuildCategoryScript compiles the keyword category table, nil when
// none is configured.
func (c *Config) BuildCategoryScript() (script.CategoryScript, error) {
	if len(c.Category.Keywords) == 0 {
		return nil, nil
	}
	return script.NewKeywordCategoryScript(c.Category.Keywords)
}

// BuildMappings compiles the asset and category name mappings.
func (c *Config) BuildMappings() (assets, categories *resolve.NameMapping, err error) {
	assets, err = resolve.NewNameMapping(c.Mappings.Assets.Exact, c.Mappings.Assets.Rules)
	if err != nil {
		return nil, nil, fmt.Errorf("asset mapping: %w", err)
	}
	categories, err = resolve.NewNameMapping(c.Mappings.Categories.Exact, c.Mappings.Categories.Rules)
	if err != nil {
		return nil, nil, fmt.Errorf("category mapping: %w", err)
	}
	return assets, categories, nil
}

// ChannelClasses returns the dedup channel class table.
func (c *Config) ChannelClasses() dedup.ChannelClasses {
	return dedup.ChannelClasses(c.Pipeline.ChannelClasses)
}
