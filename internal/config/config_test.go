package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/billfeed/internal/domain"
)

const sampleConfig = `
server:
  port: 9090
pipeline:
  script_timeout: 5s
  dedup_window: 2m
  channel_classes:
    bank-sms: bank
    bank-notification: bank
queue:
  buffer: 64
  workers: 3
ai:
  enabled: true
  model: gemini-2.5-flash
archive:
  bucket: billfeed-raw
rules:
  - source_app: com.android.mms
    source_type: sms
    name: bank-sms
    trusted: true
    patterns:
      - name: bank-sms-debit
        match: 'charged (?P<money>[0-9.]+)'
        type: expend
        channel: bank-sms
        account_from: CMB Credit Card
category:
  keywords:
    - keyword: starbucks
      book: daily
      category: Coffee
mappings:
  assets:
    exact:
      CMB tail 1234: CMB Credit Card
    rules:
      - pattern: (?i)alipay
        target: Alipay Balance
        sort: 10
  categories:
    exact:
      Dining: Food
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "billfeed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, time.Duration(cfg.Pipeline.ScriptTimeout))
	assert.Equal(t, 2*time.Minute, time.Duration(cfg.Pipeline.DedupWindow))
	assert.Equal(t, 64, cfg.Queue.Buffer)
	assert.True(t, cfg.AI.Enabled)
	assert.Equal(t, "billfeed-raw", cfg.Archive.Bucket)
	assert.Equal(t, "bank", cfg.ChannelClasses().Class("bank-sms"))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server: {}\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 90*time.Second, time.Duration(cfg.Pipeline.DedupWindow))
	assert.Equal(t, 3*time.Second, time.Duration(cfg.Pipeline.ScriptTimeout))
	assert.Equal(t, 256, cfg.Queue.Buffer)
	assert.Equal(t, 5, cfg.Queue.Workers)
	assert.False(t, cfg.AI.Enabled)
}

func TestLoad_BadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, "pipeline:\n  dedup_window: ninety\n"))
	assert.Error(t, err)
}

func TestBuildRuleSet(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	rules, err := cfg.BuildRuleSet()
	require.NoError(t, err)

	s, ok := rules.Lookup("com.android.mms", domain.SourceSMS)
	require.True(t, ok)
	assert.Equal(t, "bank-sms", s.Name())

	assert.True(t, rules.IsTrusted("bank-sms-debit"), "trust applies to the pattern names candidates carry")
}

func TestBuildRuleSet_BadSourceType(t *testing.T) {
	cfg := Default()
	cfg.Rules = []RuleTable{{SourceApp: "x", SourceType: "telegraph", Name: "t"}}

	_, err := cfg.BuildRuleSet()
	assert.Error(t, err)
}

func TestBuildMappings(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assets, categories, err := cfg.BuildMappings()
	require.NoError(t, err)

	got, err := assets.Map("CMB tail 1234")
	require.NoError(t, err)
	assert.Equal(t, "CMB Credit Card", got)

	got, err = categories.Map("Dining")
	require.NoError(t, err)
	assert.Equal(t, "Food", got)
}

func TestBuildCategoryScript(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	cs, err := cfg.BuildCategoryScript()
	require.NoError(t, err)
	require.NotNil(t, cs)

	none, err := Default().BuildCategoryScript()
	require.NoError(t, err)
	assert.Nil(t, none)
}
