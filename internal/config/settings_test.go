package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	s, err := Load(newViper())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".local/share/dre/dre.db"), s.Database.Path)
	assert.Equal(t, 70, s.Engine.ConfidenceThreshold)
	assert.Equal(t, 90, s.Engine.HistoryDaysLimit)
	assert.InDelta(t, 0.90, s.Cache.SimilarityThreshold, 1e-9)
	assert.Equal(t, 30*24*time.Hour, s.Cache.MaxAge)
	assert.Equal(t, 3, s.Lifecycle.ValidationThreshold)
	assert.Equal(t, 90*24*time.Hour, s.Lifecycle.StaleAfter)
	assert.Equal(t, 5, s.Clustering.MinClusterSize)
	assert.Equal(t, "openai", s.LLM.Provider)
	assert.Equal(t, "sk-env", s.LLM.APIKey)
	assert.Equal(t, 30*time.Second, s.LLM.Timeout)
	assert.Equal(t, DefaultMaintenanceSchedule, s.Maintenance.Schedule)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: $DRE_TEST_DIR/custom.db
engine:
  confidence_threshold: 80
llm:
  provider: anthropic
  api_key: configured
  model: claude-test
maintenance:
  schedule: "*/15 * * * *"
  tenants: [acme, globex]
ambiguity:
  terms: [SISDEB]
`), 0o600))
	t.Setenv("DRE_TEST_DIR", dir)
	t.Setenv("ANTHROPIC_API_KEY", "from-env")

	v := newViper()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	s, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "custom.db"), s.Database.Path)
	assert.Equal(t, dir, s.DataDir())
	assert.Equal(t, 80, s.Engine.ConfidenceThreshold)
	assert.Equal(t, "anthropic", s.LLM.Provider)
	assert.Equal(t, "configured", s.LLM.APIKey)
	assert.Equal(t, "claude-test", s.LLM.Model)
	assert.Equal(t, "*/15 * * * *", s.Maintenance.Schedule)
	assert.Equal(t, []string{"acme", "globex"}, s.Maintenance.Tenants)
	assert.Equal(t, []string{"SISDEB"}, s.Ambiguity.Terms)
}

func TestLoad_AnthropicKeyFromEnvironment(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	v := newViper()
	v.Set("llm.provider", "anthropic")

	s, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "from-env", s.LLM.APIKey)
}

func TestLoad_RejectsOutOfRangeValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
	}{
		{"threshold above 100", "engine.confidence_threshold", 101},
		{"negative threshold", "engine.confidence_threshold", -1},
		{"similarity above 1", "cache.similarity_threshold", 1.5},
		{"precision floor above 1", "lifecycle.precision_floor", 2.0},
		{"empty database path", "database.path", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper()
			v.Set(tt.key, tt.value)

			_, err := Load(v)
			assert.ErrorIs(t, err, ErrInvalidSettings)
		})
	}
}
