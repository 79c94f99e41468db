package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Veraticus/dre-classifier/internal/clustering"
	"github.com/Veraticus/dre-classifier/internal/engine"
	"github.com/Veraticus/dre-classifier/internal/lifecycle"
	"github.com/Veraticus/dre-classifier/internal/llm"
	"github.com/spf13/viper"
)

// DefaultMaintenanceSchedule runs maintenance hourly.
const DefaultMaintenanceSchedule = "@hourly"

// ErrInvalidSettings is returned when a configured value is out of range.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings is the resolved configuration of the dre command.
type Settings struct {
	Database    DatabaseSettings
	Maintenance MaintenanceSettings
	LLM         llm.Config
	Ambiguity   AmbiguitySettings
	Clustering  clustering.Config
	Lifecycle   lifecycle.Config
	Engine      engine.Options
	Cache       CacheSettings
}

// DatabaseSettings locates the SQLite file.
type DatabaseSettings struct {
	Path string
}

// CacheSettings tunes the in-process result cache.
type CacheSettings struct {
	SimilarityThreshold float64
	MaxAge              time.Duration
}

// MaintenanceSettings configures the background maintenance loop.
type MaintenanceSettings struct {
	Schedule string
	Tenants  []string
}

// AmbiguitySettings extends the generic-term list.
type AmbiguitySettings struct {
	Terms []string
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "~/.local/share/dre/dre.db")

	v.SetDefault("engine.confidence_threshold", engine.DefaultConfidenceThreshold)
	v.SetDefault("engine.history_days_limit", engine.DefaultHistoryDaysLimit)

	v.SetDefault("cache.similarity_threshold", engine.DefaultCacheSimilarity)
	v.SetDefault("cache.max_age_days", 30)

	v.SetDefault("lifecycle.validation_threshold", lifecycle.DefaultValidationThreshold)
	v.SetDefault("lifecycle.precision_floor", lifecycle.DefaultPrecisionFloor)
	v.SetDefault("lifecycle.min_samples", lifecycle.DefaultMinSamples)
	v.SetDefault("lifecycle.stale_days", 90)

	v.SetDefault("clustering.min_cluster_size", clustering.DefaultMinClusterSize)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay", time.Second)
	v.SetDefault("llm.cache_ttl", 15*time.Minute)
	v.SetDefault("llm.rate_limit", 60)

	v.SetDefault("maintenance.schedule", DefaultMaintenanceSchedule)
}

// Load resolves Settings from v. API keys fall back to the provider's usual
// environment variable when not configured.
func Load(v *viper.Viper) (Settings, error) {
	s := Settings{
		Database: DatabaseSettings{
			Path: ExpandPath(v.GetString("database.path")),
		},
		Engine: engine.Options{
			ConfidenceThreshold: v.GetInt("engine.confidence_threshold"),
			HistoryDaysLimit:    v.GetInt("engine.history_days_limit"),
		},
		Cache: CacheSettings{
			SimilarityThreshold: v.GetFloat64("cache.similarity_threshold"),
			MaxAge:              days(v.GetInt("cache.max_age_days")),
		},
		Lifecycle: lifecycle.Config{
			ValidationThreshold: v.GetInt("lifecycle.validation_threshold"),
			PrecisionFloor:      v.GetFloat64("lifecycle.precision_floor"),
			MinSamples:          v.GetInt("lifecycle.min_samples"),
			StaleAfter:          days(v.GetInt("lifecycle.stale_days")),
		},
		Clustering: clustering.Config{
			MinClusterSize: v.GetInt("clustering.min_cluster_size"),
		},
		LLM: llm.Config{
			Provider:    v.GetString("llm.provider"),
			BaseURL:     v.GetString("llm.base_url"),
			APIKey:      v.GetString("llm.api_key"),
			Model:       v.GetString("llm.model"),
			Timeout:     v.GetDuration("llm.timeout"),
			MaxRetries:  v.GetInt("llm.max_retries"),
			RetryDelay:  v.GetDuration("llm.retry_delay"),
			CacheTTL:    v.GetDuration("llm.cache_ttl"),
			RateLimit:   v.GetInt("llm.rate_limit"),
			Temperature: v.GetFloat64("llm.temperature"),
			MaxTokens:   v.GetInt("llm.max_tokens"),
		},
		Maintenance: MaintenanceSettings{
			Schedule: v.GetString("maintenance.schedule"),
			Tenants:  v.GetStringSlice("maintenance.tenants"),
		},
		Ambiguity: AmbiguitySettings{
			Terms: v.GetStringSlice("ambiguity.terms"),
		},
	}

	if s.LLM.APIKey == "" {
		switch s.LLM.Provider {
		case "anthropic":
			s.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "", "openai":
			s.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks value ranges.
func (s Settings) Validate() error {
	if s.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalidSettings)
	}
	if s.Engine.ConfidenceThreshold < 0 || s.Engine.ConfidenceThreshold > 100 {
		return fmt.Errorf("%w: engine.confidence_threshold must be between 0 and 100, got %d",
			ErrInvalidSettings, s.Engine.ConfidenceThreshold)
	}
	if s.Cache.SimilarityThreshold < 0 || s.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: cache.similarity_threshold must be between 0 and 1, got %g",
			ErrInvalidSettings, s.Cache.SimilarityThreshold)
	}
	if s.Lifecycle.PrecisionFloor < 0 || s.Lifecycle.PrecisionFloor > 1 {
		return fmt.Errorf("%w: lifecycle.precision_floor must be between 0 and 1, got %g",
			ErrInvalidSettings, s.Lifecycle.PrecisionFloor)
	}
	return nil
}

// DataDir returns the directory holding the database file.
func (s Settings) DataDir() string {
	return filepath.Dir(s.Database.Path)
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
