package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Veraticus/dre-classifier/internal/ambiguity"
	"github.com/Veraticus/dre-classifier/internal/cache"
	"github.com/Veraticus/dre-classifier/internal/clustering"
	"github.com/Veraticus/dre-classifier/internal/common"
	"github.com/Veraticus/dre-classifier/internal/config"
	"github.com/Veraticus/dre-classifier/internal/engine"
	"github.com/Veraticus/dre-classifier/internal/history"
	"github.com/Veraticus/dre-classifier/internal/lifecycle"
	"github.com/Veraticus/dre-classifier/internal/llm"
	"github.com/Veraticus/dre-classifier/internal/storage"
	"github.com/spf13/viper"
)

// app holds the wired components a command needs.
type app struct {
	settings  config.Settings
	store     *storage.SQLiteStorage
	policy    *ambiguity.Policy
	cache     *cache.Cache
	generator *clustering.Generator
	lifecycle *lifecycle.Manager
	logger    *slog.Logger
}

// openApp loads settings, opens and migrates the database and builds the
// store-backed components.
func openApp(ctx context.Context) (*app, error) {
	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	if settings.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(settings.Database.Path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	store, err := storage.NewSQLiteStorage(settings.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger := slog.Default()
	policy := ambiguity.DefaultPolicy(settings.Ambiguity.Terms...)

	return &app{
		settings:  settings,
		store:     store,
		policy:    policy,
		cache:     cache.New(cache.Options{DenyList: policy, Logger: logger}),
		generator: clustering.NewGenerator(store, policy, logger, settings.Clustering),
		lifecycle: lifecycle.NewManager(store, logger, settings.Lifecycle),
		logger:    logger,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// engine builds the categorization engine. The AI layer is left out when
// withAI is false or no provider is configured.
func (a *app) engine(withAI bool) (*engine.Engine, error) {
	deps := engine.Deps{
		Categories: a.store,
		Cache:      a.cache,
		Rules:      a.store,
		History:    history.NewMatcher(a.store, a.logger, history.Config{}),
		Generator:  a.generator,
		Ambiguity:  a.policy,
		Logger:     a.logger,
	}

	if withAI {
		classifier, err := llm.NewClassifier(a.settings.LLM, a.store, a.logger)
		switch {
		case errors.Is(err, common.ErrMissingConfig):
			a.logger.Warn("AI layer disabled", "reason", err)
		case err != nil:
			return nil, err
		default:
			deps.AI = classifier
		}
	}

	return engine.New(deps, engine.Config{CacheSimilarity: a.settings.Cache.SimilarityThreshold})
}

// tenant returns the --tenant flag, the configured tenant or a user error.
func tenant() (string, error) {
	t := strings.TrimSpace(viper.GetString("tenant"))
	if t == "" {
		return "", common.NewUserError("a tenant is required: pass --tenant or set DRE_TENANT", common.ErrMissingTenant)
	}
	return t, nil
}
