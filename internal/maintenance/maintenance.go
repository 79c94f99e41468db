// Package maintenance runs the periodic housekeeping of the categorization
// engine: cache eviction, cluster processing, rule sweeps and consolidation.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/dre-classifier/internal/clustering"
	"github.com/Veraticus/dre-classifier/internal/lifecycle"
	"github.com/robfig/cron/v3"
)

// Defaults.
const (
	DefaultSchedule    = "@hourly"
	DefaultCacheMaxAge = 30 * 24 * time.Hour
	DefaultTimeout     = 10 * time.Minute
)

// ResultCache is the in-process categorization result cache.
type ResultCache interface {
	Evict(maxAge time.Duration) int
	ClearTenant(tenantID string) int
}

// RuleMaintainer sweeps and merges a tenant's rules.
type RuleMaintainer interface {
	DeactivateLowPerformingRules(ctx context.Context, tenantID string) (lifecycle.SweepReport, error)
	ConsolidateRules(ctx context.Context, tenantID string) ([]lifecycle.Consolidation, error)
}

// ClusterProcessor turns mature clusters into candidate rules.
type ClusterProcessor interface {
	ProcessPendingClusters(ctx context.Context, tenantID string) (clustering.Report, error)
}

// TenantLister enumerates the tenants to maintain.
type TenantLister interface {
	ListTenants(ctx context.Context) ([]string, error)
}

// Deps are the collaborators of a Runner. Any of them may be nil except
// Tenants, which is needed unless Config.Tenants is set.
type Deps struct {
	Cache    ResultCache
	Rules    RuleMaintainer
	Clusters ClusterProcessor
	Tenants  TenantLister
	Logger   *slog.Logger
}

// Config tunes a Runner. Zero values take the defaults.
type Config struct {
	Location    *time.Location
	Schedule    string
	Tenants     []string
	CacheMaxAge time.Duration
	Timeout     time.Duration
}

// TenantReport is the outcome of one tenant's pass.
type TenantReport struct {
	Err            error
	TenantID       string
	Clusters       clustering.Report
	Sweep          lifecycle.SweepReport
	Consolidations []lifecycle.Consolidation
	ClearedEntries int
}

// Report is the outcome of one maintenance run.
type Report struct {
	Tenants        []TenantReport
	EvictedEntries int
}

// Err joins the per-tenant errors.
func (r Report) Err() error {
	var errs []error
	for _, t := range r.Tenants {
		if t.Err != nil {
			errs = append(errs, fmt.Errorf("tenant %s: %w", t.TenantID, t.Err))
		}
	}
	return errors.Join(errs...)
}

// Runner executes maintenance once or on a cron schedule.
type Runner struct {
	deps Deps
	cfg  Config
}

// NewRunner creates a maintenance runner.
func NewRunner(deps Deps, cfg Config) *Runner {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.CacheMaxAge <= 0 {
		cfg.CacheMaxAge = DefaultCacheMaxAge
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Runner{deps: deps, cfg: cfg}
}

// RunOnce evicts the cache and then, per tenant, processes pending clusters,
// sweeps low performers and consolidates duplicates. A tenant whose rules were
// retired or merged has its cached results dropped. A failing tenant does not
// stop the others; only a failure to enumerate tenants is returned.
func (r *Runner) RunOnce(ctx context.Context) (Report, error) {
	var report Report
	logger := r.deps.Logger

	if r.deps.Cache != nil {
		report.EvictedEntries = r.deps.Cache.Evict(r.cfg.CacheMaxAge)
	}

	tenants, err := r.tenants(ctx)
	if err != nil {
		return report, err
	}

	for _, tenantID := range tenants {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		tr := r.runTenant(ctx, tenantID)
		if tr.Err != nil {
			logger.Error("Maintenance failed for tenant", "tenant_id", tenantID, "error", tr.Err)
		}
		report.Tenants = append(report.Tenants, tr)
	}

	logger.Info("Maintenance run complete",
		"tenants", len(report.Tenants),
		"evicted", report.EvictedEntries)
	return report, nil
}

func (r *Runner) tenants(ctx context.Context) ([]string, error) {
	if len(r.cfg.Tenants) > 0 {
		return r.cfg.Tenants, nil
	}
	if r.deps.Tenants == nil {
		return nil, nil
	}
	tenants, err := r.deps.Tenants.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return tenants, nil
}

func (r *Runner) runTenant(ctx context.Context, tenantID string) TenantReport {
	tr := TenantReport{TenantID: tenantID}
	logger := r.deps.Logger.With("tenant_id", tenantID)
	var errs []error

	if r.deps.Clusters != nil {
		report, err := r.deps.Clusters.ProcessPendingClusters(ctx, tenantID)
		if err != nil {
			errs = append(errs, fmt.Errorf("cluster processing: %w", err))
		}
		tr.Clusters = report
		logger.Debug("Processed clusters", "report", report.String())
	}

	if r.deps.Rules != nil {
		sweep, err := r.deps.Rules.DeactivateLowPerformingRules(ctx, tenantID)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule sweep: %w", err))
		}
		tr.Sweep = sweep

		merged, err := r.deps.Rules.ConsolidateRules(ctx, tenantID)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule consolidation: %w", err))
		}
		tr.Consolidations = merged

		logger.Debug("Maintained rules",
			"examined", sweep.Examined,
			"low_precision", len(sweep.LowPrecision),
			"stale", len(sweep.Stale),
			"consolidated", len(merged))

		if r.deps.Cache != nil && len(sweep.LowPrecision)+len(sweep.Stale)+len(merged) > 0 {
			tr.ClearedEntries = r.deps.Cache.ClearTenant(tenantID)
			logger.Debug("Cleared cached results", "entries", tr.ClearedEntries)
		}
	}

	tr.Err = errors.Join(errs...)
	return tr
}

// Start runs maintenance on the configured schedule until ctx is canceled,
// then waits for a run in progress to finish. Overlapping runs are skipped.
func (r *Runner) Start(ctx context.Context) error {
	log := cronLogger{logger: r.deps.Logger}
	c := cron.New(
		cron.WithLocation(r.cfg.Location),
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)

	if _, err := c.AddFunc(r.cfg.Schedule, func() { r.scheduledRun(ctx) }); err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", r.cfg.Schedule, err)
	}

	r.deps.Logger.Info("Maintenance scheduler started", "schedule", r.cfg.Schedule)
	c.Start()
	<-ctx.Done()

	<-c.Stop().Done()
	r.deps.Logger.Info("Maintenance scheduler stopped")
	return nil
}

func (r *Runner) scheduledRun(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, r.cfg.Timeout)
	defer cancel()

	started := time.Now()
	report, err := r.RunOnce(ctx)
	if err == nil {
		err = report.Err()
	}
	if err != nil {
		r.deps.Logger.Error("Scheduled maintenance failed", "error", err, "duration", time.Since(started))
		return
	}
	r.deps.Logger.Info("Scheduled maintenance finished", "duration", time.Since(started))
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
