// Package engine is the multi-scope parallel resource-counting core.
// It enumerates scopes, fans out bounded-concurrency count queries per
// scope and region, runs the database exposure pass, and folds partial
// results into running totals without letting one failed query abort
// the run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cloudtally/cloudtally/internal/ratelimit"
	"github.com/cloudtally/cloudtally/telemetry"
	"github.com/cloudtally/cloudtally/types"
)

const (
	defaultScopeWorkers    = 3
	defaultInstanceWorkers = 5
	defaultPace            = time.Second
)

// Engine coordinates one scan run.
type Engine struct {
	provider ScopeProvider
	opts     Options
	logger   *telemetry.Logger
	metrics  *telemetry.Metrics
	pace     *ratelimit.Limiter
}

// New creates an engine. Metrics may be nil.
func New(provider ScopeProvider, opts Options, logger *telemetry.Logger, metrics *telemetry.Metrics) *Engine {
	if opts.ScopeWorkers <= 0 {
		opts.ScopeWorkers = defaultScopeWorkers
	}
	if opts.InstanceWorkers <= 0 {
		opts.InstanceWorkers = defaultInstanceWorkers
	}
	if opts.Pace == 0 {
		opts.Pace = defaultPace
	}
	if logger == nil {
		logger = telemetry.NewLogger("engine")
	}
	return &Engine{
		provider: provider,
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
		pace:     ratelimit.New(opts.Pace, 1),
	}
}

// Run executes the scan. It returns an error only for structural
// failures: identity not resolvable, invalid region, or an empty
// organization enumeration. Everything else degrades to warnings and
// zero contributions.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	result := &Result{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	logger := e.logger.WithRun(result.RunID)

	caller, err := e.provider.CallerScope(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve caller identity: %w", err)
	}

	regions, err := e.resolveRegions(ctx)
	if err != nil {
		return nil, err
	}
	result.Regions = regions

	scopes, err := e.resolveScopes(ctx, caller)
	if err != nil {
		return nil, err
	}
	result.Scopes = scopes

	logger.Info().
		Int("scopes", len(scopes)).
		Int("regions", len(regions)).
		Bool("org_mode", e.opts.OrgMode).
		Bool("dspm", e.opts.DSPM).
		Msg("starting scan")

	totals := NewRunningTotals()
	var mu sync.Mutex // guards result.SkippedScopes and result.Warnings

	var g errgroup.Group
	g.SetLimit(e.opts.ScopeWorkers)
	for _, scope := range scopes {
		if err := e.pace.Wait(ctx); err != nil {
			break
		}
		g.Go(func() error {
			e.scanScope(ctx, logger, scope, regions, totals, result, &mu)
			return nil
		})
	}
	_ = g.Wait()

	result.Totals = totals.Snapshot()
	result.Duration = time.Since(result.StartedAt)

	if e.metrics != nil {
		e.metrics.ScanDuration.Record(ctx, result.Duration.Seconds())
	}
	logger.Info().
		Int("scopes_scanned", len(scopes)-len(result.SkippedScopes)).
		Int("scopes_skipped", len(result.SkippedScopes)).
		Dur("duration", result.Duration).
		Msg("scan complete")

	return result, nil
}

// resolveRegions fetches the active-region catalog and validates the
// requested region against it. Validation happens once, before any
// scope is processed.
func (e *Engine) resolveRegions(ctx context.Context) ([]string, error) {
	catalog, err := e.provider.ActiveRegions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch region catalog: %w", err)
	}
	if e.opts.Region == "" {
		return catalog, nil
	}
	for _, r := range catalog {
		if r == e.opts.Region {
			return []string{e.opts.Region}, nil
		}
	}
	return nil, fmt.Errorf("invalid region %q: not in the active region catalog", e.opts.Region)
}

func (e *Engine) resolveScopes(ctx context.Context, caller types.Scope) ([]types.Scope, error) {
	if !e.opts.OrgMode {
		return []types.Scope{caller}, nil
	}
	scopes, err := e.provider.OrganizationScopes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate organization accounts: %w", err)
	}
	if len(scopes) == 0 {
		return nil, fmt.Errorf("organization enumeration returned no accounts")
	}
	return scopes, nil
}

// scanScope activates one scope and runs every counter plus, when
// enabled, the database detection pass. Activation failure skips the
// scope; it never fails the run.
func (e *Engine) scanScope(ctx context.Context, logger *telemetry.Logger, scope types.Scope, regions []string, totals *RunningTotals, result *Result, mu *sync.Mutex) {
	sess, err := e.provider.OpenSession(ctx, scope)
	if err != nil {
		logger.Warn().
			Err(err).
			Str("scope", scope.String()).
			Msg("activation failed, skipping scope")
		mu.Lock()
		result.SkippedScopes = append(result.SkippedScopes, SkippedScope{Scope: scope, Reason: err.Error()})
		result.Warnings++
		mu.Unlock()
		if e.metrics != nil {
			e.metrics.ScopesSkipped.Add(ctx, 1)
		}
		return
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			logger.Warn().Err(cerr).Str("scope", scope.String()).Msg("failed to release scope credentials")
		}
	}()

	// One worker per resource type; bounded implicitly by the fixed
	// number of counters.
	var wg sync.WaitGroup
	for _, counter := range sess.Counters() {
		wg.Add(1)
		go func(c Counter) {
			defer wg.Done()
			e.runCounter(ctx, logger, sess, c, regions, totals, result, mu)
		}(counter)
	}

	if e.opts.DSPM {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.detectDatabases(ctx, logger, sess, regions, totals, result, mu)
		}()
	}

	wg.Wait()

	if e.metrics != nil {
		e.metrics.ScopesScanned.Add(ctx, 1)
	}
}

// runCounter shards a counter across regions, or runs it once for
// global resource types so they are never double counted.
func (e *Engine) runCounter(ctx context.Context, logger *telemetry.Logger, sess Session, c Counter, regions []string, totals *RunningTotals, result *Result, mu *sync.Mutex) {
	if c.Global {
		e.foldCount(ctx, logger, sess, c, "", totals, result, mu)
		return
	}
	for _, region := range regions {
		e.foldCount(ctx, logger, sess, c, region, totals, result, mu)
	}
}

func (e *Engine) foldCount(ctx context.Context, logger *telemetry.Logger, sess Session, c Counter, region string, totals *RunningTotals, result *Result, mu *sync.Mutex) {
	if e.metrics != nil {
		e.metrics.QueriesIssued.Add(ctx, 1)
	}

	n, err := c.Count(ctx, region)
	if err != nil {
		if errors.Is(err, ErrServiceDisabled) {
			logger.Info().
				Str("scope", sess.Scope().String()).
				Str("metric", c.Metric).
				Str("region", region).
				Msg("service not enabled, counting 0")
			return
		}
		logger.Warn().
			Err(err).
			Str("scope", sess.Scope().String()).
			Str("metric", c.Metric).
			Str("region", region).
			Msg("count query failed, contributing 0")
		mu.Lock()
		result.Warnings++
		mu.Unlock()
		if e.metrics != nil {
			e.metrics.QueryFailures.Add(ctx, 1)
		}
		return
	}
	totals.Add(c.Metric, n)
}

// detectDatabases runs the exposure pass: candidates per region, then
// bounded instance-level fan-out.
func (e *Engine) detectDatabases(ctx context.Context, logger *telemetry.Logger, sess Session, regions []string, totals *RunningTotals, result *Result, mu *sync.Mutex) {
	for _, region := range regions {
		candidates, err := sess.DatabaseCandidates(ctx, region)
		if err != nil {
			logger.Warn().
				Err(err).
				Str("scope", sess.Scope().String()).
				Str("region", region).
				Msg("failed to list exposure candidates")
			mu.Lock()
			result.Warnings++
			mu.Unlock()
			continue
		}

		var g errgroup.Group
		g.SetLimit(e.opts.InstanceWorkers)
		for _, candidate := range candidates {
			if err := e.pace.Wait(ctx); err != nil {
				break
			}
			g.Go(func() error {
				e.inspectCandidate(ctx, logger, sess, candidate, totals, result, mu)
				return nil
			})
		}
		_ = g.Wait()
	}
}

func (e *Engine) inspectCandidate(ctx context.Context, logger *telemetry.Logger, sess Session, candidate types.InstanceCandidate, totals *RunningTotals, result *Result, mu *sync.Mutex) {
	finding, err := sess.InspectExposure(ctx, candidate)
	if err != nil {
		logger.Warn().
			Err(err).
			Str("instance", candidate.InstanceID).
			Msg("exposure inspection failed")
		mu.Lock()
		result.Warnings++
		mu.Unlock()
		return
	}
	if !finding.Exposed {
		return
	}

	totals.Add(MetricExposedInstances, 1)
	logger.Debug().
		Str("instance", candidate.InstanceID).
		Int32("port", finding.Port).
		Bool("confirmed", finding.Confirmed).
		Msg("database port exposed")

	if e.countsAsDatabase(finding) {
		totals.Add(MetricDatabaseInstances, 1)
	}
}

// countsAsDatabase decides whether an exposure finding increments the
// licensing-relevant database total. Without deep inspection, exposure
// alone counts; with it, only a confirmed process counts, except that
// an instance unreachable over the remote-execution channel falls back
// to the CountUnconfirmed policy.
func (e *Engine) countsAsDatabase(finding types.ExposureFinding) bool {
	if !finding.Exposed {
		return false
	}
	if !e.opts.DeepInspect {
		return true
	}
	if !finding.RemoteCapable {
		return e.opts.CountUnconfirmed
	}
	return finding.Confirmed
}
