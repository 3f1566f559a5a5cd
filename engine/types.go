package engine

import (
	"context"
	"errors"
	"time"

	"github.com/cloudtally/cloudtally/types"
)

// ErrServiceDisabled marks a counter whose backing API is not enabled
// for the scope. The counter contributes 0; this is not a query failure.
var ErrServiceDisabled = errors.New("service not enabled")

// Counter counts one resource type within an active scope.
type Counter struct {
	// Metric is the totals key the result is folded into.
	Metric string

	// Global marks resource types that are never sharded by region.
	// They are queried exactly once per scope.
	Global bool

	// Count runs the query. Region is empty for global counters.
	Count func(ctx context.Context, region string) (int, error)
}

// Session is an activated scope: scoped credentials plus the counters
// and inspectors bound to them. Close must be called on every exit
// path so the credential context is released.
type Session interface {
	Scope() types.Scope
	Counters() []Counter
	DatabaseCandidates(ctx context.Context, region string) ([]types.InstanceCandidate, error)
	InspectExposure(ctx context.Context, candidate types.InstanceCandidate) (types.ExposureFinding, error)
	Close() error
}

// ScopeProvider enumerates scopes and activates per-scope sessions.
type ScopeProvider interface {
	// CallerScope resolves the currently authenticated identity.
	CallerScope(ctx context.Context) (types.Scope, error)

	// OrganizationScopes lists all child scopes of the organization
	// root. Used only in organization mode.
	OrganizationScopes(ctx context.Context) ([]types.Scope, error)

	// ActiveRegions returns the provider's active-region catalog.
	ActiveRegions(ctx context.Context) ([]string, error)

	// OpenSession activates credentials for one scope.
	OpenSession(ctx context.Context, scope types.Scope) (Session, error)
}

// Options configure a scan run.
type Options struct {
	// Region restricts the scan to one region. Empty means all active
	// regions.
	Region string

	// OrgMode scans every account in the organization instead of just
	// the caller's.
	OrgMode bool

	// DSPM enables the licensing-relevant database detection pass.
	DSPM bool

	// DeepInspect confirms exposed instances with a remote process
	// probe. Requires DSPM.
	DeepInspect bool

	// CountUnconfirmed counts an exposed instance that cannot be
	// probed remotely as a database anyway.
	CountUnconfirmed bool

	// ScopeWorkers bounds concurrent scope scans.
	ScopeWorkers int

	// InstanceWorkers bounds concurrent exposure inspections.
	InstanceWorkers int

	// Pace is the fixed delay between worker admissions.
	Pace time.Duration
}

// SkippedScope records a scope dropped after activation failure.
type SkippedScope struct {
	Scope  types.Scope `json:"scope"`
	Reason string      `json:"reason"`
}

// Result is the aggregated outcome of one scan run.
type Result struct {
	RunID         string         `json:"run_id"`
	StartedAt     time.Time      `json:"started_at"`
	Duration      time.Duration  `json:"duration"`
	Scopes        []types.Scope  `json:"scopes"`
	SkippedScopes []SkippedScope `json:"skipped_scopes,omitempty"`
	Regions       []string       `json:"regions"`
	Totals        map[string]int `json:"totals"`
	Warnings      int            `json:"warnings"`
}
