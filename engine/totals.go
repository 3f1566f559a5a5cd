package engine

import "sync"

// Metric keys for RunningTotals.
const (
	MetricComputeInstances  = "ec2_instances"
	MetricKubernetesNodes   = "eks_nodes"
	MetricManagedDatabases  = "rds_instances"
	MetricObjectStores      = "s3_buckets"
	MetricFileStores        = "efs_file_systems"
	MetricWarehouses        = "redshift_clusters"
	MetricNoSQLTables       = "dynamodb_tables"
	MetricExposedInstances  = "db_exposed_instances"
	MetricDatabaseInstances = "db_instances"
)

// RunningTotals accumulates partial counts from concurrent workers.
// Addition is commutative, so completion order never affects the final
// totals; the mutex only serializes the increments themselves.
type RunningTotals struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewRunningTotals creates an empty accumulator.
func NewRunningTotals() *RunningTotals {
	return &RunningTotals{counts: make(map[string]int)}
}

// Add folds a partial count into a metric. Non-positive counts are
// dropped; a failed partial count must contribute 0, never a poisoned
// value.
func (t *RunningTotals) Add(metric string, n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[metric] += n
}

// Get returns the current value of one metric.
func (t *RunningTotals) Get(metric string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[metric]
}

// Snapshot returns a copy of all totals.
func (t *RunningTotals) Snapshot() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}
