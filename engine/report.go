package engine

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
)

// metricLabel maps totals keys to display labels in render order.
type metricLabel struct {
	metric string
	label  string
}

var computeMetrics = []metricLabel{
	{MetricComputeInstances, "EC2 instances"},
	{MetricKubernetesNodes, "EKS nodes"},
	{MetricManagedDatabases, "RDS instances"},
	{MetricObjectStores, "S3 buckets"},
	{MetricFileStores, "EFS file systems"},
	{MetricWarehouses, "Redshift clusters"},
	{MetricNoSQLTables, "DynamoDB tables"},
}

var dspmMetrics = []metricLabel{
	{MetricExposedInstances, "Instances with exposed DB ports"},
	{MetricDatabaseInstances, "Database instances (licensing)"},
}

// WriteReport renders the final summary. Partial results render even
// when some scopes or counters failed.
func WriteReport(w io.Writer, result *Result, dspm bool) error {
	fmt.Fprintf(w, "Scan summary (%d scope(s), %d region(s), %s)\n",
		len(result.Scopes), len(result.Regions), result.Duration.Round(time.Millisecond))

	if len(result.SkippedScopes) > 0 {
		fmt.Fprintf(w, "Skipped %d scope(s) after activation failure:\n", len(result.SkippedScopes))
		for _, s := range result.SkippedScopes {
			fmt.Fprintf(w, "  - %s: %s\n", s.Scope.String(), s.Reason)
		}
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "\nCompute resources\t")
	fmt.Fprintln(tw, strings.Repeat("-", 30)+"\t")
	for _, m := range computeMetrics {
		fmt.Fprintf(tw, "%s\t%d\n", m.label, result.Totals[m.metric])
	}

	if dspm {
		fmt.Fprintln(tw, "\nLicensing (DSPM) resources\t")
		fmt.Fprintln(tw, strings.Repeat("-", 30)+"\t")
		for _, m := range dspmMetrics {
			fmt.Fprintf(tw, "%s\t%d\n", m.label, result.Totals[m.metric])
		}
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	if result.Warnings > 0 {
		fmt.Fprintf(w, "\n%d warning(s); totals may under-count, see log output\n", result.Warnings)
	}
	return nil
}
