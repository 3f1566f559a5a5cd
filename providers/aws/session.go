package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/efs"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/redshift"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/smithy-go"

	"github.com/cloudtally/cloudtally/engine"
	"github.com/cloudtally/cloudtally/retry"
	"github.com/cloudtally/cloudtally/telemetry"
	"github.com/cloudtally/cloudtally/types"
)

// Session is one activated scope: service clients bound to scoped
// credentials plus the counter set.
type Session struct {
	scope  types.Scope
	opts   Options
	logger *telemetry.Logger

	ec2      EC2API
	eks      EKSAPI
	rds      RDSAPI
	s3       S3API
	efs      EFSAPI
	redshift RedshiftAPI
	dynamodb DynamoDBAPI
	ssm      SSMAPI
}

func newSession(cfg aws.Config, scope types.Scope, opts Options, logger *telemetry.Logger) *Session {
	return &Session{
		scope:    scope,
		opts:     opts,
		logger:   logger,
		ec2:      ec2.NewFromConfig(cfg),
		eks:      eks.NewFromConfig(cfg),
		rds:      rds.NewFromConfig(cfg),
		s3:       s3.NewFromConfig(cfg),
		efs:      efs.NewFromConfig(cfg),
		redshift: redshift.NewFromConfig(cfg),
		dynamodb: dynamodb.NewFromConfig(cfg),
		ssm:      ssm.NewFromConfig(cfg),
	}
}

// Scope returns the account this session is activated for.
func (s *Session) Scope() types.Scope { return s.scope }

// Close releases the scoped credential context. The static credentials
// held by the clients are discarded with the session.
func (s *Session) Close() error { return nil }

func (s *Session) callOpts() []retry.Option {
	return []retry.Option{
		retry.WithMaxAttempts(s.opts.MaxAttempts),
		retry.WithBackoff(retry.Linear(s.opts.BackoffBase)),
	}
}

// slowCallOpts adds the hard per-attempt timeout used for security
// group and remote inspection calls.
func (s *Session) slowCallOpts() []retry.Option {
	return append(s.callOpts(), retry.WithAttemptTimeout(s.opts.CallTimeout))
}

// Counters returns the full counter set for this scope.
func (s *Session) Counters() []engine.Counter {
	return []engine.Counter{
		{Metric: engine.MetricComputeInstances, Count: s.countInstances},
		{Metric: engine.MetricKubernetesNodes, Count: s.countEKSNodes},
		{Metric: engine.MetricManagedDatabases, Count: s.countRDSInstances},
		{Metric: engine.MetricObjectStores, Global: true, Count: s.countS3Buckets},
		{Metric: engine.MetricFileStores, Count: s.countEFSFileSystems},
		{Metric: engine.MetricWarehouses, Count: s.countRedshiftClusters},
		{Metric: engine.MetricNoSQLTables, Count: s.countDynamoDBTables},
	}
}

// countInstances counts EC2 instances matching the state filter.
func (s *Session) countInstances(ctx context.Context, region string) (int, error) {
	return retry.Value(ctx, "ec2:DescribeInstances", func(ctx context.Context) (int, error) {
		input := &ec2.DescribeInstancesInput{
			Filters: []ec2types.Filter{{
				Name:   aws.String("instance-state-name"),
				Values: s.opts.StateFilter.States(),
			}},
		}
		count := 0
		paginator := ec2.NewDescribeInstancesPaginator(s.ec2, input)
		for paginator.HasMorePages() {
			out, err := paginator.NextPage(ctx, func(o *ec2.Options) { o.Region = region })
			if err != nil {
				return 0, fmt.Errorf("failed to describe instances: %w", err)
			}
			for _, reservation := range out.Reservations {
				count += len(reservation.Instances)
			}
		}
		return count, nil
	}, s.callOpts()...)
}

// countEKSNodes sums desired node-group sizes across all clusters.
// A failure inside one cluster or node group skips only that branch.
func (s *Session) countEKSNodes(ctx context.Context, region string) (int, error) {
	clusters, err := retry.Value(ctx, "eks:ListClusters", func(ctx context.Context) ([]string, error) {
		var names []string
		var next *string
		for {
			out, err := s.eks.ListClusters(ctx, &eks.ListClustersInput{NextToken: next},
				func(o *eks.Options) { o.Region = region })
			if err != nil {
				return nil, fmt.Errorf("failed to list EKS clusters: %w", err)
			}
			names = append(names, out.Clusters...)
			if out.NextToken == nil {
				break
			}
			next = out.NextToken
		}
		return names, nil
	}, s.callOpts()...)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, cluster := range clusters {
		nodes, err := s.countClusterNodes(ctx, region, cluster)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("scope", s.scope.String()).
				Str("cluster", cluster).
				Msg("skipping cluster")
			continue
		}
		total += nodes
	}
	return total, nil
}

func (s *Session) countClusterNodes(ctx context.Context, region, cluster string) (int, error) {
	groups, err := retry.Value(ctx, "eks:ListNodegroups", func(ctx context.Context) ([]string, error) {
		out, err := s.eks.ListNodegroups(ctx, &eks.ListNodegroupsInput{ClusterName: aws.String(cluster)},
			func(o *eks.Options) { o.Region = region })
		if err != nil {
			return nil, fmt.Errorf("failed to list node groups for %s: %w", cluster, err)
		}
		return out.Nodegroups, nil
	}, s.callOpts()...)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, group := range groups {
		out, err := retry.Value(ctx, "eks:DescribeNodegroup", func(ctx context.Context) (*eks.DescribeNodegroupOutput, error) {
			return s.eks.DescribeNodegroup(ctx, &eks.DescribeNodegroupInput{
				ClusterName:   aws.String(cluster),
				NodegroupName: aws.String(group),
			}, func(o *eks.Options) { o.Region = region })
		}, s.callOpts()...)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("cluster", cluster).
				Str("node_group", group).
				Msg("skipping node group")
			continue
		}
		if out.Nodegroup != nil && out.Nodegroup.ScalingConfig != nil {
			total += int(aws.ToInt32(out.Nodegroup.ScalingConfig.DesiredSize))
		}
	}
	return total, nil
}

// countRDSInstances counts managed database instances.
func (s *Session) countRDSInstances(ctx context.Context, region string) (int, error) {
	return retry.Value(ctx, "rds:DescribeDBInstances", func(ctx context.Context) (int, error) {
		count := 0
		paginator := rds.NewDescribeDBInstancesPaginator(s.rds, &rds.DescribeDBInstancesInput{})
		for paginator.HasMorePages() {
			out, err := paginator.NextPage(ctx, func(o *rds.Options) { o.Region = region })
			if err != nil {
				return 0, fmt.Errorf("failed to describe DB instances: %w", err)
			}
			count += len(out.DBInstances)
		}
		return count, nil
	}, s.callOpts()...)
}

// countS3Buckets counts buckets. S3 buckets are account-global, so
// this counter is marked Global and runs once per scope.
func (s *Session) countS3Buckets(ctx context.Context, _ string) (int, error) {
	return retry.Value(ctx, "s3:ListBuckets", func(ctx context.Context) (int, error) {
		out, err := s.s3.ListBuckets(ctx, &s3.ListBucketsInput{})
		if err != nil {
			return 0, fmt.Errorf("failed to list buckets: %w", err)
		}
		return len(out.Buckets), nil
	}, s.callOpts()...)
}

// countEFSFileSystems counts file systems. EFS may be disabled for a
// scope; that yields 0 rather than a query failure.
func (s *Session) countEFSFileSystems(ctx context.Context, region string) (int, error) {
	n, err := retry.Value(ctx, "efs:DescribeFileSystems", func(ctx context.Context) (int, error) {
		count := 0
		paginator := efs.NewDescribeFileSystemsPaginator(s.efs, &efs.DescribeFileSystemsInput{})
		for paginator.HasMorePages() {
			out, err := paginator.NextPage(ctx, func(o *efs.Options) { o.Region = region })
			if err != nil {
				return 0, fmt.Errorf("failed to describe file systems: %w", err)
			}
			count += len(out.FileSystems)
		}
		return count, nil
	}, s.callOpts()...)
	if err != nil {
		return 0, classifyEnablement(err)
	}
	return n, nil
}

// countRedshiftClusters counts analytics warehouse clusters, with the
// same enablement classification as EFS.
func (s *Session) countRedshiftClusters(ctx context.Context, region string) (int, error) {
	n, err := retry.Value(ctx, "redshift:DescribeClusters", func(ctx context.Context) (int, error) {
		count := 0
		paginator := redshift.NewDescribeClustersPaginator(s.redshift, &redshift.DescribeClustersInput{})
		for paginator.HasMorePages() {
			out, err := paginator.NextPage(ctx, func(o *redshift.Options) { o.Region = region })
			if err != nil {
				return 0, fmt.Errorf("failed to describe clusters: %w", err)
			}
			count += len(out.Clusters)
		}
		return count, nil
	}, s.callOpts()...)
	if err != nil {
		return 0, classifyEnablement(err)
	}
	return n, nil
}

// countDynamoDBTables counts tables in the region.
func (s *Session) countDynamoDBTables(ctx context.Context, region string) (int, error) {
	return retry.Value(ctx, "dynamodb:ListTables", func(ctx context.Context) (int, error) {
		count := 0
		paginator := dynamodb.NewListTablesPaginator(s.dynamodb, &dynamodb.ListTablesInput{})
		for paginator.HasMorePages() {
			out, err := paginator.NextPage(ctx, func(o *dynamodb.Options) { o.Region = region })
			if err != nil {
				return 0, fmt.Errorf("failed to list tables: %w", err)
			}
			count += len(out.TableNames)
		}
		return count, nil
	}, s.callOpts()...)
}

// serviceDisabledCodes are API error codes meaning the service is not
// enabled for the account, as opposed to a transient failure.
var serviceDisabledCodes = map[string]struct{}{
	"OptInRequired":                 {},
	"SubscriptionRequiredException": {},
}

func classifyEnablement(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := serviceDisabledCodes[apiErr.ErrorCode()]; ok {
			return fmt.Errorf("%w: %s", engine.ErrServiceDisabled, apiErr.ErrorCode())
		}
	}
	return err
}

var _ engine.Session = (*Session)(nil)
