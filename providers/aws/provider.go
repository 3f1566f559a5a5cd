// Package aws implements the counting engine's scope provider on top
// of AWS SDK v2: STS for identity and role assumption, Organizations
// for account enumeration, and per-service clients for the counters.
package aws

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	orgtypes "github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/cloudtally/cloudtally/engine"
	"github.com/cloudtally/cloudtally/retry"
	"github.com/cloudtally/cloudtally/telemetry"
	"github.com/cloudtally/cloudtally/types"
)

// DefaultRoleName is the cross-account role assumed in organization
// mode when no role override is given.
const DefaultRoleName = "OrganizationAccountAccessRole"

const fallbackRegion = "us-east-1"

// Options configure the AWS provider.
type Options struct {
	// Region is the home region for control-plane calls. Empty falls
	// back to the SDK default chain, then us-east-1.
	Region string

	// RoleName is the cross-account role assumed per organization
	// account.
	RoleName string

	// StateFilter selects counted instance states.
	StateFilter types.StateFilter

	// DeepInspect enables the SSM process probe for exposed instances.
	DeepInspect bool

	// Retry knobs shared by every provider call.
	MaxAttempts int
	BackoffBase time.Duration
	CallTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.RoleName == "" {
		o.RoleName = DefaultRoleName
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = retry.DefaultMaxAttempts
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = retry.DefaultBackoffBase
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 30 * time.Second
	}
}

// Provider enumerates scopes and opens per-scope sessions.
type Provider struct {
	cfg    aws.Config
	sts    STSAPI
	orgs   OrganizationsAPI
	ec2    EC2API
	opts   Options
	logger *telemetry.Logger

	mu       sync.Mutex
	callerID string
}

// New creates a provider from the default credential chain.
func New(ctx context.Context, opts Options) (*Provider, error) {
	opts.applyDefaults()

	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = fallbackRegion
	}

	return &Provider{
		cfg:    cfg,
		sts:    sts.NewFromConfig(cfg),
		orgs:   organizations.NewFromConfig(cfg),
		ec2:    ec2.NewFromConfig(cfg),
		opts:   opts,
		logger: telemetry.NewLogger("aws"),
	}, nil
}

func (p *Provider) callOpts() []retry.Option {
	return []retry.Option{
		retry.WithMaxAttempts(p.opts.MaxAttempts),
		retry.WithBackoff(retry.Linear(p.opts.BackoffBase)),
	}
}

// CallerScope resolves the authenticated account via STS.
func (p *Provider) CallerScope(ctx context.Context) (types.Scope, error) {
	out, err := retry.Value(ctx, "sts:GetCallerIdentity", func(ctx context.Context) (*sts.GetCallerIdentityOutput, error) {
		return p.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	}, p.callOpts()...)
	if err != nil {
		return types.Scope{}, fmt.Errorf("failed to get caller identity: %w", err)
	}

	id := aws.ToString(out.Account)
	p.mu.Lock()
	p.callerID = id
	p.mu.Unlock()

	return types.Scope{ID: id}, nil
}

// OrganizationScopes lists all active accounts in the organization.
func (p *Provider) OrganizationScopes(ctx context.Context) ([]types.Scope, error) {
	return retry.Value(ctx, "organizations:ListAccounts", func(ctx context.Context) ([]types.Scope, error) {
		var scopes []types.Scope
		paginator := organizations.NewListAccountsPaginator(p.orgs, &organizations.ListAccountsInput{})
		for paginator.HasMorePages() {
			out, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to list organization accounts: %w", err)
			}
			for _, account := range out.Accounts {
				if account.Status != orgtypes.AccountStatusActive {
					continue
				}
				scopes = append(scopes, types.Scope{
					ID:   aws.ToString(account.Id),
					Name: aws.ToString(account.Name),
				})
			}
		}
		return scopes, nil
	}, p.callOpts()...)
}

// ActiveRegions returns the account's enabled-region catalog.
func (p *Provider) ActiveRegions(ctx context.Context) ([]string, error) {
	out, err := retry.Value(ctx, "ec2:DescribeRegions", func(ctx context.Context) (*ec2.DescribeRegionsOutput, error) {
		return p.ec2.DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	}, p.callOpts()...)
	if err != nil {
		return nil, fmt.Errorf("failed to describe regions: %w", err)
	}

	regions := make([]string, 0, len(out.Regions))
	for _, r := range out.Regions {
		regions = append(regions, aws.ToString(r.RegionName))
	}
	sort.Strings(regions)
	return regions, nil
}

// OpenSession activates credentials for one scope. The caller's own
// account reuses the base credentials; any other account goes through
// cross-account role assumption. The scoped credentials live only in
// the returned session and are dropped when it closes.
func (p *Provider) OpenSession(ctx context.Context, scope types.Scope) (engine.Session, error) {
	callerID, err := p.callerAccountID(ctx)
	if err != nil {
		return nil, err
	}

	cfg := p.cfg.Copy()
	if scope.ID != callerID {
		roleArn := fmt.Sprintf("arn:aws:iam::%s:role/%s", scope.ID, p.opts.RoleName)
		out, err := retry.Value(ctx, "sts:AssumeRole", func(ctx context.Context) (*sts.AssumeRoleOutput, error) {
			return p.sts.AssumeRole(ctx, &sts.AssumeRoleInput{
				RoleArn:         aws.String(roleArn),
				RoleSessionName: aws.String("cloudtally-" + scope.ID),
				DurationSeconds: aws.Int32(3600),
			})
		}, p.callOpts()...)
		if err != nil {
			return nil, fmt.Errorf("failed to assume role %s: %w", roleArn, err)
		}

		creds := out.Credentials
		cfg.Credentials = aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			aws.ToString(creds.AccessKeyId),
			aws.ToString(creds.SecretAccessKey),
			aws.ToString(creds.SessionToken),
		))
		p.logger.Debug().Str("scope", scope.String()).Str("role", roleArn).Msg("assumed cross-account role")
	}

	return newSession(cfg, scope, p.opts, p.logger), nil
}

func (p *Provider) callerAccountID(ctx context.Context) (string, error) {
	p.mu.Lock()
	cached := p.callerID
	p.mu.Unlock()
	if cached != "" {
		return cached, nil
	}
	scope, err := p.CallerScope(ctx)
	if err != nil {
		return "", err
	}
	return scope.ID, nil
}

var _ engine.ScopeProvider = (*Provider)(nil)
