package aws

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/cloudtally/cloudtally/retry"
	"github.com/cloudtally/cloudtally/types"
)

// databasePorts are the well-known ports that mark an instance as a
// database exposure candidate.
var databasePorts = []int32{3306, 5432, 27017, 1433, 33060}

// databaseProcessPatterns match process names in remote listings.
var databaseProcessPatterns = []string{"postgres", "mongo", "mysql", "mariadb", "sqlserver", "sqlservr"}

const processListCommand = "ps -e -o comm="

// DatabaseCandidates lists compute instances in the region, filtered
// by the same state filter as the compute counter.
func (s *Session) DatabaseCandidates(ctx context.Context, region string) ([]types.InstanceCandidate, error) {
	return retry.Value(ctx, "ec2:DescribeInstances", func(ctx context.Context) ([]types.InstanceCandidate, error) {
		input := &ec2.DescribeInstancesInput{
			Filters: []ec2types.Filter{{
				Name:   aws.String("instance-state-name"),
				Values: s.opts.StateFilter.States(),
			}},
		}
		var candidates []types.InstanceCandidate
		paginator := ec2.NewDescribeInstancesPaginator(s.ec2, input)
		for paginator.HasMorePages() {
			out, err := paginator.NextPage(ctx, func(o *ec2.Options) { o.Region = region })
			if err != nil {
				return nil, fmt.Errorf("failed to describe instances: %w", err)
			}
			for _, reservation := range out.Reservations {
				for _, instance := range reservation.Instances {
					candidates = append(candidates, buildCandidate(instance, s.scope.ID, region))
				}
			}
		}
		return candidates, nil
	}, s.callOpts()...)
}

func buildCandidate(instance ec2types.Instance, accountID, region string) types.InstanceCandidate {
	candidate := types.InstanceCandidate{
		InstanceID: aws.ToString(instance.InstanceId),
		PrivateIP:  aws.ToString(instance.PrivateIpAddress),
		AccountID:  accountID,
		Region:     region,
	}
	if instance.Placement != nil {
		candidate.AvailabilityZone = aws.ToString(instance.Placement.AvailabilityZone)
	}
	for _, tag := range instance.Tags {
		if aws.ToString(tag.Key) == "Name" {
			candidate.Name = aws.ToString(tag.Value)
			break
		}
	}
	for _, sg := range instance.SecurityGroups {
		candidate.SecurityGroupIDs = append(candidate.SecurityGroupIDs, aws.ToString(sg.GroupId))
	}
	return candidate
}

// InspectExposure resolves the candidate's security groups, tests
// their allowed ports against the known database ports, and, when deep
// inspection is enabled, confirms the finding with a remote process
// listing over SSM.
func (s *Session) InspectExposure(ctx context.Context, candidate types.InstanceCandidate) (types.ExposureFinding, error) {
	finding := types.ExposureFinding{Candidate: candidate}
	if len(candidate.SecurityGroupIDs) == 0 {
		return finding, nil
	}

	out, err := retry.Value(ctx, "ec2:DescribeSecurityGroups", func(ctx context.Context) (*ec2.DescribeSecurityGroupsOutput, error) {
		return s.ec2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
			GroupIds: candidate.SecurityGroupIDs,
		}, func(o *ec2.Options) { o.Region = candidate.Region })
	}, s.slowCallOpts()...)
	if err != nil {
		return finding, err
	}

	port, matched := matchDatabasePort(out.SecurityGroups)
	if !matched {
		return finding, nil
	}
	finding.Exposed = true
	finding.Port = port

	if !s.opts.DeepInspect {
		return finding, nil
	}

	managed, err := s.instanceManaged(ctx, candidate)
	if err != nil {
		// Unreachable remote channel is not an inspection failure;
		// the engine applies the unconfirmed-count policy.
		s.logger.Debug().
			Err(err).
			Str("instance", candidate.InstanceID).
			Msg("remote execution channel unavailable")
		return finding, nil
	}
	if !managed {
		return finding, nil
	}
	finding.RemoteCapable = true

	evidence, err := s.listDatabaseProcesses(ctx, candidate)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("instance", candidate.InstanceID).
			Msg("remote process probe failed")
		return finding, nil
	}
	if evidence != "" {
		finding.Confirmed = true
		finding.ProcessEvidence = evidence
	}
	return finding, nil
}

// matchDatabasePort returns the first known database port allowed by
// any rule. The scan short-circuits on the first match; it does not
// enumerate every exposed port.
func matchDatabasePort(groups []ec2types.SecurityGroup) (int32, bool) {
	for _, group := range groups {
		for _, perm := range group.IpPermissions {
			for _, port := range databasePorts {
				if permissionCoversPort(perm, port) {
					return port, true
				}
			}
		}
	}
	return 0, false
}

func permissionCoversPort(perm ec2types.IpPermission, port int32) bool {
	// Protocol -1 means all traffic, any port.
	if aws.ToString(perm.IpProtocol) == "-1" {
		return true
	}
	if perm.FromPort == nil || perm.ToPort == nil {
		return false
	}
	return aws.ToInt32(perm.FromPort) <= port && port <= aws.ToInt32(perm.ToPort)
}

// instanceManaged reports whether the instance is reachable through
// SSM.
func (s *Session) instanceManaged(ctx context.Context, candidate types.InstanceCandidate) (bool, error) {
	out, err := retry.Value(ctx, "ssm:DescribeInstanceInformation", func(ctx context.Context) (*ssm.DescribeInstanceInformationOutput, error) {
		return s.ssm.DescribeInstanceInformation(ctx, &ssm.DescribeInstanceInformationInput{
			Filters: []ssmtypes.InstanceInformationStringFilter{{
				Key:    aws.String("InstanceIds"),
				Values: []string{candidate.InstanceID},
			}},
		}, func(o *ssm.Options) { o.Region = candidate.Region })
	}, s.slowCallOpts()...)
	if err != nil {
		return false, err
	}
	for _, info := range out.InstanceInformationList {
		if info.PingStatus == ssmtypes.PingStatusOnline {
			return true, nil
		}
	}
	return false, nil
}

// listDatabaseProcesses runs one remote process listing and returns
// the matched database process names, empty when none ran.
func (s *Session) listDatabaseProcesses(ctx context.Context, candidate types.InstanceCandidate) (string, error) {
	send, err := retry.Value(ctx, "ssm:SendCommand", func(ctx context.Context) (*ssm.SendCommandOutput, error) {
		return s.ssm.SendCommand(ctx, &ssm.SendCommandInput{
			InstanceIds:  []string{candidate.InstanceID},
			DocumentName: aws.String("AWS-RunShellScript"),
			Parameters:   map[string][]string{"commands": {processListCommand}},
		}, func(o *ssm.Options) { o.Region = candidate.Region })
	}, s.slowCallOpts()...)
	if err != nil {
		return "", err
	}
	if send.Command == nil {
		return "", fmt.Errorf("send command returned no command ID")
	}

	output, err := s.waitForInvocation(ctx, candidate, aws.ToString(send.Command.CommandId))
	if err != nil {
		return "", err
	}
	return filterDatabaseProcesses(output), nil
}

// waitForInvocation polls the command invocation until it finishes or
// the call timeout elapses.
func (s *Session) waitForInvocation(ctx context.Context, candidate types.InstanceCandidate, commandID string) (string, error) {
	deadline := time.Now().Add(s.opts.CallTimeout)
	for {
		out, err := s.ssm.GetCommandInvocation(ctx, &ssm.GetCommandInvocationInput{
			CommandId:  aws.String(commandID),
			InstanceId: aws.String(candidate.InstanceID),
		}, func(o *ssm.Options) { o.Region = candidate.Region })
		if err == nil {
			switch out.Status {
			case ssmtypes.CommandInvocationStatusSuccess:
				return aws.ToString(out.StandardOutputContent), nil
			case ssmtypes.CommandInvocationStatusFailed,
				ssmtypes.CommandInvocationStatusCancelled,
				ssmtypes.CommandInvocationStatusTimedOut:
				return "", fmt.Errorf("remote command %s: %s", commandID, out.Status)
			}
		}
		// Not registered yet or still running; keep polling.

		if time.Now().After(deadline) {
			return "", fmt.Errorf("remote command %s timed out", commandID)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func filterDatabaseProcesses(output string) string {
	var matched []string
	for _, line := range strings.Split(output, "\n") {
		process := strings.ToLower(strings.TrimSpace(line))
		if process == "" {
			continue
		}
		for _, pattern := range databaseProcessPatterns {
			if strings.Contains(process, pattern) {
				matched = append(matched, process)
				break
			}
		}
	}
	return strings.Join(matched, ",")
}
