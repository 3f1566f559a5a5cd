package types

import "strings"

// Scope identifies one account being scanned.
type Scope struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// String returns a human-readable scope label for logs.
func (s Scope) String() string {
	if s.Name == "" {
		return s.ID
	}
	return s.ID + " (" + s.Name + ")"
}

// StateFilter selects which compute instance states are counted.
// The same filter drives both the compute counter and the database
// exposure candidate list.
type StateFilter int

const (
	// RunningOnly counts running instances only.
	RunningOnly StateFilter = iota
	// RunningAndStopped also counts stopped instances.
	RunningAndStopped
)

// States returns the provider state names matched by the filter.
func (f StateFilter) States() []string {
	if f == RunningAndStopped {
		return []string{"running", "stopped"}
	}
	return []string{"running"}
}

func (f StateFilter) String() string {
	return strings.Join(f.States(), ",")
}

// InstanceCandidate is one compute instance queued for database
// exposure inspection.
type InstanceCandidate struct {
	InstanceID       string   `json:"instance_id"`
	Name             string   `json:"name,omitempty"`
	PrivateIP        string   `json:"private_ip,omitempty"`
	AccountID        string   `json:"account_id"`
	Region           string   `json:"region"`
	AvailabilityZone string   `json:"availability_zone,omitempty"`
	SecurityGroupIDs []string `json:"security_group_ids,omitempty"`
}

// ExposureFinding is the outcome of inspecting one candidate.
type ExposureFinding struct {
	Candidate InstanceCandidate `json:"candidate"`

	// Exposed is set when a network rule allows a known database port.
	Exposed bool  `json:"exposed"`
	Port    int32 `json:"port,omitempty"`

	// RemoteCapable is set when the instance is reachable over the
	// provider's managed remote-execution channel.
	RemoteCapable bool `json:"remote_capable"`

	// Confirmed is set when a remote process listing showed a running
	// database process. ProcessEvidence holds the matched process names.
	Confirmed       bool   `json:"confirmed"`
	ProcessEvidence string `json:"process_evidence,omitempty"`
}
