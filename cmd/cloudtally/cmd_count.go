package main

import (
	"github.com/spf13/cobra"

	"github.com/cloudtally/cloudtally/config"
)

var (
	countConfigPath     string
	countRegion         string
	countOrgMode        bool
	countDSPM           bool
	countDeepInspect    bool
	countRoleName       string
	countIncludeStopped bool
	countMetricsAddr    string
	countDebug          bool
)

// countCmd represents the count command
var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Count licensing-relevant resources",
	Long: `Count licensing-relevant resources across accounts and regions.

Single-account mode scans the caller's account. Organization mode
enumerates every active account under the organization root and
assumes a cross-account role in each.

DSPM mode additionally inspects compute instances for exposed database
ports; deep inspection confirms findings with a remote process listing
where the instance is reachable over the managed execution channel.`,
	Example: `  cloudtally count                          # caller account, all active regions
  cloudtally count --region us-east-1       # one region only
  cloudtally count --org                    # every organization account
  cloudtally count --dspm --connect         # database detection with remote confirmation
  cloudtally count --include-stopped        # count stopped instances too`,
	RunE: runCount,
}

func init() {
	rootCmd.AddCommand(countCmd)

	countCmd.Flags().StringVarP(&countConfigPath, "config", "c", "", "Path to config file")
	countCmd.Flags().StringVarP(&countRegion, "region", "r", "", "Restrict the scan to one region")
	countCmd.Flags().BoolVar(&countOrgMode, "org", false, "Scan every account in the organization")
	countCmd.Flags().BoolVar(&countDSPM, "dspm", false, "Detect database workloads on compute instances")
	countCmd.Flags().BoolVar(&countDeepInspect, "connect", false, "Confirm exposed instances with a remote process probe (implies --dspm)")
	countCmd.Flags().StringVar(&countRoleName, "role", "", "Cross-account role name for organization mode")
	countCmd.Flags().BoolVar(&countIncludeStopped, "include-stopped", false, "Count stopped instances as well as running ones")
	countCmd.Flags().StringVar(&countMetricsAddr, "metrics", "", "Serve Prometheus metrics on this address during the scan")
	countCmd.Flags().BoolVar(&countDebug, "debug", false, "Enable debug logging")
}

func runCount(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	return (&CountCommand{Config: cfg, Debug: countDebug}).Run(cmd.Context())
}

// buildConfig merges flags over the optional config file.
func buildConfig() (*config.Config, error) {
	var cfg *config.Config
	if countConfigPath != "" {
		loaded, err := config.Load(countConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		defaults := config.Default()
		cfg = &defaults
	}

	if countRegion != "" {
		cfg.Region = countRegion
	}
	if countOrgMode {
		cfg.OrgMode = true
	}
	if countDSPM {
		cfg.DSPM = true
	}
	if countDeepInspect {
		cfg.DSPM = true
		cfg.DeepInspect = true
	}
	if countRoleName != "" {
		cfg.RoleName = countRoleName
	}
	if countIncludeStopped {
		cfg.IncludeStopped = true
	}
	if countMetricsAddr != "" {
		cfg.MetricsAddr = countMetricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
