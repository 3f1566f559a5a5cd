package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	rootCmd = &cobra.Command{
		Use:   "cloudtally",
		Short: "Cloud resource counting for license estimation",
		Long: `Cloudtally - Cloud Resource Counting

Cloudtally estimates licensing-relevant resource counts across one or
more cloud accounts: compute instances, Kubernetes nodes, managed
databases, storage, and database workloads detected through network
exposure.

Counts are read-only. Transient provider failures degrade to zero
contributions with a warning; only structural problems (bad region,
missing credentials, empty organization) abort a run.`,
		Version: version,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`Cloudtally {{.Version}}
`)
}
