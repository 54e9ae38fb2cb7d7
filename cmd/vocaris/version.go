package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var buildVersion = "dev"
var buildCommitID = "unknown"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(versionString())
	},
}

func init() {
	rootCmd.Version = versionString()
	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.AddCommand(versionCmd)
}

func versionString() string {
	return fmt.Sprintf("vocaris %s\ncommit_id %s", buildVersion, buildCommitID)
}
