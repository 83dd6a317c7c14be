package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	outputFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "cloudhost",
	Short: "Self-healing host for scheduled background workers",
	Long: `cloudhost supervises an isolated instance of a processing loop on a
worker node: it gates scheduled tasks behind fleet-wide on/off flags,
bounds every execution with a hard deadline, and recycles the loop
when a new deployment is published.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./cloudhost.yaml or /etc/cloudhost/cloudhost.yaml)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}
