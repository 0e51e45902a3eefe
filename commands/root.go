// Package commands implements the bizscout CLI.
package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "bizscout",
	Short: "Scrape business-for-sale marketplaces into one deduplicated listing store",
	Long: `bizscout crawls business-for-sale marketplaces, normalizes each listing's
financials and stores it once per business, however many times it is seen.

Examples:
  # Scrape every enabled source once
  bizscout run

  # Two pages of one source, printed but not stored
  bizscout run --sources quietlight --max-pages 2 --dry-run

  # Scheduled scraping, background enrichment and the HTTP API
  bizscout daemon`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "suppress progress output")
	rootCmd.PersistentFlags().String("sites-dir", "", "directory of site YAML files (default $SITES_DIR or config/sites)")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("sites_dir", rootCmd.PersistentFlags().Lookup("sites-dir"))
}

func initConfig() {
	// BIZSCOUT_DEBUG, BIZSCOUT_QUIET, BIZSCOUT_SITES_DIR and so on.
	// Everything else is read by config.Load from the plain environment.
	viper.SetEnvPrefix("BIZSCOUT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// logInfo prints an info message to stderr (unless quiet mode).
func logInfo(format string, args ...any) {
	if !viper.GetBool("quiet") {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
