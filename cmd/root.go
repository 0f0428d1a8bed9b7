package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "costlens",
	Short: "Cloud cost analysis with AI-assisted anomaly explanations",
	Long: `Costlens ingests a per-service cloud cost ledger, charts how spend moved
over time at a chosen granularity, flags dates that deviated abnormally
from expectation, and explains them through an AI copilot.

Data can come from a demo generator, AWS Cost Explorer, or a hosted
analysis backend.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.costlens.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug output (shows progress + internal diagnostics)")

	rootCmd.PersistentFlags().String("backend-url", "", "Hosted analysis backend URL (or set backend.url in config)")
	rootCmd.PersistentFlags().String("aws-profile", "", "AWS profile for Cost Explorer (default: from AWS_PROFILE env)")

	// TODO: add error return here
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("backend.url", rootCmd.PersistentFlags().Lookup("backend-url"))
	viper.BindPFlag("aws.profile", rootCmd.PersistentFlags().Lookup("aws-profile"))

	viper.SetDefault("cache.ttl_hours", 12)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".costlens")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("debug") {
			fmt.Println("Using config file:", viper.ConfigFileUsed())
		}
	}
}
