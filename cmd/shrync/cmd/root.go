// Package cmd implements the shrync CLI commands.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shrync/shrync/internal/logger"
	"github.com/shrync/shrync/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "shrync",
	Short:   "Automated media transcoding service",
	Version: version.Short(),
	Long: `shrync watches configured library directories, transcodes eligible
video files in place to H.265/H.264, and tracks progress and history
through a small HTTP API.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		logger.Init(viper.GetString("log_level"))
		return nil
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: /config/shrync.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("/config")
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("shrync")
	}

	viper.SetEnvPrefix("SHRYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
