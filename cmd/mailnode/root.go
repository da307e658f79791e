package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/edup2p/mailbox/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "mailnode",
	Short: "Cluster mailbox node",
	Long: `mailnode runs one peer of a mailbox cluster: it connects to the peers in its
configuration, and lets mailboxes on any of its worker threads receive messages
from anywhere in the cluster.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := parseLevel(viper.GetString("log_level"))
		if err != nil {
			return err
		}
		programLevel.Set(level)
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is ./mailnode.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.PersistentFlags().String("log-level", "info", "log level: trace, debug, info, warn or error")
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(keygenCmd, runCmd, shellCmd)
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("mailnode")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/mailnode")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("MAILNODE")
	// e.g., MAILNODE_PRIVATE_KEY for private_key
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := viper.ReadInConfig(); err != nil {
		slog.Debug("no config file read", "err", err)
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "trace":
		return types.LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}
