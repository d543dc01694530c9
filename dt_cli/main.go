package main

import (
	"fmt"
	"os"

	"github.com/niczy/designtree/internal/config"
	"github.com/niczy/designtree/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "dt",
	Short: "Inspect and edit design tree documents",
	Long: `dt works on structure and snapshot documents (JSON or YAML) on disk,
and talks to a running design service for exports.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.designtree.yaml)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "", "Set log level. Available: debug, info, warn, error, fatal")

	registerLocalCommands(rootCmd)
	registerRemoteCommands(rootCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	cfg, err := config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	level := cfg.LogLevel
	if flagLevel, _ := rootCmd.PersistentFlags().GetString("loglevel"); flagLevel != "" {
		level = flagLevel
	}
	if err := logging.SetLogLevel(level); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.Log.SetOutput(os.Stderr)
}
