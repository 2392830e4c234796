package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	logpkg "github.com/ciphernode/delegation-relayer/log"
	"github.com/ciphernode/delegation-relayer/relayer-app/config"
)

var (
	// Set via -ldflags at build time
	version = "dev"
	commit  = "none"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "delegation-relayer",
		Short: "Delegation relayer",
		Long: "Relays user-decryption delegation events observed on a host chain\n" +
			"into the gateway access-control contract, surviving host reorgs,\n" +
			"gateway RPC faults and process restarts.",
		RunE: runApp,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("delegation-relayer %s (commit %s, %s)\n", version, commit, runtime.Version())
		},
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func execute() error {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "configs/relayer.yaml", "config file path")

	return rootCmd.Execute()
}

func runApp(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger := logpkg.New(cfg.Log)
	logger.Info().Str("version", version).Str("config", cfgFile).Msg("starting delegation relayer")

	app, err := NewApp(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w", err)
	}
	return app.Run(cmd.Context())
}
