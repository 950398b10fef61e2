// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the paper-extractor CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/paper-extractor/internal/config"
	"github.com/pdiddy/paper-extractor/internal/logging"
	"github.com/pdiddy/paper-extractor/internal/secrets"
	"github.com/pdiddy/paper-extractor/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// Loaded by the root command before any subcommand runs.
var (
	cfg    *types.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "paper-extractor",
	Short: "Extract figures and biomedical entities from open-access papers",
	Long: `paper-extractor retrieves open-access articles from PubMed Central,
annotates every figure caption with biomedical named entities, and stores
one record per paper for later retrieval and CSV/XLSX export.

Identifiers can be given on the command line, in batch files dropped into a
watch directory, or through the REST API.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./paper-extractor.yaml or ~/.config/paper-extractor/config.yaml)")
	rootCmd.PersistentFlags().String("secrets-dir", secrets.DefaultDir, "directory of secret files (ncbi-api-key, api-key)")
	rootCmd.PersistentFlags().Bool("debug", false, "human-readable debug logging")
	rootCmd.PersistentFlags().Bool("json", false, "print results as JSON")

	_ = viper.BindPFlag("log.debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func loadConfig(cmd *cobra.Command, args []string) error {
	v := viper.GetViper()
	if err := config.Bind(v); err != nil {
		return err
	}

	cfgFile, _ := cmd.Flags().GetString("config")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("paper-extractor")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "paper-extractor"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	// The logger does not exist yet, so unreadable secrets are reported
	// once it does.
	secretsDir, _ := cmd.Flags().GetString("secrets-dir")
	s, err := secrets.Load(secretsDir, nil)
	if err != nil {
		return err
	}

	c, err := config.Load(v, s)
	if err != nil {
		return err
	}
	l, err := logging.New(c.Log)
	if err != nil {
		return err
	}

	cfg, logger = c, l
	if used := v.ConfigFileUsed(); used != "" {
		logger.Debug("using config file", zap.String("path", used))
	}
	if len(s) > 0 {
		logger.Debug("loaded secrets", zap.Strings("keys", secrets.Keys(s)))
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}
