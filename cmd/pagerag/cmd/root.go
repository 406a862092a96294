// Package cmd provides the CLI commands for pagerag.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/doclens/pagerag/internal/config"
	"github.com/doclens/pagerag/internal/logging"
	"github.com/doclens/pagerag/pkg/version"
)

var (
	cfgPath   string
	debugMode bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the pagerag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pagerag",
		Short: "Page-aware retrieval pipeline for documents",
		Long: `pagerag indexes extracted document text into a local hybrid index
(BM25 + semantic) and answers questions against it with page-level
citations.

Index a document first, then query it:

  pagerag index --file report --text report.txt
  pagerag query "What is the conclusion?" --file report`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("pagerag version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "Config file path")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRunE = teardownLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newCacheCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupLogging routes structured logs to the log file, keeping stdout free
// for command output. An unusable log directory falls back to stderr.
func setupLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	cfg.WriteToStderr = false
	if debugMode {
		cfg.Level = "debug"
	}

	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
		return nil
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func teardownLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
