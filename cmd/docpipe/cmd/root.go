// Package cmd provides the CLI commands for docpipe.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/docpipe/docpipe/pkg/version"
)

var (
	dataDir   string
	debugMode bool
)

// NewRootCmd creates the root command for the docpipe CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docpipe",
		Short: "Event-driven document search pipeline",
		Long: `docpipe watches an object store for uploaded PDF documents, extracts
their text, and maintains a full-text search index over them.

Run 'docpipe serve' to start the pipeline and search API, drop PDFs into
the watched folder (or 'docpipe ingest' them), then query with
'docpipe search' or the web UI.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("docpipe version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", ".docpipe", "Data directory for ledger, index, and local storage")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
