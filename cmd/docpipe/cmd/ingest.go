package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docpipe/docpipe/internal/config"
	"github.com/docpipe/docpipe/internal/event"
)

func newIngestCmd() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "ingest <file.pdf> [file.pdf...]",
		Short: "Upload PDF documents into the pipeline",
		Long: `Ingest uploads one or more PDF files to the raw bucket. The running
serve instance picks up the upload notification, extracts the text, and
indexes it. With --key, a single file is stored under that key instead
of its basename.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if key != "" && len(args) > 1 {
				return fmt.Errorf("--key can only be used with a single file")
			}

			cfg, err := config.Load(dataDir)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}

			for _, path := range args {
				storageKey := key
				if storageKey == "" {
					storageKey = filepath.Base(path)
				}
				if !strings.HasSuffix(strings.ToLower(storageKey), cfg.Storage.RawSuffix) {
					return fmt.Errorf("%s: only %s documents are processed", path, cfg.Storage.RawSuffix)
				}

				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}

				if err := store.Put(cmd.Context(), cfg.Storage.RawBucket, storageKey, data, "application/pdf"); err != nil {
					return fmt.Errorf("upload %s: %w", path, err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s as %s (document %s)\n",
					path, storageKey, event.DocumentID(storageKey)[:12])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "Storage key for the uploaded document (single file only)")
	return cmd
}
