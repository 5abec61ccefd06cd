package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/docpipe/docpipe/internal/config"
	"github.com/docpipe/docpipe/internal/index"
	"github.com/docpipe/docpipe/internal/query"
)

func newSearchCmd() *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed documents",
		Long: `Search queries the running serve instance over HTTP. When no server is
reachable it opens the index directly, which only works while serve is
stopped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(dataDir)
			if err != nil {
				return err
			}
			if limit > 0 {
				cfg.Query.MaxResults = limit
			}

			results, err := searchViaHTTP(cfg, args[0])
			if err != nil {
				results, err = searchDirect(cmd, cfg, args[0])
				if err != nil {
					return err
				}
			}

			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(results)
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No matching documents.")
				return nil
			}
			for _, r := range results {
				fmt.Fprintln(cmd.OutOrStdout(), r.String())
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output results as JSON")
	return cmd
}

// searchViaHTTP queries the running server.
func searchViaHTTP(cfg *config.Config, queryStr string) ([]query.Result, error) {
	body, err := json.Marshal(map[string]string{"query": queryStr})
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post("http://"+cfg.Server.Addr+"/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return nil, fmt.Errorf("search failed: %s", apiErr.Error)
	}

	var payload struct {
		Results []query.Result `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return payload.Results, nil
}

// searchDirect opens the index without a server.
func searchDirect(cmd *cobra.Command, cfg *config.Config, queryStr string) ([]query.Result, error) {
	idx, err := index.NewBleveIndex(cfg.IndexPath(), nil)
	if err != nil {
		return nil, fmt.Errorf("open search index: %w", err)
	}
	defer func() { _ = idx.Close() }()

	svc := query.NewService(idx, query.Config{
		MaxResults:    cfg.Query.MaxResults,
		SnippetRadius: cfg.Query.SnippetRadius,
	}, nil)
	return svc.Search(cmd.Context(), queryStr)
}
