package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesm/mailsaver/internal/workflow"
)

var (
	searchEngine   string
	searchLimit    string
	searchSimulate bool
	searchAdd      []string
)

var searchCmd = &cobra.Command{
	Use:   "search KEY",
	Short: "Search for email addresses",
	Long: `Search the remote service for email addresses matching KEY and print the
results. Results can be saved in the same run with --add, which takes result
ids and may be repeated.

With --simulate no request is made and sample results are generated locally.

Examples:
  mailsaver search bakery
  mailsaver search bakery --engine bing --limit 20
  mailsaver search bakery --add 1a2b3c --add 4d5e6f`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	var key string
	if len(args) > 0 {
		key = args[0]
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	req := workflow.SearchRequest{
		Key:       key,
		Engine:    searchEngine,
		Limit:     searchLimit,
		Simulated: searchSimulate,
	}
	if !searchSimulate {
		if err := a.requireSession(); err != nil {
			return err
		}
	}
	if _, err := a.orch.Search(ctx, req); err != nil {
		return a.report(err)
	}

	for _, id := range searchAdd {
		if _, err := a.orch.AddEmail(ctx, id); err != nil {
			return a.report(fmt.Errorf("add %s: %w", id, err))
		}
	}

	ws := a.orch.Workspace()
	a.printer.Results(ws.Results)
	if len(searchAdd) > 0 {
		a.printer.Info("Saved %d; %d in collection.", len(searchAdd), ws.View.Total)
	}
	return nil
}

func init() {
	searchCmd.Flags().StringVar(&searchEngine, "engine", "", "search engine (google, bing, yahoo, duckduckgo)")
	searchCmd.Flags().StringVar(&searchLimit, "limit", "", "maximum number of results")
	searchCmd.Flags().BoolVar(&searchSimulate, "simulate", false, "generate sample results without a request")
	searchCmd.Flags().StringArrayVar(&searchAdd, "add", nil, "save the result with this id (repeatable)")
	rootCmd.AddCommand(searchCmd)
}
