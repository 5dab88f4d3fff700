package cmd

import (
	"github.com/spf13/cobra"

	"github.com/wesm/mailsaver/internal/display"
	"github.com/wesm/mailsaver/internal/reconcile"
	"github.com/wesm/mailsaver/internal/session"
)

var countCached bool

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Show how many email addresses are saved",
	Long: `Ask the remote service for the number of saved addresses and store it
locally. With --cached the last stored count is shown without a request.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		rec := reconcile.New(a.client, a.kv).WithLogger(logger)
		if countCached {
			n, ok, err := rec.Cached(ctx)
			if err != nil {
				return err
			}
			if !ok {
				a.printer.Info("No cached count.")
				return nil
			}
			a.printer.Info("%s saved (cached)", display.FormatCount(n))
			return nil
		}

		sess, ok := a.orch.Session()
		if !ok {
			return errNotLoggedIn
		}
		n, err := rec.Reconcile(session.NewContext(ctx, &sess), nil)
		if err != nil {
			return a.report(err)
		}
		a.printer.Info("%s saved", display.FormatCount(n))
		return nil
	},
}

func init() {
	countCmd.Flags().BoolVar(&countCached, "cached", false, "show the last stored count without a request")
	rootCmd.AddCommand(countCmd)
}
