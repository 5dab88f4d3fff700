package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/wesm/mailsaver/internal/model"
)

var (
	listPage     int
	listPageSize int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show a page of saved email addresses",
	Long: `Show one page of the saved collection. The count is reconciled against
the remote service on every run.

Examples:
  mailsaver list
  mailsaver list --page 2 --page-size 20`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.loadPage(cmd.Context(), listPage, listPageSize); err != nil {
			return err
		}
		a.printer.Page(a.orch.Workspace().View)
		return nil
	},
}

var (
	deletePage     int
	deletePageSize int
	deleteYes      bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Remove a saved email address",
	Long: `Remove the saved address with the given id. The id must be on the
selected page, so pass the same --page and --page-size used with 'list'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.loadPage(ctx, deletePage, deletePageSize); err != nil {
			return err
		}
		if !deleteYes && isTerminal(cmd.InOrStdin()) {
			ok, err := confirmDelete(a.orch.Workspace().View, args[0])
			if err != nil || !ok {
				return err
			}
		}
		out, err := a.orch.DeleteEmail(ctx, args[0])
		if err != nil {
			return a.report(err)
		}

		view := a.orch.Workspace().View
		if out.Reload {
			a.printer.Info("Deleted. Showing page %d.", out.Pager)
		} else {
			a.printer.Info("Deleted.")
		}
		a.printer.Page(view)
		return nil
	},
}

// confirmDelete asks before deleting id. Unknown ids are left for the
// workflow to reject.
func confirmDelete(view *model.CollectionView, id string) (bool, error) {
	i := model.FindByID(view.Items, id)
	if i < 0 {
		return true, nil
	}
	ok := false
	err := huh.NewConfirm().
		Title(fmt.Sprintf("Delete %s?", view.Items[i].Address)).
		Affirmative("Delete").
		Negative("Cancel").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}

// loadPage materializes page with the given page size. A zero size keeps
// the configured default.
func (a *app) loadPage(ctx context.Context, page, pageSize int) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	if pageSize > 0 {
		if _, err := a.orch.UpdateCounter(ctx, pageSize); err != nil {
			return a.report(err)
		}
	}
	if _, err := a.orch.GetPage(ctx, page); err != nil {
		return a.report(err)
	}
	return nil
}

func init() {
	listCmd.Flags().IntVar(&listPage, "page", 1, "page number")
	listCmd.Flags().IntVar(&listPageSize, "page-size", 0, "items per page (default from config)")
	deleteCmd.Flags().IntVar(&deletePage, "page", 1, "page the item is on")
	deleteCmd.Flags().IntVar(&deletePageSize, "page-size", 0, "items per page (default from config)")
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
}
