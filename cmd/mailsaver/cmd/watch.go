package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesm/mailsaver/internal/display"
	"github.com/wesm/mailsaver/internal/reconcile"
	"github.com/wesm/mailsaver/internal/scheduler"
	"github.com/wesm/mailsaver/internal/session"
)

var (
	watchSchedule string
	watchOnce     bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the stored count in sync on a schedule",
	Long: `Reconcile the saved count against the remote service on a cron schedule
until interrupted. The schedule defaults to [schedule] reconcile in
config.toml.

Cron format: minute hour day-of-month month day-of-week
  Examples:
    */15 * * * *  = Every 15 minutes
    0 * * * *     = Hourly

Use Ctrl+C to stop.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, ok := a.orch.Session()
	if !ok {
		return errNotLoggedIn
	}
	rec := reconcile.New(a.client, a.kv).WithLogger(logger)
	reconcileFn := func(ctx context.Context, sessionID string) (int, error) {
		if sessionID != sess.UserID {
			return 0, fmt.Errorf("unknown session %s", sessionID)
		}
		return rec.Reconcile(session.NewContext(ctx, &sess), nil)
	}

	if watchOnce {
		n, err := reconcileFn(ctx, sess.UserID)
		if err != nil {
			return a.report(err)
		}
		a.printer.Info("%s saved", display.FormatCount(n))
		return nil
	}

	expr := watchSchedule
	if expr == "" {
		expr = cfg.Schedule.Reconcile
	}
	if expr == "" {
		return fmt.Errorf("no reconcile schedule configured\n\nSet one in config.toml:\n\n  [schedule]\n  reconcile = \"*/15 * * * *\"")
	}

	sched := scheduler.New(reconcileFn).WithLogger(logger)
	if err := sched.AddSession(sess.UserID, expr); err != nil {
		return err
	}
	sched.Start()
	if err := sched.Trigger(sess.UserID); err != nil {
		logger.Warn("initial reconcile not started", "error", err)
	}

	fmt.Printf("Reconciling %s on schedule %q\n", sess.Email, expr)
	for _, st := range sched.Status() {
		fmt.Printf("  next run at %s\n", st.NextRun.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Println("Press Ctrl+C to stop.")

	<-ctx.Done()
	<-sched.Stop().Done()
	logger.Info("watch stopped")
	return nil
}

func init() {
	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "", "cron expression (default from config)")
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "reconcile once and exit")
	rootCmd.AddCommand(watchCmd)
}
