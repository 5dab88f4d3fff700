package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/wesm/mailsaver/internal/display"
	"github.com/wesm/mailsaver/internal/errs"
	"github.com/wesm/mailsaver/internal/fakegen"
	"github.com/wesm/mailsaver/internal/persist"
	"github.com/wesm/mailsaver/internal/remote"
	"github.com/wesm/mailsaver/internal/store"
	"github.com/wesm/mailsaver/internal/workflow"
)

// errNotLoggedIn is returned by commands that need a stored session.
var errNotLoggedIn = errors.New("not logged in (run 'mailsaver login' or 'mailsaver register' first)")

// app holds the pieces a client command works with.
type app struct {
	db      *store.Store
	kv      persist.Store
	client  *remote.Client
	orch    *workflow.Orchestrator
	printer *display.Printer
}

// openApp opens the local persistence store, builds the remote client and
// restores any stored session.
func openApp(cmd *cobra.Command) (*app, error) {
	ctx := cmd.Context()
	db, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.InitSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	client, err := remote.New(remote.Config{
		URL:           cfg.Remote.URL,
		AllowInsecure: cfg.Remote.AllowInsecure,
		Timeout:       cfg.Remote.Timeout.Duration,
		QPS:           cfg.Remote.QPS,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("remote client: %w", err)
	}
	client.WithLogger(logger)

	kv := persist.Namespace(persist.Prefix, db)
	a := &app{
		db:      db,
		kv:      kv,
		client:  client,
		printer: display.New(cmd.OutOrStdout()),
	}
	a.orch = workflow.New(client, kv, fakegen.New(cfg.Fake), workflow.SettingsFrom(cfg)).
		WithLogger(logger).
		WithEmitter(newLogEmitter(logger))
	if _, err := a.orch.Restore(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("restore session: %w", err)
	}
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// requireSession fails when no session was restored.
func (a *app) requireSession() error {
	if _, ok := a.orch.Session(); !ok {
		return errNotLoggedIn
	}
	return nil
}

// report prints the user-facing message for a workflow error and returns
// err for the exit status.
func (a *app) report(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	a.printer.Error(errs.UserMessage(err))
	return err
}

// isTerminal reports whether r is an interactive terminal.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && display.IsTerminal(f)
}

// logEmitter writes workflow events to the logger.
type logEmitter struct {
	logger *slog.Logger
}

func newLogEmitter(logger *slog.Logger) workflow.Emitter {
	return &logEmitter{logger: logger}
}

func (e *logEmitter) Emit(ev workflow.Event) {
	attrs := []any{"workflow", string(ev.Workflow), "state", ev.State.String()}
	switch {
	case ev.Loading:
		e.logger.Debug("loading", attrs...)
	case ev.State == workflow.StateRejected:
		e.logger.Debug("rejected", append(attrs, "fields", ev.Fields)...)
	case ev.State == workflow.StateFailed:
		e.logger.Debug("failed", append(attrs, "message", ev.Message)...)
	default:
		if ev.View != nil {
			attrs = append(attrs, "total", ev.View.Total, "page", ev.View.Page)
		}
		e.logger.Debug("done", append(attrs, "items", len(ev.Items))...)
	}
}
