package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/wesm/mailsaver/internal/config"
	"github.com/wesm/mailsaver/internal/errs"
	"github.com/wesm/mailsaver/internal/fakegen"
	"github.com/wesm/mailsaver/internal/listutil"
	"github.com/wesm/mailsaver/internal/model"
	"github.com/wesm/mailsaver/internal/mutation"
	"github.com/wesm/mailsaver/internal/persist"
	"github.com/wesm/mailsaver/internal/reconcile"
	"github.com/wesm/mailsaver/internal/session"
)

// Settings groups the immutable configuration an Orchestrator needs.
type Settings struct {
	List   config.ListSettings
	Search config.SearchSettings
	UI     config.UISettings
	Auth   config.AuthSettings
}

// SettingsFrom extracts Settings from a loaded config.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{List: cfg.List, Search: cfg.Search, UI: cfg.UI, Auth: cfg.Auth}
}

// Orchestrator runs the workflows of one user session. Workflows of the
// same session are serialized; a workflow holds the lock from validation to
// its terminal state.
type Orchestrator struct {
	remote     Remote
	kv         persist.Store
	fake       *fakegen.Generator
	reconciler *reconcile.Reconciler
	policy     mutation.Policy
	settings   Settings
	clock      func() time.Time
	logger     *slog.Logger
	emitter    Emitter

	mu      sync.Mutex
	session *session.Session
	ws      Workspace
}

// New creates an Orchestrator with an empty workspace.
func New(r Remote, kv persist.Store, fake *fakegen.Generator, settings Settings) *Orchestrator {
	o := &Orchestrator{
		remote:     r,
		kv:         kv,
		fake:       fake,
		reconciler: reconcile.New(r, kv),
		policy:     mutation.Policy{Threshold: settings.List.ReloadAfterDeletes},
		settings:   settings,
		clock:      time.Now,
		logger:     slog.Default(),
		emitter:    discardEmitter{},
	}
	o.ws = o.freshWorkspace()
	return o
}

// WithLogger sets the logger.
func (o *Orchestrator) WithLogger(logger *slog.Logger) *Orchestrator {
	o.logger = logger
	o.reconciler.WithLogger(logger)
	return o
}

// WithEmitter sets the event sink.
func (o *Orchestrator) WithEmitter(e Emitter) *Orchestrator {
	o.emitter = e
	return o
}

// WithClock overrides the time source used for token expiry checks.
func (o *Orchestrator) WithClock(clock func() time.Time) *Orchestrator {
	o.clock = clock
	return o
}

func (o *Orchestrator) freshWorkspace() Workspace {
	limit := o.settings.Search.DefaultLimit
	return Workspace{
		View:    model.NewCollectionView(o.settings.List.DefaultPageSize),
		Options: SearchOptions{Engine: model.EngineGoogle, Limit: limit},
	}
}

// Workspace returns a snapshot of the session's UI state.
func (o *Orchestrator) Workspace() Workspace {
	o.mu.Lock()
	defer o.mu.Unlock()
	ws := o.ws
	ws.View = o.ws.View.Clone()
	ws.Results = listutil.CloneShallow(o.ws.Results)
	ws.FieldErrors = listutil.CloneShallow(o.ws.FieldErrors)
	if o.ws.Pending != nil {
		p := *o.ws.Pending
		ws.Pending = &p
	}
	return ws
}

// Session returns a copy of the current session, if any.
func (o *Orchestrator) Session() (session.Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return session.Session{}, false
	}
	return *o.session, true
}

// SetSession installs an authenticated session, discarding the view.
func (o *Orchestrator) SetSession(s *session.Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.session = s
	o.ws = o.freshWorkspace()
}

// run tracks one workflow invocation.
type run struct {
	o      *Orchestrator
	out    *Outcome
	logger *slog.Logger
	// saved holds the optimistic fields to restore on cancellation.
	saved struct {
		pending   *PendingAction
		modalOpen bool
	}
}

func (o *Orchestrator) begin(name Name) *run {
	r := &run{
		o:      o,
		out:    &Outcome{Workflow: name, States: []State{StateIdle}},
		logger: o.logger.With("workflow", string(name)),
	}
	r.saved.pending = o.ws.Pending
	r.saved.modalOpen = o.ws.ModalOpen
	return r
}

func (r *run) enter(s State) {
	r.out.States = append(r.out.States, s)
}

func (r *run) emit(e Event) {
	e.Workflow = r.out.Workflow
	e.State = r.out.Final()
	r.o.emitter.Emit(e)
}

// reject ends the workflow at REJECTED with a field-scoped error.
func (r *run) reject(err error) (*Outcome, error) {
	r.enter(StateRejected)
	r.o.ws.FieldErrors = errs.Fields(err)
	r.o.ws.Message = errs.UserMessage(err)
	r.logger.Debug("workflow rejected", "fields", errs.Fields(err), "error", err)
	r.emit(Event{Err: err, Message: r.o.ws.Message, Fields: r.o.ws.FieldErrors})
	return r.out, err
}

// prepare enters PREPARING, clears stale field errors and reports loading.
func (r *run) prepare() {
	r.enter(StatePreparing)
	r.o.ws.FieldErrors = nil
	r.o.ws.Message = ""
	r.emit(Event{Loading: true})
}

// open shows the modal for an optimistic change.
func (r *run) open(p *PendingAction) {
	r.o.ws.Pending = p
	r.o.ws.ModalOpen = true
}

func (r *run) close() {
	r.o.ws.Pending = nil
	r.o.ws.ModalOpen = false
}

// fail ends the workflow at FAILED. If ctx is done the remote result is
// discarded: the optimistic fields are rolled back and nothing is emitted.
// Otherwise the modal is closed, the error is logged and a user-facing
// message is emitted.
func (r *run) fail(ctx context.Context, err error) (*Outcome, error) {
	r.enter(StateFailed)
	if ctxErr := ctx.Err(); ctxErr != nil {
		r.o.ws.Pending = r.saved.pending
		r.o.ws.ModalOpen = r.saved.modalOpen
		r.logger.Debug("workflow canceled", "error", ctxErr)
		return r.out, ctxErr
	}

	r.close()
	r.o.ws.Message = errs.UserMessage(err)
	attrs := []any{"kind", errs.KindOf(err).String(), "fields", errs.Fields(err), "error", err}
	if r.logger.Enabled(ctx, slog.LevelDebug) {
		attrs = append(attrs, "error_trace", errs.Trace(err))
	}
	r.logger.Error("workflow failed", attrs...)
	r.emit(Event{Err: err, Message: r.o.ws.Message, Fields: errs.Fields(err)})
	return r.out, err
}

// succeed ends the workflow at SUCCEEDED.
func (r *run) succeed(e Event) (*Outcome, error) {
	r.enter(StateSucceeded)
	r.logger.Debug("workflow succeeded", "states", len(r.out.States))
	r.emit(e)
	return r.out, nil
}

// noop ends the workflow after validation without side effects.
func (r *run) noop() (*Outcome, error) {
	r.out.NoOp = true
	r.logger.Debug("workflow no-op")
	return r.out, nil
}

// remoteCtx attaches the session to ctx for the remote client and the
// reconciler.
func (o *Orchestrator) remoteCtx(ctx context.Context) context.Context {
	return session.NewContext(ctx, o.session)
}

// settle waits for the UI delay. It returns ctx.Err() if ctx ends first.
func (o *Orchestrator) settle(ctx context.Context) error {
	d := o.settings.UI.ModalCloseDelay.Duration
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// checkCtx reports ctx.Err() in place of err once ctx is done. Reconciler
// errors are already classified and go through checkCtx.
func checkCtx(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// checkRemote folds cancellation into a remote call's error: a call that
// returns after ctx is done is treated as failed even if it succeeded.
func checkRemote(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil && errs.KindOf(err) == errs.KindUnknown && !errors.Is(err, context.Canceled) {
		return errs.Remote("remote", err)
	}
	return err
}
