package workflow

import (
	"context"
	"fmt"

	"github.com/wesm/mailsaver/internal/pagination"
	"github.com/wesm/mailsaver/internal/remote"
	"github.com/wesm/mailsaver/internal/session"
	"github.com/wesm/mailsaver/internal/validate"
)

// Register creates an account and starts a session for it.
func (o *Orchestrator) Register(ctx context.Context, email, password string) (*Outcome, error) {
	return o.authenticate(ctx, NameRegister, email, password, o.remote.Register)
}

// Login starts a session for an existing account.
func (o *Orchestrator) Login(ctx context.Context, email, password string) (*Outcome, error) {
	return o.authenticate(ctx, NameLogin, email, password, o.remote.Login)
}

type authFunc func(ctx context.Context, email, password string) (*remote.AuthResult, error)

func (o *Orchestrator) authenticate(ctx context.Context, name Name, email, password string, call authFunc) (*Outcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := o.begin(name)

	r.enter(StateValidating)
	addr, err := validate.Email("email", email)
	if err != nil {
		return r.reject(err)
	}
	if _, err := validate.Password("password", password, o.settings.Auth.MinPasswordLength); err != nil {
		return r.reject(err)
	}

	r.prepare()
	r.enter(StateCallingRemote)
	res, err := call(ctx, addr, password)
	if err := checkRemote(ctx, err); err != nil {
		return r.fail(ctx, err)
	}

	r.enter(StateReconciling)
	sess := &session.Session{
		UserID:    res.UserID,
		Email:     addr,
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
	}
	if err := session.Save(ctx, o.kv, sess); err != nil {
		return r.fail(ctx, fmt.Errorf("save session: %w", err))
	}
	o.session = sess
	o.ws = o.freshWorkspace()
	r.logger.Info("session started", "user_id", sess.UserID, "email", addr)
	return r.succeed(Event{View: o.ws.View.Clone()})
}

// Logout ends the session, removing it from the persistence store and
// discarding the collection view.
func (o *Orchestrator) Logout(ctx context.Context) (*Outcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := o.begin(NameLogout)

	r.prepare()
	if err := session.Clear(ctx, o.kv); err != nil {
		return r.fail(ctx, fmt.Errorf("clear session: %w", err))
	}
	o.session = nil
	o.ws = o.freshWorkspace()
	r.logger.Info("session ended")
	return r.succeed(Event{View: o.ws.View.Clone()})
}

// Restore loads a persisted session. The cached count seeds the view for
// display; the view is marked stale so the next page request refetches.
func (o *Orchestrator) Restore(ctx context.Context) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	sess, ok, err := session.Load(ctx, o.kv)
	if err != nil || !ok {
		return false, err
	}
	o.session = sess
	o.ws = o.freshWorkspace()
	if n, ok, err := o.reconciler.Cached(ctx); err == nil && ok {
		o.ws.View.Total = n
		o.ws.View.TotalPages = pagination.TotalPages(n, o.ws.View.PageSize)
	}
	o.ws.View.Stale = true
	return true, nil
}
