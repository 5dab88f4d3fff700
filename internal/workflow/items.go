package workflow

import (
	"context"

	"github.com/wesm/mailsaver/internal/errs"
	"github.com/wesm/mailsaver/internal/model"
	"github.com/wesm/mailsaver/internal/mutation"
	"github.com/wesm/mailsaver/internal/pagination"
	"github.com/wesm/mailsaver/internal/reconcile"
	"github.com/wesm/mailsaver/internal/validate"
)

// AddEmail saves a search result to the user's collection.
func (o *Orchestrator) AddEmail(ctx context.Context, id string) (*Outcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := o.begin(NameAddEmail)

	r.enter(StateValidating)
	if err := validate.Authenticated(o.session, o.clock()); err != nil {
		return r.reject(err)
	}
	item, err := validate.ItemIn("id", o.ws.Results, id)
	if err != nil {
		return r.reject(err)
	}
	if err := validate.NotTagged("action", item, model.ActionAdded); err != nil {
		return r.reject(err)
	}

	r.prepare()
	r.open(&PendingAction{Workflow: NameAddEmail, ItemID: id, Address: item.Address})

	r.enter(StateCallingRemote)
	rctx := o.remoteCtx(ctx)
	rec := item.WithAction(model.ActionNone)
	rec.UserID = o.session.UserID
	rec.Key = ""
	key, err := o.remote.Create(rctx, rec)
	if err := checkRemote(ctx, err); err != nil {
		return r.fail(ctx, err)
	}

	r.enter(StateReconciling)
	view := o.ws.View.Clone()
	_, err = o.reconciler.Reconcile(rctx, view)
	if err := checkCtx(ctx, err); err != nil {
		return r.fail(ctx, err)
	}
	results, err := mutation.ApplyAction(o.ws.Results, id, model.ActionAdded)
	if err != nil {
		return r.fail(ctx, err)
	}
	if err := o.settle(ctx); err != nil {
		return r.fail(ctx, err)
	}

	view.Stale = true
	o.ws.View = view
	o.ws.Results = results
	r.close()
	r.logger.Info("email added", "id", id, "key", key, "total", view.Total)
	return r.succeed(Event{View: view.Clone(), Items: results})
}

// DeleteEmail removes an item of the persisted list from the collection.
func (o *Orchestrator) DeleteEmail(ctx context.Context, id string) (*Outcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := o.begin(NameDeleteEmail)

	r.enter(StateValidating)
	if err := validate.Authenticated(o.session, o.clock()); err != nil {
		return r.reject(err)
	}
	item, err := validate.ItemIn("id", o.ws.View.Items, id)
	if err != nil {
		return r.reject(err)
	}
	if err := validate.NotTagged("action", item, model.ActionDeleted); err != nil {
		return r.reject(err)
	}

	r.prepare()
	r.open(&PendingAction{Workflow: NameDeleteEmail, ItemID: id, Address: item.Address})

	r.enter(StateCallingRemote)
	rctx := o.remoteCtx(ctx)
	// The service has no delete by domain id; resolve the storage key first.
	recs, err := o.remote.QueryByField(rctx, "id", id)
	if err := checkRemote(ctx, err); err != nil {
		return r.fail(ctx, err)
	}
	if len(recs) != 1 || recs[0].Key == "" {
		r.logger.Warn("storage key not resolved", "id", id, "matches", len(recs))
		return r.fail(ctx, errs.Missing("key"))
	}
	status, err := o.remote.DeleteByKey(rctx, recs[0].Key)
	if err := checkRemote(ctx, err); err != nil {
		return r.fail(ctx, err)
	}

	// The item is gone remotely. A later failure keeps it shown as deleted
	// and marks the view stale so the next page request reloads.
	view := o.ws.View.Clone()
	items, err := mutation.ApplyAction(view.Items, id, model.ActionDeleted)
	if err != nil {
		return r.fail(ctx, err)
	}
	view.Items = items
	failDeleted := func(err error) (*Outcome, error) {
		if ctx.Err() == nil {
			view.Page = pagination.ClampPage(view.Page, view.TotalPages)
			view.Stale = true
			o.ws.View = view
		}
		return r.fail(ctx, err)
	}

	r.enter(StateReconciling)
	total, err := o.reconciler.Reconcile(rctx, view)
	if err := checkCtx(ctx, err); err != nil {
		return failDeleted(err)
	}

	d := o.policy.AfterDelete(view, total)
	view.DeletedSinceReload = d.DeletedSinceReload
	r.out.Reload = d.Reload
	r.out.Pager = d.Pager
	r.logger.Info("email deleted", "id", id, "status", status, "total", total,
		"reload", d.Reload, "reason", d.Reason.String())

	if d.Reload {
		if err := o.loadPage(ctx, r, view, d.Pager, true); err != nil {
			return failDeleted(err)
		}
	}

	o.ws.View = view
	r.close()
	return r.succeed(Event{View: view.Clone()})
}

// queryOwned fetches the session user's full collection.
func (o *Orchestrator) queryOwned(ctx context.Context) ([]*model.Item, error) {
	return o.remote.QueryByField(o.remoteCtx(ctx), reconcile.OwnerField, o.session.UserID)
}
