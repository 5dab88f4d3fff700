package workflow

import (
	"context"

	"github.com/wesm/mailsaver/internal/errs"
	"github.com/wesm/mailsaver/internal/model"
	"github.com/wesm/mailsaver/internal/pagination"
	"github.com/wesm/mailsaver/internal/validate"
)

// fresh reports whether the materialized page can be trusted for a no-op.
func (o *Orchestrator) fresh() bool {
	return o.ws.View.Loaded() && !o.ws.View.Stale
}

// loadPage fetches the full collection, reconciles the count and stores the
// window for page into view. With clamp set the page is bounded to the
// reconciled page count; otherwise an out-of-range page fails.
func (o *Orchestrator) loadPage(ctx context.Context, r *run, view *model.CollectionView, page int, clamp bool) error {
	r.enter(StateCallingRemote)
	all, err := o.queryOwned(ctx)
	if err := checkRemote(ctx, err); err != nil {
		return err
	}

	r.enter(StateReconciling)
	total, err := o.reconciler.Reconcile(o.remoteCtx(ctx), view)
	if err := checkCtx(ctx, err); err != nil {
		return err
	}
	if clamp {
		page = pagination.ClampPage(page, view.TotalPages)
	}
	p, err := pagination.Compute(total, view.PageSize, page)
	if err != nil {
		return err
	}

	window := pagination.Window(all, p, total, o.settings.List.NeedsPagingThreshold)
	items := make([]*model.Item, len(window))
	for i, it := range window {
		if it.Action != model.ActionNone {
			it = it.WithAction(model.ActionNone)
		}
		items[i] = it
	}
	view.Page = page
	view.Items = items
	view.DeletedSinceReload = 0
	view.Stale = false
	r.logger.Debug("page loaded", "page", page, "page_size", view.PageSize,
		"total", total, "visible", len(items))
	return nil
}

// GetPage shows the given page of the collection.
func (o *Orchestrator) GetPage(ctx context.Context, page int) (*Outcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := o.begin(NameGetPage)

	r.enter(StateValidating)
	if err := validate.Authenticated(o.session, o.clock()); err != nil {
		return r.reject(err)
	}
	if page < 1 {
		return r.reject(errs.Invalid("page", "page must be >= 1, got %d", page))
	}
	if o.fresh() && page == o.ws.View.Page {
		return r.noop()
	}

	r.prepare()
	view := o.ws.View.Clone()
	if err := o.loadPage(ctx, r, view, page, false); err != nil {
		return r.fail(ctx, err)
	}
	o.ws.View = view
	return r.succeed(Event{View: view.Clone()})
}

// UpdateCounter changes the page size and reloads the current page, clamped
// to the new page count.
func (o *Orchestrator) UpdateCounter(ctx context.Context, pageSize int) (*Outcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := o.begin(NameUpdateCounter)

	r.enter(StateValidating)
	if err := validate.Authenticated(o.session, o.clock()); err != nil {
		return r.reject(err)
	}
	size, err := validate.OneOf("page_size", pageSize, o.settings.List.PageSizes)
	if err != nil {
		return r.reject(err)
	}
	if o.fresh() && size == o.ws.View.PageSize {
		return r.noop()
	}

	r.prepare()
	view := o.ws.View.Clone()
	view.PageSize = size
	page := pagination.ClampPage(view.Page, pagination.TotalPages(view.Total, size))
	if err := o.loadPage(ctx, r, view, page, true); err != nil {
		return r.fail(ctx, err)
	}
	o.ws.View = view
	return r.succeed(Event{View: view.Clone()})
}

// UpdatePager moves to the given page, clamped to the known page count.
func (o *Orchestrator) UpdatePager(ctx context.Context, page int) (*Outcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := o.begin(NameUpdatePager)

	r.enter(StateValidating)
	if err := validate.Authenticated(o.session, o.clock()); err != nil {
		return r.reject(err)
	}
	target := pagination.ClampPage(page, o.ws.View.TotalPages)
	if o.fresh() && target == o.ws.View.Page {
		return r.noop()
	}

	r.prepare()
	view := o.ws.View.Clone()
	if err := o.loadPage(ctx, r, view, target, true); err != nil {
		return r.fail(ctx, err)
	}
	o.ws.View = view
	return r.succeed(Event{View: view.Clone()})
}
