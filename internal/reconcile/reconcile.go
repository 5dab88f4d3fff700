// Package reconcile refreshes the authoritative item count from the remote
// service and records it in the view and the persistence store.
package reconcile

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/wesm/mailsaver/internal/errs"
	"github.com/wesm/mailsaver/internal/model"
	"github.com/wesm/mailsaver/internal/pagination"
	"github.com/wesm/mailsaver/internal/persist"
	"github.com/wesm/mailsaver/internal/session"
)

// OwnerField is the item field that scopes a collection to its owner.
const OwnerField = "user_id"

// Counter is the remote count operation.
type Counter interface {
	CountByField(ctx context.Context, field, value string) (int, error)
}

// Reconciler writes remote counts into the view and the persistence store.
// It is the only writer of persist.KeyTotalCount.
type Reconciler struct {
	remote Counter
	kv     persist.Store
	logger *slog.Logger
}

// New creates a Reconciler.
func New(remote Counter, kv persist.Store) *Reconciler {
	return &Reconciler{remote: remote, kv: kv, logger: slog.Default()}
}

// WithLogger sets the logger.
func (r *Reconciler) WithLogger(logger *slog.Logger) *Reconciler {
	r.logger = logger
	return r
}

// Reconcile queries the count for the session in ctx and stores it. The view
// may be nil when only the persisted count needs refreshing.
func (r *Reconciler) Reconcile(ctx context.Context, view *model.CollectionView) (int, error) {
	sess, ok := session.FromContext(ctx)
	if !ok || sess.UserID == "" {
		return 0, errs.Missing("user_id")
	}

	count, err := r.remote.CountByField(ctx, OwnerField, sess.UserID)
	if err != nil {
		if errs.KindOf(err) == errs.KindUnknown {
			err = errs.Remote("countByField", err)
		}
		return 0, err
	}
	if count < 0 {
		return 0, errs.Malformed("countByField", "count")
	}

	if err := r.kv.Set(ctx, persist.KeyTotalCount, strconv.Itoa(count)); err != nil {
		return 0, eris.Wrap(err, "persist count")
	}
	if view != nil {
		view.Total = count
		view.TotalPages = pagination.TotalPages(count, view.PageSize)
	}
	r.logger.Debug("count reconciled", "user_id", sess.UserID, "count", count)
	return count, nil
}

// Cached returns the last reconciled count. It is for display only.
func (r *Reconciler) Cached(ctx context.Context) (int, bool, error) {
	s, ok, err := r.kv.Get(ctx, persist.KeyTotalCount)
	if err != nil || !ok {
		return 0, false, err
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false, nil
	}
	return n, true, nil
}
