// Package mutation applies add/delete intents to the client-side item list
// and decides when a delete requires a full reload.
package mutation

import (
	"github.com/wesm/mailsaver/internal/errs"
	"github.com/wesm/mailsaver/internal/listutil"
	"github.com/wesm/mailsaver/internal/model"
	"github.com/wesm/mailsaver/internal/pagination"
)

// ApplyAction tags the item with targetID. The returned slice is new; only
// the target slot holds a new *Item, every other slot is shared with items.
// On error items is returned unchanged.
func ApplyAction(items []*model.Item, targetID string, action model.Action) ([]*model.Item, error) {
	i := model.FindByID(items, targetID)
	if i < 0 {
		return items, errs.Missing("id")
	}
	if items[i].Action == action {
		return items, errs.Invalid("action", "item %s already %s", targetID, action)
	}
	return listutil.ReplaceAt(items, i, items[i].WithAction(action)), nil
}

// DefaultReloadThreshold is the number of deletes after which the page is
// refetched regardless of other conditions.
const DefaultReloadThreshold = 3

// Reason names the rule that triggered a reload.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonThreshold
	ReasonEmpty
	ReasonPageCleared
	ReasonPageBoundary
)

func (r Reason) String() string {
	switch r {
	case ReasonThreshold:
		return "threshold"
	case ReasonEmpty:
		return "empty"
	case ReasonPageCleared:
		return "page-cleared"
	case ReasonPageBoundary:
		return "page-boundary"
	default:
		return "none"
	}
}

// Decision is the outcome of the reload policy.
type Decision struct {
	Reload bool
	Reason Reason
	// DeletedSinceReload is the counter value to store after this delete.
	DeletedSinceReload int
	// Pager is the page to show next, clamped to the post-delete page count.
	Pager int
}

// Policy decides whether a delete forces a reload.
type Policy struct {
	Threshold int
}

// AfterDelete evaluates the policy for a view whose target item is already
// tagged deleted, given the reconciled post-delete total.
func (p Policy) AfterDelete(v *model.CollectionView, totalAfter int) Decision {
	threshold := p.Threshold
	if threshold <= 0 {
		threshold = DefaultReloadThreshold
	}
	deletions := v.DeletedSinceReload + 1
	live := listutil.CountFunc(v.Items, func(it *model.Item) bool {
		return it.Action != model.ActionDeleted
	})

	d := Decision{
		Pager: pagination.ClampPage(v.Page, pagination.TotalPages(totalAfter, v.PageSize)),
	}
	switch {
	case deletions >= threshold:
		d.Reason = ReasonThreshold
	case totalAfter == 0:
		d.Reason = ReasonEmpty
	case live == 0:
		d.Reason = ReasonPageCleared
	case v.PageSize > 0 && totalAfter%v.PageSize == 0 && v.Page == 1:
		d.Reason = ReasonPageBoundary
	}
	if d.Reason != ReasonNone {
		d.Reload = true
		d.DeletedSinceReload = 0
	} else {
		d.DeletedSinceReload = deletions
	}
	return d
}
