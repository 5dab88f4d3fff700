// Package pagination computes visible slice boundaries over a collection
// the remote service returns in full.
package pagination

import (
	"github.com/wesm/mailsaver/internal/errs"
	"github.com/wesm/mailsaver/internal/listutil"
)

// Page describes the [IndexStart, IndexEnd) window of a requested page.
type Page struct {
	IndexStart int
	IndexEnd   int
	TotalPages int
}

// TotalPages returns ceil(total/size), or 0 for an empty collection.
func TotalPages(total, size int) int {
	return listutil.CeilDiv(total, size)
}

// Compute returns the window for page of a collection with total items split
// into pages of size. The page must be within [1, TotalPages] unless the
// collection is empty.
func Compute(total, size, page int) (Page, error) {
	if total < 0 {
		return Page{}, errs.Invalid("totalCount", "negative total %d", total)
	}
	if size <= 0 {
		return Page{}, errs.Invalid("pageSize", "page size must be positive, got %d", size)
	}
	if page < 1 {
		return Page{}, errs.Invalid("page", "page must be >= 1, got %d", page)
	}
	pages := TotalPages(total, size)
	if pages > 0 && page > pages {
		return Page{}, errs.Invalid("page", "page %d beyond last page %d", page, pages)
	}
	start := (page - 1) * size
	return Page{IndexStart: start, IndexEnd: start + size, TotalPages: pages}, nil
}

// ClampPage bounds page to [1, totalPages]. It never returns less than 1.
func ClampPage(page, totalPages int) int {
	return listutil.Clamp(page, 1, max(totalPages, 1))
}

// NeedsPaging reports whether a collection of total items is large enough to
// be sliced. Smaller collections are shown whole.
func NeedsPaging(total, threshold int) bool {
	return total > threshold
}

// Window returns the part of items visible on p. Below the paging threshold
// the full set is returned unsliced. Bounds are clamped to len(items) since
// the fetched set may lag the reconciled total.
func Window[T any](items []T, p Page, total, threshold int) []T {
	if !NeedsPaging(total, threshold) {
		return items
	}
	start := listutil.Clamp(p.IndexStart, 0, len(items))
	end := listutil.Clamp(p.IndexEnd, start, len(items))
	return items[start:end]
}
