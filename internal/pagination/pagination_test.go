package pagination

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wesm/mailsaver/internal/errs"
)

func TestComputeScenario(t *testing.T) {
	got, err := Compute(25, 10, 3)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	want := Page{IndexStart: 20, IndexEnd: 30, TotalPages: 3}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Compute(25, 10, 3) mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeErrors(t *testing.T) {
	tests := []struct {
		name              string
		total, size, page int
		field             string
	}{
		{"page past end", 25, 10, 4, "page"},
		{"page zero", 25, 10, 0, "page"},
		{"negative total", -1, 10, 1, "totalCount"},
		{"zero size", 10, 0, 1, "pageSize"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compute(tt.total, tt.size, tt.page)
			if errs.KindOf(err) != errs.KindInvalidValue {
				t.Fatalf("Compute() error = %v, want invalid-value", err)
			}
			if f := errs.Fields(err); len(f) != 1 || f[0] != tt.field {
				t.Errorf("Fields() = %v, want [%s]", f, tt.field)
			}
		})
	}
}

func TestComputeEmptyCollection(t *testing.T) {
	got, err := Compute(0, 10, 1)
	if err != nil {
		t.Fatalf("Compute(0, 10, 1) error = %v", err)
	}
	if got.TotalPages != 0 || got.IndexStart != 0 {
		t.Errorf("Compute(0, 10, 1) = %+v", got)
	}
}

// Every valid page yields an ordered window starting inside the collection.
func TestComputeRoundTrip(t *testing.T) {
	for total := 0; total <= 60; total++ {
		for _, size := range []int{1, 3, 5, 10, 20, 50} {
			pages := TotalPages(total, size)
			for page := 1; page <= pages; page++ {
				p, err := Compute(total, size, page)
				if err != nil {
					t.Fatalf("Compute(%d, %d, %d) error = %v", total, size, page, err)
				}
				if p.IndexEnd < p.IndexStart {
					t.Fatalf("Compute(%d, %d, %d): end %d < start %d", total, size, page, p.IndexEnd, p.IndexStart)
				}
				if p.IndexStart >= total {
					t.Fatalf("Compute(%d, %d, %d): start %d >= total", total, size, page, p.IndexStart)
				}
			}
		}
	}
}

func TestClampPage(t *testing.T) {
	tests := []struct{ page, pages, want int }{
		{2, 1, 1},
		{0, 3, 1},
		{3, 3, 3},
		{5, 0, 1},
	}
	for _, tt := range tests {
		if got := ClampPage(tt.page, tt.pages); got != tt.want {
			t.Errorf("ClampPage(%d, %d) = %d, want %d", tt.page, tt.pages, got, tt.want)
		}
	}
}

func TestWindow(t *testing.T) {
	items := make([]int, 25)
	for i := range items {
		items[i] = i
	}

	p, _ := Compute(25, 10, 3)
	got := Window(items, p, 25, 10)
	if diff := cmp.Diff([]int{20, 21, 22, 23, 24}, got); diff != "" {
		t.Errorf("Window(page 3) mismatch (-want +got):\n%s", diff)
	}

	small := items[:8]
	p, _ = Compute(8, 5, 2)
	if got := Window(small, p, 8, 10); len(got) != 8 {
		t.Errorf("Window below threshold len = %d, want 8 (unsliced)", len(got))
	}

	// Fetched set shorter than the reconciled total.
	p, _ = Compute(25, 10, 3)
	if got := Window(items[:21], p, 25, 10); len(got) != 1 {
		t.Errorf("Window(short) len = %d, want 1", len(got))
	}
}
