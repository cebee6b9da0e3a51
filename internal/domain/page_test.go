package domain

import (
	"math"
	"reflect"
	"testing"
)

func TestNewPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	tests := []struct {
		name       string
		page, size int
		want       []int
		totalPages int
		isLast     bool
	}{
		{"first page", 0, 2, []int{1, 2}, 3, false},
		{"last partial page", 2, 2, []int{5}, 3, true},
		{"exact fit", 0, 5, []int{1, 2, 3, 4, 5}, 1, true},
		{"past the end", 3, 2, []int{}, 3, true},
		{"negative page", -1, 2, []int{}, 3, false},
		{"zero size", 0, 0, []int{}, 0, true},
		{"negative size", 1, -3, []int{}, 0, true},
		{"huge size", 0, math.MaxInt, []int{1, 2, 3, 4, 5}, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPage(items, tt.page, tt.size)
			if !reflect.DeepEqual(p.Content, tt.want) {
				t.Fatalf("content = %v, want %v", p.Content, tt.want)
			}
			if p.TotalPages != tt.totalPages {
				t.Fatalf("total pages = %d, want %d", p.TotalPages, tt.totalPages)
			}
			if p.IsLast != tt.isLast {
				t.Fatalf("is last = %v, want %v", p.IsLast, tt.isLast)
			}
			if p.TotalElements != 5 {
				t.Fatalf("total elements = %d, want 5", p.TotalElements)
			}
		})
	}
}

func TestNewPage_HugePageNumberIsEmpty(t *testing.T) {
	items := []int{1, 2, 3}

	for _, tc := range []struct{ page, size int }{
		{1 << 62, 4},
		{6917529027641081856, 2},
		{math.MaxInt, math.MaxInt},
	} {
		p := NewPage(items, tc.page, tc.size)
		if len(p.Content) != 0 {
			t.Fatalf("page %d size %d: expected empty content, got %v", tc.page, tc.size, p.Content)
		}
		if p.Content == nil {
			t.Fatalf("page %d size %d: content must be an empty slice, not nil", tc.page, tc.size)
		}
	}
}
