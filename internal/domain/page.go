package domain

// Page is a zero-based slice of a larger ordered result.
type Page[T any] struct {
	Content       []T   `json:"content"`
	PageNumber    int   `json:"page_number"`
	PageSize      int   `json:"page_size"`
	TotalElements int64 `json:"total_elements"`
	TotalPages    int   `json:"total_pages"`
	IsFirst       bool  `json:"is_first"`
	IsLast        bool  `json:"is_last"`
}

// NewPage cuts page number `page` of size `size` out of items. Out of range
// requests yield empty content rather than an error.
func NewPage[T any](items []T, page, size int) Page[T] {
	total := len(items)
	totalPages := 0
	if size > 0 {
		totalPages = total / size
		if total%size != 0 {
			totalPages++
		}
	}

	p := Page[T]{
		Content:       []T{},
		PageNumber:    page,
		PageSize:      size,
		TotalElements: int64(total),
		TotalPages:    totalPages,
		IsFirst:       page == 0,
		IsLast:        page >= totalPages-1,
	}
	// page is compared before multiplying so huge values cannot overflow.
	if page < 0 || size <= 0 || page >= totalPages {
		return p
	}

	start := page * size
	end := total
	if total-start > size {
		end = start + size
	}
	p.Content = append(p.Content, items[start:end]...)
	return p
}
