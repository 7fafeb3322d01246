package models

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
	MaxPage      = 1_000_000
)

type Pagination struct {
	Page  int
	Limit int
}

// NewPagination clamps page and limit into their accepted ranges.
func NewPagination(page, limit int) Pagination {
	if page < 1 {
		page = DefaultPage
	}
	if page > MaxPage {
		page = MaxPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Pagination{Page: page, Limit: limit}
}

func (p Pagination) Offset() int {
	p = NewPagination(p.Page, p.Limit)
	return (p.Page - 1) * p.Limit
}

type Page[T any] struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Items []T   `json:"items"`
}

func NewPage[T any](items []T, total int64, p Pagination) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Total: total, Page: p.Page, Limit: p.Limit, Items: items}
}
