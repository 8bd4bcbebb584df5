package catalog

import (
	"github.com/maltedev/parts-catalog-importer/internal/models"
)

const (
	DefaultPerPage = 50
	MaxPerPage     = 200
)

// ListFilter selects a page of products ordered by article. Empty fields do
// not filter.
type ListFilter struct {
	Zone         string
	Manufacturer string
	// LowStock keeps products whose available quantity is under a positive minimum.
	LowStock bool
	// Search matches article, title or manufacturer case-insensitively.
	Search  string
	Page    int
	PerPage int
}

// Normalize clamps Page to 1.. and PerPage to 1..MaxPerPage.
func (f ListFilter) Normalize() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = DefaultPerPage
	}
	if f.PerPage > MaxPerPage {
		f.PerPage = MaxPerPage
	}
	return f
}

// Offset is the number of matching products before the page.
func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.PerPage
}

type ProductPage struct {
	Items   []*models.ProductRecord `json:"-"`
	Total   int                     `json:"total"`
	Pages   int                     `json:"pages"`
	Page    int                     `json:"current_page"`
	PerPage int                     `json:"per_page"`
	HasNext bool                    `json:"has_next"`
	HasPrev bool                    `json:"has_prev"`
}

// NewProductPage describes items as page f.Page of total matches. f must be
// normalized.
func NewProductPage(items []*models.ProductRecord, total int, f ListFilter) *ProductPage {
	if items == nil {
		items = []*models.ProductRecord{}
	}
	pages := (total + f.PerPage - 1) / f.PerPage
	return &ProductPage{
		Items:   items,
		Total:   total,
		Pages:   pages,
		Page:    f.Page,
		PerPage: f.PerPage,
		HasNext: f.Page < pages,
		HasPrev: f.Page > 1,
	}
}
