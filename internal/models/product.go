package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ProductRecord struct {
	ID             uuid.UUID           `json:"id"`
	Article        string              `json:"article" validate:"required,max=50"`
	Title          string              `json:"title" validate:"required,max=500"`
	Manufacturer   string              `json:"manufacturer"`
	Category       string              `json:"category"`
	Price          string              `json:"price"`
	PriceAmount    decimal.NullDecimal `json:"price_amount"`
	OldPrice       string              `json:"price_old"`
	Description    string              `json:"description"`
	SourceURL      string              `json:"url"`
	Weight         string              `json:"weight"`
	Availability   string              `json:"availability"`
	InStock        bool                `json:"in_stock"`
	SiteStock      string              `json:"site_stock,omitempty"`
	Dimensions     map[string]string   `json:"dimensions"`
	Specifications Specs               `json:"specifications"`
	Images         []string            `json:"images" validate:"dive,url"`
	DeliveryInfo   []DeliveryInfo      `json:"delivery_info,omitempty"`
	Stock          StockEntry          `json:"stock"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

type DeliveryInfo struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// NewProductRecord returns a record with non-nil collections and a fresh
// stock entry, so a product never exists without stock state.
func NewProductRecord(article string) *ProductRecord {
	now := time.Now()
	return &ProductRecord{
		ID:         uuid.New(),
		Article:    article,
		Dimensions: make(map[string]string),
		Images:     make([]string, 0),
		Stock:      StockEntry{UpdatedAt: now},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// MainImage returns the first image or "" when there are none.
func (p *ProductRecord) MainImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// Clone returns a deep copy so stores can hand out records without sharing
// mutable state with their internal maps.
func (p *ProductRecord) Clone() *ProductRecord {
	if p == nil {
		return nil
	}
	c := *p
	c.Dimensions = make(map[string]string, len(p.Dimensions))
	for k, v := range p.Dimensions {
		c.Dimensions[k] = v
	}
	c.Specifications = append(Specs(nil), p.Specifications...)
	c.Images = append([]string(nil), p.Images...)
	c.DeliveryInfo = append([]DeliveryInfo(nil), p.DeliveryInfo...)
	if p.Stock.LastCounted != nil {
		t := *p.Stock.LastCounted
		c.Stock.LastCounted = &t
	}
	return &c
}

// ToMap is the flat/nested field set consumed by the card renderer and the
// search context builder.
func (p *ProductRecord) ToMap() map[string]any {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	dimensions := p.Dimensions
	if dimensions == nil {
		dimensions = map[string]string{}
	}
	specs := p.Specifications
	if specs == nil {
		specs = Specs{}
	}
	delivery := p.DeliveryInfo
	if delivery == nil {
		delivery = []DeliveryInfo{}
	}
	var amount any
	if p.PriceAmount.Valid {
		amount = p.PriceAmount.Decimal.String()
	}

	return map[string]any{
		"id":             p.ID.String(),
		"article":        p.Article,
		"title":          p.Title,
		"manufacturer":   p.Manufacturer,
		"category":       p.Category,
		"price":          p.Price,
		"price_amount":   amount,
		"price_old":      p.OldPrice,
		"description":    p.Description,
		"url":            p.SourceURL,
		"weight":         p.Weight,
		"availability":   p.Availability,
		"in_stock":       p.InStock,
		"site_stock":     p.SiteStock,
		"dimensions":     dimensions,
		"specifications": specs,
		"images":         images,
		"delivery_info":  delivery,
		"stock":          p.Stock.ToMap(),
		"created_at":     p.CreatedAt.Format(time.RFC3339),
		"updated_at":     p.UpdatedAt.Format(time.RFC3339),
	}
}
