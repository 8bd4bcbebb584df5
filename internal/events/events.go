package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/parts-catalog-importer/internal/models"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeProductImported is published when an import commits a new product
	EventTypeProductImported EventType = "PRODUCT_IMPORTED"
	// EventTypeProductDeleted is published when a product and its stock are removed
	EventTypeProductDeleted EventType = "PRODUCT_DELETED"

	AggregateProduct = "product"
	Source           = "parts-catalog-importer"
)

// ProductImportedPayload represents the payload for PRODUCT_IMPORTED
type ProductImportedPayload struct {
	EventID      string            `json:"event_id"`
	EventType    string            `json:"event_type"`
	Timestamp    time.Time         `json:"timestamp"`
	Article      string            `json:"article"`
	Title        string            `json:"title"`
	Manufacturer string            `json:"manufacturer,omitempty"`
	Category     string            `json:"category,omitempty"`
	Price        string            `json:"price,omitempty"`
	PriceAmount  *string           `json:"price_amount,omitempty"`
	SourceURL    string            `json:"url"`
	Images       []string          `json:"images,omitempty"`
	Dimensions   map[string]string `json:"dimensions,omitempty"`
	Weight       string            `json:"weight,omitempty"`
	Source       string            `json:"source"`
}

type ProductDeletedPayload struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Article   string    `json:"article"`
	Source    string    `json:"source"`
}

func NewProductImported(p *models.ProductRecord) *ProductImportedPayload {
	payload := &ProductImportedPayload{
		EventID:      uuid.New().String(),
		EventType:    string(EventTypeProductImported),
		Timestamp:    time.Now().UTC(),
		Article:      p.Article,
		Title:        p.Title,
		Manufacturer: p.Manufacturer,
		Category:     p.Category,
		Price:        p.Price,
		SourceURL:    p.SourceURL,
		Images:       p.Images,
		Dimensions:   p.Dimensions,
		Weight:       p.Weight,
		Source:       Source,
	}
	if p.PriceAmount.Valid {
		amount := p.PriceAmount.Decimal.String()
		payload.PriceAmount = &amount
	}
	return payload
}

func NewProductDeleted(article string) *ProductDeletedPayload {
	return &ProductDeletedPayload{
		EventID:   uuid.New().String(),
		EventType: string(EventTypeProductDeleted),
		Timestamp: time.Now().UTC(),
		Article:   article,
		Source:    Source,
	}
}
