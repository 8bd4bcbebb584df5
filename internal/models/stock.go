package models

import (
	"strings"
	"time"
)

// LocationUnspecified is rendered instead of "-------" when a stock entry
// has no location components at all.
const LocationUnspecified = "not specified"

type StockEntry struct {
	Zone             string     `json:"zone"`
	Rack             string     `json:"rack"`
	Shelf            string     `json:"shelf"`
	Cell             string     `json:"cell"`
	QuantityActual   int        `json:"quantity_actual"`
	QuantityReserved int        `json:"quantity_reserved"`
	QuantityMin      int        `json:"quantity_min"`
	QuantityMax      int        `json:"quantity_max"`
	Notes            string     `json:"notes"`
	LastCounted      *time.Time `json:"last_counted"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// QuantityAvailable may be negative; a negative value means over-reserved.
func (s StockEntry) QuantityAvailable() int {
	return s.QuantityActual - s.QuantityReserved
}

// Location renders zone-rack-shelf-cell with "-" for missing components.
func (s StockEntry) Location() string {
	parts := []string{s.Zone, s.Rack, s.Shelf, s.Cell}
	empty := true
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			parts[i] = "-"
			continue
		}
		parts[i] = p
		empty = false
	}
	if empty {
		return LocationUnspecified
	}
	return strings.Join(parts, "-")
}

// IsLow reports whether available stock dropped under a configured minimum.
func (s StockEntry) IsLow() bool {
	return s.QuantityMin > 0 && s.QuantityAvailable() < s.QuantityMin
}

func (s StockEntry) IsOut() bool {
	return s.QuantityAvailable() <= 0
}

func (s StockEntry) ToMap() map[string]any {
	var lastCounted any
	if s.LastCounted != nil {
		lastCounted = s.LastCounted.Format(time.RFC3339)
	}
	return map[string]any{
		"zone":               s.Zone,
		"rack":               s.Rack,
		"shelf":              s.Shelf,
		"cell":               s.Cell,
		"location":           s.Location(),
		"quantity_actual":    s.QuantityActual,
		"quantity_reserved":  s.QuantityReserved,
		"quantity_available": s.QuantityAvailable(),
		"quantity_min":       s.QuantityMin,
		"quantity_max":       s.QuantityMax,
		"notes":              s.Notes,
		"last_counted":       lastCounted,
		"updated_at":         s.UpdatedAt.Format(time.RFC3339),
	}
}

// StockUpdate is a partial patch: nil fields keep their previous value.
type StockUpdate struct {
	Zone             *string `json:"zone" validate:"omitempty,max=20"`
	Rack             *string `json:"rack" validate:"omitempty,max=30"`
	Shelf            *string `json:"shelf" validate:"omitempty,max=30"`
	Cell             *string `json:"cell" validate:"omitempty,max=30"`
	QuantityActual   *int    `json:"quantity_actual" validate:"omitempty,min=0"`
	QuantityReserved *int    `json:"quantity_reserved" validate:"omitempty,min=0"`
	QuantityMin      *int    `json:"quantity_min" validate:"omitempty,min=0"`
	QuantityMax      *int    `json:"quantity_max" validate:"omitempty,min=0"`
	Notes            *string `json:"notes"`
}

// Apply overwrites the present fields and stamps LastCounted/UpdatedAt.
func (u StockUpdate) Apply(s *StockEntry, now time.Time) {
	if u.Zone != nil {
		s.Zone = *u.Zone
	}
	if u.Rack != nil {
		s.Rack = *u.Rack
	}
	if u.Shelf != nil {
		s.Shelf = *u.Shelf
	}
	if u.Cell != nil {
		s.Cell = *u.Cell
	}
	if u.QuantityActual != nil {
		s.QuantityActual = *u.QuantityActual
	}
	if u.QuantityReserved != nil {
		s.QuantityReserved = *u.QuantityReserved
	}
	if u.QuantityMin != nil {
		s.QuantityMin = *u.QuantityMin
	}
	if u.QuantityMax != nil {
		s.QuantityMax = *u.QuantityMax
	}
	if u.Notes != nil {
		s.Notes = *u.Notes
	}
	s.LastCounted = &now
	s.UpdatedAt = now
}

type Stats struct {
	TotalProducts int      `json:"total_products"`
	LowStock      int      `json:"low_stock"`
	OutOfStock    int      `json:"out_of_stock"`
	TotalItems    int      `json:"total_items"`
	Zones         []string `json:"zones"`
	Manufacturers []string `json:"manufacturers"`
}
