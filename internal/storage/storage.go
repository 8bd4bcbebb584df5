package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/parts-catalog-importer/internal/catalog"
	"github.com/maltedev/parts-catalog-importer/internal/models"
)

// ProductStorage is an in-process catalog store. When filename is set every
// mutation is written to a JSON snapshot; a failed write undoes the mutation.
type ProductStorage struct {
	mu       sync.RWMutex
	products map[string]*models.ProductRecord
	order    []string
	filename string
}

var _ catalog.Store = (*ProductStorage)(nil)

// NewProductStorage loads filename if it exists. An empty filename keeps
// the catalog in memory only.
func NewProductStorage(filename string) (*ProductStorage, error) {
	ps := &ProductStorage{
		products: make(map[string]*models.ProductRecord),
		filename: filename,
	}

	if filename == "" {
		return ps, nil
	}
	if err := ps.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	return ps, nil
}

func (ps *ProductStorage) Create(ctx context.Context, p *models.ProductRecord) (*models.ProductRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	article := strings.TrimSpace(p.Article)
	if existing, ok := ps.products[article]; ok {
		return nil, &catalog.ConflictError{Article: article, Existing: existing.Clone()}
	}

	rec := p.Clone()
	rec.Article = article
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.Stock.UpdatedAt = now

	ps.products[article] = rec
	ps.order = append(ps.order, article)

	if err := ps.save(); err != nil {
		delete(ps.products, article)
		ps.order = ps.order[:len(ps.order)-1]
		return nil, &catalog.PersistenceError{Op: "create", Article: article, Err: err}
	}

	return rec.Clone(), nil
}

func (ps *ProductStorage) GetByArticle(_ context.Context, article string) (*models.ProductRecord, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	p, ok := ps.products[strings.TrimSpace(article)]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return p.Clone(), nil
}

func (ps *ProductStorage) FindByQuery(_ context.Context, query string) (*models.ProductRecord, error) {
	query = strings.TrimSpace(query)

	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if p, ok := ps.products[query]; ok {
		return p.Clone(), nil
	}
	for _, article := range ps.order {
		if p := ps.products[article]; p.SourceURL == query {
			return p.Clone(), nil
		}
	}
	return nil, catalog.ErrProductNotFound
}

func (ps *ProductStorage) UpdateStock(ctx context.Context, article string, u models.StockUpdate) (*models.ProductRecord, error) {
	if err := catalog.Validate(u); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	article = strings.TrimSpace(article)

	ps.mu.Lock()
	defer ps.mu.Unlock()

	p, ok := ps.products[article]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}

	previous := p.Clone()
	now := time.Now().UTC()
	u.Apply(&p.Stock, now)
	p.UpdatedAt = now

	if err := ps.save(); err != nil {
		ps.products[article] = previous
		return nil, &catalog.PersistenceError{Op: "update_stock", Article: article, Err: err}
	}

	return p.Clone(), nil
}

func (ps *ProductStorage) Delete(ctx context.Context, article string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	article = strings.TrimSpace(article)

	ps.mu.Lock()
	defer ps.mu.Unlock()

	p, ok := ps.products[article]
	if !ok {
		return catalog.ErrProductNotFound
	}

	order := ps.order
	delete(ps.products, article)
	ps.order = make([]string, 0, len(order))
	for _, a := range order {
		if a != article {
			ps.order = append(ps.order, a)
		}
	}

	if err := ps.save(); err != nil {
		ps.products[article] = p
		ps.order = order
		return &catalog.PersistenceError{Op: "delete", Article: article, Err: err}
	}

	return nil
}

func (ps *ProductStorage) Search(_ context.Context, q string, limit int) ([]*models.ProductRecord, error) {
	if limit <= 0 {
		limit = catalog.DefaultSearchLimit
	}
	q = strings.ToLower(strings.TrimSpace(q))

	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var out []*models.ProductRecord
	for _, article := range ps.sortedArticles() {
		p := ps.products[article]
		if matchesSearch(p, q) {
			out = append(out, p.Clone())
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (ps *ProductStorage) Browse(_ context.Context, f catalog.ListFilter) (*catalog.ProductPage, error) {
	f = f.Normalize()
	search := strings.ToLower(strings.TrimSpace(f.Search))

	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var matches []*models.ProductRecord
	for _, article := range ps.sortedArticles() {
		p := ps.products[article]
		switch {
		case f.Zone != "" && p.Stock.Zone != f.Zone:
			continue
		case f.Manufacturer != "" && p.Manufacturer != f.Manufacturer:
			continue
		case f.LowStock && !p.Stock.IsLow():
			continue
		case search != "" && !matchesSearch(p, search):
			continue
		}
		matches = append(matches, p)
	}

	var items []*models.ProductRecord
	if start := f.Offset(); start < len(matches) {
		end := min(start+f.PerPage, len(matches))
		for _, p := range matches[start:end] {
			items = append(items, p.Clone())
		}
	}
	return catalog.NewProductPage(items, len(matches), f), nil
}

func (ps *ProductStorage) List(_ context.Context) ([]*models.ProductRecord, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	out := make([]*models.ProductRecord, 0, len(ps.order))
	for _, article := range ps.order {
		out = append(out, ps.products[article].Clone())
	}
	return out, nil
}

func (ps *ProductStorage) Count(_ context.Context) (int, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	return len(ps.products), nil
}

func (ps *ProductStorage) Stats(_ context.Context) (*models.Stats, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	stats := &models.Stats{TotalProducts: len(ps.products)}
	zones := make(map[string]struct{})
	manufacturers := make(map[string]struct{})

	for _, p := range ps.products {
		if p.Stock.IsLow() {
			stats.LowStock++
		}
		if p.Stock.IsOut() {
			stats.OutOfStock++
		}
		stats.TotalItems += p.Stock.QuantityActual
		if p.Stock.Zone != "" {
			zones[p.Stock.Zone] = struct{}{}
		}
		if p.Manufacturer != "" {
			manufacturers[p.Manufacturer] = struct{}{}
		}
	}

	stats.Zones = sortedKeys(zones)
	stats.Manufacturers = sortedKeys(manufacturers)
	return stats, nil
}

// matchesSearch expects q lower-cased.
func matchesSearch(p *models.ProductRecord, q string) bool {
	return strings.Contains(strings.ToLower(p.Article), q) ||
		strings.Contains(strings.ToLower(p.Title), q) ||
		strings.Contains(strings.ToLower(p.Manufacturer), q)
}

func (ps *ProductStorage) sortedArticles() []string {
	articles := append([]string(nil), ps.order...)
	sort.Strings(articles)
	return articles
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (ps *ProductStorage) save() error {
	if ps.filename == "" {
		return nil
	}

	list := make([]*models.ProductRecord, 0, len(ps.order))
	for _, article := range ps.order {
		list = append(list, ps.products[article])
	}

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}

	// Write to temp file first for atomicity
	tmpFile := ps.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	if err := os.Rename(tmpFile, ps.filename); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Load replaces the in-memory catalog with the snapshot on disk.
func (ps *ProductStorage) Load() error {
	data, err := os.ReadFile(ps.filename)
	if err != nil {
		return err
	}

	var list []*models.ProductRecord
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("failed to parse snapshot %s: %w", ps.filename, err)
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.products = make(map[string]*models.ProductRecord, len(list))
	ps.order = ps.order[:0]
	for _, p := range list {
		if p == nil || p.Article == "" {
			continue
		}
		if _, dup := ps.products[p.Article]; dup {
			continue
		}
		if p.Dimensions == nil {
			p.Dimensions = make(map[string]string)
		}
		if p.Images == nil {
			p.Images = make([]string, 0)
		}
		ps.products[p.Article] = p
		ps.order = append(ps.order, p.Article)
	}

	return nil
}
