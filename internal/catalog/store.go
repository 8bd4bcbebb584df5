package catalog

import (
	"context"

	"github.com/maltedev/parts-catalog-importer/internal/models"
)

// DefaultSearchLimit caps Search when the caller passes a non-positive limit.
const DefaultSearchLimit = 20

// Store persists product records keyed by article.
//
// Create is insert-if-absent: an existing article yields a *ConflictError,
// never an overwrite, including when a concurrent writer wins the race.
// The product, its stock entry and its images are written as one unit.
type Store interface {
	Create(ctx context.Context, p *models.ProductRecord) (*models.ProductRecord, error)
	GetByArticle(ctx context.Context, article string) (*models.ProductRecord, error)
	// FindByQuery matches an import query against article or source URL.
	FindByQuery(ctx context.Context, query string) (*models.ProductRecord, error)
	UpdateStock(ctx context.Context, article string, u models.StockUpdate) (*models.ProductRecord, error)
	Delete(ctx context.Context, article string) error
	Search(ctx context.Context, q string, limit int) ([]*models.ProductRecord, error)
	// Browse returns one page of products matching f, ordered by article.
	Browse(ctx context.Context, f ListFilter) (*ProductPage, error)
	List(ctx context.Context) ([]*models.ProductRecord, error)
	Count(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*models.Stats, error)
}
