package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/maltedev/parts-catalog-importer/internal/catalog"
	"github.com/maltedev/parts-catalog-importer/internal/events"
	"github.com/maltedev/parts-catalog-importer/internal/models"
)

const uniqueViolation = "23505"

// errArticleTaken aborts the create transaction when the insert lost to an
// existing row.
var errArticleTaken = errors.New("article taken")

// ProductStore is the PostgreSQL catalog store. A product row, its
// warehouse_stock row, its product_images rows and the matching outbox
// event are always written in a single transaction.
type ProductStore struct {
	db     *DB
	outbox *OutboxRepository
	logger *slog.Logger
}

var _ catalog.Store = (*ProductStore)(nil)

// NewProductStore returns a store that emits events through outbox. A nil
// outbox disables event emission.
func NewProductStore(db *DB, outbox *OutboxRepository, logger *slog.Logger) *ProductStore {
	return &ProductStore{
		db:     db,
		outbox: outbox,
		logger: logger.With("component", "product_store"),
	}
}

const selectProduct = `
	SELECT
		p.id, p.article, p.title, p.manufacturer, p.category,
		p.price, p.price_amount::text, p.price_old, p.description, p.url,
		p.weight, p.availability, p.in_stock, p.site_stock,
		p.dimensions, p.specifications, p.delivery_info,
		p.created_at, p.updated_at,
		COALESCE(s.zone, ''), COALESCE(s.rack, ''), COALESCE(s.shelf, ''), COALESCE(s.cell, ''),
		COALESCE(s.quantity_actual, 0), COALESCE(s.quantity_reserved, 0),
		COALESCE(s.quantity_min, 0), COALESCE(s.quantity_max, 0),
		COALESCE(s.notes, ''), s.last_counted, COALESCE(s.updated_at, p.updated_at)
	FROM products p
	LEFT JOIN warehouse_stock s ON s.product_id = p.id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.ProductRecord, error) {
	p := &models.ProductRecord{}
	var (
		amount                         *string
		dimensions, specs, deliveryRaw []byte
	)

	err := row.Scan(
		&p.ID, &p.Article, &p.Title, &p.Manufacturer, &p.Category,
		&p.Price, &amount, &p.OldPrice, &p.Description, &p.SourceURL,
		&p.Weight, &p.Availability, &p.InStock, &p.SiteStock,
		&dimensions, &specs, &deliveryRaw,
		&p.CreatedAt, &p.UpdatedAt,
		&p.Stock.Zone, &p.Stock.Rack, &p.Stock.Shelf, &p.Stock.Cell,
		&p.Stock.QuantityActual, &p.Stock.QuantityReserved,
		&p.Stock.QuantityMin, &p.Stock.QuantityMax,
		&p.Stock.Notes, &p.Stock.LastCounted, &p.Stock.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if amount != nil {
		d, err := decimal.NewFromString(*amount)
		if err != nil {
			return nil, fmt.Errorf("failed to parse price_amount %q: %w", *amount, err)
		}
		p.PriceAmount = decimal.NewNullDecimal(d)
	}

	p.Dimensions = make(map[string]string)
	if err := json.Unmarshal(dimensions, &p.Dimensions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dimensions: %w", err)
	}
	if err := json.Unmarshal(specs, &p.Specifications); err != nil {
		return nil, fmt.Errorf("failed to unmarshal specifications: %w", err)
	}
	if err := json.Unmarshal(deliveryRaw, &p.DeliveryInfo); err != nil {
		return nil, fmt.Errorf("failed to unmarshal delivery info: %w", err)
	}
	p.Images = make([]string, 0)

	return p, nil
}

// queryProducts runs a selectProduct query and attaches images in one
// extra round trip.
func (s *ProductStore) queryProducts(ctx context.Context, sql string, args ...any) ([]*models.ProductRecord, error) {
	rows, err := s.db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ProductRecord
	byID := make(map[uuid.UUID]*models.ProductRecord)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		out = append(out, p)
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	if len(out) == 0 {
		return out, nil
	}
	if err := s.attachImages(ctx, byID); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ProductStore) attachImages(ctx context.Context, byID map[uuid.UUID]*models.ProductRecord) error {
	ids := make([]uuid.UUID, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	rows, err := s.db.pool.Query(ctx, `
		SELECT product_id, url
		FROM product_images
		WHERE product_id = ANY($1)
		ORDER BY product_id, position`, ids)
	if err != nil {
		return fmt.Errorf("failed to load images: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  uuid.UUID
			url string
		)
		if err := rows.Scan(&id, &url); err != nil {
			return fmt.Errorf("failed to scan image: %w", err)
		}
		if p, ok := byID[id]; ok {
			p.Images = append(p.Images, url)
		}
	}
	return rows.Err()
}

func (s *ProductStore) queryOne(ctx context.Context, op, article, sql string, args ...any) (*models.ProductRecord, error) {
	products, err := s.queryProducts(ctx, sql, args...)
	if err != nil {
		return nil, &catalog.PersistenceError{Op: op, Article: article, Err: err}
	}
	if len(products) == 0 {
		return nil, catalog.ErrProductNotFound
	}
	return products[0], nil
}

// Create inserts p with its stock entry and images. An existing article,
// including one committed concurrently, yields a *catalog.ConflictError.
func (s *ProductStore) Create(ctx context.Context, p *models.ProductRecord) (*models.ProductRecord, error) {
	rec := p.Clone()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.Stock.UpdatedAt = now

	dimensions, err := json.Marshal(nonNilMap(rec.Dimensions))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dimensions: %w", err)
	}
	specs, err := json.Marshal(rec.Specifications)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal specifications: %w", err)
	}
	delivery := rec.DeliveryInfo
	if delivery == nil {
		delivery = []models.DeliveryInfo{}
	}
	deliveryJSON, err := json.Marshal(delivery)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal delivery info: %w", err)
	}

	var amount *string
	if rec.PriceAmount.Valid {
		v := rec.PriceAmount.Decimal.StringFixed(2)
		amount = &v
	}

	err = s.db.Transaction(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO products (
				id, article, title, manufacturer, category,
				price, price_amount, price_old, description, url,
				weight, availability, in_stock, site_stock,
				dimensions, specifications, delivery_info,
				created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5,
				$6, $7::text::numeric, $8, $9, $10,
				$11, $12, $13, $14,
				$15, $16, $17,
				$18, $18
			)
			ON CONFLICT ON CONSTRAINT products_article_key DO NOTHING`,
			rec.ID, rec.Article, rec.Title, rec.Manufacturer, rec.Category,
			rec.Price, amount, rec.OldPrice, rec.Description, rec.SourceURL,
			rec.Weight, rec.Availability, rec.InStock, rec.SiteStock,
			dimensions, specs, deliveryJSON,
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert product: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return errArticleTaken
		}

		st := rec.Stock
		if _, err := tx.Exec(ctx, `
			INSERT INTO warehouse_stock (
				product_id, zone, rack, shelf, cell,
				quantity_actual, quantity_reserved, quantity_min, quantity_max,
				notes, last_counted, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			rec.ID, st.Zone, st.Rack, st.Shelf, st.Cell,
			st.QuantityActual, st.QuantityReserved, st.QuantityMin, st.QuantityMax,
			st.Notes, st.LastCounted, now,
		); err != nil {
			return fmt.Errorf("failed to insert stock: %w", err)
		}

		if len(rec.Images) > 0 {
			batch := &pgx.Batch{}
			for i, url := range rec.Images {
				batch.Queue(`
					INSERT INTO product_images (product_id, url, position, is_main)
					VALUES ($1, $2, $3, $4)
					ON CONFLICT (product_id, url) DO NOTHING`,
					rec.ID, url, i, i == 0)
			}
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("failed to insert images: %w", err)
			}
		}

		if s.outbox == nil {
			return nil
		}
		event, err := NewProductEvent(events.EventTypeProductImported, rec.Article, events.NewProductImported(rec))
		if err != nil {
			return err
		}
		return s.outbox.InsertWithTx(ctx, tx, event)
	})

	if err != nil {
		if errors.Is(err, errArticleTaken) || isUniqueViolation(err) {
			s.logger.Info("article already in catalog", "article", rec.Article)
			existing, getErr := s.GetByArticle(ctx, rec.Article)
			if getErr != nil {
				s.logger.Warn("failed to load conflicting product", "article", rec.Article, "error", getErr)
			}
			return nil, &catalog.ConflictError{Article: rec.Article, Existing: existing}
		}
		return nil, &catalog.PersistenceError{Op: "create", Article: rec.Article, Err: err}
	}

	s.logger.Info("product created",
		"article", rec.Article,
		"images", len(rec.Images))

	return rec, nil
}

func (s *ProductStore) GetByArticle(ctx context.Context, article string) (*models.ProductRecord, error) {
	return s.queryOne(ctx, "get", article, selectProduct+` WHERE p.article = $1`, strings.TrimSpace(article))
}

func (s *ProductStore) FindByQuery(ctx context.Context, query string) (*models.ProductRecord, error) {
	query = strings.TrimSpace(query)
	return s.queryOne(ctx, "find", query,
		selectProduct+` WHERE p.article = $1 OR p.url = $1 ORDER BY p.created_at LIMIT 1`, query)
}

// Search matches q case-insensitively against article, title and
// manufacturer.
func (s *ProductStore) Search(ctx context.Context, q string, limit int) ([]*models.ProductRecord, error) {
	if limit <= 0 {
		limit = catalog.DefaultSearchLimit
	}
	pattern := "%" + escapeLike(strings.TrimSpace(q)) + "%"

	products, err := s.queryProducts(ctx, selectProduct+`
		WHERE p.article ILIKE $1 OR p.title ILIKE $1 OR p.manufacturer ILIKE $1
		ORDER BY p.article
		LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, &catalog.PersistenceError{Op: "search", Err: err}
	}
	return products, nil
}

// Browse counts the products matching f and loads the requested page.
func (s *ProductStore) Browse(ctx context.Context, f catalog.ListFilter) (*catalog.ProductPage, error) {
	f = f.Normalize()
	where, args := browseConditions(f)

	var total int
	err := s.db.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM products p
		LEFT JOIN warehouse_stock s ON s.product_id = p.id`+where, args...).Scan(&total)
	if err != nil {
		return nil, &catalog.PersistenceError{Op: "browse", Err: err}
	}

	args = append(args, f.PerPage, f.Offset())
	items, err := s.queryProducts(ctx, selectProduct+where+
		fmt.Sprintf(` ORDER BY p.article LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, &catalog.PersistenceError{Op: "browse", Err: err}
	}

	return catalog.NewProductPage(items, total, f), nil
}

func browseConditions(f catalog.ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)

	if f.Zone != "" {
		args = append(args, f.Zone)
		conds = append(conds, fmt.Sprintf("s.zone = $%d", len(args)))
	}
	if f.Manufacturer != "" {
		args = append(args, f.Manufacturer)
		conds = append(conds, fmt.Sprintf("p.manufacturer = $%d", len(args)))
	}
	if f.LowStock {
		conds = append(conds, "s.quantity_min > 0 AND s.quantity_actual - s.quantity_reserved < s.quantity_min")
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(p.article ILIKE $%d OR p.title ILIKE $%d OR p.manufacturer ILIKE $%d)", n, n, n))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *ProductStore) List(ctx context.Context) ([]*models.ProductRecord, error) {
	products, err := s.queryProducts(ctx, selectProduct+` ORDER BY p.created_at, p.article`)
	if err != nil {
		return nil, &catalog.PersistenceError{Op: "list", Err: err}
	}
	return products, nil
}

func (s *ProductStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&count); err != nil {
		return 0, &catalog.PersistenceError{Op: "count", Err: err}
	}
	return count, nil
}

func (s *ProductStore) Stats(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{}
	err := s.db.pool.QueryRow(ctx, `
		SELECT
			COUNT(p.id),
			COUNT(*) FILTER (WHERE s.quantity_min > 0
				AND s.quantity_actual - s.quantity_reserved < s.quantity_min),
			COUNT(*) FILTER (WHERE COALESCE(s.quantity_actual - s.quantity_reserved, 0) <= 0),
			COALESCE(SUM(s.quantity_actual), 0)
		FROM products p
		LEFT JOIN warehouse_stock s ON s.product_id = p.id`).Scan(
		&stats.TotalProducts, &stats.LowStock, &stats.OutOfStock, &stats.TotalItems)
	if err != nil {
		return nil, &catalog.PersistenceError{Op: "stats", Err: err}
	}

	stats.Zones, err = s.distinct(ctx, `SELECT DISTINCT zone FROM warehouse_stock WHERE zone <> '' ORDER BY zone`)
	if err != nil {
		return nil, &catalog.PersistenceError{Op: "stats", Err: err}
	}
	stats.Manufacturers, err = s.distinct(ctx, `SELECT DISTINCT manufacturer FROM products WHERE manufacturer <> '' ORDER BY manufacturer`)
	if err != nil {
		return nil, &catalog.PersistenceError{Op: "stats", Err: err}
	}

	return stats, nil
}

func (s *ProductStore) distinct(ctx context.Context, sql string) ([]string, error) {
	rows, err := s.db.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	values, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = []string{}
	}
	return values, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
