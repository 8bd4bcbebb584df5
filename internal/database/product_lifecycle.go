package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/parts-catalog-importer/internal/catalog"
	"github.com/maltedev/parts-catalog-importer/internal/events"
	"github.com/maltedev/parts-catalog-importer/internal/models"
)

// UpdateStock applies a partial patch to the stock entry of article. The
// stock row is locked for the read-modify-write.
func (s *ProductStore) UpdateStock(ctx context.Context, article string, u models.StockUpdate) (*models.ProductRecord, error) {
	if err := catalog.Validate(u); err != nil {
		return nil, err
	}
	article = strings.TrimSpace(article)

	err := s.db.Transaction(ctx, func(tx pgx.Tx) error {
		var (
			productID uuid.UUID
			st        models.StockEntry
		)
		err := tx.QueryRow(ctx, `
			SELECT
				p.id, s.zone, s.rack, s.shelf, s.cell,
				s.quantity_actual, s.quantity_reserved, s.quantity_min, s.quantity_max,
				s.notes, s.last_counted, s.updated_at
			FROM products p
			JOIN warehouse_stock s ON s.product_id = p.id
			WHERE p.article = $1
			FOR UPDATE OF s`, article).Scan(
			&productID, &st.Zone, &st.Rack, &st.Shelf, &st.Cell,
			&st.QuantityActual, &st.QuantityReserved, &st.QuantityMin, &st.QuantityMax,
			&st.Notes, &st.LastCounted, &st.UpdatedAt,
		)
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.ErrProductNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock stock: %w", err)
		}

		now := time.Now().UTC()
		u.Apply(&st, now)

		_, err = tx.Exec(ctx, `
			UPDATE warehouse_stock SET
				zone = $2, rack = $3, shelf = $4, cell = $5,
				quantity_actual = $6, quantity_reserved = $7,
				quantity_min = $8, quantity_max = $9,
				notes = $10, last_counted = $11, updated_at = $12
			WHERE product_id = $1`,
			productID, st.Zone, st.Rack, st.Shelf, st.Cell,
			st.QuantityActual, st.QuantityReserved, st.QuantityMin, st.QuantityMax,
			st.Notes, st.LastCounted, st.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update stock: %w", err)
		}

		if _, err := tx.Exec(ctx, `UPDATE products SET updated_at = $2 WHERE id = $1`, productID, now); err != nil {
			return fmt.Errorf("failed to touch product: %w", err)
		}
		return nil
	})
	if errors.Is(err, catalog.ErrProductNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, &catalog.PersistenceError{Op: "update_stock", Article: article, Err: err}
	}

	s.logger.Info("stock updated", "article", article)
	return s.GetByArticle(ctx, article)
}

// Delete removes images, stock and product explicitly in one transaction and
// records a PRODUCT_DELETED event alongside.
func (s *ProductStore) Delete(ctx context.Context, article string) error {
	article = strings.TrimSpace(article)

	err := s.db.Transaction(ctx, func(tx pgx.Tx) error {
		var productID uuid.UUID
		err := tx.QueryRow(ctx,
			`SELECT id FROM products WHERE article = $1 FOR UPDATE`, article).Scan(&productID)
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.ErrProductNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock product: %w", err)
		}

		for _, stmt := range []string{
			`DELETE FROM product_images WHERE product_id = $1`,
			`DELETE FROM warehouse_stock WHERE product_id = $1`,
			`DELETE FROM products WHERE id = $1`,
		} {
			if _, err := tx.Exec(ctx, stmt, productID); err != nil {
				return fmt.Errorf("failed to delete product: %w", err)
			}
		}

		if s.outbox == nil {
			return nil
		}
		event, err := NewProductEvent(events.EventTypeProductDeleted, article, events.NewProductDeleted(article))
		if err != nil {
			return err
		}
		return s.outbox.InsertWithTx(ctx, tx, event)
	})
	if errors.Is(err, catalog.ErrProductNotFound) {
		return err
	}
	if err != nil {
		return &catalog.PersistenceError{Op: "delete", Article: article, Err: err}
	}

	s.logger.Info("product deleted", "article", article)
	return nil
}
