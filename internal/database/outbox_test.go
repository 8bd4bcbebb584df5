package database

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/parts-catalog-importer/internal/events"
)

// setupTestDB connects to TEST_DATABASE_URL, migrates it and empties every
// catalog table. Tests are skipped when the variable is unset.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := Open(ctx, dsn, 4)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx, "up"))

	_, err = db.Exec(ctx, "TRUNCATE outbox_event, product_images, warehouse_stock, products")
	require.NoError(t, err)

	return db
}

func testEvent(article string) *OutboxEvent {
	return &OutboxEvent{
		AggregateType: events.AggregateProduct,
		AggregateID:   article,
		EventType:     string(events.EventTypeProductImported),
		Payload:       json.RawMessage(`{"article":"` + article + `"}`),
		TargetStream:  DefaultStream,
	}
}

func TestOutboxRepository_InsertWithTx(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db, "")

	t.Run("successful insert with transaction", func(t *testing.T) {
		event := testEvent("2498")

		err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			return repo.InsertWithTx(ctx, tx, event)
		})

		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, event.ID)
		assert.Equal(t, OutboxStatusPending, event.Status)
		assert.Equal(t, 0, event.RetryCount)
		assert.False(t, event.CreatedAt.IsZero())
	})

	t.Run("rollback on transaction failure", func(t *testing.T) {
		event := testEvent("2499")

		err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			if err := repo.InsertWithTx(ctx, tx, event); err != nil {
				return err
			}
			return errors.New("abort")
		})
		assert.Error(t, err)

		pending, err := repo.GetPending(ctx, 10)
		require.NoError(t, err)
		for _, e := range pending {
			assert.NotEqual(t, "2499", e.AggregateID)
		}
	})

	t.Run("missing payload", func(t *testing.T) {
		event := testEvent("2500")
		event.Payload = nil

		err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			return repo.InsertWithTx(ctx, tx, event)
		})
		assert.Error(t, err)
	})

	t.Run("default stream", func(t *testing.T) {
		event := testEvent("2501")
		event.TargetStream = ""

		err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			return repo.InsertWithTx(ctx, tx, event)
		})
		require.NoError(t, err)
		assert.Equal(t, DefaultStream, event.TargetStream)
	})
}

func TestOutboxRepository_GetPending(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db, "")

	statuses := map[string]string{
		"1001": OutboxStatusPending,
		"1002": OutboxStatusProcessed,
		"1003": OutboxStatusPending,
		"1004": OutboxStatusFailed,
	}
	for _, article := range []string{"1001", "1002", "1003", "1004"} {
		event := testEvent(article)
		event.Status = statuses[article]
		err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			return repo.InsertWithTx(ctx, tx, event)
		})
		require.NoError(t, err)
	}

	t.Run("limit", func(t *testing.T) {
		pending, err := repo.GetPending(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, pending, 2)
		for _, e := range pending {
			assert.Contains(t, []string{OutboxStatusPending, OutboxStatusFailed}, e.Status)
		}
	})

	t.Run("ordered by created_at", func(t *testing.T) {
		pending, err := repo.GetPending(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, pending, 3)
		for i := 1; i < len(pending); i++ {
			assert.False(t, pending[i].CreatedAt.Before(pending[i-1].CreatedAt))
		}
	})

	t.Run("respects next_retry_at", func(t *testing.T) {
		_, err := db.Exec(ctx,
			"UPDATE outbox_event SET next_retry_at = $1 WHERE aggregate_id = $2",
			time.Now().Add(time.Hour), "1004")
		require.NoError(t, err)

		pending, err := repo.GetPending(ctx, 10)
		require.NoError(t, err)
		for _, e := range pending {
			assert.NotEqual(t, "1004", e.AggregateID)
		}
	})

	t.Run("count by status", func(t *testing.T) {
		count, err := repo.CountByStatus(ctx, OutboxStatusPending, OutboxStatusFailed)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
	})
}

func TestOutboxRepository_MarkProcessed(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db, "")

	event := testEvent("2498")
	err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		return repo.InsertWithTx(ctx, tx, event)
	})
	require.NoError(t, err)

	t.Run("mark as processed", func(t *testing.T) {
		require.NoError(t, repo.MarkProcessed(ctx, event.ID))

		var status string
		var processedAt *time.Time
		err := db.pool.QueryRow(ctx,
			"SELECT status, processed_at FROM outbox_event WHERE id = $1",
			event.ID).Scan(&status, &processedAt)
		require.NoError(t, err)

		assert.Equal(t, OutboxStatusProcessed, status)
		require.NotNil(t, processedAt)
		assert.WithinDuration(t, time.Now(), *processedAt, 5*time.Second)
	})

	t.Run("mark non-existent event", func(t *testing.T) {
		assert.Error(t, repo.MarkProcessed(ctx, uuid.New()))
	})
}

func TestOutboxRepository_MarkFailed(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db, "")

	t.Run("increment retry count and set backoff", func(t *testing.T) {
		event := testEvent("2498")
		err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			return repo.InsertWithTx(ctx, tx, event)
		})
		require.NoError(t, err)

		require.NoError(t, repo.MarkFailed(ctx, event.ID, assert.AnError))

		var status string
		var retryCount int
		var errorMsg *string
		var nextRetry *time.Time
		err = db.pool.QueryRow(ctx,
			"SELECT status, retry_count, error_message, next_retry_at FROM outbox_event WHERE id = $1",
			event.ID).Scan(&status, &retryCount, &errorMsg, &nextRetry)
		require.NoError(t, err)

		assert.Equal(t, OutboxStatusFailed, status)
		assert.Equal(t, 1, retryCount)
		require.NotNil(t, errorMsg)
		assert.Contains(t, *errorMsg, "assert.AnError")
		require.NotNil(t, nextRetry)
		assert.True(t, nextRetry.After(time.Now()))
	})

	t.Run("dead letter after max retries", func(t *testing.T) {
		event := testEvent("2499")
		event.RetryCount = MaxRetryCount - 1
		err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			return repo.InsertWithTx(ctx, tx, event)
		})
		require.NoError(t, err)

		require.NoError(t, repo.MarkFailed(ctx, event.ID, assert.AnError))

		var status string
		var retryCount int
		err = db.pool.QueryRow(ctx,
			"SELECT status, retry_count FROM outbox_event WHERE id = $1",
			event.ID).Scan(&status, &retryCount)
		require.NoError(t, err)

		assert.Equal(t, OutboxStatusDeadLetter, status)
		assert.Equal(t, MaxRetryCount, retryCount)
	})
}
