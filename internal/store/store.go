package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ordersync/internal/models"
)

// ErrPersistence marks a failed store operation. A failed bulk insert fails
// the whole run's insertion step; no partial commit survives.
var ErrPersistence = errors.New("persistence failed")

type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

// ListKnownOrderIDs returns every order id already imported for a platform.
func (s *Store) ListKnownOrderIDs(ctx context.Context, platform models.Platform) (map[string]struct{}, error) {
	rows, err := s.Pool.Query(ctx, `SELECT order_id FROM orders WHERE platform=$1`, string(platform))
	if err != nil {
		return nil, fmt.Errorf("%w: list order ids: %w", ErrPersistence, err)
	}
	defer rows.Close()

	known := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scan order id: %w", ErrPersistence, err)
		}
		known[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list order ids: %w", ErrPersistence, err)
	}
	return known, nil
}

// BulkInsert writes all orders and all line items of a run in one
// transaction. Amounts travel as fixed 2-digit strings into NUMERIC columns.
func (s *Store) BulkInsert(ctx context.Context, orders []models.Order, items []models.LineItem) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrPersistence, err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"orders"},
		[]string{"order_id", "platform", "creation_date", "customer_name",
			"subtotal_amount", "discount_amount", "delivery_amount", "tax_amount", "total_amount"},
		pgx.CopyFromSlice(len(orders), func(i int) ([]any, error) {
			o := orders[i]
			return []any{
				o.OrderID,
				string(o.Platform),
				o.CreationDate,
				o.CustomerName,
				o.SubtotalAmount.StringFixed(2),
				o.DiscountAmount.StringFixed(2),
				o.DeliveryAmount.StringFixed(2),
				o.TaxAmount.StringFixed(2),
				o.TotalAmount.StringFixed(2),
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("%w: copy orders: %w", ErrPersistence, err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"line_items"},
		[]string{"line_id", "order_id", "sku", "title", "quantity", "total_amount"},
		pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
			li := items[i]
			return []any{
				li.LineID,
				li.OrderID,
				li.SKU,
				li.Title,
				li.Quantity,
				li.TotalAmount.StringFixed(2),
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("%w: copy line items: %w", ErrPersistence, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrPersistence, err)
	}
	return nil
}
