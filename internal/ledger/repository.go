package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nimbus-erp/nimbus-erp/internal/platform/db"
	"github.com/nimbus-erp/nimbus-erp/internal/shared"
)

// Repository persists ledger entries in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Store exposes the transactional ledger surface used by status changes.
type Store interface {
	Append(ctx context.Context, input AdjustInput) (Entry, error)
	Balance(ctx context.Context, sku, siteID int64) (int64, error)
	LastDirection(ctx context.Context, sku int64, orderID uuid.UUID, tag string) (Direction, error)
	LastDeductions(ctx context.Context, orderID uuid.UUID, tag string) ([]Entry, error)
}

// TxStore implements Store over one pgx transaction so ledger writes commit
// atomically with the status change that caused them.
type TxStore struct {
	tx pgx.Tx
}

// NewTxStore wraps an open transaction.
func NewTxStore(tx pgx.Tx) *TxStore {
	return &TxStore{tx: tx}
}

// WithTx executes the callback inside a serializable transaction. Concurrent
// deductions for the same SKU must not both pass a sufficiency check, so the
// ledger rows need serializable-or-equivalent isolation. Serialization
// failures are retried a few times before surfacing.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Store) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTxRetry(ctx, r.pool, db.Serializable, func(tx pgx.Tx) error {
		return fn(ctx, NewTxStore(tx))
	})
}

// CurrentBalance sums in minus out for the SKU scoped to the site pool.
func (r *Repository) CurrentBalance(ctx context.Context, sku, siteID int64) (int64, error) {
	if r == nil {
		return 0, errors.New("ledger repository not initialised")
	}
	return queryBalance(ctx, r.pool, sku, siteID)
}

// Movements lists one page of entries, newest first.
func (r *Repository) Movements(ctx context.Context, filter MovementFilter) ([]Entry, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	rows, err := r.pool.Query(ctx, `
SELECT id, sku_id, direction, qty, site_id, order_id, tag, created_at
FROM stock_ledger
WHERE ($1 = 0 OR sku_id = $1)
  AND ($2::bigint IS NULL OR site_id = $2)
  AND ($3::uuid = '00000000-0000-0000-0000-000000000000' OR order_id = $3)
  AND ($4 = '' OR tag = $4)
ORDER BY id DESC
LIMIT $5 OFFSET $6`, filter.SKU, filter.SiteID, filter.OrderID, filter.Tag, perPage, (page-1)*perPage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// CountMovements counts entries matching the filter, ignoring paging.
func (r *Repository) CountMovements(ctx context.Context, filter MovementFilter) (int, error) {
	if r == nil {
		return 0, errors.New("ledger repository not initialised")
	}
	var total int
	err := r.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM stock_ledger
WHERE ($1 = 0 OR sku_id = $1)
  AND ($2::bigint IS NULL OR site_id = $2)
  AND ($3::uuid = '00000000-0000-0000-0000-000000000000' OR order_id = $3)
  AND ($4 = '' OR tag = $4)`, filter.SKU, filter.SiteID, filter.OrderID, filter.Tag).Scan(&total)
	return total, err
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func queryBalance(ctx context.Context, q queryer, sku, siteID int64) (int64, error) {
	var balance int64
	err := q.QueryRow(ctx, `
SELECT COALESCE(SUM(CASE direction WHEN 'in' THEN qty ELSE -qty END), 0)
FROM stock_ledger
WHERE sku_id = $1 AND site_id = $2`, sku, siteID).Scan(&balance)
	return balance, err
}

// Append inserts one entry. Outbound entries are guarded against driving the
// balance negative; callers check sufficiency first, this is defence in depth.
func (s *TxStore) Append(ctx context.Context, input AdjustInput) (Entry, error) {
	if input.Qty <= 0 {
		return Entry{}, ErrInvalidQuantity
	}
	if !input.Direction.IsValid() {
		return Entry{}, ErrInvalidDirection
	}
	if input.Direction == DirectionOut {
		balance, err := queryBalance(ctx, s.tx, input.SKU, input.SiteID)
		if err != nil {
			return Entry{}, err
		}
		if balance < input.Qty {
			return Entry{}, &shared.InsufficientStockError{SKU: input.SKU, Available: balance, Requested: input.Qty}
		}
	}
	entry := Entry{
		SKU:       input.SKU,
		Direction: input.Direction,
		Qty:       input.Qty,
		SiteID:    input.SiteID,
		OrderID:   input.OrderID,
		Tag:       input.Tag,
	}
	err := s.tx.QueryRow(ctx, `
INSERT INTO stock_ledger (sku_id, direction, qty, site_id, order_id, tag, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())
RETURNING id, created_at`,
		input.SKU, string(input.Direction), input.Qty, input.SiteID, input.OrderID, input.Tag,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Balance computes the current balance inside the transaction.
func (s *TxStore) Balance(ctx context.Context, sku, siteID int64) (int64, error) {
	return queryBalance(ctx, s.tx, sku, siteID)
}

// LastDirection returns the direction of the most recent entry for the
// (SKU, order, tag) triple, or DirectionNone when no entry exists.
func (s *TxStore) LastDirection(ctx context.Context, sku int64, orderID uuid.UUID, tag string) (Direction, error) {
	var direction string
	err := s.tx.QueryRow(ctx, `
SELECT direction FROM stock_ledger
WHERE sku_id = $1 AND order_id = $2 AND tag = $3
ORDER BY id DESC
LIMIT 1`, sku, orderID, tag).Scan(&direction)
	if errors.Is(err, pgx.ErrNoRows) {
		return DirectionNone, nil
	}
	if err != nil {
		return DirectionNone, err
	}
	return Direction(direction), nil
}

// LastDeductions returns, per SKU, the latest entry for (order, tag) when its
// direction is still out. These are exactly the quantities owed on rejection.
func (s *TxStore) LastDeductions(ctx context.Context, orderID uuid.UUID, tag string) ([]Entry, error) {
	rows, err := s.tx.Query(ctx, `
SELECT DISTINCT ON (sku_id) id, sku_id, direction, qty, site_id, order_id, tag, created_at
FROM stock_ledger
WHERE order_id = $1 AND tag = $2
ORDER BY sku_id, id DESC`, orderID, tag)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	deducted := entries[:0]
	for _, entry := range entries {
		if entry.Direction == DirectionOut {
			deducted = append(deducted, entry)
		}
	}
	return deducted, nil
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var entry Entry
		var direction string
		if err := rows.Scan(&entry.ID, &entry.SKU, &direction, &entry.Qty, &entry.SiteID, &entry.OrderID, &entry.Tag, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Direction = Direction(direction)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
