package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nimbus-erp/nimbus-erp/internal/ledger"
	"github.com/nimbus-erp/nimbus-erp/internal/platform/db"
	"github.com/nimbus-erp/nimbus-erp/internal/shared"
)

// Repository persists orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a serializable transaction. Status
// changes and their ledger effects must commit or roll back as one unit;
// serialization failures against concurrent same-SKU changes are retried.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	if r == nil {
		return errors.New("orders repository not initialised")
	}
	return db.WithTxRetry(ctx, r.pool, db.Serializable, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetOrder loads the full aggregate without locking.
func (r *Repository) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	if r == nil {
		return nil, errors.New("orders repository not initialised")
	}
	return loadOrder(ctx, r.pool, id, false)
}

// GetOrderForUpdate loads the aggregate and locks the order row for the
// duration of the transaction.
func (t *txRepository) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*Order, error) {
	return loadOrder(ctx, t.tx, id, true)
}

func (t *txRepository) UpdateGroupStatus(ctx context.Context, orderID uuid.UUID, group Group, supplierID int64, status Status) error {
	tag, err := t.tx.Exec(ctx, `
UPDATE order_group_statuses SET status = $4, updated_at = NOW()
WHERE order_id = $1 AND group_name = $2 AND supplier_id = $3`,
		orderID, string(group), supplierID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status OrderStatus) error {
	tag, err := t.tx.Exec(ctx, `
UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`, orderID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrOrderNotFound
	}
	return nil
}

func (t *txRepository) SetRejectionReason(ctx context.Context, orderID uuid.UUID, key, reason string) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO order_rejection_reasons (order_id, reason_key, reason, created_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (order_id, reason_key) DO UPDATE SET reason = EXCLUDED.reason`,
		orderID, key, reason)
	return err
}

func (t *txRepository) SetDriverDetail(ctx context.Context, orderID uuid.UUID, group Group, phase TransitPhase, detail DriverDetail) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO order_driver_details (order_id, group_name, phase, driver_name, vehicle_number)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (order_id, group_name, phase)
DO UPDATE SET driver_name = EXCLUDED.driver_name, vehicle_number = EXCLUDED.vehicle_number`,
		orderID, string(group), string(phase), detail.DriverName, detail.VehicleNumber)
	return err
}

// Ledger exposes the ledger store bound to this transaction.
func (t *txRepository) Ledger() ledger.Store {
	return ledger.NewTxStore(t.tx)
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadOrder(ctx context.Context, q queryer, id uuid.UUID, forUpdate bool) (*Order, error) {
	query := `
SELECT id, status, priority, site_id, note, expected_delivery, created_at, updated_at
FROM orders WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	order := &Order{
		LPOStatuses:      make(map[int64]Status),
		RejectionReasons: make(map[string]string),
		DriverDetails:    make(map[string]DriverDetail),
	}
	var status string
	var expected *time.Time
	err := q.QueryRow(ctx, query, id).Scan(
		&order.ID, &status, &order.Priority, &order.SiteID, &order.Note, &expected, &order.CreatedAt, &order.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	order.Status = OrderStatus(status)
	order.ExpectedDelivery = expected

	if err := loadGroupStatuses(ctx, q, order); err != nil {
		return nil, err
	}
	if err := loadLines(ctx, q, order); err != nil {
		return nil, err
	}
	if err := loadCustomLines(ctx, q, order); err != nil {
		return nil, err
	}
	if err := loadDriverDetails(ctx, q, order); err != nil {
		return nil, err
	}
	if err := loadRejectionReasons(ctx, q, order); err != nil {
		return nil, err
	}
	if err := loadAssignees(ctx, q, order); err != nil {
		return nil, err
	}
	return order, nil
}

func loadGroupStatuses(ctx context.Context, q queryer, order *Order) error {
	rows, err := q.Query(ctx, `
SELECT group_name, supplier_id, status
FROM order_group_statuses WHERE order_id = $1`, order.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var groupName, status string
		var supplierID int64
		if err := rows.Scan(&groupName, &supplierID, &status); err != nil {
			return err
		}
		parsed, err := ParseStatus(status)
		if err != nil {
			return err
		}
		switch Group(groupName) {
		case GroupHardware:
			order.HardwareStatus = &parsed
		case GroupWorkshop:
			order.WorkshopStatus = &parsed
		case GroupLPO:
			order.LPOStatuses[supplierID] = parsed
		}
	}
	return rows.Err()
}

func loadLines(ctx context.Context, q queryer, order *Order) error {
	rows, err := q.Query(ctx, `
SELECT group_name, product_id, qty, supplier_id
FROM order_lines WHERE order_id = $1 ORDER BY id`, order.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var groupName string
		var line Line
		if err := rows.Scan(&groupName, &line.ProductID, &line.Qty, &line.SupplierID); err != nil {
			return err
		}
		switch Group(groupName) {
		case GroupHardware:
			order.HardwareLines = append(order.HardwareLines, line)
		case GroupWorkshop:
			order.WorkshopLines = append(order.WorkshopLines, line)
		case GroupLPO:
			order.LPOLines = append(order.LPOLines, line)
		}
	}
	return rows.Err()
}

func loadCustomLines(ctx context.Context, q queryer, order *Order) error {
	rows, err := q.Query(ctx, `
SELECT id, description, materials
FROM order_custom_lines WHERE order_id = $1 ORDER BY id`, order.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	index := make(map[int64]int)
	for rows.Next() {
		var line CustomLine
		if err := rows.Scan(&line.ID, &line.Desc, &line.Materials); err != nil {
			return err
		}
		index[line.ID] = len(order.CustomLines)
		order.CustomLines = append(order.CustomLines, line)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(order.CustomLines) == 0 {
		return nil
	}

	productRows, err := q.Query(ctx, `
SELECT cl.custom_line_id, cl.product_id, cl.qty
FROM order_custom_line_products cl
JOIN order_custom_lines ocl ON ocl.id = cl.custom_line_id
WHERE ocl.order_id = $1 ORDER BY cl.custom_line_id, cl.product_id`, order.ID)
	if err != nil {
		return err
	}
	defer productRows.Close()
	for productRows.Next() {
		var lineID int64
		var cp ConnectedProduct
		if err := productRows.Scan(&lineID, &cp.ProductID, &cp.Qty); err != nil {
			return err
		}
		if i, ok := index[lineID]; ok {
			order.CustomLines[i].Connected = append(order.CustomLines[i].Connected, cp)
		}
	}
	if err := productRows.Err(); err != nil {
		return err
	}

	imageRows, err := q.Query(ctx, `
SELECT ci.custom_line_id, ci.path
FROM order_custom_line_images ci
JOIN order_custom_lines ocl ON ocl.id = ci.custom_line_id
WHERE ocl.order_id = $1 ORDER BY ci.custom_line_id, ci.position`, order.ID)
	if err != nil {
		return err
	}
	defer imageRows.Close()
	for imageRows.Next() {
		var lineID int64
		var path string
		if err := imageRows.Scan(&lineID, &path); err != nil {
			return err
		}
		if i, ok := index[lineID]; ok {
			order.CustomLines[i].ImagePaths = append(order.CustomLines[i].ImagePaths, path)
		}
	}
	return imageRows.Err()
}

func loadDriverDetails(ctx context.Context, q queryer, order *Order) error {
	rows, err := q.Query(ctx, `
SELECT group_name, phase, driver_name, vehicle_number
FROM order_driver_details WHERE order_id = $1`, order.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var groupName, phase string
		var detail DriverDetail
		if err := rows.Scan(&groupName, &phase, &detail.DriverName, &detail.VehicleNumber); err != nil {
			return err
		}
		order.DriverDetails[DriverDetailKey(Group(groupName), TransitPhase(phase))] = detail
	}
	return rows.Err()
}

func loadRejectionReasons(ctx context.Context, q queryer, order *Order) error {
	rows, err := q.Query(ctx, `
SELECT reason_key, reason
FROM order_rejection_reasons WHERE order_id = $1`, order.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key, reason string
		if err := rows.Scan(&key, &reason); err != nil {
			return err
		}
		order.RejectionReasons[key] = reason
	}
	return rows.Err()
}

func loadAssignees(ctx context.Context, q queryer, order *Order) error {
	rows, err := q.Query(ctx, `
SELECT user_id, role
FROM order_assignees WHERE order_id = $1 ORDER BY user_id`, order.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var assignee Assignee
		if err := rows.Scan(&assignee.UserID, &assignee.Role); err != nil {
			return err
		}
		order.AssignedTo = append(order.AssignedTo, assignee)
	}
	return rows.Err()
}

// CreateOrder inserts a new order with every present group in pending.
func (r *Repository) CreateOrder(ctx context.Context, order *Order) error {
	if r == nil {
		return errors.New("orders repository not initialised")
	}
	return db.WithTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return r.insertOrder(ctx, tx, order)
	})
}

func (r *Repository) insertOrder(ctx context.Context, tx pgx.Tx, order *Order) error {
	_, err := tx.Exec(ctx, `
INSERT INTO orders (id, status, priority, site_id, note, expected_delivery, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())`,
		order.ID, string(order.Status), order.Priority, order.SiteID, order.Note, order.ExpectedDelivery)
	if err != nil {
		return err
	}

	insertGroup := func(group Group, supplierID int64, status Status) error {
		_, err := tx.Exec(ctx, `
INSERT INTO order_group_statuses (order_id, group_name, supplier_id, status, updated_at)
VALUES ($1, $2, $3, $4, NOW())`, order.ID, string(group), supplierID, string(status))
		return err
	}
	if order.HardwareStatus != nil {
		if err := insertGroup(GroupHardware, 0, *order.HardwareStatus); err != nil {
			return err
		}
	}
	if order.WorkshopStatus != nil {
		if err := insertGroup(GroupWorkshop, 0, *order.WorkshopStatus); err != nil {
			return err
		}
	}
	for supplierID, status := range order.LPOStatuses {
		if err := insertGroup(GroupLPO, supplierID, status); err != nil {
			return err
		}
	}

	insertLine := func(group Group, line Line) error {
		_, err := tx.Exec(ctx, `
INSERT INTO order_lines (order_id, group_name, product_id, qty, supplier_id)
VALUES ($1, $2, $3, $4, $5)`, order.ID, string(group), line.ProductID, line.Qty, line.SupplierID)
		return err
	}
	for _, line := range order.HardwareLines {
		if err := insertLine(GroupHardware, line); err != nil {
			return err
		}
	}
	for _, line := range order.WorkshopLines {
		if err := insertLine(GroupWorkshop, line); err != nil {
			return err
		}
	}
	for _, line := range order.LPOLines {
		if err := insertLine(GroupLPO, line); err != nil {
			return err
		}
	}

	for i := range order.CustomLines {
		line := &order.CustomLines[i]
		err := tx.QueryRow(ctx, `
INSERT INTO order_custom_lines (order_id, description, materials)
VALUES ($1, $2, $3) RETURNING id`, order.ID, line.Desc, line.Materials).Scan(&line.ID)
		if err != nil {
			return err
		}
		for _, cp := range line.Connected {
			_, err := tx.Exec(ctx, `
INSERT INTO order_custom_line_products (custom_line_id, product_id, qty)
VALUES ($1, $2, $3)`, line.ID, cp.ProductID, cp.Qty)
			if err != nil {
				return err
			}
		}
		for position, path := range line.ImagePaths {
			_, err := tx.Exec(ctx, `
INSERT INTO order_custom_line_images (custom_line_id, path, position)
VALUES ($1, $2, $3)`, line.ID, path, position)
			if err != nil {
				return err
			}
		}
	}

	for _, assignee := range order.AssignedTo {
		_, err := tx.Exec(ctx, `
INSERT INTO order_assignees (order_id, user_id, role)
VALUES ($1, $2, $3)`, order.ID, assignee.UserID, assignee.Role)
		if err != nil {
			return err
		}
	}

	return nil
}
