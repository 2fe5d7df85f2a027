package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nimbus-erp/nimbus-erp/internal/bom"
	"github.com/nimbus-erp/nimbus-erp/internal/ledger"
	"github.com/nimbus-erp/nimbus-erp/internal/shared"
)

type memoryLedger struct {
	entries []ledger.Entry
	nextID  int64
}

func (l *memoryLedger) seed(sku, qty, siteID int64) {
	l.nextID++
	l.entries = append(l.entries, ledger.Entry{
		ID: l.nextID, SKU: sku, Direction: ledger.DirectionIn, Qty: qty, SiteID: siteID, Tag: "seed",
	})
}

func (l *memoryLedger) Append(ctx context.Context, input ledger.AdjustInput) (ledger.Entry, error) {
	if input.Qty <= 0 {
		return ledger.Entry{}, ledger.ErrInvalidQuantity
	}
	if !input.Direction.IsValid() {
		return ledger.Entry{}, ledger.ErrInvalidDirection
	}
	if input.Direction == ledger.DirectionOut {
		balance, _ := l.Balance(ctx, input.SKU, input.SiteID)
		if balance < input.Qty {
			return ledger.Entry{}, &shared.InsufficientStockError{SKU: input.SKU, Available: balance, Requested: input.Qty}
		}
	}
	l.nextID++
	entry := ledger.Entry{
		ID: l.nextID, SKU: input.SKU, Direction: input.Direction, Qty: input.Qty,
		SiteID: input.SiteID, OrderID: input.OrderID, Tag: input.Tag,
	}
	l.entries = append(l.entries, entry)
	return entry, nil
}

func (l *memoryLedger) Balance(_ context.Context, sku, siteID int64) (int64, error) {
	var balance int64
	for _, e := range l.entries {
		if e.SKU != sku || e.SiteID != siteID {
			continue
		}
		if e.Direction == ledger.DirectionIn {
			balance += e.Qty
		} else {
			balance -= e.Qty
		}
	}
	return balance, nil
}

func (l *memoryLedger) LastDirection(_ context.Context, sku int64, orderID uuid.UUID, tag string) (ledger.Direction, error) {
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if e.SKU == sku && e.OrderID == orderID && e.Tag == tag {
			return e.Direction, nil
		}
	}
	return ledger.DirectionNone, nil
}

func (l *memoryLedger) LastDeductions(_ context.Context, orderID uuid.UUID, tag string) ([]ledger.Entry, error) {
	latest := make(map[int64]ledger.Entry)
	for _, e := range l.entries {
		if e.OrderID == orderID && e.Tag == tag {
			latest[e.SKU] = e
		}
	}
	var deducted []ledger.Entry
	for _, e := range latest {
		if e.Direction == ledger.DirectionOut {
			deducted = append(deducted, e)
		}
	}
	return deducted, nil
}

type memoryRepo struct {
	order     *Order
	led       *memoryLedger
	persisted OrderStatus
}

func newMemoryRepo(order *Order) *memoryRepo {
	return &memoryRepo{order: order, led: &memoryLedger{}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) GetOrder(_ context.Context, id uuid.UUID) (*Order, error) {
	if r.order == nil || r.order.ID != id {
		return nil, shared.ErrOrderNotFound
	}
	return r.order, nil
}

func (r *memoryRepo) CreateOrder(_ context.Context, order *Order) error {
	r.order = order
	return nil
}

func (r *memoryRepo) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.GetOrder(ctx, id)
}

func (r *memoryRepo) UpdateGroupStatus(context.Context, uuid.UUID, Group, int64, Status) error {
	return nil
}

func (r *memoryRepo) UpdateOrderStatus(_ context.Context, _ uuid.UUID, status OrderStatus) error {
	r.persisted = status
	return nil
}

func (r *memoryRepo) SetRejectionReason(context.Context, uuid.UUID, string, string) error {
	return nil
}

func (r *memoryRepo) SetDriverDetail(context.Context, uuid.UUID, Group, TransitPhase, DriverDetail) error {
	return nil
}

func (r *memoryRepo) Ledger() ledger.Store {
	return r.led
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, uuid.UUID) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

func newTestService(repo *memoryRepo, entries []bom.Entry) *Service {
	return NewService(repo, bom.NewResolver(entries), noopLocker{}, nil, nil, nil)
}

func hardwareOrder(sku, qty int64) *Order {
	pending := StatusPending
	return &Order{
		ID:             uuid.New(),
		Status:         OrderPending,
		HardwareStatus: &pending,
		HardwareLines:  []Line{{ProductID: sku, Qty: qty}},
	}
}

func TestApproveHardwareDeductsOnce(t *testing.T) {
	ctx := context.Background()
	order := hardwareOrder(10, 3)
	repo := newMemoryRepo(order)
	repo.led.seed(10, 5, 0)
	repo.led.seed(77, 10, 0)

	// 1.5 units of material 77 per finished product: 3 * 1.5 rounds up to 5.
	svc := newTestService(repo, []bom.Entry{{ProductID: 10, MaterialID: 77, PerUnit: 1.5}})

	result, err := svc.ChangeGroupStatus(ctx, ChangeGroupStatusInput{
		OrderID: order.ID, Group: GroupHardware, NewStatus: StatusApproved,
	})
	require.NoError(t, err)
	require.Equal(t, OrderApproved, result.OrderStatus)

	balance, _ := repo.led.Balance(ctx, 10, 0)
	require.EqualValues(t, 2, balance)
	balance, _ = repo.led.Balance(ctx, 77, 0)
	require.EqualValues(t, 5, balance)

	// Retry is a no-op and must not deduct again.
	result, err = svc.ChangeGroupStatus(ctx, ChangeGroupStatusInput{
		OrderID: order.ID, Group: GroupHardware, NewStatus: StatusApproved,
	})
	require.NoError(t, err)
	require.Equal(t, OrderApproved, result.OrderStatus)

	balance, _ = repo.led.Balance(ctx, 10, 0)
	require.EqualValues(t, 2, balance)
	balance, _ = repo.led.Balance(ctx, 77, 0)
	require.EqualValues(t, 5, balance)
}

func TestRejectionRestoresStock(t *testing.T) {
	ctx := context.Background()
	order := hardwareOrder(10, 3)
	repo := newMemoryRepo(order)
	repo.led.seed(10, 5, 0)

	svc := newTestService(repo, nil)

	_, err := svc.ChangeGroupStatus(ctx, ChangeGroupStatusInput{
		OrderID: order.ID, Group: GroupHardware, NewStatus: StatusApproved,
	})
	require.NoError(t, err)

	// Rejection without a reason is refused before any ledger write.
	_, err = svc.ChangeGroupStatus(ctx, ChangeGroupStatusInput{
		OrderID: order.ID, Group: GroupHardware, NewStatus: StatusRejected,
	})
	require.ErrorIs(t, err, shared.ErrMissingRejectionReason)

	result, err := svc.ChangeGroupStatus(ctx, ChangeGroupStatusInput{
		OrderID: order.ID, Group: GroupHardware, NewStatus: StatusRejected, Reason: "damaged goods",
	})
	require.NoError(t, err)
	require.Equal(t, OrderRejected, result.OrderStatus)
	require.Equal(t, "damaged goods", order.RejectionReasons["hardware"])

	balance, _ := repo.led.Balance(ctx, 10, 0)
	require.EqualValues(t, 5, balance)
}

func TestInsufficientStockLeavesStatusUnchanged(t *testing.T) {
	ctx := context.Background()
	order := hardwareOrder(10, 10)
	repo := newMemoryRepo(order)
	repo.led.seed(10, 5, 0)

	svc := newTestService(repo, nil)

	_, err := svc.ChangeGroupStatus(ctx, ChangeGroupStatusInput{
		OrderID: order.ID, Group: GroupHardware, NewStatus: StatusApproved,
	})
	var stockErr *shared.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.EqualValues(t, 5, stockErr.Available)
	require.EqualValues(t, 10, stockErr.Requested)

	require.Equal(t, StatusPending, *order.HardwareStatus)
	balance, _ := repo.led.Balance(ctx, 10, 0)
	require.EqualValues(t, 5, balance)
}

func TestCustomLinesDeductConnectedTotals(t *testing.T) {
	ctx := context.Background()
	pending := StatusPending
	order := &Order{
		ID:             uuid.New(),
		Status:         OrderPending,
		WorkshopStatus: &pending,
		CustomLines: []CustomLine{{
			Desc: "corner bench",
			Connected: []ConnectedProduct{
				{ProductID: 20, Qty: 3},
				{ProductID: 21, Qty: 4},
			},
		}},
	}
	repo := newMemoryRepo(order)
	repo.led.seed(20, 10, 0)
	repo.led.seed(21, 10, 0)

	svc := newTestService(repo, nil)

	// Jumping pending -> outfordelivery crosses the deduction point once.
	result, err := svc.ChangeGroupStatus(ctx, ChangeGroupStatusInput{
		OrderID: order.ID, Group: GroupWorkshop, NewStatus: StatusOutForDelivery,
		Driver: &DriverDetail{DriverName: "Imran", VehicleNumber: "DXB-4521"},
	})
	require.NoError(t, err)
	require.Equal(t, OrderOutForDelivery, result.OrderStatus)

	// Each connected product is deducted at the summed quantity 3+4=7.
	balance, _ := repo.led.Balance(ctx, 20, 0)
	require.EqualValues(t, 3, balance)
	balance, _ = repo.led.Balance(ctx, 21, 0)
	require.EqualValues(t, 3, balance)

	result, err = svc.ChangeGroupStatus(ctx, ChangeGroupStatusInput{
		OrderID: order.ID, Group: GroupWorkshop, NewStatus: StatusRejected, Reason: "customer cancelled",
	})
	require.NoError(t, err)
	require.Equal(t, OrderRejected, result.OrderStatus)

	balance, _ = repo.led.Balance(ctx, 20, 0)
	require.EqualValues(t, 10, balance)
	balance, _ = repo.led.Balance(ctx, 21, 0)
	require.EqualValues(t, 10, balance)
}

func TestTransitRequiresDriverDetails(t *testing.T) {
	ctx := context.Background()
	pending := StatusPending
	order := &Order{
		ID:             uuid.New(),
		Status:         OrderPending,
		WorkshopStatus: &pending,
		WorkshopLines:  []Line{{ProductID: 30, Qty: 1}},
	}
	repo := newMemoryRepo(order)
	svc := newTestService(repo, nil)

	_, err := svc.ChangeGroupStatus(ctx, ChangeGroupStatusInput{
		OrderID: order.ID, Group: GroupWorkshop, NewStatus: StatusInTransit,
	})
	require.ErrorIs(t, err, shared.ErrMissingDriverDetails)
	require.Equal(t, StatusPending, *order.WorkshopStatus)

	_, err = svc.ChangeGroupStatus(ctx, ChangeGroupStatusInput{
		OrderID: order.ID, Group: GroupWorkshop, NewStatus: StatusInTransit,
		Driver: &DriverDetail{DriverName: "Imran", VehicleNumber: "DXB-4521"},
	})
	require.NoError(t, err)
	require.Equal(t, StatusInTransit, *order.WorkshopStatus)
}

func TestLPOGroupRequiresSupplier(t *testing.T) {
	ctx := context.Background()
	order := &Order{
		ID:          uuid.New(),
		Status:      OrderPending,
		LPOStatuses: map[int64]Status{4: StatusPending},
		LPOLines:    []Line{{ProductID: 40, Qty: 2, SupplierID: 4}},
	}
	repo := newMemoryRepo(order)
	repo.led.seed(40, 5, 0)
	svc := newTestService(repo, nil)

	_, err := svc.ChangeGroupStatus(ctx, ChangeGroupStatusInput{
		OrderID: order.ID, Group: GroupLPO, NewStatus: StatusApproved,
	})
	require.ErrorIs(t, err, ErrSupplierRequired)

	result, err := svc.ChangeGroupStatus(ctx, ChangeGroupStatusInput{
		OrderID: order.ID, Group: GroupLPO, SupplierID: 4, NewStatus: StatusApproved,
	})
	require.NoError(t, err)
	require.Equal(t, OrderApproved, result.OrderStatus)

	balance, _ := repo.led.Balance(ctx, 40, 0)
	require.EqualValues(t, 3, balance)
}

func TestLPOSuppliersProgressIndependently(t *testing.T) {
	ctx := context.Background()
	order := &Order{
		ID:          uuid.New(),
		Status:      OrderPending,
		LPOStatuses: map[int64]Status{4: StatusPending, 5: StatusPending},
		LPOLines: []Line{
			{ProductID: 40, Qty: 2, SupplierID: 4},
			{ProductID: 50, Qty: 3, SupplierID: 5},
		},
	}
	repo := newMemoryRepo(order)
	repo.led.seed(40, 5, 0)
	repo.led.seed(50, 5, 0)
	svc := newTestService(repo, nil)

	_, err := svc.ChangeGroupStatus(ctx, ChangeGroupStatusInput{
		OrderID: order.ID, Group: GroupLPO, SupplierID: 4, NewStatus: StatusApproved,
	})
	require.NoError(t, err)

	result, err := svc.ChangeGroupStatus(ctx, ChangeGroupStatusInput{
		OrderID: order.ID, Group: GroupLPO, SupplierID: 5, NewStatus: StatusRejected, Reason: "wrong finish",
	})
	require.NoError(t, err)
	require.Equal(t, OrderRejected, result.OrderStatus)

	// Supplier 4 keeps its state and its deduction; supplier 5 never deducted.
	require.Equal(t, StatusApproved, order.LPOStatuses[4])
	require.Equal(t, StatusRejected, order.LPOStatuses[5])
	require.Equal(t, "wrong finish", order.RejectionReasons[ReasonKey(GroupLPO, 5)])

	balance, _ := repo.led.Balance(ctx, 40, 0)
	require.EqualValues(t, 3, balance)
	balance, _ = repo.led.Balance(ctx, 50, 0)
	require.EqualValues(t, 5, balance)

	// Supplier 5's rejection restores nothing and leaves supplier 4 deductible
	// state intact: approving supplier 5 again is impossible, but supplier 4
	// can still advance.
	_, err = svc.ChangeGroupStatus(ctx, ChangeGroupStatusInput{
		OrderID: order.ID, Group: GroupLPO, SupplierID: 4, NewStatus: StatusOutForDelivery,
		Driver: &DriverDetail{DriverName: "Imran", VehicleNumber: "DXB-4521"},
	})
	require.NoError(t, err)
	require.Equal(t, StatusOutForDelivery, order.LPOStatuses[4])
	require.Equal(t, StatusRejected, order.LPOStatuses[5])
}

func TestDeliveredOrderIsReadOnly(t *testing.T) {
	ctx := context.Background()
	delivered := StatusDelivered
	order := &Order{
		ID:             uuid.New(),
		Status:         OrderDelivery,
		HardwareStatus: &delivered,
	}
	repo := newMemoryRepo(order)
	svc := newTestService(repo, nil)

	_, err := svc.ChangeGroupStatus(ctx, ChangeGroupStatusInput{
		OrderID: order.ID, Group: GroupHardware, NewStatus: StatusApproved,
	})
	require.ErrorIs(t, err, shared.ErrOrderDelivered)

	_, err = svc.ChangeOrderStatus(ctx, ChangeOrderStatusInput{
		OrderID: order.ID, NewStatus: OrderPending,
	})
	require.ErrorIs(t, err, shared.ErrOrderDelivered)
}

func TestOrderOverrideUpgradesToInTransit(t *testing.T) {
	ctx := context.Background()
	hardware := StatusPending
	workshop := StatusPending
	order := &Order{
		ID:             uuid.New(),
		Status:         OrderPending,
		HardwareStatus: &hardware,
		WorkshopStatus: &workshop,
		HardwareLines:  []Line{{ProductID: 10, Qty: 1}},
		WorkshopLines:  []Line{{ProductID: 30, Qty: 1}},
		DriverDetails: map[string]DriverDetail{
			DriverDetailKey(GroupWorkshop, PhaseInTransit): {DriverName: "Imran", VehicleNumber: "DXB-4521"},
		},
	}
	repo := newMemoryRepo(order)
	repo.led.seed(10, 5, 0)
	repo.led.seed(30, 5, 0)
	svc := newTestService(repo, nil)

	result, err := svc.ChangeOrderStatus(ctx, ChangeOrderStatusInput{
		OrderID: order.ID, NewStatus: OrderApproved,
	})
	require.NoError(t, err)
	require.Equal(t, OrderInTransit, result.OrderStatus)
	require.Equal(t, OrderInTransit, repo.persisted)
	require.Equal(t, StatusApproved, *order.HardwareStatus)
	require.Equal(t, StatusInTransit, *order.WorkshopStatus)

	// Hardware deducts at approval; workshop has not left the warehouse yet.
	balance, _ := repo.led.Balance(ctx, 10, 0)
	require.EqualValues(t, 4, balance)
	balance, _ = repo.led.Balance(ctx, 30, 0)
	require.EqualValues(t, 5, balance)
}

func TestCreateOrder(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo(nil)
	svc := newTestService(repo, nil)

	_, err := svc.CreateOrder(ctx, CreateOrderInput{})
	require.ErrorIs(t, err, ErrNoLines)

	_, err = svc.CreateOrder(ctx, CreateOrderInput{
		LPOLines: []Line{{ProductID: 40, Qty: 1}},
	})
	require.ErrorIs(t, err, ErrSupplierRequired)

	order, err := svc.CreateOrder(ctx, CreateOrderInput{
		HardwareLines: []Line{{ProductID: 10, Qty: 2}},
		CustomLines: []CustomLine{{
			Desc:      "display stand",
			Connected: []ConnectedProduct{{ProductID: 20, Qty: 1}},
		}},
		LPOLines: []Line{{ProductID: 40, Qty: 1, SupplierID: 4}},
	})
	require.NoError(t, err)
	require.Equal(t, OrderPending, order.Status)
	require.Equal(t, StatusPending, *order.HardwareStatus)
	require.Equal(t, StatusPending, *order.WorkshopStatus)
	require.Equal(t, StatusPending, order.LPOStatuses[4])
}
