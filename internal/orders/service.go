package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/nimbus-erp/nimbus-erp/internal/bom"
	"github.com/nimbus-erp/nimbus-erp/internal/ledger"
	"github.com/nimbus-erp/nimbus-erp/internal/shared"
)

// ErrSupplierRequired is returned when an LPO operation omits the supplier.
var ErrSupplierRequired = errors.New("orders: supplier id required for lpo group")

// ErrNoLines is returned when an order is created without a single line.
var ErrNoLines = errors.New("orders: at least one line required")

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	CreateOrder(ctx context.Context, order *Order) error
}

// Tx exposes the transactional operations one status change needs. Order
// mutations and ledger writes share a single transaction so no partial
// commit can survive a failure.
type Tx interface {
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*Order, error)
	UpdateGroupStatus(ctx context.Context, orderID uuid.UUID, group Group, supplierID int64, status Status) error
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status OrderStatus) error
	SetRejectionReason(ctx context.Context, orderID uuid.UUID, key, reason string) error
	SetDriverDetail(ctx context.Context, orderID uuid.UUID, group Group, phase TransitPhase, detail DriverDetail) error
	Ledger() ledger.Store
}

// BOMExpander expands finished products into raw-material requirements.
type BOMExpander interface {
	ExpandAll(lines map[int64]int64) bom.Requirements
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Locker serializes status changes per order.
type Locker interface {
	Acquire(ctx context.Context, orderID uuid.UUID) (func(context.Context) error, error)
}

// Service coordinates order status changes, ledger effects and aggregation.
type Service struct {
	repo     RepositoryPort
	resolver BOMExpander
	locker   Locker
	audit    AuditPort
	events   EventPublisher
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, resolver BOMExpander, locker Locker, audit AuditPort, events EventPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, resolver: resolver, locker: locker, audit: audit, events: events, logger: logger}
}

// ChangeGroupStatusInput describes one group-level status change request.
type ChangeGroupStatusInput struct {
	OrderID    uuid.UUID
	Group      Group
	SupplierID int64 // LPO only
	NewStatus  Status
	Reason     string
	Driver     *DriverDetail
}

// ChangeOrderStatusInput describes an operator-level order override.
type ChangeOrderStatusInput struct {
	OrderID   uuid.UUID
	NewStatus OrderStatus
	Reason    string
	Driver    *DriverDetail
}

// StatusChangeResult is returned by both status-change operations.
type StatusChangeResult struct {
	OrderStatus OrderStatus
	Groups      GroupStatuses
}

// ChangeGroupStatus moves one product group of an order to a new status.
// The whole sequence runs under the per-order lock inside one serializable
// transaction: validate transition, check stock sufficiency, append ledger
// entries, persist the group status, recompute and persist the order status.
func (s *Service) ChangeGroupStatus(ctx context.Context, input ChangeGroupStatusInput) (StatusChangeResult, error) {
	if input.Group == GroupLPO && input.SupplierID == 0 {
		return StatusChangeResult{}, ErrSupplierRequired
	}
	release, err := s.locker.Acquire(ctx, input.OrderID)
	if err != nil {
		return StatusChangeResult{}, err
	}
	defer func() {
		if err := release(ctx); err != nil {
			s.logger.Warn("release order lock", slog.Any("error", err))
		}
	}()

	var result StatusChangeResult
	var pending []StatusChangedEvent
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		// The transaction may be retried; start each attempt clean.
		pending = pending[:0]
		order, err := tx.GetOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if order.Status == OrderDelivery {
			return shared.ErrOrderDelivered
		}
		old, changed, err := s.applyGroupTransition(ctx, tx, order, input.Group, input.SupplierID, input.NewStatus, input.Reason, input.Driver)
		if err != nil {
			return err
		}
		if err := s.persistDerivedStatus(ctx, tx, order); err != nil {
			return err
		}
		result = StatusChangeResult{OrderStatus: order.Status, Groups: order.Snapshot()}
		if changed {
			pending = append(pending, StatusChangedEvent{
				OrderID:       order.ID,
				Group:         string(input.Group),
				SupplierID:    input.SupplierID,
				OldStatus:     string(old),
				NewStatus:     string(input.NewStatus),
				RecipientRole: recipientRoleFor(input.NewStatus),
			})
		}
		return nil
	})
	if err != nil {
		return StatusChangeResult{}, err
	}
	s.publish(ctx, pending)
	s.recordAudit(ctx, input.OrderID, string(input.Group), pending)
	return result, nil
}

// ChangeOrderStatus fans an operator override out into every present group
// via the inverse mapping, then persists the effective order status.
func (s *Service) ChangeOrderStatus(ctx context.Context, input ChangeOrderStatusInput) (StatusChangeResult, error) {
	release, err := s.locker.Acquire(ctx, input.OrderID)
	if err != nil {
		return StatusChangeResult{}, err
	}
	defer func() {
		if err := release(ctx); err != nil {
			s.logger.Warn("release order lock", slog.Any("error", err))
		}
	}()

	var result StatusChangeResult
	var pending []StatusChangedEvent
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		// The transaction may be retried; start each attempt clean.
		pending = pending[:0]
		order, err := tx.GetOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if order.Status == OrderDelivery {
			return shared.ErrOrderDelivered
		}
		effective, targets := GroupTargetsFor(input.NewStatus, order.HasTransportAssignment())

		if order.HardwareStatus != nil {
			old, changed, err := s.applyGroupTransition(ctx, tx, order, GroupHardware, 0, targets.Hardware, input.Reason, input.Driver)
			if err != nil {
				return err
			}
			if changed {
				pending = append(pending, s.eventFor(order, GroupHardware, 0, old, targets.Hardware))
			}
		}
		if order.WorkshopStatus != nil {
			old, changed, err := s.applyGroupTransition(ctx, tx, order, GroupWorkshop, 0, targets.Workshop, input.Reason, input.Driver)
			if err != nil {
				return err
			}
			if changed {
				pending = append(pending, s.eventFor(order, GroupWorkshop, 0, old, targets.Workshop))
			}
		}
		for _, supplierID := range sortedSuppliers(order.LPOStatuses) {
			old, changed, err := s.applyGroupTransition(ctx, tx, order, GroupLPO, supplierID, targets.LPO, input.Reason, input.Driver)
			if err != nil {
				return err
			}
			if changed {
				pending = append(pending, s.eventFor(order, GroupLPO, supplierID, old, targets.LPO))
			}
		}

		if err := tx.UpdateOrderStatus(ctx, order.ID, effective); err != nil {
			return err
		}
		order.Status = effective
		result = StatusChangeResult{OrderStatus: effective, Groups: order.Snapshot()}
		return nil
	})
	if err != nil {
		return StatusChangeResult{}, err
	}
	s.publish(ctx, pending)
	s.recordAudit(ctx, input.OrderID, "order", pending)
	return result, nil
}

// GetOrder returns the current order view.
func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// CreateOrderInput describes a new order. Every listed group starts pending.
type CreateOrderInput struct {
	Priority         string
	SiteID           int64
	Note             string
	ExpectedDelivery *time.Time
	HardwareLines    []Line
	WorkshopLines    []Line
	CustomLines      []CustomLine
	LPOLines         []Line
	AssignedTo       []Assignee
}

// CreateOrder persists a new order in pending across all present groups.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error) {
	if len(input.HardwareLines) == 0 && len(input.WorkshopLines) == 0 &&
		len(input.CustomLines) == 0 && len(input.LPOLines) == 0 {
		return nil, ErrNoLines
	}
	pending := StatusPending
	order := &Order{
		ID:               uuid.New(),
		Status:           OrderPending,
		Priority:         input.Priority,
		SiteID:           input.SiteID,
		Note:             input.Note,
		ExpectedDelivery: input.ExpectedDelivery,
		HardwareLines:    input.HardwareLines,
		WorkshopLines:    input.WorkshopLines,
		CustomLines:      input.CustomLines,
		LPOLines:         input.LPOLines,
		AssignedTo:       input.AssignedTo,
		LPOStatuses:      make(map[int64]Status),
		RejectionReasons: make(map[string]string),
		DriverDetails:    make(map[string]DriverDetail),
	}
	if len(input.HardwareLines) > 0 {
		order.HardwareStatus = &pending
	}
	if len(input.WorkshopLines) > 0 || len(input.CustomLines) > 0 {
		workshopPending := StatusPending
		order.WorkshopStatus = &workshopPending
	}
	for _, line := range input.LPOLines {
		if line.SupplierID == 0 {
			return nil, fmt.Errorf("%w: lpo lines require a supplier", ErrSupplierRequired)
		}
		order.LPOStatuses[line.SupplierID] = StatusPending
	}
	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// applyGroupTransition validates and applies one group move inside the open
// transaction. It returns the previous status and whether anything changed.
func (s *Service) applyGroupTransition(ctx context.Context, tx Tx, order *Order, group Group, supplierID int64, target Status, reason string, driver *DriverDetail) (Status, bool, error) {
	current, err := groupStatus(order, group, supplierID)
	if err != nil {
		return "", false, err
	}
	if current == target {
		// Retries are no-ops; the ledger was already settled the first time.
		return current, false, nil
	}
	if err := ValidateTransition(group, current, target); err != nil {
		return "", false, err
	}

	if phase, needed := requiresDriverDetails(target); needed {
		if err := s.ensureDriverDetail(ctx, tx, order, group, phase, driver); err != nil {
			return "", false, err
		}
	}

	store := tx.Ledger()
	if target == StatusRejected {
		if reason == "" {
			return "", false, shared.ErrMissingRejectionReason
		}
		if err := tx.SetRejectionReason(ctx, order.ID, ReasonKey(group, supplierID), reason); err != nil {
			return "", false, err
		}
		if order.RejectionReasons == nil {
			order.RejectionReasons = make(map[string]string)
		}
		order.RejectionReasons[ReasonKey(group, supplierID)] = reason
		if err := s.restore(ctx, store, order, group, supplierID); err != nil {
			return "", false, err
		}
		if group == GroupWorkshop && len(order.CustomLines) > 0 {
			if err := s.restore(ctx, store, order, GroupCustom, 0); err != nil {
				return "", false, err
			}
		}
	} else if crossesDeduction(group, current, target) {
		if err := s.deduct(ctx, store, order, group, supplierID); err != nil {
			return "", false, err
		}
		if group == GroupWorkshop && len(order.CustomLines) > 0 {
			if err := s.deduct(ctx, store, order, GroupCustom, 0); err != nil {
				return "", false, err
			}
		}
	}

	if err := tx.UpdateGroupStatus(ctx, order.ID, group, supplierID, target); err != nil {
		return "", false, err
	}
	setGroupStatus(order, group, supplierID, target)
	return current, true, nil
}

// persistDerivedStatus recomputes the order status from the group statuses
// and writes it once.
func (s *Service) persistDerivedStatus(ctx context.Context, tx Tx, order *Order) error {
	snap := order.Snapshot()
	derived := DeriveOrderStatus(snap.Hardware, snap.Workshop, snap.LPOCombined)
	if err := tx.UpdateOrderStatus(ctx, order.ID, derived); err != nil {
		return err
	}
	order.Status = derived
	return nil
}

func (s *Service) ensureDriverDetail(ctx context.Context, tx Tx, order *Order, group Group, phase TransitPhase, driver *DriverDetail) error {
	if driver != nil && driver.Complete() {
		if err := tx.SetDriverDetail(ctx, order.ID, group, phase, *driver); err != nil {
			return err
		}
		if order.DriverDetails == nil {
			order.DriverDetails = make(map[string]DriverDetail)
		}
		order.DriverDetails[DriverDetailKey(group, phase)] = *driver
		return nil
	}
	if stored, ok := order.DriverDetailFor(group, phase); ok && stored.Complete() {
		return nil
	}
	return shared.ErrMissingDriverDetails
}

// deduct appends outbound entries for the group's finished products and
// their BOM materials. The last recorded direction per (SKU, order, tag)
// gates each append, so repeated calls deduct exactly once.
func (s *Service) deduct(ctx context.Context, store ledger.Store, order *Order, group Group, supplierID int64) error {
	required := s.requirements(order, group, supplierID)
	tag := DeductionTag(group, supplierID)
	for _, sku := range sortedSKUs(required) {
		qty := required[sku]
		if qty <= 0 {
			continue
		}
		last, err := store.LastDirection(ctx, sku, order.ID, tag)
		if err != nil {
			return err
		}
		if last == ledger.DirectionOut {
			continue
		}
		if last != ledger.DirectionIn && last != ledger.DirectionNone {
			// Unexpected sequence: assume not yet deducted rather than
			// blocking the operator, but flag it for audit.
			s.logger.Warn("ledger inconsistency",
				slog.String("order_id", order.ID.String()),
				slog.Int64("sku_id", sku),
				slog.String("tag", tag),
				slog.Any("error", shared.ErrLedgerInconsistency))
		}
		balance, err := store.Balance(ctx, sku, order.SiteID)
		if err != nil {
			return err
		}
		if balance < qty {
			return &shared.InsufficientStockError{SKU: sku, Available: balance, Requested: qty}
		}
		if _, err := store.Append(ctx, ledger.AdjustInput{
			SKU:       sku,
			Qty:       qty,
			Direction: ledger.DirectionOut,
			SiteID:    order.SiteID,
			OrderID:   order.ID,
			Tag:       tag,
		}); err != nil {
			return err
		}
	}
	return nil
}

// restore appends compensating inbound entries mirroring the quantities of
// the group's prior deduction. Nothing is appended when the last recorded
// direction per SKU is not out.
func (s *Service) restore(ctx context.Context, store ledger.Store, order *Order, group Group, supplierID int64) error {
	tag := DeductionTag(group, supplierID)
	deducted, err := store.LastDeductions(ctx, order.ID, tag)
	if err != nil {
		return err
	}
	for _, entry := range deducted {
		if _, err := store.Append(ctx, ledger.AdjustInput{
			SKU:       entry.SKU,
			Qty:       entry.Qty,
			Direction: ledger.DirectionIn,
			SiteID:    entry.SiteID,
			OrderID:   order.ID,
			Tag:       tag,
		}); err != nil {
			return err
		}
	}
	return nil
}

// requirements builds the deterministic SKU -> quantity map a group deducts:
// finished products plus BOM materials, materials rounded up.
func (s *Service) requirements(order *Order, group Group, supplierID int64) map[int64]int64 {
	finished := make(map[int64]int64)
	switch group {
	case GroupHardware:
		for _, line := range order.HardwareLines {
			finished[line.ProductID] += line.Qty
		}
	case GroupWorkshop:
		for _, line := range order.WorkshopLines {
			finished[line.ProductID] += line.Qty
		}
	case GroupCustom:
		for _, line := range order.CustomLines {
			total := line.TotalQty()
			for _, cp := range line.Connected {
				finished[cp.ProductID] += total
			}
		}
	case GroupLPO:
		for _, line := range order.LPOLinesFor(supplierID) {
			finished[line.ProductID] += line.Qty
		}
	}
	required := make(map[int64]int64, len(finished))
	for sku, qty := range finished {
		required[sku] += qty
	}
	if s.resolver != nil {
		for materialID, qty := range s.resolver.ExpandAll(finished).Rounded() {
			required[materialID] += qty
		}
	}
	return required
}

func (s *Service) eventFor(order *Order, group Group, supplierID int64, old, target Status) StatusChangedEvent {
	return StatusChangedEvent{
		OrderID:       order.ID,
		Group:         string(group),
		SupplierID:    supplierID,
		OldStatus:     string(old),
		NewStatus:     string(target),
		RecipientRole: recipientRoleFor(target),
	}
}

// publish hands events to the queue after commit. Best effort: failures are
// logged, never raised to the caller.
func (s *Service) publish(ctx context.Context, events []StatusChangedEvent) {
	if s.events == nil {
		return
	}
	for _, evt := range events {
		if err := s.events.PublishStatusChanged(ctx, evt); err != nil {
			s.logger.Warn("publish status change",
				slog.String("order_id", evt.OrderID.String()),
				slog.String("group", evt.Group),
				slog.Any("error", err))
		}
	}
}

func (s *Service) recordAudit(ctx context.Context, orderID uuid.UUID, scope string, events []StatusChangedEvent) {
	if s.audit == nil || len(events) == 0 {
		return
	}
	meta := make(map[string]any, len(events))
	for _, evt := range events {
		key := evt.Group
		if evt.SupplierID != 0 {
			key = fmt.Sprintf("%s:%d", evt.Group, evt.SupplierID)
		}
		meta[key] = fmt.Sprintf("%s->%s", evt.OldStatus, evt.NewStatus)
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx).ID,
		Action:   fmt.Sprintf("orders:%s", scope),
		Entity:   "order",
		EntityID: orderID.String(),
		Meta:     meta,
	})
}

func groupStatus(order *Order, group Group, supplierID int64) (Status, error) {
	switch group {
	case GroupHardware:
		if order.HardwareStatus == nil {
			return "", shared.ErrNotFound
		}
		return *order.HardwareStatus, nil
	case GroupWorkshop:
		if order.WorkshopStatus == nil {
			return "", shared.ErrNotFound
		}
		return *order.WorkshopStatus, nil
	case GroupLPO:
		status, ok := order.LPOStatuses[supplierID]
		if !ok {
			return "", shared.ErrNotFound
		}
		return status, nil
	default:
		return "", fmt.Errorf("unknown product group %q", group)
	}
}

func setGroupStatus(order *Order, group Group, supplierID int64, status Status) {
	switch group {
	case GroupHardware:
		order.HardwareStatus = &status
	case GroupWorkshop:
		order.WorkshopStatus = &status
	case GroupLPO:
		order.LPOStatuses[supplierID] = status
	}
}

func sortedSKUs(m map[int64]int64) []int64 {
	skus := make([]int64, 0, len(m))
	for sku := range m {
		skus = append(skus, sku)
	}
	sort.Slice(skus, func(i, j int) bool { return skus[i] < skus[j] })
	return skus
}

func sortedSuppliers(m map[int64]Status) []int64 {
	suppliers := make([]int64, 0, len(m))
	for supplierID := range m {
		suppliers = append(suppliers, supplierID)
	}
	sort.Slice(suppliers, func(i, j int) bool { return suppliers[i] < suppliers[j] })
	return suppliers
}
