package ledger

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/nimbus-erp/nimbus-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, Store) error) error
	CurrentBalance(ctx context.Context, sku, siteID int64) (int64, error)
	Movements(ctx context.Context, filter MovementFilter) ([]Entry, error)
	CountMovements(ctx context.Context, filter MovementFilter) (int, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates ledger reads and manual corrections.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	balances singleflight.Group
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// CurrentBalance returns in minus out for the SKU in the given site pool.
// Concurrent identical reads are collapsed into one query.
func (s *Service) CurrentBalance(ctx context.Context, sku, siteID int64) (int64, error) {
	if sku == 0 {
		return 0, errors.New("ledger: sku required")
	}
	key := fmt.Sprintf("%d:%d", sku, siteID)
	v, err, _ := s.balances.Do(key, func() (any, error) {
		return s.repo.CurrentBalance(ctx, sku, siteID)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// Movements lists one page of ledger entries plus paging metadata.
func (s *Service) Movements(ctx context.Context, filter MovementFilter) ([]Entry, shared.Pagination, error) {
	entries, err := s.repo.Movements(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	total, err := s.repo.CountMovements(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return entries, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// Adjust appends a manual correction entry outside the order flow.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (Entry, error) {
	if input.SKU == 0 {
		return Entry{}, errors.New("ledger: sku required")
	}
	if input.Qty <= 0 {
		return Entry{}, ErrInvalidQuantity
	}
	if !input.Direction.IsValid() {
		return Entry{}, ErrInvalidDirection
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, store Store) error {
		appended, err := store.Append(ctx, input)
		if err != nil {
			return err
		}
		entry = appended
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  shared.ActorFromContext(ctx).ID,
			Action:   fmt.Sprintf("ledger:%s", input.Direction),
			Entity:   "stock_ledger",
			EntityID: fmt.Sprintf("%d", entry.ID),
			Meta: map[string]any{
				"sku_id":  input.SKU,
				"site_id": input.SiteID,
				"qty":     input.Qty,
				"tag":     input.Tag,
			},
		})
	}
	return entry, nil
}
