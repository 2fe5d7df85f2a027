package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Direction enumerates stock movement directions.
type Direction string

const (
	// DirectionIn represents an inbound movement.
	DirectionIn Direction = "in"
	// DirectionOut represents an outbound movement.
	DirectionOut Direction = "out"
	// DirectionNone is returned when no entry matches a lookup.
	DirectionNone Direction = ""
)

// IsValid reports whether the direction is a storable value.
func (d Direction) IsValid() bool {
	return d == DirectionIn || d == DirectionOut
}

// Entry is one append-only stock movement fact. Entries are never edited or
// deleted; corrections append a compensating entry.
type Entry struct {
	ID        int64
	SKU       int64
	Direction Direction
	Qty       int64
	SiteID    int64 // 0 = general, site-independent pool
	OrderID   uuid.UUID
	Tag       string
	CreatedAt time.Time
}

// AdjustInput describes a movement to append.
type AdjustInput struct {
	SKU       int64
	Qty       int64
	Direction Direction
	SiteID    int64
	OrderID   uuid.UUID
	Tag       string
}

// MovementFilter filters and pages ledger listings. A nil SiteID spans all
// site pools; site 0 selects the general pool explicitly.
type MovementFilter struct {
	SKU     int64
	SiteID  *int64
	OrderID uuid.UUID
	Tag     string
	Page    int
	PerPage int
}

// ErrInvalidQuantity indicates a zero or negative quantity.
var ErrInvalidQuantity = errors.New("ledger: quantity must be positive")

// ErrInvalidDirection indicates an unsupported direction value.
var ErrInvalidDirection = errors.New("ledger: direction must be in or out")
