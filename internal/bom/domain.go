package bom

import "math"

// Entry relates a finished product to a raw material with a per-unit
// quantity multiplier. Immutable reference data.
type Entry struct {
	ProductID  int64
	MaterialID int64
	PerUnit    float64
}

// Requirements accumulates raw-material quantities across products.
type Requirements map[int64]float64

// Add accumulates a requirement for one material.
func (r Requirements) Add(materialID int64, qty float64) {
	r[materialID] += qty
}

// Merge folds another requirement set into this one.
func (r Requirements) Merge(other Requirements) {
	for materialID, qty := range other {
		r[materialID] += qty
	}
}

// Rounded converts float requirements into ledger quantities. Rounding up
// ensures partial-unit shortfalls are never silently under-deducted.
func (r Requirements) Rounded() map[int64]int64 {
	out := make(map[int64]int64, len(r))
	for materialID, qty := range r {
		out[materialID] = int64(math.Ceil(qty))
	}
	return out
}
