package bom

// Resolver expands finished products into raw-material requirements.
// Pure function over reference data, no side effects.
type Resolver struct {
	byProduct map[int64][]Entry
}

// NewResolver indexes the reference entries.
func NewResolver(entries []Entry) *Resolver {
	byProduct := make(map[int64][]Entry)
	for _, entry := range entries {
		byProduct[entry.ProductID] = append(byProduct[entry.ProductID], entry)
	}
	return &Resolver{byProduct: byProduct}
}

// Expand returns the material requirements for qty units of one product.
// Products without BOM entries expand to an empty set.
func (r *Resolver) Expand(productID, qty int64) Requirements {
	reqs := make(Requirements)
	for _, entry := range r.byProduct[productID] {
		reqs.Add(entry.MaterialID, entry.PerUnit*float64(qty))
	}
	return reqs
}

// ExpandAll accumulates requirements across several (product, qty) pairs,
// summing entries that share a material.
func (r *Resolver) ExpandAll(lines map[int64]int64) Requirements {
	reqs := make(Requirements)
	for productID, qty := range lines {
		reqs.Merge(r.Expand(productID, qty))
	}
	return reqs
}
