package store

import (
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// Dimension names indexed by the attribute index. These are the categorical
// filter dimensions; dates are range-scanned, not indexed.
const (
	DimMachine      = "machine"
	DimShift        = "shift"
	DimMachineGroup = "machine_group"
	DimOperator     = "operator"
)

// AttributeIndex maps each categorical dimension's distinct values to
// roaring bitmaps of row positions. It gives the filter engine O(1) value
// lookups and cheap set algebra (OR within a dimension, AND across
// dimensions) before the remaining per-row date scan.
type AttributeIndex struct {
	mu sync.RWMutex

	// dims maps dimension -> value -> bitmap of row positions
	dims map[string]map[string]*roaring.Bitmap

	rowCount uint32
}

// NewAttributeIndex creates an empty attribute index.
func NewAttributeIndex() *AttributeIndex {
	return &AttributeIndex{
		dims: make(map[string]map[string]*roaring.Bitmap),
	}
}

// Add indexes one row position under a dimension value. Empty values are not
// indexed; absent optional fields fall out of equality filters anyway.
func (idx *AttributeIndex) Add(dim, value string, pos uint32) {
	if value == "" {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	valMap := idx.dims[dim]
	if valMap == nil {
		valMap = make(map[string]*roaring.Bitmap)
		idx.dims[dim] = valMap
	}

	bm, ok := valMap[value]
	if !ok {
		bm = roaring.New()
		valMap[value] = bm
	}
	bm.Add(pos)

	if pos+1 > idx.rowCount {
		idx.rowCount = pos + 1
	}
}

// NoteRow extends the row count to cover pos even when no dimension value was
// indexed for it. Rows whose categorical fields are all empty must still be
// part of All() so that unfiltered scans see them.
func (idx *AttributeIndex) NoteRow(pos uint32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if pos+1 > idx.rowCount {
		idx.rowCount = pos + 1
	}
}

// Lookup returns the bitmap of row positions where dim == value.
func (idx *AttributeIndex) Lookup(dim, value string) *roaring.Bitmap {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if valMap, ok := idx.dims[dim]; ok {
		if bm, ok := valMap[value]; ok {
			return bm.Clone()
		}
	}
	return roaring.New()
}

// LookupAny returns row positions where dim matches ANY of the values
// (OR-membership within a dimension's selected set).
func (idx *AttributeIndex) LookupAny(dim string, values []string) *roaring.Bitmap {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	result := roaring.New()
	valMap, ok := idx.dims[dim]
	if !ok {
		return result
	}
	for _, v := range values {
		if bm, ok := valMap[v]; ok {
			result.Or(bm)
		}
	}
	return result
}

// All returns a bitmap covering every indexed row position.
func (idx *AttributeIndex) All() *roaring.Bitmap {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	bm := roaring.New()
	bm.AddRange(0, uint64(idx.rowCount))
	return bm
}

// Cardinality returns the number of distinct values for a dimension.
func (idx *AttributeIndex) Cardinality(dim string) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if valMap, ok := idx.dims[dim]; ok {
		return len(valMap)
	}
	return 0
}

// DistinctValues returns the sorted distinct values for a dimension.
func (idx *AttributeIndex) DistinctValues(dim string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	valMap, ok := idx.dims[dim]
	if !ok {
		return nil
	}

	values := make([]string, 0, len(valMap))
	for v := range valMap {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

// RowCount returns the total number of indexed rows.
func (idx *AttributeIndex) RowCount() uint32 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.rowCount
}
