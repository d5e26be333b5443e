// Package store holds the full typed dataset in memory. The store is
// append-only during load and sealed read-only afterwards, which makes it
// safe for concurrent reads by all aggregation workers without locking on
// the hot path.
package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/plantpulse/plantpulse/internal/model"
	"github.com/plantpulse/plantpulse/pkg/errors"
)

// Store owns the loaded dataset and its attribute index.
type Store struct {
	mu      sync.RWMutex
	records []model.Record
	index   *AttributeIndex
	sealed  bool

	version  string
	loadedAt time.Time
	dropped  int
}

// New creates an empty, unsealed store.
func New() *Store {
	return &Store{
		index:   NewAttributeIndex(),
		version: uuid.NewString(),
	}
}

// Append adds records to the store and indexes their categorical dimensions.
// Returns an error once the store is sealed.
func (s *Store) Append(records ...model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return errors.New(errors.CodeDatasetNotReady, "store is sealed, reload to replace the dataset")
	}

	for i := range records {
		pos := uint32(len(s.records))
		s.records = append(s.records, records[i])

		r := &records[i]
		s.index.NoteRow(pos)
		s.index.Add(DimMachine, r.Machine, pos)
		s.index.Add(DimShift, r.Shift, pos)
		s.index.Add(DimMachineGroup, r.MachineGroup, pos)
		s.index.Add(DimOperator, r.Operator, pos)
	}
	return nil
}

// SetDropped records how many source rows the ingester discarded.
func (s *Store) SetDropped(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped = n
}

// Seal freezes the store. After Seal the record slice is immutable and may
// be read concurrently without further synchronization.
func (s *Store) Seal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed = true
	s.loadedAt = time.Now()
}

// Sealed reports whether the store has been sealed.
func (s *Store) Sealed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sealed
}

// Len returns the number of records held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Records returns the sealed record slice. Callers must not mutate it.
func (s *Store) Records() []model.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records
}

// At returns a pointer to the record at position pos.
func (s *Store) At(pos uint32) *model.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &s.records[pos]
}

// Index returns the attribute index for filter acceleration.
func (s *Store) Index() *AttributeIndex {
	return s.index
}

// Version returns the dataset version id, regenerated on every load.
func (s *Store) Version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Info summarizes the dataset for filter population.
func (s *Store) Info() model.DatasetInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return model.DatasetInfo{
		Version:             s.version,
		LoadedAt:            s.loadedAt,
		RecordCount:         len(s.records),
		DroppedRows:         s.dropped,
		UniqueMachines:      s.index.DistinctValues(DimMachine),
		UniqueShifts:        s.index.DistinctValues(DimShift),
		UniqueMachineGroups: s.index.DistinctValues(DimMachineGroup),
		UniqueOperators:     s.index.DistinctValues(DimOperator),
	}
}
