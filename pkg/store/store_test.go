package store

import (
	"reflect"
	"testing"
	"time"

	"github.com/plantpulse/plantpulse/internal/model"
	"github.com/plantpulse/plantpulse/pkg/errors"
)

func testRecord(machine, shift, group, operator string) model.Record {
	return model.Record{
		Date:           time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Machine:        machine,
		Shift:          shift,
		MachineGroup:   group,
		Operator:       operator,
		Quantity:       100,
		PlannedMinutes: 480,
	}
}

func TestStoreAppendAndSeal(t *testing.T) {
	s := New()
	if s.Sealed() {
		t.Fatal("new store must not be sealed")
	}

	if err := s.Append(
		testRecord("A", "M", "G1", "lopez"),
		testRecord("B", "T", "G1", "garcia"),
	); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}

	s.Seal()
	if !s.Sealed() {
		t.Fatal("store not sealed after Seal")
	}

	err := s.Append(testRecord("C", "N", "G2", "ruiz"))
	if err == nil {
		t.Fatal("Append on sealed store must fail")
	}
	if errors.CodeOf(err) != errors.CodeDatasetNotReady {
		t.Errorf("sealed append code = %v, want CodeDatasetNotReady", errors.CodeOf(err))
	}
	if s.Len() != 2 {
		t.Errorf("Len after rejected append = %d, want 2", s.Len())
	}
}

func TestStoreInfo(t *testing.T) {
	s := New()
	s.Append(
		testRecord("B", "T", "G2", "garcia"),
		testRecord("A", "M", "G1", "lopez"),
		testRecord("A", "N", "G1", "lopez"),
	)
	s.SetDropped(3)
	s.Seal()

	info := s.Info()
	if info.RecordCount != 3 {
		t.Errorf("RecordCount = %d, want 3", info.RecordCount)
	}
	if info.DroppedRows != 3 {
		t.Errorf("DroppedRows = %d, want 3", info.DroppedRows)
	}
	if info.Version == "" {
		t.Error("Version must be set")
	}
	if info.LoadedAt.IsZero() {
		t.Error("LoadedAt must be set after Seal")
	}
	if want := []string{"A", "B"}; !reflect.DeepEqual(info.UniqueMachines, want) {
		t.Errorf("UniqueMachines = %v, want %v", info.UniqueMachines, want)
	}
	if want := []string{"M", "N", "T"}; !reflect.DeepEqual(info.UniqueShifts, want) {
		t.Errorf("UniqueShifts = %v, want %v", info.UniqueShifts, want)
	}
	if want := []string{"garcia", "lopez"}; !reflect.DeepEqual(info.UniqueOperators, want) {
		t.Errorf("UniqueOperators = %v, want %v", info.UniqueOperators, want)
	}
}

func TestStoreVersionChangesPerLoad(t *testing.T) {
	a, b := New(), New()
	if a.Version() == b.Version() {
		t.Error("two stores share one version id")
	}
}

func TestIndexLookup(t *testing.T) {
	s := New()
	s.Append(
		testRecord("A", "M", "G1", "lopez"),
		testRecord("B", "M", "G1", "garcia"),
		testRecord("A", "T", "G2", "lopez"),
	)
	s.Seal()

	idx := s.Index()

	bm := idx.Lookup(DimMachine, "A")
	if got := bm.ToArray(); !reflect.DeepEqual(got, []uint32{0, 2}) {
		t.Errorf("Lookup(machine, A) = %v, want [0 2]", got)
	}
	if idx.Lookup(DimMachine, "Z").GetCardinality() != 0 {
		t.Error("Lookup on unknown value must be empty")
	}
	if idx.Lookup("no-such-dim", "A").GetCardinality() != 0 {
		t.Error("Lookup on unknown dimension must be empty")
	}
}

func TestIndexLookupAny(t *testing.T) {
	s := New()
	s.Append(
		testRecord("A", "M", "G1", "lopez"),
		testRecord("B", "M", "G1", "garcia"),
		testRecord("C", "T", "G2", "ruiz"),
	)
	s.Seal()

	bm := s.Index().LookupAny(DimMachine, []string{"A", "C", "Z"})
	if got := bm.ToArray(); !reflect.DeepEqual(got, []uint32{0, 2}) {
		t.Errorf("LookupAny = %v, want [0 2]", got)
	}
	if s.Index().LookupAny(DimMachine, nil).GetCardinality() != 0 {
		t.Error("LookupAny with no values must be empty")
	}
}

func TestIndexLookupReturnsClone(t *testing.T) {
	s := New()
	s.Append(testRecord("A", "M", "G1", "lopez"))
	s.Seal()

	bm := s.Index().Lookup(DimMachine, "A")
	bm.Add(99)

	again := s.Index().Lookup(DimMachine, "A")
	if again.Contains(99) {
		t.Error("mutating a Lookup result leaked into the index")
	}
}

func TestIndexAll(t *testing.T) {
	s := New()
	s.Append(
		testRecord("A", "M", "G1", "lopez"),
		testRecord("B", "T", "G1", "garcia"),
	)
	s.Seal()

	all := s.Index().All()
	if got := all.GetCardinality(); got != 2 {
		t.Errorf("All cardinality = %d, want 2", got)
	}
	if got := s.Index().RowCount(); got != 2 {
		t.Errorf("RowCount = %d, want 2", got)
	}
}

func TestIndexSkipsEmptyValues(t *testing.T) {
	s := New()
	r := testRecord("A", "", "G1", "")
	s.Append(r)
	s.Seal()

	if s.Index().Cardinality(DimShift) != 0 {
		t.Error("empty shift value must not be indexed")
	}
	if s.Index().Cardinality(DimOperator) != 0 {
		t.Error("empty operator value must not be indexed")
	}
	if s.Index().Cardinality(DimMachine) != 1 {
		t.Error("non-empty machine value must be indexed")
	}
}

func TestIndexAllCoversUnindexedRows(t *testing.T) {
	s := New()
	s.Append(
		testRecord("A", "M", "G1", "lopez"),
		testRecord("", "", "", ""),
		testRecord("B", "T", "G1", "garcia"),
	)
	s.Seal()

	// A row with no categorical values still occupies a position and must
	// show up in full scans.
	if got := s.Index().RowCount(); got != 3 {
		t.Errorf("RowCount = %d, want 3", got)
	}
	all := s.Index().All()
	if !all.Contains(1) {
		t.Error("All() does not cover the row with empty dimensions")
	}
	if got := all.GetCardinality(); got != 3 {
		t.Errorf("All cardinality = %d, want 3", got)
	}
}
