package table_test

import (
	"context"
	"sync"
	"testing"

	"routeline/internal/domain"
	"routeline/internal/table"
)

type recordingSaver struct {
	mu      sync.Mutex
	saved   map[domain.EntityType]domain.MapConfig
	cleared []domain.EntityType
}

func newRecordingSaver() *recordingSaver {
	return &recordingSaver{saved: map[domain.EntityType]domain.MapConfig{}}
}

func (r *recordingSaver) SaveMapping(_ context.Context, entity domain.EntityType, cfg domain.MapConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved[entity] = cfg
	return nil
}

func (r *recordingSaver) ClearMapping(_ context.Context, entity domain.EntityType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = append(r.cleared, entity)
	return nil
}

func threeRowTable() domain.RawTable {
	return domain.RawTable{
		Header: []string{"id", "lat", "lng"},
		Rows: [][]string{
			{"a", "46.1", "-117.1"},
			{"b", "46.2", "-117.2"},
			{"c", "46.3", "-117.3"},
		},
	}
}

func TestSetRawDataResetsSelection(t *testing.T) {
	s := table.New(nil)
	if err := s.SetRawData(domain.EntityJob, threeRowTable()); err != nil {
		t.Fatal(err)
	}
	if err := s.SetRowSelected(domain.EntityJob, 1, false); err != nil {
		t.Fatal(err)
	}
	if sel := s.Selection(domain.EntityJob); sel[1] {
		t.Fatalf("row 1 should be deselected: %v", sel)
	}
	// re-import discards prior selection
	if err := s.SetAllRowsSelected(domain.EntityJob, true); err != nil {
		t.Fatal(err)
	}
	data := threeRowTable()
	if err := s.SetRawData(domain.EntityJob, data); err != nil {
		t.Fatal(err)
	}
	sel := s.Selection(domain.EntityJob)
	if len(sel) != len(data.Rows) {
		t.Fatalf("selection length %d, want %d", len(sel), len(data.Rows))
	}
	for i, v := range sel {
		if !v {
			t.Fatalf("row %d should be selected after import", i)
		}
	}
}

func TestStaleSelectionHealsToAllSelected(t *testing.T) {
	s := table.New(nil)
	_ = s.SetRawData(domain.EntityVehicle, domain.RawTable{Header: []string{"x"}, Rows: [][]string{{"1"}}})
	_ = s.ClearSelection(domain.EntityVehicle)
	// an import that races the selection edit
	tbl := threeRowTable()
	_ = s.SetRawData(domain.EntityVehicle, tbl)
	sel := s.Selection(domain.EntityVehicle)
	if len(sel) != 3 {
		t.Fatalf("selection not resized: %v", sel)
	}
	for _, v := range sel {
		if !v {
			t.Fatalf("stale mask must heal to all-selected: %v", sel)
		}
	}
}

func TestSetMapConfigPersistsAsync(t *testing.T) {
	saver := newRecordingSaver()
	s := table.New(saver)
	cfg := domain.MapConfig{DataMappings: []domain.DataMapping{{Index: 0, Value: "id"}}}
	if err := s.SetMapConfig(context.Background(), domain.EntityJob, cfg); err != nil {
		t.Fatal(err)
	}
	// in-memory state reflects the change before persistence settles
	if got := s.MapConfig(domain.EntityJob); len(got.DataMappings) != 1 {
		t.Fatalf("in-memory config not applied: %+v", got)
	}
	s.Flush()
	saver.mu.Lock()
	defer saver.mu.Unlock()
	if len(saver.saved[domain.EntityJob].DataMappings) != 1 {
		t.Fatalf("mapping not persisted: %+v", saver.saved)
	}
}

func TestAlternativeMappingLastWriteWins(t *testing.T) {
	s := table.New(nil)
	cfg := domain.MapConfig{DataMappings: []domain.DataMapping{
		{Index: 1, Value: "location_lat"},
		{Index: 2, Value: "location_lng"},
		{Index: 3, Value: "location"}, // alternative of both split halves
	}}
	if err := s.SetMapConfig(context.Background(), domain.EntityJob, cfg); err != nil {
		t.Fatal(err)
	}
	got := s.MapConfig(domain.EntityJob).DataMappings
	if len(got) != 1 || got[0].Value != "location" {
		t.Fatalf("combined field must displace its alternatives, got %+v", got)
	}
}

func TestDuplicateColumnMappingCollapses(t *testing.T) {
	s := table.New(nil)
	cfg := domain.MapConfig{DataMappings: []domain.DataMapping{
		{Index: 0, Value: "id"},
		{Index: 0, Value: "description"},
	}}
	_ = s.SetMapConfig(context.Background(), domain.EntityJob, cfg)
	got := s.MapConfig(domain.EntityJob).DataMappings
	if len(got) != 1 || got[0].Value != "description" {
		t.Fatalf("one mapping per column, latest wins, got %+v", got)
	}
}

func TestResetMappingClearsPersisted(t *testing.T) {
	saver := newRecordingSaver()
	s := table.New(saver)
	_ = s.SetMapConfig(context.Background(), domain.EntityShipment, domain.MapConfig{
		DataMappings: []domain.DataMapping{{Index: 0, Value: "pickup.id"}},
	})
	if err := s.ResetMapping(context.Background(), domain.EntityShipment); err != nil {
		t.Fatal(err)
	}
	if got := s.MapConfig(domain.EntityShipment); len(got.DataMappings) != 0 {
		t.Fatalf("in-memory mapping survived reset: %+v", got)
	}
	s.Flush()
	saver.mu.Lock()
	defer saver.mu.Unlock()
	if len(saver.cleared) != 1 || saver.cleared[0] != domain.EntityShipment {
		t.Fatalf("persisted record not cleared: %v", saver.cleared)
	}
}

func TestAttachedColumns(t *testing.T) {
	s := table.New(nil)
	_ = s.SetRawData(domain.EntityJob, threeRowTable())
	if err := s.AppendAttachedRows(domain.EntityJob, []string{"x", "", ""}); err != nil {
		t.Fatal(err)
	}
	raw := s.RawData(domain.EntityJob)
	if raw.ColumnCount() != 4 {
		t.Fatalf("expected 4 columns, got %d", raw.ColumnCount())
	}
	// broadcast the first row's value down the attached column
	if err := s.CopyAttributeColumn(domain.EntityJob, 3, 0); err != nil {
		t.Fatal(err)
	}
	raw = s.RawData(domain.EntityJob)
	for row := 0; row < 3; row++ {
		if got := raw.Cell(row, 3); got != "x" {
			t.Fatalf("row %d attached cell = %q, want x", row, got)
		}
	}
	// imported columns cannot be filled
	if err := s.CopyAttributeColumn(domain.EntityJob, 1, 0); err == nil {
		t.Fatalf("expected error filling an imported column")
	}
	if err := s.DeleteAttachedColumn(domain.EntityJob, 3); err != nil {
		t.Fatal(err)
	}
	if got := s.RawData(domain.EntityJob).ColumnCount(); got != 3 {
		t.Fatalf("attached column not removed, count %d", got)
	}
}

func TestDeleteAttachedColumnShiftsMappings(t *testing.T) {
	s := table.New(nil)
	_ = s.SetRawData(domain.EntityJob, threeRowTable())
	_ = s.AppendAttachedRows(domain.EntityJob, nil)
	_ = s.AppendAttachedRows(domain.EntityJob, nil)
	_ = s.SetMapConfig(context.Background(), domain.EntityJob, domain.MapConfig{DataMappings: []domain.DataMapping{
		{Index: 3, Value: "service"},
		{Index: 4, Value: "priority"},
	}})
	if err := s.DeleteAttachedColumn(domain.EntityJob, 3); err != nil {
		t.Fatal(err)
	}
	got := s.MapConfig(domain.EntityJob).DataMappings
	if len(got) != 1 || got[0].Value != "priority" || got[0].Index != 3 {
		t.Fatalf("mapping on deleted column must go, later ones shift: %+v", got)
	}
}
