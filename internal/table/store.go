// Package table owns the imported raw tables, their column mappings and
// the per-row selection masks, one slice per entity type behind a single
// facade. All mutation goes through the setters here.
package table

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"routeline/internal/domain"
	"routeline/internal/schema"
)

// Saver persists mapping configurations. Persistence is asynchronous:
// the in-memory state is updated first so callers see the change even when
// the saver is slow or failing.
type Saver interface {
	SaveMapping(ctx context.Context, entity domain.EntityType, cfg domain.MapConfig) error
	ClearMapping(ctx context.Context, entity domain.EntityType) error
}

type slice struct {
	raw      domain.RawTable
	config   domain.MapConfig
	selected []bool
}

// Store is the per-entity mapping store.
type Store struct {
	mu     sync.Mutex
	saver  Saver
	logger *log.Logger
	wg     sync.WaitGroup
	slices map[domain.EntityType]*slice
}

// New returns an empty store. saver may be nil for purely in-memory use.
func New(saver Saver) *Store {
	s := &Store{
		saver:  saver,
		logger: log.Default(),
		slices: map[domain.EntityType]*slice{},
	}
	for _, e := range domain.EntityTypes() {
		s.slices[e] = &slice{}
	}
	return s
}

// SetLogger overrides the destination for swallowed persistence errors.
func (s *Store) SetLogger(l *log.Logger) {
	if l != nil {
		s.logger = l
	}
}

func (s *Store) slice(entity domain.EntityType) (*slice, error) {
	sl, ok := s.slices[entity]
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q", entity)
	}
	return sl, nil
}

// SetRawData replaces the table of an entity and resets the selection to
// all-true sized to the new row count. Prior selection is discarded: a
// re-import always re-selects everything.
func (s *Store) SetRawData(entity domain.EntityType, raw domain.RawTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, err := s.slice(entity)
	if err != nil {
		return err
	}
	sl.raw = raw
	sl.selected = allTrue(len(raw.Rows))
	return nil
}

// RawData returns the current table of an entity.
func (s *Store) RawData(entity domain.EntityType) domain.RawTable {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, err := s.slice(entity); err == nil {
		return sl.raw
	}
	return domain.RawTable{}
}

// SetMapConfig applies a mapping configuration in memory, then persists it
// asynchronously. Mutually exclusive alternatives are resolved here with
// last-write-wins: when a later mapping targets a field whose alternative
// set contains an already-mapped field, the earlier mapping is dropped.
// The same rule collapses duplicate column indices.
func (s *Store) SetMapConfig(ctx context.Context, entity domain.EntityType, cfg domain.MapConfig) error {
	s.mu.Lock()
	sl, err := s.slice(entity)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	cfg.DataMappings = normalizeMappings(entity, cfg.DataMappings)
	sl.config = cfg
	s.mu.Unlock()

	if s.saver == nil {
		return nil
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.saver.SaveMapping(context.WithoutCancel(ctx), entity, cfg); err != nil {
			s.logger.Printf("save %s mapping: %v", entity, err)
		}
	}()
	return nil
}

func normalizeMappings(entity domain.EntityType, mappings []domain.DataMapping) []domain.DataMapping {
	lookup := schema.CatalogFor(entity).Lookup()
	var kept []domain.DataMapping
	for _, m := range mappings {
		excluded := map[string]bool{m.Value: true}
		if f, ok := lookup[m.Value]; ok {
			for _, alt := range f.Extra.AlternativeTo {
				excluded[alt] = true
			}
		}
		filtered := kept[:0]
		for _, prev := range kept {
			if prev.Index == m.Index || excluded[prev.Value] {
				continue
			}
			filtered = append(filtered, prev)
		}
		kept = append(filtered, m)
	}
	return kept
}

// HydrateMapping installs a previously persisted configuration in memory
// without writing it back, so the stored save timestamp survives startup.
func (s *Store) HydrateMapping(entity domain.EntityType, cfg domain.MapConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, err := s.slice(entity)
	if err != nil {
		return err
	}
	cfg.DataMappings = normalizeMappings(entity, cfg.DataMappings)
	sl.config = cfg
	return nil
}

// MapConfig returns the current mapping configuration of an entity.
func (s *Store) MapConfig(entity domain.EntityType) domain.MapConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, err := s.slice(entity); err == nil {
		return sl.config
	}
	return domain.MapConfig{}
}

// ResetMapping drops the in-memory mapping and clears the persisted record.
func (s *Store) ResetMapping(ctx context.Context, entity domain.EntityType) error {
	s.mu.Lock()
	sl, err := s.slice(entity)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	sl.config = domain.MapConfig{}
	s.mu.Unlock()

	if s.saver == nil {
		return nil
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.saver.ClearMapping(context.WithoutCancel(ctx), entity); err != nil {
			s.logger.Printf("clear %s mapping: %v", entity, err)
		}
	}()
	return nil
}

// Flush waits for pending mapping persistence. Used on shutdown and by
// tests.
func (s *Store) Flush() {
	s.wg.Wait()
}

// healSelection returns a selection mask guaranteed to match the row
// count. A stale mask (imports racing selection edits) means implicitly
// all-selected.
func healSelection(sl *slice) []bool {
	if len(sl.selected) != len(sl.raw.Rows) {
		sl.selected = allTrue(len(sl.raw.Rows))
	}
	return sl.selected
}

// SetRowSelected toggles one row's inclusion.
func (s *Store) SetRowSelected(entity domain.EntityType, row int, selected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, err := s.slice(entity)
	if err != nil {
		return err
	}
	mask := healSelection(sl)
	if row < 0 || row >= len(mask) {
		return fmt.Errorf("row %d out of range", row)
	}
	mask[row] = selected
	return nil
}

// SetAllRowsSelected sets every row's inclusion at once.
func (s *Store) SetAllRowsSelected(entity domain.EntityType, selected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, err := s.slice(entity)
	if err != nil {
		return err
	}
	mask := make([]bool, len(sl.raw.Rows))
	for i := range mask {
		mask[i] = selected
	}
	sl.selected = mask
	return nil
}

// ClearSelection deselects every row.
func (s *Store) ClearSelection(entity domain.EntityType) error {
	return s.SetAllRowsSelected(entity, false)
}

// Selection returns a copy of the (healed) selection mask.
func (s *Store) Selection(entity domain.EntityType) []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, err := s.slice(entity)
	if err != nil {
		return nil
	}
	mask := healSelection(sl)
	out := make([]bool, len(mask))
	copy(out, mask)
	return out
}

// AppendAttachedRows appends one synthetic column, with cells at the same
// row positions as the imported rows. cells may be nil for an empty
// column; otherwise its length must match the row count.
func (s *Store) AppendAttachedRows(entity domain.EntityType, cells []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, err := s.slice(entity)
	if err != nil {
		return err
	}
	rows := len(sl.raw.Rows)
	if cells != nil && len(cells) != rows {
		return fmt.Errorf("attached column has %d cells for %d rows", len(cells), rows)
	}
	if sl.raw.AttachedRows == nil {
		sl.raw.AttachedRows = make([][]string, rows)
	}
	for i := 0; i < rows; i++ {
		v := ""
		if cells != nil {
			v = cells[i]
		}
		sl.raw.AttachedRows[i] = append(sl.raw.AttachedRows[i], v)
	}
	return nil
}

// CopyAttributeColumn broadcasts the cell at fromRow across every row of
// an attached column. col is the global column index.
func (s *Store) CopyAttributeColumn(entity domain.EntityType, col, fromRow int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, err := s.slice(entity)
	if err != nil {
		return err
	}
	attached := col - len(sl.raw.Header)
	if attached < 0 {
		return errors.New("only attached columns can be filled")
	}
	if fromRow < 0 || fromRow >= len(sl.raw.AttachedRows) || attached >= len(sl.raw.AttachedRows[fromRow]) {
		return fmt.Errorf("no attached cell at row %d column %d", fromRow, col)
	}
	value := sl.raw.AttachedRows[fromRow][attached]
	for i := range sl.raw.AttachedRows {
		if attached < len(sl.raw.AttachedRows[i]) {
			sl.raw.AttachedRows[i][attached] = value
		}
	}
	return nil
}

// DeleteAttachedColumn removes one synthetic column and any mapping bound
// to it. col is the global column index.
func (s *Store) DeleteAttachedColumn(entity domain.EntityType, col int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, err := s.slice(entity)
	if err != nil {
		return err
	}
	attached := col - len(sl.raw.Header)
	if attached < 0 || len(sl.raw.AttachedRows) == 0 || attached >= len(sl.raw.AttachedRows[0]) {
		return fmt.Errorf("no attached column at index %d", col)
	}
	for i := range sl.raw.AttachedRows {
		sl.raw.AttachedRows[i] = append(sl.raw.AttachedRows[i][:attached], sl.raw.AttachedRows[i][attached+1:]...)
	}
	var kept []domain.DataMapping
	for _, m := range sl.config.DataMappings {
		switch {
		case m.Index == col:
			continue
		case m.Index > col:
			m.Index--
		}
		kept = append(kept, m)
	}
	sl.config.DataMappings = kept
	return nil
}

func allTrue(n int) []bool {
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = true
	}
	return mask
}
