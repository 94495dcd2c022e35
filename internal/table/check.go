package table

import (
	"routeline/internal/domain"
	"routeline/internal/schema"
)

// CheckTable re-validates every mapped cell of a table and returns the
// failures as a flat list. It holds no incremental state: the whole table
// is recomputed on every call, which stays cheap at manual-import sizes.
func CheckTable(entity domain.EntityType, raw domain.RawTable, cfg domain.MapConfig) []domain.InputErrorInfo {
	lookup := schema.CatalogFor(entity).Lookup()
	var errs []domain.InputErrorInfo
	for _, m := range cfg.DataMappings {
		field, ok := lookup[m.Value]
		if !ok || len(field.Validators) == 0 {
			continue
		}
		for row := range raw.Rows {
			for _, msg := range schema.Validate(field, raw.Cell(row, m.Index), row) {
				errs = append(errs, domain.InputErrorInfo{
					RowIndex:    row,
					ColumnIndex: m.Index,
					Message:     msg,
				})
			}
		}
	}
	return errs
}

// Errors runs the validation pass against the store's current state.
func (s *Store) Errors(entity domain.EntityType) []domain.InputErrorInfo {
	return CheckTable(entity, s.RawData(entity), s.MapConfig(entity))
}
