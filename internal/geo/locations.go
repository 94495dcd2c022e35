// Package geo parses coordinate strings and deduplicates them into the
// shared location table referenced by jobs and vehicles.
package geo

import (
	"fmt"
	"strconv"
	"strings"

	"routeline/internal/domain"
	"routeline/internal/schema"
)

// NoLocation is the sentinel index for a row whose location string is
// missing or unparseable. The compiler refuses to emit it.
const NoLocation = -1

// ParsePair parses a "a,b" coordinate string into canonical (lat, lng)
// order. When the first number's absolute value exceeds 90 the pair is
// read as (lng, lat) and swapped: a longitude can exceed the latitude
// range but a latitude cannot. Pairs where both components fit the
// latitude range are assumed to already be (lat, lng) — a known accuracy
// limit near the origin, kept for compatibility with existing imports.
func ParsePair(s string) (domain.Coordinate, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return domain.Coordinate{}, false
	}
	first, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	second, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return domain.Coordinate{}, false
	}
	if first > 90 || first < -90 {
		first, second = second, first
	}
	return domain.Coordinate{first, second}, true
}

// Key is the dedup key of a coordinate: its 6-decimal-rounded string form.
func Key(c domain.Coordinate) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat(), c.Lng())
}

// Table assigns dense integer indices to unique coordinates in first-seen
// order.
type Table struct {
	indices map[string]int
	coords  []domain.Coordinate
}

func NewTable() *Table {
	return &Table{indices: map[string]int{}}
}

// Add returns the index of the coordinate, assigning the next sequential
// one on first occurrence.
func (t *Table) Add(c domain.Coordinate) int {
	k := Key(c)
	if i, ok := t.indices[k]; ok {
		return i
	}
	i := len(t.coords)
	t.indices[k] = i
	t.coords = append(t.coords, c)
	return i
}

// Locations returns the table in index order.
func (t *Table) Locations() domain.Locations {
	return domain.Locations{Location: append([]domain.Coordinate(nil), t.coords...)}
}

// Len returns the number of unique coordinates.
func (t *Table) Len() int { return len(t.coords) }

// ExtractCoordString assembles the location string of one row for a
// handler target: the combined pair column when mapped, otherwise the
// separately mapped lat and lng columns joined. Empty when neither
// alternative is mapped.
func ExtractCoordString(raw domain.RawTable, cfg domain.MapConfig, lookup map[string]schema.FieldOption, target schema.Target, row int) string {
	latCol, lngCol := -1, -1
	for _, m := range cfg.DataMappings {
		f, ok := lookup[m.Value]
		if !ok || f.Handler.Target != target {
			continue
		}
		switch f.Handler.Kind {
		case schema.KindLatLng:
			return raw.Cell(row, m.Index)
		case schema.KindLat:
			latCol = m.Index
		case schema.KindLng:
			lngCol = m.Index
		}
	}
	if latCol < 0 || lngCol < 0 {
		return ""
	}
	lat := strings.TrimSpace(raw.Cell(row, latCol))
	lng := strings.TrimSpace(raw.Cell(row, lngCol))
	if lat == "" || lng == "" {
		return ""
	}
	return lat + "," + lng
}

// HasLocationMapping reports whether any location alternative for the
// target is mapped at all.
func HasLocationMapping(cfg domain.MapConfig, lookup map[string]schema.FieldOption, target schema.Target) bool {
	for _, m := range cfg.DataMappings {
		f, ok := lookup[m.Value]
		if !ok || f.Handler.Target != target {
			continue
		}
		switch f.Handler.Kind {
		case schema.KindLatLng, schema.KindLat, schema.KindLng:
			return true
		}
	}
	return false
}

// Resolution maps rows to location indices for one request build.
type Resolution struct {
	Table         *Table
	Jobs          map[int]int
	VehicleStarts map[int]int
	VehicleEnds   map[int]int
}

// EntityState is the slice of store state a resolution consumes.
type EntityState struct {
	Raw      domain.RawTable
	Config   domain.MapConfig
	Selected []bool
}

func selected(mask []bool, row int) bool {
	if len(mask) == 0 {
		return true
	}
	return row < len(mask) && mask[row]
}

// Build scans selected job rows, then vehicle starts, then vehicle ends,
// assigning location indices in that order. Rows whose location string is
// missing or unparseable get NoLocation.
func Build(jobs, vehicles EntityState) Resolution {
	res := Resolution{
		Table:         NewTable(),
		Jobs:          map[int]int{},
		VehicleStarts: map[int]int{},
		VehicleEnds:   map[int]int{},
	}
	jobLookup := schema.CatalogFor(domain.EntityJob).Lookup()
	for row := range jobs.Raw.Rows {
		if !selected(jobs.Selected, row) {
			continue
		}
		res.Jobs[row] = res.resolve(ExtractCoordString(jobs.Raw, jobs.Config, jobLookup, schema.TargetLocation, row))
	}
	vehLookup := schema.CatalogFor(domain.EntityVehicle).Lookup()
	for row := range vehicles.Raw.Rows {
		if !selected(vehicles.Selected, row) {
			continue
		}
		res.VehicleStarts[row] = res.resolve(ExtractCoordString(vehicles.Raw, vehicles.Config, vehLookup, schema.TargetStart, row))
	}
	for row := range vehicles.Raw.Rows {
		if !selected(vehicles.Selected, row) {
			continue
		}
		res.VehicleEnds[row] = res.resolve(ExtractCoordString(vehicles.Raw, vehicles.Config, vehLookup, schema.TargetEnd, row))
	}
	return res
}

func (r Resolution) resolve(s string) int {
	if strings.TrimSpace(s) == "" {
		return NoLocation
	}
	c, ok := ParsePair(s)
	if !ok {
		return NoLocation
	}
	return r.Table.Add(c)
}
