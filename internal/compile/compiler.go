// Package compile folds mapped table rows into the optimization request
// payload. Compilation is deterministic: rows are processed in table
// order filtered by selection, mappings in their stored order, so
// identical inputs always produce identical output.
package compile

import (
	"fmt"
	"strconv"
	"strings"

	"routeline/internal/domain"
	"routeline/internal/geo"
	"routeline/internal/schema"
)

// RowError locates a compile failure in the source table.
type RowError struct {
	Entity domain.EntityType
	Row    int
	Field  string
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s row %d: %s: %s", e.Entity, e.Row+1, e.Field, e.Reason)
}

// Input is the full state one compilation consumes.
type Input struct {
	Jobs      geo.EntityState
	Vehicles  geo.EntityState
	Shipments geo.EntityState
}

// Build compiles the request. A row whose required location cannot be
// resolved is a hard error naming the row and field; there is no
// out-of-range index sentinel in the output.
func Build(in Input) (domain.OptimizationRequest, error) {
	res := geo.Build(in.Jobs, in.Vehicles)

	jobs, err := buildJobs(in.Jobs, res)
	if err != nil {
		return domain.OptimizationRequest{}, err
	}
	vehicles, err := buildVehicles(in.Vehicles, res)
	if err != nil {
		return domain.OptimizationRequest{}, err
	}
	shipments, err := buildShipments(in.Shipments)
	if err != nil {
		return domain.OptimizationRequest{}, err
	}

	return domain.OptimizationRequest{
		Jobs:      jobs,
		Vehicles:  vehicles,
		Shipments: shipments,
		Locations: res.Table.Locations(),
		Options:   buildOptions(in),
	}, nil
}

func buildJobs(st geo.EntityState, res geo.Resolution) ([]domain.Job, error) {
	lookup := schema.JobCatalog.Lookup()
	var out []domain.Job
	for row := range st.Raw.Rows {
		idx, ok := res.Jobs[row]
		if !ok {
			continue
		}
		if idx == geo.NoLocation {
			return nil, &RowError{Entity: domain.EntityJob, Row: row, Field: "location", Reason: "no location resolved"}
		}
		job := domain.Job{ID: strconv.Itoa(row + 1), LocationIndex: idx}
		for _, m := range st.Config.DataMappings {
			f, ok := lookup[m.Value]
			if !ok {
				continue
			}
			cell := strings.TrimSpace(st.Raw.Cell(row, m.Index))
			if cell == "" {
				continue
			}
			applyJob(&job, f.Handler, cell)
		}
		out = append(out, job)
	}
	return out, nil
}

func applyJob(job *domain.Job, h schema.Handler, cell string) {
	switch h.Kind {
	case schema.KindString:
		switch h.Target {
		case schema.TargetID:
			job.ID = cell
		case schema.TargetDescription:
			job.Description = cell
		}
	case schema.KindMinutes:
		if v, ok := parseInt64(cell); ok {
			switch h.Target {
			case schema.TargetService:
				job.Service = v
			case schema.TargetSetup:
				job.Setup = v
			}
		}
	case schema.KindInt:
		if v, ok := parseInt(cell); ok && h.Target == schema.TargetPriority {
			job.Priority = v
		}
	case schema.KindIntList:
		switch h.Target {
		case schema.TargetSkills:
			job.Skills = parseIntList(cell)
		case schema.TargetZones:
			job.Zones = parseIntList(cell)
		}
	case schema.KindClockTime:
		if t, ok := clockMinutes(cell); ok && h.Target == schema.TargetWindowStart {
			job.TimeWindows = [][2]int64{{t, t + 60}}
		}
	case schema.KindAmountSlot:
		if v, ok := parseInt64(cell); ok {
			switch h.Target {
			case schema.TargetDelivery:
				job.Delivery = setSlot(job.Delivery, h.Index, v)
			case schema.TargetPickup:
				job.Pickup = setSlot(job.Pickup, h.Index, v)
			}
		}
	case schema.KindAmountList:
		switch h.Target {
		case schema.TargetDelivery:
			job.Delivery = parseAmountList(cell)
		case schema.TargetPickup:
			job.Pickup = parseAmountList(cell)
		}
	}
}

func buildVehicles(st geo.EntityState, res geo.Resolution) ([]domain.Vehicle, error) {
	lookup := schema.VehicleCatalog.Lookup()
	var out []domain.Vehicle
	for row := range st.Raw.Rows {
		start, ok := res.VehicleStarts[row]
		if !ok {
			continue
		}
		if start == geo.NoLocation {
			return nil, &RowError{Entity: domain.EntityVehicle, Row: row, Field: "start_location", Reason: "no location resolved"}
		}
		veh := domain.Vehicle{ID: strconv.Itoa(row + 1), StartIndex: start}

		// An unmapped or blank end keeps the route open-ended; a value
		// that is present but unparseable is an error, not an omission.
		if end := res.VehicleEnds[row]; end != geo.NoLocation {
			e := end
			veh.EndIndex = &e
		} else if s := geo.ExtractCoordString(st.Raw, st.Config, lookup, schema.TargetEnd, row); strings.TrimSpace(s) != "" {
			return nil, &RowError{Entity: domain.EntityVehicle, Row: row, Field: "end_location", Reason: "no location resolved"}
		}

		var winStart, winEnd int64
		var hasStart, hasEnd bool
		for _, m := range st.Config.DataMappings {
			f, ok := lookup[m.Value]
			if !ok {
				continue
			}
			cell := strings.TrimSpace(st.Raw.Cell(row, m.Index))
			if cell == "" {
				continue
			}
			switch f.Handler.Kind {
			case schema.KindString:
				switch f.Handler.Target {
				case schema.TargetID:
					veh.ID = cell
				case schema.TargetDescription:
					veh.Description = cell
				case schema.TargetProfile:
					veh.Profile = cell
				}
			case schema.KindInt:
				if v, ok := parseInt(cell); ok {
					switch f.Handler.Target {
					case schema.TargetMaxTasks:
						veh.MaxTasks = v
					case schema.TargetFixedCost:
						veh.FixedCost = int64(v)
					}
				}
			case schema.KindFloat:
				if v, err := strconv.ParseFloat(cell, 64); err == nil && f.Handler.Target == schema.TargetSpeedFactor {
					veh.SpeedFactor = v
				}
			case schema.KindIntList:
				switch f.Handler.Target {
				case schema.TargetSkills:
					veh.Skills = parseIntList(cell)
				case schema.TargetDepotIDs:
					veh.DepotIDs = parseIntList(cell)
				}
			case schema.KindClockTime:
				if t, ok := clockMinutes(cell); ok {
					switch f.Handler.Target {
					case schema.TargetWindowStart:
						winStart, hasStart = t, true
					case schema.TargetWindowEnd:
						winEnd, hasEnd = t, true
					}
				}
			case schema.KindAmountSlot:
				if v, ok := parseInt64(cell); ok && f.Handler.Target == schema.TargetCapacity {
					veh.Capacity = setSlot(veh.Capacity, f.Handler.Index, v)
				}
			case schema.KindAmountList:
				if f.Handler.Target == schema.TargetCapacity {
					veh.Capacity = parseAmountList(cell)
				}
			}
		}
		if hasStart || hasEnd {
			if !hasEnd {
				winEnd = 24 * 60
			}
			veh.TimeWindow = &[2]int64{winStart, winEnd}
		}
		out = append(out, veh)
	}
	return out, nil
}

func buildShipments(st geo.EntityState) ([]domain.Shipment, error) {
	lookup := schema.ShipmentCatalog.Lookup()
	var out []domain.Shipment
	for row := range st.Raw.Rows {
		if !rowSelected(st.Selected, row) {
			continue
		}
		ship := domain.Shipment{
			Pickup:   domain.ShipmentStep{ID: strconv.Itoa(row + 1)},
			Delivery: domain.ShipmentStep{ID: strconv.Itoa(row + 1)},
		}
		for _, half := range []struct {
			step  schema.Step
			field string
			dst   *domain.ShipmentStep
		}{
			{schema.StepPickup, "pickup.location", &ship.Pickup},
			{schema.StepDelivery, "delivery.location", &ship.Delivery},
		} {
			s := stepCoordString(st, lookup, half.step, row)
			if strings.TrimSpace(s) == "" {
				return nil, &RowError{Entity: domain.EntityShipment, Row: row, Field: half.field, Reason: "no location resolved"}
			}
			c, ok := geo.ParsePair(s)
			if !ok {
				return nil, &RowError{Entity: domain.EntityShipment, Row: row, Field: half.field, Reason: "no location resolved"}
			}
			half.dst.Location = &c
		}
		for _, m := range st.Config.DataMappings {
			f, ok := lookup[m.Value]
			if !ok {
				continue
			}
			cell := strings.TrimSpace(st.Raw.Cell(row, m.Index))
			if cell == "" {
				continue
			}
			applyShipment(&ship, f.Handler, cell)
		}
		out = append(out, ship)
	}
	return out, nil
}

func applyShipment(ship *domain.Shipment, h schema.Handler, cell string) {
	step := &ship.Pickup
	if h.Step == schema.StepDelivery {
		step = &ship.Delivery
	}
	switch h.Kind {
	case schema.KindString:
		switch h.Target {
		case schema.TargetID:
			step.ID = cell
		case schema.TargetDescription:
			step.Description = cell
		}
	case schema.KindMinutes:
		if v, ok := parseInt64(cell); ok && h.Target == schema.TargetService {
			step.Service = v
		}
	case schema.KindClockTime:
		if t, ok := clockMinutes(cell); ok && h.Target == schema.TargetWindowStart {
			step.TimeWindows = [][2]int64{{t, t + 60}}
		}
	case schema.KindInt:
		if v, ok := parseInt(cell); ok && h.Target == schema.TargetPriority {
			ship.Priority = v
		}
	case schema.KindIntList:
		if h.Target == schema.TargetSkills {
			ship.Skills = parseIntList(cell)
		}
	case schema.KindAmountSlot:
		if v, ok := parseInt64(cell); ok && h.Target == schema.TargetCapacity {
			ship.Amount = setSlot(ship.Amount, h.Index, v)
		}
	case schema.KindAmountList:
		if h.Target == schema.TargetCapacity {
			ship.Amount = parseAmountList(cell)
		}
	}
}

// stepCoordString mirrors geo.ExtractCoordString but filters by shipment
// half, since both halves share the location target.
func stepCoordString(st geo.EntityState, lookup map[string]schema.FieldOption, step schema.Step, row int) string {
	latCol, lngCol := -1, -1
	for _, m := range st.Config.DataMappings {
		f, ok := lookup[m.Value]
		if !ok || f.Handler.Target != schema.TargetLocation || f.Handler.Step != step {
			continue
		}
		switch f.Handler.Kind {
		case schema.KindLatLng:
			return st.Raw.Cell(row, m.Index)
		case schema.KindLat:
			latCol = m.Index
		case schema.KindLng:
			lngCol = m.Index
		}
	}
	if latCol < 0 || lngCol < 0 {
		return ""
	}
	lat := strings.TrimSpace(st.Raw.Cell(row, latCol))
	lng := strings.TrimSpace(st.Raw.Cell(row, lngCol))
	if lat == "" || lng == "" {
		return ""
	}
	return lat + "," + lng
}

func buildOptions(in Input) domain.Options {
	var opts domain.Options
	for _, cfg := range []domain.MapConfig{in.Jobs.Config, in.Vehicles.Config, in.Shipments.Config} {
		for _, m := range cfg.MetaMappings {
			switch m.Key {
			case "objective":
				opts.Objective = m.Value
			case "routing_mode":
				opts.RoutingMode = m.Value
			}
		}
	}
	return opts
}

func rowSelected(mask []bool, row int) bool {
	if len(mask) == 0 {
		return true
	}
	return row < len(mask) && mask[row]
}

func parseInt(s string) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		f, ferr := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if ferr != nil {
			return 0, false
		}
		return int(f), true
	}
	return v, true
}

func parseInt64(s string) (int64, bool) {
	v, ok := parseInt(s)
	return int64(v), ok
}

// parseIntList accepts a JSON array literal or a comma list, dropping
// tokens that do not parse as integers.
func parseIntList(s string) []int {
	var out []int
	for _, tok := range splitList(s) {
		if v, ok := parseInt(tok); ok {
			out = append(out, v)
		}
	}
	return out
}

func parseAmountList(s string) []int64 {
	var out []int64
	for _, tok := range splitList(s) {
		if v, ok := parseInt64(tok); ok {
			out = append(out, v)
		}
	}
	return out
}

// setSlot writes one fixed position, growing the array as needed so
// earlier-written higher slots survive.
func setSlot(arr []int64, idx int, v int64) []int64 {
	for len(arr) <= idx {
		arr = append(arr, 0)
	}
	arr[idx] = v
	return arr
}

func splitList(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	return strings.Split(s, ",")
}

// clockMinutes compiles a time cell to minutes since midnight. HH:MM
// literals and any recognized timestamp layout are accepted; a bare
// number is already minutes.
func clockMinutes(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if h, m, ok := parseHHMM(s); ok {
		return int64(h*60 + m), true
	}
	if t, ok := schema.ParseTimestamp(s); ok {
		return int64(t.Hour()*60 + t.Minute()), true
	}
	if v, ok := parseInt64(s); ok {
		return v, true
	}
	return 0, false
}

func parseHHMM(s string) (h, m int, ok bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}
