package schema

import "routeline/internal/domain"

// VehicleCatalog registers every mappable vehicle field. Start is required
// (combined or split); end is optional and routes stay open-ended without
// it.
var VehicleCatalog = Catalog{
	Entity: domain.EntityVehicle,
	Fields: []FieldOption{
		{
			Label:   "ID",
			Value:   "id",
			Type:    "text",
			Handler: Handler{Kind: KindString, Target: TargetID},
		},
		{
			Label:   "Description",
			Value:   "description",
			Type:    "text",
			Handler: Handler{Kind: KindString, Target: TargetDescription},
		},
		{
			Label:   "Profile",
			Value:   "profile",
			Type:    "text",
			Handler: Handler{Kind: KindString, Target: TargetProfile},
		},
		divider(),
		{
			Label:      "Start Location (lat,lng)",
			Value:      "start_location",
			Type:       "latlon_pair",
			Required:   true,
			Validators: []Validator{LatLngPair()},
			Handler:    Handler{Kind: KindLatLng, Target: TargetStart},
			Extra:      Extra{Parent: "start", AlternativeTo: []string{"start_lat", "start_lng"}},
		},
		{
			Label:      "Start Latitude",
			Value:      "start_lat",
			Type:       "latlon",
			Required:   true,
			Validators: []Validator{Latitude()},
			Handler:    Handler{Kind: KindLat, Target: TargetStart},
			Extra:      Extra{Parent: "start", AlternativeTo: []string{"start_location"}},
		},
		{
			Label:      "Start Longitude",
			Value:      "start_lng",
			Type:       "latlon",
			Required:   true,
			Validators: []Validator{Longitude()},
			Handler:    Handler{Kind: KindLng, Target: TargetStart},
			Extra:      Extra{Parent: "start", AlternativeTo: []string{"start_location"}},
		},
		{
			Label:      "End Location (lat,lng)",
			Value:      "end_location",
			Type:       "latlon_pair",
			Validators: []Validator{LatLngPair()},
			Handler:    Handler{Kind: KindLatLng, Target: TargetEnd},
			Extra:      Extra{Parent: "end", AlternativeTo: []string{"end_lat", "end_lng"}},
		},
		{
			Label:      "End Latitude",
			Value:      "end_lat",
			Type:       "latlon",
			Validators: []Validator{Latitude()},
			Handler:    Handler{Kind: KindLat, Target: TargetEnd},
			Extra:      Extra{Parent: "end", AlternativeTo: []string{"end_location"}},
		},
		{
			Label:      "End Longitude",
			Value:      "end_lng",
			Type:       "latlon",
			Validators: []Validator{Longitude()},
			Handler:    Handler{Kind: KindLng, Target: TargetEnd},
			Extra:      Extra{Parent: "end", AlternativeTo: []string{"end_location"}},
		},
		divider(),
		{
			Label:      "Capacity 1",
			Value:      "capacity_1",
			Type:       "number",
			Validators: []Validator{NonNegative()},
			Handler:    Handler{Kind: KindAmountSlot, Target: TargetCapacity, Index: 0},
			Extra:      Extra{Parent: "capacity", Index: 0},
		},
		{
			Label:      "Capacity 2",
			Value:      "capacity_2",
			Type:       "number",
			Validators: []Validator{NonNegative()},
			Handler:    Handler{Kind: KindAmountSlot, Target: TargetCapacity, Index: 1},
			Extra:      Extra{Parent: "capacity", Index: 1},
		},
		{
			Label:      "Capacity 3",
			Value:      "capacity_3",
			Type:       "number",
			Validators: []Validator{NonNegative()},
			Handler:    Handler{Kind: KindAmountSlot, Target: TargetCapacity, Index: 2},
			Extra:      Extra{Parent: "capacity", Index: 2},
		},
		{
			Label:      "Capacity Array",
			Value:      "capacity_array",
			Type:       "array",
			Validators: []Validator{ArrayOf("array")},
			Handler:    Handler{Kind: KindAmountList, Target: TargetCapacity},
			Extra:      Extra{Parent: "capacity"},
		},
		{
			Label:      "Skills",
			Value:      "skills",
			Type:       "array",
			Validators: []Validator{ArrayOf("skills")},
			Handler:    Handler{Kind: KindIntList, Target: TargetSkills},
		},
		{
			Label:      "Depot IDs",
			Value:      "depot_ids",
			Type:       "array",
			Validators: []Validator{ArrayOf("depot IDs")},
			Handler:    Handler{Kind: KindIntList, Target: TargetDepotIDs},
		},
		{
			Label:      "Shift Start",
			Value:      "shift_start",
			Type:       "timestamp",
			Validators: []Validator{Timestamp()},
			Handler:    Handler{Kind: KindClockTime, Target: TargetWindowStart},
			Extra:      Extra{Parent: "shift"},
		},
		{
			Label:      "Shift End",
			Value:      "shift_end",
			Type:       "timestamp",
			Validators: []Validator{Timestamp()},
			Handler:    Handler{Kind: KindClockTime, Target: TargetWindowEnd},
			Extra:      Extra{Parent: "shift"},
		},
		{
			Label:      "Speed Factor",
			Value:      "speed_factor",
			Type:       "number",
			Validators: []Validator{Positive()},
			Handler:    Handler{Kind: KindFloat, Target: TargetSpeedFactor},
		},
		{
			Label:      "Max Tasks",
			Value:      "max_tasks",
			Type:       "number",
			Validators: []Validator{NonNegative()},
			Handler:    Handler{Kind: KindInt, Target: TargetMaxTasks},
		},
		{
			Label:      "Fixed Cost",
			Value:      "fixed_cost",
			Type:       "number",
			Validators: []Validator{NonNegative()},
			Handler:    Handler{Kind: KindInt, Target: TargetFixedCost},
		},
	},
}
