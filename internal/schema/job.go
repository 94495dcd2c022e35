package schema

import "routeline/internal/domain"

// JobCatalog registers every mappable job field. The combined location pair
// and the split lat/lng columns are mutually exclusive alternatives for the
// same logical target.
var JobCatalog = Catalog{
	Entity: domain.EntityJob,
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
		divider(),
		{
			Label:      "Location (lat,lng)",
			Value:      "location",
			Type:       "latlon_pair",
			Required:   true,
			Validators: []Validator{LatLngPair()},
			Handler:    Handler{Kind: KindLatLng, Target: TargetLocation},
			Extra:      Extra{Parent: "location", AlternativeTo: []string{"location_lat", "location_lng"}},
		},
		{
			Label:      "Latitude",
			Value:      "location_lat",
			Type:       "latlon",
			Required:   true,
			Validators: []Validator{Latitude()},
			Handler:    Handler{Kind: KindLat, Target: TargetLocation},
			Extra:      Extra{Parent: "location", AlternativeTo: []string{"location"}},
		},
		{
			Label:      "Longitude",
			Value:      "location_lng",
			Type:       "latlon",
			Required:   true,
			Validators: []Validator{Longitude()},
			Handler:    Handler{Kind: KindLng, Target: TargetLocation},
			Extra:      Extra{Parent: "location", AlternativeTo: []string{"location"}},
		},
		divider(),
		{
			Label:      "Service Time (min)",
			Value:      "service",
			Type:       "number",
			Validators: []Validator{Positive()},
			Handler:    Handler{Kind: KindMinutes, Target: TargetService},
		},
		{
			Label:      "Setup Time (min)",
			Value:      "setup",
			Type:       "number",
			Validators: []Validator{NonNegative()},
			Handler:    Handler{Kind: KindMinutes, Target: TargetSetup},
		},
		{
			Label:      "Priority",
			Value:      "priority",
			Type:       "number",
			Validators: []Validator{Range(0, 100, true)},
			Handler:    Handler{Kind: KindInt, Target: TargetPriority},
		},
		{
			Label:      "Start Time",
			Value:      "start_time",
			Type:       "timestamp",
			Validators: []Validator{Timestamp()},
			Handler:    Handler{Kind: KindClockTime, Target: TargetWindowStart},
		},
		{
			Label:      "Skills",
			Value:      "skills",
			Type:       "array",
			Validators: []Validator{ArrayOf("skills")},
			Handler:    Handler{Kind: KindIntList, Target: TargetSkills},
		},
		{
			Label:      "Zones",
			Value:      "zones",
			Type:       "array",
			Validators: []Validator{ArrayOf("zones")},
			Handler:    Handler{Kind: KindIntList, Target: TargetZones},
		},
		{
			Label:      "Delivery Capacity 1",
			Value:      "delivery_capacity_1",
			Type:       "number",
			Validators: []Validator{NonNegative()},
			Handler:    Handler{Kind: KindAmountSlot, Target: TargetDelivery, Index: 0},
			Extra:      Extra{Parent: "delivery", Index: 0},
		},
		{
			Label:      "Delivery Capacity 2",
			Value:      "delivery_capacity_2",
			Type:       "number",
			Validators: []Validator{NonNegative()},
			Handler:    Handler{Kind: KindAmountSlot, Target: TargetDelivery, Index: 1},
			Extra:      Extra{Parent: "delivery", Index: 1},
		},
		{
			Label:      "Delivery Capacity 3",
			Value:      "delivery_capacity_3",
			Type:       "number",
			Validators: []Validator{NonNegative()},
			Handler:    Handler{Kind: KindAmountSlot, Target: TargetDelivery, Index: 2},
			Extra:      Extra{Parent: "delivery", Index: 2},
		},
		{
			Label:      "Delivery Amounts",
			Value:      "delivery_amounts",
			Type:       "array",
			Validators: []Validator{ArrayOf("array")},
			Handler:    Handler{Kind: KindAmountList, Target: TargetDelivery},
			Extra:      Extra{Parent: "delivery"},
		},
		{
			Label:      "Pickup Capacity 1",
			Value:      "pickup_capacity_1",
			Type:       "number",
			Validators: []Validator{NonNegative()},
			Handler:    Handler{Kind: KindAmountSlot, Target: TargetPickup, Index: 0},
			Extra:      Extra{Parent: "pickup", Index: 0},
		},
		{
			Label:      "Pickup Capacity 2",
			Value:      "pickup_capacity_2",
			Type:       "number",
			Validators: []Validator{NonNegative()},
			Handler:    Handler{Kind: KindAmountSlot, Target: TargetPickup, Index: 1},
			Extra:      Extra{Parent: "pickup", Index: 1},
		},
		{
			Label:      "Pickup Capacity 3",
			Value:      "pickup_capacity_3",
			Type:       "number",
			Validators: []Validator{NonNegative()},
			Handler:    Handler{Kind: KindAmountSlot, Target: TargetPickup, Index: 2},
			Extra:      Extra{Parent: "pickup", Index: 2},
		},
		{
			Label:      "Pickup Amounts",
			Value:      "pickup_amounts",
			Type:       "array",
			Validators: []Validator{ArrayOf("array")},
			Handler:    Handler{Kind: KindAmountList, Target: TargetPickup},
			Extra:      Extra{Parent: "pickup"},
		},
	},
}
