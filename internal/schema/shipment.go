package schema

import "routeline/internal/domain"

// ShipmentCatalog registers every mappable shipment field. Pickup and
// delivery halves mirror each other; keys carry the half as a dot prefix
// so the picker groups them.
var ShipmentCatalog = Catalog{
	Entity: domain.EntityShipment,
	Fields: append(append(append([]FieldOption{},
		stepFields("pickup", "Pickup", StepPickup)...),
		stepFields("delivery", "Delivery", StepDelivery)...),
		[]FieldOption{
			divider(),
			{
				Label:      "Amount 1",
				Value:      "amount_1",
				Type:       "number",
				Validators: []Validator{NonNegative()},
				Handler:    Handler{Kind: KindAmountSlot, Target: TargetCapacity, Index: 0},
				Extra:      Extra{Parent: "amount", Index: 0},
			},
			{
				Label:      "Amount 2",
				Value:      "amount_2",
				Type:       "number",
				Validators: []Validator{NonNegative()},
				Handler:    Handler{Kind: KindAmountSlot, Target: TargetCapacity, Index: 1},
				Extra:      Extra{Parent: "amount", Index: 1},
			},
			{
				Label:      "Amount 3",
				Value:      "amount_3",
				Type:       "number",
				Validators: []Validator{NonNegative()},
				Handler:    Handler{Kind: KindAmountSlot, Target: TargetCapacity, Index: 2},
				Extra:      Extra{Parent: "amount", Index: 2},
			},
			{
				Label:      "Amount Array",
				Value:      "amount_array",
				Type:       "array",
				Validators: []Validator{ArrayOf("array")},
				Handler:    Handler{Kind: KindAmountList, Target: TargetCapacity},
				Extra:      Extra{Parent: "amount"},
			},
			{
				Label:      "Skills",
				Value:      "skills",
				Type:       "array",
				Validators: []Validator{ArrayOf("skills")},
				Handler:    Handler{Kind: KindIntList, Target: TargetSkills},
			},
			{
				Label:      "Priority",
				Value:      "priority",
				Type:       "number",
				Validators: []Validator{Range(0, 100, true)},
				Handler:    Handler{Kind: KindInt, Target: TargetPriority},
			},
		}...),
}

func stepFields(key, label string, step Step) []FieldOption {
	return []FieldOption{
		{
			Label:   label + " ID",
			Value:   key + ".id",
			Type:    "text",
			Handler: Handler{Kind: KindString, Target: TargetID, Step: step},
		},
		{
			Label:   label + " Description",
			Value:   key + ".description",
			Type:    "text",
			Handler: Handler{Kind: KindString, Target: TargetDescription, Step: step},
		},
		{
			Label:      label + " Location (lat,lng)",
			Value:      key + ".location",
			Type:       "latlon_pair",
			Required:   true,
			Validators: []Validator{LatLngPair()},
			Handler:    Handler{Kind: KindLatLng, Target: TargetLocation, Step: step},
			Extra:      Extra{Parent: key, AlternativeTo: []string{key + ".lat", key + ".lng"}},
		},
		{
			Label:      label + " Latitude",
			Value:      key + ".lat",
			Type:       "latlon",
			Required:   true,
			Validators: []Validator{Latitude()},
			Handler:    Handler{Kind: KindLat, Target: TargetLocation, Step: step},
			Extra:      Extra{Parent: key, AlternativeTo: []string{key + ".location"}},
		},
		{
			Label:      label + " Longitude",
			Value:      key + ".lng",
			Type:       "latlon",
			Required:   true,
			Validators: []Validator{Longitude()},
			Handler:    Handler{Kind: KindLng, Target: TargetLocation, Step: step},
			Extra:      Extra{Parent: key, AlternativeTo: []string{key + ".location"}},
		},
		{
			Label:      label + " Service Time (min)",
			Value:      key + ".service",
			Type:       "number",
			Validators: []Validator{Positive()},
			Handler:    Handler{Kind: KindMinutes, Target: TargetService, Step: step},
		},
		{
			Label:      label + " Start Time",
			Value:      key + ".start_time",
			Type:       "timestamp",
			Validators: []Validator{Timestamp()},
			Handler:    Handler{Kind: KindClockTime, Target: TargetWindowStart, Step: step},
		},
	}
}
