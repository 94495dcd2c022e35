package schema

import (
	"strings"

	"routeline/internal/domain"
)

// HandlerKind selects how a raw cell value is parsed at compile time.
// Pairing a kind with a Target replaces the old switch-on-field-key
// compilation: the compiler folds over mappings and dispatches on these
// tags only, never on the key string.
type HandlerKind int

const (
	KindNone HandlerKind = iota
	KindString
	KindInt
	KindFloat
	KindMinutes    // duration in minutes
	KindIntList    // JSON array or comma list of ints, junk tokens dropped
	KindAmountSlot // one slot of a fixed-position amount array
	KindAmountList // whole amount array, JSON or comma list
	KindClockTime  // timestamp or HH:MM, compiled to minutes since midnight
	KindLatLng     // combined "lat,lng" pair
	KindLat        // split latitude half
	KindLng        // split longitude half
)

// Target names the output slot a parsed value lands in.
type Target int

const (
	TargetNone Target = iota
	TargetID
	TargetDescription
	TargetProfile
	TargetService
	TargetSetup
	TargetPriority
	TargetSkills
	TargetZones
	TargetDepotIDs
	TargetCapacity // vehicle capacity / shipment amount
	TargetPickup   // job pickup amounts
	TargetDelivery // job delivery amounts
	TargetLocation // job or shipment-step location
	TargetStart    // vehicle start location
	TargetEnd      // vehicle end location
	TargetWindowStart
	TargetWindowEnd
	TargetSpeedFactor
	TargetMaxTasks
	TargetFixedCost
)

// Step selects the shipment half a field belongs to.
type Step int

const (
	StepNone Step = iota
	StepPickup
	StepDelivery
)

// Handler is the typed compile instruction attached to a field.
type Handler struct {
	Kind   HandlerKind
	Target Target
	Step   Step
	Index  int // slot for KindAmountSlot
}

// Extra carries structural metadata for the mapping UI.
type Extra struct {
	Parent        string   `json:"parent,omitempty"`
	AlternativeTo []string `json:"alternativeTo,omitempty"`
	Index         int      `json:"index,omitempty"`
	Divider       bool     `json:"divider,omitempty"`
}

// FieldOption describes one destination field of an entity schema.
type FieldOption struct {
	Label      string
	Value      string // stable key
	Type       string // semantic kind for pickers: text, number, latlon, latlon_pair, timestamp, array
	Required   bool
	Validators []Validator
	Handler    Handler
	Extra      Extra
}

// Catalog is the static field registry of one entity type. Pure data.
type Catalog struct {
	Entity domain.EntityType
	Fields []FieldOption
}

// MenuItem is the picker projection of one field.
type MenuItem struct {
	Label    string `json:"label"`
	Value    string `json:"value"`
	Required bool   `json:"required"`
}

// MenuGroup collects sibling fields for a two-level picker.
type MenuGroup struct {
	Name  string     `json:"name"`
	Items []MenuItem `json:"items"`
}

// group derives the picker group from the prefix before the first '.' or
// '_' in the key. Keys without a separator fall into the unnamed group.
func group(key string) string {
	if i := strings.IndexAny(key, "._"); i > 0 {
		return key[:i]
	}
	return ""
}

// Menu returns the grouped picker projection, preserving catalog order.
// Divider entries terminate nothing; they are skipped here and in Lookup,
// so both projections keep the same key set.
func (c Catalog) Menu() []MenuGroup {
	var groups []MenuGroup
	at := map[string]int{}
	for _, f := range c.Fields {
		if f.Extra.Divider {
			continue
		}
		g := group(f.Value)
		i, ok := at[g]
		if !ok {
			i = len(groups)
			at[g] = i
			groups = append(groups, MenuGroup{Name: g})
		}
		groups[i].Items = append(groups[i].Items, MenuItem{Label: f.Label, Value: f.Value, Required: f.Required})
	}
	return groups
}

// Lookup returns the key to field projection used at validation and
// compile time.
func (c Catalog) Lookup() map[string]FieldOption {
	m := make(map[string]FieldOption, len(c.Fields))
	for _, f := range c.Fields {
		if f.Extra.Divider {
			continue
		}
		m[f.Value] = f
	}
	return m
}

// CatalogFor returns the static catalog of an entity type.
func CatalogFor(entity domain.EntityType) Catalog {
	switch entity {
	case domain.EntityJob:
		return JobCatalog
	case domain.EntityVehicle:
		return VehicleCatalog
	case domain.EntityShipment:
		return ShipmentCatalog
	}
	return Catalog{Entity: entity}
}

func divider() FieldOption {
	return FieldOption{Extra: Extra{Divider: true}}
}
