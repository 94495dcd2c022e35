package domain

// EntityType identifies one of the three importable table kinds.
type EntityType string

const (
	EntityJob      EntityType = "job"
	EntityVehicle  EntityType = "vehicle"
	EntityShipment EntityType = "shipment"
)

func (e EntityType) Valid() bool {
	switch e {
	case EntityJob, EntityVehicle, EntityShipment:
		return true
	}
	return false
}

// EntityTypes lists all importable kinds in a stable order.
func EntityTypes() []EntityType {
	return []EntityType{EntityJob, EntityVehicle, EntityShipment}
}

// RawTable holds one imported table. Rows carry the cells of the imported
// columns; AttachedRows carry the cells of user-added synthetic columns at
// the same row positions. len(Header) equals the imported column count, so
// attached column j addresses global column index len(Header)+j.
type RawTable struct {
	Header       []string   `json:"header"`
	Rows         [][]string `json:"rows"`
	AttachedRows [][]string `json:"attachedRows,omitempty"`
}

// ColumnCount returns imported plus attached column count.
func (t RawTable) ColumnCount() int {
	n := len(t.Header)
	if len(t.AttachedRows) > 0 {
		n += len(t.AttachedRows[0])
	}
	return n
}

// Cell returns the value at (row, global column), or "" when out of range.
func (t RawTable) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 {
		return ""
	}
	if col < len(t.Header) {
		if col < len(t.Rows[row]) {
			return t.Rows[row][col]
		}
		return ""
	}
	attached := col - len(t.Header)
	if row < len(t.AttachedRows) && attached < len(t.AttachedRows[row]) {
		return t.AttachedRows[row][attached]
	}
	return ""
}

// DataMapping associates one column index with a destination field key.
type DataMapping struct {
	Index int    `json:"index"`
	Value string `json:"value"`
}

// MetaMapping carries a table-wide setting that is not bound to a column,
// e.g. the routing profile for all vehicles.
type MetaMapping struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// MapConfig is the full mapping configuration of one entity table.
type MapConfig struct {
	DataMappings []DataMapping `json:"dataMappings"`
	MetaMappings []MetaMapping `json:"metaMappings"`
}

// FieldFor returns the field key mapped to the column, if any.
func (c MapConfig) FieldFor(col int) (string, bool) {
	for _, m := range c.DataMappings {
		if m.Index == col {
			return m.Value, true
		}
	}
	return "", false
}

// ColumnFor returns the column mapped to the field key, if any.
func (c MapConfig) ColumnFor(fieldKey string) (int, bool) {
	for _, m := range c.DataMappings {
		if m.Value == fieldKey {
			return m.Index, true
		}
	}
	return -1, false
}

// MappingEnvelope wraps a persisted MapConfig with staleness metadata.
type MappingEnvelope struct {
	MapConfig MapConfig `json:"map_config"`
	Timestamp string    `json:"timestamp" format:"date-time"`
	Version   int       `json:"version"`
}

// InputErrorInfo locates one validation failure in a table. Ephemeral,
// recomputed from the current table and mapping, never persisted.
type InputErrorInfo struct {
	RowIndex    int    `json:"rowIndex"`
	ColumnIndex int    `json:"columnIndex"`
	Message     string `json:"message"`
}

// Coordinate is a (lat, lng) pair in canonical order.
type Coordinate [2]float64

func (c Coordinate) Lat() float64 { return c[0] }
func (c Coordinate) Lng() float64 { return c[1] }

// Locations is the deduplicated coordinate table of one request.
type Locations struct {
	Location []Coordinate `json:"location"`
}

// Job is one normalized delivery/service stop.
type Job struct {
	ID            string     `json:"id"`
	Description   string     `json:"description,omitempty"`
	LocationIndex int        `json:"location_index"`
	Service       int64      `json:"service,omitempty"`
	Setup         int64      `json:"setup,omitempty"`
	Priority      int        `json:"priority,omitempty"`
	Skills        []int      `json:"skills,omitempty"`
	Zones         []int      `json:"zones,omitempty"`
	Pickup        []int64    `json:"pickup,omitempty"`
	Delivery      []int64    `json:"delivery,omitempty"`
	TimeWindows   [][2]int64 `json:"time_windows,omitempty"`
}

// Vehicle is one normalized vehicle definition.
type Vehicle struct {
	ID          string    `json:"id"`
	Description string    `json:"description,omitempty"`
	Profile     string    `json:"profile,omitempty"`
	StartIndex  int       `json:"start_index"`
	EndIndex    *int      `json:"end_index,omitempty"`
	Capacity    []int64   `json:"capacity,omitempty"`
	Skills      []int     `json:"skills,omitempty"`
	DepotIDs    []int     `json:"depot_ids,omitempty"`
	TimeWindow  *[2]int64 `json:"time_window,omitempty"`
	SpeedFactor float64   `json:"speed_factor,omitempty"`
	MaxTasks    int       `json:"max_tasks,omitempty"`
	FixedCost   int64     `json:"fixed_cost,omitempty"`
}

// ShipmentStep is the pickup or delivery half of a shipment.
type ShipmentStep struct {
	ID          string      `json:"id"`
	Description string      `json:"description,omitempty"`
	Location    *Coordinate `json:"location,omitempty"`
	Service     int64       `json:"service,omitempty"`
	TimeWindows [][2]int64  `json:"time_windows,omitempty"`
}

// Shipment is one normalized pickup+delivery pair.
type Shipment struct {
	Pickup   ShipmentStep `json:"pickup"`
	Delivery ShipmentStep `json:"delivery"`
	Amount   []int64      `json:"amount,omitempty"`
	Skills   []int        `json:"skills,omitempty"`
	Priority int          `json:"priority,omitempty"`
}

// Options carries table-wide solver settings collected from meta mappings.
type Options struct {
	Objective   string `json:"objective,omitempty"`
	RoutingMode string `json:"routing_mode,omitempty"`
}

// OptimizationRequest is the compiled payload submitted to the solver.
// Immutable after submission.
type OptimizationRequest struct {
	Jobs      []Job      `json:"jobs,omitempty"`
	Vehicles  []Vehicle  `json:"vehicles,omitempty"`
	Shipments []Shipment `json:"shipments,omitempty"`
	Locations Locations  `json:"locations"`
	Options   Options    `json:"options,omitempty"`
}

// OptimizationResult is one persisted solver run outcome.
type OptimizationResult struct {
	ID           string  `json:"id"`
	JobID        string  `json:"job_id"`
	Title        string  `json:"title"`
	ResponseData string  `json:"response_data,omitempty"`
	SharedURL    *string `json:"shared_url,omitempty"`
	Status       string  `json:"status"`
	SolutionTime float64 `json:"solution_time"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
}

// Event is one append-only log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIKey authenticates a caller of the HTTP API.
type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
