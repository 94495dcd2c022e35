package compile

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"routeline/internal/domain"
	"routeline/internal/geo"
)

func jobState(header []string, rows [][]string, mappings []domain.DataMapping, sel []bool) geo.EntityState {
	return geo.EntityState{
		Raw:      domain.RawTable{Header: header, Rows: rows},
		Config:   domain.MapConfig{DataMappings: mappings},
		Selected: sel,
	}
}

func TestThreeRowImportCompilesSelectedRowsInOrder(t *testing.T) {
	in := Input{
		Jobs: jobState(
			[]string{"id", "lat", "lng"},
			[][]string{
				{"a", "46.1", "-117.1"},
				{"b", "46.2", "-117.2"},
				{"c", "46.3", "-117.3"},
			},
			[]domain.DataMapping{
				{Index: 0, Value: "id"},
				{Index: 1, Value: "location_lat"},
				{Index: 2, Value: "location_lng"},
			},
			[]bool{true, false, true},
		),
	}

	req, err := Build(in)
	if err != nil {
		t.Fatal(err)
	}
	if len(req.Jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(req.Jobs))
	}
	if req.Jobs[0].ID != "a" || req.Jobs[1].ID != "c" {
		t.Fatalf("ids %q %q, want a c", req.Jobs[0].ID, req.Jobs[1].ID)
	}
	if req.Jobs[0].LocationIndex != 0 || req.Jobs[1].LocationIndex != 1 {
		t.Fatalf("location indices %d %d", req.Jobs[0].LocationIndex, req.Jobs[1].LocationIndex)
	}
	if len(req.Locations.Location) != 2 {
		t.Fatalf("got %d locations", len(req.Locations.Location))
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	in := Input{
		Jobs: jobState(
			[]string{"loc", "skills", "start"},
			[][]string{{"46.1,-117.1", "1,2", "08:30"}, {"46.2,-117.2", "3", "09:00"}},
			[]domain.DataMapping{
				{Index: 0, Value: "location"},
				{Index: 1, Value: "skills"},
				{Index: 2, Value: "start_time"},
			},
			nil,
		),
		Vehicles: jobState(
			[]string{"start"},
			[][]string{{"46.1,-117.1"}},
			[]domain.DataMapping{{Index: 0, Value: "start_location"}},
			nil,
		),
	}

	first, err := Build(in)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Build(in)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("payloads differ:\n%s\n%s", a, b)
	}
}

func TestUnresolvedJobLocationIsHardError(t *testing.T) {
	in := Input{
		Jobs: jobState(
			[]string{"loc"},
			[][]string{{"46.1,-117.1"}, {"not a pair"}},
			[]domain.DataMapping{{Index: 0, Value: "location"}},
			nil,
		),
	}

	_, err := Build(in)
	if err == nil {
		t.Fatal("expected error")
	}
	var re *RowError
	if !errors.As(err, &re) {
		t.Fatalf("got %T, want *RowError", err)
	}
	if re.Row != 1 || re.Field != "location" || re.Entity != domain.EntityJob {
		t.Fatalf("error locates %s row %d field %s", re.Entity, re.Row, re.Field)
	}
	if !strings.Contains(re.Error(), "row 2") {
		t.Fatalf("message %q does not name the row", re.Error())
	}
}

func TestStartTimeCompilesToHourWideWindow(t *testing.T) {
	in := Input{
		Jobs: jobState(
			[]string{"loc", "start"},
			[][]string{{"46.1,-117.1", "08:30"}},
			[]domain.DataMapping{
				{Index: 0, Value: "location"},
				{Index: 1, Value: "start_time"},
			},
			nil,
		),
	}

	req, err := Build(in)
	if err != nil {
		t.Fatal(err)
	}
	want := [][2]int64{{510, 570}}
	if !reflect.DeepEqual(req.Jobs[0].TimeWindows, want) {
		t.Fatalf("windows %v, want %v", req.Jobs[0].TimeWindows, want)
	}
}

func TestSkillsIgnoreNonNumericTokens(t *testing.T) {
	in := Input{
		Jobs: jobState(
			[]string{"loc", "skills"},
			[][]string{{"46.1,-117.1", "1, x, 3"}},
			[]domain.DataMapping{
				{Index: 0, Value: "location"},
				{Index: 1, Value: "skills"},
			},
			nil,
		),
	}

	req, err := Build(in)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(req.Jobs[0].Skills, []int{1, 3}) {
		t.Fatalf("skills %v", req.Jobs[0].Skills)
	}
}

func TestCombinedAmountMappingOverwritesSlots(t *testing.T) {
	in := Input{
		Vehicles: jobState(
			[]string{"start", "cap1", "caps"},
			[][]string{{"46.1,-117.1", "5", "[10, 20]"}},
			[]domain.DataMapping{
				{Index: 0, Value: "start_location"},
				{Index: 1, Value: "capacity_1"},
				{Index: 2, Value: "capacity_array"},
			},
			nil,
		),
	}

	req, err := Build(in)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(req.Vehicles[0].Capacity, []int64{10, 20}) {
		t.Fatalf("capacity %v, want combined array to win", req.Vehicles[0].Capacity)
	}

	// Reversed mapping order: the slot is processed last and wins.
	in.Vehicles.Config.DataMappings = []domain.DataMapping{
		{Index: 0, Value: "start_location"},
		{Index: 2, Value: "capacity_array"},
		{Index: 1, Value: "capacity_1"},
	}
	req, err = Build(in)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(req.Vehicles[0].Capacity, []int64{5, 20}) {
		t.Fatalf("capacity %v, want slot overlaid on array", req.Vehicles[0].Capacity)
	}
}

func TestVehicleDefaults(t *testing.T) {
	in := Input{
		Vehicles: jobState(
			[]string{"start"},
			[][]string{{"46.1,-117.1"}, {"46.2,-117.2"}},
			[]domain.DataMapping{{Index: 0, Value: "start_location"}},
			nil,
		),
	}

	req, err := Build(in)
	if err != nil {
		t.Fatal(err)
	}
	if req.Vehicles[0].ID != "1" || req.Vehicles[1].ID != "2" {
		t.Fatalf("default ids %q %q", req.Vehicles[0].ID, req.Vehicles[1].ID)
	}
	if req.Vehicles[0].EndIndex != nil {
		t.Fatal("unmapped end produced an index")
	}
}

func TestMappedButUnparseableVehicleEndIsError(t *testing.T) {
	in := Input{
		Vehicles: jobState(
			[]string{"start", "end"},
			[][]string{{"46.1,-117.1", "garbage"}},
			[]domain.DataMapping{
				{Index: 0, Value: "start_location"},
				{Index: 1, Value: "end_location"},
			},
			nil,
		),
	}

	_, err := Build(in)
	var re *RowError
	if !errors.As(err, &re) || re.Field != "end_location" {
		t.Fatalf("got %v, want end_location row error", err)
	}

	// A blank end cell is an omission, not an error.
	in.Vehicles.Raw.Rows[0][1] = ""
	req, err := Build(in)
	if err != nil {
		t.Fatal(err)
	}
	if req.Vehicles[0].EndIndex != nil {
		t.Fatal("blank end produced an index")
	}
}

func TestSharedCoordinateResolvesToSameIndex(t *testing.T) {
	in := Input{
		Jobs: jobState(
			[]string{"lat", "lng"},
			[][]string{{"46.9099", "-117.082"}},
			[]domain.DataMapping{
				{Index: 0, Value: "location_lat"},
				{Index: 1, Value: "location_lng"},
			},
			nil,
		),
		Vehicles: jobState(
			[]string{"start"},
			[][]string{{"46.9099, -117.082"}},
			[]domain.DataMapping{{Index: 0, Value: "start_location"}},
			nil,
		),
	}

	req, err := Build(in)
	if err != nil {
		t.Fatal(err)
	}
	if req.Jobs[0].LocationIndex != req.Vehicles[0].StartIndex {
		t.Fatalf("job index %d != vehicle start %d", req.Jobs[0].LocationIndex, req.Vehicles[0].StartIndex)
	}
	if len(req.Locations.Location) != 1 {
		t.Fatalf("got %d locations, want 1", len(req.Locations.Location))
	}
}

func TestShipmentCompilesBothHalves(t *testing.T) {
	in := Input{
		Shipments: jobState(
			[]string{"from", "to", "amt"},
			[][]string{{"46.1,-117.1", "46.2,-117.2", "7"}},
			[]domain.DataMapping{
				{Index: 0, Value: "pickup.location"},
				{Index: 1, Value: "delivery.location"},
				{Index: 2, Value: "amount_1"},
			},
			nil,
		),
	}

	req, err := Build(in)
	if err != nil {
		t.Fatal(err)
	}
	s := req.Shipments[0]
	if s.Pickup.Location == nil || s.Delivery.Location == nil {
		t.Fatal("missing step location")
	}
	if s.Pickup.Location.Lat() != 46.1 || s.Delivery.Location.Lat() != 46.2 {
		t.Fatalf("step coords %v %v", s.Pickup.Location, s.Delivery.Location)
	}
	if !reflect.DeepEqual(s.Amount, []int64{7}) {
		t.Fatalf("amount %v", s.Amount)
	}
	if s.Pickup.ID != "1" || s.Delivery.ID != "1" {
		t.Fatalf("default step ids %q %q", s.Pickup.ID, s.Delivery.ID)
	}
}

func TestMetaMappingsCompileToOptions(t *testing.T) {
	in := Input{
		Jobs: jobState(
			[]string{"loc"},
			[][]string{{"46.1,-117.1"}},
			[]domain.DataMapping{{Index: 0, Value: "location"}},
			nil,
		),
	}
	in.Jobs.Config.MetaMappings = []domain.MetaMapping{
		{Key: "objective", Value: "min-schedule-completion-time"},
		{Key: "routing_mode", Value: "truck"},
	}

	req, err := Build(in)
	if err != nil {
		t.Fatal(err)
	}
	if req.Options.Objective != "min-schedule-completion-time" || req.Options.RoutingMode != "truck" {
		t.Fatalf("options %+v", req.Options)
	}
}
