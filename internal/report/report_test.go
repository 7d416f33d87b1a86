package report

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"fleetwatch/tracking/internal/access"
	"fleetwatch/tracking/internal/apperr"
	"fleetwatch/tracking/internal/clock"
	"fleetwatch/tracking/internal/model"
	"fleetwatch/tracking/internal/seed"
	"fleetwatch/tracking/internal/store/memory"
)

var operator = access.Caller{ID: seed.DemoOperator, Role: model.RoleOperator, OrgID: seed.DemoOrg}

func at(day, hour, minute int) time.Time {
	return time.Date(2026, 3, day, hour, minute, 0, 0, time.UTC)
}

// newDemoService seeds two days of activity: bus 1 reports three positions
// over 2 and 3 March, and five attendance records span both routes.
func newDemoService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	fixture, err := seed.Demo()
	if err != nil {
		t.Fatalf("demo fixture: %v", err)
	}
	st := memory.New()
	ctx := context.Background()
	if _, err := seed.Apply(ctx, st, fixture); err != nil {
		t.Fatalf("apply fixture: %v", err)
	}

	positions := []model.PositionRecord{
		{VehicleID: seed.DemoVehicle1, Latitude: 33.8938, Longitude: 35.5018, Speed: 30, RecordedAt: at(2, 7, 0)},
		{VehicleID: seed.DemoVehicle1, Latitude: 33.9011, Longitude: 35.5124, Speed: 50, RecordedAt: at(2, 7, 10)},
		{VehicleID: seed.DemoVehicle1, Latitude: 33.8938, Longitude: 35.5018, Speed: 40, RecordedAt: at(3, 7, 0)},
	}
	for _, rec := range positions {
		if _, err := st.RecordPosition(ctx, rec); err != nil {
			t.Fatalf("record position: %v", err)
		}
	}

	records := []model.AttendanceRecord{
		{ID: "a1", RiderID: seed.DemoRiderNorth, VehicleID: seed.DemoVehicle1, RouteID: seed.DemoRouteNorth, LegType: model.LegPickup, Status: model.AttendancePresent, RecordedAt: at(2, 7, 1)},
		{ID: "a2", RiderID: seed.DemoRiderNorth2, VehicleID: seed.DemoVehicle1, RouteID: seed.DemoRouteNorth, LegType: model.LegPickup, Status: model.AttendanceLate, RecordedAt: at(2, 7, 11)},
		{ID: "a3", RiderID: seed.DemoRiderNorth, VehicleID: seed.DemoVehicle1, RouteID: seed.DemoRouteNorth, LegType: model.LegDropoff, Status: model.AttendanceAbsent, RecordedAt: at(2, 15, 0)},
		{ID: "a4", RiderID: seed.DemoRiderNorth, VehicleID: seed.DemoVehicle1, RouteID: seed.DemoRouteNorth, LegType: model.LegPickup, Status: model.AttendancePresent, RecordedAt: at(3, 7, 1)},
		{ID: "a5", RiderID: seed.DemoRiderSouth, VehicleID: seed.DemoVehicle2, RouteID: seed.DemoRouteSouth, LegType: model.LegPickup, Status: model.AttendancePresent, RecordedAt: at(2, 7, 30)},
	}
	for _, rec := range records {
		if err := st.InsertAttendance(ctx, rec); err != nil {
			t.Fatalf("insert attendance: %v", err)
		}
	}
	return NewService(st, clock.NewFake(at(10, 12, 0)), time.UTC, nil, nil), st
}

func TestAttendanceReportSameDay(t *testing.T) {
	svc, _ := newDemoService(t)
	payload, summaryID, err := svc.Generate(context.Background(), operator, Request{Kind: "attendance", StartDate: "2026-03-02", EndDate: "2026-03-02"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if summaryID == "" {
		t.Fatalf("expected persisted summary id")
	}
	rows := payload.Rows.([]AttendanceRow)
	if len(rows) != 2 || payload.RowCount != 2 {
		t.Fatalf("expected pickup and dropoff rows for one day, got %+v", rows)
	}
	pickup, dropoff := rows[0], rows[1]
	if pickup.Date != "2026-03-02" || pickup.LegType != model.LegPickup || pickup.Present != 2 || pickup.Late != 1 || pickup.Total != 3 {
		t.Fatalf("unexpected pickup row %+v", pickup)
	}
	if dropoff.LegType != model.LegDropoff || dropoff.Absent != 1 || dropoff.Total != 1 {
		t.Fatalf("unexpected dropoff row %+v", dropoff)
	}
}

func TestAttendanceReportRouteFilter(t *testing.T) {
	svc, _ := newDemoService(t)
	payload, _, err := svc.Generate(context.Background(), operator, Request{
		Kind: "attendance", StartDate: "2026-03-01", EndDate: "2026-03-31",
		Filters: Filters{RouteID: seed.DemoRouteSouth},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	rows := payload.Rows.([]AttendanceRow)
	if len(rows) != 1 || rows[0].Present != 1 {
		t.Fatalf("expected only the south loop pickup, got %+v", rows)
	}
}

func TestReversedRangeIsEmptyNotError(t *testing.T) {
	svc, st := newDemoService(t)
	ctx := context.Background()
	for _, kind := range []string{"attendance", "utilization", "route_performance", "maintenance"} {
		payload, summaryID, err := svc.Generate(ctx, operator, Request{Kind: kind, StartDate: "2026-03-05", EndDate: "2026-03-01"})
		if err != nil {
			t.Fatalf("%s: expected no error, got %v", kind, err)
		}
		if payload.RowCount != 0 || summaryID == "" {
			t.Fatalf("%s: unexpected payload %+v", kind, payload)
		}
		encoded, _ := json.Marshal(payload)
		var decoded struct {
			Rows []json.RawMessage `json:"rows"`
		}
		if err := json.Unmarshal(encoded, &decoded); err != nil || decoded.Rows == nil || len(decoded.Rows) != 0 {
			t.Fatalf("%s: expected empty rows array, got %s", kind, encoded)
		}
	}
	summaries, _ := st.ListReportSummaries(ctx, seed.DemoOrg, 0)
	if len(summaries) != 4 {
		t.Fatalf("expected four persisted summaries, got %d", len(summaries))
	}
}

func TestGenerateValidation(t *testing.T) {
	svc, _ := newDemoService(t)
	ctx := context.Background()
	cases := []struct {
		req  Request
		code string
	}{
		{Request{Kind: "revenue", StartDate: "2026-03-01", EndDate: "2026-03-02"}, apperr.CodeInvalidKind},
		{Request{Kind: "attendance", StartDate: "2026-03-01"}, apperr.CodeMissingRange},
		{Request{Kind: "attendance", EndDate: "2026-03-01"}, apperr.CodeMissingRange},
		{Request{Kind: "attendance", StartDate: "03/01/2026", EndDate: "2026-03-02"}, apperr.CodeInvalidDate},
	}
	for _, tc := range cases {
		_, _, err := svc.Generate(ctx, operator, tc.req)
		if apperr.KindOf(err) != apperr.KindValidation || apperr.CodeOf(err) != tc.code {
			t.Fatalf("expected %s, got %v", tc.code, err)
		}
	}
}

func TestGenerateAccess(t *testing.T) {
	svc, _ := newDemoService(t)
	ctx := context.Background()
	req := Request{Kind: "utilization", StartDate: "2026-03-01", EndDate: "2026-03-31"}

	driver := access.Caller{ID: seed.DemoDriver1, Role: model.RoleDriver, OrgID: seed.DemoOrg}
	if _, _, err := svc.Generate(ctx, driver, req); apperr.KindOf(err) != apperr.KindAccessDenied {
		t.Fatalf("expected drivers denied, got %v", err)
	}
	req.Filters = Filters{VehicleID: seed.DemoOtherVehicle}
	if _, _, err := svc.Generate(ctx, operator, req); apperr.KindOf(err) != apperr.KindAccessDenied {
		t.Fatalf("expected foreign vehicle filter denied, got %v", err)
	}
	req.Filters = Filters{RouteID: "55555555-5555-5555-5555-000000000000"}
	if _, _, err := svc.Generate(ctx, operator, req); apperr.KindOf(err) != apperr.KindAccessDenied {
		t.Fatalf("expected unknown route filter denied, got %v", err)
	}

	other := access.Caller{ID: seed.DemoOperator, Role: model.RoleOperator, OrgID: seed.DemoOtherOrg}
	payload, _, err := svc.Generate(ctx, other, Request{Kind: "utilization", StartDate: "2026-03-01", EndDate: "2026-03-31"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	rows := payload.Rows.([]UtilizationRow)
	if len(rows) != 1 || rows[0].VehicleID != seed.DemoOtherVehicle || rows[0].Reports != 0 {
		t.Fatalf("expected only the other org's idle vehicle, got %+v", rows)
	}
}

func TestUtilizationReport(t *testing.T) {
	svc, _ := newDemoService(t)
	payload, _, err := svc.Generate(context.Background(), operator, Request{Kind: "utilization", StartDate: "2026-03-02", EndDate: "2026-03-03"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	rows := payload.Rows.([]UtilizationRow)
	if len(rows) != 3 {
		t.Fatalf("expected a row per org vehicle, got %d", len(rows))
	}
	bus1 := rows[0]
	if bus1.VehicleID != seed.DemoVehicle1 || bus1.Reports != 3 || bus1.ActiveDays != 2 {
		t.Fatalf("unexpected bus 1 row %+v", bus1)
	}
	leg := haversineKm(33.8938, 35.5018, 33.9011, 35.5124)
	if math.Abs(bus1.DistanceKm-2*leg) > 0.001 {
		t.Fatalf("expected distance %.3f, got %.3f", 2*leg, bus1.DistanceKm)
	}
	if bus1.AvgSpeed != 40 || bus1.MaxSpeed != 50 {
		t.Fatalf("unexpected speeds %+v", bus1)
	}
	if bus1.AssignedRiders != 2 || bus1.LoadFactor != 0.05 {
		t.Fatalf("unexpected load %+v", bus1)
	}
	if rows[1].AssignedRiders != 1 || rows[1].Reports != 0 || rows[1].DistanceKm != 0 {
		t.Fatalf("unexpected bus 2 row %+v", rows[1])
	}
}

func TestRoutePerformanceReport(t *testing.T) {
	svc, _ := newDemoService(t)
	payload, _, err := svc.Generate(context.Background(), operator, Request{Kind: "route_performance", StartDate: "2026-03-02", EndDate: "2026-03-02"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	rows := payload.Rows.([]RoutePerformanceRow)
	if len(rows) != 2 {
		t.Fatalf("expected two routes, got %d", len(rows))
	}
	north, south := rows[0], rows[1]
	if north.RouteID != seed.DemoRouteNorth || north.Vehicles != 1 || north.Stops != 2 || north.Riders != 2 {
		t.Fatalf("unexpected north topology %+v", north)
	}
	if north.Total != 3 || north.OnTimeRate != 0.5 {
		t.Fatalf("unexpected north counts %+v", north)
	}
	if south.Vehicles != 2 || south.Riders != 1 || south.OnTimeRate != 1 {
		t.Fatalf("unexpected south row %+v", south)
	}

	filtered, _, err := svc.Generate(context.Background(), operator, Request{
		Kind: "route_performance", StartDate: "2026-03-02", EndDate: "2026-03-02",
		Filters: Filters{VehicleID: seed.DemoVehicle2},
	})
	if err != nil {
		t.Fatalf("generate filtered: %v", err)
	}
	if got := filtered.Rows.([]RoutePerformanceRow); len(got) != 1 || got[0].RouteID != seed.DemoRouteSouth {
		t.Fatalf("expected only routes served by bus 2, got %+v", got)
	}
}

func TestMaintenanceReport(t *testing.T) {
	svc, _ := newDemoService(t)
	payload, _, err := svc.Generate(context.Background(), operator, Request{Kind: "maintenance", StartDate: "2026-03-02", EndDate: "2026-03-03"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	rows := payload.Rows.([]MaintenanceRow)
	if len(rows) != 3 {
		t.Fatalf("expected three vehicles, got %d", len(rows))
	}
	bus1, bus2, bus3 := rows[0], rows[1], rows[2]
	if bus1.Flagged || bus1.ReportsInRange != 3 || bus1.DaysSinceLastReport == nil || *bus1.DaysSinceLastReport != 7 {
		t.Fatalf("unexpected bus 1 row %+v", bus1)
	}
	if !bus2.Flagged || bus2.LastReportAt != nil {
		t.Fatalf("silent vehicle should be flagged %+v", bus2)
	}
	if !bus3.Flagged || bus3.Status != model.VehicleMaintenance {
		t.Fatalf("vehicle in maintenance should be flagged %+v", bus3)
	}
}

func TestListSummaries(t *testing.T) {
	svc, _ := newDemoService(t)
	ctx := context.Background()
	if _, _, err := svc.Generate(ctx, operator, Request{Kind: "attendance", StartDate: "2026-03-02", EndDate: "2026-03-02", Name: "Monday"}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, _, err := svc.Generate(ctx, operator, Request{Kind: "maintenance", StartDate: "2026-03-02", EndDate: "2026-03-03", Filters: Filters{VehicleID: seed.DemoVehicle1}}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	summaries, err := svc.ListSummaries(ctx, operator, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected two summaries, got %d", len(summaries))
	}
	latest := summaries[0]
	if latest.Kind != model.ReportMaintenance || latest.RowCount != 1 || latest.Name != "maintenance 2026-03-02 to 2026-03-03" {
		t.Fatalf("unexpected latest summary %+v", latest)
	}
	if string(latest.Filters) != `{"vehicleId":"`+seed.DemoVehicle1+`"}` {
		t.Fatalf("unexpected filter snapshot %s", latest.Filters)
	}
	if summaries[1].Name != "Monday" || summaries[1].CreatedBy != seed.DemoOperator {
		t.Fatalf("unexpected first summary %+v", summaries[1])
	}
	guardian := access.Caller{ID: seed.DemoGuardian1, Role: model.RoleGuardian}
	if _, err := svc.ListSummaries(ctx, guardian, 0); apperr.KindOf(err) != apperr.KindAccessDenied {
		t.Fatalf("expected guardian denied, got %v", err)
	}
}

func TestHaversineOneDegreeOfLongitudeAtEquator(t *testing.T) {
	if d := haversineKm(0, 0, 0, 1); math.Abs(d-111.195) > 0.01 {
		t.Fatalf("expected ~111.195 km, got %.4f", d)
	}
	if d := haversineKm(33.8938, 35.5018, 33.8938, 35.5018); d != 0 {
		t.Fatalf("expected zero distance, got %f", d)
	}
}
