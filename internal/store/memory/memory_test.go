package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"fleetwatch/tracking/internal/model"
	"fleetwatch/tracking/internal/store"
)

func newVehicleStore(t *testing.T) *Store {
	t.Helper()
	st := New()
	ctx := context.Background()
	if err := st.UpsertVehicle(ctx, model.Vehicle{ID: "v1", OrgID: "org", Label: "Bus 1", Status: model.VehicleActive}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := st.UpsertVehicle(ctx, model.Vehicle{ID: "v2", OrgID: "org", Label: "Bus 2", Status: model.VehicleInactive}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	return st
}

func TestRecordPositionUpdatesSnapshotAndLog(t *testing.T) {
	st := newVehicleStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC)
	heading := 90.0

	rec, err := st.RecordPosition(ctx, model.PositionRecord{VehicleID: "v1", Latitude: 33.8938, Longitude: 35.5018, Speed: 42.3, Heading: &heading, RecordedAt: at})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.ID != 1 {
		t.Fatalf("expected first id 1, got %d", rec.ID)
	}
	heading = 10

	vehicle, _ := st.GetVehicle(ctx, "v1")
	if vehicle.Position == nil || vehicle.Position.Latitude != 33.8938 || !vehicle.Position.RecordedAt.Equal(at) {
		t.Fatalf("snapshot not updated: %+v", vehicle.Position)
	}
	if *vehicle.Position.Heading != 90 {
		t.Fatalf("snapshot shares caller memory")
	}
	log, _ := st.ListPositions(ctx, "v1", 10)
	if len(log) != 1 || log[0].Speed != 42.3 {
		t.Fatalf("unexpected log %+v", log)
	}
}

func TestRecordPositionUnknownVehicle(t *testing.T) {
	st := New()
	_, err := st.RecordPosition(context.Background(), model.PositionRecord{VehicleID: "missing", RecordedAt: time.Now()})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListPositionsOrdersByTimeThenID(t *testing.T) {
	st := newVehicleStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC)
	for _, ts := range []time.Time{at, at.Add(time.Minute), at, at.Add(-time.Minute)} {
		if _, err := st.RecordPosition(ctx, model.PositionRecord{VehicleID: "v1", RecordedAt: ts}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	log, _ := st.ListPositions(ctx, "v1", 0)
	wantIDs := []int64{2, 3, 1, 4}
	for i, want := range wantIDs {
		if log[i].ID != want {
			t.Fatalf("position %d: expected id %d, got %d", i, want, log[i].ID)
		}
	}
	limited, _ := st.ListPositions(ctx, "v1", 2)
	if len(limited) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestListPositionsInRangeIsHalfOpen(t *testing.T) {
	st := newVehicleStore(t)
	ctx := context.Background()
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	for _, ts := range []time.Time{from.Add(-time.Second), from, to.Add(-time.Second), to} {
		if _, err := st.RecordPosition(ctx, model.PositionRecord{VehicleID: "v1", RecordedAt: ts}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	recs, _ := st.ListPositionsInRange(ctx, []string{"v1"}, from, to)
	if len(recs) != 2 || !recs[0].RecordedAt.Equal(from) {
		t.Fatalf("unexpected range result %+v", recs)
	}
	none, _ := st.ListPositionsInRange(ctx, []string{}, from, to)
	if len(none) != 0 {
		t.Fatalf("empty filter should match nothing")
	}
}

func TestListCurrentSkipsInactiveAndUnknown(t *testing.T) {
	st := newVehicleStore(t)
	vehicles, _ := st.ListCurrent(context.Background(), []string{"v1", "v2", "v1", "ghost"})
	if len(vehicles) != 1 || vehicles[0].ID != "v1" {
		t.Fatalf("unexpected current set %+v", vehicles)
	}
	if vehicles[0].Position != nil {
		t.Fatalf("expected nil position before first report")
	}
}

func TestUpsertVehicleKeepsPosition(t *testing.T) {
	st := newVehicleStore(t)
	ctx := context.Background()
	if _, err := st.RecordPosition(ctx, model.PositionRecord{VehicleID: "v1", Latitude: 1, RecordedAt: time.Now()}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := st.UpsertVehicle(ctx, model.Vehicle{ID: "v1", OrgID: "org", Label: "Renamed", Status: model.VehicleActive}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	vehicle, _ := st.GetVehicle(ctx, "v1")
	if vehicle.Label != "Renamed" || vehicle.Position == nil {
		t.Fatalf("unexpected vehicle %+v", vehicle)
	}
}

func TestNotificationsReadState(t *testing.T) {
	st := New()
	ctx := context.Background()
	if err := st.UpsertGuardian(ctx, model.Guardian{ID: "g1", OrgID: "org"}); err != nil {
		t.Fatalf("guardian: %v", err)
	}
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"n1", "n2", "n3"} {
		n := model.Notification{ID: id, GuardianID: "g1", Message: "m", Category: model.CategoryGeneral, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := st.InsertNotification(ctx, n); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if err := st.InsertNotification(ctx, model.Notification{ID: "x", GuardianID: "nobody"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected unknown guardian to fail, got %v", err)
	}

	ok, _ := st.MarkNotificationRead(ctx, "n1", "g1", base)
	if !ok {
		t.Fatalf("expected owned notification to be marked")
	}
	ok, _ = st.MarkNotificationRead(ctx, "n1", "g1", base.Add(time.Hour))
	if !ok {
		t.Fatalf("expected repeated mark to succeed")
	}
	list, _ := st.ListNotifications(ctx, "g1", false, 0)
	if list[0].ID != "n3" || !list[2].ReadAt.Equal(base) {
		t.Fatalf("unexpected list %+v", list)
	}
	if ok, _ := st.MarkNotificationRead(ctx, "n2", "other", base); ok {
		t.Fatalf("foreign guardian must not mark")
	}

	count, _ := st.MarkAllNotificationsRead(ctx, "g1", base)
	if count != 2 {
		t.Fatalf("expected 2 transitions, got %d", count)
	}
	unread, _ := st.CountUnreadNotifications(ctx, "g1")
	if unread != 0 {
		t.Fatalf("expected no unread, got %d", unread)
	}
}

func TestListAttendanceFilters(t *testing.T) {
	st := newVehicleStore(t)
	ctx := context.Background()
	if err := st.UpsertGuardian(ctx, model.Guardian{ID: "g1", OrgID: "org"}); err != nil {
		t.Fatalf("guardian: %v", err)
	}
	for _, id := range []string{"r1", "r2"} {
		if err := st.UpsertRider(ctx, model.Rider{ID: id, OrgID: "org", GuardianID: "g1"}); err != nil {
			t.Fatalf("rider: %v", err)
		}
	}
	base := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
	recs := []model.AttendanceRecord{
		{ID: "a1", RiderID: "r1", VehicleID: "v1", RouteID: "rt", LegType: model.LegPickup, RecordedAt: base},
		{ID: "a2", RiderID: "r2", VehicleID: "v1", RouteID: "rt", LegType: model.LegDropoff, RecordedAt: base.Add(time.Hour)},
		{ID: "a3", RiderID: "r1", VehicleID: "v2", RouteID: "rt", LegType: model.LegPickup, RecordedAt: base.Add(2 * time.Hour)},
	}
	for _, rec := range recs {
		if err := st.InsertAttendance(ctx, rec); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	byRider, _ := st.ListAttendance(ctx, store.AttendanceFilter{RiderIDs: []string{"r1"}})
	if len(byRider) != 2 || byRider[0].ID != "a3" {
		t.Fatalf("unexpected rider filter %+v", byRider)
	}
	from := base.Add(30 * time.Minute)
	to := base.Add(2 * time.Hour)
	windowed, _ := st.ListAttendance(ctx, store.AttendanceFilter{From: &from, To: &to})
	if len(windowed) != 1 || windowed[0].ID != "a2" {
		t.Fatalf("unexpected window %+v", windowed)
	}
	none, _ := st.ListAttendance(ctx, store.AttendanceFilter{VehicleIDs: []string{}})
	if len(none) != 0 {
		t.Fatalf("empty filter should match nothing")
	}
	pickups, _ := st.ListAttendance(ctx, store.AttendanceFilter{LegType: model.LegPickup, Limit: 1})
	if len(pickups) != 1 || pickups[0].ID != "a3" {
		t.Fatalf("unexpected leg filter %+v", pickups)
	}
}
