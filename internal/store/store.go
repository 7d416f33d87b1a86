// Package store declares the persistence contract shared by the Postgres
// implementation (internal/db) and the in-memory implementation
// (internal/store/memory).
//
// Filter slices follow one rule everywhere: a nil slice leaves the column
// unconstrained, a non-nil empty slice matches nothing.
package store

import (
	"context"
	"errors"
	"time"

	"fleetwatch/tracking/internal/model"
)

var ErrNotFound = errors.New("store: not found")

type RouteStop struct {
	RouteID string
	StopID  string
}

type RouteVehicle struct {
	RouteID   string
	VehicleID string
}

// Reference is the organizational reference data the access resolver and the
// report aggregator join against.
type Reference interface {
	GetVehicle(ctx context.Context, vehicleID string) (model.Vehicle, error)
	ListVehicles(ctx context.Context, orgID string) ([]model.Vehicle, error)
	VehicleIDsByOrg(ctx context.Context, orgID string) ([]string, error)
	VehicleIDsByOperator(ctx context.Context, operatorID string) ([]string, error)

	GetRider(ctx context.Context, riderID string) (model.Rider, error)
	ListRidersByGuardian(ctx context.Context, guardianID string) ([]model.Rider, error)
	ListRidersByStops(ctx context.Context, stopIDs []string) ([]model.Rider, error)
	ListRidersByOrg(ctx context.Context, orgID string) ([]model.Rider, error)
	GuardianExists(ctx context.Context, guardianID string) (bool, error)

	ListRoutes(ctx context.Context, orgID string) ([]model.Route, error)
	RouteStopsByStops(ctx context.Context, stopIDs []string) ([]RouteStop, error)
	RouteStopsByRoutes(ctx context.Context, routeIDs []string) ([]RouteStop, error)
	RouteVehiclesByRoutes(ctx context.Context, routeIDs []string) ([]RouteVehicle, error)
	RouteVehiclesByVehicles(ctx context.Context, vehicleIDs []string) ([]RouteVehicle, error)
}

// ReferenceWriter is used by fixture loading only; the service exposes no
// administrative CRUD.
type ReferenceWriter interface {
	UpsertVehicle(ctx context.Context, vehicle model.Vehicle) error
	UpsertRoute(ctx context.Context, route model.Route) error
	UpsertStop(ctx context.Context, stop model.Stop) error
	UpsertGuardian(ctx context.Context, guardian model.Guardian) error
	UpsertRider(ctx context.Context, rider model.Rider) error
	LinkRouteStop(ctx context.Context, routeID, stopID string) error
	LinkRouteVehicle(ctx context.Context, routeID, vehicleID string) error
}

type Positions interface {
	// RecordPosition overwrites the vehicle snapshot and appends rec to the
	// log as one unit. It returns ErrNotFound when the vehicle does not exist.
	RecordPosition(ctx context.Context, rec model.PositionRecord) (model.PositionRecord, error)
	// ListCurrent returns active vehicles among vehicleIDs.
	ListCurrent(ctx context.Context, vehicleIDs []string) ([]model.Vehicle, error)
	// ListPositions returns the newest records first.
	ListPositions(ctx context.Context, vehicleID string, limit int) ([]model.PositionRecord, error)
	// ListPositionsInRange returns records with from <= recorded_at < to,
	// ordered by vehicle then oldest first.
	ListPositionsInRange(ctx context.Context, vehicleIDs []string, from, to time.Time) ([]model.PositionRecord, error)
}

type AttendanceFilter struct {
	RiderIDs   []string
	VehicleIDs []string
	RouteIDs   []string
	LegType    model.LegType
	From       *time.Time
	To         *time.Time
	Limit      int
}

type Attendance interface {
	InsertAttendance(ctx context.Context, rec model.AttendanceRecord) error
	// InsertAttendanceOnce inserts rec unless a record for the same rider,
	// vehicle, route and leg exists with from <= recorded_at < to. The check
	// and the insert are atomic. It reports false when rec was not inserted.
	InsertAttendanceOnce(ctx context.Context, rec model.AttendanceRecord, from, to time.Time) (bool, error)
	// ListAttendance returns the newest records first. Limit <= 0 is unbounded.
	ListAttendance(ctx context.Context, filter AttendanceFilter) ([]model.AttendanceRecord, error)
}

type Notifications interface {
	InsertNotification(ctx context.Context, n model.Notification) error
	ListNotifications(ctx context.Context, guardianID string, unreadOnly bool, limit int) ([]model.Notification, error)
	// MarkNotificationRead reports false when the notification does not exist
	// or belongs to another guardian. Already read records stay untouched.
	MarkNotificationRead(ctx context.Context, notificationID, guardianID string, readAt time.Time) (bool, error)
	MarkAllNotificationsRead(ctx context.Context, guardianID string, readAt time.Time) (int, error)
	CountUnreadNotifications(ctx context.Context, guardianID string) (int, error)
}

type Reports interface {
	InsertReportSummary(ctx context.Context, summary model.ReportSummary) error
	ListReportSummaries(ctx context.Context, orgID string, limit int) ([]model.ReportSummary, error)
}

type Store interface {
	Reference
	ReferenceWriter
	Positions
	Attendance
	Notifications
	Reports
}
