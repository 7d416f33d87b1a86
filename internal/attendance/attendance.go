// Package attendance records rider boarding and alighting events and serves
// them back to callers inside the matching scope.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fleetwatch/tracking/internal/access"
	"fleetwatch/tracking/internal/apperr"
	"fleetwatch/tracking/internal/clock"
	"fleetwatch/tracking/internal/logging"
	"fleetwatch/tracking/internal/metrics"
	"fleetwatch/tracking/internal/model"
	"fleetwatch/tracking/internal/notify"
	"fleetwatch/tracking/internal/store"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

type Store interface {
	store.Attendance
	GetRider(ctx context.Context, riderID string) (model.Rider, error)
	RouteStopsByStops(ctx context.Context, stopIDs []string) ([]store.RouteStop, error)
	RouteVehiclesByRoutes(ctx context.Context, routeIDs []string) ([]store.RouteVehicle, error)
}

// Notifier is the part of notify.Service the recorder depends on.
type Notifier interface {
	Notify(ctx context.Context, req notify.Request) (model.Notification, error)
}

type Options struct {
	// UniquePerDay rejects a second record for the same rider, vehicle, route
	// and leg within one service day.
	UniquePerDay bool
	// Location defines service-day boundaries. Nil means UTC.
	Location *time.Location
}

type MarkRequest struct {
	RiderID   string
	VehicleID string
	RouteID   string
	LegType   string
	Status    string
	Latitude  *float64
	Longitude *float64
}

type Filter struct {
	RiderID   string
	VehicleID string
	From      *time.Time
	To        *time.Time
	Limit     int
}

type Service struct {
	store    Store
	resolver *access.Resolver
	notifier Notifier
	clock    clock.Clock
	metrics  *metrics.Metrics
	logger   *slog.Logger
	opts     Options
}

// NewService builds the recorder. A nil notifier disables guardian
// notifications.
func NewService(st Store, resolver *access.Resolver, notifier Notifier, clk clock.Clock, m *metrics.Metrics, logger *slog.Logger, opts Options) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Service{store: st, resolver: resolver, notifier: notifier, clock: clk, metrics: m, logger: logger, opts: opts}
}

// Mark validates req against the route topology and the caller's scope, then
// inserts one immutable record. Checks run in a fixed order and the first
// failure is returned.
func (s *Service) Mark(ctx context.Context, caller access.Caller, req MarkRequest) (model.AttendanceRecord, error) {
	leg, err := model.ParseLegType(req.LegType)
	if err != nil {
		return model.AttendanceRecord{}, apperr.Validation(apperr.CodeInvalidLegType)
	}
	status, err := model.ParseAttendanceStatus(req.Status)
	if err != nil {
		return model.AttendanceRecord{}, apperr.Validation(apperr.CodeInvalidStatus)
	}
	rider, err := s.riderOnRoute(ctx, req.RiderID, req.RouteID)
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	if err := s.routeOnVehicle(ctx, req.RouteID, req.VehicleID); err != nil {
		return model.AttendanceRecord{}, err
	}
	allowed, err := s.resolver.CanOperate(ctx, caller, req.VehicleID)
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	if !allowed {
		return model.AttendanceRecord{}, apperr.Denied()
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		return model.AttendanceRecord{}, apperr.Validation(apperr.CodeInvalidCoordinate)
	}
	if req.Latitude != nil && !model.ValidCoordinate(*req.Latitude, *req.Longitude) {
		return model.AttendanceRecord{}, apperr.Validation(apperr.CodeInvalidCoordinate)
	}

	now := s.clock.Now().UTC()
	rec := model.AttendanceRecord{
		ID:         uuid.NewString(),
		RiderID:    rider.ID,
		VehicleID:  req.VehicleID,
		RouteID:    req.RouteID,
		LegType:    leg,
		Status:     status,
		RecordedBy: caller.ID,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		RecordedAt: now,
	}
	if err := s.insert(ctx, rec); err != nil {
		return model.AttendanceRecord{}, err
	}
	s.metrics.AttendanceMarked(string(leg), string(status))
	s.notifyGuardian(ctx, rider, rec)
	return rec, nil
}

func (s *Service) riderOnRoute(ctx context.Context, riderID, routeID string) (model.Rider, error) {
	rider, err := s.store.GetRider(ctx, riderID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Rider{}, apperr.Validation(apperr.CodeRiderNotOnRoute)
	}
	if err != nil {
		return model.Rider{}, apperr.Storage("get rider", err)
	}
	if rider.StopID == nil {
		return model.Rider{}, apperr.Validation(apperr.CodeRiderNotOnRoute)
	}
	links, err := s.store.RouteStopsByStops(ctx, []string{*rider.StopID})
	if err != nil {
		return model.Rider{}, apperr.Storage("route stops", err)
	}
	for _, link := range links {
		if link.RouteID == routeID {
			return rider, nil
		}
	}
	return model.Rider{}, apperr.Validation(apperr.CodeRiderNotOnRoute)
}

func (s *Service) routeOnVehicle(ctx context.Context, routeID, vehicleID string) error {
	links, err := s.store.RouteVehiclesByRoutes(ctx, []string{routeID})
	if err != nil {
		return apperr.Storage("route vehicles", err)
	}
	for _, link := range links {
		if link.VehicleID == vehicleID {
			return nil
		}
	}
	return apperr.Validation(apperr.CodeRouteNotOnVehicle)
}

// insert stores rec, going through the atomic once-per-service-day insert
// when uniqueness is enabled.
func (s *Service) insert(ctx context.Context, rec model.AttendanceRecord) error {
	var err error
	if s.opts.UniquePerDay {
		from, to := serviceDay(rec.RecordedAt, s.opts.Location)
		var inserted bool
		inserted, err = s.store.InsertAttendanceOnce(ctx, rec, from, to)
		if err == nil && !inserted {
			return apperr.Conflict(apperr.CodeDuplicateAttendance)
		}
	} else {
		err = s.store.InsertAttendance(ctx, rec)
	}
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(apperr.CodeNotFound)
	}
	if err != nil {
		s.metrics.StorageFailure("insert_attendance")
		return apperr.Storage("insert attendance", err)
	}
	return nil
}

// serviceDay returns the [start, end) bounds of the calendar day containing
// t in loc.
func serviceDay(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// notifyGuardian runs after the record is committed; a failure here is logged
// and never reported to the caller.
func (s *Service) notifyGuardian(ctx context.Context, rider model.Rider, rec model.AttendanceRecord) {
	if s.notifier == nil {
		return
	}
	category, message, ok := notificationFor(rider, rec)
	if !ok {
		return
	}
	vehicleID := rec.VehicleID
	_, err := s.notifier.Notify(ctx, notify.Request{
		GuardianID: rider.GuardianID,
		VehicleID:  &vehicleID,
		Message:    message,
		Category:   string(category),
	})
	if err != nil {
		s.logger.Error("attendance notification failed", "attendance_id", rec.ID, "guardian_id", rider.GuardianID, "error", err)
	}
}

func notificationFor(rider model.Rider, rec model.AttendanceRecord) (model.NotificationCategory, string, bool) {
	name := rider.Name
	if name == "" {
		name = "Your rider"
	}
	verb := "picked up"
	category := model.CategoryPickup
	if rec.LegType == model.LegDropoff {
		verb = "dropped off"
		category = model.CategoryDropoff
	}
	switch rec.Status {
	case model.AttendancePresent:
		return category, fmt.Sprintf("%s was %s.", name, verb), true
	case model.AttendanceLate:
		return category, fmt.Sprintf("%s was %s late.", name, verb), true
	case model.AttendanceAbsent:
		return model.CategoryAbsence, fmt.Sprintf("%s was marked absent for %s.", name, rec.LegType), true
	default:
		return "", "", false
	}
}

// List returns records newest first, narrowed to what the caller may read:
// guardians their own riders, drivers and operators the vehicles in scope.
func (s *Service) List(ctx context.Context, caller access.Caller, filter Filter) ([]model.AttendanceRecord, error) {
	query := store.AttendanceFilter{From: filter.From, To: filter.To, Limit: filter.Limit}
	if query.Limit <= 0 {
		query.Limit = defaultListLimit
	}
	if query.Limit > maxListLimit {
		query.Limit = maxListLimit
	}

	switch caller.Role {
	case model.RoleGuardian:
		riders, err := s.resolver.RiderScope(ctx, caller)
		if err != nil {
			return nil, err
		}
		query.RiderIDs, err = narrow(riders, filter.RiderID)
		if err != nil {
			return nil, err
		}
		if filter.VehicleID != "" {
			query.VehicleIDs = []string{filter.VehicleID}
		}
	case model.RoleDriver, model.RoleOperator:
		vehicles, err := s.resolver.Resolve(ctx, caller)
		if err != nil {
			return nil, err
		}
		query.VehicleIDs, err = narrow(vehicles, filter.VehicleID)
		if err != nil {
			return nil, err
		}
		if filter.RiderID != "" {
			query.RiderIDs = []string{filter.RiderID}
		}
	default:
		return []model.AttendanceRecord{}, nil
	}

	records, err := s.store.ListAttendance(ctx, query)
	if err != nil {
		s.metrics.StorageFailure("list_attendance")
		return nil, apperr.Storage("list attendance", err)
	}
	return records, nil
}

func narrow(scope access.Scope, id string) ([]string, error) {
	if id == "" {
		return scope.IDs(), nil
	}
	if !scope.Contains(id) {
		return nil, apperr.Denied()
	}
	return []string{id}, nil
}
