// Package memory is an in-process implementation of store.Store. It backs the
// test suites and single-node development runs; all state is lost on exit.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"fleetwatch/tracking/internal/model"
	"fleetwatch/tracking/internal/store"
)

type Store struct {
	mu sync.RWMutex

	vehicles      map[string]model.Vehicle
	routes        map[string]model.Route
	stops         map[string]model.Stop
	guardians     map[string]model.Guardian
	riders        map[string]model.Rider
	routeStops    map[store.RouteStop]struct{}
	routeVehicles map[store.RouteVehicle]struct{}

	positions     map[string][]model.PositionRecord
	positionSeq   int64
	attendance    []model.AttendanceRecord
	notifications map[string]model.Notification
	reports       []model.ReportSummary
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		vehicles:      make(map[string]model.Vehicle),
		routes:        make(map[string]model.Route),
		stops:         make(map[string]model.Stop),
		guardians:     make(map[string]model.Guardian),
		riders:        make(map[string]model.Rider),
		routeStops:    make(map[store.RouteStop]struct{}),
		routeVehicles: make(map[store.RouteVehicle]struct{}),
		positions:     make(map[string][]model.PositionRecord),
		notifications: make(map[string]model.Notification),
	}
}

// Reference

func (s *Store) GetVehicle(_ context.Context, vehicleID string) (model.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vehicle, ok := s.vehicles[vehicleID]
	if !ok {
		return model.Vehicle{}, store.ErrNotFound
	}
	return copyVehicle(vehicle), nil
}

func (s *Store) ListVehicles(_ context.Context, orgID string) ([]model.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Vehicle, 0)
	for _, vehicle := range s.vehicles {
		if vehicle.OrgID == orgID {
			out = append(out, copyVehicle(vehicle))
		}
	}
	sortVehicles(out)
	return out, nil
}

func (s *Store) VehicleIDsByOrg(_ context.Context, orgID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0)
	for id, vehicle := range s.vehicles {
		if vehicle.OrgID == orgID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) VehicleIDsByOperator(_ context.Context, operatorID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, 1)
	for id, vehicle := range s.vehicles {
		if vehicle.OperatorID != nil && *vehicle.OperatorID == operatorID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) GetRider(_ context.Context, riderID string) (model.Rider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rider, ok := s.riders[riderID]
	if !ok {
		return model.Rider{}, store.ErrNotFound
	}
	return rider, nil
}

func (s *Store) ListRidersByGuardian(_ context.Context, guardianID string) ([]model.Rider, error) {
	return s.filterRiders(func(r model.Rider) bool { return r.GuardianID == guardianID }), nil
}

func (s *Store) ListRidersByStops(_ context.Context, stopIDs []string) ([]model.Rider, error) {
	if stopIDs == nil {
		return s.filterRiders(func(model.Rider) bool { return true }), nil
	}
	wanted := toSet(stopIDs)
	return s.filterRiders(func(r model.Rider) bool {
		if r.StopID == nil {
			return false
		}
		_, ok := wanted[*r.StopID]
		return ok
	}), nil
}

func (s *Store) ListRidersByOrg(_ context.Context, orgID string) ([]model.Rider, error) {
	return s.filterRiders(func(r model.Rider) bool { return r.OrgID == orgID }), nil
}

func (s *Store) filterRiders(keep func(model.Rider) bool) []model.Rider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Rider, 0)
	for _, rider := range s.riders {
		if keep(rider) {
			out = append(out, rider)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) GuardianExists(_ context.Context, guardianID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.guardians[guardianID]
	return ok, nil
}

func (s *Store) ListRoutes(_ context.Context, orgID string) ([]model.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Route, 0)
	for _, route := range s.routes {
		if route.OrgID == orgID {
			out = append(out, route)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) RouteStopsByStops(_ context.Context, stopIDs []string) ([]store.RouteStop, error) {
	wanted := toSet(stopIDs)
	return s.filterRouteStops(func(link store.RouteStop) bool {
		if stopIDs == nil {
			return true
		}
		_, ok := wanted[link.StopID]
		return ok
	}), nil
}

func (s *Store) RouteStopsByRoutes(_ context.Context, routeIDs []string) ([]store.RouteStop, error) {
	wanted := toSet(routeIDs)
	return s.filterRouteStops(func(link store.RouteStop) bool {
		if routeIDs == nil {
			return true
		}
		_, ok := wanted[link.RouteID]
		return ok
	}), nil
}

func (s *Store) filterRouteStops(keep func(store.RouteStop) bool) []store.RouteStop {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.RouteStop, 0)
	for link := range s.routeStops {
		if keep(link) {
			out = append(out, link)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RouteID != out[j].RouteID {
			return out[i].RouteID < out[j].RouteID
		}
		return out[i].StopID < out[j].StopID
	})
	return out
}

func (s *Store) RouteVehiclesByRoutes(_ context.Context, routeIDs []string) ([]store.RouteVehicle, error) {
	wanted := toSet(routeIDs)
	return s.filterRouteVehicles(func(link store.RouteVehicle) bool {
		if routeIDs == nil {
			return true
		}
		_, ok := wanted[link.RouteID]
		return ok
	}), nil
}

func (s *Store) RouteVehiclesByVehicles(_ context.Context, vehicleIDs []string) ([]store.RouteVehicle, error) {
	wanted := toSet(vehicleIDs)
	return s.filterRouteVehicles(func(link store.RouteVehicle) bool {
		if vehicleIDs == nil {
			return true
		}
		_, ok := wanted[link.VehicleID]
		return ok
	}), nil
}

func (s *Store) filterRouteVehicles(keep func(store.RouteVehicle) bool) []store.RouteVehicle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.RouteVehicle, 0)
	for link := range s.routeVehicles {
		if keep(link) {
			out = append(out, link)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RouteID != out[j].RouteID {
			return out[i].RouteID < out[j].RouteID
		}
		return out[i].VehicleID < out[j].VehicleID
	})
	return out
}

// ReferenceWriter

func (s *Store) UpsertVehicle(_ context.Context, vehicle model.Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.vehicles[vehicle.ID]; ok && vehicle.Position == nil {
		vehicle.Position = existing.Position
	}
	s.vehicles[vehicle.ID] = copyVehicle(vehicle)
	return nil
}

func (s *Store) UpsertRoute(_ context.Context, route model.Route) error {
	s.mu.Lock()
	s.routes[route.ID] = route
	s.mu.Unlock()
	return nil
}

func (s *Store) UpsertStop(_ context.Context, stop model.Stop) error {
	s.mu.Lock()
	s.stops[stop.ID] = stop
	s.mu.Unlock()
	return nil
}

func (s *Store) UpsertGuardian(_ context.Context, guardian model.Guardian) error {
	s.mu.Lock()
	s.guardians[guardian.ID] = guardian
	s.mu.Unlock()
	return nil
}

func (s *Store) UpsertRider(_ context.Context, rider model.Rider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.guardians[rider.GuardianID]; !ok {
		return store.ErrNotFound
	}
	s.riders[rider.ID] = rider
	return nil
}

func (s *Store) LinkRouteStop(_ context.Context, routeID, stopID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.routes[routeID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := s.stops[stopID]; !ok {
		return store.ErrNotFound
	}
	s.routeStops[store.RouteStop{RouteID: routeID, StopID: stopID}] = struct{}{}
	return nil
}

func (s *Store) LinkRouteVehicle(_ context.Context, routeID, vehicleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.routes[routeID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := s.vehicles[vehicleID]; !ok {
		return store.ErrNotFound
	}
	s.routeVehicles[store.RouteVehicle{RouteID: routeID, VehicleID: vehicleID}] = struct{}{}
	return nil
}

// Positions

func (s *Store) RecordPosition(_ context.Context, rec model.PositionRecord) (model.PositionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vehicle, ok := s.vehicles[rec.VehicleID]
	if !ok {
		return model.PositionRecord{}, store.ErrNotFound
	}
	s.positionSeq++
	rec.ID = s.positionSeq
	rec.Heading = copyFloat(rec.Heading)
	vehicle.Position = &model.Position{
		Latitude:   rec.Latitude,
		Longitude:  rec.Longitude,
		Speed:      rec.Speed,
		Heading:    copyFloat(rec.Heading),
		RecordedAt: rec.RecordedAt,
	}
	s.vehicles[rec.VehicleID] = vehicle
	s.positions[rec.VehicleID] = append(s.positions[rec.VehicleID], rec)
	return rec, nil
}

func (s *Store) ListCurrent(_ context.Context, vehicleIDs []string) ([]model.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Vehicle, 0, len(vehicleIDs))
	seen := make(map[string]struct{}, len(vehicleIDs))
	for _, id := range vehicleIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		vehicle, ok := s.vehicles[id]
		if !ok || vehicle.Status != model.VehicleActive {
			continue
		}
		out = append(out, copyVehicle(vehicle))
	}
	sortVehicles(out)
	return out, nil
}

func (s *Store) ListPositions(_ context.Context, vehicleID string, limit int) ([]model.PositionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.positions[vehicleID]
	out := make([]model.PositionRecord, len(log))
	copy(out, log)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.After(out[j].RecordedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListPositionsInRange(_ context.Context, vehicleIDs []string, from, to time.Time) ([]model.PositionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := vehicleIDs
	if ids == nil {
		ids = make([]string, 0, len(s.positions))
		for id := range s.positions {
			ids = append(ids, id)
		}
	}
	ids = append([]string(nil), ids...)
	sort.Strings(ids)
	out := make([]model.PositionRecord, 0)
	for _, id := range ids {
		start := len(out)
		for _, rec := range s.positions[id] {
			if !rec.RecordedAt.Before(from) && rec.RecordedAt.Before(to) {
				out = append(out, rec)
			}
		}
		window := out[start:]
		sort.Slice(window, func(i, j int) bool {
			if !window[i].RecordedAt.Equal(window[j].RecordedAt) {
				return window[i].RecordedAt.Before(window[j].RecordedAt)
			}
			return window[i].ID < window[j].ID
		})
	}
	return out, nil
}

// Attendance

func (s *Store) InsertAttendance(_ context.Context, rec model.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertAttendance(rec)
}

func (s *Store) InsertAttendanceOnce(_ context.Context, rec model.AttendanceRecord, from, to time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.attendance {
		if existing.RiderID == rec.RiderID && existing.VehicleID == rec.VehicleID &&
			existing.RouteID == rec.RouteID && existing.LegType == rec.LegType &&
			!existing.RecordedAt.Before(from) && existing.RecordedAt.Before(to) {
			return false, nil
		}
	}
	if err := s.insertAttendance(rec); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) insertAttendance(rec model.AttendanceRecord) error {
	if _, ok := s.riders[rec.RiderID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := s.vehicles[rec.VehicleID]; !ok {
		return store.ErrNotFound
	}
	rec.Latitude = copyFloat(rec.Latitude)
	rec.Longitude = copyFloat(rec.Longitude)
	s.attendance = append(s.attendance, rec)
	return nil
}

func (s *Store) ListAttendance(_ context.Context, filter store.AttendanceFilter) ([]model.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	riders := toSet(filter.RiderIDs)
	vehicles := toSet(filter.VehicleIDs)
	routes := toSet(filter.RouteIDs)
	out := make([]model.AttendanceRecord, 0)
	for i := len(s.attendance) - 1; i >= 0; i-- {
		rec := s.attendance[i]
		if !matches(filter.RiderIDs, riders, rec.RiderID) ||
			!matches(filter.VehicleIDs, vehicles, rec.VehicleID) ||
			!matches(filter.RouteIDs, routes, rec.RouteID) {
			continue
		}
		if filter.LegType != "" && rec.LegType != filter.LegType {
			continue
		}
		if filter.From != nil && rec.RecordedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !rec.RecordedAt.Before(*filter.To) {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecordedAt.After(out[j].RecordedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Notifications

func (s *Store) InsertNotification(_ context.Context, n model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.guardians[n.GuardianID]; !ok {
		return store.ErrNotFound
	}
	s.notifications[n.ID] = n
	return nil
}

func (s *Store) ListNotifications(_ context.Context, guardianID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Notification, 0)
	for _, n := range s.notifications {
		if n.GuardianID != guardianID {
			continue
		}
		if unreadOnly && n.Read() {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, notificationID, guardianID string, readAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[notificationID]
	if !ok || n.GuardianID != guardianID {
		return false, nil
	}
	if n.ReadAt == nil {
		at := readAt
		n.ReadAt = &at
		s.notifications[notificationID] = n
	}
	return true, nil
}

func (s *Store) MarkAllNotificationsRead(_ context.Context, guardianID string, readAt time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, n := range s.notifications {
		if n.GuardianID != guardianID || n.ReadAt != nil {
			continue
		}
		at := readAt
		n.ReadAt = &at
		s.notifications[id] = n
		count++
	}
	return count, nil
}

func (s *Store) CountUnreadNotifications(_ context.Context, guardianID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.notifications {
		if n.GuardianID == guardianID && n.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

// Reports

func (s *Store) InsertReportSummary(_ context.Context, summary model.ReportSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary.Filters = append([]byte(nil), summary.Filters...)
	s.reports = append(s.reports, summary)
	return nil
}

func (s *Store) ListReportSummaries(_ context.Context, orgID string, limit int) ([]model.ReportSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ReportSummary, 0)
	for i := len(s.reports) - 1; i >= 0; i-- {
		if s.reports[i].OrgID == orgID {
			out = append(out, s.reports[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func copyVehicle(v model.Vehicle) model.Vehicle {
	if v.OperatorID != nil {
		id := *v.OperatorID
		v.OperatorID = &id
	}
	if v.Position != nil {
		pos := *v.Position
		pos.Heading = copyFloat(pos.Heading)
		v.Position = &pos
	}
	return v
}

func copyFloat(value *float64) *float64 {
	if value == nil {
		return nil
	}
	out := *value
	return &out
}

func sortVehicles(vehicles []model.Vehicle) {
	sort.Slice(vehicles, func(i, j int) bool {
		if vehicles[i].Label != vehicles[j].Label {
			return vehicles[i].Label < vehicles[j].Label
		}
		return vehicles[i].ID < vehicles[j].ID
	})
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func matches(filter []string, set map[string]struct{}, value string) bool {
	if filter == nil {
		return true
	}
	_, ok := set[value]
	return ok
}
