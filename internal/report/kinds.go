package report

import (
	"context"
	"math"
	"sort"
	"time"

	"fleetwatch/tracking/internal/model"
	"fleetwatch/tracking/internal/store"
)

type AttendanceRow struct {
	Date    string        `json:"date"`
	LegType model.LegType `json:"legType"`
	Counts
}

// Counts tallies attendance statuses.
type Counts struct {
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Late    int `json:"late"`
	Excused int `json:"excused"`
	Total   int `json:"total"`
}

func (c *Counts) add(status model.AttendanceStatus) {
	switch status {
	case model.AttendancePresent:
		c.Present++
	case model.AttendanceAbsent:
		c.Absent++
	case model.AttendanceLate:
		c.Late++
	case model.AttendanceExcused:
		c.Excused++
	}
	c.Total++
}

// onTimeRate is present / (present + late); zero when nobody boarded.
func (c Counts) onTimeRate() float64 {
	boarded := c.Present + c.Late
	if boarded == 0 {
		return 0
	}
	return round(float64(c.Present)/float64(boarded), 4)
}

type UtilizationRow struct {
	VehicleID      string  `json:"vehicleId"`
	Label          string  `json:"label"`
	Capacity       int     `json:"capacity"`
	Reports        int     `json:"reports"`
	ActiveDays     int     `json:"activeDays"`
	DistanceKm     float64 `json:"distanceKm"`
	AvgSpeed       float64 `json:"avgSpeed"`
	MaxSpeed       float64 `json:"maxSpeed"`
	AssignedRiders int     `json:"assignedRiders"`
	LoadFactor     float64 `json:"loadFactor"`
}

type RoutePerformanceRow struct {
	RouteID  string `json:"routeId"`
	Name     string `json:"name"`
	Vehicles int    `json:"vehicles"`
	Stops    int    `json:"stops"`
	Riders   int    `json:"riders"`
	Counts
	OnTimeRate float64 `json:"onTimeRate"`
}

type MaintenanceRow struct {
	VehicleID           string              `json:"vehicleId"`
	Label               string              `json:"label"`
	Status              model.VehicleStatus `json:"status"`
	LastReportAt        *time.Time          `json:"lastReportAt"`
	DaysSinceLastReport *int                `json:"daysSinceLastReport"`
	ReportsInRange      int                 `json:"reportsInRange"`
	Flagged             bool                `json:"flagged"`
}

var legOrder = map[model.LegType]int{model.LegPickup: 0, model.LegDropoff: 1}

func (s *Service) attendanceRows(ctx context.Context, w window) ([]AttendanceRow, error) {
	records, err := s.store.ListAttendance(ctx, s.attendanceFilter(w))
	if err != nil {
		return nil, err
	}
	type key struct {
		date string
		leg  model.LegType
	}
	grouped := make(map[key]*AttendanceRow)
	for _, rec := range records {
		k := key{date: rec.RecordedAt.In(s.loc).Format(dateLayout), leg: rec.LegType}
		row, ok := grouped[k]
		if !ok {
			row = &AttendanceRow{Date: k.date, LegType: k.leg}
			grouped[k] = row
		}
		row.add(rec.Status)
	}
	rows := make([]AttendanceRow, 0, len(grouped))
	for _, row := range grouped {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Date != rows[j].Date {
			return rows[i].Date < rows[j].Date
		}
		return legOrder[rows[i].LegType] < legOrder[rows[j].LegType]
	})
	return rows, nil
}

func (s *Service) attendanceFilter(w window) store.AttendanceFilter {
	from, to := w.from, w.to
	filter := store.AttendanceFilter{VehicleIDs: w.vehicleIDs(), From: &from, To: &to}
	if w.filters.RouteID != "" {
		filter.RouteIDs = []string{w.filters.RouteID}
	}
	return filter
}

func (s *Service) utilizationRows(ctx context.Context, w window) ([]UtilizationRow, error) {
	positions, err := s.store.ListPositionsInRange(ctx, w.vehicleIDs(), w.from, w.to)
	if err != nil {
		return nil, err
	}
	byVehicle := make(map[string][]model.PositionRecord)
	for _, rec := range positions {
		byVehicle[rec.VehicleID] = append(byVehicle[rec.VehicleID], rec)
	}
	assigned, err := s.assignedRiders(ctx, w)
	if err != nil {
		return nil, err
	}

	rows := make([]UtilizationRow, 0, len(w.vehicles))
	for _, vehicle := range w.vehicles {
		track := byVehicle[vehicle.ID]
		row := UtilizationRow{
			VehicleID:      vehicle.ID,
			Label:          vehicle.Label,
			Capacity:       vehicle.Capacity,
			Reports:        len(track),
			AssignedRiders: assigned[vehicle.ID],
		}
		days := make(map[string]struct{})
		var speedSum, distance float64
		for i, rec := range track {
			days[rec.RecordedAt.In(s.loc).Format(dateLayout)] = struct{}{}
			speedSum += rec.Speed
			row.MaxSpeed = math.Max(row.MaxSpeed, rec.Speed)
			if i > 0 {
				prev := track[i-1]
				distance += haversineKm(prev.Latitude, prev.Longitude, rec.Latitude, rec.Longitude)
			}
		}
		row.ActiveDays = len(days)
		row.DistanceKm = round(distance, 3)
		if len(track) > 0 {
			row.AvgSpeed = round(speedSum/float64(len(track)), 2)
		}
		row.MaxSpeed = round(row.MaxSpeed, 2)
		if vehicle.Capacity > 0 {
			row.LoadFactor = round(float64(row.AssignedRiders)/float64(vehicle.Capacity), 4)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// assignedRiders counts, per vehicle, the riders whose stop lies on a route
// the vehicle serves. A rider reachable over two routes counts once.
func (s *Service) assignedRiders(ctx context.Context, w window) (map[string]int, error) {
	counts := make(map[string]int, len(w.vehicles))
	if len(w.vehicles) == 0 {
		return counts, nil
	}
	vehicleRoutes, err := s.store.RouteVehiclesByVehicles(ctx, w.vehicleIDs())
	if err != nil {
		return nil, err
	}
	routeIDs := make([]string, 0, len(vehicleRoutes))
	for _, link := range vehicleRoutes {
		routeIDs = append(routeIDs, link.RouteID)
	}
	stopsByRoute, err := s.stopsByRoute(ctx, routeIDs)
	if err != nil {
		return nil, err
	}
	ridersByStop, err := s.ridersByStop(ctx, w.orgID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]map[string]struct{})
	for _, link := range vehicleRoutes {
		if seen[link.VehicleID] == nil {
			seen[link.VehicleID] = make(map[string]struct{})
		}
		for _, stopID := range stopsByRoute[link.RouteID] {
			for _, riderID := range ridersByStop[stopID] {
				seen[link.VehicleID][riderID] = struct{}{}
			}
		}
	}
	for vehicleID, riders := range seen {
		counts[vehicleID] = len(riders)
	}
	return counts, nil
}

func (s *Service) routePerformanceRows(ctx context.Context, w window) ([]RoutePerformanceRow, error) {
	routeIDs := w.routeIDs()
	rows := make([]RoutePerformanceRow, 0, len(w.routes))
	if len(routeIDs) == 0 {
		return rows, nil
	}
	vehicleLinks, err := s.store.RouteVehiclesByRoutes(ctx, routeIDs)
	if err != nil {
		return nil, err
	}
	stopsByRoute, err := s.stopsByRoute(ctx, routeIDs)
	if err != nil {
		return nil, err
	}
	ridersByStop, err := s.ridersByStop(ctx, w.orgID)
	if err != nil {
		return nil, err
	}
	from, to := w.from, w.to
	filter := store.AttendanceFilter{RouteIDs: routeIDs, From: &from, To: &to}
	if w.filters.VehicleID != "" {
		filter.VehicleIDs = []string{w.filters.VehicleID}
	}
	records, err := s.store.ListAttendance(ctx, filter)
	if err != nil {
		return nil, err
	}

	vehiclesByRoute := make(map[string]int)
	for _, link := range vehicleLinks {
		vehiclesByRoute[link.RouteID]++
	}
	countsByRoute := make(map[string]*Counts)
	for _, rec := range records {
		c, ok := countsByRoute[rec.RouteID]
		if !ok {
			c = &Counts{}
			countsByRoute[rec.RouteID] = c
		}
		c.add(rec.Status)
	}

	for _, route := range w.routes {
		row := RoutePerformanceRow{
			RouteID:  route.ID,
			Name:     route.Name,
			Vehicles: vehiclesByRoute[route.ID],
			Stops:    len(stopsByRoute[route.ID]),
		}
		for _, stopID := range stopsByRoute[route.ID] {
			row.Riders += len(ridersByStop[stopID])
		}
		if c, ok := countsByRoute[route.ID]; ok {
			row.Counts = *c
		}
		row.OnTimeRate = row.Counts.onTimeRate()
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *Service) maintenanceRows(ctx context.Context, w window) ([]MaintenanceRow, error) {
	positions, err := s.store.ListPositionsInRange(ctx, w.vehicleIDs(), w.from, w.to)
	if err != nil {
		return nil, err
	}
	inRange := make(map[string]int)
	for _, rec := range positions {
		inRange[rec.VehicleID]++
	}
	now := s.clock.Now().UTC()

	rows := make([]MaintenanceRow, 0, len(w.vehicles))
	for _, vehicle := range w.vehicles {
		row := MaintenanceRow{
			VehicleID:      vehicle.ID,
			Label:          vehicle.Label,
			Status:         vehicle.Status,
			ReportsInRange: inRange[vehicle.ID],
		}
		if vehicle.Position != nil {
			last := vehicle.Position.RecordedAt.UTC()
			days := int(now.Sub(last) / (24 * time.Hour))
			if days < 0 {
				days = 0
			}
			row.LastReportAt = &last
			row.DaysSinceLastReport = &days
		}
		row.Flagged = vehicle.Status == model.VehicleMaintenance || row.ReportsInRange == 0
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *Service) stopsByRoute(ctx context.Context, routeIDs []string) (map[string][]string, error) {
	out := make(map[string][]string)
	if len(routeIDs) == 0 {
		return out, nil
	}
	links, err := s.store.RouteStopsByRoutes(ctx, routeIDs)
	if err != nil {
		return nil, err
	}
	for _, link := range links {
		out[link.RouteID] = append(out[link.RouteID], link.StopID)
	}
	return out, nil
}

func (s *Service) ridersByStop(ctx context.Context, orgID string) (map[string][]string, error) {
	riders, err := s.store.ListRidersByOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string)
	for _, rider := range riders {
		if rider.StopID != nil {
			out[*rider.StopID] = append(out[*rider.StopID], rider.ID)
		}
	}
	return out, nil
}

func round(value float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(value*scale) / scale
}
