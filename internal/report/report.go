// Package report computes time-windowed fleet statistics for operators and
// keeps an audit trail of every generated report.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"fleetwatch/tracking/internal/access"
	"fleetwatch/tracking/internal/apperr"
	"fleetwatch/tracking/internal/clock"
	"fleetwatch/tracking/internal/logging"
	"fleetwatch/tracking/internal/metrics"
	"fleetwatch/tracking/internal/model"
	"fleetwatch/tracking/internal/store"
)

const (
	dateLayout          = "2006-01-02"
	defaultSummaryLimit = 20
	maxSummaryLimit     = 100
)

type Store interface {
	store.Reference
	store.Positions
	store.Attendance
	store.Reports
}

type Filters struct {
	VehicleID string `json:"vehicleId,omitempty"`
	RouteID   string `json:"routeId,omitempty"`
}

type Request struct {
	Kind      string
	StartDate string
	EndDate   string
	Name      string
	Filters   Filters
}

// Payload carries the rows of one report. Rows holds a slice of the row type
// matching Kind.
type Payload struct {
	Kind      model.ReportKind `json:"kind"`
	StartDate string           `json:"startDate"`
	EndDate   string           `json:"endDate"`
	Filters   Filters          `json:"filters"`
	RowCount  int              `json:"rowCount"`
	Rows      any              `json:"rows"`
}

type Service struct {
	store   Store
	clock   clock.Clock
	loc     *time.Location
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewService(st Store, clk clock.Clock, loc *time.Location, m *metrics.Metrics, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{store: st, clock: clk, loc: loc, metrics: m, logger: logger}
}

// window is the report's scope: the organization's vehicles after filters and
// the half-open instant range covering the inclusive date range.
type window struct {
	orgID    string
	from     time.Time
	to       time.Time
	vehicles []model.Vehicle
	routes   []model.Route
	filters  Filters
}

func (w window) vehicleIDs() []string {
	ids := make([]string, 0, len(w.vehicles))
	for _, v := range w.vehicles {
		ids = append(ids, v.ID)
	}
	return ids
}

func (w window) routeIDs() []string {
	ids := make([]string, 0, len(w.routes))
	for _, r := range w.routes {
		ids = append(ids, r.ID)
	}
	return ids
}

// Generate computes the report and persists its summary. A start date after
// the end date yields a payload without rows.
func (s *Service) Generate(ctx context.Context, caller access.Caller, req Request) (Payload, string, error) {
	if caller.Role != model.RoleOperator || caller.OrgID == "" {
		return Payload{}, "", apperr.Denied()
	}
	kind, err := model.ParseReportKind(req.Kind)
	if err != nil {
		return Payload{}, "", apperr.Validation(apperr.CodeInvalidKind)
	}
	startRaw := strings.TrimSpace(req.StartDate)
	endRaw := strings.TrimSpace(req.EndDate)
	if startRaw == "" || endRaw == "" {
		return Payload{}, "", apperr.Validation(apperr.CodeMissingRange)
	}
	start, err := time.ParseInLocation(dateLayout, startRaw, s.loc)
	if err != nil {
		return Payload{}, "", apperr.Validation(apperr.CodeInvalidDate)
	}
	end, err := time.ParseInLocation(dateLayout, endRaw, s.loc)
	if err != nil {
		return Payload{}, "", apperr.Validation(apperr.CodeInvalidDate)
	}

	payload := Payload{Kind: kind, StartDate: startRaw, EndDate: endRaw, Filters: req.Filters}
	if start.After(end) {
		payload.Rows = emptyRows(kind)
	} else {
		w, err := s.scope(ctx, caller.OrgID, req.Filters)
		if err != nil {
			return Payload{}, "", err
		}
		w.from = start
		w.to = end.AddDate(0, 0, 1)
		rows, count, err := s.compute(ctx, kind, w)
		if err != nil {
			s.metrics.StorageFailure("report_" + string(kind))
			return Payload{}, "", apperr.Storage("compute "+string(kind)+" report", err)
		}
		payload.Rows = rows
		payload.RowCount = count
	}

	summaryID, err := s.persist(ctx, caller, req, payload)
	if err != nil {
		return Payload{}, "", err
	}
	s.metrics.ReportGenerated(string(kind))
	return payload, summaryID, nil
}

func (s *Service) compute(ctx context.Context, kind model.ReportKind, w window) (any, int, error) {
	switch kind {
	case model.ReportAttendance:
		rows, err := s.attendanceRows(ctx, w)
		return rows, len(rows), err
	case model.ReportUtilization:
		rows, err := s.utilizationRows(ctx, w)
		return rows, len(rows), err
	case model.ReportRoutePerformance:
		rows, err := s.routePerformanceRows(ctx, w)
		return rows, len(rows), err
	default:
		rows, err := s.maintenanceRows(ctx, w)
		return rows, len(rows), err
	}
}

func emptyRows(kind model.ReportKind) any {
	switch kind {
	case model.ReportAttendance:
		return []AttendanceRow{}
	case model.ReportUtilization:
		return []UtilizationRow{}
	case model.ReportRoutePerformance:
		return []RoutePerformanceRow{}
	default:
		return []MaintenanceRow{}
	}
}

// scope resolves the organization's vehicles and routes narrowed by filters.
// A filter naming an entity outside the organization is denied.
func (s *Service) scope(ctx context.Context, orgID string, filters Filters) (window, error) {
	w := window{orgID: orgID, filters: filters}
	vehicles, err := s.store.ListVehicles(ctx, orgID)
	if err != nil {
		return w, apperr.Storage("list vehicles", err)
	}
	routes, err := s.store.ListRoutes(ctx, orgID)
	if err != nil {
		return w, apperr.Storage("list routes", err)
	}

	if filters.RouteID != "" {
		routes = filterRoutes(routes, func(r model.Route) bool { return r.ID == filters.RouteID })
		if len(routes) == 0 {
			return w, apperr.Denied()
		}
		links, err := s.store.RouteVehiclesByRoutes(ctx, []string{filters.RouteID})
		if err != nil {
			return w, apperr.Storage("route vehicles", err)
		}
		onRoute := make(map[string]struct{}, len(links))
		for _, link := range links {
			onRoute[link.VehicleID] = struct{}{}
		}
		vehicles = filterVehicles(vehicles, func(v model.Vehicle) bool {
			_, ok := onRoute[v.ID]
			return ok
		})
	}
	if filters.VehicleID != "" {
		inOrg := false
		all, err := s.store.VehicleIDsByOrg(ctx, orgID)
		if err != nil {
			return w, apperr.Storage("org vehicles", err)
		}
		for _, id := range all {
			if id == filters.VehicleID {
				inOrg = true
				break
			}
		}
		if !inOrg {
			return w, apperr.Denied()
		}
		vehicles = filterVehicles(vehicles, func(v model.Vehicle) bool { return v.ID == filters.VehicleID })
		links, err := s.store.RouteVehiclesByVehicles(ctx, []string{filters.VehicleID})
		if err != nil {
			return w, apperr.Storage("vehicle routes", err)
		}
		served := make(map[string]struct{}, len(links))
		for _, link := range links {
			served[link.RouteID] = struct{}{}
		}
		routes = filterRoutes(routes, func(r model.Route) bool {
			_, ok := served[r.ID]
			return ok
		})
	}
	w.vehicles = vehicles
	w.routes = routes
	return w, nil
}

func (s *Service) persist(ctx context.Context, caller access.Caller, req Request, payload Payload) (string, error) {
	filters, err := json.Marshal(req.Filters)
	if err != nil {
		return "", apperr.Storage("encode report filters", err)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = fmt.Sprintf("%s %s to %s", payload.Kind, payload.StartDate, payload.EndDate)
	}
	summary := model.ReportSummary{
		ID:        uuid.NewString(),
		OrgID:     caller.OrgID,
		Name:      name,
		Kind:      payload.Kind,
		StartDate: payload.StartDate,
		EndDate:   payload.EndDate,
		Filters:   filters,
		RowCount:  payload.RowCount,
		CreatedBy: caller.ID,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.store.InsertReportSummary(ctx, summary); err != nil {
		s.metrics.StorageFailure("insert_report_summary")
		return "", apperr.Storage("insert report summary", err)
	}
	return summary.ID, nil
}

// ListSummaries returns the organization's report audit trail, newest first.
func (s *Service) ListSummaries(ctx context.Context, caller access.Caller, limit int) ([]model.ReportSummary, error) {
	if caller.Role != model.RoleOperator || caller.OrgID == "" {
		return nil, apperr.Denied()
	}
	if limit <= 0 {
		limit = defaultSummaryLimit
	}
	if limit > maxSummaryLimit {
		limit = maxSummaryLimit
	}
	summaries, err := s.store.ListReportSummaries(ctx, caller.OrgID, limit)
	if err != nil {
		s.metrics.StorageFailure("list_report_summaries")
		return nil, apperr.Storage("list report summaries", err)
	}
	return summaries, nil
}

func filterVehicles(vehicles []model.Vehicle, keep func(model.Vehicle) bool) []model.Vehicle {
	out := make([]model.Vehicle, 0, len(vehicles))
	for _, v := range vehicles {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func filterRoutes(routes []model.Route, keep func(model.Route) bool) []model.Route {
	out := make([]model.Route, 0, len(routes))
	for _, r := range routes {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
