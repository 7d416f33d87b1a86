package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"fleetwatch/tracking/internal/access"
	"fleetwatch/tracking/internal/apperr"
	"fleetwatch/tracking/internal/attendance"
	"fleetwatch/tracking/internal/model"
	"fleetwatch/tracking/internal/notify"
	"fleetwatch/tracking/internal/position"
	"fleetwatch/tracking/internal/report"
)

// Models

type positionResponse struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Speed      float64   `json:"speed"`
	Heading    *float64  `json:"heading,omitempty"`
	RecordedAt time.Time `json:"recordedAt"`
}

type vehicleResponse struct {
	ID         string            `json:"id"`
	OrgID      string            `json:"orgId"`
	Label      string            `json:"label"`
	Capacity   int               `json:"capacity"`
	Status     string            `json:"status"`
	OperatorID *string           `json:"operatorId,omitempty"`
	Position   *positionResponse `json:"position"`
}

type positionRecordResponse struct {
	ID        int64  `json:"id"`
	VehicleID string `json:"vehicleId"`
	positionResponse
}

type attendanceResponse struct {
	ID         string    `json:"id"`
	RiderID    string    `json:"riderId"`
	VehicleID  string    `json:"vehicleId"`
	RouteID    string    `json:"routeId"`
	LegType    string    `json:"legType"`
	Status     string    `json:"status"`
	RecordedBy string    `json:"recordedBy"`
	Latitude   *float64  `json:"latitude,omitempty"`
	Longitude  *float64  `json:"longitude,omitempty"`
	RecordedAt time.Time `json:"recordedAt"`
}

type notificationResponse struct {
	ID         string     `json:"id"`
	GuardianID string     `json:"guardianId"`
	VehicleID  *string    `json:"vehicleId,omitempty"`
	Message    string     `json:"message"`
	Category   string     `json:"category"`
	Read       bool       `json:"read"`
	ReadAt     *time.Time `json:"readAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type reportSummaryResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Kind      string          `json:"kind"`
	StartDate string          `json:"startDate"`
	EndDate   string          `json:"endDate"`
	Filters   json.RawMessage `json:"filters"`
	RowCount  int             `json:"rowCount"`
	CreatedBy string          `json:"createdBy"`
	CreatedAt time.Time       `json:"createdAt"`
}

type reportPositionRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required"`
	Longitude *float64 `json:"longitude" validate:"required"`
	Speed     *float64 `json:"speed"`
	Heading   *float64 `json:"heading"`
}

type markAttendanceRequest struct {
	RiderID   string   `json:"riderId" validate:"required"`
	VehicleID string   `json:"vehicleId" validate:"required"`
	RouteID   string   `json:"routeId" validate:"required"`
	LegType   string   `json:"legType" validate:"required"`
	Status    string   `json:"status" validate:"required"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type createNotificationRequest struct {
	GuardianID string  `json:"guardianId" validate:"required"`
	VehicleID  *string `json:"vehicleId"`
	Message    string  `json:"message"`
	Category   string  `json:"category"`
}

type generateReportRequest struct {
	Kind      string          `json:"kind"`
	StartDate string          `json:"startDate"`
	EndDate   string          `json:"endDate"`
	Name      string          `json:"name"`
	Filters   *report.Filters `json:"filters"`
}

func mapVehicle(v model.Vehicle) vehicleResponse {
	resp := vehicleResponse{
		ID:         v.ID,
		OrgID:      v.OrgID,
		Label:      v.Label,
		Capacity:   v.Capacity,
		Status:     string(v.Status),
		OperatorID: v.OperatorID,
	}
	if v.Position != nil {
		resp.Position = &positionResponse{
			Latitude:   v.Position.Latitude,
			Longitude:  v.Position.Longitude,
			Speed:      v.Position.Speed,
			Heading:    v.Position.Heading,
			RecordedAt: v.Position.RecordedAt,
		}
	}
	return resp
}

func mapPositionRecord(rec model.PositionRecord) positionRecordResponse {
	return positionRecordResponse{
		ID:        rec.ID,
		VehicleID: rec.VehicleID,
		positionResponse: positionResponse{
			Latitude:   rec.Latitude,
			Longitude:  rec.Longitude,
			Speed:      rec.Speed,
			Heading:    rec.Heading,
			RecordedAt: rec.RecordedAt,
		},
	}
}

func mapAttendance(rec model.AttendanceRecord) attendanceResponse {
	return attendanceResponse{
		ID:         rec.ID,
		RiderID:    rec.RiderID,
		VehicleID:  rec.VehicleID,
		RouteID:    rec.RouteID,
		LegType:    string(rec.LegType),
		Status:     string(rec.Status),
		RecordedBy: rec.RecordedBy,
		Latitude:   rec.Latitude,
		Longitude:  rec.Longitude,
		RecordedAt: rec.RecordedAt,
	}
}

func mapNotification(n model.Notification) notificationResponse {
	return notificationResponse{
		ID:         n.ID,
		GuardianID: n.GuardianID,
		VehicleID:  n.VehicleID,
		Message:    n.Message,
		Category:   string(n.Category),
		Read:       n.Read(),
		ReadAt:     n.ReadAt,
		CreatedAt:  n.CreatedAt,
	}
}

func mapReportSummary(r model.ReportSummary) reportSummaryResponse {
	filters := json.RawMessage(r.Filters)
	if len(filters) == 0 {
		filters = json.RawMessage("{}")
	}
	return reportSummaryResponse{
		ID:        r.ID,
		Name:      r.Name,
		Kind:      string(r.Kind),
		StartDate: r.StartDate,
		EndDate:   r.EndDate,
		Filters:   filters,
		RowCount:  r.RowCount,
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt,
	}
}

// Handlers

func (s *Server) handleGetScope(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	vehicles, err := s.svc.Resolver.Resolve(r.Context(), caller)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	riders, err := s.svc.Resolver.RiderScope(r.Context(), caller)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"role":       string(caller.Role),
		"vehicleIds": vehicles.IDs(),
		"riderIds":   riders.IDs(),
	})
}

func (s *Server) handleListCurrent(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	vehicles, err := s.svc.Positions.CurrentFor(r.Context(), caller)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	resp := make([]vehicleResponse, 0, len(vehicles))
	for _, v := range vehicles {
		resp = append(resp, mapVehicle(v))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"vehicles": resp})
}

func (s *Server) handleReportPosition(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	var req reportPositionRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	in := position.Report{
		VehicleID: chi.URLParam(r, "vehicleId"),
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Heading:   req.Heading,
	}
	if req.Speed != nil {
		in.Speed = *req.Speed
	}
	rec, err := s.svc.Positions.Report(r.Context(), caller, in)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapPositionRecord(rec))
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	limit, ok := queryLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_limit")
		return
	}
	vehicleID := chi.URLParam(r, "vehicleId")
	records, err := s.svc.Positions.History(r.Context(), caller, vehicleID, limit)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	resp := make([]positionRecordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, mapPositionRecord(rec))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"vehicleId": vehicleID,
		"positions": resp,
	})
}

func (s *Server) handleMarkAttendance(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	var req markAttendanceRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	rec, err := s.svc.Attendance.Mark(r.Context(), caller, attendance.MarkRequest{
		RiderID:   req.RiderID,
		VehicleID: req.VehicleID,
		RouteID:   req.RouteID,
		LegType:   req.LegType,
		Status:    req.Status,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapAttendance(rec))
}

func (s *Server) handleListAttendance(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	query := r.URL.Query()
	filter := attendance.Filter{
		RiderID:   strings.TrimSpace(query.Get("riderId")),
		VehicleID: strings.TrimSpace(query.Get("vehicleId")),
	}
	if filter.RiderID != "" {
		if _, err := uuid.Parse(filter.RiderID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_rider_id")
			return
		}
	}
	if filter.VehicleID != "" {
		if _, err := uuid.Parse(filter.VehicleID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_vehicle_id")
			return
		}
	}
	var err error
	if filter.From, err = queryTime(query.Get("from"), false); err != nil {
		writeError(w, http.StatusBadRequest, apperr.CodeInvalidDate)
		return
	}
	if filter.To, err = queryTime(query.Get("to"), true); err != nil {
		writeError(w, http.StatusBadRequest, apperr.CodeInvalidDate)
		return
	}
	limit, ok := queryLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_limit")
		return
	}
	filter.Limit = limit

	records, err := s.svc.Attendance.List(r.Context(), caller, filter)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	resp := make([]attendanceResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, mapAttendance(rec))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"attendance": resp})
}

func (s *Server) handleCreateNotification(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	var req createNotificationRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	n, err := s.svc.Notifications.NotifyAs(r.Context(), caller, notify.Request{
		GuardianID: req.GuardianID,
		VehicleID:  req.VehicleID,
		Message:    req.Message,
		Category:   req.Category,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapNotification(n))
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.guardianFromContext(w, r)
	if !ok {
		return
	}
	unreadOnly := false
	if raw := strings.TrimSpace(r.URL.Query().Get("unread")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		unreadOnly = parsed
	}
	limit, ok := queryLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_limit")
		return
	}
	items, err := s.svc.Notifications.List(r.Context(), caller.ID, unreadOnly, limit)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	unread, err := s.svc.Notifications.UnreadCount(r.Context(), caller.ID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	resp := make([]notificationResponse, 0, len(items))
	for _, n := range items {
		resp = append(resp, mapNotification(n))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": resp,
		"unreadCount":   unread,
	})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.guardianFromContext(w, r)
	if !ok {
		return
	}
	notificationID := chi.URLParam(r, "notificationId")
	if _, err := uuid.Parse(notificationID); err != nil {
		writeError(w, http.StatusNotFound, apperr.CodeNotFoundOrNotOwned)
		return
	}
	if err := s.svc.Notifications.MarkRead(r.Context(), notificationID, caller.ID); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.guardianFromContext(w, r)
	if !ok {
		return
	}
	count, err := s.svc.Notifications.MarkAllRead(r.Context(), caller.ID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": count})
}

func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	var req generateReportRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	in := report.Request{
		Kind:      req.Kind,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Name:      req.Name,
	}
	if req.Filters != nil {
		in.Filters = *req.Filters
	}
	payload, summaryID, err := s.svc.Reports.Generate(r.Context(), caller, in)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summaryId": summaryID,
		"report":    payload,
	})
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	limit, ok := queryLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_limit")
		return
	}
	summaries, err := s.svc.Reports.ListSummaries(r.Context(), caller, limit)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	resp := make([]reportSummaryResponse, 0, len(summaries))
	for _, summary := range summaries {
		resp = append(resp, mapReportSummary(summary))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reports": resp})
}

// guardianFromContext admits guardians only; notifications are read through
// the guardian's own identity.
func (s *Server) guardianFromContext(w http.ResponseWriter, r *http.Request) (access.Caller, bool) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return access.Caller{}, false
	}
	if caller.Role != model.RoleGuardian {
		writeError(w, http.StatusForbidden, apperr.CodeAccessDenied)
		return access.Caller{}, false
	}
	return caller, true
}

// queryTime accepts RFC 3339 timestamps or plain UTC dates. A plain date used
// as an upper bound covers the whole day, since the store treats it as
// exclusive.
func queryTime(raw string, upper bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	if upper {
		t = t.AddDate(0, 0, 1)
	}
	return &t, nil
}
