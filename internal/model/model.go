package model

import (
	"errors"
	"math"
	"time"
)

type Role string

const (
	RoleOperator Role = "operator"
	RoleDriver   Role = "driver"
	RoleGuardian Role = "guardian"
)

type VehicleStatus string

const (
	VehicleActive      VehicleStatus = "active"
	VehicleInactive    VehicleStatus = "inactive"
	VehicleMaintenance VehicleStatus = "maintenance"
)

type LegType string

const (
	LegPickup  LegType = "pickup"
	LegDropoff LegType = "dropoff"
)

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceExcused AttendanceStatus = "excused"
)

type NotificationCategory string

const (
	CategoryPickup    NotificationCategory = "pickup"
	CategoryDropoff   NotificationCategory = "dropoff"
	CategoryAbsence   NotificationCategory = "absence"
	CategoryDelay     NotificationCategory = "delay"
	CategoryEmergency NotificationCategory = "emergency"
	CategoryGeneral   NotificationCategory = "general"
)

type ReportKind string

const (
	ReportAttendance       ReportKind = "attendance"
	ReportUtilization      ReportKind = "utilization"
	ReportRoutePerformance ReportKind = "route_performance"
	ReportMaintenance      ReportKind = "maintenance"
)

var errInvalid = errors.New("invalid value")

func ParseRole(value string) (Role, error) {
	switch Role(value) {
	case RoleOperator, RoleDriver, RoleGuardian:
		return Role(value), nil
	default:
		return "", errInvalid
	}
}

func ParseVehicleStatus(value string) (VehicleStatus, error) {
	switch VehicleStatus(value) {
	case VehicleActive, VehicleInactive, VehicleMaintenance:
		return VehicleStatus(value), nil
	default:
		return "", errInvalid
	}
}

func ParseLegType(value string) (LegType, error) {
	switch LegType(value) {
	case LegPickup, LegDropoff:
		return LegType(value), nil
	default:
		return "", errInvalid
	}
}

func ParseAttendanceStatus(value string) (AttendanceStatus, error) {
	switch AttendanceStatus(value) {
	case AttendancePresent, AttendanceAbsent, AttendanceLate, AttendanceExcused:
		return AttendanceStatus(value), nil
	default:
		return "", errInvalid
	}
}

func ParseNotificationCategory(value string) (NotificationCategory, error) {
	switch NotificationCategory(value) {
	case CategoryPickup, CategoryDropoff, CategoryAbsence, CategoryDelay, CategoryEmergency, CategoryGeneral:
		return NotificationCategory(value), nil
	default:
		return "", errInvalid
	}
}

func ParseReportKind(value string) (ReportKind, error) {
	switch ReportKind(value) {
	case ReportAttendance, ReportUtilization, ReportRoutePerformance, ReportMaintenance:
		return ReportKind(value), nil
	default:
		return "", errInvalid
	}
}

// ValidCoordinate reports whether lat/lon are finite and inside WGS84 bounds.
func ValidCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

type Position struct {
	Latitude   float64
	Longitude  float64
	Speed      float64
	Heading    *float64
	RecordedAt time.Time
}

type Vehicle struct {
	ID         string
	OrgID      string
	Label      string
	Capacity   int
	Status     VehicleStatus
	OperatorID *string
	// Position is nil until the first accepted report.
	Position *Position
}

type PositionRecord struct {
	ID         int64
	VehicleID  string
	Latitude   float64
	Longitude  float64
	Speed      float64
	Heading    *float64
	RecordedAt time.Time
}

type Route struct {
	ID    string
	OrgID string
	Name  string
}

type Stop struct {
	ID        string
	OrgID     string
	Name      string
	Latitude  float64
	Longitude float64
}

type Guardian struct {
	ID    string
	OrgID string
	Name  string
}

type Rider struct {
	ID         string
	OrgID      string
	GuardianID string
	StopID     *string
	Name       string
}

type AttendanceRecord struct {
	ID         string
	RiderID    string
	VehicleID  string
	RouteID    string
	LegType    LegType
	Status     AttendanceStatus
	RecordedBy string
	Latitude   *float64
	Longitude  *float64
	RecordedAt time.Time
}

type Notification struct {
	ID         string
	GuardianID string
	VehicleID  *string
	Message    string
	Category   NotificationCategory
	ReadAt     *time.Time
	CreatedAt  time.Time
}

func (n Notification) Read() bool {
	return n.ReadAt != nil
}

type ReportSummary struct {
	ID        string
	OrgID     string
	Name      string
	Kind      ReportKind
	StartDate string
	EndDate   string
	Filters   []byte
	RowCount  int
	CreatedBy string
	CreatedAt time.Time
}
