package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindAccessDenied
	KindNotFound
	KindConflict
	KindStorage
)

const (
	CodeInvalidCoordinate   = "invalid_coordinate"
	CodeInvalidSpeed        = "invalid_speed"
	CodeInvalidHeading      = "invalid_heading"
	CodeInvalidLegType      = "invalid_leg_type"
	CodeInvalidStatus       = "invalid_status"
	CodeRiderNotOnRoute     = "rider_not_on_route"
	CodeRouteNotOnVehicle   = "route_not_on_vehicle"
	CodeInvalidCategory     = "invalid_category"
	CodeEmptyMessage        = "empty_message"
	CodeUnknownGuardian     = "unknown_guardian"
	CodeNotFoundOrNotOwned  = "not_found_or_not_owned"
	CodeInvalidKind         = "invalid_kind"
	CodeMissingRange        = "missing_range"
	CodeInvalidDate         = "invalid_date"
	CodeAccessDenied        = "access_denied"
	CodeNotFound            = "not_found"
	CodeDuplicateAttendance = "duplicate_attendance"
	CodeReportTooFrequent   = "report_too_frequent"
	CodeServerError         = "server_error"
)

type Error struct {
	Kind Kind
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(code string) error {
	return &Error{Kind: KindValidation, Code: code}
}

func Denied() error {
	return &Error{Kind: KindAccessDenied, Code: CodeAccessDenied}
}

func NotFound(code string) error {
	return &Error{Kind: KindNotFound, Code: code}
}

func Conflict(code string) error {
	return &Error{Kind: KindConflict, Code: code}
}

// Storage wraps a store failure. op names the failing operation for logs only;
// callers never see it.
func Storage(op string, err error) error {
	return &Error{Kind: KindStorage, Code: CodeServerError, Err: fmt.Errorf("%s: %w", op, err)}
}

func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindStorage
}

func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeServerError
}

func Is(err error, code string) bool {
	return CodeOf(err) == code
}
