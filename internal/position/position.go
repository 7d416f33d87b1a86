// Package position ingests vehicle position reports and serves the current
// snapshot and per-vehicle history.
package position

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"fleetwatch/tracking/internal/access"
	"fleetwatch/tracking/internal/apperr"
	"fleetwatch/tracking/internal/clock"
	"fleetwatch/tracking/internal/logging"
	"fleetwatch/tracking/internal/metrics"
	"fleetwatch/tracking/internal/model"
	"fleetwatch/tracking/internal/store"
)

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

type Store interface {
	store.Positions
	GetVehicle(ctx context.Context, vehicleID string) (model.Vehicle, error)
}

type Report struct {
	VehicleID string
	Latitude  float64
	Longitude float64
	Speed     float64
	Heading   *float64
}

type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithGuard enables per-vehicle throttling; nil leaves it disabled.
func WithGuard(g Guard) Option {
	return func(s *Service) { s.guard = g }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithDefaultLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 && limit <= MaxHistoryLimit {
			s.defaultLimit = limit
		}
	}
}

type Service struct {
	store        Store
	resolver     *access.Resolver
	clock        clock.Clock
	guard        Guard
	metrics      *metrics.Metrics
	logger       *slog.Logger
	defaultLimit int
}

func NewService(st Store, resolver *access.Resolver, opts ...Option) *Service {
	s := &Service{
		store:        st,
		resolver:     resolver,
		clock:        clock.Real(),
		logger:       logging.Discard(),
		defaultLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Report validates and persists one position. Validation runs before the
// access check so malformed reports never reach the store.
func (s *Service) Report(ctx context.Context, caller access.Caller, report Report) (model.PositionRecord, error) {
	if err := validateReport(report); err != nil {
		s.metrics.PositionRejected(apperr.CodeOf(err))
		return model.PositionRecord{}, err
	}
	allowed, err := s.resolver.CanOperate(ctx, caller, report.VehicleID)
	if err != nil {
		return model.PositionRecord{}, err
	}
	if !allowed {
		s.metrics.PositionRejected(apperr.CodeAccessDenied)
		return model.PositionRecord{}, apperr.Denied()
	}

	if s.guard != nil {
		ok, err := s.guard.Allow(ctx, report.VehicleID)
		switch {
		case err != nil:
			s.logger.Warn("position guard unavailable", "vehicle_id", report.VehicleID, "error", err)
		case !ok:
			s.metrics.PositionRejected(apperr.CodeReportTooFrequent)
			return model.PositionRecord{}, apperr.Conflict(apperr.CodeReportTooFrequent)
		}
	}

	rec, err := s.store.RecordPosition(ctx, model.PositionRecord{
		VehicleID:  report.VehicleID,
		Latitude:   report.Latitude,
		Longitude:  report.Longitude,
		Speed:      report.Speed,
		Heading:    report.Heading,
		RecordedAt: s.clock.Now().UTC(),
	})
	if err != nil {
		s.releaseGuard(ctx, report.VehicleID)
		if errors.Is(err, store.ErrNotFound) {
			return model.PositionRecord{}, apperr.NotFound(apperr.CodeNotFound)
		}
		s.metrics.StorageFailure("record_position")
		return model.PositionRecord{}, apperr.Storage("record position", err)
	}
	s.metrics.PositionAccepted()
	return rec, nil
}

func (s *Service) releaseGuard(ctx context.Context, vehicleID string) {
	if s.guard == nil {
		return
	}
	if err := s.guard.Release(ctx, vehicleID); err != nil {
		s.logger.Warn("position guard release failed", "vehicle_id", vehicleID, "error", err)
	}
}

// Current returns the active vehicles in scope with their last known
// position. An empty scope never reaches the store.
func (s *Service) Current(ctx context.Context, scope access.Scope) ([]model.Vehicle, error) {
	if scope.Empty() {
		return []model.Vehicle{}, nil
	}
	vehicles, err := s.store.ListCurrent(ctx, scope.IDs())
	if err != nil {
		s.metrics.StorageFailure("list_current")
		return nil, apperr.Storage("list current", err)
	}
	return vehicles, nil
}

func (s *Service) CurrentFor(ctx context.Context, caller access.Caller) ([]model.Vehicle, error) {
	scope, err := s.resolver.Resolve(ctx, caller)
	if err != nil {
		return nil, err
	}
	return s.Current(ctx, scope)
}

// History returns up to limit records for vehicleID, newest first. Callers
// outside the vehicle's scope get AccessDenied whether or not it exists.
func (s *Service) History(ctx context.Context, caller access.Caller, vehicleID string, limit int) ([]model.PositionRecord, error) {
	allowed, err := s.resolver.CanObserve(ctx, caller, vehicleID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperr.Denied()
	}
	if _, err := s.store.GetVehicle(ctx, vehicleID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound(apperr.CodeNotFound)
		}
		return nil, apperr.Storage("get vehicle", err)
	}
	records, err := s.store.ListPositions(ctx, vehicleID, s.clampLimit(limit))
	if err != nil {
		s.metrics.StorageFailure("list_positions")
		return nil, apperr.Storage("list positions", err)
	}
	return records, nil
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.defaultLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

func validateReport(report Report) error {
	if !model.ValidCoordinate(report.Latitude, report.Longitude) {
		return apperr.Validation(apperr.CodeInvalidCoordinate)
	}
	if math.IsNaN(report.Speed) || math.IsInf(report.Speed, 0) || report.Speed < 0 {
		return apperr.Validation(apperr.CodeInvalidSpeed)
	}
	if h := report.Heading; h != nil {
		if math.IsNaN(*h) || *h < 0 || *h >= 360 {
			return apperr.Validation(apperr.CodeInvalidHeading)
		}
	}
	return nil
}
