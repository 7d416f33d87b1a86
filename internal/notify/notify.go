// Package notify stores guardian-facing notifications and tracks their read
// state. Delivery is by polling; nothing is pushed.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"

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
	defaultListLimit = 50
	maxListLimit     = 200
)

type Store interface {
	store.Notifications
	GuardianExists(ctx context.Context, guardianID string) (bool, error)
}

type Request struct {
	GuardianID string
	VehicleID  *string
	Message    string
	Category   string
}

type Service struct {
	store    Store
	resolver *access.Resolver
	clock    clock.Clock
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewService(st Store, resolver *access.Resolver, clk clock.Clock, m *metrics.Metrics, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{store: st, resolver: resolver, clock: clk, metrics: m, logger: logger}
}

// Notify validates and stores one unread notification.
func (s *Service) Notify(ctx context.Context, req Request) (model.Notification, error) {
	category, err := model.ParseNotificationCategory(req.Category)
	if err != nil {
		return model.Notification{}, apperr.Validation(apperr.CodeInvalidCategory)
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return model.Notification{}, apperr.Validation(apperr.CodeEmptyMessage)
	}
	exists, err := s.store.GuardianExists(ctx, req.GuardianID)
	if err != nil {
		s.metrics.StorageFailure("guardian_exists")
		return model.Notification{}, apperr.Storage("guardian exists", err)
	}
	if !exists {
		return model.Notification{}, apperr.Validation(apperr.CodeUnknownGuardian)
	}

	n := model.Notification{
		ID:         uuid.NewString(),
		GuardianID: req.GuardianID,
		VehicleID:  req.VehicleID,
		Message:    message,
		Category:   category,
		CreatedAt:  s.clock.Now().UTC(),
	}
	if err := s.store.InsertNotification(ctx, n); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Notification{}, apperr.Validation(apperr.CodeUnknownGuardian)
		}
		s.metrics.StorageFailure("insert_notification")
		return model.Notification{}, apperr.Storage("insert notification", err)
	}
	s.metrics.NotificationCreated(string(category))
	return n, nil
}

// NotifyAs is Notify on behalf of an operator or driver. The guardian must
// have a rider in the caller's rider scope and a referenced vehicle must be
// observable by the caller. Unknown guardians are denied like foreign ones.
func (s *Service) NotifyAs(ctx context.Context, caller access.Caller, req Request) (model.Notification, error) {
	if caller.Role != model.RoleOperator && caller.Role != model.RoleDriver {
		return model.Notification{}, apperr.Denied()
	}
	reachable, err := s.resolver.CanReachGuardian(ctx, caller, req.GuardianID)
	if err != nil {
		return model.Notification{}, err
	}
	if !reachable {
		return model.Notification{}, apperr.Denied()
	}
	if req.VehicleID != nil {
		ok, err := s.resolver.CanObserve(ctx, caller, *req.VehicleID)
		if err != nil {
			return model.Notification{}, err
		}
		if !ok {
			return model.Notification{}, apperr.Denied()
		}
	}
	return s.Notify(ctx, req)
}

// MarkRead succeeds for an owned notification, including one already read.
func (s *Service) MarkRead(ctx context.Context, notificationID, guardianID string) error {
	ok, err := s.store.MarkNotificationRead(ctx, notificationID, guardianID, s.clock.Now().UTC())
	if err != nil {
		s.metrics.StorageFailure("mark_notification_read")
		return apperr.Storage("mark notification read", err)
	}
	if !ok {
		return apperr.NotFound(apperr.CodeNotFoundOrNotOwned)
	}
	return nil
}

// MarkAllRead returns how many notifications moved from unread to read.
func (s *Service) MarkAllRead(ctx context.Context, guardianID string) (int, error) {
	count, err := s.store.MarkAllNotificationsRead(ctx, guardianID, s.clock.Now().UTC())
	if err != nil {
		s.metrics.StorageFailure("mark_all_notifications_read")
		return 0, apperr.Storage("mark all notifications read", err)
	}
	return count, nil
}

func (s *Service) List(ctx context.Context, guardianID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	items, err := s.store.ListNotifications(ctx, guardianID, unreadOnly, limit)
	if err != nil {
		s.metrics.StorageFailure("list_notifications")
		return nil, apperr.Storage("list notifications", err)
	}
	return items, nil
}

func (s *Service) UnreadCount(ctx context.Context, guardianID string) (int, error) {
	count, err := s.store.CountUnreadNotifications(ctx, guardianID)
	if err != nil {
		s.metrics.StorageFailure("count_unread_notifications")
		return 0, apperr.Storage("count unread notifications", err)
	}
	return count, nil
}
