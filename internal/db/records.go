package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fleetwatch/tracking/internal/model"
	"fleetwatch/tracking/internal/store"
)

// Attendance

func (s *Store) InsertAttendance(ctx context.Context, rec model.AttendanceRecord) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO attendance_records
			(id, rider_id, vehicle_id, route_id, leg_type, status, recorded_by, latitude, longitude, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rec.ID, rec.RiderID, rec.VehicleID, rec.RouteID, string(rec.LegType), string(rec.Status),
		rec.RecordedBy, rec.Latitude, rec.Longitude, rec.RecordedAt)
	return notFound(err)
}

// InsertAttendanceOnce serializes concurrent marks for one rider, vehicle,
// route and leg with a transaction-scoped advisory lock.
func (s *Store) InsertAttendanceOnce(ctx context.Context, rec model.AttendanceRecord, from, to time.Time) (bool, error) {
	inserted := false
	err := s.WithTx(ctx, func(tx *Store) error {
		key := strings.Join([]string{rec.RiderID, rec.VehicleID, rec.RouteID, string(rec.LegType)}, "|")
		if _, err := tx.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return err
		}
		var exists bool
		err := tx.q.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM attendance_records
				WHERE rider_id = $1 AND vehicle_id = $2 AND route_id = $3 AND leg_type = $4
				  AND recorded_at >= $5 AND recorded_at < $6
			)
		`, rec.RiderID, rec.VehicleID, rec.RouteID, string(rec.LegType), from, to).Scan(&exists)
		if err != nil {
			return notFound(err)
		}
		if exists {
			return nil
		}
		if err := tx.InsertAttendance(ctx, rec); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (s *Store) ListAttendance(ctx context.Context, filter store.AttendanceFilter) ([]model.AttendanceRecord, error) {
	var (
		where []string
		args  []any
	)
	arg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.RiderIDs != nil {
		where = append(where, "rider_id = ANY("+arg(filter.RiderIDs)+"::uuid[])")
	}
	if filter.VehicleIDs != nil {
		where = append(where, "vehicle_id = ANY("+arg(filter.VehicleIDs)+"::uuid[])")
	}
	if filter.RouteIDs != nil {
		where = append(where, "route_id = ANY("+arg(filter.RouteIDs)+"::uuid[])")
	}
	if filter.LegType != "" {
		where = append(where, "leg_type = "+arg(string(filter.LegType)))
	}
	if filter.From != nil {
		where = append(where, "recorded_at >= "+arg(*filter.From))
	}
	if filter.To != nil {
		where = append(where, "recorded_at < "+arg(*filter.To))
	}

	sql := `SELECT id::text, rider_id::text, vehicle_id::text, route_id::text, leg_type, status,
		recorded_by::text, latitude, longitude, recorded_at
		FROM attendance_records`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY recorded_at DESC, id DESC"
	if filter.Limit > 0 {
		sql += " LIMIT " + arg(filter.Limit)
	}

	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		if isInvalidID(err) {
			return []model.AttendanceRecord{}, nil
		}
		return nil, err
	}
	defer rows.Close()
	out := make([]model.AttendanceRecord, 0)
	for rows.Next() {
		var (
			rec         model.AttendanceRecord
			leg, status string
		)
		if err := rows.Scan(&rec.ID, &rec.RiderID, &rec.VehicleID, &rec.RouteID, &leg, &status,
			&rec.RecordedBy, &rec.Latitude, &rec.Longitude, &rec.RecordedAt); err != nil {
			return nil, err
		}
		rec.LegType = model.LegType(leg)
		rec.Status = model.AttendanceStatus(status)
		rec.RecordedAt = rec.RecordedAt.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Notifications

func (s *Store) InsertNotification(ctx context.Context, n model.Notification) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO notifications (id, guardian_id, vehicle_id, message, category, read_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, n.ID, n.GuardianID, n.VehicleID, n.Message, string(n.Category), n.ReadAt, n.CreatedAt)
	return notFound(err)
}

func (s *Store) ListNotifications(ctx context.Context, guardianID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	var bound any
	if limit > 0 {
		bound = limit
	}
	rows, err := s.q.Query(ctx, `
		SELECT id::text, guardian_id::text, vehicle_id::text, message, category, read_at, created_at
		FROM notifications
		WHERE guardian_id = $1 AND (NOT $2 OR read_at IS NULL)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, guardianID, unreadOnly, bound)
	if err != nil {
		if isInvalidID(err) {
			return []model.Notification{}, nil
		}
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Notification, 0)
	for rows.Next() {
		var (
			n        model.Notification
			category string
		)
		if err := rows.Scan(&n.ID, &n.GuardianID, &n.VehicleID, &n.Message, &category, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Category = model.NotificationCategory(category)
		n.CreatedAt = n.CreatedAt.UTC()
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead keeps the first read_at when the row is already read.
func (s *Store) MarkNotificationRead(ctx context.Context, notificationID, guardianID string, readAt time.Time) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE notifications
		SET read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND guardian_id = $2
	`, notificationID, guardianID, readAt)
	if err != nil {
		if isInvalidID(err) {
			return false, nil
		}
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, guardianID string, readAt time.Time) (int, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE notifications SET read_at = $2
		WHERE guardian_id = $1 AND read_at IS NULL
	`, guardianID, readAt)
	if err != nil {
		if isInvalidID(err) {
			return 0, nil
		}
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) CountUnreadNotifications(ctx context.Context, guardianID string) (int, error) {
	var count int
	err := s.q.QueryRow(ctx, `
		SELECT count(*) FROM notifications WHERE guardian_id = $1 AND read_at IS NULL
	`, guardianID).Scan(&count)
	if isInvalidID(err) {
		return 0, nil
	}
	return count, err
}

// Reports

func (s *Store) InsertReportSummary(ctx context.Context, r model.ReportSummary) error {
	filters := r.Filters
	if len(filters) == 0 {
		filters = []byte("{}")
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO report_summaries
			(id, org_id, name, kind, start_date, end_date, filters, row_count, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5::text::date, $6::text::date, $7, $8, $9, $10)
	`, r.ID, r.OrgID, r.Name, string(r.Kind), r.StartDate, r.EndDate, filters, r.RowCount, r.CreatedBy, r.CreatedAt)
	return err
}

func (s *Store) ListReportSummaries(ctx context.Context, orgID string, limit int) ([]model.ReportSummary, error) {
	var bound any
	if limit > 0 {
		bound = limit
	}
	rows, err := s.q.Query(ctx, `
		SELECT id::text, org_id::text, name, kind,
			to_char(start_date, 'YYYY-MM-DD'), to_char(end_date, 'YYYY-MM-DD'),
			filters, row_count, created_by::text, created_at
		FROM report_summaries
		WHERE org_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, orgID, bound)
	if err != nil {
		if isInvalidID(err) {
			return []model.ReportSummary{}, nil
		}
		return nil, err
	}
	defer rows.Close()
	out := make([]model.ReportSummary, 0)
	for rows.Next() {
		var (
			r    model.ReportSummary
			kind string
		)
		if err := rows.Scan(&r.ID, &r.OrgID, &r.Name, &kind, &r.StartDate, &r.EndDate,
			&r.Filters, &r.RowCount, &r.CreatedBy, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Kind = model.ReportKind(kind)
		r.CreatedAt = r.CreatedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
