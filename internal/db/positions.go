package db

import (
	"context"
	"time"

	"fleetwatch/tracking/internal/model"
	"fleetwatch/tracking/internal/store"
)

// RecordPosition updates the snapshot columns and appends to position_log in
// one transaction.
func (s *Store) RecordPosition(ctx context.Context, rec model.PositionRecord) (model.PositionRecord, error) {
	err := s.WithTx(ctx, func(tx *Store) error {
		tag, err := tx.q.Exec(ctx, `
			UPDATE vehicles
			SET last_latitude = $2,
				last_longitude = $3,
				last_speed = $4,
				last_heading = $5,
				last_position_at = $6
			WHERE id = $1
		`, rec.VehicleID, rec.Latitude, rec.Longitude, rec.Speed, rec.Heading, rec.RecordedAt)
		if err != nil {
			return notFound(err)
		}
		if tag.RowsAffected() == 0 {
			return store.ErrNotFound
		}
		return tx.q.QueryRow(ctx, `
			INSERT INTO position_log (vehicle_id, latitude, longitude, speed, heading, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, rec.VehicleID, rec.Latitude, rec.Longitude, rec.Speed, rec.Heading, rec.RecordedAt).Scan(&rec.ID)
	})
	if err != nil {
		return model.PositionRecord{}, err
	}
	return rec, nil
}

func (s *Store) ListCurrent(ctx context.Context, vehicleIDs []string) ([]model.Vehicle, error) {
	return s.queryVehicles(ctx, `
		SELECT `+vehicleColumns+`
		FROM vehicles
		WHERE id = ANY($1::uuid[]) AND status = 'active'
		ORDER BY label, id
	`, vehicleIDs)
}

const positionColumns = `id, vehicle_id::text, latitude, longitude, speed, heading, recorded_at`

func (s *Store) ListPositions(ctx context.Context, vehicleID string, limit int) ([]model.PositionRecord, error) {
	var bound any
	if limit > 0 {
		bound = limit
	}
	return s.queryPositions(ctx, `
		SELECT `+positionColumns+`
		FROM position_log
		WHERE vehicle_id = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT $2
	`, vehicleID, bound)
}

func (s *Store) ListPositionsInRange(ctx context.Context, vehicleIDs []string, from, to time.Time) ([]model.PositionRecord, error) {
	return s.queryPositions(ctx, `
		SELECT `+positionColumns+`
		FROM position_log
		WHERE ($1::uuid[] IS NULL OR vehicle_id = ANY($1::uuid[]))
			AND recorded_at >= $2 AND recorded_at < $3
		ORDER BY vehicle_id, recorded_at, id
	`, vehicleIDs, from, to)
}

func (s *Store) queryPositions(ctx context.Context, sql string, args ...any) ([]model.PositionRecord, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		if isInvalidID(err) {
			return []model.PositionRecord{}, nil
		}
		return nil, err
	}
	defer rows.Close()
	out := make([]model.PositionRecord, 0)
	for rows.Next() {
		var rec model.PositionRecord
		if err := rows.Scan(&rec.ID, &rec.VehicleID, &rec.Latitude, &rec.Longitude, &rec.Speed, &rec.Heading, &rec.RecordedAt); err != nil {
			return nil, err
		}
		rec.RecordedAt = rec.RecordedAt.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}
