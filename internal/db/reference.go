package db

import (
	"context"
	"time"

	"fleetwatch/tracking/internal/model"
	"fleetwatch/tracking/internal/store"
)

const vehicleColumns = `id::text, org_id::text, label, capacity, status, operator_id::text,
	last_latitude, last_longitude, last_speed, last_heading, last_position_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanVehicle(row scanner) (model.Vehicle, error) {
	var (
		v               model.Vehicle
		status          string
		lat, lon, speed *float64
		heading         *float64
		lastPositionAt  *time.Time
	)
	if err := row.Scan(&v.ID, &v.OrgID, &v.Label, &v.Capacity, &status, &v.OperatorID,
		&lat, &lon, &speed, &heading, &lastPositionAt); err != nil {
		return model.Vehicle{}, err
	}
	v.Status = model.VehicleStatus(status)
	if lastPositionAt != nil && lat != nil && lon != nil {
		v.Position = &model.Position{
			Latitude:   *lat,
			Longitude:  *lon,
			Heading:    heading,
			RecordedAt: lastPositionAt.UTC(),
		}
		if speed != nil {
			v.Position.Speed = *speed
		}
	}
	return v, nil
}

func (s *Store) queryVehicles(ctx context.Context, sql string, args ...any) ([]model.Vehicle, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		if isInvalidID(err) {
			return []model.Vehicle{}, nil
		}
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Vehicle, 0)
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) GetVehicle(ctx context.Context, vehicleID string) (model.Vehicle, error) {
	v, err := scanVehicle(s.q.QueryRow(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, vehicleID))
	if err != nil {
		return model.Vehicle{}, notFound(err)
	}
	return v, nil
}

func (s *Store) ListVehicles(ctx context.Context, orgID string) ([]model.Vehicle, error) {
	return s.queryVehicles(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE org_id = $1 ORDER BY label, id`, orgID)
}

func (s *Store) VehicleIDsByOrg(ctx context.Context, orgID string) ([]string, error) {
	return s.queryStrings(ctx, `SELECT id::text FROM vehicles WHERE org_id = $1 ORDER BY id`, orgID)
}

func (s *Store) VehicleIDsByOperator(ctx context.Context, operatorID string) ([]string, error) {
	return s.queryStrings(ctx, `SELECT id::text FROM vehicles WHERE operator_id = $1 ORDER BY id`, operatorID)
}

const riderColumns = `id::text, org_id::text, guardian_id::text, stop_id::text, name`

func (s *Store) queryRiders(ctx context.Context, sql string, args ...any) ([]model.Rider, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		if isInvalidID(err) {
			return []model.Rider{}, nil
		}
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Rider, 0)
	for rows.Next() {
		var r model.Rider
		if err := rows.Scan(&r.ID, &r.OrgID, &r.GuardianID, &r.StopID, &r.Name); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetRider(ctx context.Context, riderID string) (model.Rider, error) {
	var r model.Rider
	err := s.q.QueryRow(ctx, `SELECT `+riderColumns+` FROM riders WHERE id = $1`, riderID).
		Scan(&r.ID, &r.OrgID, &r.GuardianID, &r.StopID, &r.Name)
	if err != nil {
		return model.Rider{}, notFound(err)
	}
	return r, nil
}

func (s *Store) ListRidersByGuardian(ctx context.Context, guardianID string) ([]model.Rider, error) {
	return s.queryRiders(ctx, `SELECT `+riderColumns+` FROM riders WHERE guardian_id = $1 ORDER BY id`, guardianID)
}

func (s *Store) ListRidersByStops(ctx context.Context, stopIDs []string) ([]model.Rider, error) {
	return s.queryRiders(ctx, `
		SELECT `+riderColumns+`
		FROM riders
		WHERE ($1::uuid[] IS NULL OR stop_id = ANY($1::uuid[]))
		ORDER BY id
	`, stopIDs)
}

func (s *Store) ListRidersByOrg(ctx context.Context, orgID string) ([]model.Rider, error) {
	return s.queryRiders(ctx, `SELECT `+riderColumns+` FROM riders WHERE org_id = $1 ORDER BY id`, orgID)
}

func (s *Store) GuardianExists(ctx context.Context, guardianID string) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM guardians WHERE id = $1)`, guardianID).Scan(&exists)
	if isInvalidID(err) {
		return false, nil
	}
	return exists, err
}

func (s *Store) ListRoutes(ctx context.Context, orgID string) ([]model.Route, error) {
	rows, err := s.q.Query(ctx, `SELECT id::text, org_id::text, name FROM routes WHERE org_id = $1 ORDER BY name, id`, orgID)
	if err != nil {
		if isInvalidID(err) {
			return []model.Route{}, nil
		}
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Route, 0)
	for rows.Next() {
		var r model.Route
		if err := rows.Scan(&r.ID, &r.OrgID, &r.Name); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) RouteStopsByStops(ctx context.Context, stopIDs []string) ([]store.RouteStop, error) {
	return s.queryRouteStops(ctx, `
		SELECT route_id::text, stop_id::text
		FROM route_stops
		WHERE ($1::uuid[] IS NULL OR stop_id = ANY($1::uuid[]))
		ORDER BY route_id, stop_id
	`, stopIDs)
}

func (s *Store) RouteStopsByRoutes(ctx context.Context, routeIDs []string) ([]store.RouteStop, error) {
	return s.queryRouteStops(ctx, `
		SELECT route_id::text, stop_id::text
		FROM route_stops
		WHERE ($1::uuid[] IS NULL OR route_id = ANY($1::uuid[]))
		ORDER BY route_id, stop_id
	`, routeIDs)
}

func (s *Store) queryRouteStops(ctx context.Context, sql string, ids []string) ([]store.RouteStop, error) {
	rows, err := s.q.Query(ctx, sql, ids)
	if err != nil {
		if isInvalidID(err) {
			return []store.RouteStop{}, nil
		}
		return nil, err
	}
	defer rows.Close()
	out := make([]store.RouteStop, 0)
	for rows.Next() {
		var link store.RouteStop
		if err := rows.Scan(&link.RouteID, &link.StopID); err != nil {
			return nil, err
		}
		out = append(out, link)
	}
	return out, rows.Err()
}

func (s *Store) RouteVehiclesByRoutes(ctx context.Context, routeIDs []string) ([]store.RouteVehicle, error) {
	return s.queryRouteVehicles(ctx, `
		SELECT route_id::text, vehicle_id::text
		FROM route_vehicles
		WHERE ($1::uuid[] IS NULL OR route_id = ANY($1::uuid[]))
		ORDER BY route_id, vehicle_id
	`, routeIDs)
}

func (s *Store) RouteVehiclesByVehicles(ctx context.Context, vehicleIDs []string) ([]store.RouteVehicle, error) {
	return s.queryRouteVehicles(ctx, `
		SELECT route_id::text, vehicle_id::text
		FROM route_vehicles
		WHERE ($1::uuid[] IS NULL OR vehicle_id = ANY($1::uuid[]))
		ORDER BY route_id, vehicle_id
	`, vehicleIDs)
}

func (s *Store) queryRouteVehicles(ctx context.Context, sql string, ids []string) ([]store.RouteVehicle, error) {
	rows, err := s.q.Query(ctx, sql, ids)
	if err != nil {
		if isInvalidID(err) {
			return []store.RouteVehicle{}, nil
		}
		return nil, err
	}
	defer rows.Close()
	out := make([]store.RouteVehicle, 0)
	for rows.Next() {
		var link store.RouteVehicle
		if err := rows.Scan(&link.RouteID, &link.VehicleID); err != nil {
			return nil, err
		}
		out = append(out, link)
	}
	return out, rows.Err()
}

func (s *Store) UpsertVehicle(ctx context.Context, v model.Vehicle) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO vehicles (id, org_id, label, capacity, status, operator_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET org_id = EXCLUDED.org_id,
			label = EXCLUDED.label,
			capacity = EXCLUDED.capacity,
			status = EXCLUDED.status,
			operator_id = EXCLUDED.operator_id
	`, v.ID, v.OrgID, v.Label, v.Capacity, string(v.Status), v.OperatorID)
	return err
}

func (s *Store) UpsertRoute(ctx context.Context, r model.Route) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO routes (id, org_id, name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET org_id = EXCLUDED.org_id, name = EXCLUDED.name
	`, r.ID, r.OrgID, r.Name)
	return err
}

func (s *Store) UpsertStop(ctx context.Context, st model.Stop) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO stops (id, org_id, name, latitude, longitude) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET org_id = EXCLUDED.org_id, name = EXCLUDED.name,
			latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude
	`, st.ID, st.OrgID, st.Name, st.Latitude, st.Longitude)
	return err
}

func (s *Store) UpsertGuardian(ctx context.Context, g model.Guardian) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO guardians (id, org_id, name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET org_id = EXCLUDED.org_id, name = EXCLUDED.name
	`, g.ID, g.OrgID, g.Name)
	return err
}

func (s *Store) UpsertRider(ctx context.Context, r model.Rider) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO riders (id, org_id, guardian_id, stop_id, name) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET org_id = EXCLUDED.org_id, guardian_id = EXCLUDED.guardian_id,
			stop_id = EXCLUDED.stop_id, name = EXCLUDED.name
	`, r.ID, r.OrgID, r.GuardianID, r.StopID, r.Name)
	return notFound(err)
}

func (s *Store) LinkRouteStop(ctx context.Context, routeID, stopID string) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO route_stops (route_id, stop_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, routeID, stopID)
	return notFound(err)
}

func (s *Store) LinkRouteVehicle(ctx context.Context, routeID, vehicleID string) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO route_vehicles (route_id, vehicle_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, routeID, vehicleID)
	return notFound(err)
}
