package db

var schema = []string{
	`CREATE TABLE IF NOT EXISTS vehicles (
		id uuid PRIMARY KEY,
		org_id uuid NOT NULL,
		label text NOT NULL,
		capacity integer NOT NULL DEFAULT 0 CHECK (capacity >= 0),
		status text NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'inactive', 'maintenance')),
		operator_id uuid,
		last_latitude double precision,
		last_longitude double precision,
		last_speed double precision,
		last_heading double precision,
		last_position_at timestamptz
	)`,
	`CREATE INDEX IF NOT EXISTS vehicles_org_idx ON vehicles (org_id)`,
	`CREATE INDEX IF NOT EXISTS vehicles_operator_idx ON vehicles (operator_id)`,
	`CREATE TABLE IF NOT EXISTS position_log (
		id bigserial PRIMARY KEY,
		vehicle_id uuid NOT NULL REFERENCES vehicles (id),
		latitude double precision NOT NULL,
		longitude double precision NOT NULL,
		speed double precision NOT NULL DEFAULT 0,
		heading double precision,
		recorded_at timestamptz NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS position_log_vehicle_time_idx ON position_log (vehicle_id, recorded_at DESC, id DESC)`,
	`CREATE TABLE IF NOT EXISTS routes (
		id uuid PRIMARY KEY,
		org_id uuid NOT NULL,
		name text NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stops (
		id uuid PRIMARY KEY,
		org_id uuid NOT NULL,
		name text NOT NULL DEFAULT '',
		latitude double precision NOT NULL,
		longitude double precision NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS route_stops (
		route_id uuid NOT NULL REFERENCES routes (id),
		stop_id uuid NOT NULL REFERENCES stops (id),
		PRIMARY KEY (route_id, stop_id)
	)`,
	`CREATE INDEX IF NOT EXISTS route_stops_stop_idx ON route_stops (stop_id)`,
	`CREATE TABLE IF NOT EXISTS route_vehicles (
		route_id uuid NOT NULL REFERENCES routes (id),
		vehicle_id uuid NOT NULL REFERENCES vehicles (id),
		PRIMARY KEY (route_id, vehicle_id)
	)`,
	`CREATE INDEX IF NOT EXISTS route_vehicles_vehicle_idx ON route_vehicles (vehicle_id)`,
	`CREATE TABLE IF NOT EXISTS guardians (
		id uuid PRIMARY KEY,
		org_id uuid NOT NULL,
		name text NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS riders (
		id uuid PRIMARY KEY,
		org_id uuid NOT NULL,
		guardian_id uuid NOT NULL REFERENCES guardians (id),
		stop_id uuid REFERENCES stops (id),
		name text NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS riders_guardian_idx ON riders (guardian_id)`,
	`CREATE INDEX IF NOT EXISTS riders_stop_idx ON riders (stop_id)`,
	`CREATE TABLE IF NOT EXISTS attendance_records (
		id uuid PRIMARY KEY,
		rider_id uuid NOT NULL REFERENCES riders (id),
		vehicle_id uuid NOT NULL REFERENCES vehicles (id),
		route_id uuid NOT NULL REFERENCES routes (id),
		leg_type text NOT NULL CHECK (leg_type IN ('pickup', 'dropoff')),
		status text NOT NULL CHECK (status IN ('present', 'absent', 'late', 'excused')),
		recorded_by uuid NOT NULL,
		latitude double precision,
		longitude double precision,
		recorded_at timestamptz NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS attendance_vehicle_time_idx ON attendance_records (vehicle_id, recorded_at)`,
	`CREATE INDEX IF NOT EXISTS attendance_rider_time_idx ON attendance_records (rider_id, recorded_at)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id uuid PRIMARY KEY,
		guardian_id uuid NOT NULL REFERENCES guardians (id),
		vehicle_id uuid REFERENCES vehicles (id),
		message text NOT NULL,
		category text NOT NULL CHECK (category IN ('pickup', 'dropoff', 'absence', 'delay', 'emergency', 'general')),
		read_at timestamptz,
		created_at timestamptz NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS notifications_guardian_idx ON notifications (guardian_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS report_summaries (
		id uuid PRIMARY KEY,
		org_id uuid NOT NULL,
		name text NOT NULL,
		kind text NOT NULL,
		start_date date NOT NULL,
		end_date date NOT NULL,
		filters jsonb NOT NULL DEFAULT '{}'::jsonb,
		row_count integer NOT NULL,
		created_by uuid NOT NULL,
		created_at timestamptz NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS report_summaries_org_idx ON report_summaries (org_id, created_at DESC)`,
}
