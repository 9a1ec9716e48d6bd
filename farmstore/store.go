// Package farmstore is the SQLite accessor for farm business data and the
// Redis channel that carries device commands.
package farmstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/agrisense/agriquery/action"
)

const storeSchema = `
CREATE TABLE IF NOT EXISTS farms (
	id       TEXT PRIMARY KEY,
	user_id  TEXT NOT NULL,
	name     TEXT NOT NULL,
	type     TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	area_m2  REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_farms_user ON farms(user_id);
CREATE TABLE IF NOT EXISTS crops (
	id           TEXT PRIMARY KEY,
	farm_id      TEXT NOT NULL REFERENCES farms(id),
	name         TEXT NOT NULL,
	type         TEXT NOT NULL DEFAULT '',
	planted_area REAL NOT NULL DEFAULT 0,
	actual_yield REAL NOT NULL DEFAULT 0,
	market_price REAL NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS activities (
	id      TEXT PRIMARY KEY,
	farm_id TEXT NOT NULL REFERENCES farms(id),
	type    TEXT NOT NULL DEFAULT '',
	status  TEXT NOT NULL DEFAULT '',
	date_ms INTEGER NOT NULL,
	cost    REAL NOT NULL DEFAULT 0,
	revenue REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_activities_farm_date ON activities(farm_id, date_ms);
CREATE TABLE IF NOT EXISTS areas (
	id      TEXT PRIMARY KEY,
	farm_id TEXT NOT NULL REFERENCES farms(id),
	name    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS devices (
	id      TEXT PRIMARY KEY,
	serial  TEXT NOT NULL,
	name    TEXT NOT NULL DEFAULT '',
	kind    TEXT NOT NULL,
	area_id TEXT NOT NULL REFERENCES areas(id),
	active  INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS sensor_readings (
	area_id     TEXT NOT NULL REFERENCES areas(id),
	metric      TEXT NOT NULL,
	value       REAL NOT NULL,
	recorded_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sensor_readings_area ON sensor_readings(area_id, recorded_ms);
`

// KindSensor marks sensor nodes in the devices table. Actuators use the
// action.DeviceType values.
const KindSensor = "sensor"

// Store implements action.BusinessData over SQLite. Every query is scoped
// to the owning user through the farms table.
type Store struct {
	db *sql.DB
}

var _ action.BusinessData = (*Store)(nil)

// New creates the tables if needed.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(storeSchema); err != nil {
		return nil, fmt.Errorf("farmstore: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Farms(ctx context.Context, userID string) ([]action.Farm, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, location, area_m2 FROM farms WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("farmstore: farms: %w", err)
	}
	defer rows.Close()
	var out []action.Farm
	for rows.Next() {
		var f action.Farm
		if err := rows.Scan(&f.ID, &f.Name, &f.Type, &f.Location, &f.AreaM2); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) Crops(ctx context.Context, userID string) ([]action.Crop, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.farm_id, c.name, c.type, c.planted_area, c.actual_yield, c.market_price
		FROM crops c JOIN farms f ON f.id = c.farm_id
		WHERE f.user_id = ? ORDER BY c.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("farmstore: crops: %w", err)
	}
	defer rows.Close()
	var out []action.Crop
	for rows.Next() {
		var c action.Crop
		if err := rows.Scan(&c.ID, &c.FarmID, &c.Name, &c.Type, &c.PlantedArea, &c.ActualYield, &c.MarketPrice); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Activities returns activities dated in [from, to]; zero bounds are open.
func (s *Store) Activities(ctx context.Context, userID string, from, to time.Time) ([]action.Activity, error) {
	query := `
		SELECT a.id, a.farm_id, a.type, a.status, a.date_ms, a.cost, a.revenue
		FROM activities a JOIN farms f ON f.id = a.farm_id
		WHERE f.user_id = ?`
	args := []any{userID}
	if !from.IsZero() {
		query += ` AND a.date_ms >= ?`
		args = append(args, from.UnixMilli())
	}
	if !to.IsZero() {
		query += ` AND a.date_ms <= ?`
		args = append(args, to.UnixMilli())
	}
	query += ` ORDER BY a.date_ms`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("farmstore: activities: %w", err)
	}
	defer rows.Close()
	var out []action.Activity
	for rows.Next() {
		var a action.Activity
		var ms int64
		if err := rows.Scan(&a.ID, &a.FarmID, &a.Type, &a.Status, &ms, &a.Cost, &a.Revenue); err != nil {
			return nil, err
		}
		a.Date = time.UnixMilli(ms).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) Areas(ctx context.Context, userID string) ([]action.Area, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ar.id, ar.farm_id, ar.name,
			(SELECT COUNT(*) FROM devices d WHERE d.area_id = ar.id AND d.kind = ? AND d.active = 1)
		FROM areas ar JOIN farms f ON f.id = ar.farm_id
		WHERE f.user_id = ? ORDER BY ar.name`, KindSensor, userID)
	if err != nil {
		return nil, fmt.Errorf("farmstore: areas: %w", err)
	}
	defer rows.Close()
	var out []action.Area
	for rows.Next() {
		var a action.Area
		if err := rows.Scan(&a.ID, &a.FarmID, &a.Name, &a.ActiveSensors); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// LatestReading folds the newest value of each metric into one snapshot.
// RecordedAt is the newest timestamp among them.
func (s *Store) LatestReading(ctx context.Context, areaID string) (*action.Reading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.metric, r.value, r.recorded_ms FROM sensor_readings r
		JOIN (SELECT metric, MAX(recorded_ms) AS ms FROM sensor_readings WHERE area_id = ? GROUP BY metric) latest
			ON latest.metric = r.metric AND latest.ms = r.recorded_ms
		WHERE r.area_id = ?`, areaID, areaID)
	if err != nil {
		return nil, fmt.Errorf("farmstore: latest reading: %w", err)
	}
	defer rows.Close()
	var reading *action.Reading
	for rows.Next() {
		var metric string
		var value float64
		var ms int64
		if err := rows.Scan(&metric, &value, &ms); err != nil {
			return nil, err
		}
		if reading == nil {
			reading = &action.Reading{Values: map[string]float64{}}
		}
		reading.Values[metric] = value
		if t := time.UnixMilli(ms).UTC(); t.After(reading.RecordedAt) {
			reading.RecordedAt = t
		}
	}
	return reading, rows.Err()
}

// devicesIn lists active actuators of kind in an area owned by userID.
func (s *Store) devicesIn(ctx context.Context, areaID, kind, userID string) ([]action.Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.serial, d.name, d.kind, ar.id, ar.name
		FROM devices d
		JOIN areas ar ON ar.id = d.area_id
		JOIN farms f ON f.id = ar.farm_id
		WHERE d.area_id = ? AND d.kind = ? AND d.active = 1 AND f.user_id = ?
		ORDER BY d.name`, areaID, kind, userID)
	if err != nil {
		return nil, fmt.Errorf("farmstore: devices: %w", err)
	}
	defer rows.Close()
	var out []action.Device
	for rows.Next() {
		var d action.Device
		var kindCol string
		if err := rows.Scan(&d.ID, &d.Serial, &d.Name, &kindCol, &d.AreaID, &d.AreaName); err != nil {
			return nil, err
		}
		d.Type = action.DeviceType(kindCol)
		out = append(out, d)
	}
	return out, rows.Err()
}
