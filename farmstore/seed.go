package farmstore

import (
	"context"
	"time"

	"github.com/agrisense/agriquery/action"
)

// The Put methods load fixtures and demo data. Records are otherwise
// maintained by the farm management application that owns this database.

func (s *Store) PutFarm(ctx context.Context, userID string, f action.Farm) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO farms (id, user_id, name, type, location, area_m2) VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID, userID, f.Name, f.Type, f.Location, f.AreaM2)
	return err
}

func (s *Store) PutCrop(ctx context.Context, c action.Crop) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO crops (id, farm_id, name, type, planted_area, actual_yield, market_price) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.FarmID, c.Name, c.Type, c.PlantedArea, c.ActualYield, c.MarketPrice)
	return err
}

func (s *Store) PutActivity(ctx context.Context, a action.Activity) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO activities (id, farm_id, type, status, date_ms, cost, revenue) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.FarmID, a.Type, a.Status, a.Date.UnixMilli(), a.Cost, a.Revenue)
	return err
}

func (s *Store) PutArea(ctx context.Context, a action.Area) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO areas (id, farm_id, name) VALUES (?, ?, ?)`, a.ID, a.FarmID, a.Name)
	return err
}

// PutDevice stores an actuator or, with kind KindSensor, a sensor node.
func (s *Store) PutDevice(ctx context.Context, d action.Device, kind string, active bool) error {
	flag := 0
	if active {
		flag = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO devices (id, serial, name, kind, area_id, active) VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.Serial, d.Name, kind, d.AreaID, flag)
	return err
}

func (s *Store) RecordReading(ctx context.Context, areaID, metric string, value float64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sensor_readings (area_id, metric, value, recorded_ms) VALUES (?, ?, ?, ?)`,
		areaID, metric, value, at.UnixMilli())
	return err
}
