package action

import (
	"context"
	"time"
)

// Farm is one farm owned by a user.
type Farm struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Location string  `json:"location,omitempty"`
	AreaM2   float64 `json:"area_m2,omitempty"`
}

// Crop is a planting on a farm.
type Crop struct {
	ID          string  `json:"id"`
	FarmID      string  `json:"farm_id"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	PlantedArea float64 `json:"planted_area"`
	ActualYield float64 `json:"actual_yield"`
	MarketPrice float64 `json:"market_price"`
}

// Activity statuses recognised by the aggregates.
const (
	StatusCompleted  = "COMPLETED"
	StatusInProgress = "IN_PROGRESS"
)

// Activity is a dated farm operation with its cost and revenue.
type Activity struct {
	ID      string    `json:"id"`
	FarmID  string    `json:"farm_id"`
	Type    string    `json:"type"`
	Status  string    `json:"status"`
	Date    time.Time `json:"date"`
	Cost    float64   `json:"cost"`
	Revenue float64   `json:"revenue"`
}

// Area is a named zone of a farm. ActiveSensors counts sensor nodes that
// currently report.
type Area struct {
	ID            string `json:"id"`
	FarmID        string `json:"farm_id"`
	Name          string `json:"name"`
	ActiveSensors int    `json:"active_sensors"`
}

// Reading is the latest sensor snapshot of an area, keyed by metric name
// (temperature, humidity, soilMoisture, lightLevel).
type Reading struct {
	Values     map[string]float64 `json:"values"`
	RecordedAt time.Time          `json:"recorded_at"`
}

// BusinessData is the read-only accessor for a user's farm records. Every
// method is scoped to userID.
type BusinessData interface {
	Farms(ctx context.Context, userID string) ([]Farm, error)
	Crops(ctx context.Context, userID string) ([]Crop, error)
	// Activities returns activities dated in [from, to]. Zero bounds are open.
	Activities(ctx context.Context, userID string, from, to time.Time) ([]Activity, error)
	Areas(ctx context.Context, userID string) ([]Area, error)
	// LatestReading returns nil and no error when the area never reported.
	LatestReading(ctx context.Context, areaID string) (*Reading, error)
}

// DeviceType is the normalised kind of a controllable device.
type DeviceType string

const (
	DevicePump  DeviceType = "pump"
	DeviceLight DeviceType = "light"
)

// Device is a controllable actuator in an area.
type Device struct {
	ID       string     `json:"id"`
	Serial   string     `json:"serial"`
	Name     string     `json:"name"`
	Type     DeviceType `json:"type"`
	AreaID   string     `json:"area_id"`
	AreaName string     `json:"area_name"`
}

// Command is an on/off instruction. Duration is only meaningful for pumps;
// AutoMode toggles scheduled irrigation instead of the pump itself.
type Command struct {
	Action   string        `json:"action"`
	Duration time.Duration `json:"duration,omitempty"`
	AutoMode bool          `json:"auto_mode,omitempty"`
}

// CommandResult reports whether the device channel accepted a command.
type CommandResult struct {
	CommandID string `json:"command_id"`
	Accepted  bool   `json:"accepted"`
	Message   string `json:"message,omitempty"`
}

// DeviceDispatcher resolves devices and sends commands to them. Resolve
// methods return ErrNotResolved or ErrAmbiguous instead of guessing.
type DeviceDispatcher interface {
	ResolveArea(ctx context.Context, name, userID string) (Area, error)
	ResolveDevice(ctx context.Context, typ DeviceType, areaName, userID string) (Device, error)
	SendCommand(ctx context.Context, d Device, cmd Command) (CommandResult, error)
}
