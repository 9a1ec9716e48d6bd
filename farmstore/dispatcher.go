package farmstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/agrisense/agriquery/action"
	"github.com/agrisense/agriquery/common/logger"
)

const msgNoListener = "Không nhận được phản hồi từ thiết bị. Vui lòng kiểm tra kết nối hoặc thử lại sau."

// CommandMessage is the JSON published on the device command channel.
type CommandMessage struct {
	CommandID       string            `json:"command_id"`
	DeviceID        string            `json:"device_id"`
	Serial          string            `json:"serial"`
	DeviceType      action.DeviceType `json:"device_type"`
	AreaID          string            `json:"area_id"`
	Action          string            `json:"action"`
	DurationSeconds int               `json:"duration_seconds,omitempty"`
	AutoMode        bool              `json:"auto_mode,omitempty"`
	IssuedAt        time.Time         `json:"issued_at"`
}

// Dispatcher resolves devices from the Store and publishes commands to a
// Redis channel read by the device gateway.
type Dispatcher struct {
	store   *Store
	rdb     redis.UniversalClient
	channel string
	now     func() time.Time
}

var _ action.DeviceDispatcher = (*Dispatcher)(nil)

func NewDispatcher(store *Store, rdb redis.UniversalClient, channel string) *Dispatcher {
	return &Dispatcher{store: store, rdb: rdb, channel: channel, now: time.Now}
}

// ResolveArea matches name against the user's areas.
func (d *Dispatcher) ResolveArea(ctx context.Context, name, userID string) (action.Area, error) {
	areas, err := d.store.Areas(ctx, userID)
	if err != nil {
		return action.Area{}, err
	}
	return action.Resolve(name, areas, action.AreaName)
}

// ResolveDevice finds the single active actuator of typ in the named area.
func (d *Dispatcher) ResolveDevice(ctx context.Context, typ action.DeviceType, areaName, userID string) (action.Device, error) {
	area, err := d.ResolveArea(ctx, areaName, userID)
	if err != nil {
		return action.Device{}, err
	}
	devices, err := d.store.devicesIn(ctx, area.ID, string(typ), userID)
	if err != nil {
		return action.Device{}, err
	}
	switch len(devices) {
	case 0:
		return action.Device{}, fmt.Errorf("%w: no %s in %q", action.ErrNotResolved, typ, area.Name)
	case 1:
		return devices[0], nil
	default:
		return action.Device{}, fmt.Errorf("%w: %d %s devices in %q", action.ErrAmbiguous, len(devices), typ, area.Name)
	}
}

// SendCommand publishes cmd. A command nobody is subscribed to is reported
// as not accepted.
func (d *Dispatcher) SendCommand(ctx context.Context, dev action.Device, cmd action.Command) (action.CommandResult, error) {
	msg := CommandMessage{
		CommandID:       uuid.NewString(),
		DeviceID:        dev.ID,
		Serial:          dev.Serial,
		DeviceType:      dev.Type,
		AreaID:          dev.AreaID,
		Action:          cmd.Action,
		DurationSeconds: int(cmd.Duration / time.Second),
		AutoMode:        cmd.AutoMode,
		IssuedAt:        d.now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return action.CommandResult{}, err
	}
	receivers, err := d.rdb.Publish(ctx, d.channel, payload).Result()
	if err != nil {
		return action.CommandResult{}, fmt.Errorf("farmstore: publish command: %w", err)
	}
	logger.Infof("farmstore: command %s %s -> %s (%d receivers)", msg.CommandID, cmd.Action, dev.Serial, receivers)
	if receivers == 0 {
		return action.CommandResult{CommandID: msg.CommandID, Message: msgNoListener}, nil
	}
	return action.CommandResult{CommandID: msg.CommandID, Accepted: true}, nil
}
