package farmstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisense/agriquery/action"
	"github.com/agrisense/agriquery/common/sqlitex"
	"github.com/agrisense/agriquery/schema"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := sqlitex.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s, err := New(db)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.PutFarm(ctx, "u1", action.Farm{ID: "f1", Name: "Trại Xanh", Type: "Rau"}))
	require.NoError(t, s.PutFarm(ctx, "u2", action.Farm{ID: "f2", Name: "Trại Khác"}))
	require.NoError(t, s.PutCrop(ctx, action.Crop{ID: "c1", FarmID: "f1", Name: "Lúa ST25", Type: "Lúa", PlantedArea: 1000}))
	require.NoError(t, s.PutCrop(ctx, action.Crop{ID: "c2", FarmID: "f2", Name: "Ngô", Type: "Ngô"}))
	for i, day := range []int{1, 10, 20} {
		require.NoError(t, s.PutActivity(ctx, action.Activity{
			ID: string(rune('a' + i)), FarmID: "f1", Type: "harvest", Status: action.StatusCompleted,
			Date: time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC), Revenue: 100, Cost: 40,
		}))
	}
	require.NoError(t, s.PutArea(ctx, action.Area{ID: "ar1", FarmID: "f1", Name: "Khu A"}))
	require.NoError(t, s.PutArea(ctx, action.Area{ID: "ar2", FarmID: "f1", Name: "Khu B"}))
	require.NoError(t, s.PutArea(ctx, action.Area{ID: "ar3", FarmID: "f2", Name: "Khu A"}))
	require.NoError(t, s.PutDevice(ctx, action.Device{ID: "s1", Serial: "SN-S1", AreaID: "ar1"}, KindSensor, true))
	require.NoError(t, s.PutDevice(ctx, action.Device{ID: "p1", Serial: "SN-P1", Name: "Bơm 1", AreaID: "ar1"}, string(action.DevicePump), true))
	require.NoError(t, s.PutDevice(ctx, action.Device{ID: "l1", Serial: "SN-L1", Name: "Đèn 1", AreaID: "ar2"}, string(action.DeviceLight), true))
	require.NoError(t, s.PutDevice(ctx, action.Device{ID: "l2", Serial: "SN-L2", Name: "Đèn 2", AreaID: "ar2"}, string(action.DeviceLight), true))
	return s
}

func TestStoreIsScopedToUser(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	farms, err := s.Farms(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, farms, 1)
	assert.Equal(t, "Trại Xanh", farms[0].Name)

	crops, err := s.Crops(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, crops, 1)
	assert.Equal(t, "Lúa ST25", crops[0].Name)

	areas, err := s.Areas(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, areas, 2)
	assert.Equal(t, 1, areas[0].ActiveSensors)
	assert.Equal(t, 0, areas[1].ActiveSensors)

	farms, err = s.Farms(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, farms)
}

func TestStoreActivitiesRange(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	all, err := s.Activities(ctx, "u1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	some, err := s.Activities(ctx, "u1", time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), some[0].Date)
	assert.Equal(t, 100.0, some[0].Revenue)
}

func TestStoreLatestReading(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordReading(ctx, "ar1", "temperature", 25, base))
	require.NoError(t, s.RecordReading(ctx, "ar1", "temperature", 27.5, base.Add(time.Minute)))
	require.NoError(t, s.RecordReading(ctx, "ar1", "soilMoisture", 40, base.Add(30*time.Second)))

	r, err := s.LatestReading(ctx, "ar1")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, map[string]float64{"temperature": 27.5, "soilMoisture": 40}, r.Values)
	assert.Equal(t, base.Add(time.Minute), r.RecordedAt)

	r, err = s.LatestReading(ctx, "ar2")
	require.NoError(t, err)
	assert.Nil(t, r)
}

type fakeRedis struct {
	redis.UniversalClient
	receivers int64
	err       error
	channel   string
	payload   []byte
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.payload, _ = message.([]byte)
	return redis.NewIntResult(f.receivers, f.err)
}

func TestDispatcherResolve(t *testing.T) {
	s := newStore(t)
	d := NewDispatcher(s, &fakeRedis{}, "cmds")
	ctx := context.Background()

	area, err := d.ResolveArea(ctx, "khu a", "u1")
	require.NoError(t, err)
	assert.Equal(t, "ar1", area.ID, "other users' areas are not candidates")

	dev, err := d.ResolveDevice(ctx, action.DevicePump, "Khu A", "u1")
	require.NoError(t, err)
	assert.Equal(t, "SN-P1", dev.Serial)
	assert.Equal(t, action.DevicePump, dev.Type)
	assert.Equal(t, "Khu A", dev.AreaName)

	_, err = d.ResolveDevice(ctx, action.DeviceLight, "Khu B", "u1")
	assert.ErrorIs(t, err, action.ErrAmbiguous)

	_, err = d.ResolveDevice(ctx, action.DeviceLight, "Khu A", "u1")
	assert.ErrorIs(t, err, action.ErrNotResolved)

	_, err = d.ResolveArea(ctx, "Khu A", "u3")
	assert.ErrorIs(t, err, action.ErrNotResolved)
}

func TestDispatcherSendCommand(t *testing.T) {
	s := newStore(t)
	rdb := &fakeRedis{receivers: 1}
	d := NewDispatcher(s, rdb, "cmds")
	d.now = func() time.Time { return time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC) }
	dev := action.Device{ID: "p1", Serial: "SN-P1", Type: action.DevicePump, AreaID: "ar1"}

	res, err := d.SendCommand(context.Background(), dev, action.Command{Action: "on", Duration: 10 * time.Minute})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.NotEmpty(t, res.CommandID)
	assert.Equal(t, "cmds", rdb.channel)

	var msg CommandMessage
	require.NoError(t, json.Unmarshal(rdb.payload, &msg))
	assert.Equal(t, res.CommandID, msg.CommandID)
	assert.Equal(t, 600, msg.DurationSeconds)
	assert.Equal(t, "SN-P1", msg.Serial)

	rdb.receivers = 0
	res, err = d.SendCommand(context.Background(), dev, action.Command{Action: "off"})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, msgNoListener, res.Message)

	rdb.err = errors.New("connection refused")
	_, err = d.SendCommand(context.Background(), dev, action.Command{Action: "off"})
	assert.Error(t, err)
}

func TestRouterOverStore(t *testing.T) {
	s := newStore(t)
	d := NewDispatcher(s, &fakeRedis{receivers: 1}, "cmds")
	r := action.NewRouter(s, d, nil)

	cls := schema.IntentClassification{
		Intent: schema.IntentDeviceControl,
		Entities: []schema.Entity{
			{Type: schema.EntityDeviceName, Value: "máy bơm"},
			{Type: schema.EntityFarmArea, Value: "khu A"},
		},
	}
	res := r.Route(context.Background(), action.Request{Query: "bật máy bơm khu A", UserID: "u1", Classification: cls})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Đã bật tưới Khu A", res.Message)

	res = r.Route(context.Background(), action.Request{Query: "bật máy bơm khu A", UserID: "u2", Classification: cls})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Không tìm thấy máy bơm")
}
