package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisKV(t *testing.T) *RedisKV {
	t.Helper()
	mr := miniredis.RunT(t)
	kv, err := NewRedisKV(mr.Addr(), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func TestRedisKVGetMissing(t *testing.T) {
	kv := newTestRedisKV(t)
	_, err := kv.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisKVSetAllGetAll(t *testing.T) {
	kv := newTestRedisKV(t)
	ctx := context.Background()

	err := kv.SetAll(ctx, map[string]string{
		"device_id": "dev-1",
		"car_id":    "3",
		"timestamp": "1717200000000",
	})
	require.NoError(t, err)

	vals, err := kv.GetAll(ctx, "device_id", "car_id", "timestamp", "missing")
	require.NoError(t, err)
	assert.Equal(t, "dev-1", vals["device_id"])
	assert.Equal(t, "3", vals["car_id"])
	assert.Equal(t, "1717200000000", vals["timestamp"])
	_, ok := vals["missing"]
	assert.False(t, ok)

	v, err := kv.Get(ctx, "device_id")
	require.NoError(t, err)
	assert.Equal(t, "dev-1", v)
}

func TestIdentityOverRedis(t *testing.T) {
	kv := newTestRedisKV(t)
	s := newTestIdentity(t, kv)
	ctx := context.Background()

	id, err := s.DeviceID(ctx)
	require.NoError(t, err)

	info, err := s.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, info.DeviceID)
	assert.Equal(t, 0, info.CarID)
	assert.Greater(t, info.Timestamp, int64(0))
}
