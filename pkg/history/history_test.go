package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/facilityobs/pkg/config"
	"github.com/nicktill/facilityobs/pkg/model"
	"github.com/nicktill/facilityobs/pkg/storage/memory"
)

func seed(t *testing.T, now time.Time, n int, step time.Duration) *memory.Storage {
	t.Helper()
	store := memory.New()
	readings := make([]model.Reading, 0, n)
	for i := 0; i < n; i++ {
		readings = append(readings, model.Reading{
			DeviceID:  "RST1",
			Timestamp: now.Add(-time.Duration(i) * step),
			Values:    map[string]float64{"field1": float64(i)},
		})
	}
	require.NoError(t, store.Write(context.Background(), readings))
	return store
}

func TestFetch_Recent(t *testing.T) {
	now := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	// 48h of minute readings
	svc := NewService(seed(t, now, 48*60, time.Minute))
	svc.now = func() time.Time { return now }

	got, err := svc.Fetch(context.Background(), "RST1", RangeRecent)
	require.NoError(t, err)
	require.Len(t, got, config.RecentHistoryLimit)

	assert.True(t, got[len(got)-1].Timestamp.Equal(now), "newest reading last")
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].Timestamp.Before(got[i-1].Timestamp))
	}
}

func TestFetch_All(t *testing.T) {
	now := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	svc := NewService(seed(t, now, config.AllHistoryLimit+100, time.Hour))

	got, err := svc.Fetch(context.Background(), "RST1", RangeAll)
	require.NoError(t, err)
	require.Len(t, got, config.AllHistoryLimit)
	assert.True(t, got[len(got)-1].Timestamp.Equal(now))
}

func TestBetween(t *testing.T) {
	now := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	svc := NewService(seed(t, now, 10*24, time.Hour))

	start := now.Add(-72 * time.Hour)
	got, err := svc.Between(context.Background(), "RST1", start, now, 0)
	require.NoError(t, err)
	assert.Len(t, got, 73)
	assert.True(t, got[0].Timestamp.Equal(start))

	capped, err := svc.Between(context.Background(), "RST1", start, now, 5)
	require.NoError(t, err)
	require.Len(t, capped, 5)
	assert.True(t, capped[4].Timestamp.Equal(now))
}

func TestParseRange(t *testing.T) {
	assert.Equal(t, RangeAll, ParseRange("all"))
	assert.Equal(t, RangeRecent, ParseRange("24h"))
	assert.Equal(t, RangeRecent, ParseRange(""))
}

func TestFlatten(t *testing.T) {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := Flatten([]model.Reading{{DeviceID: "A", Timestamp: ts, Values: map[string]float64{"field1": 1.5}}})
	require.Len(t, rows, 1)
	assert.Equal(t, ts, rows[0]["timestamp"])
	assert.Equal(t, 1.5, rows[0]["field1"])
}
