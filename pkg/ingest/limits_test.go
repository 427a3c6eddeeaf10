package ingest

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/facilityobs/pkg/model"
)

func TestExtractValues(t *testing.T) {
	rst := model.Device{ID: "RST1", Sensors: model.SensorTemplate(model.DeviceTypeRST)}

	params, _ := url.ParseQuery("device_code=RST1&field1=21.5&field2=33&field3=9&timestamp=x")
	values, dropped, err := ExtractValues(params, rst)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"field1": 21.5, "field2": 33}, values)
	assert.Equal(t, []string{"field3"}, dropped)

	params, _ = url.ParseQuery("field1=abc")
	_, _, err = ExtractValues(params, rst)
	assert.ErrorIs(t, err, ErrInvalidValue)

	// No declared sensors: every field is accepted
	params, _ = url.ParseQuery("field1=1&field9=2")
	values, dropped, err = ExtractValues(params, model.Device{ID: "X"})
	require.NoError(t, err)
	assert.Len(t, values, 2)
	assert.Empty(t, dropped)
}

func TestDeviceLimiter(t *testing.T) {
	l := NewDeviceLimiter(1, 1)
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, l.Allow("A", now))
	assert.False(t, l.Allow("A", now))
	assert.True(t, l.Allow("B", now))
	assert.True(t, l.Allow("A", now.Add(time.Second)))
	assert.Equal(t, 2, l.Tracked())

	// Idle limiters are swept
	later := now.Add(2 * l.idleTTL)
	assert.True(t, l.Allow("C", later))
	assert.Equal(t, 1, l.Tracked())
}

func TestDeviceLimiter_Disabled(t *testing.T) {
	l := NewDeviceLimiter(0, 0)
	now := time.Now()
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("A", now))
	}
}
