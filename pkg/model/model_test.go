package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSensorDefinition_InRange(t *testing.T) {
	s := SensorTemplate(DeviceTypeRST)[0]

	assert.True(t, s.InRange(20))
	assert.True(t, s.InRange(25))
	assert.False(t, s.InRange(19.99))
	assert.False(t, s.InRange(25.01))

	unbounded := SensorDefinition{Field: "field9"}
	assert.True(t, unbounded.InRange(-1e9))
}

func TestSensorDefinition_Header(t *testing.T) {
	assert.Equal(t, "Temperature (°C)", SensorTemplate(DeviceTypeRST)[0].Header())
	assert.Equal(t, "Count", SensorDefinition{Name: "Count"}.Header())
}

func TestDevice_Sensor(t *testing.T) {
	d := Device{ID: "DPT1", Type: DeviceTypeDPT, Sensors: SensorTemplate(DeviceTypeDPT)}

	s, ok := d.Sensor("field1")
	require.True(t, ok)
	assert.Equal(t, "Pa", s.Unit)
	assert.False(t, d.HasField("field2"))
}

func TestSensorTemplate_Unknown(t *testing.T) {
	assert.Nil(t, SensorTemplate("XYZ"))
	assert.False(t, DeviceType("XYZ").Valid())
	assert.True(t, DeviceTypeDPT.Valid())
}
