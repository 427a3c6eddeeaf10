package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/facilityobs/pkg/model"
)

func rstDevice() model.Device {
	return model.Device{
		ID:          "RST10000001",
		DisplayName: "Clean Room 1",
		Type:        model.DeviceTypeRST,
		Sensors:     model.SensorTemplate(model.DeviceTypeRST),
	}
}

func TestAssemble(t *testing.T) {
	series := []model.Reading{
		{Timestamp: at(10, 0, 0), Values: map[string]float64{"field1": 21.5, "field2": 40}},
		{Timestamp: at(10, 15, 0), Values: map[string]float64{"field1": 26}},
	}
	now := at(12, 30, 0)

	rep := Assemble(rstDevice(), series, dayWindow(), now)

	assert.Equal(t, "RST10000001", rep.DeviceID)
	assert.Equal(t, "Clean Room 1", rep.DeviceName)
	require.Len(t, rep.Columns, 2)
	assert.Equal(t, "Temperature (°C)", rep.Columns[0].Header)
	assert.Equal(t, "Humidity (%)", rep.Columns[1].Header)

	assert.Equal(t, "05/03/2024 10:00:00", rep.DisplayStart)
	assert.Equal(t, "05/03/2024 10:15:00", rep.DisplayEnd)
	assert.Equal(t, now, rep.GeneratedAt)
	assert.Equal(t, dayWindow(), rep.Window)
	assert.False(t, rep.NoData)

	require.Len(t, rep.Rows, 2)
	assert.Equal(t, 1, rep.Rows[0].Sequence)
	assert.Equal(t, "05/03/2024", rep.Rows[0].Date)
	assert.Equal(t, "10:00:00", rep.Rows[0].Time)
	assert.Equal(t, "21.5", rep.Rows[0].Cell("field1"))
	assert.Equal(t, "40", rep.Rows[0].Cell("field2"))

	assert.Equal(t, 2, rep.Rows[1].Sequence)
	assert.Equal(t, "26", rep.Rows[1].Cell("field1"))
	assert.Equal(t, EmptyCell, rep.Rows[1].Cell("field2"), "absent values render as placeholder")
	assert.Contains(t, rep.Rows[1].Values, "field2")
}

func TestAssemble_Empty(t *testing.T) {
	rep := Assemble(rstDevice(), nil, dayWindow(), at(12, 0, 0))

	assert.True(t, rep.NoData)
	assert.Empty(t, rep.Rows)
	assert.Equal(t, EmptyCell, rep.DisplayStart)
	assert.Equal(t, EmptyCell, rep.DisplayEnd)
	assert.Equal(t, "No data available for the selected period", rep.Placeholder)
	assert.Len(t, rep.Columns, 2, "header metadata survives an empty report")
}

func TestAssemble_NameFallsBackToID(t *testing.T) {
	d := rstDevice()
	d.DisplayName = ""
	rep := Assemble(d, nil, dayWindow(), time.Now())
	assert.Equal(t, d.ID, rep.DeviceName)
}

func TestSummarize(t *testing.T) {
	series := []model.Reading{
		{Timestamp: at(10, 0, 0), Values: map[string]float64{"field1": 20, "field2": 50}},
		{Timestamp: at(11, 0, 0), Values: map[string]float64{"field1": 22}},
		{Timestamp: at(12, 0, 0), Values: map[string]float64{"field1": 26}},
	}
	rep := Assemble(rstDevice(), series, dayWindow(), at(13, 0, 0))

	require.Len(t, rep.Summary, 2)
	temp := rep.Summary[0]
	assert.Equal(t, "field1", temp.Field)
	assert.Equal(t, 3, temp.Count)
	assert.Equal(t, 20.0, temp.Min)
	assert.Equal(t, 26.0, temp.Max)
	assert.InDelta(t, 22.6667, temp.Mean, 1e-3)
	assert.InDelta(t, 3.0551, temp.StdDev, 1e-3)
	assert.Equal(t, 1, temp.OutOfRange, "26 °C exceeds the 25 °C limit")

	hum := rep.Summary[1]
	assert.Equal(t, 1, hum.Count)
	assert.Zero(t, hum.StdDev)
	assert.Equal(t, 1, hum.OutOfRange)

	empty := Assemble(rstDevice(), nil, dayWindow(), at(13, 0, 0))
	require.Len(t, empty.Summary, 2)
	assert.Zero(t, empty.Summary[0].Count)
}
