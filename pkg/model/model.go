// Package model holds the domain types shared by ingestion, storage, the
// registry and the report pipeline.
package model

import (
	"fmt"
	"time"
)

// DeviceType identifies the kind of sensor node.
type DeviceType string

const (
	// DeviceTypeRST is a room temperature/humidity node.
	DeviceTypeRST DeviceType = "RST"
	// DeviceTypeDPT is a differential pressure node.
	DeviceTypeDPT DeviceType = "DPT"
)

// Valid reports whether t is a known device type.
func (t DeviceType) Valid() bool {
	return t == DeviceTypeRST || t == DeviceTypeDPT
}

// Role is a user's authorization level.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// Reading is one timestamped measurement submission from a device.
// Values maps a sensor field (field1, field2, ...) to its measured value.
type Reading struct {
	DeviceID  string             `json:"device_id" msgpack:"d"`
	Timestamp time.Time          `json:"timestamp" msgpack:"t"`
	Values    map[string]float64 `json:"values" msgpack:"v"`
}

// SensorDefinition describes one measured quantity of a device.
type SensorDefinition struct {
	Field string   `json:"field"`
	Name  string   `json:"name"`
	Unit  string   `json:"unit"`
	Min   *float64 `json:"min,omitempty"`
	Max   *float64 `json:"max,omitempty"`
}

// InRange reports whether v lies within the sensor's optional limits.
func (s SensorDefinition) InRange(v float64) bool {
	if s.Min != nil && v < *s.Min {
		return false
	}
	if s.Max != nil && v > *s.Max {
		return false
	}
	return true
}

// Header returns the column header used in reports, e.g. "Temperature (°C)".
func (s SensorDefinition) Header() string {
	if s.Unit == "" {
		return s.Name
	}
	return fmt.Sprintf("%s (%s)", s.Name, s.Unit)
}

// Device is a physical sensor node registered with the dashboard.
type Device struct {
	ID              string             `json:"id"`
	DisplayName     string             `json:"displayName"`
	Type            DeviceType         `json:"type"`
	Sensors         []SensorDefinition `json:"sensors"`
	Owner           string             `json:"owner"`
	LastUpdate      *time.Time         `json:"lastUpdate,omitempty"`
	LastSeen        *time.Time         `json:"lastSeen,omitempty"`
	LastData        map[string]float64 `json:"lastData,omitempty"`
	ShowOnDashboard bool               `json:"showOnDashboard"`
	ResetStatus     int                `json:"resetStatus"`
	CreatedAt       time.Time          `json:"createdAt"`
}

// HasField reports whether the device declares a sensor for field.
func (d Device) HasField(field string) bool {
	_, ok := d.Sensor(field)
	return ok
}

// Sensor returns the sensor definition for field.
func (d Device) Sensor(field string) (SensorDefinition, bool) {
	for _, s := range d.Sensors {
		if s.Field == field {
			return s, true
		}
	}
	return SensorDefinition{}, false
}

// User is a dashboard account. Password hashes are kept out of this type.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}
