// Package devices serves the dashboard's device views: listings with
// online status, settings, history, chart series and limit alerts.
package devices

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nicktill/facilityobs/pkg/model"
)

// Status is a device's connectivity state derived from its newest reading.
type Status string

const (
	StatusOnline      Status = "online"
	StatusOffline     Status = "offline"
	StatusNeverSynced Status = "never_synced"
)

// StatusAt reports d's status at now: online while the newest reading is
// no older than threshold.
func StatusAt(d model.Device, now time.Time, threshold time.Duration) Status {
	if d.LastUpdate == nil {
		return StatusNeverSynced
	}
	if now.Sub(*d.LastUpdate) <= threshold {
		return StatusOnline
	}
	return StatusOffline
}

// View is a device as returned by the API.
type View struct {
	model.Device
	Status Status `json:"status"`
	Online bool   `json:"online"`
}

func newView(d model.Device, now time.Time, threshold time.Duration) View {
	status := StatusAt(d, now, threshold)
	return View{Device: d, Status: status, Online: status == StatusOnline}
}

// Alert is a sensor whose latest value lies outside its limits.
type Alert struct {
	DeviceID   string    `json:"deviceId"`
	DeviceName string    `json:"deviceName"`
	Field      string    `json:"field"`
	Sensor     string    `json:"sensor"`
	Unit       string    `json:"unit"`
	Value      float64   `json:"value"`
	Min        *float64  `json:"min,omitempty"`
	Max        *float64  `json:"max,omitempty"`
	Kind       string    `json:"kind"` // "low" or "high"
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
}

// Alerts checks each device's latest data against its sensor limits.
func Alerts(devices []model.Device) []Alert {
	alerts := []Alert{}
	for _, d := range devices {
		for _, s := range d.Sensors {
			v, ok := d.LastData[s.Field]
			if !ok || s.InRange(v) {
				continue
			}

			kind := "high"
			if s.Min != nil && v < *s.Min {
				kind = "low"
			}
			a := Alert{
				DeviceID:   d.ID,
				DeviceName: d.DisplayName,
				Field:      s.Field,
				Sensor:     s.Name,
				Unit:       s.Unit,
				Value:      v,
				Min:        s.Min,
				Max:        s.Max,
				Kind:       kind,
				Message: fmt.Sprintf("%s: %s is %s%s (Limit: %s-%s)",
					d.DisplayName, s.Name, formatFloat(&v), s.Unit, formatFloat(s.Min), formatFloat(s.Max)),
			}
			if d.LastUpdate != nil {
				a.Timestamp = *d.LastUpdate
			}
			alerts = append(alerts, a)
		}
	}
	return alerts
}

func formatFloat(v *float64) string {
	if v == nil {
		return "none"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
