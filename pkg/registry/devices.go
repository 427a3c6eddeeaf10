package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nicktill/facilityobs/pkg/model"
)

const deviceColumns = `id, display_name, type, sensors, owner, last_update, last_seen,
	last_data, show_on_dashboard, reset_status, created_at`

// DeviceFilter narrows ListDevices.
type DeviceFilter struct {
	// Owner restricts to one user's devices (empty = all owners)
	Owner string

	// DashboardOnly hides devices with ShowOnDashboard unset
	DashboardOnly bool
}

// DevicePatch holds the user-editable device fields; nil leaves a field unchanged.
type DevicePatch struct {
	DisplayName     *string                   `json:"displayName,omitempty"`
	Sensors         *[]model.SensorDefinition `json:"sensors,omitempty"`
	ShowOnDashboard *bool                     `json:"showOnDashboard,omitempty"`
	ResetStatus     *int                      `json:"resetStatus,omitempty"`
}

// CreateDevice inserts a provisioned device.
func (r *Registry) CreateDevice(ctx context.Context, d model.Device) error {
	return r.CreateDevices(ctx, []model.Device{d})
}

// CreateDevices inserts devices in one transaction: either all of them are
// created or none are.
func (r *Registry) CreateDevices(ctx context.Context, devices []model.Device) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, d := range devices {
		sensors, err := json.Marshal(d.Sensors)
		if err != nil {
			return fmt.Errorf("failed to encode sensors for %s: %w", d.ID, err)
		}
		if d.CreatedAt.IsZero() {
			d.CreatedAt = time.Now()
		}

		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices WHERE id = ?`, d.ID).Scan(&n); err != nil {
			return fmt.Errorf("failed to check device: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", ErrDeviceExists, d.ID)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO devices (id, display_name, type, sensors, owner, show_on_dashboard, reset_status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.DisplayName, string(d.Type), string(sensors), d.Owner,
			d.ShowOnDashboard, d.ResetStatus, toNanos(d.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert device %s: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

// GetDevice returns the device with the given id.
func (r *Registry) GetDevice(ctx context.Context, id string) (model.Device, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	return scanDevice(row)
}

// ListDevices returns devices matching the filter, most recently updated
// first; never-synced devices sort last.
func (r *Registry) ListDevices(ctx context.Context, filter DeviceFilter) ([]model.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE 1 = 1`
	var args []any
	if filter.Owner != "" {
		query += ` AND owner = ?`
		args = append(args, filter.Owner)
	}
	if filter.DashboardOnly {
		query += ` AND show_on_dashboard = 1`
	}
	query += ` ORDER BY last_update IS NULL, last_update DESC, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	devices := []model.Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// UpdateDevice applies patch and returns the updated device.
func (r *Registry) UpdateDevice(ctx context.Context, id string, patch DevicePatch) (model.Device, error) {
	sets := ""
	var args []any
	add := func(col string, v any) {
		if sets != "" {
			sets += ", "
		}
		sets += col + " = ?"
		args = append(args, v)
	}

	if patch.DisplayName != nil {
		add("display_name", *patch.DisplayName)
	}
	if patch.Sensors != nil {
		sensors, err := json.Marshal(*patch.Sensors)
		if err != nil {
			return model.Device{}, fmt.Errorf("failed to encode sensors: %w", err)
		}
		add("sensors", string(sensors))
	}
	if patch.ShowOnDashboard != nil {
		add("show_on_dashboard", *patch.ShowOnDashboard)
	}
	if patch.ResetStatus != nil {
		add("reset_status", *patch.ResetStatus)
	}

	if sets != "" {
		args = append(args, id)
		res, err := r.db.ExecContext(ctx, `UPDATE devices SET `+sets+` WHERE id = ?`, args...)
		if err != nil {
			return model.Device{}, fmt.Errorf("failed to update device: %w", err)
		}
		if err := requireAffected(res, ErrDeviceNotFound); err != nil {
			return model.Device{}, err
		}
	}
	return r.GetDevice(ctx, id)
}

// DeleteDevice removes a device. Its reading history is left to retention.
func (r *Registry) DeleteDevice(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	return requireAffected(res, ErrDeviceNotFound)
}

// RecordIngest updates a device's heartbeat after a reading is stored.
// LastUpdate only moves forward so backfilled readings don't rewind it.
func (r *Registry) RecordIngest(ctx context.Context, id string, ts, seen time.Time, values map[string]float64) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode last data: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE devices SET
			last_update = CASE WHEN last_update IS NULL OR last_update < ? THEN ? ELSE last_update END,
			last_seen = ?,
			last_data = ?
		 WHERE id = ?`,
		toNanos(ts), toNanos(ts), toNanos(seen), string(data), id)
	if err != nil {
		return fmt.Errorf("failed to record ingest: %w", err)
	}
	return requireAffected(res, ErrDeviceNotFound)
}

// ResetStatus returns the device's pending reset flag.
func (r *Registry) ResetStatus(ctx context.Context, id string) (int, error) {
	var status int
	err := r.db.QueryRowContext(ctx, `SELECT reset_status FROM devices WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrDeviceNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query reset status: %w", err)
	}
	return status, nil
}

// SetResetStatus sets the device's reset flag.
func (r *Registry) SetResetStatus(ctx context.Context, id string, status int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE devices SET reset_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to set reset status: %w", err)
	}
	return requireAffected(res, ErrDeviceNotFound)
}

func scanDevice(row rowScanner) (model.Device, error) {
	var (
		d          model.Device
		typ        string
		sensors    string
		lastUpdate sql.NullInt64
		lastSeen   sql.NullInt64
		lastData   sql.NullString
		createdAt  int64
	)
	err := row.Scan(&d.ID, &d.DisplayName, &typ, &sensors, &d.Owner, &lastUpdate, &lastSeen,
		&lastData, &d.ShowOnDashboard, &d.ResetStatus, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Device{}, ErrDeviceNotFound
	}
	if err != nil {
		return model.Device{}, fmt.Errorf("failed to scan device: %w", err)
	}

	d.Type = model.DeviceType(typ)
	d.LastUpdate = nullableTime(lastUpdate)
	d.LastSeen = nullableTime(lastSeen)
	d.CreatedAt = fromNanos(createdAt)

	if err := json.Unmarshal([]byte(sensors), &d.Sensors); err != nil {
		return model.Device{}, fmt.Errorf("failed to decode sensors for %s: %w", d.ID, err)
	}
	if lastData.Valid && lastData.String != "" {
		if err := json.Unmarshal([]byte(lastData.String), &d.LastData); err != nil {
			return model.Device{}, fmt.Errorf("failed to decode last data for %s: %w", d.ID, err)
		}
	}
	return d, nil
}
