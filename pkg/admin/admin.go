// Package admin implements account seeding, user management and device
// provisioning for administrators.
package admin

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/nicktill/facilityobs/pkg/auth"
	"github.com/nicktill/facilityobs/pkg/config"
	"github.com/nicktill/facilityobs/pkg/logging"
	"github.com/nicktill/facilityobs/pkg/model"
	"github.com/nicktill/facilityobs/pkg/registry"
	"github.com/nicktill/facilityobs/pkg/storage"
)

var (
	// ErrInvalidType is returned when provisioning an unknown device type.
	ErrInvalidType = errors.New("type must be RST or DPT")

	// ErrInvalidCount is returned when the provisioning count is out of range.
	ErrInvalidCount = fmt.Errorf("count must be between 1 and %d", config.MaxProvisionCount)

	// ErrMissingCredentials is returned when a username or password is empty.
	ErrMissingCredentials = errors.New("username and password are required")
)

// Store is the registry surface the admin service needs.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string, role model.Role) (model.User, error)
	GetUser(ctx context.Context, id string) (model.User, error)
	Credentials(ctx context.Context, username string) (model.User, string, error)
	ListUsers(ctx context.Context, role model.Role) ([]model.User, error)
	CreateDevices(ctx context.Context, devices []model.Device) error
	ListDevices(ctx context.Context, filter registry.DeviceFilter) ([]model.Device, error)
	DeleteDevice(ctx context.Context, id string) error
}

// Service performs administrative changes against the registry and the
// reading history.
type Service struct {
	store   Store
	history storage.Storage
	intn    func(n int) int
}

// NewService creates an admin service.
func NewService(store Store, history storage.Storage) *Service {
	return &Service{store: store, history: history, intn: rand.IntN}
}

// Seed creates the admin account with the given credentials unless a user
// with that name already exists. It reports whether an account was created.
func (s *Service) Seed(ctx context.Context, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, ErrMissingCredentials
	}

	_, _, err := s.store.Credentials(ctx, username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, registry.ErrUserNotFound) {
		return false, fmt.Errorf("failed to look up %s: %w", username, err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, err
	}
	if _, err := s.store.CreateUser(ctx, username, hash, model.RoleAdmin); err != nil {
		if errors.Is(err, registry.ErrUsernameTaken) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create admin: %w", err)
	}

	logging.Infow("admin account created", "username", username)
	return true, nil
}

// CreateUser adds a regular user account.
func (s *Service) CreateUser(ctx context.Context, username, password string) (model.User, error) {
	if username == "" || password == "" {
		return model.User{}, ErrMissingCredentials
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return model.User{}, err
	}
	user, err := s.store.CreateUser(ctx, username, hash, model.RoleUser)
	if err != nil {
		return model.User{}, err
	}

	logging.Infow("user created", "user_id", user.ID, "username", username)
	return user, nil
}

// Users lists regular user accounts.
func (s *Service) Users(ctx context.Context) ([]model.User, error) {
	return s.store.ListUsers(ctx, model.RoleUser)
}

// Devices lists the devices owned by userID.
func (s *Service) Devices(ctx context.Context, userID string) ([]model.Device, error) {
	return s.store.ListDevices(ctx, registry.DeviceFilter{Owner: userID})
}

// Provision creates count devices of type t for userID with the type's
// default sensors. Ids are the type followed by an 8-digit number counting
// up from a random base.
func (s *Service) Provision(ctx context.Context, userID string, t model.DeviceType, count int) ([]model.Device, error) {
	if !t.Valid() {
		return nil, ErrInvalidType
	}
	if count < 1 || count > config.MaxProvisionCount {
		return nil, ErrInvalidCount
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	base := config.DeviceIDRandomBase + s.intn(config.DeviceIDRandomSpan-count)
	now := time.Now()

	devices := make([]model.Device, 0, count)
	for i := 1; i <= count; i++ {
		d := model.Device{
			ID:              fmt.Sprintf("%s%d", t, base+i),
			DisplayName:     fmt.Sprintf("%s Device %d", t, i),
			Type:            t,
			Sensors:         model.SensorTemplate(t),
			Owner:           userID,
			ShowOnDashboard: true,
			CreatedAt:       now,
		}
		devices = append(devices, d)
	}
	if err := s.store.CreateDevices(ctx, devices); err != nil {
		return nil, fmt.Errorf("failed to provision %d %s devices: %w", count, t, err)
	}

	logging.Infow("devices provisioned", "user_id", userID, "type", t, "count", count,
		"first", devices[0].ID, "last", devices[len(devices)-1].ID)
	return devices, nil
}

// DeleteDevice removes a device and its reading history.
func (s *Service) DeleteDevice(ctx context.Context, id string) error {
	if err := s.store.DeleteDevice(ctx, id); err != nil {
		return err
	}

	err := s.history.Delete(ctx, storage.DeleteOptions{DeviceID: id, Before: time.Unix(0, math.MaxInt64)})
	if err != nil {
		// The device is already gone; orphaned readings are unreachable.
		logging.Warnw("failed to purge device history", "device", id, "error", err)
	}

	logging.Infow("device deleted", "device", id)
	return nil
}
