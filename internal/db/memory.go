package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryVehicleStore is an in-memory VehicleStore used in tests and local runs.
type MemoryVehicleStore struct {
	mu       sync.Mutex
	vehicles []models.Vehicle

	// Set to make the corresponding operation fail.
	QueryErr  error
	AppendErr error
}

// NewMemoryVehicleStore creates a store seeded with vehicles. Missing IDs are generated.
func NewMemoryVehicleStore(vehicles ...models.Vehicle) *MemoryVehicleStore {
	s := &MemoryVehicleStore{}
	for _, v := range vehicles {
		if v.ID.IsZero() {
			v.ID = primitive.NewObjectID()
		}
		v.Normalize()
		s.vehicles = append(s.vehicles, v)
	}
	sort.SliceStable(s.vehicles, func(i, j int) bool {
		return s.vehicles[i].VehicleNumber < s.vehicles[j].VehicleNumber
	})
	return s
}

// QueryVehiclesWithAnyFieldInRange implements VehicleStore.
func (s *MemoryVehicleStore) QueryVehiclesWithAnyFieldInRange(_ context.Context, fields []models.TrackedField, from, to time.Time) ([]models.Vehicle, error) {
	return s.filter(fields, func(d time.Time) bool {
		return !d.Before(from) && !d.After(to)
	})
}

// QueryVehiclesWithAnyFieldBefore implements VehicleStore.
func (s *MemoryVehicleStore) QueryVehiclesWithAnyFieldBefore(_ context.Context, fields []models.TrackedField, cutoff time.Time) ([]models.Vehicle, error) {
	return s.filter(fields, func(d time.Time) bool { return d.Before(cutoff) })
}

// FetchAllVehicles implements VehicleStore.
func (s *MemoryVehicleStore) FetchAllVehicles(_ context.Context) ([]models.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.QueryErr != nil {
		return nil, s.QueryErr
	}
	out := make([]models.Vehicle, len(s.vehicles))
	copy(out, s.vehicles)
	return out, nil
}

// AppendNotificationRecord implements VehicleStore with the same cutoff rule as MongoDB.
func (s *MemoryVehicleStore) AppendNotificationRecord(_ context.Context, vehicleID primitive.ObjectID, category models.Category, rec models.NotificationRecord, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AppendErr != nil {
		return false, s.AppendErr
	}
	if _, err := categoryPath(category); err != nil {
		return false, err
	}
	for i := range s.vehicles {
		v := &s.vehicles[i]
		if v.ID != vehicleID {
			continue
		}
		if !since.IsZero() && v.Notifications.SentSince(category, since) {
			return false, nil
		}
		v.Notifications.Append(category, rec)
		return true, nil
	}
	return false, ErrVehicleNotFound
}

// Vehicle returns a copy of the stored vehicle with the given number.
func (s *MemoryVehicleStore) Vehicle(number string) (models.Vehicle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.vehicles {
		if v.VehicleNumber == number {
			return v, true
		}
	}
	return models.Vehicle{}, false
}

func (s *MemoryVehicleStore) filter(fields []models.TrackedField, match func(time.Time) bool) ([]models.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.QueryErr != nil {
		return nil, s.QueryErr
	}
	var out []models.Vehicle
	for _, v := range s.vehicles {
		for _, f := range fields {
			if d := v.FieldDate(f); d != nil && match(*d) {
				out = append(out, v)
				break
			}
		}
	}
	return out, nil
}
