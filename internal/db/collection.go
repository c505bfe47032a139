package db

import (
	"context"
	"time"

	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// VehicleStore defines the vehicle operations the alerting subsystem needs.
type VehicleStore interface {
	// QueryVehiclesWithAnyFieldInRange returns vehicles where at least one of
	// fields lies in [from, to].
	QueryVehiclesWithAnyFieldInRange(ctx context.Context, fields []models.TrackedField, from, to time.Time) ([]models.Vehicle, error)
	// QueryVehiclesWithAnyFieldBefore returns vehicles where at least one of
	// fields is strictly before cutoff.
	QueryVehiclesWithAnyFieldBefore(ctx context.Context, fields []models.TrackedField, cutoff time.Time) ([]models.Vehicle, error)
	// AppendNotificationRecord appends rec to the category list unless a sent
	// record at or after since already exists. A zero since always appends.
	// It reports whether it appended and returns ErrVehicleNotFound for an
	// unknown vehicle.
	AppendNotificationRecord(ctx context.Context, vehicleID primitive.ObjectID, category models.Category, rec models.NotificationRecord, since time.Time) (bool, error)
	FetchAllVehicles(ctx context.Context) ([]models.Vehicle, error)
}

// UserStore defines the user lookups used by authentication.
type UserStore interface {
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string) error
}
