package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMemoryVehicleStore_Queries(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -1)
	soon := now.AddDate(0, 0, 5)
	far := now.AddDate(0, 3, 0)

	store := NewMemoryVehicleStore(
		models.Vehicle{VehicleNumber: "dt-b", InsuranceExpiry: &soon},
		models.Vehicle{VehicleNumber: "dt-a", EmissionExpiry: &past},
		models.Vehicle{VehicleNumber: "dt-c", LeaseDue: &far},
		models.Vehicle{VehicleNumber: "dt-d"},
	)
	ctx := context.Background()

	inRange, err := store.QueryVehiclesWithAnyFieldInRange(ctx, models.TrackedFields, now, now.AddDate(0, 0, 30))
	require.NoError(t, err)
	require.Len(t, inRange, 1)
	assert.Equal(t, "DT-B", inRange[0].VehicleNumber)

	before, err := store.QueryVehiclesWithAnyFieldBefore(ctx, models.TrackedFields, now)
	require.NoError(t, err)
	require.Len(t, before, 1)
	assert.Equal(t, "DT-A", before[0].VehicleNumber)

	all, err := store.FetchAllVehicles(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "DT-A", all[0].VehicleNumber)

	store.QueryErr = errors.New("db down")
	_, err = store.FetchAllVehicles(ctx)
	assert.Error(t, err)
}

func TestMemoryVehicleStore_AppendCutoff(t *testing.T) {
	store := NewMemoryVehicleStore(models.Vehicle{VehicleNumber: "DT-001"})
	v, ok := store.Vehicle("DT-001")
	require.True(t, ok)
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	midnight := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	rec := models.NotificationRecord{Sent: true, SentAt: at}
	appended, err := store.AppendNotificationRecord(ctx, v.ID, models.CategoryService, rec, midnight)
	require.NoError(t, err)
	assert.True(t, appended)

	rec.SentAt = at.Add(14 * time.Hour)
	appended, err = store.AppendNotificationRecord(ctx, v.ID, models.CategoryService, rec, midnight)
	require.NoError(t, err)
	assert.False(t, appended)

	// Under 24 hours after the first record, but on the next date.
	rec.SentAt = at.Add(24*time.Hour - 5*time.Millisecond)
	appended, err = store.AppendNotificationRecord(ctx, v.ID, models.CategoryService, rec, midnight.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, appended)

	appended, err = store.AppendNotificationRecord(ctx, v.ID, models.CategoryService, rec, time.Time{})
	require.NoError(t, err)
	assert.True(t, appended)

	_, err = store.AppendNotificationRecord(ctx, v.ID, "bogus", rec, time.Time{})
	assert.Error(t, err)

	_, err = store.AppendNotificationRecord(ctx, primitive.NewObjectID(), models.CategoryService, rec, midnight)
	assert.ErrorIs(t, err, ErrVehicleNotFound)

	v, _ = store.Vehicle("DT-001")
	assert.Len(t, v.Notifications.ServiceAlerts, 3)
}
