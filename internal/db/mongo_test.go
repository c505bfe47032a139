package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestConnectMongo_BadURI(t *testing.T) {
	client, err := ConnectMongo(context.Background(), "mongodb://bad:uri")
	assert.Error(t, err)
	assert.Nil(t, client)
}

func TestMongoVehicleCollection_NilCollection(t *testing.T) {
	coll := &MongoVehicleCollection{}
	ctx := context.Background()

	_, err := coll.FetchAllVehicles(ctx)
	assert.ErrorIs(t, err, ErrNilCollection)

	_, err = coll.QueryVehiclesWithAnyFieldBefore(ctx, models.TrackedFields, time.Now())
	assert.ErrorIs(t, err, ErrNilCollection)

	_, err = coll.AppendNotificationRecord(ctx, primitive.NewObjectID(), models.CategoryInsurance, models.NotificationRecord{}, time.Now())
	assert.ErrorIs(t, err, ErrNilCollection)

	assert.ErrorIs(t, coll.EnsureIndexes(ctx), ErrNilCollection)
}

func TestAppendPipeline(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	rec := models.NotificationRecord{Field: models.FieldInsuranceExpiry, Sent: true, SentAt: now}
	p := appendPipeline("notifications.insuranceAlerts", rec, now)
	require.Len(t, p, 2)

	// A null notifications field is replaced before the dotted path is set.
	first := p[0][0].Value.(bson.M)
	assert.Equal(t, bson.M{"$ifNull": bson.A{"$notifications", bson.M{"$literal": bson.M{}}}}, first["notifications"])

	second := p[1][0].Value.(bson.M)
	assert.Equal(t, now, second["updatedAt"])
	assert.Equal(t, bson.M{"$concatArrays": bson.A{
		bson.M{"$ifNull": bson.A{"$notifications.insuranceAlerts", bson.A{}}},
		bson.A{bson.M{"$literal": rec}},
	}}, second["notifications.insuranceAlerts"])
}

func TestCategoryPath(t *testing.T) {
	p, err := categoryPath(models.CategoryRevenue)
	require.NoError(t, err)
	assert.Equal(t, "notifications.revenueAlerts", p)

	_, err = categoryPath("fitnessAlerts")
	assert.Error(t, err)
}

// Integration test (requires running MongoDB)
func TestMongoVehicleCollection_Integration(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set, skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	client, err := ConnectMongo(ctx, uri)
	if err != nil {
		t.Skipf("failed to connect: %v, skipping integration test", err)
	}
	defer client.Disconnect(context.Background())

	collection := client.Database("test_dt_vehicles").Collection("vehicles")
	_ = collection.Drop(ctx)
	coll := &MongoVehicleCollection{Collection: collection}
	require.NoError(t, coll.EnsureIndexes(ctx))

	now := time.Now().UTC().Truncate(time.Millisecond)
	past := now.AddDate(0, 0, -6)
	soon := now.AddDate(0, 0, 10)
	far := now.AddDate(1, 0, 0)

	expired := &models.Vehicle{VehicleNumber: "dt-002", Department: models.DepartmentOperations, InsuranceExpiry: &past, RevenueExpiry: &far}
	upcoming := &models.Vehicle{VehicleNumber: "DT-003", Department: models.DepartmentSales, InsuranceExpiry: &far, RevenueExpiry: &soon}
	quiet := &models.Vehicle{VehicleNumber: "DT-004", Department: models.DepartmentSales, InsuranceExpiry: &far, RevenueExpiry: &far}
	for _, v := range []*models.Vehicle{expired, upcoming, quiet} {
		require.NoError(t, coll.InsertVehicle(ctx, v))
	}

	inRange, err := coll.QueryVehiclesWithAnyFieldInRange(ctx, models.TrackedFields, now, now.AddDate(0, 0, 30))
	require.NoError(t, err)
	require.Len(t, inRange, 1)
	assert.Equal(t, "DT-003", inRange[0].VehicleNumber)

	before, err := coll.QueryVehiclesWithAnyFieldBefore(ctx, models.TrackedFields, now)
	require.NoError(t, err)
	require.Len(t, before, 1)
	assert.Equal(t, "DT-002", before[0].VehicleNumber)

	all, err := coll.FetchAllVehicles(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	rec := models.NotificationRecord{Field: models.FieldInsuranceExpiry, AlertDate: now, DaysUntilExpiry: -6, Sent: true, SentAt: now, Method: "email"}
	ok, err := coll.AppendNotificationRecord(ctx, expired.ID, models.CategoryInsurance, rec, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	rec.SentAt = now.Add(time.Hour)
	ok, err = coll.AppendNotificationRecord(ctx, expired.ID, models.CategoryInsurance, rec, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "a sent record after the cutoff must reject the append")

	_, err = coll.AppendNotificationRecord(ctx, primitive.NewObjectID(), models.CategoryInsurance, rec, now)
	assert.ErrorIs(t, err, ErrVehicleNotFound)

	// Documents written elsewhere may hold null instead of an alert list.
	nullID := primitive.NewObjectID()
	_, err = collection.InsertOne(ctx, bson.M{"_id": nullID, "vehicleNumber": "DT-NULL", "notifications": nil})
	require.NoError(t, err)
	ok, err = coll.AppendNotificationRecord(ctx, nullID, models.CategoryInsurance, rec, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = coll.AppendNotificationRecord(ctx, nullID, models.CategoryInsurance, rec, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)
	nulled, err := coll.FindVehicleByID(ctx, nullID)
	require.NoError(t, err)
	assert.Len(t, nulled.Notifications.InsuranceAlerts, 1)

	stored, err := coll.FindVehicleByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Notifications.InsuranceAlerts, 1)

	_, err = coll.FindVehicleByID(ctx, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrVehicleNotFound)

	err = coll.InsertVehicle(ctx, &models.Vehicle{VehicleNumber: "DT-005"})
	assert.Error(t, err)
}
