package db

import (
	"context"
	"os"
	"testing"

	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

func userCollectionForTest(t *testing.T) (*MongoUserCollection, *mongo.Client) {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set, skipping integration test")
	}
	client, err := ConnectMongo(context.Background(), uri)
	if err != nil {
		t.Skipf("failed to create client: %v, skipping integration test", err)
	}
	collection := client.Database("test_dt_vehicles").Collection("users")
	collection.Drop(context.Background())
	return &MongoUserCollection{Collection: collection}, client
}

func TestMongoUserCollection_InsertAndFind(t *testing.T) {
	userCollection, client := userCollectionForTest(t)
	defer client.Disconnect(context.Background())

	user := models.User{
		Username:     "fleetmanager",
		Email:        "manager@deeptec.com",
		PasswordHash: "hashedpassword",
		Role:         models.RoleManager,
		Department:   models.DepartmentOperations,
	}
	require.NoError(t, userCollection.InsertUser(context.Background(), user))

	found, err := userCollection.FindUserByUsername(context.Background(), "fleetmanager")
	require.NoError(t, err)
	assert.Equal(t, user.Email, found.Email)
	assert.Equal(t, user.Role, found.Role)
	assert.True(t, found.IsActive)
	assert.NotZero(t, found.CreatedAt)

	_, err = userCollection.FindUserByUsername(context.Background(), "nonexistent")
	assert.Error(t, err)
}

func TestMongoUserCollection_UpdateLastLogin(t *testing.T) {
	userCollection, client := userCollectionForTest(t)
	defer client.Disconnect(context.Background())

	require.NoError(t, userCollection.InsertUser(context.Background(), models.User{Username: "viewer", Role: models.RoleViewer}))
	found, err := userCollection.FindUserByUsername(context.Background(), "viewer")
	require.NoError(t, err)
	assert.Nil(t, found.LastLogin)

	require.NoError(t, userCollection.UpdateLastLogin(context.Background(), found.ID.Hex()))
	found, err = userCollection.FindUserByUsername(context.Background(), "viewer")
	require.NoError(t, err)
	assert.NotNil(t, found.LastLogin)

	assert.Error(t, userCollection.UpdateLastLogin(context.Background(), "invalid-id"))
}

func TestMongoUserCollection_NilCollection(t *testing.T) {
	coll := &MongoUserCollection{}
	_, err := coll.FindUserByUsername(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNilCollection)
	assert.ErrorIs(t, coll.UpdateLastLogin(context.Background(), "x"), ErrNilCollection)
	assert.ErrorIs(t, coll.InsertUser(context.Background(), models.User{}), ErrNilCollection)
}
