package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNilCollection   = errors.New("mongo collection is nil")
	ErrVehicleNotFound = errors.New("vehicle not found")
)

// ConnectMongo connects to MongoDB and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

// MongoVehicleCollection implements VehicleStore for MongoDB.
type MongoVehicleCollection struct {
	Collection *mongo.Collection
}

// EnsureIndexes creates the unique vehicle number index and one index per
// tracked field so the expiry pre-filters stay index backed.
func (c *MongoVehicleCollection) EnsureIndexes(ctx context.Context) error {
	if c.Collection == nil {
		return ErrNilCollection
	}
	indexes := []mongo.IndexModel{{
		Keys:    bson.D{{Key: "vehicleNumber", Value: 1}},
		Options: options.Index().SetUnique(true),
	}}
	for _, f := range models.TrackedFields {
		indexes = append(indexes, mongo.IndexModel{Keys: bson.D{{Key: string(f), Value: 1}}})
	}
	_, err := c.Collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// InsertVehicle inserts a vehicle record into the collection.
func (c *MongoVehicleCollection) InsertVehicle(ctx context.Context, vehicle *models.Vehicle) error {
	if c.Collection == nil {
		return ErrNilCollection
	}
	vehicle.Normalize()
	if err := vehicle.Validate(); err != nil {
		return err
	}
	now := time.Now()
	vehicle.CreatedAt = now
	vehicle.UpdatedAt = now
	res, err := c.Collection.InsertOne(ctx, vehicle)
	if err != nil {
		return err
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		vehicle.ID = id
	}
	return nil
}

// FindVehicleByID finds a vehicle by its ID.
func (c *MongoVehicleCollection) FindVehicleByID(ctx context.Context, id primitive.ObjectID) (*models.Vehicle, error) {
	if c.Collection == nil {
		return nil, ErrNilCollection
	}
	var vehicle models.Vehicle
	err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&vehicle)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrVehicleNotFound
		}
		return nil, err
	}
	return &vehicle, nil
}

// QueryVehiclesWithAnyFieldInRange implements VehicleStore.
func (c *MongoVehicleCollection) QueryVehiclesWithAnyFieldInRange(ctx context.Context, fields []models.TrackedField, from, to time.Time) ([]models.Vehicle, error) {
	return c.findAny(ctx, fields, bson.M{"$gte": from, "$lte": to})
}

// QueryVehiclesWithAnyFieldBefore implements VehicleStore.
func (c *MongoVehicleCollection) QueryVehiclesWithAnyFieldBefore(ctx context.Context, fields []models.TrackedField, cutoff time.Time) ([]models.Vehicle, error) {
	return c.findAny(ctx, fields, bson.M{"$lt": cutoff})
}

// FetchAllVehicles implements VehicleStore.
func (c *MongoVehicleCollection) FetchAllVehicles(ctx context.Context) ([]models.Vehicle, error) {
	return c.find(ctx, bson.M{})
}

// AppendNotificationRecord appends rec to notifications.<category> in a
// single update whose filter rejects the write when a sent record at or after
// since exists, so overlapping runs cannot both append. The update is a
// pipeline so documents holding null for notifications or the category list
// are repaired instead of failing the write.
func (c *MongoVehicleCollection) AppendNotificationRecord(ctx context.Context, vehicleID primitive.ObjectID, category models.Category, rec models.NotificationRecord, since time.Time) (bool, error) {
	if c.Collection == nil {
		return false, ErrNilCollection
	}
	path, err := categoryPath(category)
	if err != nil {
		return false, err
	}
	filter := bson.M{"_id": vehicleID}
	if !since.IsZero() {
		filter[path] = bson.M{"$not": bson.M{"$elemMatch": bson.M{
			"sent":   true,
			"sentAt": bson.M{"$gte": since},
		}}}
	}
	res, err := c.Collection.UpdateOne(ctx, filter, appendPipeline(path, rec, time.Now()))
	if err != nil {
		return false, err
	}
	if res.MatchedCount > 0 {
		return true, nil
	}

	n, err := c.Collection.CountDocuments(ctx, bson.M{"_id": vehicleID}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, ErrVehicleNotFound
	}
	return false, nil
}

// appendPipeline builds the update appending rec to the array at path.
func appendPipeline(path string, rec models.NotificationRecord, now time.Time) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"notifications": bson.M{"$ifNull": bson.A{"$notifications", bson.M{"$literal": bson.M{}}}},
		}}},
		{{Key: "$set", Value: bson.M{
			path: bson.M{"$concatArrays": bson.A{
				bson.M{"$ifNull": bson.A{"$" + path, bson.A{}}},
				bson.A{bson.M{"$literal": rec}},
			}},
			"updatedAt": now,
		}}},
	}
}

func (c *MongoVehicleCollection) findAny(ctx context.Context, fields []models.TrackedField, cond bson.M) ([]models.Vehicle, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	or := make(bson.A, 0, len(fields))
	for _, f := range fields {
		or = append(or, bson.M{string(f): cond})
	}
	return c.find(ctx, bson.M{"$or": or})
}

func (c *MongoVehicleCollection) find(ctx context.Context, filter interface{}) ([]models.Vehicle, error) {
	if c.Collection == nil {
		return nil, ErrNilCollection
	}
	opts := options.Find().SetSort(bson.D{{Key: "vehicleNumber", Value: 1}})
	cursor, err := c.Collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var vehicles []models.Vehicle
	if err := cursor.All(ctx, &vehicles); err != nil {
		return nil, err
	}
	return vehicles, nil
}

func categoryPath(c models.Category) (string, error) {
	switch c {
	case models.CategoryInsurance, models.CategoryEmission, models.CategoryRevenue, models.CategoryService:
		return "notifications." + string(c), nil
	default:
		return "", fmt.Errorf("unknown notification category %q", c)
	}
}
