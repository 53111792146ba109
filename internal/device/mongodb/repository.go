// Package mongodb implements the device registry on a MongoDB collection.
package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nerrad567/iotagent-ngsi/internal/device"
)

// Collection holds one document per device.
const Collection = "devices"

// Repository implements device.Registry on MongoDB.
type Repository struct {
	db *mongo.Database
}

var _ device.Registry = (*Repository)(nil)

// NewRepository instantiates a MongoDB implementation of the device registry.
func NewRepository(db *mongo.Database) *Repository {
	return &Repository{db: db}
}

// EnsureIndexes creates the unique index on the device id.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	_, err := r.db.Collection(Collection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return dbError("creating device index", err)
	}
	return nil
}

// Store replaces the document with the same id, inserting it if absent.
func (r *Repository) Store(ctx context.Context, d *device.Device) (*device.Device, error) {
	if err := device.Validate(d); err != nil {
		return nil, err
	}

	stored := d.DeepCopy()
	if stored.Lazy == nil {
		stored.Lazy = []device.Attribute{}
	}

	coll := r.db.Collection(Collection)
	filter := bson.D{{Key: "id", Value: d.ID}}
	if _, err := coll.ReplaceOne(ctx, filter, stored, options.Replace().SetUpsert(true)); err != nil {
		return nil, dbError("storing device", err)
	}

	return stored, nil
}

// Remove deletes a device by id.
func (r *Repository) Remove(ctx context.Context, id string) error {
	coll := r.db.Collection(Collection)

	res, err := coll.DeleteOne(ctx, bson.D{{Key: "id", Value: id}})
	if err != nil {
		return dbError("deleting device", err)
	}
	if res.DeletedCount < 1 {
		return &device.NotFoundError{ID: id}
	}

	return nil
}

// Get retrieves a device by id.
func (r *Repository) Get(ctx context.Context, id string) (*device.Device, error) {
	coll := r.db.Collection(Collection)

	var d device.Device
	if err := coll.FindOne(ctx, bson.D{{Key: "id", Value: id}}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &device.NotFoundError{ID: id}
		}
		return nil, dbError("querying device by id", err)
	}

	return &d, nil
}

// List returns every device ordered by id.
func (r *Repository) List(ctx context.Context) ([]device.Device, error) {
	coll := r.db.Collection(Collection)

	cur, err := coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, dbError("querying devices", err)
	}
	defer cur.Close(ctx)

	devices := []device.Device{}
	for cur.Next(ctx) {
		var d device.Device
		if err := cur.Decode(&d); err != nil {
			return nil, dbError("decoding device", err)
		}
		devices = append(devices, d)
	}
	if err := cur.Err(); err != nil {
		return nil, dbError("iterating devices", err)
	}

	return devices, nil
}

func dbError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", device.ErrInternalDB, op, err)
}
