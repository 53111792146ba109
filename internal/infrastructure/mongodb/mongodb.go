// Package mongodb opens the MongoDB connection backing the device registry.
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/nerrad567/iotagent-ngsi/internal/infrastructure/config"
)

// DefaultDatabase is used when no database name is configured.
const DefaultDatabase = "iotagent"

const defaultPort = 27017

// Connect creates a client for the configured MongoDB instance and returns
// its registry database. The driver connects lazily; use Ping to verify
// the server is reachable.
func Connect(ctx context.Context, cfg config.DeviceRegistryConfig) (*mongo.Database, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: device_registry.host is required for mongodb", config.ErrBadConfiguration)
	}

	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	name := cfg.DB
	if name == "" {
		name = DefaultDatabase
	}

	addr := fmt.Sprintf("mongodb://%s:%d", cfg.Host, port)
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(addr))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}

	return client.Database(name), nil
}

// Ping checks the primary is reachable.
func Ping(ctx context.Context, db *mongo.Database) error {
	if err := db.Client().Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("pinging mongodb: %w", err)
	}
	return nil
}

// Disconnect closes the client behind db.
func Disconnect(ctx context.Context, db *mongo.Database) error {
	return db.Client().Disconnect(ctx)
}
