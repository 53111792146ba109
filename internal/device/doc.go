// Package device provides the Device Registry of the IoT Agent.
//
// The registry is the durable catalogue of devices that have been registered
// in the Context Broker. The NGSI service writes to it only after the broker
// has accepted a registration, and deletes from it only after the broker has
// been told to expire that registration.
//
// # Implementations
//
//   - MemoryRegistry: process-local map, the default
//   - SQLiteRepository: devices table in the embedded SQLite database
//   - mongodb.Repository: devices collection in MongoDB (subpackage)
//   - CachedRegistry: read cache in front of a persistent implementation
//
// # Errors
//
// Lookups and removals of unknown ids return a *NotFoundError that matches
// ErrDeviceNotFound. Storage failures match ErrInternalDB.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewCachedRegistry(repo)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//	d, err := registry.Get(ctx, "lamp-1")
package device
