package device

import (
	"errors"
	"fmt"
)

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInternalDB is returned when the backing store fails.
	ErrInternalDB = errors.New("device: internal database error")

	// ErrInvalidDevice is returned when a device lacks its id or type.
	ErrInvalidDevice = errors.New("device: invalid")
)

// NotFoundError carries the id that could not be found.
// It unwraps to ErrDeviceNotFound.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDeviceNotFound, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrDeviceNotFound
}

func notFound(id string) error {
	return &NotFoundError{ID: id}
}

// internalDB wraps a storage failure so callers can match ErrInternalDB.
func internalDB(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInternalDB, op, err)
}

// Validate checks the fields every stored device must carry.
func Validate(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: nil device", ErrInvalidDevice)
	}
	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDevice)
	}
	if d.Type == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidDevice)
	}
	return nil
}
