package ngsi

import (
	"errors"
	"fmt"
	"strings"
)

// Failure kinds of the NGSI service. Every *Error unwraps to exactly one of
// them, so callers match the kind with errors.Is and read the context with
// errors.As.
var (
	// ErrTypeNotFound is returned when a device type has no configured
	// defaults and the caller omitted a field that needs one.
	ErrTypeNotFound = errors.New("ngsi: type not found")

	// ErrRegistration is returned when the broker rejects a new registration.
	ErrRegistration = errors.New("ngsi: registration error")

	// ErrUnregistration is returned when the broker rejects the expiry of a registration.
	ErrUnregistration = errors.New("ngsi: unregistration error")

	// ErrBadRequest is returned when the broker answers with an application error.
	ErrBadRequest = errors.New("ngsi: bad request")

	// ErrAccessForbidden is returned when the broker denies an update for the token and tenant.
	ErrAccessForbidden = errors.New("ngsi: access forbidden")

	// ErrEntityUpdate is returned when the broker rejects an update for any other reason.
	ErrEntityUpdate = errors.New("ngsi: entity update error")

	// ErrSecurityInformationMissing is returned when authentication is on
	// and the device type has no trust configured.
	ErrSecurityInformationMissing = errors.New("ngsi: security information missing")

	// ErrRegistryNotAvailable is returned when an operation needs the
	// device registry and none was provided.
	ErrRegistryNotAvailable = errors.New("ngsi: registry not available")
)

// Error is a failure of an NGSI operation with the context it happened in.
// Fields that do not apply to the failure kind are empty.
type Error struct {
	// Err is the failure kind, one of the Err* sentinels of this package.
	Err error

	DeviceID   string
	DeviceType string
	Token      string
	Service    string
	Subservice string

	// Detail is the broker's own error description, when it sent one.
	Detail string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())

	field := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&b, " %s=%q", name, value)
		}
	}
	field("id", e.DeviceID)
	field("type", e.DeviceType)
	field("service", e.Service)
	field("subservice", e.Subservice)
	field("detail", e.Detail)

	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func typeNotFound(id, deviceType string) error {
	return &Error{Err: ErrTypeNotFound, DeviceID: id, DeviceType: deviceType}
}

func badRequest(detail string) error {
	return &Error{Err: ErrBadRequest, Detail: detail}
}

func registrationFailed(id, deviceType string, unregister bool) error {
	kind := ErrRegistration
	if unregister {
		kind = ErrUnregistration
	}
	return &Error{Err: kind, DeviceID: id, DeviceType: deviceType}
}

func accessForbidden(token, service, subservice string) error {
	return &Error{Err: ErrAccessForbidden, Token: token, Service: service, Subservice: subservice}
}

func entityUpdateFailed(id, deviceType string) error {
	return &Error{Err: ErrEntityUpdate, DeviceID: id, DeviceType: deviceType}
}

func securityInformationMissing(deviceType string) error {
	return &Error{Err: ErrSecurityInformationMissing, DeviceType: deviceType}
}
