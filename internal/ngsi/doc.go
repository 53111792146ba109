// Package ngsi orchestrates device registration and attribute updates
// against an NGSI9/NGSI10 Context Broker.
//
// # Operations
//
//   - Register: resolve type defaults, register in the broker, store locally
//   - Unregister: load the device, expire its registration, remove locally
//   - UpdateValue: obtain a token if required, append attribute values
//   - ListDevices / GetDevice: read the device registry
//
// Registrations cannot be deleted in NGSI9. Unregistering re-sends the
// registration with its registrationId and a duration of PT1S so that it
// expires almost immediately.
//
// # Errors
//
// Failures are *Error values that unwrap to one of the Err* sentinels:
//
//	var ngsiErr *ngsi.Error
//	if errors.As(err, &ngsiErr) && errors.Is(err, ngsi.ErrAccessForbidden) {
//	    log.Printf("denied for %s%s", ngsiErr.Service, ngsiErr.Subservice)
//	}
//
// Registry failures keep their device package errors and transport
// failures are returned as the HTTP client produced them. Nothing is retried.
//
// # Concurrency
//
// Operations on different devices run independently. Operations on the same
// device id may interleave unless serialize_device_operations is set, in
// which case Register, Unregister and UpdateValue for one id run one at a
// time.
package ngsi
