package measures

import "errors"

var (
	// ErrInvalidTopic is returned for messages on a topic that does not name a device.
	ErrInvalidTopic = errors.New("measures: invalid topic")

	// ErrInvalidPayload is returned when the payload is not a non-empty JSON object.
	ErrInvalidPayload = errors.New("measures: invalid payload")

	// ErrUnknownDevice is returned for measures from a device that is not provisioned.
	ErrUnknownDevice = errors.New("measures: device not provisioned")

	// ErrTypeMismatch is returned when the topic type differs from the provisioned type.
	ErrTypeMismatch = errors.New("measures: device type mismatch")
)
