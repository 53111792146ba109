package ngsi

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/nerrad567/iotagent-ngsi/internal/device"
)

// NGSI request constants.
const (
	// UnregisterDuration expires a registration one second after the broker
	// accepts it. NGSI9 has no delete primitive.
	UnregisterDuration = "PT1S"

	// ActionAppend adds or replaces the attributes of an entity.
	ActionAppend = "APPEND"

	registerPath = "/NGSI9/registerContext"
	updatePath   = "/NGSI10/updateContext"

	notPattern = "false"
)

// Tenant and auth headers understood by the Context Broker.
const (
	HeaderService     = "Fiware-Service"
	HeaderServicePath = "Fiware-ServicePath"
	HeaderAuthToken   = "X-Auth-Token"
	HeaderCorrelator  = "Fiware-Correlator"
)

// AttributeValue is one attribute of an update, sent verbatim.
type AttributeValue struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// EntityID identifies the single entity of a registration.
type EntityID struct {
	Type      string `json:"type"`
	IsPattern string `json:"isPattern"`
	ID        string `json:"id"`
}

// RegistrationAttribute is a lazy attribute served by the agent.
type RegistrationAttribute struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	IsDomain string `json:"isDomain"`
}

// ContextRegistration tells the broker which provider answers for an entity.
type ContextRegistration struct {
	Entities             []EntityID              `json:"entities"`
	Attributes           []RegistrationAttribute `json:"attributes"`
	ProvidingApplication string                  `json:"providingApplication"`
}

// RegisterContextRequest is the NGSI9 registerContext body.
type RegisterContextRequest struct {
	ContextRegistrations []ContextRegistration `json:"contextRegistrations"`
	Duration             string                `json:"duration"`
	RegistrationID       string                `json:"registrationId,omitempty"`
}

// ContextElement is one entity in an update and its attributes.
type ContextElement struct {
	Type       string           `json:"type"`
	IsPattern  string           `json:"isPattern"`
	ID         string           `json:"id"`
	Attributes []AttributeValue `json:"attributes"`
}

// UpdateContextRequest is the NGSI10 updateContext body.
type UpdateContextRequest struct {
	ContextElements []ContextElement `json:"contextElements"`
	UpdateAction    string           `json:"updateAction"`
}

// RegistrationResponse is the broker's acknowledgement of a registration.
type RegistrationResponse struct {
	RegistrationID string `json:"registrationId"`
	Duration       string `json:"duration,omitempty"`
}

// StatusCode is the NGSI status of one context response.
type StatusCode struct {
	Code         string `json:"code"`
	ReasonPhrase string `json:"reasonPhrase"`
	Details      string `json:"details,omitempty"`
}

// ContextResponse reports the outcome for one updated entity.
type ContextResponse struct {
	ContextElement ContextElement `json:"contextElement"`
	StatusCode     StatusCode     `json:"statusCode"`
}

// UpdateResponse is the broker's answer to an update.
type UpdateResponse struct {
	ContextResponses []ContextResponse `json:"contextResponses,omitempty"`
}

// errorEnvelope picks out the error fields the broker may put in a 200 body.
type errorEnvelope struct {
	ErrorCode  json.RawMessage `json:"errorCode"`
	OrionError *orionError     `json:"orionError"`
}

// hasErrorCode reports whether errorCode carries a value. Absent, null and
// the JSON falsy literals ("", false, 0) mean no error.
func (e errorEnvelope) hasErrorCode() bool {
	switch string(bytes.TrimSpace(e.ErrorCode)) {
	case "", "null", `""`, "false", "0":
		return false
	}
	return true
}

type orionError struct {
	Code         string `json:"code"`
	ReasonPhrase string `json:"reasonPhrase"`
	Details      string `json:"details"`
}

// RegisterRequest carries the arguments of Register. Empty Name, Service and
// Subservice are treated as not supplied, as is a nil Lazy; a non-nil empty
// Lazy is an explicit empty list.
type RegisterRequest struct {
	ID         string             `json:"device_id"`
	Type       string             `json:"entity_type"`
	Name       string             `json:"entity_name,omitempty"`
	Service    string             `json:"service,omitempty"`
	Subservice string             `json:"subservice,omitempty"`
	Lazy       []device.Attribute `json:"lazy,omitempty"`
	InternalID string             `json:"internal_id,omitempty"`
}

// Agent is the operation set of the NGSI service. Middlewares and the
// northbound and southbound adapters depend on it instead of *Service.
type Agent interface {
	Register(ctx context.Context, req RegisterRequest) (*device.Device, error)
	Unregister(ctx context.Context, id, deviceType string) error
	UpdateValue(ctx context.Context, id, deviceType string, attrs []AttributeValue) (*UpdateResponse, error)
	ListDevices(ctx context.Context) ([]device.Device, error)
	GetDevice(ctx context.Context, id string) (*device.Device, error)
}

// Broker sends registrations and updates to the Context Broker.
type Broker interface {
	SendRegistration(ctx context.Context, d *device.Device) (*RegistrationResponse, error)
	SendUpdate(ctx context.Context, id, deviceType string, attrs []AttributeValue, token string) (*UpdateResponse, error)
}
