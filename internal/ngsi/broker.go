package ngsi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/nerrad567/iotagent-ngsi/internal/device"
	"github.com/nerrad567/iotagent-ngsi/internal/infrastructure/config"
)

// BrokerClient speaks NGSI9/NGSI10 to the Context Broker.
// It never retries; one call sends exactly one request.
type BrokerClient struct {
	cfg     *config.Config
	baseURL string
	client  *http.Client
	logger  Logger
}

var _ Broker = (*BrokerClient)(nil)

// NewBrokerClient creates a client for the broker in cfg.ContextBroker.
// A nil client gets one with the configured broker timeout.
func NewBrokerClient(cfg *config.Config, client *http.Client) *BrokerClient {
	if client == nil {
		client = &http.Client{Timeout: cfg.GetBrokerTimeout()}
	}
	return &BrokerClient{
		cfg:     cfg,
		baseURL: cfg.BrokerURL(),
		client:  client,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the client.
func (c *BrokerClient) SetLogger(logger Logger) {
	c.logger = logger
}

// SendRegistration registers d as provided by this agent, or expires its
// registration when d already carries a RegistrationID.
//
// Transport failures are returned unchanged. A 200 whose body holds an
// errorCode or orionError fails with ErrBadRequest; any other outcome that
// is not a 200 with a body fails with ErrRegistration, or ErrUnregistration
// when d was already registered.
func (c *BrokerClient) SendRegistration(ctx context.Context, d *device.Device) (*RegistrationResponse, error) {
	unregister := d.Registered()

	attrs := make([]RegistrationAttribute, 0, len(d.Lazy))
	for _, a := range d.Lazy {
		attrs = append(attrs, RegistrationAttribute{Name: a.Name, Type: a.Type, IsDomain: "false"})
	}

	body := RegisterContextRequest{
		ContextRegistrations: []ContextRegistration{{
			Entities:             []EntityID{{Type: d.Type, IsPattern: notPattern, ID: d.Name}},
			Attributes:           attrs,
			ProvidingApplication: c.cfg.ProviderURL,
		}},
		Duration: c.cfg.DeviceRegistrationDuration,
	}
	if unregister {
		body.Duration = UnregisterDuration
		body.RegistrationID = d.RegistrationID
	}

	status, respBody, err := c.post(ctx, registerPath, body, d.Service, d.Subservice, "")
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK || len(bytes.TrimSpace(respBody)) == 0 {
		c.logger.Warn("registration rejected by context broker",
			"device_id", d.ID, "type", d.Type, "status", status, "unregister", unregister)
		return nil, registrationFailed(d.ID, d.Type, unregister)
	}

	var envelope errorEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		c.logger.Warn("unreadable registration response", "device_id", d.ID, "error", err)
		return nil, registrationFailed(d.ID, d.Type, unregister)
	}
	switch {
	case envelope.hasErrorCode():
		return nil, badRequest(string(envelope.ErrorCode))
	case envelope.OrionError != nil:
		detail, _ := json.Marshal(envelope.OrionError) //nolint:errcheck // plain struct
		return nil, badRequest(string(detail))
	}

	var resp RegistrationResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, registrationFailed(d.ID, d.Type, unregister)
	}
	if !unregister && resp.RegistrationID == "" {
		c.logger.Warn("registration response has no registrationId", "device_id", d.ID)
		return nil, registrationFailed(d.ID, d.Type, false)
	}

	return &resp, nil
}

// SendUpdate appends attrs to the entity id of type deviceType.
//
// The tenant headers are the configured service and subservice, overridden
// by the non-empty values configured for deviceType. token, when not empty,
// goes in the X-Auth-Token header.
func (c *BrokerClient) SendUpdate(ctx context.Context, id, deviceType string, attrs []AttributeValue, token string) (*UpdateResponse, error) {
	service, subservice := c.tenant(deviceType)

	if attrs == nil {
		attrs = []AttributeValue{}
	}
	body := UpdateContextRequest{
		ContextElements: []ContextElement{{
			Type:       deviceType,
			IsPattern:  notPattern,
			ID:         id,
			Attributes: attrs,
		}},
		UpdateAction: ActionAppend,
	}

	status, respBody, err := c.post(ctx, updatePath, body, service, subservice, token)
	if err != nil {
		return nil, err
	}

	var envelope errorEnvelope
	if len(bytes.TrimSpace(respBody)) > 0 {
		// A body that is not JSON carries no envelope; the status decides.
		_ = json.Unmarshal(respBody, &envelope) //nolint:errcheck // see above
	}
	if envelope.OrionError != nil {
		return nil, badRequest(envelope.OrionError.Details)
	}

	switch status {
	case http.StatusOK:
		var resp UpdateResponse
		if len(bytes.TrimSpace(respBody)) > 0 {
			if err := json.Unmarshal(respBody, &resp); err != nil {
				return nil, entityUpdateFailed(id, deviceType)
			}
		}
		return &resp, nil
	case http.StatusForbidden:
		return nil, accessForbidden(token, service, subservice)
	default:
		c.logger.Warn("update rejected by context broker",
			"device_id", id, "type", deviceType, "status", status)
		return nil, entityUpdateFailed(id, deviceType)
	}
}

// tenant resolves the service headers for an update of deviceType.
func (c *BrokerClient) tenant(deviceType string) (service, subservice string) {
	service, subservice = c.cfg.Service, c.cfg.Subservice
	if tc, ok := c.cfg.Types[deviceType]; ok {
		if tc.Service != "" {
			service = tc.Service
		}
		if tc.Subservice != "" {
			subservice = tc.Subservice
		}
	}
	return service, subservice
}

// post sends a JSON body and returns the status and the response body.
// Errors from the HTTP client are returned as they are.
func (c *BrokerClient) post(ctx context.Context, path string, body any, service, subservice, token string) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("marshalling request: %w", err)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}

	correlator := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderService, service)
	req.Header.Set(HeaderServicePath, subservice)
	req.Header.Set(HeaderCorrelator, correlator)
	if token != "" {
		req.Header.Set(HeaderAuthToken, token)
	}

	c.logger.Debug("sending request to context broker",
		"url", url, "correlator", correlator, "service", service, "subservice", subservice,
		"body", string(payload))

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}

	c.logger.Debug("context broker response",
		"url", url, "correlator", correlator, "status", resp.StatusCode, "body", string(respBody))

	return resp.StatusCode, respBody, nil
}
