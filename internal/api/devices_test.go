package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/nerrad567/iotagent-ngsi/internal/device"
	"github.com/nerrad567/iotagent-ngsi/internal/infrastructure/config"
	"github.com/nerrad567/iotagent-ngsi/internal/ngsi"
)

func TestListDevices(t *testing.T) {
	srv := testServer(t, &fakeAgent{
		listDevices: func() ([]device.Device, error) {
			return []device.Device{{ID: "a", Type: "Lamp"}, {ID: "b", Type: "Lamp"}}, nil
		},
	}, nil)

	w := serve(srv, http.MethodGet, "/iot/devices", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp struct {
		Devices []device.Device `json:"devices"`
		Count   int             `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 2 || resp.Devices[0].ID != "a" || resp.Devices[1].ID != "b" {
		t.Errorf("response = %+v", resp)
	}
}

func TestListDevices_RegistryUnavailable(t *testing.T) {
	srv := testServer(t, &fakeAgent{
		listDevices: func() ([]device.Device, error) { return nil, ngsi.ErrRegistryNotAvailable },
	}, nil)

	w := serve(srv, http.MethodGet, "/iot/devices", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestGetDevice(t *testing.T) {
	srv := testServer(t, &fakeAgent{
		getDevice: func(id string) (*device.Device, error) {
			if id != "lamp-1" {
				return nil, &device.NotFoundError{ID: id}
			}
			return &device.Device{ID: "lamp-1", Type: "Lamp", RegistrationID: "R1"}, nil
		},
	}, nil)

	w := serve(srv, http.MethodGet, "/iot/devices/lamp-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var dev device.Device
	if err := json.Unmarshal(w.Body.Bytes(), &dev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if dev.RegistrationID != "R1" {
		t.Errorf("RegistrationID = %q, want R1", dev.RegistrationID)
	}

	w = serve(srv, http.MethodGet, "/iot/devices/missing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing device status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRegisterDevice(t *testing.T) {
	var got ngsi.RegisterRequest
	srv := testServer(t, &fakeAgent{
		register: func(req ngsi.RegisterRequest) (*device.Device, error) {
			got = req
			return &device.Device{ID: req.ID, Type: req.Type, Name: req.ID, RegistrationID: "R1"}, nil
		},
	}, nil)

	body := `{"device_id":"lamp-1","entity_type":"Lamp","lazy":[{"name":"luminosity","type":"Lumens"}]}`
	w := serve(srv, http.MethodPost, "/iot/devices", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	if got.ID != "lamp-1" || got.Type != "Lamp" {
		t.Errorf("request = %+v", got)
	}
	if len(got.Lazy) != 1 || got.Lazy[0].Name != "luminosity" {
		t.Errorf("request lazy = %+v", got.Lazy)
	}
}

func TestRegisterDevice_InvalidJSON(t *testing.T) {
	srv := testServer(t, &fakeAgent{}, nil)

	w := serve(srv, http.MethodPost, "/iot/devices", "{not json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestRegisterDevice_TypeNotFound(t *testing.T) {
	srv := testServer(t, &fakeAgent{
		register: func(req ngsi.RegisterRequest) (*device.Device, error) {
			return nil, &ngsi.Error{Err: ngsi.ErrTypeNotFound, DeviceID: req.ID, DeviceType: req.Type}
		},
	}, nil)

	w := serve(srv, http.MethodPost, "/iot/devices", `{"device_id":"x","entity_type":"Ghost"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestUnregisterDevice(t *testing.T) {
	var gotID, gotType string
	srv := testServer(t, &fakeAgent{
		unregister: func(id, deviceType string) error {
			gotID, gotType = id, deviceType
			return nil
		},
	}, nil)

	w := serve(srv, http.MethodDelete, "/iot/devices/lamp-1?type=Lamp", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if gotID != "lamp-1" || gotType != "Lamp" {
		t.Errorf("Unregister(%q, %q)", gotID, gotType)
	}
}

func TestUnregisterDevice_MissingType(t *testing.T) {
	srv := testServer(t, &fakeAgent{}, nil)

	w := serve(srv, http.MethodDelete, "/iot/devices/lamp-1", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestUpdateAttributes(t *testing.T) {
	var gotAttrs []ngsi.AttributeValue
	srv := testServer(t, &fakeAgent{
		updateValue: func(id, deviceType string, attrs []ngsi.AttributeValue) (*ngsi.UpdateResponse, error) {
			if id != "lamp-1" || deviceType != "Lamp" {
				t.Errorf("UpdateValue(%q, %q)", id, deviceType)
			}
			gotAttrs = attrs
			return &ngsi.UpdateResponse{}, nil
		},
	}, nil)

	body := `[{"name":"luminosity","type":"Lumens","value":"30"}]`
	w := serve(srv, http.MethodPost, "/iot/devices/lamp-1/attrs?type=Lamp", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if len(gotAttrs) != 1 || gotAttrs[0].Name != "luminosity" || gotAttrs[0].Value != "30" {
		t.Errorf("attrs = %+v", gotAttrs)
	}
}

func TestUpdateAttributes_BadInput(t *testing.T) {
	srv := testServer(t, &fakeAgent{}, nil)

	tests := []struct {
		name   string
		target string
		body   string
	}{
		{"missing type", "/iot/devices/lamp-1/attrs", `[{"name":"a","type":"t","value":1}]`},
		{"invalid json", "/iot/devices/lamp-1/attrs?type=Lamp", `{`},
		{"empty list", "/iot/devices/lamp-1/attrs?type=Lamp", `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(srv, http.MethodPost, tt.target, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestUpdateAttributes_Forbidden(t *testing.T) {
	srv := testServer(t, &fakeAgent{
		updateValue: func(id, deviceType string, _ []ngsi.AttributeValue) (*ngsi.UpdateResponse, error) {
			return nil, &ngsi.Error{Err: ngsi.ErrAccessForbidden, DeviceID: id, DeviceType: deviceType, Token: "tok"}
		},
	}, nil)

	w := serve(srv, http.MethodPost, "/iot/devices/lamp-1/attrs?type=Lamp", `[{"name":"a","type":"t","value":1}]`)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

// stubBroker answers registrations with a fixed id.
type stubBroker struct{}

func (stubBroker) SendRegistration(_ context.Context, d *device.Device) (*ngsi.RegistrationResponse, error) {
	if d.Registered() {
		return &ngsi.RegistrationResponse{RegistrationID: d.RegistrationID, Duration: ngsi.UnregisterDuration}, nil
	}
	return &ngsi.RegistrationResponse{RegistrationID: "reg-" + d.ID, Duration: "P1M"}, nil
}

func (stubBroker) SendUpdate(context.Context, string, string, []ngsi.AttributeValue, string) (*ngsi.UpdateResponse, error) {
	return &ngsi.UpdateResponse{}, nil
}

func TestDeviceLifecycle(t *testing.T) {
	svc, err := ngsi.New(ngsi.Deps{
		Config: &config.Config{
			ProviderURL:                "http://agent:4041",
			DeviceRegistrationDuration: "P1M",
			Types: map[string]config.TypeConfig{
				"Lamp": {Service: "smartcity", Subservice: "/lamps"},
			},
		},
		Registry: device.NewMemoryRegistry(),
		Broker:   stubBroker{},
	})
	if err != nil {
		t.Fatalf("ngsi.New: %v", err)
	}
	srv := testServer(t, svc, nil)

	w := serve(srv, http.MethodPost, "/iot/devices", `{"device_id":"lamp-1","entity_type":"Lamp"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", w.Code, w.Body.String())
	}
	var dev device.Device
	if err := json.Unmarshal(w.Body.Bytes(), &dev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if dev.RegistrationID != "reg-lamp-1" || dev.Service != "smartcity" || dev.Name != "lamp-1" {
		t.Errorf("registered device = %+v", dev)
	}

	w = serve(srv, http.MethodGet, "/iot/devices/lamp-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	w = serve(srv, http.MethodDelete, "/iot/devices/lamp-1?type=Lamp", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("unregister status = %d: %s", w.Code, w.Body.String())
	}

	w = serve(srv, http.MethodGet, "/iot/devices/lamp-1", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("get after unregister status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRegisterDevice_BrokerUnreachable(t *testing.T) {
	broker := httptest.NewServer(http.NotFoundHandler())
	host, portStr, err := net.SplitHostPort(broker.Listener.Addr().String())
	if err != nil {
		t.Fatalf("splitting address: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parsing port: %v", err)
	}
	broker.Close()

	cfg := &config.Config{
		ContextBroker:              config.ContextBrokerConfig{Host: host, Port: port, Timeout: 2},
		ProviderURL:                "http://agent:4041",
		DeviceRegistrationDuration: "P1M",
		Types: map[string]config.TypeConfig{
			"Lamp": {Service: "smartcity", Subservice: "/lamps"},
		},
	}
	svc, err := ngsi.New(ngsi.Deps{
		Config:   cfg,
		Registry: device.NewMemoryRegistry(),
		Broker:   ngsi.NewBrokerClient(cfg, nil),
	})
	if err != nil {
		t.Fatalf("ngsi.New: %v", err)
	}
	srv := testServer(t, svc, nil)

	w := serve(srv, http.MethodPost, "/iot/devices", `{"device_id":"lamp-1","entity_type":"Lamp"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502: %s", w.Code, w.Body.String())
	}
	if e := decodeError(t, w); e.Code != ErrCodeBadGateway {
		t.Errorf("code = %q, want %q", e.Code, ErrCodeBadGateway)
	}
}
