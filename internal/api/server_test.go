package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/nerrad567/iotagent-ngsi/internal/device"
	"github.com/nerrad567/iotagent-ngsi/internal/infrastructure/config"
	"github.com/nerrad567/iotagent-ngsi/internal/infrastructure/logging"
	"github.com/nerrad567/iotagent-ngsi/internal/ngsi"
)

// fakeAgent lets each test script the agent's answers.
type fakeAgent struct {
	register    func(req ngsi.RegisterRequest) (*device.Device, error)
	unregister  func(id, deviceType string) error
	updateValue func(id, deviceType string, attrs []ngsi.AttributeValue) (*ngsi.UpdateResponse, error)
	listDevices func() ([]device.Device, error)
	getDevice   func(id string) (*device.Device, error)
}

func (f *fakeAgent) Register(_ context.Context, req ngsi.RegisterRequest) (*device.Device, error) {
	if f.register == nil {
		return nil, errors.New("unexpected Register call")
	}
	return f.register(req)
}

func (f *fakeAgent) Unregister(_ context.Context, id, deviceType string) error {
	if f.unregister == nil {
		return errors.New("unexpected Unregister call")
	}
	return f.unregister(id, deviceType)
}

func (f *fakeAgent) UpdateValue(_ context.Context, id, deviceType string, attrs []ngsi.AttributeValue) (*ngsi.UpdateResponse, error) {
	if f.updateValue == nil {
		return nil, errors.New("unexpected UpdateValue call")
	}
	return f.updateValue(id, deviceType, attrs)
}

func (f *fakeAgent) ListDevices(context.Context) ([]device.Device, error) {
	if f.listDevices == nil {
		return nil, errors.New("unexpected ListDevices call")
	}
	return f.listDevices()
}

func (f *fakeAgent) GetDevice(_ context.Context, id string) (*device.Device, error) {
	if f.getDevice == nil {
		return nil, errors.New("unexpected GetDevice call")
	}
	return f.getDevice(id)
}

// testServer creates a Server around the given agent.
func testServer(t *testing.T, agent ngsi.Agent, checks map[string]HealthChecker) *Server {
	t.Helper()

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		Logger:  log,
		Agent:   agent,
		Checks:  checks,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv
}

func serve(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) Error {
	t.Helper()
	var e Error
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("unmarshal error body %q: %v", w.Body.String(), err)
	}
	return e
}

func TestNew_RequiresDeps(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error"}, "test")

	if _, err := New(Deps{Agent: &fakeAgent{}}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: log}); err == nil {
		t.Error("New() without agent should fail")
	}
}

func TestHealth(t *testing.T) {
	srv := testServer(t, &fakeAgent{}, map[string]HealthChecker{
		"registry": func(context.Context) error { return nil },
	})

	w := serve(srv, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp struct {
		Status     string            `json:"status"`
		Version    string            `json:"version"`
		Components map[string]string `json:"components"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "ok" || resp.Version != "test" {
		t.Errorf("health = %+v", resp)
	}
	if resp.Components["registry"] != "ok" {
		t.Errorf("components = %v", resp.Components)
	}
}

func TestHealth_Degraded(t *testing.T) {
	srv := testServer(t, &fakeAgent{}, map[string]HealthChecker{
		"registry": func(context.Context) error { return errors.New("database is locked") },
	})

	w := serve(srv, http.MethodGet, "/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	if !strings.Contains(w.Body.String(), "database is locked") {
		t.Errorf("body = %s, want failing component reported", w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t, &fakeAgent{}, nil)

	w := serve(srv, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("metrics output missing Go collector")
	}
}

func TestRequestID_Generated(t *testing.T) {
	srv := testServer(t, &fakeAgent{}, nil)

	w := serve(srv, http.MethodGet, "/health", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header should be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv := testServer(t, &fakeAgent{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "client-id-123")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-id-123" {
		t.Errorf("X-Request-ID = %q, want client-id-123", got)
	}
}

func TestRecovery(t *testing.T) {
	srv := testServer(t, &fakeAgent{
		listDevices: func() ([]device.Device, error) { panic("boom") },
	}, nil)

	w := serve(srv, http.MethodGet, "/iot/devices", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestNotFound(t *testing.T) {
	srv := testServer(t, &fakeAgent{}, nil)

	w := serve(srv, http.MethodGet, "/nonexistent", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if e := decodeError(t, w); e.Code != ErrCodeNotFound {
		t.Errorf("code = %q, want %q", e.Code, ErrCodeNotFound)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := testServer(t, &fakeAgent{}, nil)

	w := serve(srv, http.MethodPut, "/iot/devices", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestWriteAgentError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid device", fmt.Errorf("%w: id is required", device.ErrInvalidDevice), http.StatusBadRequest, ErrCodeValidation},
		{"type not found", &ngsi.Error{Err: ngsi.ErrTypeNotFound, DeviceType: "Ghost"}, http.StatusBadRequest, ErrCodeBadRequest},
		{"bad request", &ngsi.Error{Err: ngsi.ErrBadRequest, Detail: "bad"}, http.StatusBadRequest, ErrCodeBadRequest},
		{"security missing", &ngsi.Error{Err: ngsi.ErrSecurityInformationMissing}, http.StatusBadRequest, ErrCodeBadRequest},
		{"not found", &device.NotFoundError{ID: "d1"}, http.StatusNotFound, ErrCodeNotFound},
		{"forbidden", &ngsi.Error{Err: ngsi.ErrAccessForbidden, Token: "secret"}, http.StatusForbidden, ErrCodeForbidden},
		{"registry unavailable", ngsi.ErrRegistryNotAvailable, http.StatusServiceUnavailable, ErrCodeUnavailable},
		{"registration", &ngsi.Error{Err: ngsi.ErrRegistration}, http.StatusBadGateway, ErrCodeBadGateway},
		{"unregistration", &ngsi.Error{Err: ngsi.ErrUnregistration}, http.StatusBadGateway, ErrCodeBadGateway},
		{"entity update", &ngsi.Error{Err: ngsi.ErrEntityUpdate}, http.StatusBadGateway, ErrCodeBadGateway},
		{"internal db", fmt.Errorf("%w: get: disk I/O error", device.ErrInternalDB), http.StatusInternalServerError, ErrCodeInternal},
		{"transport", &url.Error{Op: "Post", URL: "http://orion:1026/NGSI10/updateContext", Err: errors.New("dial tcp: connection refused")}, http.StatusBadGateway, ErrCodeBadGateway},
		{"wrapped transport", fmt.Errorf("token request failed: %w", &url.Error{Op: "Post", URL: "http://keystone:5000", Err: errors.New("timeout")}), http.StatusBadGateway, ErrCodeBadGateway},
		{"unclassified", errors.New("something odd"), http.StatusInternalServerError, ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeAgentError(w, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			e := decodeError(t, w)
			if e.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", e.Code, tt.wantCode)
			}
			if strings.Contains(e.Message, "secret") {
				t.Errorf("message leaks token: %q", e.Message)
			}
		})
	}
}

func TestWriteAgentError_HidesInternalDetail(t *testing.T) {
	w := httptest.NewRecorder()
	writeAgentError(w, fmt.Errorf("%w: list: no such table: devices", device.ErrInternalDB))

	if e := decodeError(t, w); strings.Contains(e.Message, "no such table") {
		t.Errorf("message = %q, should not expose storage detail", e.Message)
	}
}
