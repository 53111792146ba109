package ngsi

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/nerrad567/iotagent-ngsi/internal/infrastructure/config"
)

// recordedRequest is one request received by a brokerStub.
type recordedRequest struct {
	Path   string
	Header http.Header
	Body   []byte
}

// brokerStub is a Context Broker double answering with a scripted response.
type brokerStub struct {
	mu       sync.Mutex
	requests []recordedRequest
	respond  func(path string, body []byte) (int, string)
	srv      *httptest.Server
}

// newBrokerStub starts a stub. A nil respond answers registrations with
// registrationId "R1" and updates with an empty 200.
func newBrokerStub(t *testing.T, respond func(path string, body []byte) (int, string)) *brokerStub {
	t.Helper()

	if respond == nil {
		respond = func(path string, _ []byte) (int, string) {
			if path == registerPath {
				return http.StatusOK, `{"duration":"P1M","registrationId":"R1"}`
			}
			return http.StatusOK, `{"contextResponses":[]}`
		}
	}

	b := &brokerStub{respond: respond}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server

		b.mu.Lock()
		b.requests = append(b.requests, recordedRequest{Path: r.URL.Path, Header: r.Header.Clone(), Body: body})
		respond := b.respond
		b.mu.Unlock()

		status, resp := respond(r.URL.Path, body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, resp)
	}))
	t.Cleanup(b.srv.Close)

	return b
}

func (b *brokerStub) calls() []recordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]recordedRequest(nil), b.requests...)
}

// config returns a configuration pointing at the stub with a "Lamp" type.
func (b *brokerStub) config(t *testing.T) *config.Config {
	t.Helper()
	return testConfig(t, b.srv.Listener.Addr().String())
}

func testConfig(t *testing.T, addr string) *config.Config {
	t.Helper()

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("splitting address: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parsing port: %v", err)
	}

	return &config.Config{
		ContextBroker:              config.ContextBrokerConfig{Host: host, Port: port, Timeout: 5},
		ProviderURL:                "http://agent:4041",
		DeviceRegistrationDuration: "P1M",
		Service:                    "default",
		Subservice:                 "/",
		Types: map[string]config.TypeConfig{
			"Lamp": {
				Service:    "smartcity",
				Subservice: "/lamps",
				Lazy:       []config.AttributeConfig{{Name: "luminosity", Type: "Lumens"}},
				Trust:      "lamp-trust",
			},
			"Meter": {},
		},
	}
}

// fakeTokens is a TokenProvider recording the trusts it was asked for.
type fakeTokens struct {
	mu     sync.Mutex
	trusts []string
	token  string
	err    error
}

func (f *fakeTokens) GetToken(_ context.Context, trust string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.trusts = append(f.trusts, trust)
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

func (f *fakeTokens) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.trusts)
}

// recordingLogger keeps the messages logged at each level.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	Level string
	Msg   string
	Args  []any
}

func (l *recordingLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{Level: level, Msg: msg, Args: args})
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *recordingLogger) find(msg string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.Msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}
