package audit

import (
	"context"
	"time"

	"github.com/nerrad567/iotagent-ngsi/internal/device"
	"github.com/nerrad567/iotagent-ngsi/internal/ngsi"
)

const writeTimeout = 2 * time.Second

// Logger defines the logging interface used by the audit middleware.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

var _ ngsi.Agent = (*middleware)(nil)

type middleware struct {
	ngsi.Agent
	repo   Repository
	logger Logger
	now    func() time.Time
}

// Middleware records every Register and Unregister outcome in repo.
// Reads and value updates pass straight through.
func Middleware(svc ngsi.Agent, repo Repository, logger Logger) ngsi.Agent {
	if logger == nil {
		logger = noopLogger{}
	}
	return &middleware{Agent: svc, repo: repo, logger: logger, now: time.Now}
}

func (m *middleware) Register(ctx context.Context, req ngsi.RegisterRequest) (*device.Device, error) {
	d, err := m.Agent.Register(ctx, req)
	m.record(ctx, ActionRegister, req.ID, req.Type, err)
	return d, err
}

func (m *middleware) Unregister(ctx context.Context, id, deviceType string) error {
	err := m.Agent.Unregister(ctx, id, deviceType)
	m.record(ctx, ActionUnregister, id, deviceType, err)
	return err
}

func (m *middleware) record(ctx context.Context, action, id, deviceType string, opErr error) {
	entry := &Entry{
		Action:     action,
		DeviceID:   id,
		DeviceType: deviceType,
		Outcome:    OutcomeSuccess,
		CreatedAt:  m.now().UTC(),
	}
	if opErr != nil {
		entry.Outcome = OutcomeFailure
		entry.Detail = opErr.Error()
	}

	// The trail is written even when the caller's context was cancelled.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := m.repo.Create(wctx, entry); err != nil {
		m.logger.Warn("recording provisioning entry failed",
			"action", action, "device_id", id, "error", err)
	}
}
