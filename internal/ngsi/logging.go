package ngsi

import (
	"context"
	"time"

	"github.com/nerrad567/iotagent-ngsi/internal/device"
)

var _ Agent = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger Logger
	svc    Agent
}

// LoggingMiddleware logs the outcome and duration of every operation.
// Failures are logged at warn level.
func LoggingMiddleware(svc Agent, logger Logger) Agent {
	return &loggingMiddleware{logger: logger, svc: svc}
}

func (lm *loggingMiddleware) log(op string, begin time.Time, err error, args ...any) {
	args = append(args, "duration", time.Since(begin).String())
	if err != nil {
		args = append(args, "error", err)
		lm.logger.Warn(op+" failed", args...)
		return
	}
	lm.logger.Info(op+" completed", args...)
}

func (lm *loggingMiddleware) Register(ctx context.Context, req RegisterRequest) (d *device.Device, err error) {
	defer func(begin time.Time) {
		lm.log("register", begin, err, "device_id", req.ID, "type", req.Type)
	}(time.Now())

	return lm.svc.Register(ctx, req)
}

func (lm *loggingMiddleware) Unregister(ctx context.Context, id, deviceType string) (err error) {
	defer func(begin time.Time) {
		lm.log("unregister", begin, err, "device_id", id, "type", deviceType)
	}(time.Now())

	return lm.svc.Unregister(ctx, id, deviceType)
}

func (lm *loggingMiddleware) UpdateValue(ctx context.Context, id, deviceType string, attrs []AttributeValue) (resp *UpdateResponse, err error) {
	defer func(begin time.Time) {
		lm.log("update value", begin, err, "device_id", id, "type", deviceType, "attributes", len(attrs))
	}(time.Now())

	return lm.svc.UpdateValue(ctx, id, deviceType, attrs)
}

func (lm *loggingMiddleware) ListDevices(ctx context.Context) (devices []device.Device, err error) {
	defer func(begin time.Time) {
		lm.log("list devices", begin, err, "count", len(devices))
	}(time.Now())

	return lm.svc.ListDevices(ctx)
}

func (lm *loggingMiddleware) GetDevice(ctx context.Context, id string) (d *device.Device, err error) {
	defer func(begin time.Time) {
		lm.log("get device", begin, err, "device_id", id)
	}(time.Now())

	return lm.svc.GetDevice(ctx, id)
}
