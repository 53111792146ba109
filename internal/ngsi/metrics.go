package ngsi

import (
	"context"
	"time"

	"github.com/go-kit/kit/metrics"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/iotagent-ngsi/internal/device"
)

// MakeMetrics creates the request counter and latency summary, labelled by
// method and registered with the default Prometheus registry.
func MakeMetrics(namespace, subsystem string) (*kitprometheus.Counter, *kitprometheus.Summary) {
	counter := kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_count",
		Help:      "Number of requests received.",
	}, []string{"method", "success"})
	latency := kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_latency_seconds",
		Help:      "Total duration of requests in seconds.",
	}, []string{"method", "success"})

	return counter, latency
}

var _ Agent = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     Agent
}

// MetricsMiddleware instruments the agent by tracking request count and latency.
func MetricsMiddleware(svc Agent, counter metrics.Counter, latency metrics.Histogram) Agent {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (ms *metricsMiddleware) observe(method string, begin time.Time, err error) {
	success := "true"
	if err != nil {
		success = "false"
	}
	ms.counter.With("method", method, "success", success).Add(1)
	ms.latency.With("method", method, "success", success).Observe(time.Since(begin).Seconds())
}

func (ms *metricsMiddleware) Register(ctx context.Context, req RegisterRequest) (d *device.Device, err error) {
	defer func(begin time.Time) {
		ms.observe("register", begin, err)
	}(time.Now())

	return ms.svc.Register(ctx, req)
}

func (ms *metricsMiddleware) Unregister(ctx context.Context, id, deviceType string) (err error) {
	defer func(begin time.Time) {
		ms.observe("unregister", begin, err)
	}(time.Now())

	return ms.svc.Unregister(ctx, id, deviceType)
}

func (ms *metricsMiddleware) UpdateValue(ctx context.Context, id, deviceType string, attrs []AttributeValue) (resp *UpdateResponse, err error) {
	defer func(begin time.Time) {
		ms.observe("update_value", begin, err)
	}(time.Now())

	return ms.svc.UpdateValue(ctx, id, deviceType, attrs)
}

func (ms *metricsMiddleware) ListDevices(ctx context.Context) (devices []device.Device, err error) {
	defer func(begin time.Time) {
		ms.observe("list_devices", begin, err)
	}(time.Now())

	return ms.svc.ListDevices(ctx)
}

func (ms *metricsMiddleware) GetDevice(ctx context.Context, id string) (d *device.Device, err error) {
	defer func(begin time.Time) {
		ms.observe("get_device", begin, err)
	}(time.Now())

	return ms.svc.GetDevice(ctx, id)
}
