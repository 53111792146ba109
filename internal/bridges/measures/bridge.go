package measures

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/iotagent-ngsi/internal/device"
	"github.com/nerrad567/iotagent-ngsi/internal/infrastructure/influxdb"
	"github.com/nerrad567/iotagent-ngsi/internal/infrastructure/mqtt"
	"github.com/nerrad567/iotagent-ngsi/internal/ngsi"
)

// handleTimeout bounds the broker round trip made for one message.
const handleTimeout = 30 * time.Second

// Attribute types inferred from JSON values when the device does not
// declare the attribute.
const (
	TypeNumber     = "Number"
	TypeBoolean    = "Boolean"
	TypeText       = "Text"
	TypeStructured = "StructuredValue"
)

// Subscriber is the MQTT surface the bridge needs. *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// History records accepted measures. *influxdb.Client satisfies it.
type History interface {
	WriteAttributes(dev influxdb.DeviceInfo, values map[string]any, ts time.Time)
}

// Logger is the logging surface of the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options holds the dependencies of a Bridge.
type Options struct {
	Agent      ngsi.Agent
	Subscriber Subscriber

	// History is optional.
	History History

	// QoS is the subscription QoS (0, 1 or 2).
	QoS byte

	Logger Logger
}

// Bridge turns device measures published over MQTT into attribute updates.
//
// Devices publish a flat JSON object of attribute name to value on
// iotagent/{type}/{deviceId}/attrs. Only provisioned devices are accepted;
// each message results in exactly one UpdateValue call.
type Bridge struct {
	agent   ngsi.Agent
	sub     Subscriber
	history History
	qos     byte
	logger  Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once

	now func() time.Time
}

// New creates a bridge. Call Start to subscribe.
func New(opts Options) (*Bridge, error) {
	if opts.Agent == nil {
		return nil, fmt.Errorf("agent is required")
	}
	if opts.Subscriber == nil {
		return nil, fmt.Errorf("MQTT subscriber is required")
	}

	b := &Bridge{
		agent:   opts.Agent,
		sub:     opts.Subscriber,
		history: opts.History,
		qos:     opts.QoS,
		logger:  opts.Logger,
		now:     time.Now,
	}
	if b.logger == nil {
		b.logger = noopLogger{}
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	return b, nil
}

// Start subscribes to the measure topics of every device.
func (b *Bridge) Start(_ context.Context) error {
	topic := mqtt.Topics{}.AllDeviceAttributes()
	if err := b.sub.Subscribe(topic, b.qos, b.HandleMessage); err != nil {
		return fmt.Errorf("subscribe to measures: %w", err)
	}
	b.logger.Info("measures bridge started", "topic", topic)
	return nil
}

// Stop unsubscribes and aborts in-flight updates.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.cancel()
		if err := b.sub.Unsubscribe(mqtt.Topics{}.AllDeviceAttributes()); err != nil {
			b.logger.Warn("unsubscribing from measures", "error", err)
		}
		b.logger.Info("measures bridge stopped")
	})
}

// HandleMessage processes one measure message.
func (b *Bridge) HandleMessage(topic string, payload []byte) error {
	deviceType, deviceID, ok := mqtt.Topics{}.ParseDeviceAttributes(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}

	values, err := decodeMeasures(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(b.ctx, handleTimeout)
	defer cancel()

	dev, err := b.agent.GetDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			b.logger.Warn("measure from unprovisioned device dropped", "device_id", deviceID, "type", deviceType)
			return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
		}
		return fmt.Errorf("looking up device %s: %w", deviceID, err)
	}
	if dev.Type != deviceType {
		return fmt.Errorf("%w: %s is %s, topic says %s", ErrTypeMismatch, deviceID, dev.Type, deviceType)
	}

	attrs := attributeValues(values, dev.Lazy)
	if _, err := b.agent.UpdateValue(ctx, deviceID, deviceType, attrs); err != nil {
		return fmt.Errorf("updating %s: %w", deviceID, err)
	}
	b.logger.Debug("measure forwarded", "device_id", deviceID, "attributes", len(attrs))

	if b.history != nil {
		b.history.WriteAttributes(influxdb.DeviceInfo{
			ID:         dev.ID,
			Type:       dev.Type,
			Service:    dev.Service,
			Subservice: dev.Subservice,
		}, values, b.now())
	}

	return nil
}

// decodeMeasures parses a flat JSON object, keeping numbers exact.
func decodeMeasures(payload []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var values map[string]any
	if err := dec.Decode(&values); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no attributes", ErrInvalidPayload)
	}
	return values, nil
}

// attributeValues converts measures to attribute values ordered by name.
// Declared attributes keep their configured type.
func attributeValues(values map[string]any, declared []device.Attribute) []ngsi.AttributeValue {
	types := make(map[string]string, len(declared))
	for _, a := range declared {
		types[a.Name] = a.Type
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	attrs := make([]ngsi.AttributeValue, 0, len(names))
	for _, name := range names {
		v := values[name]
		typ, ok := types[name]
		if !ok {
			typ = inferType(v)
		}
		attrs = append(attrs, ngsi.AttributeValue{Name: name, Type: typ, Value: v})
	}
	return attrs
}

func inferType(v any) string {
	switch v.(type) {
	case json.Number, float64:
		return TypeNumber
	case bool:
		return TypeBoolean
	case string:
		return TypeText
	default:
		return TypeStructured
	}
}
