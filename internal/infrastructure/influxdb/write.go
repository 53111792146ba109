package influxdb

import (
	"encoding/json"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// measurementAttributes holds one point per southbound update.
const measurementAttributes = "attribute_values"

// DeviceInfo tags a point with the device it came from.
type DeviceInfo struct {
	ID         string
	Type       string
	Service    string
	Subservice string
}

// WriteAttributes records the attribute values of one update.
//
// Each attribute becomes a field of a single attribute_values point tagged
// with the device id, type, service and subservice. The write is batched.
func (c *Client) WriteAttributes(dev DeviceInfo, values map[string]any, ts time.Time) {
	if !c.IsConnected() || len(values) == 0 {
		return
	}
	c.writeAPI.WritePoint(attributesPoint(dev, values, ts))
}

// attributesPoint builds the point for WriteAttributes.
//
// InfluxDB fields only hold scalars, so nested values are stored as their
// JSON text.
func attributesPoint(dev DeviceInfo, values map[string]any, ts time.Time) *write.Point {
	tags := map[string]string{
		"device_id": dev.ID,
		"type":      dev.Type,
	}
	if dev.Service != "" {
		tags["service"] = dev.Service
	}
	if dev.Subservice != "" {
		tags["subservice"] = dev.Subservice
	}

	fields := make(map[string]any, len(values))
	for name, v := range values {
		fields[name] = fieldValue(v)
	}

	return write.NewPoint(measurementAttributes, tags, fields, ts)
}

func fieldValue(v any) any {
	switch v := v.(type) {
	case string, bool, float64, float32, int, int64, int32, uint, uint64, uint32:
		return v
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
