// Package influxdb records southbound measure history in InfluxDB.
//
// Every successful update received from a device is mirrored as an
// attribute_values point, tagged by device id, type and tenant, so the
// values sent to the Context Broker can be charted later.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteAttributes(influxdb.DeviceInfo{ID: "lamp-1", Type: "Lamp"},
//	    map[string]any{"luminosity": 30.0}, time.Now())
//
// Writes are batched according to batch_size and flush_interval; write
// errors are delivered asynchronously through SetOnError.
package influxdb
