// Package mqtt provides the MQTT connectivity of the agent's southbound.
//
// Devices publish JSON attribute maps to iotagent/{type}/{deviceId}/attrs.
// The agent subscribes to the wildcard pattern and keeps a retained presence
// document on iotagent/system/status, backed by a Last Will so a crashed
// agent is reported offline by the broker.
//
// The client reconnects automatically with exponential back-off and restores
// its subscriptions after each reconnect.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceAttributes(), 1,
//	    func(topic string, payload []byte) error {
//	        deviceType, deviceID, _ := mqtt.Topics{}.ParseDeviceAttributes(topic)
//	        ...
//	    })
//
// TLS should be enabled outside local development; credentials travel in
// the CONNECT packet.
package mqtt
