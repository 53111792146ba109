// Package measures is the southbound MQTT bridge of the agent.
//
// Devices publish their measures as a JSON object on
// iotagent/{type}/{deviceId}/attrs, for example:
//
//	iotagent/Lamp/lamp-1/attrs  {"luminosity": 30, "state": "on"}
//
// The bridge checks the device is provisioned, converts each member into an
// NGSI attribute value and forwards them with a single UpdateValue call.
// Attribute types come from the device's lazy attributes when declared and
// are inferred from the JSON value otherwise. Accepted measures are also
// written to the optional history store.
package measures
