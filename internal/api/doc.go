// Package api provides the northbound HTTP API of the IoT Agent.
//
// It exposes device provisioning and attribute updates over REST, plus
// health and Prometheus metrics endpoints:
//
//	GET    /health
//	GET    /metrics
//	GET    /iot/devices
//	POST   /iot/devices
//	GET    /iot/devices/{id}
//	DELETE /iot/devices/{id}?type=
//	POST   /iot/devices/{id}/attrs?type=
//	GET    /iot/audit                     (only when Deps.Audit is set)
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Agent errors are mapped to HTTP status codes in errors.go.
package api
