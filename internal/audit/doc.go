// Package audit records the provisioning trail of the IoT Agent.
//
// Every Register and Unregister call that passes through Middleware
// leaves one Entry in the provisioning_log table, successful or not.
// The trail is read back through Repository.List, which the HTTP API
// exposes at GET /iot/audit.
//
// Writing the trail never changes the outcome of the wrapped call:
// a failed insert is logged and the agent's result is returned as-is.
package audit
