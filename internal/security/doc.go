// Package security issues the access tokens carried on Context Broker updates.
//
// When authentication is enabled each device type is configured with a
// trust. Before an update the NGSI service asks a TokenProvider to exchange
// that trust for a short-lived token, which is sent in the X-Auth-Token
// header.
//
// Two providers exist:
//   - KeystoneProvider: trust-scoped tokens from OpenStack Keystone v3
//   - JWTProvider: HS256 tokens signed with a shared secret
package security
