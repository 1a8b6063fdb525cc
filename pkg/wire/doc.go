// Package wire defines the CBOR wire format exchanged between the client
// and the management service.
//
// All messages use CBOR (RFC 8949) maps with integer keys.
//
// # Message Types
//
//   - Request: service to client (GET, PUT, POST on one resource)
//   - Response: client to service (status and optional value)
//   - Notification: client to service (new value of an observable resource)
//
// Notifications carry messageId 0, which is reserved and never used by
// requests.
package wire
