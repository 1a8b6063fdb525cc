// Package model implements the addressable resource tree of the client.
//
// # Addressing
//
// Resources are addressed by the triple:
//
//	(ObjectID, InstanceID, ResourceID)
//
// rendered as "10341/0/26342". There is no hierarchy beyond this triple:
// the tree is a flat catalogue keyed by Address.
//
// # Resources
//
// Each resource has:
//   - Name: human-readable name
//   - DataType: INTEGER or STRING, fixed for the resource's lifetime
//   - Access: the set of verbs (GET, PUT, POST) the remote side may use
//   - Observable: whether value changes are pushed as notifications
//   - OnWrite: optional callback run after an accepted PUT/POST
//   - OnNotifyStatus: optional callback receiving notification outcomes
//
// # Lifecycle
//
// The tree is populated once, then sealed when it is handed to the
// management connector. Resources cannot be added after Seal.
//
// # Concurrency
//
// Every resource guards its value with its own lock. Local logic and
// remote writes may race on the same resource; Resource.Update performs a
// read-modify-write under that lock so neither side loses an update.
// Change observers run after the lock has been released.
package model
