// Package discovery announces a registered inventory client on the local
// network with mDNS/DNS-SD.
//
// # Service (_m2mclient._tcp)
//
// The client advertises one instance while it is REGISTERED. The instance
// name is the endpoint name, truncated to the DNS label limit.
// TXT records include: ep (endpoint name), iep (internal endpoint name),
// uid (unique id, decimal) and optionally prod (product id).
//
// The advertisement is withdrawn when the client leaves REGISTERED.
// Browse lists the clients visible on the network.
package discovery
