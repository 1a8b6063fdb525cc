package discovery

import (
	"errors"
	"time"
)

// Service constants for mDNS.
const (
	// ServiceType is the service type of a registered client.
	ServiceType = "_m2mclient._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the CoAP port.
	DefaultPort = 5683

	// DefaultTTL is the DNS record TTL.
	DefaultTTL = 120 * time.Second

	// BrowseTimeout is the default timeout for mDNS browsing.
	BrowseTimeout = 5 * time.Second
)

// TXT record keys.
const (
	TXTKeyEndpoint         = "ep"   // Endpoint name
	TXTKeyInternalEndpoint = "iep"  // Internal endpoint name
	TXTKeyUniqueID         = "uid"  // Unique id (decimal)
	TXTKeyProduct          = "prod" // Product id (optional)
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63
)

// Discovery errors.
var (
	ErrMissingRequired     = errors.New("missing required TXT record")
	ErrInvalidTXTRecord    = errors.New("invalid TXT record")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotAdvertising      = errors.New("not advertising")
)

// EndpointRecord is what a registered client announces.
type EndpointRecord struct {
	EndpointName         string
	InternalEndpointName string
	UniqueID             uint32

	// ProductID is announced when HasProduct is set.
	ProductID  int64
	HasProduct bool

	// Port is the advertised port. Zero means DefaultPort.
	Port uint16
}

// ClientService is a client found by Browse.
type ClientService struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string
	EndpointRecord
}
