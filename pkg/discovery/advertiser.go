package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Advertiser provides mDNS service advertising capabilities.
type Advertiser interface {
	// Advertise starts advertising rec, replacing any previous record.
	Advertise(ctx context.Context, rec *EndpointRecord) error

	// Update replaces the TXT records of the running advertisement.
	Update(rec *EndpointRecord) error

	// Stop stops advertising.
	Stop() error
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL.
	// Default: 120 seconds.
	TTL time.Duration

	// Port overrides the advertised port of records without one.
	Port uint16
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{
		TTL:  DefaultTTL,
		Port: DefaultPort,
	}
}

// Announcer keeps the advertisement in step with the client lifecycle:
// Announce while registered, Withdraw when leaving.
type Announcer struct {
	advertiser Advertiser
	logger     *slog.Logger

	mu     sync.Mutex
	active bool
	record *EndpointRecord
}

// NewAnnouncer creates an announcer. logger may be nil.
func NewAnnouncer(advertiser Advertiser, logger *slog.Logger) *Announcer {
	return &Announcer{advertiser: advertiser, logger: logger}
}

// Announce starts advertising rec, or updates the TXT records when an
// advertisement is already running.
func (a *Announcer) Announce(ctx context.Context, rec *EndpointRecord) error {
	if rec.EndpointName == "" {
		return fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyEndpoint)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var err error
	if a.active {
		err = a.advertiser.Update(rec)
	} else {
		err = a.advertiser.Advertise(ctx, rec)
	}
	if err != nil {
		return err
	}

	cp := *rec
	a.record = &cp
	a.active = true
	a.debugLog("discovery: announced", "instance", InstanceName(rec), "uid", rec.UniqueID)
	return nil
}

// Withdraw stops the advertisement. Withdrawing when nothing is announced
// succeeds.
func (a *Announcer) Withdraw() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.active {
		return nil
	}
	a.active = false
	a.record = nil
	a.debugLog("discovery: withdrawn")
	return a.advertiser.Stop()
}

// Active reports whether an advertisement is running.
func (a *Announcer) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Record returns the announced record.
func (a *Announcer) Record() (EndpointRecord, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.record == nil {
		return EndpointRecord{}, false
	}
	return *a.record, true
}

// debugLog logs a debug message if logging is enabled.
func (a *Announcer) debugLog(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Debug(msg, args...)
	}
}
