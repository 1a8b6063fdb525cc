// Package notify tracks the delivery outcome of resource notifications.
//
// Every accepted change of an observable resource while the client is
// registered produces exactly one terminal status (SENT, DELIVERED,
// SEND_FAILED, BUILD_ERROR or RESEND_QUEUE_FULL). SUBSCRIBED and
// UNSUBSCRIBED report observer transitions and are independent of value
// changes. Statuses arrive asynchronously and notifications for the same
// resource may overlap.
package notify

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/mash-protocol/m2m-inventory/pkg/model"
)

// Stats summarizes the notifications of one resource.
type Stats struct {
	// Counts holds the number of reports per status.
	Counts map[model.NotifyStatus]int

	// InFlight is the number of notifications awaiting a terminal status.
	InFlight int

	// Last is the most recent status (0 if none).
	Last model.NotifyStatus

	// Observed is true between SUBSCRIBED and UNSUBSCRIBED.
	Observed bool
}

// Terminal returns the number of terminal statuses reported.
func (s Stats) Terminal() int {
	n := 0
	for status, c := range s.Counts {
		if status.IsTerminal() {
			n += c
		}
	}
	return n
}

type entry struct {
	counts   map[model.NotifyStatus]int
	inFlight int
	last     model.NotifyStatus
	observed bool
}

// Tracker records notification outcomes per resource address.
// It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	entries map[model.Address]*entry
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		entries: make(map[model.Address]*entry),
	}
}

func (t *Tracker) entry(addr model.Address) *entry {
	e, exists := t.entries[addr]
	if !exists {
		e = &entry{counts: make(map[model.NotifyStatus]int)}
		t.entries[addr] = e
	}
	return e
}

// Begin records that a notification for addr was handed to the transport.
func (t *Tracker) Begin(addr model.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entry(addr).inFlight++
}

// Report records a status for addr.
func (t *Tracker) Report(addr model.Address, status model.NotifyStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entry(addr)
	e.counts[status]++
	e.last = status

	switch {
	case status.IsTerminal():
		if e.inFlight > 0 {
			e.inFlight--
		}
	case status == model.StatusSubscribed:
		e.observed = true
	case status == model.StatusUnsubscribed:
		e.observed = false
	}
}

// Stats returns a snapshot for addr.
func (t *Tracker) Stats(addr model.Address) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, exists := t.entries[addr]
	if !exists {
		return Stats{Counts: map[model.NotifyStatus]int{}}
	}

	counts := make(map[model.NotifyStatus]int, len(e.counts))
	for k, v := range e.counts {
		counts[k] = v
	}
	return Stats{
		Counts:   counts,
		InFlight: e.inFlight,
		Last:     e.last,
		Observed: e.observed,
	}
}

// Addresses returns the tracked addresses, sorted.
func (t *Tracker) Addresses() []model.Address {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]model.Address, 0, len(t.entries))
	for addr := range t.entries {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ObjectID != b.ObjectID {
			return a.ObjectID < b.ObjectID
		}
		if a.InstanceID != b.InstanceID {
			return a.InstanceID < b.InstanceID
		}
		return a.ResourceID < b.ResourceID
	})
	return out
}

// Describe returns the diagnostic text for a status.
func Describe(status model.NotifyStatus) string {
	switch status {
	case model.StatusBuildError:
		return "error when building CoAP message"
	case model.StatusResendQueueFull:
		return "CoAP resend queue full"
	case model.StatusSent:
		return "Notification sent to server"
	case model.StatusDelivered:
		return "Notification delivered"
	case model.StatusSendFailed:
		return "Notification sending failed"
	case model.StatusSubscribed:
		return "subscribed"
	case model.StatusUnsubscribed:
		return "subscription removed"
	default:
		return "unknown notification status"
	}
}

// StatusLogger returns a resource status callback that writes one line per
// status to logger. Failures are logged at warn level.
func StatusLogger(logger *slog.Logger) model.NotifyStatusFunc {
	return func(r *model.Resource, status model.NotifyStatus) {
		if logger == nil {
			return
		}
		level := slog.LevelInfo
		switch status {
		case model.StatusSendFailed, model.StatusBuildError, model.StatusResendQueueFull:
			level = slog.LevelWarn
		}
		logger.Log(context.Background(), level, "Notification callback: "+Describe(status),
			"resource", r.Address().String(),
			"status", status.String())
	}
}
