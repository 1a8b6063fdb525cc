// Package inventory simulates the stock of one vending row and mirrors it
// into the count and empty resources.
//
// Each cycle waits for a random demand event, restocks an empty row,
// takes one unit for sale and either keeps the sale or returns the unit
// to the shelf. Durations are fixed and exact to the millisecond.
package inventory

import (
	"context"
	"fmt"
	"time"
)

// Cycle timing.
const (
	// MinArrival is the shortest wait for a demand event.
	MinArrival = 100 * time.Millisecond

	// ArrivalSpanMillis is the width of the demand wait range: waits are
	// drawn uniformly from [MinArrival, MinArrival+ArrivalSpanMillis ms).
	ArrivalSpanMillis = 9900

	// RestockDelay is the wait before an empty row is refilled.
	RestockDelay = 10000 * time.Millisecond

	// ReturnDelay is the wait before a declined unit is back on the shelf.
	ReturnDelay = 1000 * time.Millisecond
)

// Rand is the randomness the simulator draws from. *math/rand.Rand
// satisfies it.
type Rand interface {
	Intn(n int) int
	Float64() float64
}

// Sleeper suspends the caller for an exact duration.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// TimerSleeper sleeps on a timer. Only context cancellation (process
// shutdown) cuts a wait short.
type TimerSleeper struct{}

// Sleep waits for d or until ctx is done.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State is the inventory of one run.
type State struct {
	// MaxStock is the row capacity: 10, 20 or 30.
	MaxStock int

	// SaleProbability is the chance in [0,1) that a considered unit is sold.
	SaleProbability float64

	// Count is the number of units on the shelf.
	Count int

	// Empty is set when Count reached 0 and cleared after restocking.
	Empty bool
}

// NewState draws the capacity and sale probability of a run. The row
// starts full.
func NewState(rng Rand) State {
	maxStock := (rng.Intn(3) + 1) * 10
	return State{
		MaxStock:        maxStock,
		SaleProbability: rng.Float64(),
		Count:           maxStock,
	}
}

// Validate checks the state invariants.
func (s State) Validate() error {
	if s.MaxStock <= 0 {
		return fmt.Errorf("max stock must be positive, got %d", s.MaxStock)
	}
	if s.SaleProbability < 0 || s.SaleProbability > 1 {
		return fmt.Errorf("sale probability %v outside [0,1]", s.SaleProbability)
	}
	if s.Count < 0 {
		return fmt.Errorf("count must not be negative, got %d", s.Count)
	}
	return nil
}
