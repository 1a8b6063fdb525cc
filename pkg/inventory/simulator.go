package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/mash-protocol/m2m-inventory/pkg/log"
	"github.com/mash-protocol/m2m-inventory/pkg/model"
)

// Gate decides whether the loop may run another cycle.
// *client.Client satisfies it.
type Gate interface {
	RegisterCalled() bool
}

// Config configures a Simulator.
type Config struct {
	// Count and Empty are the integer resources mirroring the state.
	Count *model.Resource
	Empty *model.Resource

	// State is the starting inventory.
	State State

	// Rand supplies arrival waits and sale draws.
	Rand Rand

	// Sleeper performs the timed waits. Nil uses TimerSleeper.
	Sleeper Sleeper

	// RefillOnRestock sets the count back to MaxStock when an empty row
	// is restocked. Off by default: restocking only clears the empty flag.
	RefillOnRestock bool

	// Logger is used for operational logging. Nil disables it.
	Logger *slog.Logger

	// EventLogger receives inventory state events.
	EventLogger log.Logger
}

// Stats counts cycle outcomes.
type Stats struct {
	Cycles   int
	Sales    int
	Returns  int
	Restocks int
}

// Simulator runs the inventory cycle.
type Simulator struct {
	count   *model.Resource
	empty   *model.Resource
	rng     Rand
	sleeper Sleeper
	refill  bool
	logger  *slog.Logger
	events  log.Logger

	mu    sync.Mutex
	state State
	stats Stats
}

// New creates a simulator.
func New(config Config) (*Simulator, error) {
	if config.Count == nil || config.Empty == nil {
		return nil, errors.New("count and empty resources are required")
	}
	for _, r := range []*model.Resource{config.Count, config.Empty} {
		if r.Type() != model.DataTypeInteger {
			return nil, fmt.Errorf("%w: %s must be an integer resource", model.ErrTypeMismatch, r.Address())
		}
	}
	if config.Rand == nil {
		return nil, errors.New("rand is required")
	}
	if err := config.State.Validate(); err != nil {
		return nil, err
	}
	if config.Sleeper == nil {
		config.Sleeper = TimerSleeper{}
	}
	return &Simulator{
		count:   config.Count,
		empty:   config.Empty,
		rng:     config.Rand,
		sleeper: config.Sleeper,
		refill:  config.RefillOnRestock,
		logger:  config.Logger,
		events:  log.OrNoop(config.EventLogger),
		state:   config.State,
	}, nil
}

// Publish writes the starting state to the resources.
func (s *Simulator) Publish() error {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()

	if err := s.count.SetValue(model.IntValue(int64(st.Count))); err != nil {
		return err
	}
	return s.empty.SetValue(model.IntValue(boolToInt(st.Empty)))
}

// Run cycles while gate.RegisterCalled() holds, checking it at the top of
// every cycle. It returns nil when the gate closes, or the context error
// on shutdown.
func (s *Simulator) Run(ctx context.Context, gate Gate) error {
	for gate.RegisterCalled() {
		if err := s.Step(ctx); err != nil {
			return err
		}
	}
	s.debugLog("inventory: loop stopped", "cycles", s.Stats().Cycles)
	return nil
}

// Step runs one cycle.
func (s *Simulator) Step(ctx context.Context) error {
	wait := MinArrival + time.Duration(s.rng.Intn(ArrivalSpanMillis))*time.Millisecond
	if err := s.sleeper.Sleep(ctx, wait); err != nil {
		return err
	}

	if s.isEmpty() {
		if err := s.sleeper.Sleep(ctx, RestockDelay); err != nil {
			return err
		}
		if err := s.setEmpty(false, "restocked"); err != nil {
			return err
		}
		if s.refill {
			if _, err := s.updateCount(func(int64) int64 { return int64(s.maxStock()) }); err != nil {
				return err
			}
		}
		s.bump(func(st *Stats) { st.Restocks++ })
	}

	taken := false
	if _, err := s.updateCount(func(c int64) int64 {
		if c <= 0 {
			return 0
		}
		taken = true
		return c - 1
	}); err != nil {
		return err
	}

	if s.rng.Float64() < s.saleProbability() {
		s.bump(func(st *Stats) { st.Sales++ })
	} else {
		if err := s.sleeper.Sleep(ctx, ReturnDelay); err != nil {
			return err
		}
		if taken {
			if _, err := s.updateCount(func(c int64) int64 { return c + 1 }); err != nil {
				return err
			}
		}
		s.bump(func(st *Stats) { st.Returns++ })
	}

	if s.currentCount() == 0 && !s.isEmpty() {
		if err := s.setEmpty(true, "sold out"); err != nil {
			return err
		}
	}

	s.bump(func(st *Stats) { st.Cycles++ })
	return nil
}

// State returns a snapshot of the inventory.
func (s *Simulator) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns the cycle counters.
func (s *Simulator) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Simulator) updateCount(fn func(int64) int64) (int64, error) {
	v, err := s.count.Update(func(cur model.Value) (model.Value, error) {
		return model.IntValue(fn(cur.Int())), nil
	})
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.state.Count = int(v.Int())
	s.mu.Unlock()
	return v.Int(), nil
}

func (s *Simulator) setEmpty(empty bool, reason string) error {
	if err := s.empty.SetValue(model.IntValue(boolToInt(empty))); err != nil {
		return err
	}
	s.mu.Lock()
	old := s.state.Empty
	s.state.Empty = empty
	count := s.state.Count
	s.mu.Unlock()

	s.debugLog("inventory: empty flag", "empty", empty, "count", count, "reason", reason)
	s.events.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerResource,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityInventory,
			OldState: emptyState(old),
			NewState: emptyState(empty),
			Reason:   reason + ", count=" + strconv.Itoa(count),
		},
	})
	return nil
}

func (s *Simulator) isEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Empty
}

func (s *Simulator) currentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Count
}

func (s *Simulator) maxStock() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.MaxStock
}

func (s *Simulator) saleProbability() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SaleProbability
}

func (s *Simulator) bump(fn func(*Stats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.stats)
}

// debugLog logs a debug message if logging is enabled.
func (s *Simulator) debugLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func emptyState(empty bool) string {
	if empty {
		return "EMPTY"
	}
	return "STOCKED"
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
