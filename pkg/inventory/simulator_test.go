package inventory

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/m2m-inventory/pkg/model"
)

// scriptedRand returns fixed draws.
type scriptedRand struct {
	intn  int
	float float64
}

func (r scriptedRand) Intn(n int) int {
	if r.intn >= n {
		return n - 1
	}
	return r.intn
}

func (r scriptedRand) Float64() float64 { return r.float }

// recordingSleeper records every wait and returns at once. onSleep, if
// set, runs before the wait is recorded as finished.
type recordingSleeper struct {
	mu      sync.Mutex
	waits   []time.Duration
	onSleep func(d time.Duration)
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.onSleep != nil {
		s.onSleep(d)
	}
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return nil
}

func (s *recordingSleeper) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

type fixture struct {
	tree    *model.Tree
	count   *model.Resource
	empty   *model.Resource
	sleeper *recordingSleeper
	changes []model.Value
	mu      sync.Mutex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{tree: model.NewTree(), sleeper: &recordingSleeper{}}
	f.count = f.tree.MustAdd(model.ResourceSpec{
		Address:    model.NewAddress(10341, 0, 26342),
		Name:       "count",
		Type:       model.DataTypeInteger,
		Access:     model.OpGet,
		Observable: true,
	})
	f.empty = f.tree.MustAdd(model.ResourceSpec{
		Address:    model.NewAddress(10341, 0, 26343),
		Name:       "empty",
		Type:       model.DataTypeInteger,
		Access:     model.OpGet,
		Observable: true,
	})
	f.tree.OnChange(func(r *model.Resource, v model.Value) {
		if r != f.count {
			return
		}
		f.mu.Lock()
		f.changes = append(f.changes, v)
		f.mu.Unlock()
	})
	return f
}

func (f *fixture) simulator(t *testing.T, st State, rng Rand) *Simulator {
	t.Helper()
	sim, err := New(Config{
		Count:   f.count,
		Empty:   f.empty,
		State:   st,
		Rand:    rng,
		Sleeper: f.sleeper,
	})
	require.NoError(t, err)
	require.NoError(t, sim.Publish())
	return sim
}

func TestNewState(t *testing.T) {
	st := NewState(scriptedRand{intn: 2, float: 0.25})
	assert.Equal(t, 30, st.MaxStock)
	assert.Equal(t, 30, st.Count)
	assert.Equal(t, 0.25, st.SaleProbability)
	assert.False(t, st.Empty)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		st := NewState(rng)
		assert.Contains(t, []int{10, 20, 30}, st.MaxStock)
		assert.GreaterOrEqual(t, st.SaleProbability, 0.0)
		assert.Less(t, st.SaleProbability, 1.0)
	}
}

func TestNew_Validation(t *testing.T) {
	f := newFixture(t)
	name := f.tree.MustAdd(model.ResourceSpec{
		Address: model.NewAddress(3201, 0, 5853),
		Name:    "pattern",
		Type:    model.DataTypeString,
		Access:  model.OpPut,
	})

	_, err := New(Config{Count: f.count, Rand: scriptedRand{}, State: State{MaxStock: 10}})
	assert.Error(t, err)

	_, err = New(Config{Count: f.count, Empty: name, Rand: scriptedRand{}, State: State{MaxStock: 10}})
	assert.ErrorIs(t, err, model.ErrTypeMismatch)

	_, err = New(Config{Count: f.count, Empty: f.empty, State: State{MaxStock: 10}})
	assert.Error(t, err)

	_, err = New(Config{Count: f.count, Empty: f.empty, Rand: scriptedRand{}, State: State{MaxStock: 10, Count: -1}})
	assert.Error(t, err)
}

func TestStep_AlwaysSoldEmptiesRow(t *testing.T) {
	f := newFixture(t)
	sim := f.simulator(t, State{MaxStock: 20, SaleProbability: 1.0, Count: 20}, scriptedRand{float: 0.5})

	for i := 0; i < 20; i++ {
		require.NoError(t, sim.Step(context.Background()))
	}

	assert.Equal(t, int64(0), f.count.Value().Int())
	assert.Equal(t, int64(1), f.empty.Value().Int())
	st := sim.State()
	assert.Equal(t, 0, st.Count)
	assert.True(t, st.Empty)

	stats := sim.Stats()
	assert.Equal(t, 20, stats.Cycles)
	assert.Equal(t, 20, stats.Sales)
	assert.Zero(t, stats.Returns)

	// Every cycle only waited for the arrival.
	waits := f.sleeper.Waits()
	require.Len(t, waits, 20)
	for _, w := range waits {
		assert.Equal(t, MinArrival, w)
	}
	// Publish plus one change per sale.
	assert.Len(t, f.changes, 21)
}

func TestStep_DeclinedSaleReturnsUnit(t *testing.T) {
	f := newFixture(t)
	sim := f.simulator(t, State{MaxStock: 10, SaleProbability: 0, Count: 1}, scriptedRand{intn: 400, float: 0.5})

	require.NoError(t, sim.Step(context.Background()))

	assert.Equal(t, int64(1), f.count.Value().Int())
	assert.Equal(t, int64(0), f.empty.Value().Int())
	assert.Equal(t, []time.Duration{500 * time.Millisecond, ReturnDelay}, f.sleeper.Waits())

	// 1 -> 0 -> 1, empty never set.
	assert.Equal(t, []model.Value{model.IntValue(1), model.IntValue(0), model.IntValue(1)}, f.changes)
	assert.Equal(t, 1, sim.Stats().Returns)
}

func TestStep_RestockWaitsBeforeClearingEmpty(t *testing.T) {
	f := newFixture(t)
	f.sleeper.onSleep = func(d time.Duration) {
		if d == RestockDelay {
			assert.Equal(t, int64(1), f.empty.Value().Int(), "empty cleared before restock wait elapsed")
		}
	}
	sim := f.simulator(t, State{MaxStock: 10, SaleProbability: 0, Count: 0, Empty: true}, scriptedRand{float: 0.5})

	require.NoError(t, sim.Step(context.Background()))

	assert.Equal(t, []time.Duration{MinArrival, RestockDelay, ReturnDelay}, f.sleeper.Waits())
	assert.Equal(t, 1, sim.Stats().Restocks)

	// Nothing to take from an unrefilled row, so it is empty again.
	assert.Equal(t, int64(0), f.count.Value().Int())
	assert.Equal(t, int64(1), f.empty.Value().Int())
}

func TestStep_RefillOnRestock(t *testing.T) {
	f := newFixture(t)
	sim, err := New(Config{
		Count:           f.count,
		Empty:           f.empty,
		State:           State{MaxStock: 30, SaleProbability: 1, Count: 0, Empty: true},
		Rand:            scriptedRand{float: 0.5},
		Sleeper:         f.sleeper,
		RefillOnRestock: true,
	})
	require.NoError(t, err)
	require.NoError(t, sim.Publish())

	require.NoError(t, sim.Step(context.Background()))

	assert.Equal(t, int64(29), f.count.Value().Int())
	assert.Equal(t, int64(0), f.empty.Value().Int())
	assert.False(t, sim.State().Empty)
}

func TestStep_CountNeverNegative(t *testing.T) {
	f := newFixture(t)
	rng := rand.New(rand.NewSource(42))
	st := NewState(rng)
	sim := f.simulator(t, st, rng)

	for i := 0; i < 500; i++ {
		require.NoError(t, sim.Step(context.Background()))
		st := sim.State()
		require.GreaterOrEqual(t, st.Count, 0)
		require.LessOrEqual(t, st.Count, st.MaxStock)
		if st.Empty {
			require.Zero(t, st.Count)
		}
	}
	for _, v := range f.changes {
		assert.GreaterOrEqual(t, v.Int(), int64(0))
	}

	for _, w := range f.sleeper.Waits() {
		switch w {
		case RestockDelay, ReturnDelay:
		default:
			assert.GreaterOrEqual(t, w, MinArrival)
			assert.Less(t, w, MinArrival+ArrivalSpanMillis*time.Millisecond)
		}
	}
}

type countingGate struct {
	mu    sync.Mutex
	left  int
	calls int
}

func (g *countingGate) RegisterCalled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.left == 0 {
		return false
	}
	g.left--
	return true
}

func TestRun_StopsWhenGateCloses(t *testing.T) {
	f := newFixture(t)
	sim := f.simulator(t, State{MaxStock: 10, SaleProbability: 1, Count: 10}, scriptedRand{float: 0.5})
	gate := &countingGate{left: 3}

	require.NoError(t, sim.Run(context.Background(), gate))

	assert.Equal(t, 3, sim.Stats().Cycles)
	assert.Equal(t, 4, gate.calls)
	assert.Equal(t, int64(7), f.count.Value().Int())
}

func TestRun_ContextCancel(t *testing.T) {
	f := newFixture(t)
	sim := f.simulator(t, State{MaxStock: 10, SaleProbability: 1, Count: 10}, scriptedRand{float: 0.5})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sim.Run(ctx, &countingGate{left: 100})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sim.Stats().Cycles)
}

func TestTimerSleeper(t *testing.T) {
	start := time.Now()
	require.NoError(t, TimerSleeper{}.Sleep(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, TimerSleeper{}.Sleep(ctx, time.Hour), context.Canceled)
}
