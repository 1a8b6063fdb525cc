// Package pattern parses LED blink patterns and plays them on an actuator.
//
// A pattern is a colon-separated list of millisecond durations, for
// example "500:200:500". Playback toggles the LED, then for every duration
// waits and toggles again, and finally switches the LED off.
package pattern

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultPattern is the pattern a device starts with.
const DefaultPattern = "500:500:500:500"

// Pattern errors.
var (
	ErrInvalidPattern = errors.New("invalid blink pattern")
	ErrBusy           = errors.New("blink pattern already playing")
)

// Actuator drives the LED.
type Actuator interface {
	Toggle()
	Off()
}

// Sleeper suspends the caller for an exact duration.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Parse converts "500:200:500" into durations. The empty string is a
// valid pattern with no steps.
func Parse(s string) ([]time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ":")
	out := make([]time.Duration, 0, len(parts))
	for i, p := range parts {
		ms, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("%w: step %d %q", ErrInvalidPattern, i, p)
		}
		if ms < 0 {
			return nil, fmt.Errorf("%w: step %d is negative", ErrInvalidPattern, i)
		}
		out = append(out, time.Duration(ms)*time.Millisecond)
	}
	return out, nil
}

// Format is the inverse of Parse.
func Format(steps []time.Duration) string {
	parts := make([]string, len(steps))
	for i, d := range steps {
		parts[i] = strconv.FormatInt(d.Milliseconds(), 10)
	}
	return strings.Join(parts, ":")
}

// Play runs one playback. The LED is switched off when Play returns,
// including on cancellation.
func Play(ctx context.Context, steps []time.Duration, led Actuator, sleeper Sleeper) error {
	defer led.Off()

	led.Toggle()
	for _, d := range steps {
		if err := sleeper.Sleep(ctx, d); err != nil {
			return err
		}
		led.Toggle()
	}
	return nil
}

// Player plays patterns in the background, one at a time.
type Player struct {
	led     Actuator
	sleeper Sleeper
	logger  *slog.Logger

	mu      sync.Mutex
	playing bool
	wg      sync.WaitGroup
}

// NewPlayer creates a player. logger may be nil.
func NewPlayer(led Actuator, sleeper Sleeper, logger *slog.Logger) *Player {
	return &Player{led: led, sleeper: sleeper, logger: logger}
}

// Start parses s and plays it on a new goroutine. It fails with
// ErrInvalidPattern or, while another playback runs, ErrBusy.
func (p *Player) Start(ctx context.Context, s string) error {
	steps, err := Parse(s)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		return ErrBusy
	}
	p.playing = true
	p.wg.Add(1)
	p.mu.Unlock()

	if p.logger != nil {
		p.logger.Info("LED pattern", "pattern", s, "steps", len(steps))
	}

	go func() {
		defer p.wg.Done()
		err := Play(ctx, steps, p.led, p.sleeper)
		if err != nil && p.logger != nil {
			p.logger.Debug("pattern: playback interrupted", "error", err)
		}
		p.mu.Lock()
		p.playing = false
		p.mu.Unlock()
	}()
	return nil
}

// Playing reports whether a playback is running.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Wait blocks until the running playback, if any, has finished.
func (p *Player) Wait() {
	p.wg.Wait()
}

// LogLED is an Actuator that keeps the LED state in memory and logs
// every change.
type LogLED struct {
	Logger *slog.Logger

	mu      sync.Mutex
	on      bool
	toggles int
}

// Toggle flips the LED.
func (l *LogLED) Toggle() {
	l.mu.Lock()
	l.on = !l.on
	l.toggles++
	on := l.on
	l.mu.Unlock()
	if l.Logger != nil {
		l.Logger.Debug("led: toggle", "on", on)
	}
}

// Off switches the LED off.
func (l *LogLED) Off() {
	l.mu.Lock()
	l.on = false
	l.mu.Unlock()
	if l.Logger != nil {
		l.Logger.Debug("led: off")
	}
}

// On reports the LED state.
func (l *LogLED) On() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

// Toggles returns the number of toggles so far.
func (l *LogLED) Toggles() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.toggles
}
