// Package pacing drives word-by-word playback at a fixed average rate using
// single-shot timers that correct for drift.
package pacing

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"
)

// ErrStop ends scheduling when returned by a TickFunc.
var ErrStop = errors.New("stop pacing")

// reliefDelay is the re-check interval used instead of firing while an odd
// number of periods are overdue.
const reliefDelay = 20 * time.Millisecond

// minDelay is the shortest timer ever scheduled.
const minDelay = time.Millisecond

// TickFunc is called once per period. It returns an extra delay to add
// before the next tick. Returning ErrStop stops the Pacer; other errors are
// logged and scheduling continues. A TickFunc must not call Stop on its own
// Pacer.
type TickFunc func() (time.Duration, error)

// Pacer is a self-correcting fixed-rate scheduler. The first tick fires
// immediately after Start.
type Pacer struct {
	clock  Clock
	period time.Duration
	tick   TickFunc
	logger *slog.Logger

	mu      sync.Mutex
	active  bool
	next    time.Time
	pending *armed
	ticks   int
}

// armed identifies one scheduled check.
type armed struct {
	timer Timer
}

// Start begins scheduling tick every period until Stop is called.
func Start(clock Clock, period time.Duration, tick TickFunc, logger *slog.Logger) (*Pacer, error) {
	if period <= 0 {
		return nil, fmt.Errorf("invalid pacing period %v", period)
	}
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	p := &Pacer{
		clock:  clock,
		period: period,
		tick:   tick,
		logger: logger,
		active: true,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.next = clock.Now()
	p.schedule(0)
	return p, nil
}

// Stop cancels any pending check. When Stop returns no further tick runs.
// Stop is idempotent.
func (p *Pacer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// Active reports whether the Pacer is still scheduling ticks.
func (p *Pacer) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Ticks returns the number of ticks fired so far.
func (p *Pacer) Ticks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ticks
}

// Period returns the base period.
func (p *Pacer) Period() time.Duration {
	return p.period
}

func (p *Pacer) stopLocked() {
	p.active = false
	if p.pending != nil {
		p.pending.timer.Stop()
		p.pending = nil
	}
}

// schedule arms the single pending check. Caller holds mu.
func (p *Pacer) schedule(d time.Duration) {
	if p.pending != nil {
		p.pending.timer.Stop()
	}
	a := &armed{}
	a.timer = p.clock.AfterFunc(d, func() { p.check(a) })
	p.pending = a
}

// check runs one scheduling decision. Checks from a superseded or stopped
// timer are ignored.
func (p *Pacer) check(from *armed) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active || from != p.pending {
		return
	}
	p.pending = nil

	now := p.clock.Now()
	overdue := 0
	if late := now.Sub(p.next); late > 0 {
		overdue = int(late / p.period)
	}

	if overdue%2 == 1 {
		p.schedule(reliefDelay)
		return
	}

	if now.Before(p.next) {
		p.schedule(max(p.next.Sub(now), minDelay))
		return
	}

	extra, stop := p.fire()
	p.ticks++
	if stop {
		p.stopLocked()
		return
	}

	next := p.next.Add(p.period + time.Duration(overdue)*p.period + extra)
	if next.Before(now) {
		next = now
	}
	p.next = next
	p.schedule(max(next.Sub(p.clock.Now()), minDelay))
}

// fire calls the tick function, containing errors and panics.
func (p *Pacer) fire() (extra time.Duration, stop bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pacing tick panicked", "panic", r)
			extra, stop = 0, false
		}
	}()

	extra, err := p.tick()
	if errors.Is(err, ErrStop) {
		return 0, true
	}
	if err != nil {
		p.logger.Warn("pacing tick failed", "error", err)
		return 0, false
	}
	return max(extra, 0), false
}

// Period returns the tick period for a words-per-minute rate.
func Period(wordsPerMinute int) time.Duration {
	if wordsPerMinute <= 0 {
		return 0
	}
	return time.Minute / time.Duration(wordsPerMinute)
}

// longWordRunes is the word length above which playback slows down.
const longWordRunes = 10

// LongWordDelay returns the extra pause after a word: 20ms for every
// character beyond the tenth.
func LongWordDelay(word string) time.Duration {
	n := utf8.RuneCountInString(word) - longWordRunes
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * 20 * time.Millisecond
}
