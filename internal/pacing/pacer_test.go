package pacing

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

const testPeriod = 60 * time.Second / 300 // 300 wpm

// recorder counts ticks and records when they fired.
type recorder struct {
	clock *fakeClock
	at    []time.Time
	extra time.Duration
	err   error
}

func (r *recorder) tick() (time.Duration, error) {
	r.at = append(r.at, r.clock.Now())
	return r.extra, r.err
}

func TestPacer_FirstTickImmediate(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{clock: clock}
	p, err := Start(clock, testPeriod, rec.tick, nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	clock.Advance(0)
	if len(rec.at) != 1 {
		t.Fatalf("ticks after start = %d, want 1", len(rec.at))
	}

	clock.Advance(testPeriod - time.Millisecond)
	if len(rec.at) != 1 {
		t.Errorf("ticks before one period = %d, want 1", len(rec.at))
	}
	clock.Advance(time.Millisecond)
	if len(rec.at) != 2 {
		t.Errorf("ticks after one period = %d, want 2", len(rec.at))
	}
}

func TestPacer_SteadyRate(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{clock: clock}
	p, _ := Start(clock, testPeriod, rec.tick, nil)
	defer p.Stop()

	clock.Advance(100 * testPeriod)
	if got := len(rec.at); got != 101 {
		t.Errorf("ticks = %d, want 101", got)
	}
	for i := 1; i < len(rec.at); i++ {
		if d := rec.at[i].Sub(rec.at[i-1]); d != testPeriod {
			t.Fatalf("gap %d = %v, want %v", i, d, testPeriod)
		}
	}
}

func TestPacer_ExtraDelayIsAdditive(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{clock: clock, extra: 40 * time.Millisecond}
	p, _ := Start(clock, testPeriod, rec.tick, nil)
	defer p.Stop()

	clock.Advance(10 * (testPeriod + rec.extra))
	if got := len(rec.at); got != 11 {
		t.Errorf("ticks = %d, want 11", got)
	}
	if d := rec.at[1].Sub(rec.at[0]); d != testPeriod+rec.extra {
		t.Errorf("gap = %v, want %v", d, testPeriod+rec.extra)
	}
}

func TestPacer_ConvergesUnderJitter(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	clock := newFakeClock()
	clock.late = func() time.Duration {
		return time.Duration(rng.Int63n(int64(testPeriod)))
	}
	rec := &recorder{clock: clock}
	p, _ := Start(clock, testPeriod, rec.tick, nil)
	defer p.Stop()

	const periods = 2000
	clock.Advance(periods * testPeriod)

	got := len(rec.at)
	if got < periods-2 || got > periods+1 {
		t.Errorf("ticks = %d, want about %d", got, periods)
	}
	avg := rec.at[len(rec.at)-1].Sub(rec.at[0]) / time.Duration(len(rec.at)-1)
	if diff := avg - testPeriod; diff < -time.Millisecond || diff > time.Millisecond {
		t.Errorf("average gap = %v, want %v", avg, testPeriod)
	}
}

func TestPacer_NeverAheadOfElapsedTime(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	clock := newFakeClock()
	clock.late = func() time.Duration {
		return time.Duration(rng.Int63n(int64(3 * testPeriod)))
	}
	rec := &recorder{clock: clock}
	start := clock.Now()
	p, _ := Start(clock, testPeriod, rec.tick, nil)
	defer p.Stop()

	for range 500 {
		clock.Advance(testPeriod / 3)
		elapsed := clock.Now().Sub(start)
		if limit := int(elapsed/testPeriod) + 1; len(rec.at) > limit {
			t.Fatalf("after %v: %d ticks, at most %d allowed", elapsed, len(rec.at), limit)
		}
	}
	if len(rec.at) < 20 {
		t.Errorf("ticks = %d, playback stalled", len(rec.at))
	}
	for i := 1; i < len(rec.at); i++ {
		if !rec.at[i].After(rec.at[i-1]) {
			t.Fatalf("ticks %d and %d fired at the same time", i-1, i)
		}
	}
}

func TestPacer_SlowTickDoesNotBurst(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{clock: clock}
	p, _ := Start(clock, testPeriod, rec.tick, nil)
	defer p.Stop()
	clock.Advance(0)

	// The host stalls for ten periods; the pending check lands once.
	clock.DelayPending(10 * testPeriod)
	before := len(rec.at)
	clock.Advance(11*testPeriod + testPeriod/2)
	if burst := len(rec.at) - before; burst != 1 {
		t.Errorf("%d ticks fired after the stall, want 1", burst)
	}

	clock.Advance(testPeriod)
	if got := len(rec.at) - before; got != 2 {
		t.Errorf("ticks after recovery = %d, want 2", got)
	}
}

func TestPacer_OddOverdueDefers(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{clock: clock}
	p, _ := Start(clock, testPeriod, rec.tick, nil)
	defer p.Stop()
	clock.Advance(0)

	// The next check lands one and a half periods late: overdue is odd.
	clock.DelayPending(testPeriod + testPeriod/2)
	clock.Advance(2*testPeriod + testPeriod/2)
	if len(rec.at) != 1 {
		t.Fatalf("ticks = %d, want 1 (odd overdue must not fire)", len(rec.at))
	}

	clock.Advance(testPeriod / 2)
	if len(rec.at) != 2 {
		t.Fatalf("ticks = %d, want 2 once overdue turns even", len(rec.at))
	}
	if want := clock.Now(); !rec.at[1].Equal(want) {
		t.Errorf("relief tick fired at %v, want %v", rec.at[1], want)
	}
}

func TestPacer_StopCancelsPending(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{clock: clock}
	p, _ := Start(clock, testPeriod, rec.tick, nil)
	clock.Advance(0)

	p.Stop()
	p.Stop()
	if p.Active() {
		t.Error("Active() = true after Stop")
	}
	if clock.Pending() != 0 {
		t.Errorf("pending timers = %d, want 0", clock.Pending())
	}
	clock.Advance(10 * testPeriod)
	if len(rec.at) != 1 {
		t.Errorf("ticks after Stop = %d, want 1", len(rec.at))
	}
}

func TestPacer_StaleCheckIgnored(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{clock: clock}
	p, _ := Start(clock, testPeriod, rec.tick, nil)
	clock.Advance(0)

	// Grab the pending check, stop the pacer, then run the check anyway.
	clock.mu.Lock()
	stale := clock.timers[0]
	clock.mu.Unlock()
	p.Stop()
	stale.f()

	if len(rec.at) != 1 {
		t.Errorf("stale check fired a tick: %d ticks", len(rec.at))
	}
}

func TestPacer_ErrStop(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{clock: clock, err: ErrStop}
	p, _ := Start(clock, testPeriod, rec.tick, nil)

	clock.Advance(5 * testPeriod)
	if len(rec.at) != 1 {
		t.Errorf("ticks = %d, want 1", len(rec.at))
	}
	if p.Active() {
		t.Error("Active() = true after ErrStop")
	}
}

func TestPacer_ErrorsAndPanicsKeepScheduling(t *testing.T) {
	clock := newFakeClock()
	n := 0
	tick := func() (time.Duration, error) {
		n++
		switch n {
		case 1:
			return 0, errors.New("boom")
		case 2:
			panic("kaboom")
		}
		return 0, nil
	}
	p, _ := Start(clock, testPeriod, tick, nil)
	defer p.Stop()

	clock.Advance(4 * testPeriod)
	if n != 5 {
		t.Errorf("ticks = %d, want 5", n)
	}
	if p.Ticks() != 5 {
		t.Errorf("Ticks() = %d, want 5", p.Ticks())
	}
}

func TestStart_InvalidPeriod(t *testing.T) {
	if _, err := Start(newFakeClock(), 0, func() (time.Duration, error) { return 0, nil }, nil); err == nil {
		t.Error("Start should reject a zero period")
	}
}

func TestPeriodAndLongWordDelay(t *testing.T) {
	if got := Period(320); got != 187500*time.Microsecond {
		t.Errorf("Period(320) = %v, want 187.5ms", got)
	}
	if got := Period(0); got != 0 {
		t.Errorf("Period(0) = %v, want 0", got)
	}
	tests := []struct {
		word string
		want time.Duration
	}{
		{"short", 0},
		{"exactlyten", 0},
		{"elevenchars", 20 * time.Millisecond},
		{"incomprehensibilities", 220 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := LongWordDelay(tt.word); got != tt.want {
			t.Errorf("LongWordDelay(%q) = %v, want %v", tt.word, got, tt.want)
		}
	}
}
