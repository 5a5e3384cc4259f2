package sequencer

import (
	"context"
	"sort"
	"sync"
	"time"

	"bandaid/clock"
	"bandaid/debug"
	"bandaid/settings"
)

// PPQ is the tick resolution (pulses per quarter note)
const PPQ = 192

// TicksPerBar is one 4/4 measure
const TicksPerBar = 4 * PPQ

// Look-ahead for scheduling. Notes are handed to the voices this far
// ahead of the clock.
const (
	defaultLookahead = 100 * time.Millisecond
	processInterval  = 25 * time.Millisecond
)

// Ticks converts a note value ("1m", "2n", "4n", "8n", "16n") to ticks.
// Unknown values count as a quarter note.
func Ticks(value string) int64 {
	switch value {
	case "1m":
		return TicksPerBar
	case "2n":
		return 2 * PPQ
	case "8n":
		return PPQ / 2
	case "16n":
		return PPQ / 4
	}
	return PPQ
}

// Event is passed to a loop callback. Time is the clock time the event is
// due to sound; it is up to lookahead later than when the callback runs.
type Event struct {
	Time time.Duration
	Tick int64
	Step int // position in the loop, derived from Tick
	Bar  int
}

// LoopID identifies a loop registered with Repeat
type LoopID int

type loop struct {
	id       LoopID
	interval int64
	steps    int
	next     int64
	fn       func(Event)
}

type drawCall struct {
	at time.Duration
	fn func()
}

type pending struct {
	ev Event
	id LoopID
	fn func(Event)
}

// Transport is the shared musical clock. Loops fire on whichever goroutine
// calls Process, normally the one running Run.
type Transport struct {
	clock     clock.Clock
	lookahead time.Duration

	// fireMu is held while a batch of callbacks runs; structural changes
	// (Stop, Clear, CancelAll) take it so no callback from a torn-down loop
	// runs after they return.
	fireMu sync.Mutex

	mu         sync.Mutex
	bpm        int
	running    bool
	anchorTime time.Duration
	anchorTick float64
	loops      map[LoopID]*loop
	nextID     LoopID
	draws      []drawCall

	interruptChan chan struct{}
}

// TransportOption configures a Transport
type TransportOption func(*Transport)

// WithLookahead sets how far ahead of the clock events are fired
func WithLookahead(d time.Duration) TransportOption {
	return func(t *Transport) {
		if d > 0 {
			t.lookahead = d
		}
	}
}

// NewTransport creates a stopped transport at the default tempo
func NewTransport(c clock.Clock, opts ...TransportOption) *Transport {
	t := &Transport{
		clock:         c,
		lookahead:     defaultLookahead,
		bpm:           settings.DefaultBPM,
		loops:         make(map[LoopID]*loop),
		interruptChan: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Clock returns the clock the transport schedules against
func (t *Transport) Clock() clock.Clock {
	return t.clock
}

// SetTempo clamps bpm and re-anchors the tick map at the current position
// so the playhead does not jump
func (t *Transport) SetTempo(bpm int) int {
	bpm = settings.ClampBPM(bpm)
	t.mu.Lock()
	defer t.mu.Unlock()
	if bpm == t.bpm {
		return bpm
	}
	if t.running {
		now := t.clock.Now()
		t.anchorTick = t.tickAt(now)
		t.anchorTime = now
	}
	t.bpm = bpm
	return bpm
}

// Tempo returns the current bpm
func (t *Transport) Tempo() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bpm
}

// Running reports whether the transport is started
func (t *Transport) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Start moves the playhead to tick 0 at the current clock time. Starting a
// running transport is a no-op.
func (t *Transport) Start() bool {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return false
	}
	t.running = true
	t.anchorTime = t.clock.Now()
	t.anchorTick = 0
	for _, l := range t.loops {
		l.next = 0
	}
	t.mu.Unlock()
	debug.Log("transport", "start bpm=%d", t.Tempo())
	t.Interrupt()
	return true
}

// Stop halts the playhead and drops every loop and pending draw callback.
// Stopping a stopped transport is a no-op.
func (t *Transport) Stop() bool {
	t.fireMu.Lock()
	defer t.fireMu.Unlock()
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return false
	}
	t.running = false
	t.loops = make(map[LoopID]*loop)
	t.draws = nil
	debug.Log("transport", "stop")
	return true
}

// CancelAll drops every loop and pending draw callback without stopping
func (t *Transport) CancelAll() {
	t.fireMu.Lock()
	defer t.fireMu.Unlock()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loops = make(map[LoopID]*loop)
	t.draws = nil
}

// Repeat registers fn to fire every interval ticks, cycling through steps.
// On a running transport the first event lands on the next interval
// boundary, so loops added later stay phase-aligned with the bar.
func (t *Transport) Repeat(interval int64, steps int, fn func(Event)) LoopID {
	if interval <= 0 {
		interval = PPQ
	}
	if steps <= 0 {
		steps = 1
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	var first int64
	if t.running {
		cur := t.tickAt(t.clock.Now())
		first = int64(cur) / interval * interval
		if float64(first) < cur {
			first += interval
		}
	}
	t.nextID++
	t.loops[t.nextID] = &loop{id: t.nextID, interval: interval, steps: steps, next: first, fn: fn}
	return t.nextID
}

// Clear removes a loop. Callbacks of that loop never run after Clear
// returns.
func (t *Transport) Clear(id LoopID) {
	t.fireMu.Lock()
	defer t.fireMu.Unlock()
	t.mu.Lock()
	delete(t.loops, id)
	t.mu.Unlock()
}

// Draw schedules fn to run once the clock reaches at. Used for display
// updates that should land with the audio, not at schedule time.
func (t *Transport) Draw(at time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.draws = append(t.draws, drawCall{at: at, fn: fn})
}

// Process fires every loop event due before now+lookahead, then every
// draw callback due by now
func (t *Transport) Process() {
	t.fireMu.Lock()
	defer t.fireMu.Unlock()

	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	now := t.clock.Now()
	horizon := now + t.lookahead
	var due []pending
	skipped := 0
	for _, l := range t.loops {
		for {
			at := t.timeAt(l.next)
			if at > horizon {
				break
			}
			if at < now-t.lookahead {
				// Too late to be heard on time; the process loop stalled
				skipped++
			} else {
				due = append(due, pending{
					ev: Event{
						Time: at,
						Tick: l.next,
						Step: int((l.next / l.interval) % int64(l.steps)),
						Bar:  BarAt(l.next),
					},
					id: l.id,
					fn: l.fn,
				})
			}
			l.next += l.interval
		}
	}
	t.mu.Unlock()

	if skipped > 0 {
		debug.Log("transport", "skipped %d late events", skipped)
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].ev.Tick != due[j].ev.Tick {
			return due[i].ev.Tick < due[j].ev.Tick
		}
		return due[i].id < due[j].id
	})
	for _, p := range due {
		p.fn(p.ev)
	}

	for _, fn := range t.takeDraws(now) {
		fn()
	}
}

func (t *Transport) takeDraws(now time.Duration) []func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	var fire []func()
	keep := t.draws[:0]
	for _, d := range t.draws {
		if d.at <= now {
			fire = append(fire, d.fn)
		} else {
			keep = append(keep, d)
		}
	}
	t.draws = keep
	return fire
}

// BarAt returns the 0-based bar containing tick
func BarAt(tick int64) int {
	return int(tick / TicksPerBar)
}

// Position returns the 0-based bar, beat and sixteenth of the playhead
func (t *Transport) Position() (bar, beat, sixteenth int) {
	tick := t.Tick()
	bar = int(tick / TicksPerBar)
	beat = int(tick%TicksPerBar) / PPQ
	sixteenth = int(tick%PPQ) / (PPQ / 4)
	return bar, beat, sixteenth
}

// Tick returns the playhead tick, 0 when stopped
func (t *Transport) Tick() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return 0
	}
	return int64(t.tickAt(t.clock.Now()))
}

// Duration returns the length of ticks at the current tempo
func (t *Transport) Duration(ticks int64) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Duration(float64(ticks) / t.ticksPerSecond() * float64(time.Second))
}

// Interrupt wakes the Run loop early (non-blocking)
func (t *Transport) Interrupt() {
	select {
	case t.interruptChan <- struct{}{}:
	default:
	}
}

// Run calls Process periodically until ctx is done
func (t *Transport) Run(ctx context.Context) {
	ticker := time.NewTicker(processInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.interruptChan:
			t.Process()
		case <-ticker.C:
			t.Process()
		}
	}
}

func (t *Transport) ticksPerSecond() float64 {
	return float64(t.bpm) / 60 * PPQ
}

// tickAt and timeAt need t.mu held
func (t *Transport) tickAt(at time.Duration) float64 {
	return t.anchorTick + (at-t.anchorTime).Seconds()*t.ticksPerSecond()
}

func (t *Transport) timeAt(tick int64) time.Duration {
	secs := (float64(tick) - t.anchorTick) / t.ticksPerSecond()
	return t.anchorTime + time.Duration(secs*float64(time.Second))
}
