package sequencer

import (
	"sync"
	"time"

	"bandaid/settings"
	"bandaid/theory"
	"bandaid/voice"
)

// Floors keeping arpeggio notes audible
const (
	MinArpGain     = 0.01
	MinArpDuration = 50 * time.Millisecond
)

// PatternStep is one element of an arpeggio walk
type PatternStep int

const (
	StepRoot PatternStep = iota
	StepThird
	StepFifth
	StepRootOctaveUp
)

var walks = map[settings.Pattern][]PatternStep{
	settings.Melodic:    {StepRoot, StepThird, StepFifth, StepThird},
	settings.Strong:     {StepRoot, StepFifth, StepThird, StepFifth},
	settings.Ascending:  {StepRoot, StepThird, StepFifth, StepRootOctaveUp},
	settings.Descending: {StepRootOctaveUp, StepFifth, StepThird, StepRoot},
}

// Walk returns the steps of a pattern; unknown names walk melodic
func Walk(p settings.Pattern) []PatternStep {
	return walks[settings.ParsePattern(string(p))]
}

// Resolve picks the note for the step from a resolved chord
func (s PatternStep) Resolve(t theory.Triad) theory.Note {
	switch s {
	case StepThird:
		return t.Third
	case StepFifth:
		return t.Fifth
	case StepRootOctaveUp:
		return t.Root.Up(1)
	}
	return t.Root
}

// StepsPerBar returns how many steps of sub fit in one measure
func StepsPerBar(sub settings.Subdivision) int {
	return int(TicksPerBar / Ticks(string(sub)))
}

// ArpeggioSequencer walks the current chord at the arpeggio subdivision.
// The chord is derived from the bar of each event so it stays in lockstep
// with the ChordSequencer.
type ArpeggioSequencer struct {
	transport *Transport
	live      Live
	player    Player

	mu      sync.Mutex
	id      LoopID
	sub     settings.Subdivision
	running bool
}

func NewArpeggioSequencer(t *Transport, live Live, player Player) *ArpeggioSequencer {
	return &ArpeggioSequencer{transport: t, live: live, player: player}
}

// Start registers the step loop at the subdivision of the live snapshot
func (a *ArpeggioSequencer) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = true
	a.start(a.live.Snapshot().ArpeggioSubdivision)
}

func (a *ArpeggioSequencer) start(sub settings.Subdivision) {
	if !sub.Valid() {
		sub = settings.Quarter
	}
	a.sub = sub
	a.id = a.transport.Repeat(Ticks(string(sub)), StepsPerBar(sub), func(ev Event) {
		a.tick(ev, sub)
	})
}

// Restart tears the step loop down and rebuilds it at sub. The new loop
// starts on the next sub boundary; other loops are not touched. A no-op
// while stopped.
func (a *ArpeggioSequencer) Restart(sub settings.Subdivision) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return
	}
	a.transport.Clear(a.id)
	a.start(sub)
}

// Stop removes the step loop
func (a *ArpeggioSequencer) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = false
	a.transport.Clear(a.id)
}

// Subdivision returns the rate of the current loop
func (a *ArpeggioSequencer) Subdivision() settings.Subdivision {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sub
}

func (a *ArpeggioSequencer) tick(ev Event, sub settings.Subdivision) {
	s := a.live.Snapshot()
	cfg, ok := s.ActiveInstruments[settings.Arpeggio]
	if !ok {
		return
	}

	chord := ev.Bar % len(theory.Progression)
	triad := theory.ChordNotes(s.Scale, s.Transpose, chord, cfg.Octave.Offset())
	walk := Walk(cfg.Pattern)
	note := walk[ev.Step%len(walk)].Resolve(triad)

	a.player.Play(settings.Arpeggio, note, ev.Time, voice.PlayOptions{
		Gain:     max(cfg.Gain, MinArpGain),
		Duration: max(a.transport.Duration(Ticks(string(sub))), MinArpDuration),
	})
}
