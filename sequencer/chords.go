package sequencer

import (
	"time"

	"bandaid/settings"
	"bandaid/theory"
	"bandaid/voice"
)

// ChordDuration is how long each chord note rings
const ChordDuration = 1500 * time.Millisecond

// Live gives callbacks the settings as they are when the callback fires
type Live interface {
	Snapshot() *settings.Settings
}

// Player is the voice surface the sequencers schedule onto
type Player interface {
	Play(id string, n theory.Note, at time.Duration, opts voice.PlayOptions)
	Hit(p voice.Piece, at time.Duration, opts voice.PlayOptions)
}

// ChordSequencer plays the progression once per bar on every active
// instrument except the arpeggio
type ChordSequencer struct {
	transport *Transport
	live      Live
	player    Player
	onChord   func(index int)

	counter int
	id      LoopID
}

// NewChordSequencer creates a chord sequencer. onChord receives the chord
// index at the time the chord sounds.
func NewChordSequencer(t *Transport, live Live, player Player, onChord func(int)) *ChordSequencer {
	return &ChordSequencer{transport: t, live: live, player: player, onChord: onChord}
}

// Start registers the bar loop from chord 0
func (c *ChordSequencer) Start() {
	c.counter = 0
	c.id = c.transport.Repeat(TicksPerBar, len(theory.Progression), c.tick)
}

// Stop removes the bar loop
func (c *ChordSequencer) Stop() {
	c.transport.Clear(c.id)
}

func (c *ChordSequencer) tick(ev Event) {
	idx := c.counter
	c.counter = (c.counter + 1) % len(theory.Progression)

	s := c.live.Snapshot()
	for _, id := range s.ActiveInstruments.IDs() {
		if id == settings.Arpeggio {
			continue
		}
		cfg := s.ActiveInstruments[id]
		triad := theory.ChordNotes(s.Scale, s.Transpose, idx, cfg.Octave.Offset())
		for _, n := range triad.Notes() {
			c.player.Play(id, n, ev.Time, voice.PlayOptions{Duration: ChordDuration, Gain: cfg.Gain})
		}
	}

	if c.onChord != nil {
		c.transport.Draw(ev.Time, func() { c.onChord(idx) })
	}
}
