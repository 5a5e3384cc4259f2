package sequencer

import (
	"bandaid/settings"
	"bandaid/voice"
)

// DrumSteps is the length of every beat pattern (one bar of eighths)
const DrumSteps = 8

// Hit is one drum piece firing on a step
type Hit struct {
	Piece  voice.Piece
	Length string // note value of the hit
}

// Pattern tables, step -> hits
var beatPatterns = map[settings.BeatMode][DrumSteps][]Hit{
	settings.OneLoop: {
		0: {{voice.Kick, "8n"}},
		2: {{voice.HiHat, "8n"}},
		4: {{voice.Snare, "8n"}},
		6: {{voice.HiHat, "8n"}},
	},
	settings.TwoLoops: {
		0: {{voice.Kick, "8n"}},
		1: {{voice.HiHat, "16n"}},
		2: {{voice.Snare, "8n"}},
		3: {{voice.HiHat, "16n"}},
		4: {{voice.Kick, "8n"}},
		5: {{voice.HiHat, "16n"}},
		6: {{voice.Snare, "8n"}},
		7: {{voice.HiHat, "16n"}},
	},
	settings.Dembow: {
		0: {{voice.Kick, "8n"}},
		1: {{voice.HiHat, "16n"}},
		2: {{voice.Kick, "8n"}},
		3: {{voice.Snare, "8n"}},
		4: {{voice.Kick, "8n"}},
		5: {{voice.HiHat, "16n"}},
		6: {{voice.Kick, "8n"}},
		7: {{voice.Snare, "8n"}},
	},
}

// BeatPattern returns the table for mode. Modes without a table play the
// two-loop pattern.
func BeatPattern(mode settings.BeatMode) [DrumSteps][]Hit {
	if p, ok := beatPatterns[mode]; ok {
		return p
	}
	return beatPatterns[settings.TwoLoops]
}

// Percussion plays the beat pattern on eighth notes. Enable flag, mode and
// gain are read on every step, so edits land without a restart.
type Percussion struct {
	transport *Transport
	live      Live
	player    Player
	id        LoopID
}

func NewPercussion(t *Transport, live Live, player Player) *Percussion {
	return &Percussion{transport: t, live: live, player: player}
}

// Start registers the step loop from step 0
func (p *Percussion) Start() {
	p.id = p.transport.Repeat(Ticks("8n"), DrumSteps, p.tick)
}

// Stop removes the step loop
func (p *Percussion) Stop() {
	p.transport.Clear(p.id)
}

func (p *Percussion) tick(ev Event) {
	s := p.live.Snapshot()
	if !s.EnableBeats {
		return
	}
	for _, h := range BeatPattern(s.BeatMode)[ev.Step] {
		p.player.Hit(h.Piece, ev.Time, voice.PlayOptions{
			Duration: p.transport.Duration(Ticks(h.Length)),
			Gain:     s.BeatGain,
		})
	}
}
