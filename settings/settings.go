package settings

import (
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"bandaid/theory"
)

// Bounds applied before any value reaches the audio path
const (
	MinBPM     = 20
	MaxBPM     = 300
	DefaultBPM = 120
	MaxGain    = 3.0
)

// Octave selects an octave relative to the base octave
type Octave string

const (
	OctaveLower   Octave = "lower"
	OctaveCurrent Octave = "current"
	OctaveHigher  Octave = "higher"
)

// Offset returns -1, 0 or +1. Unknown values count as current.
func (o Octave) Offset() int {
	switch o {
	case OctaveLower:
		return -1
	case OctaveHigher:
		return 1
	}
	return 0
}

// Next cycles lower -> current -> higher -> lower
func (o Octave) Next() Octave {
	switch o {
	case OctaveLower:
		return OctaveCurrent
	case OctaveHigher:
		return OctaveLower
	}
	return OctaveHigher
}

// Subdivision is the arpeggio step length
type Subdivision string

const (
	Quarter   Subdivision = "4n"
	Eighth    Subdivision = "8n"
	Sixteenth Subdivision = "16n"
)

// Valid reports whether s is one of the supported step lengths
func (s Subdivision) Valid() bool {
	return s == Quarter || s == Eighth || s == Sixteenth
}

// Next cycles 4n -> 8n -> 16n -> 4n
func (s Subdivision) Next() Subdivision {
	switch s {
	case Quarter:
		return Eighth
	case Eighth:
		return Sixteenth
	}
	return Quarter
}

// BeatMode selects a drum pattern table
type BeatMode string

const (
	OneLoop  BeatMode = "1loop"
	TwoLoops BeatMode = "2loops"
	Dembow   BeatMode = "dembow"
)

// BeatModes lists the modes in display order
var BeatModes = []BeatMode{OneLoop, TwoLoops, Dembow}

// Pattern names an arpeggio walk
type Pattern string

const (
	Melodic    Pattern = "melodic"
	Strong     Pattern = "strong"
	Ascending  Pattern = "ascending"
	Descending Pattern = "descending"
)

// Patterns lists the arpeggio walks in display order
var Patterns = []Pattern{Melodic, Strong, Ascending, Descending}

// ParsePattern matches case-insensitively and falls back to melodic
func ParsePattern(s string) Pattern {
	p := Pattern(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Patterns, p) {
		return p
	}
	return Melodic
}

// Next returns the pattern after p in display order
func (p Pattern) Next() Pattern {
	i := slices.Index(Patterns, ParsePattern(string(p)))
	return Patterns[(i+1)%len(Patterns)]
}

// InstrumentConfig is the per-instrument configuration held in
// Settings.ActiveInstruments
type InstrumentConfig struct {
	Gain    float64 `json:"gain" yaml:"gain"`
	Octave  Octave  `json:"octave,omitempty" yaml:"octave,omitempty"`
	Style   string  `json:"style,omitempty" yaml:"style,omitempty"`
	Pattern Pattern `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// Instruments maps instrument id to config. Key presence means enabled.
type Instruments map[string]InstrumentConfig

// Clone returns an independent copy. A nil map clones to an empty one.
func (in Instruments) Clone() Instruments {
	out := make(Instruments, len(in))
	maps.Copy(out, in)
	return out
}

// IDs returns the enabled instrument ids in sorted order
func (in Instruments) IDs() []string {
	return slices.Sorted(maps.Keys(in))
}

// Settings is the full musical state shared by every sequencer
type Settings struct {
	BPM                 int         `json:"bpm" yaml:"bpm"`
	Scale               string      `json:"scale" yaml:"scale"`
	Transpose           int         `json:"transpose" yaml:"transpose"`
	EnableBeats         bool        `json:"enableBeats" yaml:"enableBeats"`
	BeatMode            BeatMode    `json:"beatMode" yaml:"beatMode"`
	BeatGain            float64     `json:"beatGain" yaml:"beatGain"`
	ActiveInstruments   Instruments `json:"activeInstruments" yaml:"activeInstruments"`
	ArpeggioSubdivision Subdivision `json:"arpeggioSubdivision" yaml:"arpeggioSubdivision"`
}

// Default returns the settings used when nothing has been saved
func Default() Settings {
	return Settings{
		BPM:                 DefaultBPM,
		Scale:               "C",
		Transpose:           0,
		EnableBeats:         false,
		BeatMode:            OneLoop,
		BeatGain:            1,
		ActiveInstruments:   Instruments{},
		ArpeggioSubdivision: Quarter,
	}
}

// Clone returns a copy that shares no map with s
func (s Settings) Clone() Settings {
	s.ActiveInstruments = s.ActiveInstruments.Clone()
	return s
}

// Normalize clamps and wraps every field into its legal range and fills in
// missing enum values. The result shares no map with s.
func (s Settings) Normalize() Settings {
	s.BPM = ClampBPM(s.BPM)
	if _, ok := theory.PitchIndex(s.Scale); !ok {
		s.Scale = "C"
	}
	s.Transpose = WrapTranspose(s.Transpose)
	if !slices.Contains(BeatModes, s.BeatMode) {
		s.BeatMode = OneLoop
	}
	s.BeatGain = ClampGain(s.BeatGain)
	if !s.ArpeggioSubdivision.Valid() {
		s.ArpeggioSubdivision = Quarter
	}
	active := make(Instruments, len(s.ActiveInstruments))
	for id, cfg := range s.ActiveInstruments {
		active[id] = cfg.normalize()
	}
	s.ActiveInstruments = active
	return s
}

func (c InstrumentConfig) normalize() InstrumentConfig {
	c.Gain = ClampGain(c.Gain)
	switch c.Octave {
	case OctaveLower, OctaveCurrent, OctaveHigher:
	default:
		c.Octave = OctaveCurrent
	}
	if c.Pattern != "" {
		c.Pattern = ParsePattern(string(c.Pattern))
	}
	return c
}

// ClampBPM bounds a tempo to [MinBPM, MaxBPM]
func ClampBPM(bpm int) int {
	return min(max(bpm, MinBPM), MaxBPM)
}

// ClampGain bounds a gain to [0, MaxGain]. NaN becomes 0.
func ClampGain(g float64) float64 {
	if math.IsNaN(g) {
		return 0
	}
	return min(max(g, 0), MaxGain)
}

// WrapTranspose keeps the sign and wraps into [-11, 11]
func WrapTranspose(t int) int {
	return t % 12
}

// ParseBPM coerces text input into a tempo. Non-numeric or non-positive
// input keeps prev.
func ParseBPM(text string, prev int) int {
	v, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || v <= 0 {
		return prev
	}
	return ClampBPM(v)
}
