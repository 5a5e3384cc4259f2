package theory

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PitchClasses lists the twelve pitch-class names in semitone order
var PitchClasses = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// BaseOctave is the octave used when no offset is applied
const BaseOctave = 4

// Note is a pitch class plus an octave number (C4 = middle C)
type Note struct {
	Pitch  int // 0-11
	Octave int
}

func (n Note) String() string {
	return PitchClasses[mod12(n.Pitch)] + strconv.Itoa(n.Octave)
}

// MIDI returns the MIDI note number, clamped to 0-127
func (n Note) MIDI() uint8 {
	v := (n.Octave+1)*12 + mod12(n.Pitch)
	if v < 0 {
		return 0
	}
	if v > 127 {
		return 127
	}
	return uint8(v)
}

// Frequency returns the equal-tempered frequency in Hz (A4 = 440)
func (n Note) Frequency() float64 {
	semis := (n.Octave+1)*12 + mod12(n.Pitch) - 69
	return 440 * math.Pow(2, float64(semis)/12)
}

// Up returns the same pitch class shifted by whole octaves
func (n Note) Up(octaves int) Note {
	return Note{Pitch: n.Pitch, Octave: n.Octave + octaves}
}

// FromMIDI converts a MIDI note number back into a Note
func FromMIDI(m int) Note {
	return Note{Pitch: mod12(m), Octave: m/12 - 1}
}

// PitchIndex returns the semitone index of a pitch-class name
func PitchIndex(name string) (int, bool) {
	for i, pc := range PitchClasses {
		if pc == name {
			return i, true
		}
	}
	return 0, false
}

// ParseNote parses names like "C4", "F#5" or "As3" (s as sharp, the way
// sample libraries name their files).
func ParseNote(s string) (Note, error) {
	s = strings.TrimSpace(s)
	i := len(s)
	for i > 0 && (s[i-1] >= '0' && s[i-1] <= '9' || s[i-1] == '-') {
		i--
	}
	if i == 0 || i == len(s) {
		return Note{}, fmt.Errorf("invalid note %q", s)
	}
	octave, err := strconv.Atoi(s[i:])
	if err != nil {
		return Note{}, fmt.Errorf("invalid octave in %q: %w", s, err)
	}
	name := strings.ToUpper(s[:1]) + strings.ReplaceAll(s[1:i], "s", "#")
	pitch, ok := PitchIndex(name)
	if !ok {
		return Note{}, fmt.Errorf("unknown pitch class in %q", s)
	}
	return Note{Pitch: pitch, Octave: octave}, nil
}

// mod12 reduces v into [0, 12) for negative values too
func mod12(v int) int {
	return ((v % 12) + 12) % 12
}
