package midi

import (
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// MIDI message types
const (
	NoteOn        uint8 = 0x90
	NoteOff       uint8 = 0x80
	CC            uint8 = 0xB0
	ProgramChange uint8 = 0xC0
)

// DrumChannel is the General MIDI percussion channel (channel 10)
const DrumChannel uint8 = 9

// CC numbers
const ccAllNotesOff = 123

// Event is a MIDI message due at a time on the shared clock
type Event struct {
	At       time.Duration
	Type     uint8 // NoteOn, NoteOff, CC, ProgramChange
	Channel  uint8 // 0-15
	Note     uint8 // key, controller or program
	Velocity uint8 // velocity or controller value
}

// Message encodes the event for the wire
func (e Event) Message() gomidi.Message {
	switch e.Type {
	case NoteOn:
		return gomidi.NoteOn(e.Channel, e.Note, e.Velocity)
	case NoteOff:
		return gomidi.NoteOff(e.Channel, e.Note)
	case CC:
		return gomidi.ControlChange(e.Channel, e.Note, e.Velocity)
	case ProgramChange:
		return gomidi.ProgramChange(e.Channel, e.Note)
	}
	return nil
}

// before orders events by time. At equal times note-offs go first so a
// repeated note is not cut by its own release.
func (e Event) before(o Event) bool {
	if e.At != o.At {
		return e.At < o.At
	}
	return rank(e.Type) < rank(o.Type)
}

func rank(t uint8) int {
	switch t {
	case ProgramChange:
		return 0
	case NoteOff:
		return 1
	case CC:
		return 2
	}
	return 3
}
