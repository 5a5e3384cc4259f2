package settings

import (
	"fmt"
	"slices"
)

// Arpeggio is the reserved id of the arpeggio voice. The chord sequencer
// skips it and the arpeggio sequencer plays nothing else.
const Arpeggio = "arpeggio"

// Instrument is one row of the closed instrument table
type Instrument struct {
	ID          string
	Label       string
	DefaultGain float64
	SampleSet   string // sample directory, shared by ids that sound alike
	Program     uint8  // General MIDI program
	Key         string // dashboard shortcut
}

// Table is the fixed set of instruments. Adding an instrument means adding
// a row here.
var Table = []Instrument{
	{ID: "acoustic_grand_piano", Label: "Piano", DefaultGain: 2.0, SampleSet: "acoustic_grand_piano", Program: 0, Key: "p"},
	{ID: "electric_guitar_clean", Label: "Guitar", DefaultGain: 1.5, SampleSet: "electric_guitar_clean", Program: 27, Key: "s"},
	{ID: "violin", Label: "Violin", DefaultGain: 1.5, SampleSet: "violin", Program: 40, Key: "v"},
	{ID: "flute", Label: "Flute", DefaultGain: 1.5, SampleSet: "flute", Program: 73, Key: "f"},
	{ID: Arpeggio, Label: "Arpeggio", DefaultGain: 1.8, SampleSet: "acoustic_grand_piano", Program: 0, Key: "a"},
}

// LookupInstrument finds a table row by id
func LookupInstrument(id string) (Instrument, bool) {
	i := slices.IndexFunc(Table, func(in Instrument) bool { return in.ID == id })
	if i < 0 {
		return Instrument{}, false
	}
	return Table[i], true
}

// DefaultConfig is the config an instrument gets when it is switched on
func (in Instrument) DefaultConfig() InstrumentConfig {
	style := "block"
	if in.ID == Arpeggio {
		style = "arpeggio"
	}
	return InstrumentConfig{
		Gain:    in.DefaultGain,
		Octave:  OctaveCurrent,
		Style:   style,
		Pattern: Melodic,
	}
}

// ValidateInstruments checks the table once at startup
func ValidateInstruments() error {
	seenID := map[string]bool{}
	seenKey := map[string]bool{}
	hasArp := false
	for _, in := range Table {
		switch {
		case in.ID == "":
			return fmt.Errorf("instrument %q has no id", in.Label)
		case seenID[in.ID]:
			return fmt.Errorf("duplicate instrument id %q", in.ID)
		case in.Key != "" && seenKey[in.Key]:
			return fmt.Errorf("instrument %q reuses key %q", in.ID, in.Key)
		case in.SampleSet == "":
			return fmt.Errorf("instrument %q has no sample set", in.ID)
		case in.DefaultGain < 0 || in.DefaultGain > MaxGain:
			return fmt.Errorf("instrument %q default gain %.2f out of range", in.ID, in.DefaultGain)
		case in.Program > 127:
			return fmt.Errorf("instrument %q program %d out of range", in.ID, in.Program)
		}
		seenID[in.ID] = true
		seenKey[in.Key] = true
		hasArp = hasArp || in.ID == Arpeggio
	}
	if !hasArp {
		return fmt.Errorf("instrument table has no %q row", Arpeggio)
	}
	return nil
}
