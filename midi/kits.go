package midi

import "bandaid/voice"

// DrumKit maps the drum pieces to MIDI notes
type DrumKit struct {
	Name  string
	Notes [3]uint8 // indexed by voice.Piece
}

// Note returns the key for p
func (k DrumKit) Note(p voice.Piece) uint8 {
	if int(p) < 0 || int(p) >= len(k.Notes) {
		return k.Notes[voice.Kick]
	}
	return k.Notes[p]
}

// Kits contains all available drum kit mappings
var Kits = map[string]DrumKit{
	"gm": {
		Name:  "General MIDI",
		Notes: [3]uint8{36, 38, 42},
	},
	"rd8": {
		Name:  "Behringer RD-8",
		Notes: [3]uint8{36, 40, 42}, // RD-8 snare sits on 40, not 38
	},
	"tr8s": {
		Name:  "Roland TR-8S",
		Notes: [3]uint8{36, 38, 42},
	},
	"er1": {
		Name:  "Korg ER-1",
		Notes: [3]uint8{36, 38, 42},
	},
}

// DefaultKit is the default kit name
const DefaultKit = "gm"

// KitNames returns the list of available kit names
func KitNames() []string {
	return []string{"gm", "rd8", "tr8s", "er1"}
}

// GetKit returns a kit by name, defaulting to GM if not found
func GetKit(name string) DrumKit {
	if kit, ok := Kits[name]; ok {
		return kit
	}
	return Kits[DefaultKit]
}
