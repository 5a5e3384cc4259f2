package tui

import (
	"github.com/charmbracelet/bubbles/key"

	"bandaid/settings"
)

func Key(help string, keyboardKey ...string) key.Binding {
	return key.NewBinding(key.WithKeys(keyboardKey...), key.WithHelp(keyboardKey[0], help))
}

type keyMap struct {
	Play key.Binding

	Instruments map[string]key.Binding // by instrument id

	OneLoop  key.Binding
	TwoLoops key.Binding
	Dembow   key.Binding
	BeatUp   key.Binding
	BeatDown key.Binding

	TempoUp    key.Binding
	TempoDown  key.Binding
	TempoEnter key.Binding
	KeyDown    key.Binding
	KeyUp      key.Binding
	ScaleDown  key.Binding
	ScaleUp    key.Binding

	Up          key.Binding
	Down        key.Binding
	GainDown    key.Binding
	GainUp      key.Binding
	Octave      key.Binding
	Pattern     key.Binding
	Subdivision key.Binding

	Save  key.Binding
	Load  key.Binding
	Reset key.Binding

	Share key.Binding
	Join  key.Binding
	Leave key.Binding

	Help key.Binding
	Quit key.Binding
}

func defaultKeys() keyMap {
	k := keyMap{
		Play: key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "play/stop")),

		Instruments: make(map[string]key.Binding),

		OneLoop:  Key("1 loop beat", "b"),
		TwoLoops: Key("2 loops beat", "n"),
		Dembow:   Key("dembow beat", "d"),
		BeatUp:   Key("drums louder", "G"),
		BeatDown: Key("drums softer", "g"),

		TempoUp:    Key("tempo +5", "+", "="),
		TempoDown:  Key("tempo -5", "-", "_"),
		TempoEnter: Key("type tempo", "e"),
		KeyDown:    Key("transpose -1", "left"),
		KeyUp:      Key("transpose +1", "right"),
		ScaleDown:  Key("key down", "["),
		ScaleUp:    Key("key up", "]"),

		Up:          Key("select up", "up"),
		Down:        Key("select down", "down"),
		GainDown:    Key("gain -", ","),
		GainUp:      Key("gain +", "."),
		Octave:      Key("octave", "o"),
		Pattern:     Key("arp pattern", "t"),
		Subdivision: Key("arp rate", "u"),

		Save:  Key("save", "ctrl+s"),
		Load:  Key("load", "ctrl+l"),
		Reset: Key("reset", "ctrl+r"),

		Share: Key("start jam", "c"),
		Join:  Key("join jam", "j"),
		Leave: Key("leave jam", "x"),

		Help: Key("more keys", "?"),
		Quit: Key("quit", "q", "ctrl+c"),
	}
	for _, in := range settings.Table {
		if in.Key != "" {
			k.Instruments[in.ID] = Key(in.Label, in.Key)
		}
	}
	return k
}

func (k keyMap) instrumentKeys() []key.Binding {
	var out []key.Binding
	for _, in := range settings.Table {
		if b, ok := k.Instruments[in.ID]; ok {
			out = append(out, b)
		}
	}
	return out
}

// ShortHelp and FullHelp make keyMap a help.KeyMap
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Play, k.OneLoop, k.TempoUp, k.KeyUp, k.Save, k.Share, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		append([]key.Binding{k.Play}, k.instrumentKeys()...),
		{k.OneLoop, k.TwoLoops, k.Dembow, k.BeatUp, k.BeatDown},
		{k.TempoUp, k.TempoDown, k.TempoEnter, k.KeyDown, k.KeyUp, k.ScaleDown, k.ScaleUp},
		{k.Up, k.Down, k.GainDown, k.GainUp, k.Octave, k.Pattern, k.Subdivision},
		{k.Save, k.Load, k.Reset, k.Share, k.Join, k.Leave, k.Quit},
	}
}
