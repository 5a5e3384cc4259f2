package theory

// Progression is the I-vi-IV-V progression as semitone offsets from the
// transposed root. Each entry is root, third, fifth.
var Progression = [4][3]int{
	{0, 4, 7},
	{9, 0, 4},
	{5, 9, 0},
	{7, 11, 2},
}

// chordNames maps the sounding key to the display names of the four chords
var chordNames = map[string][4]string{
	"C":  {"C", "Am", "F", "G"},
	"C#": {"C#", "A#m", "F#", "G#"},
	"D":  {"D", "Bm", "G", "A"},
	"D#": {"D#", "Cm", "G#", "A#"},
	"E":  {"E", "C#m", "A", "B"},
	"F":  {"F", "Dm", "A#", "C"},
	"F#": {"F#", "D#m", "B", "C#"},
	"G":  {"G", "Em", "C", "D"},
	"G#": {"G#", "Fm", "C#", "D#"},
	"A":  {"A", "F#m", "D", "E"},
	"A#": {"A#", "Gm", "D#", "F"},
	"B":  {"B", "G#m", "E", "F#"},
}

// Triad holds the three resolved notes of a chord
type Triad struct {
	Root  Note
	Third Note
	Fifth Note
}

// Notes returns root, third and fifth in order
func (t Triad) Notes() [3]Note {
	return [3]Note{t.Root, t.Third, t.Fifth}
}

// ResolveScaleNote maps a scale root, transpose, interval and octave offset
// onto a concrete note. Unknown roots resolve as C.
func ResolveScaleNote(root string, transpose, interval, octaveOffset int) Note {
	idx, _ := PitchIndex(root)
	transposed := (idx + transpose%12 + 12) % 12
	pitch := (transposed + interval%12 + 12) % 12
	return Note{Pitch: pitch, Octave: BaseOctave + octaveOffset}
}

// ChordNotes resolves chord chordIndex of the progression in the given key
func ChordNotes(scale string, transpose, chordIndex, octaveOffset int) Triad {
	iv := Progression[((chordIndex%len(Progression))+len(Progression))%len(Progression)]
	return Triad{
		Root:  ResolveScaleNote(scale, transpose, iv[0], octaveOffset),
		Third: ResolveScaleNote(scale, transpose, iv[1], octaveOffset),
		Fifth: ResolveScaleNote(scale, transpose, iv[2], octaveOffset),
	}
}

// TransposedScale returns the name of the key that actually sounds.
// Empty when scale is not a pitch-class name.
func TransposedScale(scale string, transpose int) string {
	idx, ok := PitchIndex(scale)
	if !ok {
		return ""
	}
	return PitchClasses[(idx+transpose%12+12)%12]
}

// ChordName returns the display name for a chord, or "" when the lookup fails
func ChordName(scale string, transpose, chordIndex int) string {
	names, ok := chordNames[TransposedScale(scale, transpose)]
	if !ok || chordIndex < 0 || chordIndex >= len(names) {
		return ""
	}
	return names[chordIndex]
}

// ChordNames returns all four display names for the key, or nil
func ChordNames(scale string, transpose int) []string {
	names, ok := chordNames[TransposedScale(scale, transpose)]
	if !ok {
		return nil
	}
	return names[:]
}
