package settings

// Patch is a partial Settings. A nil field leaves the key untouched; a
// non-nil ActiveInstruments replaces the whole map.
type Patch struct {
	BPM                 *int         `json:"bpm,omitempty"`
	Scale               *string      `json:"scale,omitempty"`
	Transpose           *int         `json:"transpose,omitempty"`
	EnableBeats         *bool        `json:"enableBeats,omitempty"`
	BeatMode            *BeatMode    `json:"beatMode,omitempty"`
	BeatGain            *float64     `json:"beatGain,omitempty"`
	ActiveInstruments   *Instruments `json:"activeInstruments,omitempty"`
	ArpeggioSubdivision *Subdivision `json:"arpeggioSubdivision,omitempty"`
}

// Ptr returns a pointer to v, for building patches
func Ptr[T any](v T) *T {
	return &v
}

// Full returns a patch that sets every key of s
func Full(s Settings) Patch {
	s = s.Clone()
	return Patch{
		BPM:                 &s.BPM,
		Scale:               &s.Scale,
		Transpose:           &s.Transpose,
		EnableBeats:         &s.EnableBeats,
		BeatMode:            &s.BeatMode,
		BeatGain:            &s.BeatGain,
		ActiveInstruments:   &s.ActiveInstruments,
		ArpeggioSubdivision: &s.ArpeggioSubdivision,
	}
}

// Empty reports whether the patch sets nothing
func (p Patch) Empty() bool {
	return p == Patch{}
}

// Apply shallow-merges p over s and normalizes the result
func (p Patch) Apply(s Settings) Settings {
	s = s.Clone()
	if p.BPM != nil {
		s.BPM = *p.BPM
	}
	if p.Scale != nil {
		s.Scale = *p.Scale
	}
	if p.Transpose != nil {
		s.Transpose = *p.Transpose
	}
	if p.EnableBeats != nil {
		s.EnableBeats = *p.EnableBeats
	}
	if p.BeatMode != nil {
		s.BeatMode = *p.BeatMode
	}
	if p.BeatGain != nil {
		s.BeatGain = *p.BeatGain
	}
	if p.ActiveInstruments != nil {
		s.ActiveInstruments = p.ActiveInstruments.Clone()
	}
	if p.ArpeggioSubdivision != nil {
		s.ArpeggioSubdivision = *p.ArpeggioSubdivision
	}
	return s.Normalize()
}

// Merge returns the key-level union of p and later, later winning
func (p Patch) Merge(later Patch) Patch {
	if later.BPM != nil {
		p.BPM = later.BPM
	}
	if later.Scale != nil {
		p.Scale = later.Scale
	}
	if later.Transpose != nil {
		p.Transpose = later.Transpose
	}
	if later.EnableBeats != nil {
		p.EnableBeats = later.EnableBeats
	}
	if later.BeatMode != nil {
		p.BeatMode = later.BeatMode
	}
	if later.BeatGain != nil {
		p.BeatGain = later.BeatGain
	}
	if later.ActiveInstruments != nil {
		p.ActiveInstruments = later.ActiveInstruments
	}
	if later.ArpeggioSubdivision != nil {
		p.ArpeggioSubdivision = later.ArpeggioSubdivision
	}
	return p
}
