// Package api holds the wire shapes shared by the backend and its HTTP
// client: the persisted settings document and JSON errors.
package api

import (
	"encoding/json"

	"bandaid/settings"
)

// Document is the settings document as the backend stores it. Key names
// follow the account schema (tempo, instruments) rather than Settings.
type Document struct {
	Tempo               *int                  `json:"tempo,omitempty" yaml:"tempo,omitempty"`
	Scale               *string               `json:"scale,omitempty" yaml:"scale,omitempty"`
	Transpose           *int                  `json:"transpose,omitempty" yaml:"transpose,omitempty"`
	EnableBeats         *bool                 `json:"enableBeats,omitempty" yaml:"enableBeats,omitempty"`
	BeatMode            *settings.BeatMode    `json:"beatMode,omitempty" yaml:"beatMode,omitempty"`
	BeatGain            *float64              `json:"beatGain,omitempty" yaml:"beatGain,omitempty"`
	Instruments         DocInstruments        `json:"instruments,omitempty" yaml:"instruments,omitempty"`
	ArpeggioSubdivision *settings.Subdivision `json:"arpeggioSubdivision,omitempty" yaml:"arpeggioSubdivision,omitempty"`
}

// DocInstruments is the stored instrument map. Old documents store
// "id": true instead of a config; those read back as the default config.
type DocInstruments map[string]settings.InstrumentConfig

func (d *DocInstruments) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(DocInstruments, len(raw))
	for id, v := range raw {
		var on bool
		if json.Unmarshal(v, &on) == nil {
			if in, ok := settings.LookupInstrument(id); ok && on {
				out[id] = in.DefaultConfig()
			}
			continue
		}
		var cfg settings.InstrumentConfig
		if err := json.Unmarshal(v, &cfg); err != nil {
			return err
		}
		out[id] = cfg
	}
	*d = out
	return nil
}

// FromSettings builds a complete document
func FromSettings(s settings.Settings) Document {
	s = s.Clone()
	return Document{
		Tempo:               &s.BPM,
		Scale:               &s.Scale,
		Transpose:           &s.Transpose,
		EnableBeats:         &s.EnableBeats,
		BeatMode:            &s.BeatMode,
		BeatGain:            &s.BeatGain,
		Instruments:         DocInstruments(s.ActiveInstruments),
		ArpeggioSubdivision: &s.ArpeggioSubdivision,
	}
}

// Settings fills absent fields with defaults and normalizes the rest.
// Unknown instrument ids are dropped.
func (d Document) Settings() settings.Settings {
	s := settings.Default()
	if d.Tempo != nil && *d.Tempo > 0 {
		s.BPM = *d.Tempo
	}
	if d.Scale != nil {
		s.Scale = *d.Scale
	}
	if d.Transpose != nil {
		s.Transpose = *d.Transpose
	}
	if d.EnableBeats != nil {
		s.EnableBeats = *d.EnableBeats
	}
	if d.BeatMode != nil {
		s.BeatMode = *d.BeatMode
	}
	if d.BeatGain != nil {
		s.BeatGain = *d.BeatGain
	}
	if d.ArpeggioSubdivision != nil {
		s.ArpeggioSubdivision = *d.ArpeggioSubdivision
	}
	for id, cfg := range d.Instruments {
		if _, ok := settings.LookupInstrument(id); ok {
			s.ActiveInstruments[id] = cfg
		}
	}
	return s.Normalize()
}
