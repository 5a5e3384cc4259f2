package settings

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"

	"bandaid/debug"
	"bandaid/theory"
)

// Relay receives every local patch while a collaboration session is joined
type Relay interface {
	SendPatch(p Patch)
}

// Persistence loads and saves the settings document of the current user
type Persistence interface {
	// Load returns defaults for an absent document or absent fields
	Load(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) error
	// Reset stores and returns the defaults
	Reset(ctx context.Context) (Settings, error)
}

// Change describes one applied patch
type Change struct {
	Prev   Settings
	Next   Settings
	Patch  Patch
	Remote bool
}

// Store is the single writer of Settings. Readers on the audio path use
// Snapshot, which never blocks.
type Store struct {
	mu    sync.Mutex
	live  atomic.Pointer[Settings]
	relay Relay
	subs  []func(Change)
}

// NewStore creates a store holding the normalized initial settings
func NewStore(initial Settings) *Store {
	s := &Store{}
	n := initial.Normalize()
	s.live.Store(&n)
	return s
}

// Snapshot returns the current settings. Callers must not modify it.
func (s *Store) Snapshot() *Settings {
	return s.live.Load()
}

// Subscribe registers fn to run after every applied patch. fn runs with
// the store locked and must not call back into the Store.
func (s *Store) Subscribe(fn func(Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// SetRelay attaches a relay; nil detaches it
func (s *Store) SetRelay(r Relay) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relay = r
}

// Update applies a local patch and forwards it to the relay
func (s *Store) Update(p Patch) Settings {
	return s.apply(p, false)
}

// ApplyRemote applies a patch received from a collaborator. It is never
// forwarded back.
func (s *Store) ApplyRemote(p Patch) Settings {
	return s.apply(p, true)
}

func (s *Store) apply(p Patch, remote bool) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := *s.live.Load()
	if p.Empty() {
		return prev
	}
	next := p.Apply(prev)
	s.live.Store(&next)

	change := Change{Prev: prev, Next: next, Patch: p, Remote: remote}
	for _, fn := range s.subs {
		fn(change)
	}
	if !remote && s.relay != nil {
		s.relay.SendPatch(p)
	}
	debug.Log("settings", "apply remote=%v bpm=%d scale=%s%+d instruments=%v", remote, next.BPM, next.Scale, next.Transpose, next.ActiveInstruments.IDs())
	return next
}

// Replace swaps in a whole settings document, forwarded as a full patch
func (s *Store) Replace(next Settings) Settings {
	return s.Update(Full(next))
}

// SetBPM sets the tempo, clamped
func (s *Store) SetBPM(bpm int) Settings {
	return s.Update(Patch{BPM: Ptr(ClampBPM(bpm))})
}

// SetBPMText coerces free text the way a numeric input field would
func (s *Store) SetBPMText(text string) Settings {
	return s.SetBPM(ParseBPM(text, s.Snapshot().BPM))
}

// NudgeBPM changes the tempo by delta
func (s *Store) NudgeBPM(delta int) Settings {
	return s.SetBPM(s.Snapshot().BPM + delta)
}

// SetScale sets the key root. Unknown names are rejected.
func (s *Store) SetScale(scale string) (Settings, error) {
	if _, ok := theory.PitchIndex(scale); !ok {
		return *s.Snapshot(), fault.New(fmt.Sprintf("unknown scale %q", scale),
			ftag.With(ftag.InvalidArgument),
			fmsg.WithDesc("unknown scale", fmt.Sprintf("%q is not a key", scale)))
	}
	return s.Update(Patch{Scale: Ptr(scale)}), nil
}

// StepScale moves the key root by dir semitones around the circle of
// pitch classes
func (s *Store) StepScale(dir int) Settings {
	idx, _ := theory.PitchIndex(s.Snapshot().Scale)
	next := theory.PitchClasses[((idx+dir)%12+12)%12]
	return s.Update(Patch{Scale: Ptr(next)})
}

// Transpose shifts transpose by delta, wrapping at an octave
func (s *Store) Transpose(delta int) Settings {
	return s.Update(Patch{Transpose: Ptr(WrapTranspose(s.Snapshot().Transpose + delta))})
}

// ToggleBeats mirrors the beat shortcut: pressing the key of the current
// mode flips the drums, any other mode switches to it with drums on.
func (s *Store) ToggleBeats(mode BeatMode) Settings {
	cur := s.Snapshot()
	enable := true
	if cur.BeatMode == mode {
		enable = !cur.EnableBeats
	}
	return s.Update(Patch{EnableBeats: Ptr(enable), BeatMode: Ptr(mode)})
}

// SetBeatGain sets the shared drum gain
func (s *Store) SetBeatGain(g float64) Settings {
	return s.Update(Patch{BeatGain: Ptr(ClampGain(g))})
}

// SetSubdivision sets the arpeggio step length
func (s *Store) SetSubdivision(sub Subdivision) Settings {
	if !sub.Valid() {
		return *s.Snapshot()
	}
	return s.Update(Patch{ArpeggioSubdivision: Ptr(sub)})
}

// ToggleInstrument switches an instrument on with its default config or
// off by deleting its key. Returns whether it is now enabled.
func (s *Store) ToggleInstrument(id string) (bool, error) {
	in, ok := LookupInstrument(id)
	if !ok {
		return false, fault.New(fmt.Sprintf("unknown instrument %q", id),
			ftag.With(ftag.InvalidArgument),
			fmsg.WithDesc("unknown instrument", fmt.Sprintf("No instrument called %q", id)))
	}
	cur := s.Snapshot()
	active := cur.ActiveInstruments.Clone()
	_, on := active[id]
	if on {
		delete(active, id)
	} else {
		active[id] = in.DefaultConfig()
	}
	p := Patch{ActiveInstruments: &active}
	if !on && id == Arpeggio {
		p.ArpeggioSubdivision = Ptr(Eighth)
	}
	s.Update(p)
	return !on, nil
}

// UpdateInstrument edits the config of an enabled instrument. Disabled
// instruments are left alone.
func (s *Store) UpdateInstrument(id string, edit func(*InstrumentConfig)) Settings {
	cur := s.Snapshot()
	cfg, ok := cur.ActiveInstruments[id]
	if !ok {
		return *cur
	}
	edit(&cfg)
	active := cur.ActiveInstruments.Clone()
	active[id] = cfg
	return s.Update(Patch{ActiveInstruments: &active})
}

// SetInstrumentGain sets the gain of an enabled instrument
func (s *Store) SetInstrumentGain(id string, gain float64) Settings {
	return s.UpdateInstrument(id, func(c *InstrumentConfig) { c.Gain = ClampGain(gain) })
}

// SetInstrumentOctave sets the octave of an enabled instrument
func (s *Store) SetInstrumentOctave(id string, o Octave) Settings {
	return s.UpdateInstrument(id, func(c *InstrumentConfig) { c.Octave = o })
}

// SetInstrumentPattern sets the arpeggio walk
func (s *Store) SetInstrumentPattern(id string, p Pattern) Settings {
	return s.UpdateInstrument(id, func(c *InstrumentConfig) { c.Pattern = ParsePattern(string(p)) })
}

// LoadFrom replaces the settings with the persisted document. On error the
// store is left untouched.
func (s *Store) LoadFrom(ctx context.Context, p Persistence) (Settings, error) {
	loaded, err := p.Load(ctx)
	if err != nil {
		return *s.Snapshot(), fault.Wrap(err, fmsg.WithDesc("load settings", "Error loading settings"))
	}
	return s.Replace(loaded), nil
}

// SaveTo persists the current settings verbatim
func (s *Store) SaveTo(ctx context.Context, p Persistence) error {
	if err := p.Save(ctx, s.Snapshot().Clone()); err != nil {
		return fault.Wrap(err, fmsg.WithDesc("save settings", "Error saving settings"))
	}
	return nil
}

// ResetWith resets the persisted document and then the store. On error the
// store is left untouched.
func (s *Store) ResetWith(ctx context.Context, p Persistence) (Settings, error) {
	def, err := p.Reset(ctx)
	if err != nil {
		return *s.Snapshot(), fault.Wrap(err, fmsg.WithDesc("reset settings", "Error resetting settings"))
	}
	return s.Replace(def), nil
}

// Enabled reports whether id is active in the current snapshot
func (s *Store) Enabled(id string) bool {
	_, ok := s.Snapshot().ActiveInstruments[id]
	return ok
}

// EnabledIDs lists active ids in table order
func (s *Store) EnabledIDs() []string {
	active := s.Snapshot().ActiveInstruments
	var ids []string
	for _, in := range Table {
		if _, ok := active[in.ID]; ok {
			ids = append(ids, in.ID)
		}
	}
	return slices.Clip(ids)
}
