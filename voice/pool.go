package voice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"golang.org/x/sync/singleflight"

	"bandaid/debug"
	"bandaid/settings"
	"bandaid/theory"
)

// PlayOptions describes one note
type PlayOptions struct {
	Duration time.Duration
	Gain     float64
}

// Piece is one drum sound
type Piece int

const (
	Kick Piece = iota
	Snare
	HiHat
)

func (p Piece) String() string {
	switch p {
	case Kick:
		return "kick"
	case Snare:
		return "snare"
	case HiHat:
		return "hihat"
	}
	return fmt.Sprintf("piece(%d)", int(p))
}

// Handle plays notes of one loaded sample set. at is a time on the shared
// clock.
type Handle interface {
	Play(n theory.Note, at time.Duration, opts PlayOptions)
}

// DrumHandle plays drum pieces
type DrumHandle interface {
	Hit(p Piece, at time.Duration, opts PlayOptions)
}

// Backend produces sound. Load may block on I/O and is never called on the
// transport goroutine.
type Backend interface {
	Load(ctx context.Context, in settings.Instrument) (Handle, error)
	LoadDrums(ctx context.Context) (DrumHandle, error)
	// CancelScheduled drops notes scheduled for the future
	CancelScheduled()
}

// Pool maps active instrument ids onto loaded handles
type Pool struct {
	backend Backend

	mu      sync.RWMutex
	handles map[string]Handle // instrument id
	sets    map[string]Handle // sample set, kept after deactivation
	drums   DrumHandle

	group singleflight.Group
}

// NewPool creates an empty pool over backend
func NewPool(b Backend) *Pool {
	return &Pool{
		backend: b,
		handles: make(map[string]Handle),
		sets:    make(map[string]Handle),
	}
}

// Activate loads the sample set behind id and maps id onto it. Loading an
// already active id is a no-op; concurrent loads of the same set share one
// backend call.
func (p *Pool) Activate(ctx context.Context, id string) error {
	in, ok := settings.LookupInstrument(id)
	if !ok {
		return fault.New(fmt.Sprintf("unknown instrument %q", id), ftag.With(ftag.InvalidArgument))
	}

	p.mu.RLock()
	_, active := p.handles[id]
	cached, loaded := p.sets[in.SampleSet]
	p.mu.RUnlock()
	if active {
		return nil
	}
	if loaded {
		p.mu.Lock()
		p.handles[id] = cached
		p.mu.Unlock()
		return nil
	}

	v, err, _ := p.group.Do(in.SampleSet, func() (any, error) {
		p.mu.RLock()
		h, ok := p.sets[in.SampleSet]
		p.mu.RUnlock()
		if ok {
			return h, nil
		}
		start := time.Now()
		h, err := p.backend.Load(ctx, in)
		if err != nil {
			return nil, err
		}
		debug.Log("voice", "loaded %s in %s", in.SampleSet, time.Since(start))
		return h, nil
	})
	if err != nil {
		return fault.Wrap(err,
			fmsg.WithDesc("load "+in.SampleSet, fmt.Sprintf("Could not load %s samples", in.Label)))
	}

	h := v.(Handle)
	p.mu.Lock()
	p.sets[in.SampleSet] = h
	p.handles[id] = h
	p.mu.Unlock()
	return nil
}

// Deactivate unmaps id. Notes already scheduled finish on their own.
func (p *Pool) Deactivate(id string) {
	p.mu.Lock()
	delete(p.handles, id)
	p.mu.Unlock()
}

// Active reports whether id has a loaded handle
func (p *Pool) Active(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.handles[id]
	return ok
}

// Play schedules a note on id. Silent no-op when id has no handle.
func (p *Pool) Play(id string, n theory.Note, at time.Duration, opts PlayOptions) {
	p.mu.RLock()
	h, ok := p.handles[id]
	p.mu.RUnlock()
	if !ok {
		return
	}
	h.Play(n, at, opts)
}

// LoadDrums loads the drum kit once
func (p *Pool) LoadDrums(ctx context.Context) error {
	p.mu.RLock()
	loaded := p.drums != nil
	p.mu.RUnlock()
	if loaded {
		return nil
	}
	v, err, _ := p.group.Do("\x00drums", func() (any, error) {
		return p.backend.LoadDrums(ctx)
	})
	if err != nil {
		return fault.Wrap(err, fmsg.WithDesc("load drums", "Could not load drum samples"))
	}
	p.mu.Lock()
	p.drums = v.(DrumHandle)
	p.mu.Unlock()
	return nil
}

// Hit plays a drum piece. Silent no-op before LoadDrums succeeds.
func (p *Pool) Hit(piece Piece, at time.Duration, opts PlayOptions) {
	p.mu.RLock()
	d := p.drums
	p.mu.RUnlock()
	if d == nil {
		return
	}
	d.Hit(piece, at, opts)
}

// CancelScheduled drops every note not yet sounding
func (p *Pool) CancelScheduled() {
	p.backend.CancelScheduled()
}
