// Package voicetest provides a recording voice backend for tests
package voicetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"bandaid/settings"
	"bandaid/theory"
	"bandaid/voice"
)

// Note is one recorded Play or Hit call
type Note struct {
	SampleSet string // "drums" for hits
	Note      theory.Note
	Piece     voice.Piece
	At        time.Duration
	Opts      voice.PlayOptions
}

// Recorder is a voice.Backend that records everything it is asked to play
type Recorder struct {
	mu        sync.Mutex
	notes     []Note
	loads     map[string]int
	fail      map[string]error
	block     chan struct{}
	cancelled int
}

func NewRecorder() *Recorder {
	return &Recorder{loads: map[string]int{}, fail: map[string]error{}}
}

// FailLoad makes loading set return err
func (r *Recorder) FailLoad(set string, err error) {
	r.mu.Lock()
	r.fail[set] = err
	r.mu.Unlock()
}

// BlockLoads makes Load wait until the returned func is called
func (r *Recorder) BlockLoads() (release func()) {
	ch := make(chan struct{})
	r.mu.Lock()
	r.block = ch
	r.mu.Unlock()
	return func() { close(ch) }
}

func (r *Recorder) Load(ctx context.Context, in settings.Instrument) (voice.Handle, error) {
	r.mu.Lock()
	block := r.block
	r.loads[in.SampleSet]++
	err := r.fail[in.SampleSet]
	r.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &handle{r: r, set: in.SampleSet}, nil
}

func (r *Recorder) LoadDrums(context.Context) (voice.DrumHandle, error) {
	r.mu.Lock()
	r.loads["drums"]++
	r.mu.Unlock()
	return &handle{r: r, set: "drums"}, nil
}

func (r *Recorder) CancelScheduled() {
	r.mu.Lock()
	r.cancelled++
	r.mu.Unlock()
}

// Loads returns how many times set was loaded
func (r *Recorder) Loads(set string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loads[set]
}

// Cancelled returns how many times CancelScheduled ran
func (r *Recorder) Cancelled() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// Notes returns recorded notes ordered by time
func (r *Recorder) Notes() []Note {
	r.mu.Lock()
	out := append([]Note(nil), r.notes...)
	r.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].At < out[j].At })
	return out
}

// Between returns recorded notes with from <= At < to
func (r *Recorder) Between(from, to time.Duration) []Note {
	var out []Note
	for _, n := range r.Notes() {
		if n.At >= from && n.At < to {
			out = append(out, n)
		}
	}
	return out
}

// Reset forgets recorded notes
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.notes = nil
	r.mu.Unlock()
}

type handle struct {
	r   *Recorder
	set string
}

func (h *handle) Play(n theory.Note, at time.Duration, opts voice.PlayOptions) {
	h.r.mu.Lock()
	h.r.notes = append(h.r.notes, Note{SampleSet: h.set, Note: n, At: at, Opts: opts})
	h.r.mu.Unlock()
}

func (h *handle) Hit(p voice.Piece, at time.Duration, opts voice.PlayOptions) {
	h.r.mu.Lock()
	h.r.notes = append(h.r.notes, Note{SampleSet: h.set, Piece: p, At: at, Opts: opts})
	h.r.mu.Unlock()
}
