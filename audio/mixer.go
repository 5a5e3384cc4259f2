// Package audio plays sample sets through the system sound device.
package audio

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"
)

// SampleRate of the mix bus
const SampleRate = 44100

// Voice generates PCM samples in the range [-1,1]
type Voice interface {
	// Sample returns the next sample and whether the voice has finished
	Sample() (float64, bool)
	// Release starts the fade out
	Release()
}

type voiceState struct {
	start int64
	v     Voice
}

// Mixer sums scheduled voices into one mono stream. Its sample position is
// the clock the transport schedules against, so a note scheduled at t
// starts exactly t*SampleRate frames into the stream.
type Mixer struct {
	mu     sync.Mutex
	voices []*voiceState
	pos    atomic.Int64
	buf    []float32
}

func NewMixer() *Mixer {
	return &Mixer{}
}

// Now implements clock.Clock
func (m *Mixer) Now() time.Duration {
	return FramesToDuration(m.pos.Load())
}

// Schedule starts v at at on the mixer clock. Times in the past start on
// the next frame.
func (m *Mixer) Schedule(v Voice, at time.Duration) {
	start := max(DurationToFrames(at), m.pos.Load())
	m.mu.Lock()
	m.voices = append(m.voices, &voiceState{start: start, v: v})
	m.mu.Unlock()
}

// CancelPending drops voices that have not started and fades out the ones
// that are sounding
func (m *Mixer) CancelPending() {
	pos := m.pos.Load()
	m.mu.Lock()
	keep := m.voices[:0]
	for _, vs := range m.voices {
		if vs.start < pos {
			vs.v.Release()
			keep = append(keep, vs)
		}
	}
	clear(m.voices[len(keep):])
	m.voices = keep
	m.mu.Unlock()
}

// Voices returns how many voices are scheduled or sounding
func (m *Mixer) Voices() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Process fills dst with the next len(dst) frames and advances the clock
func (m *Mixer) Process(dst []float32) {
	m.mu.Lock()
	pos := m.pos.Load()
	for i := range dst {
		var sum float64
		for idx := 0; idx < len(m.voices); idx++ {
			vs := m.voices[idx]
			if pos < vs.start {
				continue
			}
			val, done := vs.v.Sample()
			sum += val
			if done {
				m.voices = append(m.voices[:idx], m.voices[idx+1:]...)
				idx--
			}
		}
		dst[i] = float32(min(max(sum, -1), 1))
		pos++
	}
	m.pos.Store(pos)
	m.mu.Unlock()
}

// Read implements io.Reader for oto.Player: signed 16-bit little endian
// mono
func (m *Mixer) Read(p []byte) (int, error) {
	frames := len(p) / 2
	if cap(m.buf) < frames {
		m.buf = make([]float32, frames)
	}
	buf := m.buf[:frames]
	m.Process(buf)
	for i, s := range buf {
		binary.LittleEndian.PutUint16(p[2*i:], uint16(int16(s*32767)))
	}
	return frames * 2, nil
}

// DurationToFrames converts a clock time to a frame index
func DurationToFrames(d time.Duration) int64 {
	return int64(d) * SampleRate / int64(time.Second)
}

// FramesToDuration converts a frame index to a clock time
func FramesToDuration(n int64) time.Duration {
	return time.Duration(n * int64(time.Second) / SampleRate)
}
