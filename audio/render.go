package audio

import (
	"context"
	"io"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	wav "github.com/youpy/go-wav"

	"bandaid/sequencer"
	"bandaid/settings"
)

// Extra time rendered after the last bar so chords ring out
const renderTail = 2 * time.Second

// RenderWAV renders bars measures of s with the samples under dir and
// writes a 16-bit mono WAV file to w
func RenderWAV(ctx context.Context, w io.Writer, s settings.Settings, bars int, dir string) error {
	m := NewMixer()
	if err := sequencer.Render(ctx, s, bars, NewSampler(dir, m)); err != nil {
		return err
	}

	length := barsDuration(s.BPM, bars) + renderTail
	frames := make([]float32, DurationToFrames(length))
	m.Process(frames)
	return WriteWAV(w, frames)
}

// WriteWAV writes mono float frames as 16-bit PCM
func WriteWAV(w io.Writer, frames []float32) error {
	samples := make([]wav.Sample, len(frames))
	for i, f := range frames {
		v := int(min(max(f, -1), 1) * 32767)
		samples[i].Values = [2]int{v, v}
	}
	ww := wav.NewWriter(w, uint32(len(samples)), 1, SampleRate, 16)
	if err := ww.WriteSamples(samples); err != nil {
		return fault.Wrap(err, fmsg.WithDesc("write wav", "Could not write audio file"))
	}
	return nil
}

func barsDuration(bpm, bars int) time.Duration {
	beats := float64(bars * 4)
	return time.Duration(beats * 60 / float64(settings.ClampBPM(bpm)) * float64(time.Second))
}
