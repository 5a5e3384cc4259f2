package audio

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Southclaws/fault/ftag"

	"bandaid/settings"
	"bandaid/theory"
	"bandaid/voice"
)

func tone(frames int, level float32) []float32 {
	out := make([]float32, frames)
	for i := range out {
		out[i] = level
	}
	return out
}

func writeSample(t *testing.T, path string, frames []float32) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := WriteWAV(f, frames); err != nil {
		t.Fatal(err)
	}
}

// sampleTree writes a piano set with a single C4 and a full drum kit
func sampleTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeSample(t, filepath.Join(dir, "acoustic_grand_piano", "C4.wav"), tone(SampleRate, 0.5))
	for _, f := range drumFiles {
		writeSample(t, filepath.Join(dir, DrumsSet, f), tone(SampleRate/10, 0.5))
	}
	return dir
}

func TestDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteWAV(&buf, tone(1000, 0.5)); err != nil {
		t.Fatal(err)
	}
	pcm, err := Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if pcm.Rate != SampleRate || len(pcm.Data) != 1000 {
		t.Fatalf("rate %d, %d frames", pcm.Rate, len(pcm.Data))
	}
	if math.Abs(float64(pcm.Data[500])-0.5) > 1e-3 {
		t.Fatalf("frame 500 = %v", pcm.Data[500])
	}
}

func TestBankNearest(t *testing.T) {
	dir := t.TempDir()
	writeSample(t, filepath.Join(dir, "C4.wav"), tone(10, 0.1))
	writeSample(t, filepath.Join(dir, "As4.wav"), tone(10, 0.2))
	writeSample(t, filepath.Join(dir, "notes.txt"), tone(10, 0.3))

	b, err := LoadBank(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct{ midi, want int }{
		{60, 60},
		{64, 60},
		{65, 60}, // tie goes low
		{66, 70},
		{90, 70},
	}
	for _, tc := range cases {
		if _, got := b.Nearest(tc.midi); got != tc.want {
			t.Errorf("Nearest(%d) = %d, want %d", tc.midi, got, tc.want)
		}
	}
}

func TestMixerClock(t *testing.T) {
	m := NewMixer()
	m.Process(make([]float32, SampleRate))
	if got := m.Now(); got != time.Second {
		t.Fatalf("Now = %v after one second of frames", got)
	}
}

func TestSchedulingIsSampleAccurate(t *testing.T) {
	m := NewMixer()
	s := NewSampler(sampleTree(t), m)
	in, _ := settings.LookupInstrument("acoustic_grand_piano")
	h, err := s.Load(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}

	h.Play(theory.Note{Pitch: 0, Octave: 4}, 100*time.Millisecond, voice.PlayOptions{Gain: 1, Duration: time.Second})
	out := make([]float32, 5000)
	m.Process(out)
	if out[4409] != 0 {
		t.Fatalf("sound before the note: %v", out[4409])
	}
	if out[4410] == 0 {
		t.Fatal("no sound at the note start")
	}
}

func TestPitchShiftShortensSample(t *testing.T) {
	m := NewMixer()
	s := NewSampler(sampleTree(t), m)
	in, _ := settings.LookupInstrument("acoustic_grand_piano")
	h, _ := s.Load(context.Background(), in)

	// One octave up plays the one second sample in half a second
	h.Play(theory.Note{Pitch: 0, Octave: 5}, 0, voice.PlayOptions{Gain: 1})
	m.Process(make([]float32, SampleRate/2+10))
	if n := m.Voices(); n != 0 {
		t.Fatalf("%d voices still sounding", n)
	}
}

func TestCancelPending(t *testing.T) {
	m := NewMixer()
	s := NewSampler(sampleTree(t), m)
	d, err := s.LoadDrums(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	d.Hit(voice.Kick, 0, voice.PlayOptions{Gain: 1})
	d.Hit(voice.Snare, time.Second, voice.PlayOptions{Gain: 1})
	m.Process(make([]float32, 10))

	s.CancelScheduled()
	if n := m.Voices(); n != 1 {
		t.Fatalf("%d voices after cancel, want the sounding kick", n)
	}
	m.Process(make([]float32, DurationToFrames(releaseTime)+2))
	if n := m.Voices(); n != 0 {
		t.Fatalf("kick did not fade out: %d voices", n)
	}
}

func TestZeroGainIsSilent(t *testing.T) {
	m := NewMixer()
	s := NewSampler(sampleTree(t), m)
	d, _ := s.LoadDrums(context.Background())
	d.Hit(voice.HiHat, 0, voice.PlayOptions{Gain: 0})
	if m.Voices() != 0 {
		t.Fatal("zero gain hit scheduled")
	}
}

func TestMissingSampleSet(t *testing.T) {
	s := NewSampler(t.TempDir(), NewMixer())
	in, _ := settings.LookupInstrument("violin")
	_, err := s.Load(context.Background(), in)
	if ftag.Get(err) != ftag.NotFound {
		t.Fatalf("err = %v", err)
	}
	if _, err := s.LoadDrums(context.Background()); err == nil {
		t.Fatal("drums loaded from an empty tree")
	}
}

func TestRenderWAV(t *testing.T) {
	s := settings.Default()
	in, _ := settings.LookupInstrument("acoustic_grand_piano")
	s.ActiveInstruments = settings.Instruments{in.ID: in.DefaultConfig()}
	s.EnableBeats = true

	var buf bytes.Buffer
	if err := RenderWAV(context.Background(), &buf, s, 1, sampleTree(t)); err != nil {
		t.Fatal(err)
	}
	pcm, err := Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if want := int(DurationToFrames(2*time.Second + renderTail)); len(pcm.Data) != want {
		t.Fatalf("%d frames, want %d", len(pcm.Data), want)
	}
	if pcm.Data[100] == 0 {
		t.Fatal("render is silent at the downbeat")
	}
}
