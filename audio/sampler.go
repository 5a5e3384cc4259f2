package audio

import (
	"bytes"
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	wav "github.com/youpy/go-wav"

	"bandaid/debug"
	"bandaid/settings"
	"bandaid/theory"
	"bandaid/voice"
)

// Levels. Instrument gains run up to settings.MaxGain, so the bus is
// scaled down to leave room for a full chord on every instrument.
const (
	busLevel    = 0.12
	releaseTime = 80 * time.Millisecond
)

// DrumsSet is the sample directory of the drum kit
const DrumsSet = "drums"

var drumFiles = map[voice.Piece]string{
	voice.Kick:  "kick.wav",
	voice.Snare: "snare.wav",
	voice.HiHat: "hihat.wav",
}

// PCM is one decoded sample, mono, at its own sample rate
type PCM struct {
	Data []float32
	Rate int
}

// Decode reads a WAV file and mixes it down to mono
func Decode(r io.Reader) (*PCM, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	rd := wav.NewReader(bytes.NewReader(raw))
	format, err := rd.Format()
	if err != nil {
		return nil, fault.Wrap(err, fmsg.WithDesc("wav format", "Unreadable sample file"))
	}
	channels := max(int(format.NumChannels), 1)
	pcm := &PCM{Rate: int(format.SampleRate)}
	for {
		samples, err := rd.ReadSamples()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fault.Wrap(err, fmsg.WithDesc("wav samples", "Unreadable sample file"))
		}
		for _, s := range samples {
			var sum float64
			for ch := 0; ch < channels && ch < len(s.Values); ch++ {
				sum += rd.FloatValue(s, uint(ch))
			}
			pcm.Data = append(pcm.Data, float32(sum/float64(channels)))
		}
	}
	if pcm.Rate <= 0 || len(pcm.Data) == 0 {
		return nil, fault.New("empty wav", ftag.With(ftag.InvalidArgument), fmsg.WithDesc("no frames", "Empty sample file"))
	}
	return pcm, nil
}

func decodeFile(path string) (*PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Bank holds the samples of one set keyed by MIDI note
type Bank struct {
	notes map[int]*PCM
}

// Nearest returns the sample closest in pitch to midi and its MIDI note.
// Ties go to the lower sample.
func (b *Bank) Nearest(midi int) (*PCM, int) {
	best, bestNote := (*PCM)(nil), 0
	bestDist := math.MaxInt
	for n, p := range b.notes {
		d := n - midi
		if d < 0 {
			d = -d
		}
		if d < bestDist || (d == bestDist && n < bestNote) {
			best, bestNote, bestDist = p, n, d
		}
	}
	return best, bestNote
}

// LoadBank reads every <Note>.wav in dir, e.g. C4.wav or As3.wav
func LoadBank(ctx context.Context, dir string) (*Bank, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fault.Wrap(err, ftag.With(ftag.NotFound))
	}
	b := &Bank{notes: make(map[int]*PCM)}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), ".wav") {
			continue
		}
		n, err := theory.ParseNote(strings.TrimSuffix(name, filepath.Ext(name)))
		if err != nil {
			continue
		}
		pcm, err := decodeFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fault.Wrap(err, fmsg.With("decode "+name))
		}
		b.notes[int(n.MIDI())] = pcm
	}
	if len(b.notes) == 0 {
		return nil, fault.New("no samples in "+dir, ftag.With(ftag.NotFound))
	}
	return b, nil
}

// Sampler is a voice.Backend playing WAV sample sets from a directory
// tree: <dir>/<sample set>/<Note>.wav and <dir>/drums/{kick,snare,hihat}.wav
type Sampler struct {
	dir   string
	mixer *Mixer
}

func NewSampler(dir string, m *Mixer) *Sampler {
	return &Sampler{dir: dir, mixer: m}
}

func (s *Sampler) Load(ctx context.Context, in settings.Instrument) (voice.Handle, error) {
	start := time.Now()
	b, err := LoadBank(ctx, filepath.Join(s.dir, in.SampleSet))
	if err != nil {
		return nil, err
	}
	debug.Log("audio", "bank %s: %d samples in %s", in.SampleSet, len(b.notes), time.Since(start))
	return &bankHandle{mixer: s.mixer, bank: b}, nil
}

func (s *Sampler) LoadDrums(ctx context.Context) (voice.DrumHandle, error) {
	kit := &drumKit{mixer: s.mixer, pieces: make(map[voice.Piece]*PCM)}
	for p, file := range drumFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pcm, err := decodeFile(filepath.Join(s.dir, DrumsSet, file))
		if err != nil {
			return nil, fault.Wrap(err, fmsg.With("drum "+p.String()))
		}
		kit.pieces[p] = pcm
	}
	return kit, nil
}

func (s *Sampler) CancelScheduled() {
	s.mixer.CancelPending()
}

type bankHandle struct {
	mixer *Mixer
	bank  *Bank
}

func (h *bankHandle) Play(n theory.Note, at time.Duration, opts voice.PlayOptions) {
	target := int(n.MIDI())
	pcm, src := h.bank.Nearest(target)
	if pcm == nil || !(opts.Gain > 0) {
		return
	}
	pitch := math.Pow(2, float64(target-src)/12)
	h.mixer.Schedule(newSampleVoice(pcm, pitch, opts), at)
}

type drumKit struct {
	mixer  *Mixer
	pieces map[voice.Piece]*PCM
}

func (k *drumKit) Hit(p voice.Piece, at time.Duration, opts voice.PlayOptions) {
	pcm, ok := k.pieces[p]
	if !ok || !(opts.Gain > 0) {
		return
	}
	// Drums ring out; the note length only matters for pitched voices
	opts.Duration = 0
	k.mixer.Schedule(newSampleVoice(pcm, 1, opts), at)
}

// sampleVoice plays a PCM buffer at a pitch ratio with linear
// interpolation, holding for the note length and then fading out
type sampleVoice struct {
	pcm     *PCM
	pos     float64
	step    float64
	gain    float64
	hold    int // frames until release, 0 plays to the end
	release int
	fade    int // frames left in the fade, -1 while holding
	n       int
}

func newSampleVoice(pcm *PCM, pitch float64, opts voice.PlayOptions) *sampleVoice {
	return &sampleVoice{
		pcm:     pcm,
		step:    pitch * float64(pcm.Rate) / SampleRate,
		gain:    opts.Gain * busLevel,
		hold:    int(DurationToFrames(opts.Duration)),
		release: int(DurationToFrames(releaseTime)),
		fade:    -1,
	}
}

func (v *sampleVoice) Sample() (float64, bool) {
	i := int(v.pos)
	if i+1 >= len(v.pcm.Data) || v.fade == 0 {
		return 0, true
	}
	frac := v.pos - float64(i)
	s := float64(v.pcm.Data[i])*(1-frac) + float64(v.pcm.Data[i+1])*frac
	s *= v.gain

	v.n++
	if v.hold > 0 && v.n >= v.hold && v.fade < 0 {
		v.Release()
	}
	if v.fade > 0 {
		s *= float64(v.fade) / float64(v.release)
		v.fade--
	}
	v.pos += v.step
	return s, false
}

func (v *sampleVoice) Release() {
	if v.fade < 0 {
		v.fade = max(v.release, 1)
	}
}
