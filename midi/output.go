package midi

import (
	"context"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	gomidi "gitlab.com/gomidi/midi/v2"

	"bandaid/clock"
	"bandaid/debug"
	"bandaid/settings"
	"bandaid/theory"
	"bandaid/voice"
)

// Shortest note sent, so a zero-length hit still reaches the device
const minNoteLength = 10 * time.Millisecond

// Velocity maps a gain in [0, settings.MaxGain] onto 1-127. Zero gain is
// silent.
func Velocity(gain float64) uint8 {
	if !(gain > 0) {
		return 0
	}
	v := math.Round(gain / settings.MaxGain * 127)
	return uint8(min(max(v, 1), 127))
}

// Output is a voice.Backend that plays through a MIDI port. Each sample set
// gets its own channel with the instrument's General MIDI program; drums go
// to channel 10.
type Output struct {
	clock clock.Clock
	kit   DrumKit

	mu       sync.Mutex
	send     func(gomidi.Message) error
	queue    []Event // sorted by Event.before
	channels map[string]uint8
	nextCh   uint8

	wake chan struct{}
}

// NewOutput creates an output over send. send may be nil, in which case
// events queue up until Drain or SetSender. A nil clock counts as time 0.
func NewOutput(send func(gomidi.Message) error, c clock.Clock, kit DrumKit) *Output {
	return &Output{
		clock:    c,
		kit:      kit,
		send:     send,
		channels: make(map[string]uint8),
		wake:     make(chan struct{}, 1),
	}
}

// Open finds portName (first output port when empty) and creates an
// output on it
func Open(portName string, c clock.Clock, kit DrumKit) (*Output, error) {
	send, err := OpenSender(portName)
	if err != nil {
		return nil, err
	}
	return NewOutput(send, c, kit), nil
}

// SetSender swaps the port. nil detaches; queued events are dropped at
// send time until a sender is attached again.
func (o *Output) SetSender(send func(gomidi.Message) error) {
	o.mu.Lock()
	o.send = send
	o.mu.Unlock()
	o.interrupt()
}

func (o *Output) Load(ctx context.Context, in settings.Instrument) (voice.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.mu.Lock()
	ch, ok := o.channels[in.SampleSet]
	if !ok {
		if o.nextCh == DrumChannel {
			o.nextCh++
		}
		if o.nextCh > 15 {
			o.mu.Unlock()
			return nil, fault.New("out of midi channels",
				ftag.With(ftag.Internal),
				fmsg.WithDesc("no free channel for "+in.SampleSet, "No free MIDI channel for "+in.Label))
		}
		ch = o.nextCh
		o.nextCh++
		o.channels[in.SampleSet] = ch
	}
	o.mu.Unlock()

	o.schedule(Event{At: o.now(), Type: ProgramChange, Channel: ch, Note: in.Program})
	debug.Log("midi", "%s on channel %d program %d", in.SampleSet, ch+1, in.Program)
	return &channelHandle{o: o, ch: ch}, nil
}

func (o *Output) LoadDrums(ctx context.Context) (voice.DrumHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &drumHandle{o: o}, nil
}

// CancelScheduled drops pending note-ons and releases every note that is
// still held
func (o *Output) CancelScheduled() {
	o.mu.Lock()
	var offs []Event
	for _, e := range o.queue {
		if e.Type == NoteOff {
			offs = append(offs, e)
		}
	}
	o.queue = o.queue[:0]
	send := o.send
	o.mu.Unlock()

	if send == nil {
		return
	}
	for _, e := range offs {
		send(e.Message())
	}
	debug.Log("midi", "cancelled, released %d notes", len(offs))
}

// Close silences every channel in use
func (o *Output) Close() {
	o.CancelScheduled()
	o.mu.Lock()
	send := o.send
	chans := []uint8{DrumChannel}
	for _, ch := range o.channels {
		chans = append(chans, ch)
	}
	o.mu.Unlock()
	if send == nil {
		return
	}
	for _, ch := range chans {
		send(gomidi.ControlChange(ch, ccAllNotesOff, 0))
	}
}

// Pending returns how many events are queued
func (o *Output) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Drain removes and returns every queued event in send order
func (o *Output) Drain() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.queue
	o.queue = nil
	return out
}

// Run sends events when they fall due until ctx is done
func (o *Output) Run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		next, ok := o.peek()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-o.wake:
				continue
			}
		}

		if wait := next - o.now(); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-o.wake:
				// Queue changed; an earlier event may have arrived
				timer.Stop()
				continue
			case <-timer.C:
			}
		}
		o.flushDue(o.now())
	}
}

// flushDue sends every event due at or before now and returns how many
// were sent
func (o *Output) flushDue(now time.Duration) int {
	o.mu.Lock()
	n := sort.Search(len(o.queue), func(i int) bool { return o.queue[i].At > now })
	due := append([]Event(nil), o.queue[:n]...)
	o.queue = append(o.queue[:0], o.queue[n:]...)
	send := o.send
	o.mu.Unlock()

	if send == nil {
		return 0
	}
	for _, e := range due {
		if err := send(e.Message()); err != nil {
			debug.LogEvery(100, "midi", "send: %v", err)
		}
	}
	return len(due)
}

func (o *Output) peek() (time.Duration, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) == 0 {
		return 0, false
	}
	return o.queue[0].At, true
}

func (o *Output) schedule(evs ...Event) {
	o.mu.Lock()
	for _, e := range evs {
		i := sort.Search(len(o.queue), func(i int) bool { return e.before(o.queue[i]) })
		o.queue = append(o.queue, Event{})
		copy(o.queue[i+1:], o.queue[i:])
		o.queue[i] = e
	}
	o.mu.Unlock()
	o.interrupt()
}

func (o *Output) note(ch, key uint8, at time.Duration, opts voice.PlayOptions) {
	vel := Velocity(opts.Gain)
	if vel == 0 {
		return
	}
	length := max(opts.Duration, minNoteLength)
	o.schedule(
		Event{At: at, Type: NoteOn, Channel: ch, Note: key, Velocity: vel},
		Event{At: at + length, Type: NoteOff, Channel: ch, Note: key},
	)
}

func (o *Output) now() time.Duration {
	if o.clock == nil {
		return 0
	}
	return o.clock.Now()
}

func (o *Output) interrupt() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

type channelHandle struct {
	o  *Output
	ch uint8
}

func (h *channelHandle) Play(n theory.Note, at time.Duration, opts voice.PlayOptions) {
	h.o.note(h.ch, n.MIDI(), at, opts)
}

type drumHandle struct {
	o *Output
}

func (h *drumHandle) Hit(p voice.Piece, at time.Duration, opts voice.PlayOptions) {
	h.o.note(DrumChannel, h.o.kit.Note(p), at, opts)
}
