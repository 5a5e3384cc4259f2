package sequencer

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"

	"bandaid/clock"
	"bandaid/settings"
	"bandaid/theory"
	"bandaid/voice"
	"bandaid/voice/voicetest"
)

const piano = "acoustic_grand_piano"

type rig struct {
	clk   *clock.Manual
	tr    *Transport
	store *settings.Store
	pool  *voice.Pool
	rec   *voicetest.Recorder
	m     *Manager
}

func newRig(t *testing.T, s settings.Settings) *rig {
	t.Helper()
	r := &rig{clk: &clock.Manual{}, rec: voicetest.NewRecorder()}
	r.tr = NewTransport(r.clk)
	r.store = settings.NewStore(s)
	r.pool = voice.NewPool(r.rec)
	ctx := context.Background()
	if err := r.pool.LoadDrums(ctx); err != nil {
		t.Fatal(err)
	}
	for _, id := range r.store.EnabledIDs() {
		if err := r.pool.Activate(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	r.m = NewManager(r.store, r.tr, r.pool)
	return r
}

// runTo processes every 10ms from the current clock time up to until
func (r *rig) runTo(until time.Duration) {
	for now := r.clk.Now(); now <= until; now += 10 * time.Millisecond {
		r.clk.Set(now)
		r.tr.Process()
	}
}

func withInstruments(ids ...string) settings.Settings {
	s := settings.Default()
	s.ActiveInstruments = settings.Instruments{}
	for _, id := range ids {
		in, _ := settings.LookupInstrument(id)
		s.ActiveInstruments[id] = in.DefaultConfig()
	}
	return s
}

func only(notes []voicetest.Note, set string) []voicetest.Note {
	var out []voicetest.Note
	for _, n := range notes {
		if n.SampleSet == set {
			out = append(out, n)
		}
	}
	return out
}

func TestBeatPatternTables(t *testing.T) {
	type want map[int][]voice.Piece
	cases := []struct {
		mode settings.BeatMode
		want want
	}{
		{settings.OneLoop, want{0: {voice.Kick}, 2: {voice.HiHat}, 4: {voice.Snare}, 6: {voice.HiHat}}},
		{settings.Dembow, want{
			0: {voice.Kick}, 1: {voice.HiHat}, 2: {voice.Kick}, 3: {voice.Snare},
			4: {voice.Kick}, 5: {voice.HiHat}, 6: {voice.Kick}, 7: {voice.Snare},
		}},
	}
	for _, tc := range cases {
		p := BeatPattern(tc.mode)
		for step := 0; step < DrumSteps; step++ {
			var got []voice.Piece
			for _, h := range p[step] {
				got = append(got, h.Piece)
			}
			if len(got) != len(tc.want[step]) {
				t.Fatalf("%s step %d: got %v, want %v", tc.mode, step, got, tc.want[step])
			}
			for i := range got {
				if got[i] != tc.want[step][i] {
					t.Fatalf("%s step %d: got %v, want %v", tc.mode, step, got, tc.want[step])
				}
			}
		}
	}

	if !reflect.DeepEqual(BeatPattern("polka"), BeatPattern(settings.TwoLoops)) {
		t.Fatal("unknown mode should play two loops")
	}
}

func TestOneLoopPercussion(t *testing.T) {
	s := withInstruments(piano)
	s.EnableBeats = true
	s.BeatMode = settings.OneLoop
	s.BeatGain = 0.5
	r := newRig(t, s)

	p := NewPercussion(r.tr, r.store, r.pool)
	r.tr.Start()
	p.Start()
	r.runTo(1800 * time.Millisecond)

	hits := only(r.rec.Notes(), "drums")
	want := []struct {
		at    time.Duration
		piece voice.Piece
	}{
		{0, voice.Kick},
		{500 * time.Millisecond, voice.HiHat},
		{1000 * time.Millisecond, voice.Snare},
		{1500 * time.Millisecond, voice.HiHat},
	}
	if len(hits) != len(want) {
		t.Fatalf("got %d hits, want %d: %+v", len(hits), len(want), hits)
	}
	for i, w := range want {
		if hits[i].At != w.at || hits[i].Piece != w.piece {
			t.Fatalf("hit %d = %s at %v, want %s at %v", i, hits[i].Piece, hits[i].At, w.piece, w.at)
		}
		if hits[i].Opts.Gain != 0.5 || hits[i].Opts.Duration != 250*time.Millisecond {
			t.Fatalf("hit %d opts = %+v", i, hits[i].Opts)
		}
	}
}

func TestBeatsDisabledAreSilent(t *testing.T) {
	r := newRig(t, withInstruments(piano))
	p := NewPercussion(r.tr, r.store, r.pool)
	r.tr.Start()
	p.Start()
	r.runTo(time.Second)
	if hits := only(r.rec.Notes(), "drums"); len(hits) != 0 {
		t.Fatalf("got %d hits with beats disabled", len(hits))
	}
}

func TestChordTickPassesGainThrough(t *testing.T) {
	s := withInstruments(piano, "electric_guitar_clean")
	s.ActiveInstruments[piano] = settings.InstrumentConfig{Gain: 1.0, Octave: settings.OctaveCurrent, Style: "block", Pattern: settings.Melodic}
	s.ActiveInstruments["electric_guitar_clean"] = settings.InstrumentConfig{Gain: 2.5, Octave: settings.OctaveCurrent, Style: "block", Pattern: settings.Melodic}
	r := newRig(t, s)

	c := NewChordSequencer(r.tr, r.store, r.pool, nil)
	r.tr.Start()
	c.Start()
	r.runTo(0)

	notes := r.rec.Notes()
	if len(notes) != 6 {
		t.Fatalf("got %d notes, want 6: %+v", len(notes), notes)
	}
	gains := map[string]float64{piano: 1.0, "electric_guitar_clean": 2.5}
	pitches := map[string][]int{}
	for _, n := range notes {
		if n.Opts.Gain != gains[n.SampleSet] {
			t.Fatalf("%s gain = %v, want %v", n.SampleSet, n.Opts.Gain, gains[n.SampleSet])
		}
		if n.Opts.Duration != ChordDuration || n.At != 0 {
			t.Fatalf("note %+v", n)
		}
		pitches[n.SampleSet] = append(pitches[n.SampleSet], n.Note.Pitch)
	}
	for set, ps := range pitches {
		if len(ps) != 3 || ps[0] != 0 || ps[1] != 4 || ps[2] != 7 {
			t.Fatalf("%s pitches = %v, want C E G", set, ps)
		}
	}
}

func TestOctaveOffsetAppliedOnce(t *testing.T) {
	s := withInstruments("violin")
	cfg := s.ActiveInstruments["violin"]
	cfg.Octave = settings.OctaveHigher
	s.ActiveInstruments["violin"] = cfg
	r := newRig(t, s)

	c := NewChordSequencer(r.tr, r.store, r.pool, nil)
	r.tr.Start()
	c.Start()
	r.runTo(0)

	for _, n := range r.rec.Notes() {
		if n.Note.Octave != 5 {
			t.Fatalf("octave = %d, want 5", n.Note.Octave)
		}
	}
}

func TestChordsAdvanceEveryBar(t *testing.T) {
	var shown []int
	r := newRig(t, withInstruments(piano))
	c := NewChordSequencer(r.tr, r.store, r.pool, func(i int) { shown = append(shown, i) })
	r.tr.Start()
	c.Start()
	r.runTo(8 * time.Second)

	want := []int{0, 1, 2, 3, 0}
	if len(shown) != len(want) {
		t.Fatalf("shown = %v, want %v", shown, want)
	}
	for i := range want {
		if shown[i] != want[i] {
			t.Fatalf("shown = %v, want %v", shown, want)
		}
	}

	bar1 := r.rec.Between(2*time.Second, 2*time.Second+1)
	if len(bar1) != 3 || bar1[0].Note.Pitch != 9 {
		t.Fatalf("bar 1 = %+v, want Am", bar1)
	}
}

func TestArpeggioWalksChord(t *testing.T) {
	s := withInstruments(settings.Arpeggio)
	s.ArpeggioSubdivision = settings.Eighth
	r := newRig(t, s)

	a := NewArpeggioSequencer(r.tr, r.store, r.pool)
	r.tr.Start()
	a.Start()
	r.runTo(1850 * time.Millisecond)

	notes := r.rec.Notes()
	want := []int{0, 4, 7, 4, 0, 4, 7, 4}
	if len(notes) != len(want) {
		t.Fatalf("got %d arpeggio notes, want %d", len(notes), len(want))
	}
	for i, n := range notes {
		if n.Note.Pitch != want[i] {
			t.Fatalf("note %d pitch = %d, want %d", i, n.Note.Pitch, want[i])
		}
		if n.At != time.Duration(i)*250*time.Millisecond {
			t.Fatalf("note %d at %v", i, n.At)
		}
		if n.Opts.Duration != 250*time.Millisecond {
			t.Fatalf("note %d duration %v", i, n.Opts.Duration)
		}
	}
}

func TestArpeggioFloors(t *testing.T) {
	s := withInstruments(settings.Arpeggio)
	cfg := s.ActiveInstruments[settings.Arpeggio]
	cfg.Gain = 0
	s.ActiveInstruments[settings.Arpeggio] = cfg
	s.BPM = settings.MaxBPM
	s.ArpeggioSubdivision = settings.Sixteenth
	r := newRig(t, s)
	r.tr.SetTempo(settings.MaxBPM)

	a := NewArpeggioSequencer(r.tr, r.store, r.pool)
	r.tr.Start()
	a.Start()
	r.runTo(0)

	notes := r.rec.Notes()
	if len(notes) == 0 {
		t.Fatal("no notes")
	}
	for _, n := range notes {
		if n.Opts.Gain != MinArpGain {
			t.Fatalf("gain = %v, want %v", n.Opts.Gain, MinArpGain)
		}
		if n.Opts.Duration < MinArpDuration {
			t.Fatalf("duration = %v", n.Opts.Duration)
		}
	}
}

func TestArpeggioSilentWhenDisabled(t *testing.T) {
	r := newRig(t, withInstruments(piano))
	a := NewArpeggioSequencer(r.tr, r.store, r.pool)
	r.tr.Start()
	a.Start()
	r.runTo(time.Second)
	if n := len(r.rec.Notes()); n != 0 {
		t.Fatalf("got %d notes", n)
	}
}

func TestPlayRefusedWithoutInstruments(t *testing.T) {
	r := newRig(t, settings.Default())

	if r.m.Play() {
		t.Fatal("Play succeeded with no instruments")
	}
	if r.m.Playing() || r.tr.Running() {
		t.Fatal("playing with no instruments")
	}
	a, ok := r.m.Alerts.Current()
	if !ok || a.Type != Warning || a.Message != "Select at least one instrument" {
		t.Fatalf("alert = %+v, %v", a, ok)
	}
}

func TestPlayTwiceIsNoop(t *testing.T) {
	r := newRig(t, withInstruments(piano))
	if !r.m.Play() {
		t.Fatal("Play failed")
	}
	if r.m.Play() {
		t.Fatal("second Play should be a no-op")
	}
	if !r.m.Stop() || r.m.Stop() {
		t.Fatal("Stop should succeed once")
	}
}

func TestStopStartLeaksNothing(t *testing.T) {
	s := withInstruments(piano)
	s.EnableBeats = true
	s.BeatMode = settings.TwoLoops
	r := newRig(t, s)

	r.m.Play()
	r.runTo(time.Second)
	r.m.Stop()
	if r.rec.Cancelled() != 1 {
		t.Fatalf("cancelled %d times", r.rec.Cancelled())
	}
	if st := r.m.GetState(); st.Playing || st.ChordIndex != -1 {
		t.Fatalf("state after stop = %+v", st)
	}

	r.rec.Reset()
	r.clk.Set(5 * time.Second)
	r.runTo(5500 * time.Millisecond)
	if n := len(r.rec.Notes()); n != 0 {
		t.Fatalf("%d notes fired while stopped", n)
	}

	r.m.Play()
	start := r.clk.Now()
	r.runTo(start + 500*time.Millisecond)

	notes := r.rec.Notes()
	if len(notes) == 0 {
		t.Fatal("nothing played after restart")
	}
	for _, n := range notes {
		if n.At < start {
			t.Fatalf("note at %v before restart at %v", n.At, start)
		}
	}
	first := only(r.rec.Between(start, start+1), piano)
	if len(first) != 3 || first[0].Note.Pitch != 0 {
		t.Fatalf("first chord after restart = %+v, want C", first)
	}
}

func TestChordIndexFollowsSound(t *testing.T) {
	r := newRig(t, withInstruments(piano))
	r.m.Play()

	r.runTo(1950 * time.Millisecond)
	if got := r.m.GetState().ChordIndex; got != 0 {
		t.Fatalf("chord index before bar 1 sounds = %d, want 0", got)
	}
	r.runTo(2 * time.Second)
	if got := r.m.GetState().ChordIndex; got != 1 {
		t.Fatalf("chord index at bar 1 = %d, want 1", got)
	}
}

func TestSubdivisionChangeKeepsChord(t *testing.T) {
	s := withInstruments(piano, settings.Arpeggio)
	s.ArpeggioSubdivision = settings.Eighth
	r := newRig(t, s)

	r.m.Play()
	r.runTo(2510 * time.Millisecond)
	if got := r.m.GetState().ChordIndex; got != 1 {
		t.Fatalf("chord index = %d, want 1", got)
	}

	r.store.SetSubdivision(settings.Sixteenth)
	r.rec.Reset()
	r.runTo(3850 * time.Millisecond)

	st := r.m.GetState()
	if st.ChordIndex != 1 {
		t.Fatalf("chord index after subdivision change = %d, want 1", st.ChordIndex)
	}
	if st.Subdivision != settings.Sixteenth {
		t.Fatalf("subdivision = %s", st.Subdivision)
	}

	var arp []voicetest.Note
	for _, n := range r.rec.Notes() {
		if n.Opts.Duration == 125*time.Millisecond {
			arp = append(arp, n)
		}
	}
	if len(arp) != 11 {
		t.Fatalf("got %d sixteenth notes, want 11", len(arp))
	}
	if arp[0].At != 2625*time.Millisecond {
		t.Fatalf("first sixteenth at %v, want 2.625s", arp[0].At)
	}
	for i := 1; i < len(arp); i++ {
		if d := arp[i].At - arp[i-1].At; d != 125*time.Millisecond {
			t.Fatalf("gap %d = %v", i, d)
		}
	}
	// Step 5 of the melodic walk over Am is the third
	if arp[0].Note.Pitch != 0 {
		t.Fatalf("first sixteenth pitch = %d, want C", arp[0].Note.Pitch)
	}
}

func TestTempoChangeKeepsPosition(t *testing.T) {
	clk := &clock.Manual{}
	tr := NewTransport(clk)
	tr.Start()

	clk.Set(time.Second)
	if got := tr.Tick(); got != PPQ*2 {
		t.Fatalf("tick = %d, want %d", got, PPQ*2)
	}
	tr.SetTempo(60)
	if got := tr.Tick(); got != PPQ*2 {
		t.Fatalf("tick after tempo change = %d, want %d", got, PPQ*2)
	}
	clk.Set(2 * time.Second)
	if got := tr.Tick(); got != PPQ*3 {
		t.Fatalf("tick one second later = %d, want %d", got, PPQ*3)
	}
}

func TestTempoChangeRespacesEvents(t *testing.T) {
	s := withInstruments(piano)
	s.EnableBeats = true
	s.BeatMode = settings.TwoLoops
	r := newRig(t, s)

	r.m.Play()
	r.runTo(time.Second)
	r.store.SetBPM(60)
	if r.tr.Tempo() != 60 {
		t.Fatalf("tempo = %d", r.tr.Tempo())
	}
	r.rec.Reset()
	r.runTo(2 * time.Second)

	hits := only(r.rec.Notes(), "drums")
	var times []time.Duration
	for _, h := range hits {
		if len(times) == 0 || times[len(times)-1] != h.At {
			times = append(times, h.At)
		}
	}
	if len(times) != 2 || times[0] != 1500*time.Millisecond || times[1] != 2*time.Second {
		t.Fatalf("hit times = %v, want [1.5s 2s]", times)
	}
}

func TestToggleWhilePlayingLoadsVoice(t *testing.T) {
	r := newRig(t, withInstruments(piano))
	r.m.Play()
	r.m.ToggleInstrument("violin")
	r.m.WaitLoads()
	if !r.pool.Active("violin") {
		t.Fatal("violin not loaded")
	}

	r.runTo(2 * time.Second)
	if n := len(only(r.rec.Between(2*time.Second, 2*time.Second+1), "violin")); n != 3 {
		t.Fatalf("violin played %d notes on bar 1, want 3", n)
	}

	r.m.ToggleInstrument("violin")
	if r.pool.Active("violin") {
		t.Fatal("violin still active after toggle off")
	}
}

func TestClearStopsLoop(t *testing.T) {
	clk := &clock.Manual{}
	tr := NewTransport(clk)
	fired := 0
	tr.Start()
	id := tr.Repeat(PPQ, 4, func(Event) { fired++ })
	tr.Process()
	tr.Clear(id)
	clk.Set(time.Second)
	tr.Process()
	if fired != 1 {
		t.Fatalf("fired %d times, want 1", fired)
	}
}

func TestRepeatAlignsToNextBoundary(t *testing.T) {
	clk := &clock.Manual{}
	tr := NewTransport(clk)
	tr.Start()
	clk.Set(1100 * time.Millisecond) // tick 422.4

	var got []Event
	tr.Repeat(PPQ, 16, func(ev Event) { got = append(got, ev) })
	clk.Set(1400 * time.Millisecond)
	tr.Process()
	if len(got) != 1 || got[0].Tick != 2*PPQ+PPQ || got[0].Step != 3 || got[0].Bar != 0 {
		t.Fatalf("events = %+v", got)
	}
}

func TestProcessSkipsStaleEvents(t *testing.T) {
	clk := &clock.Manual{}
	tr := NewTransport(clk)
	tr.Start()
	var ticks []int64
	tr.Repeat(PPQ, 4, func(ev Event) { ticks = append(ticks, ev.Tick) })
	clk.Set(time.Second)
	tr.Process()
	// Ticks 0 and 192 are more than a lookahead late
	if len(ticks) != 1 || ticks[0] != 2*PPQ {
		t.Fatalf("ticks = %v", ticks)
	}
}

func TestAlertsPriority(t *testing.T) {
	cur := time.Unix(0, 0)
	a := &Alerts{now: func() time.Time { return cur }}

	a.Update("careful", Warning, alertDuration)
	a.Notify("hello")
	if got, _ := a.Current(); got.Message != "careful" {
		t.Fatalf("lower priority replaced warning: %q", got.Message)
	}

	cur = cur.Add(alertDuration)
	if _, ok := a.Current(); ok {
		t.Fatal("alert outlived its duration")
	}
	a.Notify("hello")
	if got, _ := a.Current(); got.Message != "hello" {
		t.Fatalf("got %q", got.Message)
	}

	a.Fail(fault.Wrap(errors.New("dial tcp: refused"), fmsg.WithDesc("save", "Error saving settings")))
	if got, _ := a.Current(); got.Message != "Error saving settings" || got.Type != Error {
		t.Fatalf("got %+v", got)
	}
}

func TestRender(t *testing.T) {
	s := withInstruments(piano)
	s.EnableBeats = true
	s.BeatMode = settings.OneLoop
	rec := voicetest.NewRecorder()

	if err := Render(context.Background(), s, 2, rec); err != nil {
		t.Fatal(err)
	}
	notes := rec.Notes()
	if n := len(only(notes, piano)); n != 6 {
		t.Fatalf("got %d chord notes, want 6", n)
	}
	if n := len(only(notes, "drums")); n != 8 {
		t.Fatalf("got %d hits, want 8", n)
	}
	if last := notes[len(notes)-1]; last.At >= 4*time.Second {
		t.Fatalf("note at %v past the end", last.At)
	}
	if rec.Cancelled() != 0 {
		t.Fatal("render cancelled scheduled notes")
	}
}

func TestRenderErrors(t *testing.T) {
	ctx := context.Background()
	err := Render(ctx, withInstruments(piano), 0, voicetest.NewRecorder())
	if ftag.Get(err) != ftag.InvalidArgument {
		t.Fatalf("bars=0: %v", err)
	}
	err = Render(ctx, settings.Default(), 1, voicetest.NewRecorder())
	if err == nil || fmsg.GetIssue(err) != "Select at least one instrument" {
		t.Fatalf("no instruments: %v", err)
	}
}

// creepingClock moves forward a microsecond on every read, like a wall
// clock between two calls
type creepingClock struct {
	mu  sync.Mutex
	now time.Duration
}

func (c *creepingClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += time.Microsecond
	return c.now
}

func (c *creepingClock) advanceTo(d time.Duration) {
	c.mu.Lock()
	if d > c.now {
		c.now = d
	}
	c.mu.Unlock()
}

func TestPlayOnMovingClockStartsAtBarZero(t *testing.T) {
	s := withInstruments(piano, settings.Arpeggio)
	s.ArpeggioSubdivision = settings.Quarter
	s.EnableBeats = true
	s.BeatMode = settings.OneLoop

	clk := &creepingClock{now: time.Second}
	rec := voicetest.NewRecorder()
	tr := NewTransport(clk)
	store := settings.NewStore(s)
	pool := voice.NewPool(rec)
	ctx := context.Background()
	if err := pool.LoadDrums(ctx); err != nil {
		t.Fatal(err)
	}
	for _, id := range store.EnabledIDs() {
		if err := pool.Activate(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	m := NewManager(store, tr, pool)

	start := clk.Now()
	if !m.Play() {
		t.Fatal("Play refused")
	}
	for now := start; now <= start+8*time.Second; now += 10 * time.Millisecond {
		clk.advanceTo(now)
		tr.Process()
	}

	notes := rec.Notes()
	if len(notes) == 0 {
		t.Fatal("nothing played")
	}
	origin := notes[0].At
	if origin-start > time.Millisecond {
		t.Fatalf("first note at %v after play", origin-start)
	}
	first := rec.Between(origin, origin+time.Millisecond)
	var kick, chord bool
	for _, n := range first {
		kick = kick || (n.SampleSet == "drums" && n.Piece == voice.Kick)
		chord = chord || n.Opts.Duration == ChordDuration
	}
	if !kick || !chord {
		t.Fatalf("bar 0 opened without kick=%v chord=%v: %+v", kick, chord, first)
	}

	// chord voices and arpeggio agree on the chord of every bar
	for bar := 0; bar < 4; bar++ {
		at := origin + time.Duration(bar)*2*time.Second
		want := theory.ChordNotes("C", 0, bar, 0).Root
		var chordRoot, arpRoot *theory.Note
		for _, n := range rec.Between(at-time.Millisecond, at+time.Millisecond) {
			if n.SampleSet != piano {
				continue
			}
			n := n
			switch n.Opts.Duration {
			case ChordDuration:
				if chordRoot == nil {
					chordRoot = &n.Note
				}
			case 500 * time.Millisecond:
				arpRoot = &n.Note
			}
		}
		if chordRoot == nil || arpRoot == nil {
			t.Fatalf("bar %d: chord %v arpeggio %v", bar, chordRoot, arpRoot)
		}
		if *chordRoot != want || *arpRoot != want {
			t.Fatalf("bar %d: chord root %s, arpeggio %s, want %s", bar, chordRoot, arpRoot, want)
		}
	}
}

func TestFailedVoiceIsNotReloadedOnEveryPatch(t *testing.T) {
	r := newRig(t, withInstruments(piano))
	r.rec.FailLoad("violin", errors.New("missing samples"))

	r.m.ToggleInstrument("violin")
	r.m.WaitLoads()
	if a, ok := r.m.Alerts.Current(); !ok || a.Type != Error {
		t.Fatalf("alert = %+v %v", a, ok)
	}

	r.store.NudgeBPM(5)
	r.store.SetInstrumentGain(piano, 1)
	r.store.ApplyRemote(settings.Patch{Transpose: settings.Ptr(2)})
	r.m.WaitLoads()
	if n := r.rec.Loads("violin"); n != 1 {
		t.Fatalf("violin loaded %d times, want 1", n)
	}

	r.m.ToggleInstrument("violin")
	r.m.ToggleInstrument("violin")
	r.m.WaitLoads()
	if n := r.rec.Loads("violin"); n != 2 {
		t.Fatalf("toggling back on loaded %d times, want 2", n)
	}
}

func TestWaitLoadsCoversLoadsStartedWhileWaiting(t *testing.T) {
	r := newRig(t, withInstruments(piano))
	release := r.rec.BlockLoads()
	r.m.ToggleInstrument("violin")

	done := make(chan struct{})
	go func() {
		r.m.WaitLoads()
		close(done)
	}()
	r.m.ToggleInstrument("flute")
	select {
	case <-done:
		t.Fatal("WaitLoads returned while loads were blocked")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitLoads did not return")
	}
	if !r.pool.Active("violin") || !r.pool.Active("flute") {
		t.Fatal("voices not loaded")
	}
}

func TestSubdivisionChangedWhileStopped(t *testing.T) {
	s := withInstruments(piano, settings.Arpeggio)
	s.ArpeggioSubdivision = settings.Quarter
	r := newRig(t, s)

	r.store.SetSubdivision(settings.Sixteenth)
	r.m.Play()
	r.runTo(490 * time.Millisecond)
	arp := 0
	for _, n := range r.rec.Between(0, 500*time.Millisecond) {
		if n.Opts.Duration == 125*time.Millisecond {
			arp++
		}
	}
	if arp != 4 {
		t.Fatalf("got %d sixteenth notes in the first beat, want 4", arp)
	}

	// a change after stop must not leave a second loop behind
	r.m.Stop()
	r.store.SetSubdivision(settings.Eighth)
	r.rec.Reset()
	start := r.clk.Now()
	r.m.Play()
	r.runTo(start + 490*time.Millisecond)
	arp = 0
	for _, n := range r.rec.Between(start, start+500*time.Millisecond) {
		if n.Opts.Duration != ChordDuration {
			arp++
		}
	}
	if arp != 2 {
		t.Fatalf("got %d eighth notes in the first beat after restart, want 2", arp)
	}
}
