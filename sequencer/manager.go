package sequencer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"bandaid/debug"
	"bandaid/settings"
	"bandaid/voice"
)

// UI refresh rate while playing
const uiFPS = 30

// State is what the dashboard shows about playback
type State struct {
	Playing     bool
	Tempo       int
	ChordIndex  int // -1 when nothing is sounding
	Bar         int
	Beat        int
	Step        int // drum step within the bar
	Subdivision settings.Subdivision
}

// Manager orchestrates the transport, the three sequencers and the voice
// pool against one settings store
type Manager struct {
	store     *settings.Store
	transport *Transport
	pool      *voice.Pool

	chords *ChordSequencer
	arp    *ArpeggioSequencer
	drums  *Percussion

	Alerts Alerts

	playMu     sync.Mutex // serializes Play and Stop
	playing    atomic.Bool
	chordIndex atomic.Int32

	ctxMu sync.Mutex
	ctx   context.Context

	loadMu   sync.Mutex
	loadDone *sync.Cond // signalled when loading drops to zero
	loading  int

	// Notify TUI of updates
	UpdateChan chan struct{}
}

// NewManager wires the sequencers to store and pool. Voices for instruments
// already enabled in store are loaded by StartRuntime.
func NewManager(store *settings.Store, t *Transport, pool *voice.Pool) *Manager {
	m := &Manager{
		store:      store,
		transport:  t,
		pool:       pool,
		ctx:        context.Background(),
		UpdateChan: make(chan struct{}, 1),
	}
	m.loadDone = sync.NewCond(&m.loadMu)
	m.chordIndex.Store(-1)
	m.chords = NewChordSequencer(t, store, pool, m.setChordIndex)
	m.arp = NewArpeggioSequencer(t, store, pool)
	m.drums = NewPercussion(t, store, pool)
	t.SetTempo(store.Snapshot().BPM)
	store.Subscribe(m.onChange)
	return m
}

// StartRuntime starts the transport loop and UI ticker and loads the drum
// kit plus every enabled instrument (called once at startup)
func (m *Manager) StartRuntime(ctx context.Context) {
	m.ctxMu.Lock()
	m.ctx = ctx
	m.ctxMu.Unlock()

	go m.transport.Run(ctx)
	go m.uiLoop(ctx)

	m.startLoad()
	go func() {
		defer m.endLoad()
		if err := m.pool.LoadDrums(ctx); err != nil {
			debug.Log("voice", "drums: %v", err)
			m.Alerts.Fail(err)
		}
	}()
	for _, id := range m.store.Snapshot().ActiveInstruments.IDs() {
		m.activate(id)
	}
}

// WaitLoads blocks until no voice load is in flight. Loads started while
// waiting are waited for too.
func (m *Manager) WaitLoads() {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	for m.loading > 0 {
		m.loadDone.Wait()
	}
}

func (m *Manager) startLoad() {
	m.loadMu.Lock()
	m.loading++
	m.loadMu.Unlock()
}

func (m *Manager) endLoad() {
	m.loadMu.Lock()
	m.loading--
	if m.loading == 0 {
		m.loadDone.Broadcast()
	}
	m.loadMu.Unlock()
}

// Play starts playback. A no-op while playing or with no instrument
// enabled.
func (m *Manager) Play() bool {
	m.playMu.Lock()
	if m.playing.Load() {
		m.playMu.Unlock()
		return false
	}
	s := m.store.Snapshot()
	if len(s.ActiveInstruments) == 0 {
		m.playMu.Unlock()
		m.Alerts.Update("Select at least one instrument", Warning, alertDuration)
		m.notifyUpdate()
		return false
	}

	// Loops registered on a stopped transport begin at tick 0 when it starts
	m.transport.SetTempo(s.BPM)
	m.drums.Start()
	m.chords.Start()
	m.arp.Start()
	m.playing.Store(true)
	m.transport.Start()
	m.playMu.Unlock()

	debug.Log("manager", "play bpm=%d instruments=%v", s.BPM, s.ActiveInstruments.IDs())
	m.transport.Interrupt()
	m.notifyUpdate()
	return true
}

// Stop halts playback, cancels every scheduled callback and note and
// clears the chord highlight. A no-op while stopped.
func (m *Manager) Stop() bool {
	m.playMu.Lock()
	defer m.playMu.Unlock()
	if !m.playing.Load() {
		return false
	}
	m.playing.Store(false)
	m.transport.Stop()
	m.arp.Stop()
	m.pool.CancelScheduled()
	m.chordIndex.Store(-1)
	debug.Log("manager", "stop")
	m.notifyUpdate()
	return true
}

// TogglePlay plays when stopped and stops when playing
func (m *Manager) TogglePlay() {
	if m.Playing() {
		m.Stop()
	} else {
		m.Play()
	}
}

// Playing reports whether playback is running
func (m *Manager) Playing() bool {
	return m.playing.Load()
}

// GetState returns the current playback state
func (m *Manager) GetState() State {
	st := State{
		Playing:    m.playing.Load(),
		ChordIndex: int(m.chordIndex.Load()),
	}
	st.Tempo = m.transport.Tempo()
	bar, beat, sixteenth := m.transport.Position()
	st.Bar, st.Beat, st.Step = bar, beat, beat*2+sixteenth/2
	st.Subdivision = m.arp.Subdivision()
	if !st.Playing {
		st.Subdivision = m.store.Snapshot().ArpeggioSubdivision
	}
	return st
}

// Store returns the settings store the manager reads
func (m *Manager) Store() *settings.Store {
	return m.store
}

// ToggleInstrument flips an instrument in the store. The voice loads in
// the background once the store has changed.
func (m *Manager) ToggleInstrument(id string) {
	if _, err := m.store.ToggleInstrument(id); err != nil {
		m.Alerts.Fail(err)
		m.notifyUpdate()
	}
}

func (m *Manager) setChordIndex(idx int) {
	if m.playing.Load() {
		m.chordIndex.Store(int32(idx))
	}
	m.notifyUpdate()
}

// onChange runs under the store lock for every applied patch
func (m *Manager) onChange(c settings.Change) {
	if c.Next.BPM != c.Prev.BPM {
		m.transport.SetTempo(c.Next.BPM)
	}
	if c.Next.ArpeggioSubdivision != c.Prev.ArpeggioSubdivision {
		m.arp.Restart(c.Next.ArpeggioSubdivision)
		debug.Log("manager", "arpeggio at %s", c.Next.ArpeggioSubdivision)
	}
	// A voice that failed to load is retried only when it is switched on again
	for id := range c.Next.ActiveInstruments {
		if _, was := c.Prev.ActiveInstruments[id]; !was {
			m.activate(id)
		}
	}
	for id := range c.Prev.ActiveInstruments {
		if _, still := c.Next.ActiveInstruments[id]; !still {
			m.pool.Deactivate(id)
		}
	}
	m.notifyUpdate()
}

// activate loads a voice without blocking the caller. If the instrument
// was switched off while loading, the handle is dropped again.
func (m *Manager) activate(id string) {
	m.ctxMu.Lock()
	ctx := m.ctx
	m.ctxMu.Unlock()

	m.startLoad()
	go func() {
		defer m.endLoad()
		if err := m.pool.Activate(ctx, id); err != nil {
			debug.Log("voice", "activate %s: %v", id, err)
			m.Alerts.Fail(err)
			m.notifyUpdate()
			return
		}
		if !m.store.Enabled(id) {
			m.pool.Deactivate(id)
		}
		m.notifyUpdate()
	}()
}

// uiLoop nudges the dashboard while playing so the playhead moves
func (m *Manager) uiLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second / uiFPS)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.Playing() {
				m.notifyUpdate()
			}
		}
	}
}

// notifyUpdate tells the TUI to redraw (non-blocking)
func (m *Manager) notifyUpdate() {
	select {
	case m.UpdateChan <- struct{}{}:
	default:
	}
}
