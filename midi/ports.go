package midi

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"bandaid/debug"
)

// CoreMIDI can hang on port enumeration
const portTimeout = 3 * time.Second

func outPorts() ([]drivers.Out, error) {
	ch := make(chan []drivers.Out, 1)
	go func() {
		ch <- gomidi.GetOutPorts()
	}()
	select {
	case outs := <-ch:
		return outs, nil
	case <-time.After(portTimeout):
		return nil, fault.New("midi port scan timed out",
			ftag.With(ftag.Internal),
			fmsg.WithDesc("GetOutPorts did not return", "MIDI system is not responding"))
	}
}

// OutputPorts lists the names of the MIDI output ports
func OutputPorts() ([]string, error) {
	outs, err := outPorts()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(outs))
	for _, p := range outs {
		names = append(names, p.String())
	}
	return names, nil
}

// OpenSender opens the output port called name. An empty name opens the
// first port; otherwise an exact match wins over a case-insensitive
// substring match.
func OpenSender(name string) (func(gomidi.Message) error, error) {
	outs, err := outPorts()
	if err != nil {
		return nil, err
	}
	port := pickPort(outs, name)
	if port == nil {
		return nil, fault.New("midi port not found",
			ftag.With(ftag.NotFound),
			fmsg.WithDesc("no output port matching "+name, "MIDI output not found: "+name))
	}
	send, err := gomidi.SendTo(port)
	if err != nil {
		return nil, fault.Wrap(err, fmsg.WithDesc("open "+port.String(), "Could not open MIDI output "+port.String()))
	}
	debug.Log("midi", "opened %s", port.String())
	return send, nil
}

func pickPort(outs []drivers.Out, name string) drivers.Out {
	if len(outs) == 0 {
		return nil
	}
	if name == "" {
		return outs[0]
	}
	for _, p := range outs {
		if p.String() == name {
			return p
		}
	}
	lower := strings.ToLower(name)
	for _, p := range outs {
		if strings.Contains(strings.ToLower(p.String()), lower) {
			return p
		}
	}
	return nil
}

// PortEvent is emitted when an output port appears or goes away
type PortEvent struct {
	Type PortEventType
	Name string
}

type PortEventType int

const (
	PortConnected PortEventType = iota
	PortDisconnected
)

// PortWatcher handles hot-plug detection of MIDI output ports
type PortWatcher struct {
	mu       sync.RWMutex
	ports    map[string]bool
	events   chan PortEvent
	pollRate time.Duration
	list     func() ([]string, error)
}

// NewPortWatcher creates a watcher polling the system ports
func NewPortWatcher() *PortWatcher {
	return &PortWatcher{
		ports:    make(map[string]bool),
		events:   make(chan PortEvent, 16),
		pollRate: time.Second,
		list:     OutputPorts,
	}
}

// Events returns a channel of connect/disconnect events. It is closed when
// Run returns.
func (w *PortWatcher) Events() <-chan PortEvent {
	return w.events
}

// Ports returns the names seen by the last scan, sorted
func (w *PortWatcher) Ports() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	names := make([]string, 0, len(w.ports))
	for n := range w.ports {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Run starts the polling loop (blocking - run in goroutine)
func (w *PortWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollRate)
	defer ticker.Stop()
	defer close(w.events)

	w.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

func (w *PortWatcher) scan(ctx context.Context) {
	names, err := w.list()
	if err != nil {
		// Hung driver; skip this scan
		debug.Log("midi", "scan: %v", err)
		return
	}

	seen := make(map[string]bool, len(names))
	var evs []PortEvent
	w.mu.Lock()
	for _, n := range names {
		seen[n] = true
		if !w.ports[n] {
			evs = append(evs, PortEvent{Type: PortConnected, Name: n})
		}
	}
	for n := range w.ports {
		if !seen[n] {
			evs = append(evs, PortEvent{Type: PortDisconnected, Name: n})
		}
	}
	w.ports = seen
	w.mu.Unlock()

	for _, ev := range evs {
		select {
		case w.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}
