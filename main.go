package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	tea "github.com/charmbracelet/bubbletea"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"bandaid/api"
	"bandaid/audio"
	"bandaid/clock"
	"bandaid/collab"
	"bandaid/config"
	"bandaid/debug"
	"bandaid/midi"
	"bandaid/sequencer"
	"bandaid/settings"
	"bandaid/store"
	"bandaid/theme"
	"bandaid/tui"
	"bandaid/voice"
)

type options struct {
	server  string
	user    string
	backend string
	port    string
	samples string
	offline bool
	debug   bool
	render  string
	export  string
	bars    int
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		cfg = config.DefaultConfig()
	}

	var opt options
	flag.StringVar(&opt.server, "server", cfg.ServerURL, "backend URL")
	flag.StringVar(&opt.user, "user", cfg.User, "account whose settings are loaded")
	flag.StringVar(&opt.backend, "backend", string(cfg.Backend), "voice backend: midi, sampler or none")
	flag.StringVar(&opt.port, "port", cfg.MIDI.PortName, "MIDI output port (first port when empty)")
	flag.StringVar(&opt.samples, "samples", cfg.SamplesPath(), "sample directory")
	flag.BoolVar(&opt.offline, "offline", false, "keep settings in a local file and disable jams")
	flag.BoolVar(&opt.debug, "debug", cfg.Debug, "write "+debug.LogPath())
	flag.StringVar(&opt.render, "render", "", "render the saved settings to a WAV file and exit")
	flag.StringVar(&opt.export, "export", "", "export the saved settings as a MIDI file and exit")
	flag.IntVar(&opt.bars, "bars", 8, "bars to render or export")
	flag.Parse()

	if err := run(cfg, opt); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", issue(err))
		os.Exit(1)
	}
}

func issue(err error) string {
	if msg := fmsg.GetIssue(err); msg != "" {
		return msg
	}
	return err.Error()
}

func run(cfg *config.Config, opt options) error {
	if opt.debug {
		if err := debug.Enable(); err != nil {
			return err
		}
		defer debug.Disable()
	}
	// the dashboard owns the terminal
	log.SetOutput(debug.Writer("log"))

	if err := settings.ValidateInstruments(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	persist, err := persistence(opt)
	if err != nil {
		return err
	}

	initial, loadErr := persist.Load(ctx)
	if loadErr != nil {
		debug.Log("main", "load settings: %v", loadErr)
		initial = settings.Default()
		initial.BPM = settings.ClampBPM(cfg.UI.LastTempo)
	}

	if opt.render != "" || opt.export != "" {
		return renderFiles(ctx, initial, opt, cfg.MIDI.DrumKit)
	}

	clk, backend, stop, err := openBackend(ctx, config.Backend(opt.backend), opt, cfg)
	if err != nil {
		return err
	}
	defer stop()

	st := settings.NewStore(initial)
	tr := sequencer.NewTransport(clk, sequencer.WithLookahead(cfg.LookaheadDuration()))
	manager := sequencer.NewManager(st, tr, voice.NewPool(backend))
	if loadErr != nil {
		manager.Alerts.Fail(loadErr)
	}

	var jam tui.Collaborator
	if !opt.offline {
		c := collab.NewClient(opt.server)
		c.OnRemotePatch = func(p settings.Patch) { st.ApplyRemote(p) }
		c.OnError = manager.Alerts.Fail
		st.SetRelay(c)
		jam = c
		defer func() {
			if id := c.Session(); id != "" {
				c.Leave(id)
			}
		}()
	}

	manager.StartRuntime(ctx)

	th := theme.New(nil)
	if cfg.UI.Palette != "" {
		p, err := theme.LoadGPL(cfg.UI.Palette)
		if err != nil {
			debug.Log("main", "palette: %v", err)
		} else {
			th = theme.New(p)
		}
	}

	m := tui.NewModel(manager, persist, jam, th)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	manager.Stop()

	cfg.UI.LastTempo = st.Snapshot().BPM
	if err := cfg.Save(); err != nil {
		debug.Log("main", "save config: %v", err)
	}
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fault.Wrap(err, fmsg.With("run dashboard"))
	}
	return nil
}

func persistence(opt options) (settings.Persistence, error) {
	if !opt.offline {
		return api.NewClient(opt.server, opt.user), nil
	}
	dir, err := config.ConfigDir()
	if err != nil {
		return nil, fault.Wrap(err, fmsg.WithDesc("config dir", "Could not find the settings directory"))
	}
	user := opt.user
	if user == "" {
		user = store.DefaultUser
	}
	return store.Local{Docs: store.NewDocuments(filepath.Join(dir, "settings")), User: user}, nil
}

// openBackend returns the clock notes are scheduled against, the backend
// that plays them and a func releasing the device
func openBackend(ctx context.Context, kind config.Backend, opt options, cfg *config.Config) (clock.Clock, voice.Backend, func(), error) {
	switch kind {
	case config.BackendSampler:
		mixer := audio.NewMixer()
		player, err := audio.Start(mixer)
		if err != nil {
			return nil, nil, nil, err
		}
		stop := func() {
			if err := player.Close(); err != nil {
				debug.Log("audio", "close: %v", err)
			}
		}
		return mixer, audio.NewSampler(opt.samples, mixer), stop, nil

	case config.BackendNone:
		return clock.NewWall(), voice.Null{}, func() {}, nil
	}

	clk := clock.NewWall()
	out := midi.NewOutput(nil, clk, midi.GetKit(cfg.MIDI.DrumKit))
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		out.Run(runCtx)
	}()
	go watchPorts(runCtx, out, opt.port)

	stop := func() {
		cancel()
		<-done
		out.Close()
	}
	return clk, out, stop, nil
}

// watchPorts attaches out to the wanted port whenever it shows up and
// detaches it when it goes away
func watchPorts(ctx context.Context, out *midi.Output, name string) {
	w := midi.NewPortWatcher()
	go w.Run(ctx)

	attached := false
	attach := func() {
		send, err := midi.OpenSender(name)
		if err != nil {
			debug.Log("midi", "attach %q: %v", name, err)
			return
		}
		out.SetSender(send)
		attached = true
		debug.Log("midi", "attached output %q", name)
	}

	for ev := range w.Events() {
		switch ev.Type {
		case midi.PortConnected:
			if !attached {
				attach()
			}
		case midi.PortDisconnected:
			out.SetSender(nil)
			attached = false
			attach()
		}
	}
}

func renderFiles(ctx context.Context, s settings.Settings, opt options, kit string) error {
	write := func(path string, fn func(io.Writer) error) error {
		f, err := os.Create(path)
		if err != nil {
			return fault.Wrap(err, fmsg.WithDesc("create output", fmt.Sprintf("Could not create %s", path)))
		}
		if err := fn(f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}

	if opt.render != "" {
		err := write(opt.render, func(w io.Writer) error {
			return audio.RenderWAV(ctx, w, s, opt.bars, opt.samples)
		})
		if err != nil {
			return err
		}
		fmt.Printf("Rendered %d bars to %s\n", opt.bars, opt.render)
	}
	if opt.export != "" {
		err := write(opt.export, func(w io.Writer) error {
			return midi.Export(ctx, w, s, opt.bars, midi.GetKit(kit))
		})
		if err != nil {
			return err
		}
		fmt.Printf("Exported %d bars to %s\n", opt.bars, opt.export)
	}
	return nil
}
