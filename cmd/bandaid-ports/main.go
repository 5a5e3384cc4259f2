// Command bandaid-ports lists MIDI outputs and plays test notes through
// them, to check a synth before starting the dashboard.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/Southclaws/fault/fmsg"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"bandaid/clock"
	"bandaid/midi"
	"bandaid/settings"
	"bandaid/theory"
	"bandaid/voice"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	var err error
	switch os.Args[1] {
	case "list":
		err = listPorts()
	case "poll":
		err = pollPorts()
	case "chord":
		err = playChord(arg(2), arg(3))
	case "drums":
		err = playDrums(arg(2), arg(3))
	case "kits":
		fmt.Println(strings.Join(midi.KitNames(), "\n"))
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", issue(err))
		os.Exit(1)
	}
}

func arg(i int) string {
	if len(os.Args) > i {
		return os.Args[i]
	}
	return ""
}

func issue(err error) string {
	if msg := fmsg.GetIssue(err); msg != "" {
		return msg
	}
	return err.Error()
}

func usage() {
	fmt.Println("BandAid MIDI port check")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list                  - List MIDI output ports")
	fmt.Println("  poll                  - Watch for ports coming and going")
	fmt.Println("  chord [port] [instr]  - Play the I-vi-IV-V chords once")
	fmt.Println("  drums [port] [kit]    - Play kick, snare and hihat")
	fmt.Println("  kits                  - List drum kit mappings")
}

func listPorts() error {
	fmt.Println("=== MIDI Output Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")
	names, err := midi.OutputPorts()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("  none")
	}
	for i, n := range names {
		fmt.Printf("  %d: %s\n", i, n)
	}
	return nil
}

func pollPorts() error {
	fmt.Println("Polling for port changes every second. Ctrl+C to exit.")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	w := midi.NewPortWatcher()
	go w.Run(ctx)
	for ev := range w.Events() {
		verb := "connected"
		if ev.Type == midi.PortDisconnected {
			verb = "disconnected"
		}
		fmt.Printf("[%s] %s %s\n", time.Now().Format("15:04:05"), ev.Name, verb)
	}
	return nil
}

// open starts an output on a wall clock and returns a stop function that
// waits for the queue to drain
func open(port, kit string) (*midi.Output, clock.Clock, func(), error) {
	clk := clock.NewWall()
	out, err := midi.Open(port, clk, midi.GetKit(kit))
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		out.Run(ctx)
		close(done)
	}()
	stop := func() {
		for out.Pending() > 0 {
			time.Sleep(10 * time.Millisecond)
		}
		cancel()
		<-done
		out.Close()
	}
	return out, clk, stop, nil
}

func playChord(port, id string) error {
	if id == "" {
		id = "acoustic_grand_piano"
	}
	in, ok := settings.LookupInstrument(id)
	if !ok {
		return fmt.Errorf("unknown instrument %q", id)
	}
	out, clk, stop, err := open(port, "")
	if err != nil {
		return err
	}
	defer stop()

	h, err := out.Load(context.Background(), in)
	if err != nil {
		return err
	}
	start := clk.Now() + 100*time.Millisecond
	for i := range theory.Progression {
		at := start + time.Duration(i)*time.Second
		fmt.Printf("  %s\n", theory.ChordName("C", 0, i))
		for _, n := range theory.ChordNotes("C", 0, i, 0).Notes() {
			h.Play(n, at, voice.PlayOptions{Gain: in.DefaultGain, Duration: 900 * time.Millisecond})
		}
	}
	return nil
}

func playDrums(port, kit string) error {
	out, clk, stop, err := open(port, kit)
	if err != nil {
		return err
	}
	defer stop()

	d, err := out.LoadDrums(context.Background())
	if err != nil {
		return err
	}
	start := clk.Now() + 100*time.Millisecond
	for i, p := range []voice.Piece{voice.Kick, voice.Snare, voice.HiHat} {
		fmt.Printf("  %s\n", p)
		d.Hit(p, start+time.Duration(i)*500*time.Millisecond, voice.PlayOptions{Gain: 2})
	}
	return nil
}
