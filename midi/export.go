package midi

import (
	"context"
	"io"
	"math"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"gitlab.com/gomidi/midi/v2/smf"

	"bandaid/sequencer"
	"bandaid/settings"
)

// Resolution of exported files
const exportPPQ = 960

// Export renders bars measures of s and writes them to w as a standard
// MIDI file
func Export(ctx context.Context, w io.Writer, s settings.Settings, bars int, kit DrumKit) error {
	out := NewOutput(nil, nil, kit)
	if err := sequencer.Render(ctx, s, bars, out); err != nil {
		return err
	}
	return WriteSMF(w, out.Drain(), settings.ClampBPM(s.BPM))
}

// WriteSMF writes events, sorted by time, as a single track at a constant
// tempo
func WriteSMF(w io.Writer, events []Event, bpm int) error {
	var tr smf.Track
	tr.Add(0, smf.MetaMeter(4, 4))
	tr.Add(0, smf.MetaTempo(float64(bpm)))

	var last uint32
	for _, e := range events {
		msg := e.Message()
		if msg == nil {
			continue
		}
		tick := toTicks(e.At, bpm)
		tr.Add(tick-last, msg)
		last = tick
	}
	tr.Close(0)

	file := smf.New()
	file.TimeFormat = smf.MetricTicks(exportPPQ)
	if err := file.Add(tr); err != nil {
		return fault.Wrap(err, fmsg.WithDesc("add track", "Could not build MIDI file"))
	}
	if _, err := file.WriteTo(w); err != nil {
		return fault.Wrap(err, fmsg.WithDesc("write smf", "Could not write MIDI file"))
	}
	return nil
}

func toTicks(at time.Duration, bpm int) uint32 {
	if at <= 0 {
		return 0
	}
	return uint32(math.Round(at.Seconds() * float64(bpm) / 60 * exportPPQ))
}
