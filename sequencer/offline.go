package sequencer

import (
	"context"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"

	"bandaid/clock"
	"bandaid/settings"
	"bandaid/voice"
)

// Offline render step. Small enough that every event lands inside one
// lookahead window.
const renderStep = 10 * time.Millisecond

// Render plays bars measures of s into b as fast as possible on a manual
// clock. Every voice is loaded before the first bar; notes handed to b
// carry times measured from the start of the render.
func Render(ctx context.Context, s settings.Settings, bars int, b voice.Backend) error {
	if bars <= 0 {
		return fault.New("render needs at least one bar",
			ftag.With(ftag.InvalidArgument),
			fmsg.WithDesc("bars must be positive", "Nothing to render"))
	}

	clk := &clock.Manual{}
	t := NewTransport(clk)
	store := settings.NewStore(s)
	pool := voice.NewPool(b)

	if err := pool.LoadDrums(ctx); err != nil {
		return err
	}
	for _, id := range store.EnabledIDs() {
		if err := pool.Activate(ctx, id); err != nil {
			return err
		}
	}

	m := NewManager(store, t, pool)
	if !m.Play() {
		return fault.New("no instruments enabled",
			ftag.With(ftag.InvalidArgument),
			fmsg.WithDesc("render with empty instrument set", "Select at least one instrument"))
	}

	end := t.Duration(int64(bars) * TicksPerBar)
	for now := time.Duration(0); ; now += renderStep {
		if err := ctx.Err(); err != nil {
			t.Stop()
			return fault.Wrap(err, fmsg.WithDesc("render cancelled", "Render cancelled"))
		}
		last := now+t.lookahead >= end
		if last {
			// Stop the horizon one nanosecond short of the next bar
			now = end - t.lookahead - 1
		}
		clk.Set(now)
		t.Process()
		if last {
			break
		}
	}

	// Not Manager.Stop: offline backends keep what was scheduled
	t.Stop()
	return nil
}
