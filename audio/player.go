package audio

import (
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/ebitengine/oto/v3"
)

// Device buffer. Must stay well under the transport lookahead.
const deviceBuffer = 20 * time.Millisecond

// Player streams a Mixer to the default sound device
type Player struct {
	ctx    *oto.Context
	player *oto.Player
}

// Start opens the sound device and starts pulling from m
func Start(m *Mixer) (*Player, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   deviceBuffer,
	})
	if err != nil {
		return nil, fault.Wrap(err, fmsg.WithDesc("oto context", "Could not open the sound device"))
	}
	<-ready

	p := ctx.NewPlayer(m)
	p.SetBufferSize(int(DurationToFrames(deviceBuffer)) * 2)
	p.Play()
	return &Player{ctx: ctx, player: p}, nil
}

// Close stops playback
func (p *Player) Close() error {
	p.player.Pause()
	if err := p.player.Close(); err != nil {
		return fault.Wrap(err, fmsg.With("close oto player"))
	}
	return nil
}
