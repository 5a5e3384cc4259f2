package voice

import (
	"context"
	"time"

	"bandaid/settings"
	"bandaid/theory"
)

// Null accepts every note and plays nothing
type Null struct{}

type nullHandle struct{}

func (nullHandle) Play(theory.Note, time.Duration, PlayOptions) {}
func (nullHandle) Hit(Piece, time.Duration, PlayOptions)        {}

func (Null) Load(context.Context, settings.Instrument) (Handle, error) { return nullHandle{}, nil }
func (Null) LoadDrums(context.Context) (DrumHandle, error)            { return nullHandle{}, nil }
func (Null) CancelScheduled()                                         {}
