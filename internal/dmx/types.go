package dmx

import (
	"context"
	"errors"
)

// MaxChannels is the number of channels in one DMX512 universe.
const MaxChannels = 512

var (
	// ErrUnavailable reports that the transport cannot be reached (not started, closed, disconnected).
	ErrUnavailable = errors.New("transport unavailable")
	// ErrSendFailed reports that the transport accepted the frame but could not deliver it.
	ErrSendFailed = errors.New("send did not succeed")
)

// FrameSink receives every frame of a registered universe.
type FrameSink interface {
	OnFrame(frame []byte)
}

// SendCallback reports the result of SendDMX. err is nil on success.
type SendCallback func(err error)

// Client is a connection to a lighting network.
// Sink and completion callbacks run on the goroutine that called Run, one at a time.
type Client interface {
	// RegisterUniverse subscribes sink to frames of the given universe.
	RegisterUniverse(universe uint16, sink FrameSink) error
	// SendDMX transmits one frame on universe and reports the result via done.
	SendDMX(universe uint16, data []byte, done SendCallback)
	// Run blocks until Stop is called or ctx is done.
	Run(ctx context.Context) error
	// Stop makes Run return. Safe to call from callbacks and more than once.
	Stop()
}
