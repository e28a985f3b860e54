package mapper

import (
	"errors"
	"fmt"
	"time"

	"dmxmapper/internal/dmx"
	"dmxmapper/internal/logger"
)

// Settings is what the mapper needs from the configuration.
type Settings struct {
	Channels     []int  // Channels - source channel per output channel.
	ChannelCount int    // ChannelCount - size of the output frame.
	Input        uint16 // Input - universe frames are read from.
	Output       uint16 // Output - universe frames are sent to.
}

// Mapper copies input channels to output channels by a static table
// and forwards every remapped frame to the output universe.
type Mapper struct {
	log    logger.Logger
	client dmx.Client
	table  []int
	input  uint16
	output uint16
	out    []byte
	stats  Statistics
	now    func() time.Time
}

// New validates the table against the output frame size and allocates the output frame.
func New(log logger.Logger, client dmx.Client, s Settings) (*Mapper, error) {
	if s.ChannelCount < 1 || s.ChannelCount > dmx.MaxChannels {
		return nil, fmt.Errorf("channel count %d is outside 1..%d", s.ChannelCount, dmx.MaxChannels)
	}
	if len(s.Channels) > s.ChannelCount {
		return nil, fmt.Errorf("mapping table has %d entries, output frame has %d channels", len(s.Channels), s.ChannelCount)
	}
	for i, ch := range s.Channels {
		if ch < 0 {
			return nil, fmt.Errorf("mapping table entry %d is negative (%d)", i, ch)
		}
	}

	return &Mapper{
		log:    log,
		client: client,
		table:  append([]int(nil), s.Channels...),
		input:  s.Input,
		output: s.Output,
		out:    make([]byte, s.ChannelCount),
		now:    time.Now,
	}, nil
}

// Start registers the mapper for frames of the input universe.
func (m *Mapper) Start() error {
	if err := m.client.RegisterUniverse(m.input, m); err != nil {
		return fmt.Errorf("failed to register universe %d: %w", m.input, err)
	}
	m.log.With(logger.Fields{"module": "mapper"}).Infof("mapping universe %d -> %d, %d entries, %d channels",
		m.input, m.output, len(m.table), len(m.out))
	return nil
}

// Apply remaps one input frame into the output frame and returns it.
// Table entries beyond the input frame leave their output channel unchanged.
// The returned slice is owned by the mapper and is overwritten by the next call.
func (m *Mapper) Apply(input []byte) []byte {
	for i, src := range m.table {
		if src < len(input) {
			m.out[i] = input[src]
		}
	}
	return m.out
}

// OnFrame implements dmx.FrameSink.
func (m *Mapper) OnFrame(frame []byte) {
	start := m.now()
	m.client.SendDMX(m.output, m.Apply(frame), m.sendCallback)
	m.stats.add(m.now().Sub(start))
}

func (m *Mapper) sendCallback(err error) {
	if err == nil {
		return
	}
	log := m.log.With(logger.Fields{"module": "mapper", "universe": m.output})
	if errors.Is(err, dmx.ErrUnavailable) {
		log.Errorf("transport not running anymore: %v", err)
	} else {
		log.Warnf("sending frame did not succeed: %v", err)
	}
	m.client.Stop()
}

// Output returns the current output frame.
func (m *Mapper) Output() []byte {
	return m.out
}

// Stats returns a snapshot of the timing statistics.
func (m *Mapper) Stats() Statistics {
	return m.stats
}
