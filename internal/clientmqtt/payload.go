package clientmqtt

import (
	"encoding/json"
	"fmt"

	"dmxmapper/internal/dmx"
	"github.com/fxamacker/cbor/v2"
)

type codec interface {
	Marshal(p Payload) ([]byte, error)
	Unmarshal(b []byte, p *Payload) error
}

type jsonCodec struct{}

func (jsonCodec) Marshal(p Payload) ([]byte, error)    { return json.Marshal(p) }
func (jsonCodec) Unmarshal(b []byte, p *Payload) error { return json.Unmarshal(b, p) }

type cborCodec struct{}

func (cborCodec) Marshal(p Payload) ([]byte, error)    { return cbor.Marshal(p) }
func (cborCodec) Unmarshal(b []byte, p *Payload) error { return cbor.Unmarshal(b, p) }

func newCodec(encoding string) (codec, error) {
	switch encoding {
	case "", "json":
		return jsonCodec{}, nil
	case "cbor":
		return cborCodec{}, nil
	}
	return nil, fmt.Errorf("unknown payload encoding %q", encoding)
}

// framePayload lists every channel of a frame.
func framePayload(data []byte) Payload {
	p := make(Payload, len(data))
	for i, v := range data {
		p[i] = DMXCommand{Channel: uint16(i), Value: v}
	}
	return p
}

// universeState is the last known value of every channel of an input universe.
// Frames cover channels up to the highest one ever set.
type universeState struct {
	channels [dmx.MaxChannels]byte
	length   int
}

// apply stores the commands and returns the current frame. Channels outside the universe are skipped.
func (s *universeState) apply(p Payload) []byte {
	for _, cmd := range p {
		if int(cmd.Channel) >= dmx.MaxChannels {
			continue
		}
		s.channels[cmd.Channel] = cmd.Value
		if int(cmd.Channel) >= s.length {
			s.length = int(cmd.Channel) + 1
		}
	}
	return s.channels[:s.length]
}
