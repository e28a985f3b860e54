package clientmqtt

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"dmxmapper/internal/config"
	"dmxmapper/internal/dmx"
	"dmxmapper/internal/logger"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type recordingSink struct {
	frames [][]byte
}

func (s *recordingSink) OnFrame(frame []byte) {
	s.frames = append(s.frames, append([]byte(nil), frame...))
}

func newTestClient(t *testing.T, encoding string) *ClientMQTT {
	t.Helper()
	log, err := logger.NewLogger(config.Log{Level: "debug"})
	require.NoError(t, err)
	log.Logger.SetOutput(io.Discard)

	c, err := NewClient(log, MQTTConf{Host: "localhost", Port: "1883", Topic: "dmx", Encoding: encoding})
	require.NoError(t, err)
	return c
}

func TestNewClientDefaults(t *testing.T) {
	c := newTestClient(t, "json")
	assert.Equal(t, "tcp", c.cfgClient.Schema)
	assert.True(t, strings.HasPrefix(c.cfgClient.ClientID, "dmxmapper-"))
	assert.Equal(t, nameTopic("dmx/3/in"), c.inTopic(3))
	assert.Equal(t, nameTopic("dmx/4/out"), c.outTopic(4))

	log, err := logger.NewLogger(config.Log{Level: "info"})
	require.NoError(t, err)
	_, err = NewClient(log, MQTTConf{Encoding: "xml"})
	require.Error(t, err)
}

func TestCodecs(t *testing.T) {
	frame := []byte{0, 128, 255}
	for _, encoding := range []string{"json", "cbor"} {
		c, err := newCodec(encoding)
		require.NoError(t, err)

		b, err := c.Marshal(framePayload(frame))
		require.NoError(t, err)

		var p Payload
		require.NoError(t, c.Unmarshal(b, &p), encoding)
		assert.Equal(t, Payload{{0, 0}, {1, 128}, {2, 255}}, p, encoding)
	}
}

func TestJSONPayloadShape(t *testing.T) {
	b, err := jsonCodec{}.Marshal(Payload{{Channel: 5, Value: 9}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"channel": 5, "value": 9}]`, string(b))
}

func TestUniverseState(t *testing.T) {
	var s universeState
	assert.Empty(t, s.apply(nil))

	frame := s.apply(Payload{{Channel: 2, Value: 7}})
	assert.Equal(t, []byte{0, 0, 7}, frame)

	frame = s.apply(Payload{{Channel: 0, Value: 1}, {Channel: 600, Value: 3}})
	assert.Equal(t, []byte{1, 0, 7}, frame)
}

func TestMessageDispatch(t *testing.T) {
	c := newTestClient(t, "json")
	sink := &recordingSink{}
	require.NoError(t, c.RegisterUniverse(1, sink))
	require.Error(t, c.RegisterUniverse(1, sink))

	handler := c.messageHandler(1)
	handler(nil, &fakeMessage{topic: "dmx/1/in", payload: []byte(`[{"channel": 1, "value": 50}]`)})
	handler(nil, &fakeMessage{topic: "dmx/1/in", payload: []byte(`not json`)})
	handler(nil, &fakeMessage{topic: "dmx/1/in", payload: []byte(`[{"channel": 0, "value": 9}]`)})

	for i := 0; i < 3; i++ {
		c.dispatch(<-c.events)
	}

	require.Len(t, sink.frames, 2)
	assert.Equal(t, []byte{0, 50}, sink.frames[0])
	assert.Equal(t, []byte{9, 50}, sink.frames[1])
}

func TestCompletionDispatch(t *testing.T) {
	c := newTestClient(t, "cbor")

	var got error
	c.post(event{universe: 2, done: func(err error) { got = err }, err: dmx.ErrSendFailed})
	c.dispatch(<-c.events)
	assert.ErrorIs(t, got, dmx.ErrSendFailed)
}

func TestSendWithoutConnection(t *testing.T) {
	c := newTestClient(t, "json")

	var got error
	c.SendDMX(2, []byte{1, 2, 3}, func(err error) { got = err })
	assert.ErrorIs(t, got, dmx.ErrUnavailable)

	assert.ErrorIs(t, c.Run(context.Background()), dmx.ErrUnavailable)
}

func TestRunReturnsWhenConnectionLost(t *testing.T) {
	c := newTestClient(t, "json")
	sink := &recordingSink{}
	require.NoError(t, c.RegisterUniverse(1, sink))
	// not connected; Run only needs a client to exist
	c.client = mqtt.NewClient(mqtt.NewClientOptions())

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	c.messageHandler(1)(nil, &fakeMessage{topic: "dmx/1/in", payload: []byte(`[{"channel": 0, "value": 1}]`)})
	c.connectLostHandler(nil, errors.New("EOF"))

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, dmx.ErrUnavailable)
		assert.Contains(t, err.Error(), "EOF")
	case <-time.After(5 * time.Second):
		t.Fatal("run loop did not return after the connection was lost")
	}
	require.Len(t, sink.frames, 1)
}

func TestStopUnblocksPost(t *testing.T) {
	c := newTestClient(t, "json")
	c.Stop()
	c.Stop()

	for i := 0; i < cap(c.events)+1; i++ {
		c.post(event{universe: 1})
	}
}
