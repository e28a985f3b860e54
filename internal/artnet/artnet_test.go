package artnet

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"dmxmapper/internal/config"
	"dmxmapper/internal/dmx"
	"dmxmapper/internal/logger"
	"github.com/Haba1234/go-artnet/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinkFunc func(frame []byte)

func (f sinkFunc) OnFrame(frame []byte) { f(frame) }

func testLogger(t *testing.T) *logger.Log {
	t.Helper()
	log, err := logger.NewLogger(config.Log{Level: "debug"})
	require.NoError(t, err)
	log.Logger.SetOutput(io.Discard)
	return log
}

func dmxPacket(t *testing.T, universe uint16, data []byte) []byte {
	t.Helper()
	c := &Client{}
	addr := c.universeToAddress(universe)
	p := packet.NewArtDMXPacket()
	p.Net = addr.Net
	p.SubUni = addr.SubUni
	copy(p.Data[:], data)
	b, err := marshalDMX(p, len(data))
	require.NoError(t, err)
	return b
}

func TestUniverseAddress(t *testing.T) {
	c := &Client{}
	for _, u := range []uint16{0, 1, 15, 16, 255, 256, 0x7fff} {
		addr := c.universeToAddress(u)
		assert.Equal(t, uint8(u>>8), addr.Net)
		assert.Equal(t, uint8(u), addr.SubUni)
		assert.Equal(t, u, addressToUniverse(addr))
	}
}

func TestFrameLength(t *testing.T) {
	assert.Equal(t, 2, frameLength(0))
	assert.Equal(t, 2, frameLength(1))
	assert.Equal(t, 240, frameLength(240))
	assert.Equal(t, 242, frameLength(241))
	assert.Equal(t, 512, frameLength(512))
}

func TestMarshalDMXCarriesFrameLength(t *testing.T) {
	p := packet.NewArtDMXPacket()
	p.SubUni = 5
	copy(p.Data[:], []byte{1, 2, 3})

	b, err := marshalDMX(p, 3)
	require.NoError(t, err)
	require.Len(t, b, dmxHeaderLen+4)
	assert.Equal(t, []byte{0, 4}, b[16:18])

	decoded, err := packet.Unmarshal(b)
	require.NoError(t, err)
	out, ok := decoded.(*packet.ArtDMXPacket)
	require.True(t, ok)
	assert.Equal(t, uint16(4), out.Length)
	assert.Equal(t, uint8(5), out.SubUni)
	assert.Equal(t, []byte{1, 2, 3, 0}, out.Data[:4])
	// channels past the frame are not on the wire
	assert.Equal(t, make([]byte, 508), out.Data[4:])
}

func TestHandlePacketFrameLength(t *testing.T) {
	c, err := NewClient(testLogger(t), Conf{Listen: "127.0.0.1:0", Target: "127.0.0.1:6454"})
	require.NoError(t, err)

	var lengths []int
	require.NoError(t, c.RegisterUniverse(1, sinkFunc(func(frame []byte) {
		lengths = append(lengths, len(frame))
	})))

	c.handlePacket(dmxPacket(t, 1, make([]byte, 240)))
	c.handlePacket(dmxPacket(t, 1, make([]byte, 7)))
	c.handlePacket(dmxPacket(t, 1, make([]byte, 512)))
	assert.Equal(t, []int{240, 8, 512}, lengths)
}

func TestBroadcastAddr(t *testing.T) {
	ip, err := broadcastAddr("192.168.6.0/24")
	require.NoError(t, err)
	assert.Equal(t, "192.168.6.255", ip.String())

	ip, err = broadcastAddr("10.0.0.0/8")
	require.NoError(t, err)
	assert.Equal(t, "10.255.255.255", ip.String())

	_, err = broadcastAddr("fe80::/64")
	require.Error(t, err)
	_, err = broadcastAddr("nonsense")
	require.Error(t, err)
}

func TestHandlePacketFiltersUniverse(t *testing.T) {
	c, err := NewClient(testLogger(t), Conf{Listen: "127.0.0.1:0", Target: "127.0.0.1:6454"})
	require.NoError(t, err)

	var got [][]byte
	require.NoError(t, c.RegisterUniverse(3, sinkFunc(func(frame []byte) {
		got = append(got, append([]byte(nil), frame...))
	})))
	require.Error(t, c.RegisterUniverse(3, sinkFunc(func([]byte) {})))

	c.handlePacket(dmxPacket(t, 4, []byte{1, 2}))
	c.handlePacket([]byte("not art-net"))
	c.handlePacket(dmxPacket(t, 3, []byte{7, 8, 9, 10}))

	require.Len(t, got, 1)
	assert.Equal(t, []byte{7, 8, 9, 10}, got[0])
}

func TestSendBeforeStart(t *testing.T) {
	c, err := NewClient(testLogger(t), Conf{Listen: "127.0.0.1:0"})
	require.NoError(t, err)

	var sendErr error
	c.SendDMX(1, []byte{1, 2}, func(err error) { sendErr = err })
	assert.ErrorIs(t, sendErr, dmx.ErrUnavailable)

	assert.ErrorIs(t, c.Run(context.Background()), dmx.ErrUnavailable)
}

func TestLoopback(t *testing.T) {
	peer, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer peer.Close()

	c, err := NewClient(testLogger(t), Conf{Listen: "127.0.0.1:0", Target: peer.LocalAddr().String()})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))

	var sendErr error
	require.NoError(t, c.RegisterUniverse(1, sinkFunc(func(frame []byte) {
		out := []byte{frame[2], frame[1], frame[0]}
		c.SendDMX(2, out, func(err error) { sendErr = err })
		c.Stop()
	})))

	local := c.LocalAddr().(*net.UDPAddr)
	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	_, err = peer.WriteToUDP(dmxPacket(t, 1, []byte{10, 20, 30, 40}), local)
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run loop did not stop")
	}
	require.NoError(t, sendErr)

	require.NoError(t, peer.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 1024)
	n, _, err := peer.ReadFromUDP(buf)
	require.NoError(t, err)

	p, err := packet.Unmarshal(buf[:n])
	require.NoError(t, err)
	out, ok := p.(*packet.ArtDMXPacket)
	require.True(t, ok)
	assert.Equal(t, uint8(0), out.Net)
	assert.Equal(t, uint8(2), out.SubUni)
	assert.Equal(t, uint16(4), out.Length)
	assert.Equal(t, []byte{30, 20, 10, 0}, out.Data[:4])

	// socket is closed once Run returns
	c.SendDMX(2, []byte{1, 2}, func(err error) { sendErr = err })
	assert.ErrorIs(t, sendErr, dmx.ErrUnavailable)
}

func TestRunStopsOnContext(t *testing.T) {
	c, err := NewClient(testLogger(t), Conf{Listen: "127.0.0.1:0"})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, c.Run(ctx))
}
