package artnet

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"dmxmapper/internal/dmx"
	"dmxmapper/internal/logger"
	"github.com/Haba1234/go-artnet"
	"github.com/Haba1234/go-artnet/packet"
)

// readTimeout bounds how long Run waits on the socket before checking for Stop.
const readTimeout = 100 * time.Millisecond

// dmxHeaderLen is the ArtDMX header size; its last two bytes hold the big-endian data length.
const dmxHeaderLen = 18

// Client is transport for the ArtNet protocol (DMX over UDP/IP).
// One UDP socket is used for receiving and sending.
type Client struct {
	logger logger.Logger
	cfg    Conf
	conn   *net.UDPConn
	target *net.UDPAddr
	sinks  map[uint16]dmx.FrameSink
	seq    uint8
	frame  [dmx.MaxChannels]byte
	buf    []byte

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewClient resolves the addresses of an art-net client. The socket is opened by Start.
func NewClient(log logger.Logger, cfg Conf) (*Client, error) {
	target, err := resolveTarget(log, cfg)
	if err != nil {
		return nil, err
	}

	return &Client{
		logger: log,
		cfg:    cfg,
		target: target,
		sinks:  map[uint16]dmx.FrameSink{},
		buf:    make([]byte, 1024),
		stopCh: make(chan struct{}),
	}, nil
}

func resolveTarget(log logger.Logger, cfg Conf) (*net.UDPAddr, error) {
	if cfg.Target != "" {
		addr, err := net.ResolveUDPAddr("udp4", cfg.Target)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve art-net target %q: %w", cfg.Target, err)
		}
		return addr, nil
	}
	if cfg.Network == "" {
		return &net.UDPAddr{IP: net.IPv4bcast, Port: Port}, nil
	}

	ip, err := FindArtNetIP(cfg.Network)
	if err != nil {
		return nil, fmt.Errorf("failed to find the art-net IP: %w", err)
	}
	if len(ip) == 0 {
		return nil, errors.New("failed to find the art-net IP: No interface found")
	}

	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve hostname: %w", err)
	}
	host = strings.ToLower(strings.Split(host, ".")[0])
	log.With(logger.Fields{"module": "art-net"}).Infof("Using ArtNet IP %s and hostname %s", ip.String(), host)

	bcast, err := broadcastAddr(cfg.Network)
	if err != nil {
		return nil, err
	}
	return &net.UDPAddr{IP: bcast, Port: Port}, nil
}

// Start opens the UDP socket.
func (c *Client) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr, err := net.ResolveUDPAddr("udp4", c.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to resolve listen address %q: %w", c.cfg.Listen, err)
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if err := enableBroadcast(conn); err != nil {
		conn.Close()
		return fmt.Errorf("failed to enable broadcast: %w", err)
	}
	c.conn = conn

	c.logger.With(logger.Fields{"module": "art-net"}).Infof("listening on %s, sending to %s", conn.LocalAddr(), c.target)
	return nil
}

// LocalAddr returns the address of the open socket, nil before Start.
func (c *Client) LocalAddr() net.Addr {
	if c.conn == nil {
		return nil
	}
	return c.conn.LocalAddr()
}

// RegisterUniverse implements dmx.Client.
func (c *Client) RegisterUniverse(universe uint16, sink dmx.FrameSink) error {
	if _, ok := c.sinks[universe]; ok {
		return fmt.Errorf("universe %d is already registered", universe)
	}
	c.sinks[universe] = sink
	return nil
}

// Run receives ArtDMX packets until Stop is called or ctx is done. The socket is closed on return.
func (c *Client) Run(ctx context.Context) error {
	if c.conn == nil {
		return fmt.Errorf("art-net client is not started: %w", dmx.ErrUnavailable)
	}
	defer c.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.stopCh:
			return nil
		default:
		}

		if err := c.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return fmt.Errorf("art-net socket: %w", err)
		}
		n, _, err := c.conn.ReadFromUDP(c.buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("art-net receive: %w", err)
		}
		c.handlePacket(c.buf[:n])
	}
}

// Stop implements dmx.Client.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

func (c *Client) stopped() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// Close closes the socket. Run closes it on return as well.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) handlePacket(b []byte) {
	p, err := packet.Unmarshal(b)
	if err != nil {
		c.logger.With(logger.Fields{"module": "art-net"}).Debugf("dropping packet: %v", err)
		return
	}
	dmxPacket, ok := p.(*packet.ArtDMXPacket)
	if !ok {
		c.logger.With(logger.Fields{"module": "art-net"}).Debugf("ignoring %T", p)
		return
	}

	universe := addressToUniverse(artnet.Address{Net: dmxPacket.Net, SubUni: dmxPacket.SubUni})
	sink, ok := c.sinks[universe]
	if !ok {
		return
	}

	n := int(dmxPacket.Length)
	if n > dmx.MaxChannels {
		n = dmx.MaxChannels
	}
	c.frame = dmxPacket.Data
	sink.OnFrame(c.frame[:n])
}

// SendDMX implements dmx.Client. done is called before SendDMX returns.
func (c *Client) SendDMX(universe uint16, data []byte, done dmx.SendCallback) {
	done(c.send(universe, data))
}

func (c *Client) send(universe uint16, data []byte) error {
	if c.conn == nil || c.stopped() {
		return fmt.Errorf("art-net client is not running: %w", dmx.ErrUnavailable)
	}
	if len(data) > dmx.MaxChannels {
		return fmt.Errorf("frame has %d channels: %w", len(data), dmx.ErrSendFailed)
	}

	addr := c.universeToAddress(universe)
	p := packet.NewArtDMXPacket()
	// sequence 0 disables reordering on the receiver
	c.seq++
	if c.seq == 0 {
		c.seq = 1
	}
	p.Sequence = c.seq
	p.Net = addr.Net
	p.SubUni = addr.SubUni
	copy(p.Data[:], data)

	b, err := marshalDMX(p, len(data))
	if err != nil {
		return fmt.Errorf("marshal ArtDMX: %v: %w", err, dmx.ErrSendFailed)
	}
	if _, err := c.conn.WriteToUDP(b, c.target); err != nil {
		return fmt.Errorf("write to %s: %v: %w", c.target, err, dmx.ErrSendFailed)
	}
	return nil
}

// marshalDMX encodes p carrying only the first n channels.
// MarshalBinary always writes all 512 channels, so the packet is cut to the frame length.
func marshalDMX(p *packet.ArtDMXPacket, n int) ([]byte, error) {
	b, err := p.MarshalBinary()
	if err != nil {
		return nil, err
	}
	length := frameLength(n)
	if len(b) < dmxHeaderLen+length {
		return nil, fmt.Errorf("short ArtDMX packet of %d bytes", len(b))
	}
	b = b[:dmxHeaderLen+length]
	binary.BigEndian.PutUint16(b[dmxHeaderLen-2:dmxHeaderLen], uint16(length))
	return b, nil
}

// frameLength rounds n up to the even length ArtDMX requires, at least 2.
func frameLength(n int) int {
	if n < 2 {
		return 2
	}
	return n + n%2
}

// universeToAddress converts a dmx universe to art-net address
// universe: старший байт - Net, младший байт - SubUni.
func (c *Client) universeToAddress(universe uint16) artnet.Address {
	v := make([]uint8, 2)
	binary.BigEndian.PutUint16(v, universe)

	return artnet.Address{
		Net:    v[0],
		SubUni: v[1],
	}
}

func addressToUniverse(a artnet.Address) uint16 {
	return binary.BigEndian.Uint16([]byte{a.Net, a.SubUni})
}
