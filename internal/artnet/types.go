package artnet

// Port is the UDP port of the Art-Net protocol.
const Port = 6454

// Conf describes the UDP endpoints of the client.
type Conf struct {
	Network string // Network - CIDR of the art-net interface, optional.
	Listen  string // Listen - local UDP address for incoming ArtDMX.
	Target  string // Target - UDP address outgoing ArtDMX is sent to, optional.
}
