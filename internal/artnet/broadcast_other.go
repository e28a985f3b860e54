//go:build !unix

package artnet

import "net"

func enableBroadcast(_ *net.UDPConn) error {
	return nil
}
