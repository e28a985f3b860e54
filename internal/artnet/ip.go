package artnet

import (
	"fmt"
	"net"
	"strings"
)

// FindArtNetIP finds the matching interface with an IP address inside the cidr.
func FindArtNetIP(cidr string) (net.IP, error) {
	_, cidrNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("bad art-net network %q: %w", cidr, err)
	}
	address, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("error getting ips: %w", err)
	}

	for _, addr := range address {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP

		if strings.Contains(ip.String(), ":") {
			continue
		}

		if cidrNet.Contains(ip) {
			return ip, nil
		}
	}

	return nil, nil
}

// broadcastAddr returns the directed broadcast address of an IPv4 cidr.
func broadcastAddr(cidr string) (net.IP, error) {
	_, cidrNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("bad art-net network %q: %w", cidr, err)
	}
	ip := cidrNet.IP.To4()
	if ip == nil || len(cidrNet.Mask) != net.IPv4len {
		return nil, fmt.Errorf("art-net network %q is not IPv4", cidr)
	}

	bcast := make(net.IP, net.IPv4len)
	for i := range bcast {
		bcast[i] = ip[i] | ^cidrNet.Mask[i]
	}
	return bcast, nil
}
