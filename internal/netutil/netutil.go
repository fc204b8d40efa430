// Package netutil resolves the addresses the discovery service advertises
// and binds the broadcast-capable UDP socket it runs on.
package netutil

import (
	"context"
	"net"
)

// probeAddr is only ever dialed with UDP, which sends nothing; the OS picks
// the outbound interface and we read the local address it chose.
const probeAddr = "8.8.8.8:80"

// LocalIPv4 returns the primary outbound IPv4 of this host, falling back to
// 127.0.0.1 when no route exists (offline hosts still work on loopback).
func LocalIPv4() net.IP {
	conn, err := net.Dial("udp4", probeAddr)
	if err != nil {
		return net.IPv4(127, 0, 0, 1)
	}
	defer conn.Close()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		if ip4 := addr.IP.To4(); ip4 != nil {
			return ip4
		}
	}
	return net.IPv4(127, 0, 0, 1)
}

// BroadcastIPv4 returns the /24 directed broadcast address for ip, or the
// limited broadcast address 255.255.255.255 for loopback and non-IPv4 input.
func BroadcastIPv4(ip net.IP) net.IP {
	ip4 := ip.To4()
	if ip4 == nil || ip4.IsLoopback() {
		return net.IPv4bcast
	}
	out := make(net.IP, len(ip4))
	copy(out, ip4)
	out[3] = 255
	return out
}

// ListenBroadcast binds a UDP socket on addr with SO_BROADCAST enabled, so
// one socket can both receive advertisements and send them to a directed
// broadcast address.
func ListenBroadcast(ctx context.Context, addr string) (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: setBroadcast}
	pc, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}
