// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package addrutil provides address parsing, validity checks, and the
// network-group derivation used by the address manager's bucket hashing.
package addrutil

import (
	"encoding/binary"
	"net"
	"strconv"
)

// family tags, prepended to a group so that IPv4 and IPv6 groups never
// collide even when the remaining bytes happen to match.
const (
	familyIPv4 byte = 1
	familyIPv6 byte = 2
)

// NetAddr is a host/port pair advertised by or about a peer. It is a plain
// comparable value (no cached net.IP field) so that records can compare
// peer identity with ==, the way the teacher compares *wire.NetAddress
// values throughout addrmanager.go.
type NetAddr struct {
	Host string
	Port uint16
}

// NewNetAddr constructs a NetAddr from a textual host and a port.
func NewNetAddr(host string, port uint16) NetAddr {
	return NetAddr{Host: host, Port: port}
}

// ParseHostPort splits a "host:port" string into a NetAddr.
func ParseHostPort(hostPort string) (NetAddr, error) {
	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return NetAddr{}, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return NetAddr{}, err
	}
	return NewNetAddr(host, uint16(port)), nil
}

func (a NetAddr) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

// IP returns the parsed net.IP for the address's host, or nil if the host
// is not a literal IP address.
func (a NetAddr) IP() net.IP {
	return net.ParseIP(a.Host)
}

// Valid reports whether the address is usable as a peer endpoint: it must
// parse as an IP, must not be unspecified/multicast/loopback/link-local,
// and -- unless allowPrivate is set -- must not fall in an RFC1918/RFC4193
// private range.
func (a NetAddr) Valid(allowPrivate bool) bool {
	ip := a.IP()
	if ip == nil {
		return false
	}
	if a.Port == 0 {
		return false
	}
	if ip.IsUnspecified() || ip.IsMulticast() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return false
	}
	if !allowPrivate && isPrivate(ip) {
		return false
	}
	return true
}

func isPrivate(ip net.IP) bool {
	if ip4 := ip.To4(); ip4 != nil {
		for _, cidr := range privateIPv4Blocks {
			if cidr.Contains(ip4) {
				return true
			}
		}
		return false
	}
	for _, cidr := range privateIPv6Blocks {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

var privateIPv4Blocks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
)

var privateIPv6Blocks = mustParseCIDRs(
	"fc00::/7", // RFC4193 unique local
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

// KeyBytes returns the canonical byte encoding of an address used as input
// to the bucket-position hash: a family-prefixed packed IP followed by the
// big-endian port.
func KeyBytes(a NetAddr) []byte {
	ip := a.IP()
	var packed []byte
	var fam byte
	if ip4 := ip.To4(); ip4 != nil {
		fam = familyIPv4
		packed = ip4
	} else {
		fam = familyIPv6
		packed = ip.To16()
	}
	out := make([]byte, 0, 1+len(packed)+2)
	out = append(out, fam)
	out = append(out, packed...)
	var portBuf [2]byte
	binary.BigEndian.PutUint16(portBuf[:], a.Port)
	out = append(out, portBuf[:]...)
	return out
}

// GroupKey derives the coarse network-locality identifier used both for
// bucket derivation and outbound-diversity caps: the IPv4 /16 (or IPv6
// /32) network prefix, family-tagged, with Teredo/6to4 tunnels unwrapped
// to their embedded IPv4 /16. Hurricane Electric tunnel-broker addresses
// are not unwrapped; they group on their IPv6 /32 like any other IPv6
// address.
func GroupKey(a NetAddr) []byte {
	ip := a.IP()
	if ip == nil {
		return []byte{0}
	}
	if ip4 := ip.To4(); ip4 != nil {
		return append([]byte{familyIPv4}, ip4[:2]...)
	}
	ip16 := ip.To16()
	if embedded, ok := unwrapTunnel(ip16); ok {
		return append([]byte{familyIPv4}, embedded[:2]...)
	}
	return append([]byte{familyIPv6}, ip16[:4]...)
}

// unwrapTunnel extracts the embedded IPv4 address from a Teredo
// (2001:0000::/32) or 6to4 (2002::/16) address, if ip is one of those.
// A Hurricane Electric tunnel-broker (2001:470::/32) address yields
// (nil, false), as does any other address.
func unwrapTunnel(ip net.IP) (net.IP, bool) {
	switch {
	case ip[0] == 0x20 && ip[1] == 0x01 && ip[2] == 0x00 && ip[3] == 0x00:
		// Teredo: server ipv4 at bytes [4:8], client ipv4 (obfuscated) at [12:16].
		client := make(net.IP, 4)
		for i := 0; i < 4; i++ {
			client[i] = ip[12+i] ^ 0xff
		}
		return client, true
	case ip[0] == 0x20 && ip[1] == 0x02:
		// 6to4: embedded ipv4 at bytes [2:6].
		embedded := make(net.IP, 4)
		copy(embedded, ip[2:6])
		return embedded, true
	case ip[0] == 0x20 && ip[1] == 0x01 && ip[2] == 0x04 && ip[3] == 0x70:
		// Hurricane Electric tunnelbroker space has no fixed embedded
		// IPv4 in the address itself; group on the /32 prefix instead.
		return nil, false
	default:
		return nil, false
	}
}
