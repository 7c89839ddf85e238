// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"
	"net/netip"

	"firestige.xyz/tanakai/internal/core"
)

const (
	ipv4HeaderMinLen = 20
	ipv6HeaderLen    = 40
)

// decodeIP decodes IP header (IPv4 or IPv6).
// Returns IPHeader and the L4 bytes, trimmed to the length the header declares.
func decodeIP(data []byte) (core.IPHeader, []byte, error) {
	if len(data) < 1 {
		return core.IPHeader{}, nil, core.ErrPacketTooShort
	}

	switch data[0] >> 4 {
	case 4:
		return decodeIPv4(data)
	case 6:
		return decodeIPv6(data)
	default:
		return core.IPHeader{}, nil, core.ErrUnsupportedProto
	}
}

// decodeIPv4 decodes IPv4 header.
func decodeIPv4(data []byte) (core.IPHeader, []byte, error) {
	if len(data) < ipv4HeaderMinLen {
		return core.IPHeader{}, nil, core.ErrPacketTooShort
	}

	// IHL is in 32-bit words
	headerLen := int(data[0]&0x0F) * 4
	if headerLen < ipv4HeaderMinLen || len(data) < headerLen {
		return core.IPHeader{}, nil, core.ErrPacketTooShort
	}

	ip := core.IPHeader{
		Version:  4,
		TotalLen: binary.BigEndian.Uint16(data[2:4]),
		Protocol: data[9],
	}

	flagsOffset := binary.BigEndian.Uint16(data[6:8])
	ip.Fragment = flagsOffset&0x2000 != 0 || flagsOffset&0x1FFF != 0

	ip.SrcIP = netip.AddrFrom4([4]byte(data[12:16]))
	ip.DstIP = netip.AddrFrom4([4]byte(data[16:20]))

	// Ethernet pads short frames; TotalLen bounds the real datagram.
	end := len(data)
	if total := int(ip.TotalLen); total >= headerLen && total < end {
		end = total
	}
	return ip, data[headerLen:end], nil
}

// decodeIPv6 decodes IPv6 header. Extension headers are not walked; a UDP
// datagram behind one is reported through Protocol and rejected upstream.
func decodeIPv6(data []byte) (core.IPHeader, []byte, error) {
	if len(data) < ipv6HeaderLen {
		return core.IPHeader{}, nil, core.ErrPacketTooShort
	}

	payloadLen := binary.BigEndian.Uint16(data[4:6])
	ip := core.IPHeader{
		Version:  6,
		TotalLen: uint16(ipv6HeaderLen) + payloadLen,
		Protocol: data[6], // Next Header
		SrcIP:    netip.AddrFrom16([16]byte(data[8:24])),
		DstIP:    netip.AddrFrom16([16]byte(data[24:40])),
	}

	end := len(data)
	if total := ipv6HeaderLen + int(payloadLen); total < end {
		end = total
	}
	return ip, data[ipv6HeaderLen:end], nil
}
