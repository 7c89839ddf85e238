// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"

	"firestige.xyz/tanakai/internal/core"
)

const (
	udpHeaderLen = 8
	protocolUDP  = 17
)

// decodeUDP decodes UDP header.
// Returns UDPHeader and the payload trimmed to the declared UDP length.
func decodeUDP(data []byte) (core.UDPHeader, []byte, error) {
	if len(data) < udpHeaderLen {
		return core.UDPHeader{}, nil, core.ErrPacketTooShort
	}

	udp := core.UDPHeader{
		SrcPort: binary.BigEndian.Uint16(data[0:2]),
		DstPort: binary.BigEndian.Uint16(data[2:4]),
		Length:  binary.BigEndian.Uint16(data[4:6]),
	}

	// Length includes the header; a bogus value falls back to what was captured.
	end := len(data)
	if l := int(udp.Length); l >= udpHeaderLen && l < end {
		end = l
	}
	return udp, data[udpHeaderLen:end], nil
}
