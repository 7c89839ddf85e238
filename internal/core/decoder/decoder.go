// Package decoder implements L2-L4 protocol stack decoding down to the UDP
// datagram that carries Photon traffic.
package decoder

import (
	"fmt"

	"github.com/google/gopacket/layers"

	"firestige.xyz/tanakai/internal/core"
)

// Decoder lifts the UDP datagram out of a captured frame.
type Decoder interface {
	Decode(raw core.RawPacket) (core.Datagram, error)
}

// Config contains decoder configuration.
type Config struct {
	LinkType layers.LinkType // link type reported by the capture source; zero is LinkTypeNull
	Ports    []uint16        // accept only datagrams with one of these ports (empty = any)
}

// StandardDecoder is a hand-rolled, allocation-free Ethernet/SLL/raw-IP → UDP decoder.
type StandardDecoder struct {
	linkType layers.LinkType
	ports    map[uint16]struct{}
}

// NewStandardDecoder creates a decoder for the given link type.
func NewStandardDecoder(cfg Config) *StandardDecoder {
	d := &StandardDecoder{linkType: cfg.LinkType}
	if len(cfg.Ports) > 0 {
		d.ports = make(map[uint16]struct{}, len(cfg.Ports))
		for _, p := range cfg.Ports {
			d.ports[p] = struct{}{}
		}
	}
	return d
}

// Decode implements Decoder.
func (d *StandardDecoder) Decode(raw core.RawPacket) (core.Datagram, error) {
	ipData, err := d.stripLink(raw.Data)
	if err != nil {
		return core.Datagram{}, err
	}

	ip, l4, err := decodeIP(ipData)
	if err != nil {
		return core.Datagram{}, err
	}
	if ip.Protocol != protocolUDP {
		return core.Datagram{}, fmt.Errorf("ip protocol %d: %w", ip.Protocol, core.ErrNotUDP)
	}
	if ip.Fragment {
		// Photon datagrams fit in one MTU; IP fragments are not reassembled here.
		return core.Datagram{}, fmt.Errorf("ip fragment: %w", core.ErrUnsupportedProto)
	}

	udp, payload, err := decodeUDP(l4)
	if err != nil {
		return core.Datagram{}, err
	}
	if d.ports != nil && !d.acceptPort(udp) {
		return core.Datagram{}, fmt.Errorf("udp ports %d->%d: %w", udp.SrcPort, udp.DstPort, core.ErrUnsupportedProto)
	}

	return core.Datagram{
		Timestamp: raw.Timestamp,
		SrcIP:     ip.SrcIP,
		DstIP:     ip.DstIP,
		SrcPort:   udp.SrcPort,
		DstPort:   udp.DstPort,
		Payload:   payload,
	}, nil
}

func (d *StandardDecoder) acceptPort(udp core.UDPHeader) bool {
	if _, ok := d.ports[udp.SrcPort]; ok {
		return true
	}
	_, ok := d.ports[udp.DstPort]
	return ok
}

// stripLink removes the link-layer header and returns the IP packet.
func (d *StandardDecoder) stripLink(data []byte) ([]byte, error) {
	switch d.linkType {
	case layers.LinkTypeEthernet:
		eth, payload, err := decodeEthernet(data)
		if err != nil {
			return nil, err
		}
		if eth.EtherType != etherTypeIPv4 && eth.EtherType != etherTypeIPv6 {
			return nil, fmt.Errorf("ethertype 0x%04x: %w", eth.EtherType, core.ErrUnsupportedProto)
		}
		return payload, nil
	case layers.LinkTypeLinuxSLL:
		return decodeLinuxSLL(data)
	case layers.LinkTypeNull, layers.LinkTypeLoop:
		// 4-byte address family in host order; the IP version nibble is authoritative.
		if len(data) < 4 {
			return nil, core.ErrPacketTooShort
		}
		return data[4:], nil
	case layers.LinkTypeRaw, layers.LinkTypeIPv4, layers.LinkTypeIPv6:
		return data, nil
	default:
		return nil, fmt.Errorf("link type %v: %w", d.linkType, core.ErrUnsupportedProto)
	}
}
