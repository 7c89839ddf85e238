// Package source opens packet capture sources: live pcap, AF_PACKET rings
// and offline pcap files.
package source

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"firestige.xyz/tanakai/internal/config"
	"firestige.xyz/tanakai/internal/core"
)

// Source is a blocking packet reader.
//
// Next returns core.ErrCaptureTimeout when the read timeout expires with no
// packet and io.EOF when a finite source is exhausted. RawPacket.Data is only
// valid until the following call to Next.
type Source interface {
	Next() (core.RawPacket, error)
	LinkType() layers.LinkType
	Close() error
}

const (
	DriverPcap     = "pcap"
	DriverAFPacket = "afpacket"
	DriverFile     = "file"
)

// Open creates the source selected by cfg.Driver. Failures wrap core.ErrSourceOpen.
func Open(cfg config.CaptureConfig) (Source, error) {
	var (
		src Source
		err error
	)
	switch cfg.Driver {
	case DriverPcap, "":
		src, err = openPcap(cfg)
	case DriverAFPacket:
		src, err = openAFPacket(cfg)
	case DriverFile:
		src, err = openFile(cfg)
	default:
		err = fmt.Errorf("unknown capture driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrSourceOpen, err)
	}
	return src, nil
}

// IsEnd reports whether err means the source has no more packets.
func IsEnd(err error) bool {
	return errors.Is(err, io.EOF)
}

// Interface describes a capture device.
type Interface struct {
	Name        string
	Description string
	Addresses   []string
	Loopback    bool
}

// Interfaces lists the devices pcap can capture on.
func Interfaces() ([]Interface, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("list capture devices: %w", err)
	}
	out := make([]Interface, 0, len(devs))
	for _, d := range devs {
		iface := Interface{Name: d.Name, Description: d.Description}
		loopback := strings.HasPrefix(d.Name, "lo")
		for _, a := range d.Addresses {
			iface.Addresses = append(iface.Addresses, a.IP.String())
			if a.IP.IsLoopback() {
				loopback = true
			}
		}
		iface.Loopback = loopback
		out = append(out, iface)
	}
	return out, nil
}

// DefaultInterface picks the first non-loopback device, preferring one that
// has an address assigned, and falls back to the first device.
func DefaultInterface() (string, error) {
	ifaces, err := Interfaces()
	if err != nil {
		return "", err
	}
	return pickDefault(ifaces)
}

func pickDefault(ifaces []Interface) (string, error) {
	fallback := ""
	for _, iface := range ifaces {
		if iface.Loopback {
			continue
		}
		if len(iface.Addresses) > 0 {
			return iface.Name, nil
		}
		if fallback == "" {
			fallback = iface.Name
		}
	}
	if fallback != "" {
		return fallback, nil
	}
	if len(ifaces) > 0 {
		return ifaces[0].Name, nil
	}
	return "", errors.New("no capture device found")
}

// resolveInterface returns cfg.Interface or the default device.
func resolveInterface(cfg config.CaptureConfig) (string, error) {
	if cfg.Interface != "" {
		if _, err := net.InterfaceByName(cfg.Interface); err != nil {
			return "", fmt.Errorf("interface %s: %w", cfg.Interface, err)
		}
		return cfg.Interface, nil
	}
	return DefaultInterface()
}
