package source

import (
	"errors"
	"fmt"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"firestige.xyz/tanakai/internal/config"
	"firestige.xyz/tanakai/internal/core"
	"firestige.xyz/tanakai/internal/log"
)

// pcapSource reads from a libpcap handle, live or offline.
type pcapSource struct {
	handle *pcap.Handle
	name   string
}

func openPcap(cfg config.CaptureConfig) (Source, error) {
	device, err := resolveInterface(cfg)
	if err != nil {
		return nil, err
	}

	inactive, err := pcap.NewInactiveHandle(device)
	if err != nil {
		return nil, fmt.Errorf("create pcap handle on %s: %w", device, err)
	}
	defer inactive.CleanUp()

	if err := inactive.SetSnapLen(cfg.SnapLen); err != nil {
		return nil, fmt.Errorf("set snaplen: %w", err)
	}
	if err := inactive.SetPromisc(cfg.Promiscuous); err != nil {
		return nil, fmt.Errorf("set promiscuous: %w", err)
	}
	if err := inactive.SetTimeout(cfg.Timeout); err != nil {
		return nil, fmt.Errorf("set timeout: %w", err)
	}
	if cfg.BufferSizeMB > 0 {
		if err := inactive.SetBufferSize(cfg.BufferSizeMB << 20); err != nil {
			return nil, fmt.Errorf("set buffer size: %w", err)
		}
	}

	handle, err := inactive.Activate()
	if err != nil {
		return nil, fmt.Errorf("activate pcap on %s: %w", device, err)
	}
	if cfg.BPFFilter != "" {
		if err := handle.SetBPFFilter(cfg.BPFFilter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("set BPF filter %q: %w", cfg.BPFFilter, err)
		}
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"interface":   device,
		"snap_len":    cfg.SnapLen,
		"promiscuous": cfg.Promiscuous,
		"timeout":     cfg.Timeout,
		"filter":      cfg.BPFFilter,
	}).Info("pcap capture opened")

	return &pcapSource{handle: handle, name: device}, nil
}

func (s *pcapSource) Next() (core.RawPacket, error) {
	data, ci, err := s.handle.ReadPacketData()
	if err != nil {
		if errors.Is(err, pcap.NextErrorTimeoutExpired) {
			return core.RawPacket{}, core.ErrCaptureTimeout
		}
		return core.RawPacket{}, err
	}
	return core.RawPacket{
		Data:           data,
		Timestamp:      ci.Timestamp,
		CaptureLen:     uint32(ci.CaptureLength),
		OrigLen:        uint32(ci.Length),
		InterfaceIndex: ci.InterfaceIndex,
	}, nil
}

func (s *pcapSource) LinkType() layers.LinkType {
	return s.handle.LinkType()
}

func (s *pcapSource) Close() error {
	s.handle.Close()
	return nil
}
