package source

import (
	"fmt"

	"github.com/google/gopacket/pcap"

	"firestige.xyz/tanakai/internal/config"
	"firestige.xyz/tanakai/internal/log"
)

// openFile replays a pcap file. Next returns io.EOF after the last packet.
func openFile(cfg config.CaptureConfig) (Source, error) {
	if cfg.File == "" {
		return nil, fmt.Errorf("file path is required")
	}
	handle, err := pcap.OpenOffline(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("open pcap file %s: %w", cfg.File, err)
	}
	if cfg.BPFFilter != "" {
		if err := handle.SetBPFFilter(cfg.BPFFilter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("set BPF filter %q: %w", cfg.BPFFilter, err)
		}
	}
	log.GetLogger().WithField("file", cfg.File).Info("pcap file opened")
	return &pcapSource{handle: handle, name: cfg.File}, nil
}
