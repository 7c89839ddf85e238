package source

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/tanakai/internal/config"
	"firestige.xyz/tanakai/internal/core"
	"firestige.xyz/tanakai/internal/log"
	"firestige.xyz/tanakai/internal/utils"
)

// afpacketSource reads a TPACKET_V3 ring with zero-copy reads.
type afpacketSource struct {
	handle *afpacket.TPacket
	device string
}

func openAFPacket(cfg config.CaptureConfig) (Source, error) {
	device, err := resolveInterface(cfg)
	if err != nil {
		return nil, err
	}
	bufferMB := cfg.BufferSizeMB
	if bufferMB <= 0 {
		bufferMB = 8
	}
	frameSize, blockSize, numBlocks, err := recomputeSize(bufferMB, cfg.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, err
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(device),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(cfg.Timeout),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("create TPacket on %s: %w", device, err)
	}

	if cfg.BPFFilter != "" {
		raw, err := utils.CompileBPF(cfg.BPFFilter, layers.LinkTypeEthernet, cfg.SnapLen)
		if err != nil {
			tp.Close()
			return nil, err
		}
		if err := tp.SetBPF(raw); err != nil {
			tp.Close()
			return nil, fmt.Errorf("set BPF filter %q: %w", cfg.BPFFilter, err)
		}
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"interface":  device,
		"frame_size": frameSize,
		"block_size": blockSize,
		"num_blocks": numBlocks,
		"filter":     cfg.BPFFilter,
	}).Info("afpacket capture opened")

	return &afpacketSource{handle: tp, device: device}, nil
}

// Next returns ring memory directly; it is overwritten by the next read.
func (s *afpacketSource) Next() (core.RawPacket, error) {
	data, ci, err := s.handle.ZeroCopyReadPacketData()
	if err != nil {
		if errors.Is(err, afpacket.ErrTimeout) {
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

func (s *afpacketSource) LinkType() layers.LinkType {
	return layers.LinkTypeEthernet
}

// Close must not race with Next; the pipeline calls it from the capture goroutine.
func (s *afpacketSource) Close() error {
	s.handle.Close()
	return nil
}
