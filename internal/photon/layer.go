package photon

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"firestige.xyz/tanakai/internal/core"
	"firestige.xyz/tanakai/internal/log"
)

const (
	HeaderSize         = 12
	fragmentHeaderSize = 16
)

// Header is the fixed 12-byte Photon packet header.
type Header struct {
	PeerID       uint16
	Flags        uint8
	CommandCount uint8
	Reserved     [8]byte
}

func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes", core.ErrPacketTooSmall, len(data))
	}
	h := Header{
		PeerID:       binary.LittleEndian.Uint16(data[0:2]),
		Flags:        data[2],
		CommandCount: data[3],
	}
	copy(h.Reserved[:], data[4:HeaderSize])
	return h, nil
}

// LayerStats counts decode outcomes. Owned by the goroutine driving the Layer.
type LayerStats struct {
	Packets             uint64
	Commands            uint64
	MalformedCommands   uint64
	ShortFragments      uint64
	RejectedFragments   uint64
	ReassembledCommands uint64
	UnknownCommands     uint64
	TruncatedPackets    uint64
	EvictedSets         uint64
}

// Layer decodes Photon packets into commands. It owns the fragment
// reassembly state of one capture session and is not safe for concurrent use.
type Layer struct {
	reassembler *Reassembler
	stats       LayerStats
	logger      log.Logger
}

func NewLayer(cfg ReassemblyConfig) *Layer {
	return &Layer{
		reassembler: NewReassembler(cfg),
		logger:      log.GetLogger().WithField("component", "photon"),
	}
}

// Decode is DecodeAt stamped with the wall clock.
func (l *Layer) Decode(data []byte) ([]Command, error) {
	return l.DecodeAt(data, time.Now())
}

// DecodeAt walks the commands of one packet. Corruption part-way through
// ends the walk and returns the commands decoded so far; only a packet
// shorter than the header is an error.
func (l *Layer) DecodeAt(data []byte, now time.Time) ([]Command, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	l.stats.Packets++

	commands := make([]Command, 0, h.CommandCount)
	offset := HeaderSize
	for i := 0; i < int(h.CommandCount); i++ {
		if offset+2 > len(data) {
			l.truncated(h, i, offset, len(data))
			break
		}
		tag := CommandType(data[offset])
		end := offset + 2 + int(data[offset+1])
		if end > len(data) {
			l.truncated(h, i, offset, len(data))
			break
		}
		body := data[offset+2 : end]
		offset = end

		switch tag {
		case CommandUnreliable, CommandReliable:
			cmd, err := DecodeCommand(body)
			if err != nil {
				l.stats.MalformedCommands++
				l.logger.WithError(err).Debugf("skip %s command %d of peer %d", tag, i, h.PeerID)
				continue
			}
			commands = append(commands, cmd)
		case CommandReliableFragment:
			if cmd, ok := l.fragment(body, now); ok {
				commands = append(commands, cmd)
			}
		default:
			l.stats.UnknownCommands++
			l.logger.Debugf("skip %s command of %d bytes", tag, len(body))
		}
	}

	l.stats.Commands += uint64(len(commands))
	return commands, nil
}

func (l *Layer) fragment(body []byte, now time.Time) (Command, bool) {
	if len(body) < fragmentHeaderSize {
		l.stats.ShortFragments++
		l.logger.WithError(fmt.Errorf("%w: %d bytes", core.ErrFragmentTooShort, len(body))).Warn("drop fragment")
		return Command{}, false
	}
	id := binary.LittleEndian.Uint32(body[0:4])
	count := binary.LittleEndian.Uint32(body[4:8])
	number := binary.LittleEndian.Uint32(body[8:12])
	total := binary.LittleEndian.Uint32(body[12:16])

	if err := l.reassembler.AddFragment(id, count, number, total, body[fragmentHeaderSize:], now); err != nil {
		l.stats.RejectedFragments++
		l.logger.WithError(err).Debug("drop fragment")
		return Command{}, false
	}
	payload, ok := l.reassembler.TryComplete(id)
	if !ok {
		return Command{}, false
	}
	cmd, err := DecodeCommand(payload)
	if err != nil {
		l.stats.MalformedCommands++
		l.logger.WithError(err).Debugf("skip reassembled command of set %d", id)
		return Command{}, false
	}
	l.stats.ReassembledCommands++
	return cmd, true
}

func (l *Layer) truncated(h Header, index, offset, size int) {
	l.stats.TruncatedPackets++
	l.logger.Debugf("peer %d: command %d/%d at offset %d overruns %d-byte packet", h.PeerID, index, h.CommandCount, offset, size)
}

// Sweep evicts idle fragment sets.
func (l *Layer) Sweep(now time.Time) int {
	n := l.reassembler.Sweep(now)
	l.stats.EvictedSets += uint64(n)
	return n
}

// PendingFragmentSets returns the number of incomplete fragment sets.
func (l *Layer) PendingFragmentSets() int {
	return l.reassembler.Len()
}

func (l *Layer) Stats() LayerStats {
	return l.stats
}

// IsProtocolError reports whether err is a recoverable wire-format error.
func IsProtocolError(err error) bool {
	return errors.Is(err, core.ErrPacketTooSmall) ||
		errors.Is(err, core.ErrMalformedCommand) ||
		errors.Is(err, core.ErrFragmentTooShort) ||
		errors.Is(err, core.ErrFragmentInvalid)
}
