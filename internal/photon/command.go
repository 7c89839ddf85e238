// Package photon decodes the Photon UDP game protocol: packet headers,
// commands, parameters and fragmented reliable commands.
package photon

import (
	"fmt"

	"firestige.xyz/tanakai/internal/core"
)

// CommandType is the one-byte tag in front of every command in a packet.
// Every byte value is a valid CommandType; values other than the three known
// tags classify as unknown and keep their raw value.
type CommandType uint8

const (
	CommandUnreliable       CommandType = 0
	CommandReliable         CommandType = 1
	CommandReliableFragment CommandType = 2
)

// Known reports whether t is one of the decoded tags.
func (t CommandType) Known() bool {
	return t <= CommandReliableFragment
}

func (t CommandType) String() string {
	switch t {
	case CommandUnreliable:
		return "Unreliable"
	case CommandReliable:
		return "Reliable"
	case CommandReliableFragment:
		return "ReliableFragment"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

const (
	commandPrelude = 2 // opcode + channel byte
	channelFlag    = 0x80
	channelMask    = 0x7f
)

// Command is one decoded Photon operation.
type Command struct {
	OperationCode uint8
	ChannelID     uint8
	HasChannel    bool
	Parameters    Parameters
}

// Channel returns the channel id, or nil when the command carries none.
func (c Command) Channel() *uint8 {
	if !c.HasChannel {
		return nil
	}
	id := c.ChannelID
	return &id
}

// DecodeCommand parses an opcode, a channel byte and (key, len, value)
// parameter records. A record whose declared length runs past the buffer ends
// the scan; parameters decoded before it are kept.
func DecodeCommand(data []byte) (Command, error) {
	if len(data) < commandPrelude {
		return Command{}, fmt.Errorf("%w: %d bytes", core.ErrMalformedCommand, len(data))
	}

	cmd := Command{
		OperationCode: data[0],
		Parameters:    make(Parameters),
	}
	if data[1]&channelFlag != 0 {
		cmd.HasChannel = true
		cmd.ChannelID = data[1] & channelMask
	}

	offset := commandPrelude
	for offset+2 <= len(data) {
		key := data[offset]
		size := int(data[offset+1])
		start := offset + 2
		if start+size > len(data) {
			break
		}
		value := make([]byte, size)
		copy(value, data[start:start+size])
		cmd.Parameters[key] = value
		offset = start + size
	}

	return cmd, nil
}
