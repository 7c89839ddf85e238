package photon

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/tanakai/internal/core"
)

// packet assembles a Photon packet from (tag, body) pairs.
type packet struct {
	peer     uint16
	flags    uint8
	count    int // -1 means len(commands)
	commands []rawCommand
}

type rawCommand struct {
	tag  CommandType
	body []byte
}

func (p packet) bytes() []byte {
	count := p.count
	if count < 0 {
		count = len(p.commands)
	}
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint16(buf, p.peer)
	buf[2] = p.flags
	buf[3] = uint8(count)
	for _, c := range p.commands {
		buf = append(buf, uint8(c.tag), uint8(len(c.body)))
		buf = append(buf, c.body...)
	}
	return buf
}

func fragmentBody(id, count, number, total uint32, payload []byte) []byte {
	b := make([]byte, fragmentHeaderSize, fragmentHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(b[0:], id)
	binary.LittleEndian.PutUint32(b[4:], count)
	binary.LittleEndian.PutUint32(b[8:], number)
	binary.LittleEndian.PutUint32(b[12:], total)
	return append(b, payload...)
}

func TestParseHeader(t *testing.T) {
	data := []byte{0x34, 0x12, 3, 2, 1, 2, 3, 4, 5, 6, 7, 8, 0xee}
	h, err := ParseHeader(data)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), h.PeerID)
	assert.Equal(t, uint8(3), h.Flags)
	assert.Equal(t, uint8(2), h.CommandCount)
	assert.Equal(t, [8]byte{1, 2, 3, 4, 5, 6, 7, 8}, h.Reserved)
}

func TestDecodeTooSmall(t *testing.T) {
	l := NewLayer(ReassemblyConfig{})
	for n := 0; n < HeaderSize; n++ {
		cmds, err := l.Decode(make([]byte, n))
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrPacketTooSmall))
		assert.Empty(t, cmds)
	}
	assert.Equal(t, uint64(0), l.Stats().Packets)
}

func TestDecodeZeroCommands(t *testing.T) {
	l := NewLayer(ReassemblyConfig{})
	for _, flags := range []uint8{0, 1, 200} {
		data := packet{peer: 7, flags: flags, count: 0}.bytes()
		cmds, err := l.Decode(append(data, 0xde, 0xad))
		require.NoError(t, err)
		assert.Empty(t, cmds)
	}
}

func TestDecodeReliableCommandScenario(t *testing.T) {
	data := []byte{
		0x01, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0, 0, 0,
		0x01, 0x06, 0x01, 0x81, 0x01, 0x02, 'H', 'i',
	}
	l := NewLayer(ReassemblyConfig{})
	cmds, err := l.Decode(data)
	require.NoError(t, err)
	require.Len(t, cmds, 1)

	cmd := cmds[0]
	assert.Equal(t, uint8(1), cmd.OperationCode)
	assert.True(t, cmd.HasChannel)
	assert.Equal(t, uint8(1), cmd.ChannelID)
	assert.Equal(t, Parameters{1: []byte("Hi")}, cmd.Parameters)
}

func TestDecodeStopsAtTruncation(t *testing.T) {
	good := rawCommand{CommandReliable, []byte{3, 0}}
	data := packet{count: 3, commands: []rawCommand{good, good}}.bytes()
	// Third command claims 50 bytes.
	data = append(data, uint8(CommandReliable), 50, 1, 2)

	l := NewLayer(ReassemblyConfig{})
	cmds, err := l.Decode(data)
	require.NoError(t, err)
	assert.Len(t, cmds, 2)
	assert.Equal(t, uint64(1), l.Stats().TruncatedPackets)
}

func TestDecodeCountBeyondBuffer(t *testing.T) {
	good := rawCommand{CommandUnreliable, []byte{3, 0}}
	data := packet{count: 9, commands: []rawCommand{good}}.bytes()

	l := NewLayer(ReassemblyConfig{})
	cmds, err := l.Decode(data)
	require.NoError(t, err)
	assert.Len(t, cmds, 1)

	// Dangling tag byte without a length.
	cmds, err = l.Decode(append(data, uint8(CommandReliable)))
	require.NoError(t, err)
	assert.Len(t, cmds, 1)
}

func TestDecodeSkipsBadCommands(t *testing.T) {
	data := packet{count: -1, commands: []rawCommand{
		{CommandReliable, []byte{1}},         // malformed, one byte
		{CommandType(9), []byte{1, 2, 3}},    // unknown tag
		{CommandReliableFragment, []byte{1}}, // fragment header too short
		{CommandUnreliable, []byte{4, 0x82, 1, 1, 'x'}},
	}}.bytes()

	l := NewLayer(ReassemblyConfig{})
	cmds, err := l.Decode(data)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, uint8(4), cmds[0].OperationCode)
	assert.Equal(t, uint8(2), cmds[0].ChannelID)

	st := l.Stats()
	assert.Equal(t, uint64(1), st.MalformedCommands)
	assert.Equal(t, uint64(1), st.UnknownCommands)
	assert.Equal(t, uint64(1), st.ShortFragments)
	assert.Equal(t, uint64(1), st.Commands)
}

func TestDecodeFragmentedCommand(t *testing.T) {
	whole := []byte{10, 0x00, 1, 4, 0x39, 0x05, 0, 0, 2, 4, 0x64, 0, 0, 0}
	first, second := whole[:5], whole[5:]

	l := NewLayer(ReassemblyConfig{})
	p1 := packet{count: -1, commands: []rawCommand{
		{CommandReliableFragment, fragmentBody(77, 2, 1, uint32(len(whole)), second)},
	}}.bytes()
	cmds, err := l.Decode(p1)
	require.NoError(t, err)
	assert.Empty(t, cmds)
	assert.Equal(t, 1, l.PendingFragmentSets())

	p2 := packet{count: -1, commands: []rawCommand{
		{CommandReliableFragment, fragmentBody(77, 2, 0, uint32(len(whole)), first)},
		{CommandReliable, []byte{2, 0}},
	}}.bytes()
	cmds, err = l.Decode(p2)
	require.NoError(t, err)
	require.Len(t, cmds, 2)

	assert.Equal(t, uint8(10), cmds[0].OperationCode)
	v, ok := cmds[0].Parameters.Int(1)
	assert.True(t, ok)
	assert.Equal(t, int32(1337), v)
	assert.Equal(t, uint8(2), cmds[1].OperationCode)

	assert.Equal(t, 0, l.PendingFragmentSets())
	assert.Equal(t, uint64(1), l.Stats().ReassembledCommands)
}

func TestDecodeRejectedFragment(t *testing.T) {
	l := NewLayer(ReassemblyConfig{})
	data := packet{count: -1, commands: []rawCommand{
		{CommandReliableFragment, fragmentBody(1, 0, 0, 4, []byte("ab"))},
	}}.bytes()
	cmds, err := l.Decode(data)
	require.NoError(t, err)
	assert.Empty(t, cmds)
	assert.Equal(t, uint64(1), l.Stats().RejectedFragments)
}

func TestLayerSweep(t *testing.T) {
	l := NewLayer(ReassemblyConfig{})
	data := packet{count: -1, commands: []rawCommand{
		{CommandReliableFragment, fragmentBody(5, 3, 0, 9, []byte("abc"))},
	}}.bytes()
	_, err := l.DecodeAt(data, t0)
	require.NoError(t, err)

	assert.Equal(t, 1, l.Sweep(t0.Add(6*time.Second)))
	assert.Equal(t, uint64(1), l.Stats().EvictedSets)
	assert.Equal(t, 0, l.PendingFragmentSets())
}

func TestIsPhotonPacket(t *testing.T) {
	hdr := func(flags, count uint8) []byte {
		return packet{flags: flags, count: int(count)}.bytes()
	}
	assert.True(t, IsPhotonPacket(hdr(0, 1)))
	assert.True(t, IsPhotonPacket(hdr(9, 19)))
	assert.False(t, IsPhotonPacket(hdr(0, 0)))
	assert.False(t, IsPhotonPacket(hdr(10, 1)))
	assert.False(t, IsPhotonPacket(hdr(0, 20)))
	assert.False(t, IsPhotonPacket(hdr(0, 1)[:HeaderSize-1]))
}

func TestIsProtocolError(t *testing.T) {
	_, err := ParseHeader(nil)
	assert.True(t, IsProtocolError(err))
	assert.False(t, IsProtocolError(core.ErrTransport))
}

func FuzzLayerDecode(f *testing.F) {
	f.Add(packet{count: -1, commands: []rawCommand{{CommandReliable, []byte{1, 0x81, 1, 2, 'H', 'i'}}}}.bytes())
	f.Add(packet{count: -1, commands: []rawCommand{{CommandReliableFragment, fragmentBody(1, 2, 0, 4, []byte("ab"))}}}.bytes())
	f.Fuzz(func(t *testing.T, data []byte) {
		l := NewLayer(ReassemblyConfig{MaxTotalSize: 4096})
		cmds, err := l.Decode(data)
		if err != nil {
			return
		}
		if len(cmds) > int(data[3]) {
			t.Fatalf("%d commands from a header announcing %d", len(cmds), data[3])
		}
	})
}
