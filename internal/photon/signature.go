package photon

const (
	maxSignatureFlags    = 10
	maxSignatureCommands = 20
)

// IsPhotonPacket is a cheap plausibility check run before full decoding:
// a full header, small flags value and a command count in (0, 20).
func IsPhotonPacket(payload []byte) bool {
	if len(payload) < HeaderSize {
		return false
	}
	flags, count := payload[2], payload[3]
	return flags < maxSignatureFlags && count > 0 && count < maxSignatureCommands
}
