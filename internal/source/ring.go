package source

import "fmt"

// recomputeSize derives an AF_PACKET ring geometry for a memory budget.
//
// PACKET_MMAP requires frameSize to be a multiple of TPACKET_ALIGNMENT,
// blockSize to be a multiple of both the page size and frameSize, and the
// ring to be blockSize*numBlocks bytes.
func recomputeSize(ringBufferSizeMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	const tpacketAlignment = 16
	const tpacketHdrLen = 52 // TPACKET3_HDRLEN, rounded
	const maxBlockSize = 4 << 20

	if ringBufferSizeMB <= 0 {
		return 0, 0, 0, fmt.Errorf("ring buffer size must be positive, got %d MB", ringBufferSizeMB)
	}
	if snapLen <= 0 {
		return 0, 0, 0, fmt.Errorf("snapLen must be positive, got %d", snapLen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 {
		return 0, 0, 0, fmt.Errorf("pageSize must be positive and multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	frameSize = alignUp(tpacketHdrLen+snapLen, tpacketAlignment)

	blockSize = lcm(pageSize, frameSize)
	if blockSize > maxBlockSize {
		// Fit as many frames as possible into a page-aligned block.
		blockSize = alignUp(max(maxBlockSize/frameSize, 1)*frameSize, pageSize)
	}
	if blockSize%frameSize != 0 {
		blockSize = alignUp(blockSize, frameSize)
		blockSize = alignUp(blockSize, pageSize)
	}

	numBlocks = (ringBufferSizeMB << 20) / blockSize
	if numBlocks < 1 {
		numBlocks = 1
	}
	return frameSize, blockSize, numBlocks, nil
}

func alignUp(n, to int) int {
	return (n + to - 1) / to * to
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcd(a, b) * b
}
