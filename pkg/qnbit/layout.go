package qnbit

// Supported block lengths and bit widths.
var (
	blkLens   = []int{16, 32, 64, 128, 256}
	bitWidths = []int{2, 4, 8}
	maxBlkLen = 256
	minBlkLen = 16
)

// DequantTileN is the column tile width produced by the CompFp32
// dequantize-for-fallback kernel.
const DequantTileN = 16

// BlockByteSize returns the number of data bytes in one quantized block.
// blkLen*blkBitWidth must be a multiple of 8.
func BlockByteSize(blkBitWidth, blkLen int) int {
	return blkLen * blkBitWidth / 8
}

// ZeroPointBytesForBlocks returns the bytes needed to hold the zero points
// of blockCount blocks. Widths up to 4 bits pack two zero points per byte
// with the earlier block in the low nibble. Wider zero points take a whole
// byte each.
func ZeroPointBytesForBlocks(blkBitWidth, blockCount int) int {
	if blkBitWidth <= 4 {
		return DivRoundUp(blockCount, 2)
	}
	return blockCount
}

// BlockCountK returns the number of blocks covering k values.
func BlockCountK(k, blkLen int) int {
	return DivRoundUp(k, blkLen)
}

// QuantBBufferSizes returns the sizes of the three buffers of a quantized
// N×K matrix in the naive column-major layout: data bytes, scale count and
// zero-point bytes.
func QuantBBufferSizes(blkBitWidth, blkLen, n, k int) (dataBytes, scaleCount, zeroPointBytes int) {
	blockCountK := BlockCountK(k, blkLen)
	dataBytes = n * blockCountK * BlockByteSize(blkBitWidth, blkLen)
	scaleCount = n * blockCountK
	zeroPointBytes = n * ZeroPointBytesForBlocks(blkBitWidth, blockCountK)
	return dataBytes, scaleCount, zeroPointBytes
}

// NeutralZeroPoint is the zero point assumed when none is stored.
func NeutralZeroPoint(blkBitWidth int) uint8 {
	return uint8(1) << (blkBitWidth - 1)
}

// IsValidBlkLen reports whether blkLen is one of the supported block lengths.
func IsValidBlkLen(blkLen int) bool {
	if blkLen < minBlkLen || blkLen > maxBlkLen {
		return false
	}
	for _, l := range blkLens {
		if l == blkLen {
			return true
		}
	}
	return false
}

// IsValidBitWidth reports whether blkBitWidth is one of the supported widths.
func IsValidBitWidth(blkBitWidth int) bool {
	for _, w := range bitWidths {
		if w == blkBitWidth {
			return true
		}
	}
	return false
}

// DivRoundUp returns ceil(a/b) for non-negative a and positive b.
func DivRoundUp(a, b int) int {
	return (a + b - 1) / b
}

// RoundUp rounds a up to a multiple of b.
func RoundUp(a, b int) int {
	return DivRoundUp(a, b) * b
}

// DequantBufferLen returns the float count the CompFp32 dequantize kernel
// may touch for a countN×countK slice of B.
func DequantBufferLen(blkLen, countN, countK int) int {
	return RoundUp(countN, DequantTileN) * RoundUp(countK, blkLen)
}

func mulInt(a, b int) (int, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a < 0 || b < 0 || a > int(^uint(0)>>1)/b {
		return 0, false
	}
	return a * b, true
}

func addInt(a, b int) (int, bool) {
	if a < 0 || b < 0 || a > int(^uint(0)>>1)-b {
		return 0, false
	}
	return a + b, true
}
