// Package nibble implements 4-bit kernels over a packed B layout in which
// each byte of a sub-block carries value i in its low nibble and value
// i+SubBlkLen/2 in its high nibble.
//
// The layout lets a kernel split a whole sub-block into low and high halves
// with two mask operations instead of interleaving nibbles per value. The
// int8 kernel computes up to RowTile rows of C per call and decodes each B
// block once for all of them.
package nibble

import "github.com/samcharles93/qnbit/pkg/qnbit"

const (
	blkBitWidth = 4

	// RowTile is the most rows KernelCompInt8 processes per call.
	RowTile = 4

	maxBlkLen = 256
)

// New returns the nibble kernel set.
func New() qnbit.Kernels {
	return qnbit.Kernels{
		PackQuantBDataSize:       PackQuantBDataSize,
		PackQuantBData:           PackQuantBData,
		WorkspaceSize:            WorkspaceSize,
		WorkspaceAlignment:       WorkspaceAlignment,
		M1KernelCompFp32:         M1KernelCompFp32,
		DequantBForSgemmCompFp32: DequantBForSgemmCompFp32,
		KernelCompInt8:           KernelCompInt8,
		QuantizeARowCompInt8:     qnbit.QuantizeQ8Row,
	}
}

// SubBlkLen returns the number of values sharing one run of packed bytes.
func SubBlkLen(blkLen int) int {
	if blkLen == 16 {
		return 16
	}
	return 32
}

// PackQuantBDataSize returns the packed size, which equals the naive size.
func PackQuantBDataSize(n, k, blkLen int, _ qnbit.ComputeType) int {
	return n * qnbit.BlockCountK(k, blkLen) * qnbit.BlockByteSize(blkBitWidth, blkLen)
}

// PackQuantBData rearranges every sub-block from
//
//	(v0 v1) (v2 v3) ... (v30 v31)
//
// into
//
//	(v0 v16) (v1 v17) ... (v15 v31)
//
// where each pair is (low nibble, high nibble). Columns are packed as
// independent tasks.
func PackQuantBData(n, k, blkLen int, _ qnbit.ComputeType, src, dst []byte, exec qnbit.Executor) {
	blockCountK := qnbit.BlockCountK(k, blkLen)
	blkBytes := qnbit.BlockByteSize(blkBitWidth, blkLen)
	sub := SubBlkLen(blkLen)
	half := sub / 2

	qnbit.Run(exec, n, func(col int) {
		for blk := range blockCountK {
			off := (col*blockCountK + blk) * blkBytes
			in := src[off : off+blkBytes]
			out := dst[off : off+blkBytes]
			for s0 := 0; s0 < blkLen; s0 += sub {
				o := out[s0/2 : (s0+sub)/2]
				for i := range half {
					lo := qnbit.BlockValue(in, blkBitWidth, s0+i)
					hi := qnbit.BlockValue(in, blkBitWidth, s0+i+half)
					o[i] = lo | hi<<4
				}
			}
		}
	})
}

// WorkspaceSize returns room for one Q8 row per row of A on the int8 path.
func WorkspaceSize(m, _, k, blkLen int, ct qnbit.ComputeType) int {
	if ct != qnbit.CompInt8 {
		return 0
	}
	return m * qnbit.Q8RowSize(blkLen, k)
}

// WorkspaceAlignment returns the Q8 block alignment on the int8 path.
func WorkspaceAlignment(_ int, ct qnbit.ComputeType) int {
	if ct != qnbit.CompInt8 {
		return 1
	}
	return qnbit.Q8BlkAlignment
}

// decodeBlock unpacks one packed block into signed values with the zero
// point already subtracted.
func decodeBlock(dst []int16, packed []byte, blkLen int, zp int16) {
	sub := SubBlkLen(blkLen)
	half := sub / 2
	for s0 := 0; s0 < blkLen; s0 += sub {
		p := packed[s0/2 : (s0+sub)/2]
		lo := dst[s0 : s0+half]
		hi := dst[s0+half : s0+sub]
		for i, b := range p {
			lo[i] = int16(b&0x0F) - zp
			hi[i] = int16(b>>4) - zp
		}
	}
}

func zeroPoint(zp []byte, blockCountK, col, blk int) int16 {
	return int16(qnbit.ZeroPointAt(zp, blkBitWidth, blockCountK, col, blk))
}
