// Package reference implements portable kernels over the naive quantized B
// layout for 2, 4 and 8 bit weights.
//
// Packing is a plain copy, so any buffer produced by qnbit.QuantizeBlockwise
// can be fed to the kernels directly. The int8 kernel handles one row of A
// per call.
package reference

import (
	"fmt"

	"github.com/samcharles93/qnbit/pkg/qnbit"
)

// New returns the kernel set for blkBitWidth. It panics for widths the
// layout does not define.
func New(blkBitWidth int) qnbit.Kernels {
	if !qnbit.IsValidBitWidth(blkBitWidth) {
		panic(fmt.Sprintf("reference: unsupported bit width %d", blkBitWidth))
	}
	s := set{bits: blkBitWidth}
	return qnbit.Kernels{
		PackQuantBDataSize:       s.packSize,
		PackQuantBData:           s.pack,
		WorkspaceSize:            workspaceSize,
		WorkspaceAlignment:       workspaceAlignment,
		M1KernelCompFp32:         s.m1KernelCompFp32,
		DequantBForSgemmCompFp32: s.dequantBForSgemm,
		KernelCompInt8:           s.kernelCompInt8,
		QuantizeARowCompInt8:     qnbit.QuantizeQ8Row,
	}
}

type set struct {
	bits int
}

func (s set) packSize(n, k, blkLen int, _ qnbit.ComputeType) int {
	return n * qnbit.BlockCountK(k, blkLen) * qnbit.BlockByteSize(s.bits, blkLen)
}

func (s set) pack(n, k, blkLen int, _ qnbit.ComputeType, src, dst []byte, exec qnbit.Executor) {
	colBytes := qnbit.BlockCountK(k, blkLen) * qnbit.BlockByteSize(s.bits, blkLen)
	qnbit.Run(exec, n, func(col int) {
		off := col * colBytes
		copy(dst[off:off+colBytes], src[off:off+colBytes])
	})
}

func workspaceSize(m, _, k, blkLen int, ct qnbit.ComputeType) int {
	if ct != qnbit.CompInt8 {
		return 0
	}
	return m * qnbit.Q8RowSize(blkLen, k)
}

func workspaceAlignment(_ int, ct qnbit.ComputeType) int {
	if ct != qnbit.CompInt8 {
		return 1
	}
	return qnbit.Q8BlkAlignment
}

func (s set) m1KernelCompFp32(
	blkLen int,
	a []float32,
	quantBData []byte,
	quantBScale []float32,
	quantBZeroPoint []byte,
	c []float32,
	countN, countK, blockStrideQuantB int,
	bias []float32,
) {
	blkBytes := qnbit.BlockByteSize(s.bits, blkLen)
	for n := range countN {
		var sum float32
		for blk := range blockStrideQuantB {
			k0 := blk * blkLen
			if k0 >= countK {
				break
			}
			idx := n*blockStrideQuantB + blk
			src := quantBData[idx*blkBytes : (idx+1)*blkBytes]
			zp := float32(qnbit.ZeroPointAt(quantBZeroPoint, s.bits, blockStrideQuantB, n, blk))

			var dot float32
			for i := range min(blkLen, countK-k0) {
				dot += a[k0+i] * (float32(qnbit.BlockValue(src, s.bits, i)) - zp)
			}
			sum += dot * quantBScale[idx]
		}
		if bias != nil {
			sum += bias[n]
		}
		c[n] = sum
	}
}

func (s set) dequantBForSgemm(
	blkLen int,
	fpData []float32,
	quantBData []byte,
	quantBScale []float32,
	quantBZeroPoint []byte,
	countN, countK, blockStrideQuantB int,
) {
	const tileN = qnbit.DequantTileN
	blkBytes := qnbit.BlockByteSize(s.bits, blkLen)
	for t, n0 := 0, 0; n0 < countN; t, n0 = t+1, n0+tileN {
		tile := fpData[t*tileN*countK:]
		for j := range tileN {
			n := n0 + j
			if n >= countN {
				for kk := range countK {
					tile[kk*tileN+j] = 0
				}
				continue
			}
			for blk := range blockStrideQuantB {
				k0 := blk * blkLen
				if k0 >= countK {
					break
				}
				idx := n*blockStrideQuantB + blk
				src := quantBData[idx*blkBytes : (idx+1)*blkBytes]
				scale := quantBScale[idx]
				zp := float32(qnbit.ZeroPointAt(quantBZeroPoint, s.bits, blockStrideQuantB, n, blk))
				for i := range min(blkLen, countK-k0) {
					tile[(k0+i)*tileN+j] = (float32(qnbit.BlockValue(src, s.bits, i)) - zp) * scale
				}
			}
		}
	}
}

func (s set) kernelCompInt8(
	blkLen int,
	quantA []byte,
	quantBData []byte,
	quantBScale []float32,
	quantBZeroPoint []byte,
	c []float32,
	countM, countN, countK, blockCountK, _ int,
	bias []float32,
) int {
	if countM <= 0 {
		return 0
	}
	blkBytes := qnbit.BlockByteSize(s.bits, blkLen)
	q8Size := qnbit.Q8BlkSize(blkLen)
	for n := range countN {
		var sum float32
		for blk := range blockCountK {
			k0 := blk * blkLen
			if k0 >= countK {
				break
			}
			qa := quantA[blk*q8Size : (blk+1)*q8Size]
			aScale := qnbit.Q8BlkScale(qa)
			aData := qnbit.Q8BlkData(qa, blkLen)

			idx := n*blockCountK + blk
			src := quantBData[idx*blkBytes : (idx+1)*blkBytes]
			zp := int32(qnbit.ZeroPointAt(quantBZeroPoint, s.bits, blockCountK, n, blk))

			var dot int32
			for i := range min(blkLen, countK-k0) {
				dot += int32(int8(aData[i])) * (int32(qnbit.BlockValue(src, s.bits, i)) - zp)
			}
			sum += float32(dot) * aScale * quantBScale[idx]
		}
		if bias != nil {
			sum += bias[n]
		}
		c[n] = sum
	}
	return 1
}
