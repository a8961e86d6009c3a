package qnbit

import (
	"encoding/binary"
	"math"
)

// Q8 blocks hold one row of A quantized for the CompInt8 path. A block is
// a little-endian float32 scale followed by BlkLen int8 values.
const (
	q8ScaleBytes = 4
	// Q8BlkAlignment is the required alignment of a Q8 block row.
	Q8BlkAlignment = 4
)

// Q8BlkSize returns the byte size of one Q8 block.
func Q8BlkSize(blkLen int) int {
	return q8ScaleBytes + blkLen
}

// Q8RowSize returns the byte size of one quantized row of countK values.
func Q8RowSize(blkLen, countK int) int {
	return BlockCountK(countK, blkLen) * Q8BlkSize(blkLen)
}

// Q8BlkScale reads the scale of the Q8 block starting at blk[0].
func Q8BlkScale(blk []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(blk[:q8ScaleBytes]))
}

// SetQ8BlkScale writes the scale of the Q8 block starting at blk[0].
func SetQ8BlkScale(blk []byte, scale float32) {
	binary.LittleEndian.PutUint32(blk[:q8ScaleBytes], math.Float32bits(scale))
}

// Q8BlkData returns the int8 payload of the Q8 block starting at blk[0],
// as raw bytes.
func Q8BlkData(blk []byte, blkLen int) []byte {
	return blk[q8ScaleBytes : q8ScaleBytes+blkLen]
}

// QuantizeQ8Row is the portable activation quantizer shared by the kernel
// sets. Each block uses scale = amax/127 and rounds half to even.
func QuantizeQ8Row(blkLen int, a []float32, countK int, quantA []byte) {
	blkSize := Q8BlkSize(blkLen)
	for k, blk := 0, 0; k < countK; k, blk = k+blkLen, blk+1 {
		kLen := min(blkLen, countK-k)
		dst := quantA[blk*blkSize : (blk+1)*blkSize]

		var amax float32
		for _, v := range a[k : k+kLen] {
			amax = max(amax, float32(math.Abs(float64(v))))
		}
		scale := amax / 127
		inv := float32(0)
		if scale != 0 {
			inv = 1 / scale
		}
		SetQ8BlkScale(dst, scale)

		data := Q8BlkData(dst, blkLen)
		for i := range kLen {
			q := math.RoundToEven(float64(a[k+i] * inv))
			q = max(-127, min(127, q))
			data[i] = byte(int8(q))
		}
		clear(data[kLen:])
	}
}

// DequantizeQ8Row expands a quantized row back to countK floats.
func DequantizeQ8Row(blkLen int, quantA []byte, countK int, dst []float32) {
	blkSize := Q8BlkSize(blkLen)
	for k, blk := 0, 0; k < countK; k, blk = k+blkLen, blk+1 {
		kLen := min(blkLen, countK-k)
		src := quantA[blk*blkSize : (blk+1)*blkSize]
		scale := Q8BlkScale(src)
		data := Q8BlkData(src, blkLen)
		for i := range kLen {
			dst[k+i] = float32(int8(data[i])) * scale
		}
	}
}
