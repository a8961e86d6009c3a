package qnbit

import (
	"fmt"
	"math"
)

// QuantizedB is an N×K matrix in the naive column-major block layout.
type QuantizedB struct {
	BlkBitWidth int
	BlkLen      int
	N, K        int

	Data  []byte
	Scale []float32
	// ZeroPoint is nil for symmetric quantization.
	ZeroPoint []byte
}

// BlockCountK returns the number of blocks per column.
func (q *QuantizedB) BlockCountK() int {
	return BlockCountK(q.K, q.BlkLen)
}

// BlockValue returns value i of a block in the naive layout.
func BlockValue(blk []byte, blkBitWidth, i int) uint8 {
	switch blkBitWidth {
	case 8:
		return blk[i]
	case 4:
		return blk[i>>1] >> ((i & 1) * 4) & 0x0F
	case 2:
		return blk[i>>2] >> ((i & 3) * 2) & 0x03
	default:
		panic(fmt.Sprintf("qnbit: unsupported bit width %d", blkBitWidth))
	}
}

// SetBlockValue stores value i of a block in the naive layout.
func SetBlockValue(blk []byte, blkBitWidth, i int, v uint8) {
	switch blkBitWidth {
	case 8:
		blk[i] = v
	case 4:
		shift := (i & 1) * 4
		blk[i>>1] = blk[i>>1]&^(0x0F<<shift) | (v&0x0F)<<shift
	case 2:
		shift := (i & 3) * 2
		blk[i>>2] = blk[i>>2]&^(0x03<<shift) | (v&0x03)<<shift
	default:
		panic(fmt.Sprintf("qnbit: unsupported bit width %d", blkBitWidth))
	}
}

// ZeroPointAt returns the zero point of block blk in column col. zp may be
// nil, in which case the neutral zero point is returned.
func ZeroPointAt(zp []byte, blkBitWidth, blockCountK, col, blk int) uint8 {
	if zp == nil {
		return NeutralZeroPoint(blkBitWidth)
	}
	if blkBitWidth <= 4 {
		b := zp[col*ZeroPointBytesForBlocks(blkBitWidth, blockCountK)+blk>>1]
		if blk&1 == 1 {
			return b >> 4
		}
		return b & 0x0F
	}
	return zp[col*blockCountK+blk]
}

func setZeroPoint(zp []byte, blkBitWidth, blockCountK, col, blk int, v uint8) {
	if blkBitWidth <= 4 {
		idx := col*ZeroPointBytesForBlocks(blkBitWidth, blockCountK) + blk>>1
		if blk&1 == 1 {
			zp[idx] = zp[idx]&0x0F | v<<4
		} else {
			zp[idx] = zp[idx]&0xF0 | v&0x0F
		}
		return
	}
	zp[col*blockCountK+blk] = v
}

// QuantizeBlockwise quantizes the K×N row-major matrix b (row stride ldb)
// column by column into blocks of blkLen values.
func QuantizeBlockwise(blkBitWidth, blkLen int, b []float32, k, n, ldb int, symmetric bool) (*QuantizedB, error) {
	if !IsValidBitWidth(blkBitWidth) {
		return nil, fmt.Errorf("qnbit: bit width %d: %w", blkBitWidth, ErrInvalidBitWidth)
	}
	if !IsValidBlkLen(blkLen) {
		return nil, fmt.Errorf("qnbit: block length %d: %w", blkLen, ErrInvalidBlkLen)
	}
	if k <= 0 || n <= 0 || ldb < n {
		return nil, fmt.Errorf("qnbit: quantize %dx%d ldb=%d: %w", k, n, ldb, ErrShape)
	}
	if err := CheckShape(0, n, k, blkLen, 1); err != nil {
		return nil, fmt.Errorf("qnbit: quantize: %w", err)
	}
	need, ok := stridedLen(k, ldb, n)
	if !ok {
		return nil, fmt.Errorf("qnbit: quantize %dx%d ldb=%d overflows: %w", k, n, ldb, ErrShape)
	}
	if len(b) < need {
		return nil, fmt.Errorf("qnbit: quantize source has %d values, need %d: %w", len(b), need, ErrBufferTooSmall)
	}

	dataBytes, scaleCount, zpBytes := QuantBBufferSizes(blkBitWidth, blkLen, n, k)
	q := &QuantizedB{
		BlkBitWidth: blkBitWidth,
		BlkLen:      blkLen,
		N:           n,
		K:           k,
		Data:        make([]byte, dataBytes),
		Scale:       make([]float32, scaleCount),
	}
	if !symmetric {
		q.ZeroPoint = make([]byte, zpBytes)
	}

	blockCountK := BlockCountK(k, blkLen)
	blkBytes := BlockByteSize(blkBitWidth, blkLen)
	qmax := float32(int(1)<<blkBitWidth - 1)
	mid := NeutralZeroPoint(blkBitWidth)

	for col := range n {
		for blk := range blockCountK {
			k0 := blk * blkLen
			kLen := min(blkLen, k-k0)

			var vmin, vmax float32
			for i := range kLen {
				v := b[(k0+i)*ldb+col]
				vmin = min(vmin, v)
				vmax = max(vmax, v)
			}

			var scale float32
			zp := mid
			if symmetric {
				amax := max(-vmin, vmax)
				scale = amax / float32(int(mid)-1)
			} else {
				scale = (vmax - vmin) / qmax
				if scale != 0 {
					zp = uint8(clampRound(-vmin/scale, 0, qmax))
				}
				setZeroPoint(q.ZeroPoint, blkBitWidth, blockCountK, col, blk, zp)
			}
			inv := float32(0)
			if scale != 0 {
				inv = 1 / scale
			}

			idx := col*blockCountK + blk
			q.Scale[idx] = scale
			dst := q.Data[idx*blkBytes : (idx+1)*blkBytes]
			for i := range blkLen {
				v := zp
				if i < kLen {
					v = uint8(clampRound(b[(k0+i)*ldb+col]*inv+float32(zp), 0, qmax))
				}
				SetBlockValue(dst, blkBitWidth, i, v)
			}
		}
	}
	return q, nil
}

func clampRound(v, lo, hi float32) float32 {
	r := float32(math.RoundToEven(float64(v)))
	return max(lo, min(hi, r))
}

// Dequantize expands q into dst as a K×N row-major matrix.
func (q *QuantizedB) Dequantize(dst []float32) {
	blockCountK := q.BlockCountK()
	blkBytes := BlockByteSize(q.BlkBitWidth, q.BlkLen)
	for col := range q.N {
		for blk := range blockCountK {
			idx := col*blockCountK + blk
			scale := q.Scale[idx]
			zp := float32(ZeroPointAt(q.ZeroPoint, q.BlkBitWidth, blockCountK, col, blk))
			src := q.Data[idx*blkBytes : (idx+1)*blkBytes]
			k0 := blk * q.BlkLen
			for i := range min(q.BlkLen, q.K-k0) {
				v := float32(BlockValue(src, q.BlkBitWidth, i))
				dst[(k0+i)*q.N+col] = (v - zp) * scale
			}
		}
	}
}

// ReferenceGemm computes c = a·b + bias with a plain triple loop. a is M×K
// with stride lda, b is K×N with stride ldb and c is M×N with stride ldc.
// bias may be nil.
func ReferenceGemm(m, n, k int, a []float32, lda int, b []float32, ldb int, bias []float32, c []float32, ldc int) {
	for i := range m {
		for j := range n {
			var sum float64
			for kk := range k {
				sum += float64(a[i*lda+kk]) * float64(b[kk*ldb+j])
			}
			if bias != nil {
				sum += float64(bias[j])
			}
			c[i*ldc+j] = float32(sum)
		}
	}
}
