package nibble

import "github.com/samcharles93/qnbit/pkg/qnbit"

// M1KernelCompFp32 computes one row of C from one row of A.
func M1KernelCompFp32(
	blkLen int,
	a []float32,
	quantBData []byte,
	quantBScale []float32,
	quantBZeroPoint []byte,
	c []float32,
	countN, countK, blockStrideQuantB int,
	bias []float32,
) {
	blkBytes := qnbit.BlockByteSize(blkBitWidth, blkLen)
	var vals [maxBlkLen]int16

	for n := range countN {
		var sum float32
		for blk := range blockStrideQuantB {
			k0 := blk * blkLen
			if k0 >= countK {
				break
			}
			idx := n*blockStrideQuantB + blk
			decodeBlock(vals[:blkLen], quantBData[idx*blkBytes:(idx+1)*blkBytes], blkLen,
				zeroPoint(quantBZeroPoint, blockStrideQuantB, n, blk))

			ak := a[k0 : k0+min(blkLen, countK-k0)]
			var dot float32
			for i, av := range ak {
				dot += av * float32(vals[i])
			}
			sum += dot * quantBScale[idx]
		}
		if bias != nil {
			sum += bias[n]
		}
		c[n] = sum
	}
}

// DequantBForSgemmCompFp32 expands packed B into 16-column float tiles.
func DequantBForSgemmCompFp32(
	blkLen int,
	fpData []float32,
	quantBData []byte,
	quantBScale []float32,
	quantBZeroPoint []byte,
	countN, countK, blockStrideQuantB int,
) {
	const tileN = qnbit.DequantTileN
	blkBytes := qnbit.BlockByteSize(blkBitWidth, blkLen)
	var vals [maxBlkLen]int16

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
				decodeBlock(vals[:blkLen], quantBData[idx*blkBytes:(idx+1)*blkBytes], blkLen,
					zeroPoint(quantBZeroPoint, blockStrideQuantB, n, blk))
				scale := quantBScale[idx]
				for i := range min(blkLen, countK-k0) {
					tile[(k0+i)*tileN+j] = float32(vals[i]) * scale
				}
			}
		}
	}
}
