package nibble

import "github.com/samcharles93/qnbit/pkg/qnbit"

// KernelCompInt8 multiplies up to RowTile Q8 rows of A by packed B and
// returns the number of rows written.
func KernelCompInt8(
	blkLen int,
	quantA []byte,
	quantBData []byte,
	quantBScale []float32,
	quantBZeroPoint []byte,
	c []float32,
	countM, countN, countK, blockCountK, ldc int,
	bias []float32,
) int {
	rows := min(countM, RowTile)
	if rows <= 0 {
		return 0
	}
	blkBytes := qnbit.BlockByteSize(blkBitWidth, blkLen)
	q8Size := qnbit.Q8BlkSize(blkLen)
	rowSize := blockCountK * q8Size
	var vals [maxBlkLen]int16

	for n := range countN {
		var acc [RowTile]float32
		for blk := range blockCountK {
			k0 := blk * blkLen
			if k0 >= countK {
				break
			}
			kLen := min(blkLen, countK-k0)
			idx := n*blockCountK + blk
			decodeBlock(vals[:blkLen], quantBData[idx*blkBytes:(idx+1)*blkBytes], blkLen,
				zeroPoint(quantBZeroPoint, blockCountK, n, blk))
			bScale := quantBScale[idx]

			for r := range rows {
				qa := quantA[r*rowSize+blk*q8Size : r*rowSize+(blk+1)*q8Size]
				aData := qnbit.Q8BlkData(qa, blkLen)
				var dot int32
				for i, v := range vals[:kLen] {
					dot += int32(int8(aData[i])) * int32(v)
				}
				acc[r] += float32(dot) * qnbit.Q8BlkScale(qa) * bScale
			}
		}
		for r := range rows {
			v := acc[r]
			if bias != nil {
				v += bias[n]
			}
			c[r*ldc+n] = v
		}
	}
	return rows
}
