package qnbit

// sgemmTiles multiplies A (m×k, stride lda) by B dequantized into 16-column
// tiles and writes the countN columns of C starting at c[0].
func sgemmTiles(m, countN, k int, a []float32, lda int, fpData []float32, bias []float32, c []float32, ldc int) {
	var acc [DequantTileN]float32
	for t, n0 := 0, 0; n0 < countN; t, n0 = t+1, n0+DequantTileN {
		tile := fpData[t*DequantTileN*k:]
		width := min(DequantTileN, countN-n0)
		for i := range m {
			clear(acc[:])
			row := a[i*lda : i*lda+k]
			for kk, av := range row {
				b := tile[kk*DequantTileN : (kk+1)*DequantTileN]
				for j := range DequantTileN {
					acc[j] += av * b[j]
				}
			}
			out := c[i*ldc+n0 : i*ldc+n0+width]
			for j := range out {
				out[j] = acc[j]
				if bias != nil {
					out[j] += bias[n0+j]
				}
			}
		}
	}
}
