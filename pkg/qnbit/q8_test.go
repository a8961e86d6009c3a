package qnbit

import (
	"math"
	"testing"
)

func TestQ8RowRoundTrip(t *testing.T) {
	t.Parallel()
	for _, blkLen := range []int{16, 32, 64} {
		for _, countK := range []int{1, 7, 16, 31, 64, 100} {
			a := make([]float32, countK)
			for i := range a {
				a[i] = float32(math.Sin(float64(i)*0.7)) * float32(1+i%5)
			}
			quantA := make([]byte, Q8RowSize(blkLen, countK))
			QuantizeQ8Row(blkLen, a, countK, quantA)

			got := make([]float32, countK)
			DequantizeQ8Row(blkLen, quantA, countK, got)

			for i := range a {
				blk := i / blkLen
				step := Q8BlkScale(quantA[blk*Q8BlkSize(blkLen):])
				if diff := math.Abs(float64(got[i] - a[i])); diff > float64(step)+1e-6 {
					t.Fatalf("blkLen=%d K=%d: value %d = %v, want %v within %v", blkLen, countK, i, got[i], a[i], step)
				}
			}
		}
	}
}

func TestQ8ZeroBlock(t *testing.T) {
	t.Parallel()
	a := make([]float32, 20)
	quantA := make([]byte, Q8RowSize(16, len(a)))
	for i := range quantA {
		quantA[i] = 0xAA
	}
	QuantizeQ8Row(16, a, len(a), quantA)
	for blk := range 2 {
		b := quantA[blk*Q8BlkSize(16):]
		if s := Q8BlkScale(b); s != 0 {
			t.Fatalf("block %d scale = %v, want 0", blk, s)
		}
		for i, v := range Q8BlkData(b, 16) {
			if v != 0 {
				t.Fatalf("block %d value %d = %d, want 0", blk, i, v)
			}
		}
	}
}

func TestQ8MaxMapsTo127(t *testing.T) {
	t.Parallel()
	a := []float32{-2, 1.1, 0.5, 2}
	quantA := make([]byte, Q8RowSize(16, len(a)))
	QuantizeQ8Row(16, a, len(a), quantA)

	data := Q8BlkData(quantA, 16)
	want := []int8{-127, 70, 32, 127}
	for i, w := range want {
		if got := int8(data[i]); got != w {
			t.Fatalf("value %d = %d, want %d", i, got, w)
		}
	}
	for i := len(a); i < 16; i++ {
		if data[i] != 0 {
			t.Fatalf("padding value %d = %d, want 0", i, data[i])
		}
	}
}
