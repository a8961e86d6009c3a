package qnbit

import (
	"errors"
	"math"
	"testing"
)

func TestBlockValueRoundTrip(t *testing.T) {
	t.Parallel()
	for _, bits := range []int{2, 4, 8} {
		blk := make([]byte, BlockByteSize(bits, 32))
		mask := uint8(1)<<bits - 1
		for i := range 32 {
			SetBlockValue(blk, bits, i, uint8(i*7)&mask)
		}
		for i := range 32 {
			if got, want := BlockValue(blk, bits, i), uint8(i*7)&mask; got != want {
				t.Fatalf("bits=%d value %d = %d, want %d", bits, i, got, want)
			}
		}
	}
}

func TestFourBitValuesLowNibbleFirst(t *testing.T) {
	t.Parallel()
	blk := make([]byte, 16)
	SetBlockValue(blk, 4, 0, 0x3)
	SetBlockValue(blk, 4, 1, 0xC)
	if blk[0] != 0xC3 {
		t.Fatalf("byte 0 = %#x, want 0xc3", blk[0])
	}
}

func TestZeroPointNibbleOrder(t *testing.T) {
	t.Parallel()
	// Two columns of three blocks: each column takes two bytes.
	zp := []byte{0x21, 0x03, 0x54, 0x06}
	want := [][]uint8{{1, 2, 3}, {4, 5, 6}}
	for col := range 2 {
		for blk := range 3 {
			if got := ZeroPointAt(zp, 4, 3, col, blk); got != want[col][blk] {
				t.Fatalf("zp[%d][%d] = %d, want %d", col, blk, got, want[col][blk])
			}
		}
	}
	if got := ZeroPointAt(nil, 4, 3, 1, 2); got != 8 {
		t.Fatalf("nil zero point = %d, want 8", got)
	}
	if got := ZeroPointAt([]byte{1, 2, 3, 4}, 8, 2, 1, 1); got != 4 {
		t.Fatalf("8-bit zero point = %d, want 4", got)
	}
}

func TestQuantizeBlockwiseReconstructs(t *testing.T) {
	t.Parallel()
	const k, n = 40, 3
	b := make([]float32, k*n)
	for i := range b {
		b[i] = float32(math.Cos(float64(i)*0.37)) * 3
	}

	for _, bits := range []int{2, 4, 8} {
		for _, symmetric := range []bool{false, true} {
			q, err := QuantizeBlockwise(bits, 16, b, k, n, n, symmetric)
			if err != nil {
				t.Fatalf("QuantizeBlockwise: %v", err)
			}
			if symmetric != (q.ZeroPoint == nil) {
				t.Fatalf("bits=%d symmetric=%v: zero point presence mismatch", bits, symmetric)
			}
			got := make([]float32, k*n)
			q.Dequantize(got)
			for kk := range k {
				for col := range n {
					scale := q.Scale[col*q.BlockCountK()+kk/16]
					if diff := math.Abs(float64(got[kk*n+col] - b[kk*n+col])); diff > float64(scale)+1e-5 {
						t.Fatalf("bits=%d sym=%v (%d,%d): got %v want %v (scale %v)",
							bits, symmetric, kk, col, got[kk*n+col], b[kk*n+col], scale)
					}
				}
			}
		}
	}
}

func TestQuantizeBlockwiseErrors(t *testing.T) {
	t.Parallel()
	b := make([]float32, 64)
	if _, err := QuantizeBlockwise(3, 32, b, 8, 8, 8, false); !errors.Is(err, ErrInvalidBitWidth) {
		t.Fatalf("bit width: got %v", err)
	}
	if _, err := QuantizeBlockwise(4, 24, b, 8, 8, 8, false); !errors.Is(err, ErrInvalidBlkLen) {
		t.Fatalf("block length: got %v", err)
	}
	if _, err := QuantizeBlockwise(4, 32, b, 8, 8, 4, false); !errors.Is(err, ErrShape) {
		t.Fatalf("ldb: got %v", err)
	}
	if _, err := QuantizeBlockwise(4, 32, b, 9, 8, 8, false); !errors.Is(err, ErrBufferTooSmall) {
		t.Fatalf("short source: got %v", err)
	}
	// Shapes whose extent wraps int must not reach the length check.
	if _, err := QuantizeBlockwise(4, 32, nil, 1<<40, 8, 1<<40, false); !errors.Is(err, ErrShape) {
		t.Fatalf("overflowing ldb: got %v", err)
	}
	if _, err := QuantizeBlockwise(4, 32, nil, 1<<62, 8, 8, false); !errors.Is(err, ErrShape) {
		t.Fatalf("overflowing k: got %v", err)
	}
}

func TestReferenceGemm(t *testing.T) {
	t.Parallel()
	a := []float32{1, 2, 3, 4} // 2x2
	b := []float32{5, 6, 7, 8} // 2x2
	bias := []float32{0.5, -0.5}
	c := make([]float32, 4)
	ReferenceGemm(2, 2, 2, a, 2, b, 2, bias, c, 2)
	want := []float32{19.5, 21.5, 43.5, 49.5}
	for i := range want {
		if c[i] != want[i] {
			t.Fatalf("c[%d] = %v, want %v", i, c[i], want[i])
		}
	}
}
