package runner

import (
	"errors"
	"math"
	"testing"

	"github.com/samcharles93/qnbit/internal/kernels/nibble"
	"github.com/samcharles93/qnbit/internal/kernels/reference"
	"github.com/samcharles93/qnbit/internal/workerpool"
	"github.com/samcharles93/qnbit/pkg/qnbit"
)

func weights(k, n int) []float32 {
	b := make([]float32, k*n)
	for i := range b {
		b[i] = float32(math.Sin(float64(i)*0.41)) * 0.8
	}
	return b
}

func TestMultiplyMatchesReference(t *testing.T) {
	t.Parallel()
	pool := workerpool.New(3)
	defer pool.Close()

	tables := []*qnbit.Dispatch{
		qnbit.NewDispatch("reference", 4, reference.New(4)),
		qnbit.NewDispatch("nibble", 4, nibble.New()),
	}
	const m, n, k = 3, 70, 96
	b := weights(k, n)
	a := make([]float32, m*k)
	for i := range a {
		a[i] = float32(i%11)*0.1 - 0.5
	}
	bias := make([]float32, n)
	for i := range bias {
		bias[i] = float32(i%3) - 1
	}

	for _, d := range tables {
		for _, ct := range []qnbit.ComputeType{qnbit.CompFp32, qnbit.CompInt8} {
			w, err := Prepare(d, b, k, n, Options{BitWidth: 4, BlkLen: 32, ComputeType: ct}, pool)
			if err != nil {
				t.Fatalf("%s/%s: Prepare: %v", d.Name(), ct, err)
			}
			got, err := w.Multiply(m, a, bias, pool)
			if err != nil {
				t.Fatalf("%s/%s: Multiply: %v", d.Name(), ct, err)
			}
			want := w.Reference(m, a, bias)
			// The int8 path also quantizes A.
			tol := 1e-3
			if ct == qnbit.CompInt8 {
				tol = 0.5
			}
			if diff := MaxAbsDiff(got, want); diff > tol {
				t.Fatalf("%s/%s: max diff %g", d.Name(), ct, diff)
			}
		}
	}
}

func TestPrepareResolvesComputeType(t *testing.T) {
	t.Parallel()
	d := qnbit.NewDispatch("reference", 8, reference.New(8))
	w, err := Prepare(d, weights(16, 4), 16, 4, Options{BitWidth: 8, BlkLen: 16}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if w.ComputeType() != qnbit.CompFp32 {
		t.Fatalf("ComputeType = %v, want CompFp32", w.ComputeType())
	}
	if w.Quantized().K != 16 || w.Quantized().N != 4 {
		t.Fatalf("Quantized shape = %dx%d", w.Quantized().K, w.Quantized().N)
	}
}

func TestPrepareErrors(t *testing.T) {
	t.Parallel()
	fp32Only := reference.New(2)
	fp32Only.KernelCompInt8 = nil
	d := qnbit.NewDispatch("fp32-only", 2, fp32Only)
	b := weights(32, 2)

	tests := []struct {
		name string
		opts Options
		b    []float32
		want error
	}{
		{"width mismatch", Options{BitWidth: 4, BlkLen: 32}, b, qnbit.ErrInvalidBitWidth},
		{"bad width", Options{BitWidth: 5, BlkLen: 32}, b, qnbit.ErrInvalidBitWidth},
		{"bad blkLen", Options{BitWidth: 2, BlkLen: 48}, b, qnbit.ErrInvalidBlkLen},
		{"int8 unbound", Options{BitWidth: 2, BlkLen: 32, ComputeType: qnbit.CompInt8}, b, qnbit.ErrUnsupported},
		{"short weights", Options{BitWidth: 2, BlkLen: 32}, b[:10], qnbit.ErrShape},
	}
	if _, err := Prepare(d, nil, 1<<62, 1<<2, Options{BitWidth: 2, BlkLen: 32}, nil); !errors.Is(err, qnbit.ErrShape) {
		t.Fatalf("overflowing weights: err = %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Prepare(d, tt.b, 32, 2, tt.opts, nil); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMultiplyShapeErrors(t *testing.T) {
	t.Parallel()
	d := qnbit.NewDispatch("reference", 4, reference.New(4))
	w, err := Prepare(d, weights(32, 3), 32, 3, Options{BitWidth: 4, BlkLen: 32}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Multiply(2, make([]float32, 32), nil, nil); !errors.Is(err, qnbit.ErrShape) {
		t.Fatalf("short A: err = %v", err)
	}
	if _, err := w.Multiply(1, make([]float32, 32), []float32{1}, nil); !errors.Is(err, qnbit.ErrShape) {
		t.Fatalf("short bias: err = %v", err)
	}
	// m*k wraps to zero, so an empty A must still be rejected.
	if _, err := w.Multiply(1<<62, nil, nil, nil); !errors.Is(err, qnbit.ErrShape) {
		t.Fatalf("overflowing m: err = %v", err)
	}
}

func TestComputeSizes(t *testing.T) {
	t.Parallel()
	d := qnbit.NewDispatch("nibble", 4, nibble.New())
	s, err := ComputeSizes(d, 2, 5, 40, 3, Options{BitWidth: 4, BlkLen: 32, ComputeType: qnbit.CompInt8})
	if err != nil {
		t.Fatal(err)
	}
	want := Sizes{
		ComputeType:          "int8",
		BlockCountK:          2,
		BlockBytes:           16,
		QuantBDataBytes:      5 * 2 * 16,
		QuantBScaleCount:     10,
		QuantBZeroPointBytes: 5,
		PackedBytes:          5 * 2 * 16,
		PerGemmWorkspace:     2 * 2 * 36,
		WorkspaceAlignment:   4,
		WorkspaceBytes:       3*2*2*36 + 3,
	}
	if s != want {
		t.Fatalf("ComputeSizes = %+v\nwant %+v", s, want)
	}

	if _, err := ComputeSizes(d, 1, 0, 40, 1, Options{BitWidth: 4, BlkLen: 32}); !errors.Is(err, qnbit.ErrShape) {
		t.Fatalf("n=0: err = %v", err)
	}
	if _, err := ComputeSizes(d, 1<<62, 4, 4, 1, Options{BitWidth: 4, BlkLen: 32}); !errors.Is(err, qnbit.ErrShape) {
		t.Fatalf("overflowing m: err = %v", err)
	}
}
