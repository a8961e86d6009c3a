// Package runner quantizes a float weight matrix, packs it for a dispatch
// table and multiplies activations against it. The CLI bench command and
// the HTTP service share it.
package runner

import (
	"errors"
	"fmt"
	"math"

	"github.com/samcharles93/qnbit/pkg/qnbit"
)

// Options selects how the weights are quantized and multiplied.
type Options struct {
	BitWidth    int
	BlkLen      int
	ComputeType qnbit.ComputeType
	Symmetric   bool
}

// Sizes reports every buffer size a caller must provide for one problem.
type Sizes struct {
	ComputeType          string `json:"compute_type"`
	BlockCountK          int    `json:"block_count_k"`
	BlockBytes           int    `json:"block_bytes"`
	QuantBDataBytes      int    `json:"quant_b_data_bytes"`
	QuantBScaleCount     int    `json:"quant_b_scale_count"`
	QuantBZeroPointBytes int    `json:"quant_b_zero_point_bytes"`
	PackedBytes          int    `json:"packed_bytes"`
	PerGemmWorkspace     int    `json:"per_gemm_workspace_bytes"`
	WorkspaceAlignment   int    `json:"workspace_alignment"`
	WorkspaceBytes       int    `json:"workspace_bytes"`
}

// ComputeSizes sizes a batch of (M×K)·(K×N) GEMMs on d.
func ComputeSizes(d *qnbit.Dispatch, m, n, k, batch int, opts Options) (Sizes, error) {
	if err := validate(d, opts); err != nil {
		return Sizes{}, err
	}
	if m < 0 || n <= 0 || k <= 0 || batch <= 0 {
		return Sizes{}, fmt.Errorf("runner: m=%d n=%d k=%d batch=%d: %w", m, n, k, batch, qnbit.ErrShape)
	}
	if err := qnbit.CheckShape(m, n, k, opts.BlkLen, batch); err != nil {
		return Sizes{}, fmt.Errorf("runner: %w", err)
	}
	ct := qnbit.ResolveComputeType(d, opts.ComputeType)
	if !qnbit.IsGemmAvailable(d, opts.BitWidth, opts.BlkLen, ct) {
		return Sizes{}, fmt.Errorf("runner: %s/%d-bit/%s: %w", d.Name(), opts.BitWidth, ct, qnbit.ErrUnsupported)
	}
	data, scales, zps := qnbit.QuantBBufferSizes(opts.BitWidth, opts.BlkLen, n, k)
	return Sizes{
		ComputeType:          ct.String(),
		BlockCountK:          qnbit.BlockCountK(k, opts.BlkLen),
		BlockBytes:           qnbit.BlockByteSize(opts.BitWidth, opts.BlkLen),
		QuantBDataBytes:      data,
		QuantBScaleCount:     scales,
		QuantBZeroPointBytes: zps,
		PackedBytes:          qnbit.PackQuantBDataSize(d, n, k, opts.BitWidth, opts.BlkLen, ct),
		PerGemmWorkspace:     qnbit.PerGemmWorkspaceSize(d, m, n, k, opts.BlkLen, ct),
		WorkspaceAlignment:   qnbit.PerGemmWorkspaceAlignment(d, opts.BlkLen, ct),
		WorkspaceBytes:       qnbit.WorkspaceSize(d, m, n, k, batch, opts.BlkLen, ct),
	}, nil
}

func validate(d *qnbit.Dispatch, opts Options) error {
	if d == nil {
		return errors.New("runner: nil dispatch table")
	}
	if !qnbit.IsValidBitWidth(opts.BitWidth) {
		return fmt.Errorf("runner: bit width %d: %w", opts.BitWidth, qnbit.ErrInvalidBitWidth)
	}
	if d.BlkBitWidth() != opts.BitWidth {
		return fmt.Errorf("runner: table %s serves %d-bit weights, not %d: %w",
			d.Name(), d.BlkBitWidth(), opts.BitWidth, qnbit.ErrInvalidBitWidth)
	}
	if !qnbit.IsValidBlkLen(opts.BlkLen) {
		return fmt.Errorf("runner: block length %d: %w", opts.BlkLen, qnbit.ErrInvalidBlkLen)
	}
	return nil
}

// Weights is a quantized and packed K×N matrix ready for Multiply. It is
// read-only after Prepare and safe for concurrent use.
type Weights struct {
	d      *qnbit.Dispatch
	opts   Options
	q      *qnbit.QuantizedB
	packed []byte
}

// Prepare quantizes the K×N row-major matrix b and packs it for d.
func Prepare(d *qnbit.Dispatch, b []float32, k, n int, opts Options, exec qnbit.Executor) (*Weights, error) {
	if err := validate(d, opts); err != nil {
		return nil, err
	}
	opts.ComputeType = qnbit.ResolveComputeType(d, opts.ComputeType)
	if !qnbit.IsGemmAvailable(d, opts.BitWidth, opts.BlkLen, opts.ComputeType) {
		return nil, fmt.Errorf("runner: %s/%d-bit/%s: %w", d.Name(), opts.BitWidth, opts.ComputeType, qnbit.ErrUnsupported)
	}
	if k <= 0 || n <= 0 {
		return nil, fmt.Errorf("runner: weights %dx%d: %w", k, n, qnbit.ErrShape)
	}
	if err := qnbit.CheckShape(0, n, k, opts.BlkLen, 1); err != nil {
		return nil, fmt.Errorf("runner: weights: %w", err)
	}
	if len(b) < k*n {
		return nil, fmt.Errorf("runner: weights need %dx%d values, got %d: %w", k, n, len(b), qnbit.ErrShape)
	}

	q, err := qnbit.QuantizeBlockwise(opts.BitWidth, opts.BlkLen, b, k, n, n, opts.Symmetric)
	if err != nil {
		return nil, err
	}
	w := &Weights{d: d, opts: opts, q: q, packed: q.Data}
	if size := qnbit.PackQuantBDataSize(d, n, k, opts.BitWidth, opts.BlkLen, opts.ComputeType); size > 0 {
		w.packed = make([]byte, size)
		if err := qnbit.PackQuantBData(d, n, k, opts.BitWidth, opts.BlkLen, opts.ComputeType, q.Data, w.packed, exec); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// ComputeType returns the resolved compute type.
func (w *Weights) ComputeType() qnbit.ComputeType { return w.opts.ComputeType }

// PackedBytes returns the size of B as handed to the kernels.
func (w *Weights) PackedBytes() int { return len(w.packed) }

// Quantized returns the naive quantized form of the weights.
func (w *Weights) Quantized() *qnbit.QuantizedB { return w.q }

// Multiply computes the M×N product of the M×K row-major a with the
// weights. bias may be nil.
func (w *Weights) Multiply(m int, a, bias []float32, exec qnbit.Executor) ([]float32, error) {
	n, k := w.q.N, w.q.K
	if m <= 0 {
		return nil, fmt.Errorf("runner: m=%d: %w", m, qnbit.ErrShape)
	}
	if err := qnbit.CheckShape(m, n, k, w.opts.BlkLen, 1); err != nil {
		return nil, fmt.Errorf("runner: multiply: %w", err)
	}
	if len(a) < m*k {
		return nil, fmt.Errorf("runner: activations need %dx%d values, got %d: %w", m, k, len(a), qnbit.ErrShape)
	}
	if bias != nil && len(bias) < n {
		return nil, fmt.Errorf("runner: bias has %d values, need %d: %w", len(bias), n, qnbit.ErrShape)
	}
	c := make([]float32, m*n)
	params := []qnbit.GemmParams{{
		A:                a,
		Lda:              k,
		PackedQuantBData: w.packed,
		QuantBScale:      w.q.Scale,
		QuantBZeroPoint:  w.q.ZeroPoint,
		Bias:             bias,
		C:                c,
		Ldc:              n,
	}}
	ws := qnbit.NewWorkspace(w.d, m, n, k, 1, w.opts.BlkLen, w.opts.ComputeType)
	if err := qnbit.Gemm(w.d, m, n, k, w.opts.BitWidth, w.opts.BlkLen, w.opts.ComputeType, params, ws, exec); err != nil {
		return nil, err
	}
	return c, nil
}

// Reference computes the same product against the dequantized weights in
// float64.
func (w *Weights) Reference(m int, a, bias []float32) []float32 {
	n, k := w.q.N, w.q.K
	dense := make([]float32, k*n)
	w.q.Dequantize(dense)
	c := make([]float32, m*n)
	qnbit.ReferenceGemm(m, n, k, a, k, dense, n, bias, c, n)
	return c
}

// MaxAbsDiff returns the largest elementwise difference of a and b.
func MaxAbsDiff(a, b []float32) float64 {
	var worst float64
	for i := range min(len(a), len(b)) {
		worst = max(worst, math.Abs(float64(a[i])-float64(b[i])))
	}
	return worst
}
