package qnbit

import "fmt"

// Column tile widths used to split a GEMM across executor tasks. Both are
// multiples of DequantTileN.
const (
	fp32StrideN = 64
	int8StrideN = 64
)

// GemmParams describes one GEMM of a batch: C = A · dequant(B) + Bias.
type GemmParams struct {
	A   []float32
	Lda int

	// PackedQuantBData holds B as produced by PackQuantBData, or the naive
	// layout when the table has no packing operation.
	PackedQuantBData []byte
	QuantBScale      []float32
	QuantBZeroPoint  []byte

	Bias []float32

	C   []float32
	Ldc int
}

// IsGemmAvailable reports whether d can run a GEMM with the given
// quantization parameters and compute type.
func IsGemmAvailable(d *Dispatch, blkBitWidth, blkLen int, ct ComputeType) bool {
	if d == nil || d.BlkBitWidth() != blkBitWidth || !IsValidBlkLen(blkLen) {
		return false
	}
	return d.Supports(ct)
}

// ResolveComputeType maps CompUndef to the first compute type d supports,
// preferring CompFp32.
func ResolveComputeType(d *Dispatch, ct ComputeType) ComputeType {
	if ct != CompUndef {
		return ct
	}
	if d.Supports(CompFp32) {
		return CompFp32
	}
	if d.Supports(CompInt8) {
		return CompInt8
	}
	return CompUndef
}

// PackQuantBDataSize returns the packed B size for d, or 0 when d does not
// repack B and the naive layout is used as is.
func PackQuantBDataSize(d *Dispatch, n, k, blkBitWidth, blkLen int, ct ComputeType) int {
	kernels := d.Kernels()
	if d.BlkBitWidth() != blkBitWidth || kernels.PackQuantBDataSize == nil || kernels.PackQuantBData == nil {
		return 0
	}
	return kernels.PackQuantBDataSize(n, k, blkLen, ct)
}

// PackQuantBData packs naive quantized B data into dst. dst must hold at
// least PackQuantBDataSize bytes.
func PackQuantBData(d *Dispatch, n, k, blkBitWidth, blkLen int, ct ComputeType, src, dst []byte, exec Executor) error {
	if !IsValidBlkLen(blkLen) {
		return fmt.Errorf("qnbit: pack block length %d: %w", blkLen, ErrInvalidBlkLen)
	}
	if n <= 0 {
		return fmt.Errorf("qnbit: pack %dx%d: %w", n, k, ErrShape)
	}
	if err := CheckShape(0, n, k, blkLen, 1); err != nil {
		return fmt.Errorf("qnbit: pack: %w", err)
	}
	size := PackQuantBDataSize(d, n, k, blkBitWidth, blkLen, ct)
	if size == 0 {
		return fmt.Errorf("qnbit: pack %s/%d-bit/%s: %w", d.Name(), blkBitWidth, ct, ErrUnsupported)
	}
	if raw, _, _ := QuantBBufferSizes(blkBitWidth, blkLen, n, k); len(src) < raw {
		return fmt.Errorf("qnbit: pack source has %d bytes, need %d: %w", len(src), raw, ErrBufferTooSmall)
	}
	if len(dst) < size {
		return fmt.Errorf("qnbit: pack destination has %d bytes, need %d: %w", len(dst), size, ErrBufferTooSmall)
	}
	d.Kernels().PackQuantBData(n, k, blkLen, ct, src, dst, exec)
	return nil
}

// CheckShape reports whether a batch of (M×K)·(K×N) GEMMs with the given
// block length has every buffer size representable as an int. Sizing and
// GEMM calls reject shapes that fail it with ErrShape.
func CheckShape(m, n, k, blkLen, batch int) error {
	if !IsValidBlkLen(blkLen) {
		return fmt.Errorf("qnbit: block length %d: %w", blkLen, ErrInvalidBlkLen)
	}
	if m < 0 || n < 0 || k <= 0 || batch < 0 {
		return fmt.Errorf("qnbit: m=%d n=%d k=%d batch=%d: %w", m, n, k, batch, ErrShape)
	}
	_, okK := addInt(k, blkLen)
	_, okN := addInt(n, DequantTileN)
	if !okK || !okN {
		return fmt.Errorf("qnbit: n=%d k=%d overflows: %w", n, k, ErrShape)
	}
	blockCountK := BlockCountK(k, blkLen)
	kPad, ok := mulInt(blockCountK, blkLen)
	if !ok {
		return fmt.Errorf("qnbit: k=%d overflows: %w", k, ErrShape)
	}
	// A Q8 row is the widest per-row buffer: kPad values plus one scale per block.
	q8Row, ok := addInt(kPad, blockCountK*q8ScaleBytes)
	if !ok {
		return fmt.Errorf("qnbit: k=%d overflows: %w", k, ErrShape)
	}
	perGemm, okA := mulInt(m, q8Row)
	_, okW := mulInt(perGemm, batch)
	_, okB := mulInt(RoundUp(n, DequantTileN), kPad)
	_, okC := mulInt(m, n)
	if !okA || !okW || !okB || !okC {
		return fmt.Errorf("qnbit: %dx%dx%d batch %d overflows: %w", m, n, k, batch, ErrShape)
	}
	return nil
}

// Gemm runs a batch of GEMMs of shape (M×K)·(K×N). workspace must hold
// PerGemmWorkspaceSize bytes per batch entry with the alignment
// PerGemmWorkspaceAlignment reports; NewWorkspace allocates one.
func Gemm(d *Dispatch, m, n, k, blkBitWidth, blkLen int, ct ComputeType, params []GemmParams, workspace []byte, exec Executor) error {
	ct = ResolveComputeType(d, ct)
	if !IsValidBitWidth(blkBitWidth) {
		return fmt.Errorf("qnbit: gemm bit width %d: %w", blkBitWidth, ErrInvalidBitWidth)
	}
	if !IsValidBlkLen(blkLen) {
		return fmt.Errorf("qnbit: gemm block length %d: %w", blkLen, ErrInvalidBlkLen)
	}
	if !IsGemmAvailable(d, blkBitWidth, blkLen, ct) {
		return fmt.Errorf("qnbit: gemm %s/%d-bit/%s: %w", d.Name(), blkBitWidth, ct, ErrUnsupported)
	}
	if err := CheckShape(m, n, k, blkLen, len(params)); err != nil {
		return fmt.Errorf("qnbit: gemm: %w", err)
	}
	if m == 0 || n == 0 || len(params) == 0 {
		return nil
	}

	g := gemmShape{
		m:           m,
		n:           n,
		k:           k,
		blkBitWidth: blkBitWidth,
		blkLen:      blkLen,
		blockCountK: BlockCountK(k, blkLen),
		blkBytes:    BlockByteSize(blkBitWidth, blkLen),
		zpStride:    ZeroPointBytesForBlocks(blkBitWidth, BlockCountK(k, blkLen)),
	}
	for i := range params {
		if err := g.check(d, ct, &params[i]); err != nil {
			return fmt.Errorf("qnbit: gemm batch %d: %w", i, err)
		}
	}

	perGemm := PerGemmWorkspaceSize(d, m, n, k, blkLen, ct)
	align := PerGemmWorkspaceAlignment(d, blkLen, ct)
	if err := checkWorkspace(workspace, perGemm, len(params), align); err != nil {
		return err
	}

	kernels := d.Kernels()
	switch ct {
	case CompFp32:
		g.runCompFp32(kernels, params, exec)
	case CompInt8:
		g.runCompInt8(kernels, params, workspace, perGemm, exec)
	}
	return nil
}

type gemmShape struct {
	m, n, k     int
	blkBitWidth int
	blkLen      int
	blockCountK int
	blkBytes    int
	zpStride    int
}

func (g *gemmShape) check(d *Dispatch, ct ComputeType, p *GemmParams) error {
	if p.Lda < g.k || p.Ldc < g.n {
		return fmt.Errorf("lda=%d ldc=%d: %w", p.Lda, p.Ldc, ErrShape)
	}
	needA, okA := stridedLen(g.m, p.Lda, g.k)
	needC, okC := stridedLen(g.m, p.Ldc, g.n)
	if !okA || !okC {
		return fmt.Errorf("m=%d lda=%d ldc=%d overflows: %w", g.m, p.Lda, p.Ldc, ErrShape)
	}
	if len(p.A) < needA {
		return fmt.Errorf("A has %d values, need %d: %w", len(p.A), needA, ErrBufferTooSmall)
	}
	if len(p.C) < needC {
		return fmt.Errorf("C has %d values, need %d: %w", len(p.C), needC, ErrBufferTooSmall)
	}
	dataBytes, scaleCount, zpBytes := QuantBBufferSizes(g.blkBitWidth, g.blkLen, g.n, g.k)
	if packed := PackQuantBDataSize(d, g.n, g.k, g.blkBitWidth, g.blkLen, ct); packed != 0 {
		dataBytes = packed
	}
	if len(p.PackedQuantBData) < dataBytes {
		return fmt.Errorf("B data has %d bytes, need %d: %w", len(p.PackedQuantBData), dataBytes, ErrBufferTooSmall)
	}
	if len(p.QuantBScale) < scaleCount {
		return fmt.Errorf("B scales has %d values, need %d: %w", len(p.QuantBScale), scaleCount, ErrBufferTooSmall)
	}
	if p.QuantBZeroPoint != nil && len(p.QuantBZeroPoint) < zpBytes {
		return fmt.Errorf("B zero points has %d bytes, need %d: %w", len(p.QuantBZeroPoint), zpBytes, ErrBufferTooSmall)
	}
	if p.Bias != nil && len(p.Bias) < g.n {
		return fmt.Errorf("bias has %d values, need %d: %w", len(p.Bias), g.n, ErrBufferTooSmall)
	}
	return nil
}

// stridedLen returns (rows-1)*stride+cols, the extent of a strided matrix.
func stridedLen(rows, stride, cols int) (int, bool) {
	n, ok := mulInt(rows-1, stride)
	if !ok {
		return 0, false
	}
	return addInt(n, cols)
}

// columns returns the slices of B and bias that start at column n0.
func (g *gemmShape) columns(p *GemmParams, n0 int) (data []byte, scale []float32, zp []byte, bias []float32) {
	data = p.PackedQuantBData[n0*g.blockCountK*g.blkBytes:]
	scale = p.QuantBScale[n0*g.blockCountK:]
	if p.QuantBZeroPoint != nil {
		if g.blkBitWidth <= 4 {
			zp = p.QuantBZeroPoint[n0*g.zpStride:]
		} else {
			zp = p.QuantBZeroPoint[n0*g.blockCountK:]
		}
	}
	if p.Bias != nil {
		bias = p.Bias[n0:]
	}
	return data, scale, zp, bias
}

func (g *gemmShape) runCompFp32(kernels Kernels, params []GemmParams, exec Executor) {
	tiles := DivRoundUp(g.n, fp32StrideN)
	Run(exec, len(params)*tiles, func(task int) {
		p := &params[task/tiles]
		n0 := (task % tiles) * fp32StrideN
		countN := min(fp32StrideN, g.n-n0)
		data, scale, zp, bias := g.columns(p, n0)

		if g.m == 1 {
			kernels.M1KernelCompFp32(g.blkLen, p.A[:g.k], data, scale, zp, p.C[n0:n0+countN], countN, g.k, g.blockCountK, bias)
			return
		}

		fpData := make([]float32, DequantBufferLen(g.blkLen, countN, g.k))
		kernels.DequantBForSgemmCompFp32(g.blkLen, fpData, data, scale, zp, countN, g.k, g.blockCountK)
		sgemmTiles(g.m, countN, g.k, p.A, p.Lda, fpData, bias, p.C[n0:], p.Ldc)
	})
}

func (g *gemmShape) runCompInt8(kernels Kernels, params []GemmParams, workspace []byte, perGemm int, exec Executor) {
	rowSize := Q8RowSize(g.blkLen, g.k)

	// Every row is quantized by exactly one task before any kernel reads it.
	Run(exec, len(params)*g.m, func(task int) {
		b, row := task/g.m, task%g.m
		p := &params[b]
		quantA := workspace[b*perGemm+row*rowSize : b*perGemm+(row+1)*rowSize]
		kernels.QuantizeARowCompInt8(g.blkLen, p.A[row*p.Lda:row*p.Lda+g.k], g.k, quantA)
	})

	tiles := DivRoundUp(g.n, int8StrideN)
	Run(exec, len(params)*tiles, func(task int) {
		b := task / tiles
		p := &params[b]
		n0 := (task % tiles) * int8StrideN
		countN := min(int8StrideN, g.n-n0)
		data, scale, zp, bias := g.columns(p, n0)
		quantA := workspace[b*perGemm : b*perGemm+g.m*rowSize]

		for row := 0; row < g.m; {
			done := kernels.KernelCompInt8(g.blkLen, quantA[row*rowSize:], data, scale, zp,
				p.C[row*p.Ldc+n0:], g.m-row, countN, g.k, g.blockCountK, p.Ldc, bias)
			if done <= 0 || done > g.m-row {
				panic(fmt.Sprintf("qnbit: int8 kernel processed %d of %d rows", done, g.m-row))
			}
			row += done
		}
	})
}
