package qnbit

// PackQuantBDataSizeFunc returns the byte size of packed quantized B data.
type PackQuantBDataSizeFunc func(n, k, blkLen int, ct ComputeType) int

// PackQuantBDataFunc rewrites naive column-major quantized B data in src
// into the layout the kernels of the same set expect. It overwrites exactly
// the first PackQuantBDataSize bytes of dst and may split columns across
// exec.
type PackQuantBDataFunc func(n, k, blkLen int, ct ComputeType, src, dst []byte, exec Executor)

// WorkspaceSizeFunc returns the per-GEMM workspace size in bytes, or 0 when
// no workspace is needed.
type WorkspaceSizeFunc func(m, n, k, blkLen int, ct ComputeType) int

// WorkspaceAlignmentFunc returns the required workspace base alignment.
type WorkspaceAlignmentFunc func(blkLen int, ct ComputeType) int

// M1KernelCompFp32Func computes c[:countN] = a[:countK] · dequant(B) + bias
// for a single row of A. A nil zero point buffer means the neutral zero
// point and a nil bias means zero.
type M1KernelCompFp32Func func(
	blkLen int,
	a []float32,
	quantBData []byte,
	quantBScale []float32,
	quantBZeroPoint []byte,
	c []float32,
	countN, countK, blockStrideQuantB int,
	bias []float32,
)

// DequantBForSgemmCompFp32Func expands B into 16-column float tiles for a
// dense SGEMM. fpData must hold DequantBufferLen(blkLen, countN, countK)
// floats; tile t starts at t*16*countK and element (k, j) of a tile is at
// k*16+j.
type DequantBForSgemmCompFp32Func func(
	blkLen int,
	fpData []float32,
	quantBData []byte,
	quantBScale []float32,
	quantBZeroPoint []byte,
	countN, countK, blockStrideQuantB int,
)

// KernelCompInt8Func multiplies Q8 rows of A (row stride
// Q8RowSize(blkLen, countK)) by quantized B, writing rows of c with stride
// ldc. It processes at least one and at most countM rows and returns how
// many it processed.
type KernelCompInt8Func func(
	blkLen int,
	quantA []byte,
	quantBData []byte,
	quantBScale []float32,
	quantBZeroPoint []byte,
	c []float32,
	countM, countN, countK, blockCountK, ldc int,
	bias []float32,
) int

// QuantizeARowCompInt8Func block-quantizes one row of A into Q8 blocks.
type QuantizeARowCompInt8Func func(blkLen int, a []float32, countK int, quantA []byte)

// Kernels is the set of operations a kernel implementation provides. Any
// field may be nil, meaning the operation is unsupported.
type Kernels struct {
	PackQuantBDataSize PackQuantBDataSizeFunc
	PackQuantBData     PackQuantBDataFunc

	WorkspaceSize      WorkspaceSizeFunc
	WorkspaceAlignment WorkspaceAlignmentFunc

	M1KernelCompFp32         M1KernelCompFp32Func
	DequantBForSgemmCompFp32 DequantBForSgemmCompFp32Func

	KernelCompInt8       KernelCompInt8Func
	QuantizeARowCompInt8 QuantizeARowCompInt8Func
}

// Slot names one operation of a dispatch table.
type Slot int

const (
	SlotPackQuantBDataSize Slot = iota
	SlotPackQuantBData
	SlotWorkspaceSize
	SlotWorkspaceAlignment
	SlotM1KernelCompFp32
	SlotDequantBForSgemmCompFp32
	SlotKernelCompInt8
	SlotQuantizeARowCompInt8
	slotCount
)

var slotNames = [slotCount]string{
	SlotPackQuantBDataSize:       "pack_quant_b_data_size",
	SlotPackQuantBData:           "pack_quant_b_data",
	SlotWorkspaceSize:            "workspace_size",
	SlotWorkspaceAlignment:       "workspace_alignment",
	SlotM1KernelCompFp32:         "m1_kernel_comp_fp32",
	SlotDequantBForSgemmCompFp32: "dequant_b_for_sgemm_comp_fp32",
	SlotKernelCompInt8:           "kernel_comp_int8",
	SlotQuantizeARowCompInt8:     "quantize_a_row_comp_int8",
}

func (s Slot) String() string {
	if s < 0 || s >= slotCount {
		return "unknown"
	}
	return slotNames[s]
}

// AllSlots lists every slot in table order.
func AllSlots() []Slot {
	slots := make([]Slot, slotCount)
	for i := range slots {
		slots[i] = Slot(i)
	}
	return slots
}

// Dispatch is an immutable kernel table for one hardware profile and one
// block bit width. Build it once with NewDispatch and share it freely.
type Dispatch struct {
	name        string
	blkBitWidth int
	k           Kernels
}

// NewDispatch copies k into a new table.
func NewDispatch(name string, blkBitWidth int, k Kernels) *Dispatch {
	return &Dispatch{name: name, blkBitWidth: blkBitWidth, k: k}
}

// Name returns the profile name the table was built for.
func (d *Dispatch) Name() string {
	if d == nil {
		return ""
	}
	return d.name
}

// BlkBitWidth returns the quantized B bit width the kernels decode.
func (d *Dispatch) BlkBitWidth() int {
	if d == nil {
		return 0
	}
	return d.blkBitWidth
}

// Kernels returns a copy of the bound operations.
func (d *Dispatch) Kernels() Kernels {
	if d == nil {
		return Kernels{}
	}
	return d.k
}

// Has reports whether slot s is bound.
func (d *Dispatch) Has(s Slot) bool {
	if d == nil {
		return false
	}
	switch s {
	case SlotPackQuantBDataSize:
		return d.k.PackQuantBDataSize != nil
	case SlotPackQuantBData:
		return d.k.PackQuantBData != nil
	case SlotWorkspaceSize:
		return d.k.WorkspaceSize != nil
	case SlotWorkspaceAlignment:
		return d.k.WorkspaceAlignment != nil
	case SlotM1KernelCompFp32:
		return d.k.M1KernelCompFp32 != nil
	case SlotDequantBForSgemmCompFp32:
		return d.k.DequantBForSgemmCompFp32 != nil
	case SlotKernelCompInt8:
		return d.k.KernelCompInt8 != nil
	case SlotQuantizeARowCompInt8:
		return d.k.QuantizeARowCompInt8 != nil
	default:
		return false
	}
}

// Slots reports, for every slot, whether it is bound.
func (d *Dispatch) Slots() map[Slot]bool {
	out := make(map[Slot]bool, slotCount)
	for _, s := range AllSlots() {
		out[s] = d.Has(s)
	}
	return out
}

// Supports reports whether every kernel the compute type needs is bound.
func (d *Dispatch) Supports(ct ComputeType) bool {
	switch ct {
	case CompFp32:
		return d.Has(SlotM1KernelCompFp32) && d.Has(SlotDequantBForSgemmCompFp32)
	case CompInt8:
		return d.Has(SlotKernelCompInt8) && d.Has(SlotQuantizeARowCompInt8)
	default:
		return false
	}
}
