package qnbit

import (
	"fmt"
	"unsafe"
)

// PerGemmWorkspaceSize returns the workspace one GEMM needs, rounded up to
// its alignment, or 0 when none is needed or the table cannot size it.
func PerGemmWorkspaceSize(d *Dispatch, m, n, k, blkLen int, ct ComputeType) int {
	kernels := d.Kernels()
	if kernels.WorkspaceSize == nil {
		return 0
	}
	size := kernels.WorkspaceSize(m, n, k, blkLen, ct)
	if size == 0 {
		return 0
	}
	return RoundUp(size, PerGemmWorkspaceAlignment(d, blkLen, ct))
}

// PerGemmWorkspaceAlignment returns the workspace base alignment, at least 1.
func PerGemmWorkspaceAlignment(d *Dispatch, blkLen int, ct ComputeType) int {
	kernels := d.Kernels()
	if kernels.WorkspaceAlignment == nil {
		return 1
	}
	return max(1, kernels.WorkspaceAlignment(blkLen, ct))
}

// WorkspaceSize returns the bytes to allocate for a batch of GEMMs. The
// result includes slack so that AlignWorkspace can align any allocation.
func WorkspaceSize(d *Dispatch, m, n, k, batch, blkLen int, ct ComputeType) int {
	perGemm := PerGemmWorkspaceSize(d, m, n, k, blkLen, ct)
	if perGemm == 0 {
		return 0
	}
	align := PerGemmWorkspaceAlignment(d, blkLen, ct)
	return perGemm*batch + align - 1
}

// NewWorkspace allocates an aligned workspace for a batch of GEMMs. It
// returns nil when no workspace is needed.
func NewWorkspace(d *Dispatch, m, n, k, batch, blkLen int, ct ComputeType) []byte {
	size := WorkspaceSize(d, m, n, k, batch, blkLen, ct)
	if size == 0 {
		return nil
	}
	return AlignWorkspace(make([]byte, size), PerGemmWorkspaceAlignment(d, blkLen, ct))
}

// AlignWorkspace returns the largest suffix of buf whose first byte is
// aligned to align.
func AlignWorkspace(buf []byte, align int) []byte {
	if len(buf) == 0 || align <= 1 {
		return buf
	}
	off := alignOffset(buf, align)
	if off > len(buf) {
		return buf[len(buf):]
	}
	return buf[off:]
}

func alignOffset(buf []byte, align int) int {
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	rem := int(addr % uintptr(align))
	if rem == 0 {
		return 0
	}
	return align - rem
}

func checkWorkspace(ws []byte, perGemm, batch, align int) error {
	if perGemm == 0 {
		return nil
	}
	if need := perGemm * batch; len(ws) < need {
		return fmt.Errorf("qnbit: workspace has %d bytes, need %d: %w", len(ws), need, ErrBufferTooSmall)
	}
	if alignOffset(ws, align) != 0 {
		return fmt.Errorf("qnbit: workspace must be %d-byte aligned: %w", align, ErrWorkspaceMisaligned)
	}
	return nil
}
