package qnbit

import "errors"

var (
	// ErrUnsupported reports that the dispatch table has no bound kernel for
	// the requested combination. Callers pick another compute path.
	ErrUnsupported = errors.New("qnbit: unsupported kernel combination")

	ErrInvalidBlkLen       = errors.New("qnbit: invalid block length")
	ErrInvalidBitWidth     = errors.New("qnbit: invalid block bit width")
	ErrShape               = errors.New("qnbit: invalid matrix shape")
	ErrBufferTooSmall      = errors.New("qnbit: buffer too small")
	ErrWorkspaceMisaligned = errors.New("qnbit: workspace misaligned")
)
