// Package qnbit implements the layout, sizing and dispatch layer for
// matrix multiplication of a float32 matrix A by an n-bit block-quantized
// matrix B.
//
// B is quantized column-wise in blocks of BlkLen values. Each block has one
// float32 scale and an optional zero point. Kernel bodies live behind a
// Dispatch table; this package never starts goroutines itself and hands all
// parallel work to a caller supplied Executor.
package qnbit

import "fmt"

// ComputeType selects the numeric domain a GEMM executes in.
type ComputeType int

const (
	// CompUndef lets the caller pick the first available compute type.
	CompUndef ComputeType = iota
	// CompFp32 multiplies float32 activations by dequantized weights.
	CompFp32
	// CompInt8 block-quantizes activations to int8 before multiplying.
	CompInt8
)

func (ct ComputeType) String() string {
	switch ct {
	case CompUndef:
		return "undef"
	case CompFp32:
		return "fp32"
	case CompInt8:
		return "int8"
	default:
		return fmt.Sprintf("ComputeType(%d)", int(ct))
	}
}

// ParseComputeType converts "fp32", "int8" or "undef"/"" to a ComputeType.
func ParseComputeType(s string) (ComputeType, error) {
	switch s {
	case "", "undef", "auto":
		return CompUndef, nil
	case "fp32", "CompFp32":
		return CompFp32, nil
	case "int8", "CompInt8":
		return CompInt8, nil
	default:
		return CompUndef, fmt.Errorf("qnbit: unknown compute type %q (expected fp32 or int8)", s)
	}
}
