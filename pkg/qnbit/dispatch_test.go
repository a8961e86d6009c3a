package qnbit

import "testing"

func fakeKernels() Kernels {
	return Kernels{
		PackQuantBDataSize: func(n, k, blkLen int, _ ComputeType) int { return n * k },
		WorkspaceSize: func(m, _, k, blkLen int, ct ComputeType) int {
			if ct == CompInt8 {
				return m * Q8RowSize(blkLen, k)
			}
			return 0
		},
		WorkspaceAlignment:       func(int, ComputeType) int { return 64 },
		M1KernelCompFp32:         func(int, []float32, []byte, []float32, []byte, []float32, int, int, int, []float32) {},
		DequantBForSgemmCompFp32: func(int, []float32, []byte, []float32, []byte, int, int, int) {},
	}
}

func TestDispatchSlots(t *testing.T) {
	t.Parallel()
	d := NewDispatch("fake", 4, fakeKernels())

	if d.Name() != "fake" || d.BlkBitWidth() != 4 {
		t.Fatalf("unexpected identity %q/%d", d.Name(), d.BlkBitWidth())
	}
	bound := map[Slot]bool{
		SlotPackQuantBDataSize:       true,
		SlotWorkspaceSize:            true,
		SlotWorkspaceAlignment:       true,
		SlotM1KernelCompFp32:         true,
		SlotDequantBForSgemmCompFp32: true,
	}
	for s, has := range d.Slots() {
		if has != bound[s] {
			t.Fatalf("slot %s bound = %v, want %v", s, has, bound[s])
		}
	}
	if !d.Supports(CompFp32) {
		t.Fatal("expected fp32 support")
	}
	if d.Supports(CompInt8) {
		t.Fatal("unexpected int8 support")
	}
	if d.Supports(CompUndef) {
		t.Fatal("CompUndef is never directly supported")
	}
}

func TestDispatchIsImmutable(t *testing.T) {
	t.Parallel()
	k := fakeKernels()
	d := NewDispatch("fake", 4, k)

	k.M1KernelCompFp32 = nil
	got := d.Kernels()
	got.DequantBForSgemmCompFp32 = nil

	if !d.Has(SlotM1KernelCompFp32) || !d.Has(SlotDequantBForSgemmCompFp32) {
		t.Fatal("table changed through a copy of its kernels")
	}
}

func TestNilDispatch(t *testing.T) {
	t.Parallel()
	var d *Dispatch
	if d.Name() != "" || d.BlkBitWidth() != 0 {
		t.Fatal("nil table should have empty identity")
	}
	for _, s := range AllSlots() {
		if d.Has(s) {
			t.Fatalf("nil table has slot %s", s)
		}
	}
	if IsGemmAvailable(d, 4, 32, CompFp32) {
		t.Fatal("nil table reports gemm availability")
	}
}

func TestSlotNames(t *testing.T) {
	t.Parallel()
	seen := map[string]bool{}
	for _, s := range AllSlots() {
		name := s.String()
		if name == "unknown" || seen[name] {
			t.Fatalf("slot %d has bad name %q", s, name)
		}
		seen[name] = true
	}
	if Slot(-1).String() != "unknown" {
		t.Fatal("expected unknown for out-of-range slot")
	}
}

func TestComputeTypeParse(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]ComputeType{"fp32": CompFp32, "int8": CompInt8, "": CompUndef, "auto": CompUndef} {
		got, err := ParseComputeType(in)
		if err != nil || got != want {
			t.Fatalf("ParseComputeType(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseComputeType("fp16"); err == nil {
		t.Fatal("expected error for fp16")
	}
	if CompInt8.String() != "int8" || ComputeType(9).String() != "ComputeType(9)" {
		t.Fatal("unexpected ComputeType strings")
	}
}
