package platform

import (
	"bytes"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/samcharles93/qnbit/internal/logger"
	"github.com/samcharles93/qnbit/pkg/qnbit"
)

func testRegistry(f Features) *Registry {
	return NewRegistryFor(f, logger.Text(&bytes.Buffer{}, slog.LevelDebug))
}

func TestFeaturesProfile(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		f    Features
		want string
	}{
		{"none", Features{Arch: "riscv64"}, ProfileGeneric},
		{"avx2 without fma", Features{Arch: "amd64", HasAVX2: true}, ProfileGeneric},
		{"avx2 fma", Features{Arch: "amd64", HasAVX2: true, HasFMA: true}, ProfileAVX2},
		{"asimd", Features{Arch: "arm64", HasASIMD: true, HasASIMDDP: true}, ProfileNEON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Profile(); got != tt.want {
				t.Fatalf("Profile() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFeaturesString(t *testing.T) {
	t.Parallel()
	if got := (Features{Arch: "riscv64"}).String(); got != "riscv64: none" {
		t.Fatalf("String() = %q", got)
	}
	f := Features{Arch: "amd64", HasAVX2: true, HasFMA: true}
	if got := f.String(); got != "amd64: avx2,fma" {
		t.Fatalf("String() = %q", got)
	}
}

func TestSelectDetectedProfile(t *testing.T) {
	t.Parallel()
	r := testRegistry(Features{Arch: "amd64", HasAVX2: true, HasFMA: true})
	for _, profile := range []string{"", "auto"} {
		d, err := r.Select(profile, 4)
		if err != nil {
			t.Fatalf("Select(%q): %v", profile, err)
		}
		if d.Name() != ProfileAVX2 || d.BlkBitWidth() != 4 {
			t.Fatalf("Select(%q) = %s/%d", profile, d.Name(), d.BlkBitWidth())
		}
	}
	d, err := r.Default(8)
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if d.Name() != ProfileAVX2 || d.BlkBitWidth() != 8 {
		t.Fatalf("Default(8) = %s/%d", d.Name(), d.BlkBitWidth())
	}
}

func TestSelectReturnsSharedTable(t *testing.T) {
	t.Parallel()
	r := testRegistry(Features{Arch: "arm64", HasASIMD: true})
	a, err := r.Select(ProfileNEON, 4)
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Select(ProfileNEON, 4)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("Select returned distinct tables for the same key")
	}
}

func TestSelectErrors(t *testing.T) {
	t.Parallel()
	r := testRegistry(Features{Arch: "amd64"})
	if _, err := r.Select("x86-avx512", 4); err == nil || !strings.Contains(err.Error(), "unknown profile") {
		t.Fatalf("unknown profile: err = %v", err)
	}
	if _, err := r.Select(ProfileGeneric, 3); !errors.Is(err, qnbit.ErrInvalidBitWidth) {
		t.Fatalf("3-bit: err = %v, want ErrInvalidBitWidth", err)
	}
}

func TestEveryTableSupportsFp32(t *testing.T) {
	t.Parallel()
	r := testRegistry(Features{Arch: "amd64"})
	for _, profile := range r.Profiles() {
		for _, bits := range []int{2, 4, 8} {
			d, err := r.Select(profile, bits)
			if err != nil {
				t.Fatalf("Select(%s, %d): %v", profile, bits, err)
			}
			if !d.Supports(qnbit.CompFp32) {
				t.Errorf("%s/%d: no fp32 path", profile, bits)
			}
			wantInt8 := !(profile == ProfileGeneric && bits == 2)
			if got := d.Supports(qnbit.CompInt8); got != wantInt8 {
				t.Errorf("%s/%d: Supports(CompInt8) = %v, want %v", profile, bits, got, wantInt8)
			}
		}
	}
}

func TestGeneric2BitRejectsInt8(t *testing.T) {
	t.Parallel()
	d, err := testRegistry(Features{}).Select(ProfileGeneric, 2)
	if err != nil {
		t.Fatal(err)
	}
	if d.Has(qnbit.SlotKernelCompInt8) || d.Has(qnbit.SlotQuantizeARowCompInt8) {
		t.Fatal("generic 2-bit table binds int8 kernels")
	}
	if qnbit.IsGemmAvailable(d, 2, 32, qnbit.CompInt8) {
		t.Fatal("int8 reported available")
	}
	if got := qnbit.ResolveComputeType(d, qnbit.CompUndef); got != qnbit.CompFp32 {
		t.Fatalf("ResolveComputeType = %v, want CompFp32", got)
	}
}

func TestVectorProfilesUseNibbleLayout(t *testing.T) {
	t.Parallel()
	r := testRegistry(Features{})
	const n, k, blkLen = 1, 32, 32

	src := make([]byte, qnbit.BlockByteSize(4, blkLen))
	for i := range blkLen {
		qnbit.SetBlockValue(src, 4, i, uint8(i%16))
	}
	pack := func(profile string) []byte {
		d, err := r.Select(profile, 4)
		if err != nil {
			t.Fatal(err)
		}
		dst := make([]byte, qnbit.PackQuantBDataSize(d, n, k, 4, blkLen, qnbit.CompFp32))
		if err := qnbit.PackQuantBData(d, n, k, 4, blkLen, qnbit.CompFp32, src, dst, nil); err != nil {
			t.Fatalf("%s: PackQuantBData: %v", profile, err)
		}
		return dst
	}

	if got := pack(ProfileGeneric); !bytes.Equal(got, src) {
		t.Fatalf("generic pack changed the naive layout")
	}
	avx2 := pack(ProfileAVX2)
	if bytes.Equal(avx2, src) {
		t.Fatal("x86-avx2 pack kept the naive layout")
	}
	if !bytes.Equal(avx2, pack(ProfileNEON)) {
		t.Fatal("x86-avx2 and arm64-neon layouts differ")
	}
	// Byte 0 pairs values 0 and 16.
	if avx2[0] != 0x00 || avx2[1] != 0x11 {
		t.Fatalf("packed bytes = %#x %#x", avx2[0], avx2[1])
	}
}

func TestProfilesIsACopy(t *testing.T) {
	t.Parallel()
	r := testRegistry(Features{})
	p := r.Profiles()
	p[0] = "mutated"
	if !slices.Contains(r.Profiles(), ProfileGeneric) {
		t.Fatal("Profiles exposed internal state")
	}
}
