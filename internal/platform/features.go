package platform

import (
	"runtime"
	"strings"

	"golang.org/x/sys/cpu"
)

// Features holds the CPU capabilities that influence kernel selection.
type Features struct {
	Arch string

	HasAVX2       bool
	HasFMA        bool
	HasAVX512F    bool
	HasAVX512VNNI bool

	HasASIMD   bool
	HasASIMDDP bool
}

// Detect reads the capabilities of the running CPU.
func Detect() Features {
	return Features{
		Arch:          runtime.GOARCH,
		HasAVX2:       cpu.X86.HasAVX2,
		HasFMA:        cpu.X86.HasFMA,
		HasAVX512F:    cpu.X86.HasAVX512F,
		HasAVX512VNNI: cpu.X86.HasAVX512VNNI,
		HasASIMD:      cpu.ARM64.HasASIMD,
		HasASIMDDP:    cpu.ARM64.HasASIMDDP,
	}
}

// Profile returns the name of the best kernel profile for f.
func (f Features) Profile() string {
	switch {
	case f.HasAVX2 && f.HasFMA:
		return ProfileAVX2
	case f.HasASIMD:
		return ProfileNEON
	default:
		return ProfileGeneric
	}
}

func (f Features) String() string {
	var names []string
	add := func(ok bool, name string) {
		if ok {
			names = append(names, name)
		}
	}
	add(f.HasAVX2, "avx2")
	add(f.HasFMA, "fma")
	add(f.HasAVX512F, "avx512f")
	add(f.HasAVX512VNNI, "avx512vnni")
	add(f.HasASIMD, "asimd")
	add(f.HasASIMDDP, "asimddp")
	if len(names) == 0 {
		return f.Arch + ": none"
	}
	return f.Arch + ": " + strings.Join(names, ",")
}
