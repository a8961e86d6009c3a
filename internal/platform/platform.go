// Package platform selects the kernel dispatch table for the running
// hardware. Tables are built once per (profile, bit width) and shared.
package platform

import (
	"fmt"
	"slices"
	"sync"

	"github.com/samcharles93/qnbit/internal/kernels/nibble"
	"github.com/samcharles93/qnbit/internal/kernels/reference"
	"github.com/samcharles93/qnbit/internal/logger"
	"github.com/samcharles93/qnbit/pkg/qnbit"
)

const (
	ProfileGeneric = "generic"
	ProfileAVX2    = "x86-avx2"
	ProfileNEON    = "arm64-neon"
)

var profiles = []string{ProfileGeneric, ProfileAVX2, ProfileNEON}

// Registry hands out the immutable dispatch tables.
type Registry struct {
	log      logger.Logger
	features Features

	once   sync.Once
	tables map[tableKey]*qnbit.Dispatch
}

type tableKey struct {
	profile string
	bits    int
}

// NewRegistry creates a registry for the detected CPU. A nil log uses the
// default logger.
func NewRegistry(log logger.Logger) *Registry {
	return NewRegistryFor(Detect(), log)
}

// NewRegistryFor creates a registry for the given features.
func NewRegistryFor(f Features, log logger.Logger) *Registry {
	if log == nil {
		log = logger.Default()
	}
	return &Registry{log: log.With("component", "platform"), features: f}
}

// Features returns the capabilities the registry was created for.
func (r *Registry) Features() Features {
	return r.features
}

// Profiles lists every known profile name.
func (r *Registry) Profiles() []string {
	return slices.Clone(profiles)
}

// Default returns the table for the detected profile.
func (r *Registry) Default(blkBitWidth int) (*qnbit.Dispatch, error) {
	return r.Select(r.features.Profile(), blkBitWidth)
}

// Select returns the table for profile and bit width. An empty or "auto"
// profile means the detected one.
func (r *Registry) Select(profile string, blkBitWidth int) (*qnbit.Dispatch, error) {
	if profile == "" || profile == "auto" {
		profile = r.features.Profile()
	}
	if !slices.Contains(profiles, profile) {
		return nil, fmt.Errorf("platform: unknown profile %q (expected one of %v)", profile, profiles)
	}
	if !qnbit.IsValidBitWidth(blkBitWidth) {
		return nil, fmt.Errorf("platform: %d-bit weights: %w", blkBitWidth, qnbit.ErrInvalidBitWidth)
	}
	r.once.Do(r.build)
	d := r.tables[tableKey{profile, blkBitWidth}]
	r.log.Debug("selected dispatch table", "profile", profile, "bits", blkBitWidth,
		"fp32", d.Supports(qnbit.CompFp32), "int8", d.Supports(qnbit.CompInt8))
	return d, nil
}

func (r *Registry) build() {
	r.tables = make(map[tableKey]*qnbit.Dispatch, len(profiles)*3)
	for _, profile := range profiles {
		for _, bits := range []int{2, 4, 8} {
			r.tables[tableKey{profile, bits}] = qnbit.NewDispatch(profile, bits, kernelsFor(profile, bits))
		}
	}
	r.log.Debug("built dispatch tables", "features", r.features.String(), "count", len(r.tables))
}

// kernelsFor picks the kernel set of a profile. The vector profiles use the
// nibble-interleaved layout for 4-bit weights; the reference kernels cover
// every other width. The generic profile has no int8 path for 2-bit weights.
func kernelsFor(profile string, bits int) qnbit.Kernels {
	if bits == 4 && profile != ProfileGeneric {
		return nibble.New()
	}
	k := reference.New(bits)
	if profile == ProfileGeneric && bits == 2 {
		k.KernelCompInt8 = nil
		k.QuantizeARowCompInt8 = nil
	}
	return k
}
