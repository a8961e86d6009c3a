package api

import (
	"sync"
	"time"

	"github.com/samcharles93/qnbit/internal/runner"
	"github.com/samcharles93/qnbit/pkg/qnbit"
)

type weightsRecord struct {
	Info    WeightsResponse
	Weights *runner.Weights
}

// WeightsStore keeps prepared weights so callers can multiply against the
// same packed B many times.
type WeightsStore struct {
	mu      sync.Mutex
	limit   int
	weights map[string]*weightsRecord
	order   []string
}

// NewWeightsStore creates a store holding at most limit entries. When full,
// the oldest entry is evicted. A limit of 0 or less means no limit.
func NewWeightsStore(limit int) *WeightsStore {
	return &WeightsStore{
		limit:   limit,
		weights: make(map[string]*weightsRecord),
	}
}

func (s *WeightsStore) Create(profile string, w *runner.Weights, opts runner.Options, now time.Time) WeightsResponse {
	q := w.Quantized()
	info := WeightsResponse{
		ID:          newWeightsID(),
		Object:      "weights",
		CreatedAt:   now.Unix(),
		Profile:     profile,
		BitWidth:    opts.BitWidth,
		BlkLen:      opts.BlkLen,
		ComputeType: w.ComputeType().String(),
		N:           q.N,
		K:           q.K,
		PackedBytes: w.PackedBytes(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limit > 0 && len(s.order) >= s.limit {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.weights, oldest)
	}
	s.weights[info.ID] = &weightsRecord{Info: info, Weights: w}
	s.order = append(s.order, info.ID)
	return info
}

func (s *WeightsStore) Get(id string) (*weightsRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.weights[id]
	return rec, ok
}

func (s *WeightsStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.weights[id]; !ok {
		return false
	}
	delete(s.weights, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *WeightsStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.weights)
}

func tableInfo(d *qnbit.Dispatch) TableInfo {
	slots := make(map[string]bool, len(qnbit.AllSlots()))
	for s, ok := range d.Slots() {
		slots[s.String()] = ok
	}
	return TableInfo{
		BitWidth: d.BlkBitWidth(),
		Slots:    slots,
		CompFp32: d.Supports(qnbit.CompFp32),
		CompInt8: d.Supports(qnbit.CompInt8),
	}
}
