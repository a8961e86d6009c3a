package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestParallelForVisitsEveryIndexOnce(t *testing.T) {
	t.Parallel()
	p := New(4)
	defer p.Close()

	for _, n := range []int{0, 1, 3, 4, 17, 1000} {
		counts := make([]atomic.Int32, n)
		p.ParallelFor(n, func(i int) {
			counts[i].Add(1)
		})
		for i := range counts {
			if got := counts[i].Load(); got != 1 {
				t.Fatalf("n=%d: index %d visited %d times", n, i, got)
			}
		}
	}
}

func TestParallelForRangeCoversRange(t *testing.T) {
	t.Parallel()
	p := New(3)
	defer p.Close()

	const n = 100
	counts := make([]atomic.Int32, n)
	p.ParallelForRange(n, func(start, end int) {
		if start >= end {
			t.Errorf("empty range [%d,%d)", start, end)
		}
		for i := start; i < end; i++ {
			counts[i].Add(1)
		}
	})
	for i := range counts {
		if got := counts[i].Load(); got != 1 {
			t.Fatalf("index %d visited %d times", i, got)
		}
	}
}

func TestClosedPoolRunsInline(t *testing.T) {
	t.Parallel()
	p := New(2)
	p.Close()
	p.Close()

	sum := 0
	p.ParallelFor(10, func(i int) {
		sum += i
	})
	if sum != 45 {
		t.Fatalf("sum = %d, want 45", sum)
	}
}

func TestDefaultSize(t *testing.T) {
	t.Parallel()
	p := New(0)
	defer p.Close()
	if p.Size() < 1 {
		t.Fatalf("Size() = %d, want >= 1", p.Size())
	}
}

func TestCloseDuringParallelFor(t *testing.T) {
	t.Parallel()
	for range 50 {
		p := New(4)
		var wg sync.WaitGroup
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 20 {
					var visited atomic.Int32
					p.ParallelFor(64, func(int) { visited.Add(1) })
					if got := visited.Load(); got != 64 {
						t.Errorf("visited %d of 64 indices", got)
						return
					}
					var covered atomic.Int32
					p.ParallelForRange(64, func(start, end int) { covered.Add(int32(end - start)) })
					if got := covered.Load(); got != 64 {
						t.Errorf("covered %d of 64 indices", got)
						return
					}
				}
			}()
		}
		p.Close()
		wg.Wait()
	}
}
