package qnbit

// Executor runs n independent tasks and returns once all of them have
// finished. Tasks may run concurrently in any order.
type Executor interface {
	ParallelFor(n int, fn func(i int))
}

// Run dispatches n tasks through exec, or runs them inline when exec is nil.
func Run(exec Executor, n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	if exec == nil || n == 1 {
		for i := range n {
			fn(i)
		}
		return
	}
	exec.ParallelFor(n, fn)
}
