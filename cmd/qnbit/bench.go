package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qnbit/internal/logger"
	"github.com/samcharles93/qnbit/internal/platform"
	"github.com/samcharles93/qnbit/internal/runner"
	"github.com/samcharles93/qnbit/internal/workerpool"
)

func benchCmd() *cli.Command {
	var (
		m, n, k    int64
		warmupRuns int64
		benchRuns  int64
		seed       uint64
		symmetric  bool
		check      bool
	)

	flags := append([]cli.Flag{}, problemFlags()...)
	flags = append(flags, workerFlags()...)
	flags = append(flags, shapeFlags(&m, &n, &k)...)
	flags = append(flags,
		&cli.Int64Flag{
			Name:        "warmup",
			Usage:       "number of warmup runs",
			Value:       1,
			Destination: &warmupRuns,
		},
		&cli.Int64Flag{
			Name:        "runs",
			Usage:       "number of benchmark runs",
			Value:       5,
			Destination: &benchRuns,
		},
		&cli.Uint64Flag{
			Name:        "seed",
			Usage:       "seed for the random A and B matrices",
			Value:       42,
			Destination: &seed,
		},
		&cli.BoolFlag{
			Name:        "symmetric",
			Usage:       "quantize B without zero points",
			Destination: &symmetric,
		},
		&cli.BoolFlag{
			Name:        "check",
			Usage:       "compare the result against a float64 reference",
			Value:       true,
			Destination: &check,
		},
	)

	return &cli.Command{
		Name:  "bench",
		Usage: "Time a quantized GEMM on random data",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := LoadConfig()
			applyProblemConfig(cmd, cfg)
			applyWorkerConfig(cmd, cfg)

			runID := uuid.NewString()
			log := logger.FromContext(ctx).With("run", runID)
			if m <= 0 || n <= 0 || k <= 0 || benchRuns <= 0 {
				return cli.Exit("error: m, n, k and runs must be positive", 1)
			}

			registry := platform.NewRegistry(log)
			d, opts, err := selectTable(registry)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			opts.Symmetric = symmetric

			pool := workerpool.New(int(workers))
			defer pool.Close()

			rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
			b := randomMatrix(rng, int(k*n))
			a := randomMatrix(rng, int(m*k))

			log.Info("preparing weights", "profile", d.Name(), "bits", opts.BitWidth, "blk_len", opts.BlkLen, "n", n, "k", k)
			prepStart := time.Now()
			w, err := runner.Prepare(d, b, int(k), int(n), opts, pool)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: prepare: %v", err), 1)
			}
			prepDuration := time.Since(prepStart)

			fmt.Println("=== qnbit bench ===")
			fmt.Printf("Run:        %s\n", runID)
			fmt.Printf("Profile:    %s (%s)\n", d.Name(), registry.Features())
			fmt.Printf("Weights:    %d-bit, BlkLen %d, %s\n", opts.BitWidth, opts.BlkLen, w.ComputeType())
			fmt.Printf("Shape:      M=%d N=%d K=%d\n", m, n, k)
			fmt.Printf("Workers:    %d (GOMAXPROCS %d)\n", pool.Size(), runtime.GOMAXPROCS(0))
			fmt.Printf("Prepare:    %s (%d packed bytes)\n", prepDuration.Round(time.Microsecond), w.PackedBytes())
			fmt.Println()

			for i := range int(warmupRuns) {
				log.Debug("warmup run", "run", i+1)
				if _, err := w.Multiply(int(m), a, nil, pool); err != nil {
					return cli.Exit(fmt.Sprintf("error: warmup run %d: %v", i+1, err), 1)
				}
			}

			flops := 2 * float64(m) * float64(n) * float64(k)
			durations := make([]time.Duration, 0, benchRuns)
			var c []float32
			for i := range int(benchRuns) {
				if err := ctx.Err(); err != nil {
					return err
				}
				start := time.Now()
				c, err = w.Multiply(int(m), a, nil, pool)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: benchmark run %d: %v", i+1, err), 1)
				}
				durations = append(durations, time.Since(start))
				log.Debug("benchmark run", "run", i+1, "elapsed", durations[i])
			}

			fmt.Println("=== Results ===")
			fmt.Printf("%-6s %12s %10s\n", "Run", "Duration", "GFLOP/s")
			var total time.Duration
			best := durations[0]
			for i, dur := range durations {
				fmt.Printf("%-6d %12s %10.2f\n", i+1, dur.Round(time.Microsecond), flops/dur.Seconds()/1e9)
				total += dur
				best = min(best, dur)
			}
			avg := total / time.Duration(len(durations))
			fmt.Printf("\n%-6s %12s %10.2f\n", "Avg", avg.Round(time.Microsecond), flops/avg.Seconds()/1e9)
			fmt.Printf("%-6s %12s %10.2f\n", "Best", best.Round(time.Microsecond), flops/best.Seconds()/1e9)

			if check {
				diff := runner.MaxAbsDiff(c, w.Reference(int(m), a, nil))
				fmt.Printf("\nMax abs error vs reference: %.3g\n", diff)
			}
			return nil
		},
	}
}

func randomMatrix(rng *rand.Rand, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(rng.NormFloat64())
	}
	return out
}
