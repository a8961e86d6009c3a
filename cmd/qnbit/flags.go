package main

import (
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qnbit/internal/platform"
	"github.com/samcharles93/qnbit/internal/runner"
	"github.com/samcharles93/qnbit/pkg/qnbit"
)

var (
	profile     string
	workers     int64
	blkLen      int64
	bitWidth    int64
	computeType string
	logLevel    string
	logFormat   string
	debug       bool
)

func problemFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "profile",
			Usage:       "kernel profile (auto, generic, x86-avx2, arm64-neon)",
			Value:       "auto",
			Destination: &profile,
		},
		&cli.Int64Flag{
			Name:        "bit-width",
			Aliases:     []string{"bits", "b"},
			Usage:       "quantized weight bit width (2, 4, 8)",
			Value:       4,
			Destination: &bitWidth,
		},
		&cli.Int64Flag{
			Name:        "blk-len",
			Aliases:     []string{"block"},
			Usage:       "quantization block length (16, 32, 64, 128, 256)",
			Value:       32,
			Destination: &blkLen,
		},
		&cli.StringFlag{
			Name:        "compute-type",
			Aliases:     []string{"ct"},
			Usage:       "compute type (auto, fp32, int8)",
			Value:       "auto",
			Destination: &computeType,
		},
	}
}

func workerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "workers",
			Aliases:     []string{"j"},
			Usage:       "worker goroutines for GEMM tasks (0 = GOMAXPROCS)",
			Destination: &workers,
		},
	}
}

func shapeFlags(m, n, k *int64) []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{Name: "m", Usage: "rows of A and C", Value: 1, Destination: m},
		&cli.Int64Flag{Name: "n", Usage: "columns of B and C", Value: 4096, Destination: n},
		&cli.Int64Flag{Name: "k", Usage: "columns of A, rows of B", Value: 4096, Destination: k},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// selectTable resolves the problem flags into a dispatch table and runner
// options.
func selectTable(registry *platform.Registry) (*qnbit.Dispatch, runner.Options, error) {
	ct, err := qnbit.ParseComputeType(computeType)
	if err != nil {
		return nil, runner.Options{}, err
	}
	d, err := registry.Select(profile, int(bitWidth))
	if err != nil {
		return nil, runner.Options{}, err
	}
	opts := runner.Options{
		BitWidth:    int(bitWidth),
		BlkLen:      int(blkLen),
		ComputeType: ct,
	}
	if !qnbit.IsValidBlkLen(opts.BlkLen) {
		return nil, runner.Options{}, fmt.Errorf("block length %d: %w", blkLen, qnbit.ErrInvalidBlkLen)
	}
	return d, opts, nil
}
