package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qnbit/internal/logger"
	"github.com/samcharles93/qnbit/internal/platform"
	"github.com/samcharles93/qnbit/internal/runner"
)

func sizesCmd() *cli.Command {
	var (
		m, n, k  int64
		batch    int64
		jsonMode bool
	)

	flags := append([]cli.Flag{}, problemFlags()...)
	flags = append(flags, shapeFlags(&m, &n, &k)...)
	flags = append(flags,
		&cli.Int64Flag{
			Name:        "batch",
			Usage:       "number of GEMMs sharing one workspace",
			Value:       1,
			Destination: &batch,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "print sizes as JSON",
			Destination: &jsonMode,
		},
	)

	return &cli.Command{
		Name:  "sizes",
		Usage: "Print buffer, packed B and workspace sizes for a GEMM shape",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyProblemConfig(cmd, LoadConfig())
			registry := platform.NewRegistry(logger.FromContext(ctx))

			d, opts, err := selectTable(registry)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			s, err := runner.ComputeSizes(d, int(m), int(n), int(k), int(batch), opts)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			if jsonMode {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Profile string       `json:"profile"`
					M       int64        `json:"m"`
					N       int64        `json:"n"`
					K       int64        `json:"k"`
					Batch   int64        `json:"batch"`
					Sizes   runner.Sizes `json:"sizes"`
				}{d.Name(), m, n, k, batch, s})
			}

			fmt.Printf("profile:              %s (%d-bit, BlkLen %d, %s)\n", d.Name(), opts.BitWidth, opts.BlkLen, s.ComputeType)
			fmt.Printf("shape:                M=%d N=%d K=%d batch=%d\n", m, n, k, batch)
			fmt.Printf("blocks per column:    %d x %d bytes\n", s.BlockCountK, s.BlockBytes)
			fmt.Printf("quant B data:         %d bytes\n", s.QuantBDataBytes)
			fmt.Printf("quant B scales:       %d floats\n", s.QuantBScaleCount)
			fmt.Printf("quant B zero points:  %d bytes\n", s.QuantBZeroPointBytes)
			if s.PackedBytes > 0 {
				fmt.Printf("packed B:             %d bytes\n", s.PackedBytes)
			} else {
				fmt.Printf("packed B:             (naive layout)\n")
			}
			fmt.Printf("workspace per GEMM:   %d bytes (align %d)\n", s.PerGemmWorkspace, s.WorkspaceAlignment)
			fmt.Printf("workspace total:      %d bytes\n", s.WorkspaceBytes)
			return nil
		},
	}
}
