package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qnbit/internal/api"
	"github.com/samcharles93/qnbit/internal/logger"
	"github.com/samcharles93/qnbit/internal/platform"
	"github.com/samcharles93/qnbit/internal/workerpool"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		maxWeights  int64
	)

	flags := append([]cli.Flag{}, problemFlags()...)
	flags = append(flags, workerFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address",
			Value:       "127.0.0.1:8080",
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "read-timeout",
			Usage:       "read timeout",
			Value:       30 * time.Second,
			Destination: &readTimeout,
		},
		&cli.Int64Flag{
			Name:        "max-weights",
			Usage:       "prepared weight matrices kept in memory (0 = unlimited)",
			Value:       64,
			Destination: &maxWeights,
		},
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the dispatch inspection and GEMM HTTP API",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyServeConfig(cmd, LoadConfig(), &addr)
			log := logger.FromContext(ctx)

			registry := platform.NewRegistry(log)
			pool := workerpool.New(int(workers))
			defer pool.Close()

			server := api.NewServer(registry, pool, api.NewWeightsStore(int(maxWeights)), log)
			server.SetDefaults(serveDefaults())
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "profile", registry.Features().Profile(),
				"default_profile", profile, "bits", bitWidth, "blk_len", blkLen, "workers", pool.Size())
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}

// serveDefaults turns the problem flags into the server's request defaults.
func serveDefaults() api.Problem {
	return api.Problem{
		Profile:     profile,
		BitWidth:    int(bitWidth),
		BlkLen:      int(blkLen),
		ComputeType: computeType,
	}
}
