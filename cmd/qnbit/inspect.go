package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qnbit/internal/logger"
	"github.com/samcharles93/qnbit/internal/platform"
	"github.com/samcharles93/qnbit/pkg/qnbit"
)

type tableJSON struct {
	Profile  string          `json:"profile"`
	BitWidth int             `json:"bit_width"`
	Slots    map[string]bool `json:"slots"`
	CompFp32 bool            `json:"comp_fp32"`
	CompInt8 bool            `json:"comp_int8"`
}

type inspectJSON struct {
	Arch     string      `json:"arch"`
	Features string      `json:"features"`
	Detected string      `json:"detected"`
	Tables   []tableJSON `json:"tables"`
}

func inspectCmd() *cli.Command {
	var (
		only     string
		jsonMode bool
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Show detected CPU features and the kernels bound in every dispatch table",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "profile",
				Usage:       "only show this profile",
				Destination: &only,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print as JSON",
				Destination: &jsonMode,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			registry := platform.NewRegistry(logger.FromContext(ctx))
			features := registry.Features()

			out := inspectJSON{
				Arch:     features.Arch,
				Features: features.String(),
				Detected: features.Profile(),
			}
			for _, name := range registry.Profiles() {
				if only != "" && name != only {
					continue
				}
				for _, bits := range []int{2, 4, 8} {
					d, err := registry.Select(name, bits)
					if err != nil {
						return cli.Exit(fmt.Sprintf("error: %v", err), 1)
					}
					t := tableJSON{
						Profile:  name,
						BitWidth: bits,
						Slots:    make(map[string]bool),
						CompFp32: d.Supports(qnbit.CompFp32),
						CompInt8: d.Supports(qnbit.CompInt8),
					}
					for s, ok := range d.Slots() {
						t.Slots[s.String()] = ok
					}
					out.Tables = append(out.Tables, t)
				}
			}
			if only != "" && len(out.Tables) == 0 {
				return cli.Exit(fmt.Sprintf("error: unknown profile %q (expected one of %s)",
					only, strings.Join(registry.Profiles(), ", ")), 1)
			}

			if jsonMode {
				b, err := json.MarshalIndent(out, "", "  ")
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: encode: %v", err), 1)
				}
				_, err = fmt.Fprintln(os.Stdout, string(b))
				return err
			}

			fmt.Printf("arch:     %s\n", out.Arch)
			fmt.Printf("features: %s\n", out.Features)
			fmt.Printf("detected: %s\n", out.Detected)
			for _, t := range out.Tables {
				marker := " "
				if t.Profile == out.Detected {
					marker = "*"
				}
				fmt.Printf("\n%s %s %d-bit  fp32=%s int8=%s\n", marker, t.Profile, t.BitWidth, yesNo(t.CompFp32), yesNo(t.CompInt8))
				for _, s := range qnbit.AllSlots() {
					state := "-"
					if t.Slots[s.String()] {
						state = "bound"
					}
					fmt.Printf("    %-32s %s\n", s.String(), state)
				}
			}
			return nil
		},
	}
}

func yesNo(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}
