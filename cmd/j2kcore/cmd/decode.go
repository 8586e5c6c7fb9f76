package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Raster-Lab/J2KSwift-sub002/internal/codeblock"
)

// NewDecodeCmd reconstructs a coefficient plane from a coded code-block
// container.
func NewDecodeCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "reconstruct a coefficient plane from a code-block container",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, _ := cmd.Flags().GetString("in")
			out, _ := cmd.Flags().GetString("out")
			if in == "" || out == "" {
				return fmt.Errorf("--in and --out are required")
			}

			f, err := os.Open(in)
			if err != nil {
				return err
			}
			defer f.Close()

			block, err := readContainer(f)
			if err != nil {
				return fmt.Errorf("read container: %w", err)
			}

			coeffs, truncated, err := codeblock.Decode(block, block.BitDepth, codeblock.Options{
				GuardBits: block.GuardBits,
				Style:     block.Style,
			})
			if err != nil {
				return fmt.Errorf("decode: %w", err)
			}
			if truncated {
				slog.WarnContext(ctx, "decoded from a truncated segment", "in", in)
			}

			if err := writeCoefficients(out, coeffs); err != nil {
				return fmt.Errorf("write coefficients: %w", err)
			}

			slog.InfoContext(ctx, "decoded code-block", "width", block.Width, "height", block.Height, "passes", block.PassCount())
			return nil
		},
	}

	pf := cmd.Flags()
	pf.String("in", "", "path to a coded code-block container")
	pf.String("out", "", "path to write the reconstructed little-endian int32 plane")
	return cmd
}
