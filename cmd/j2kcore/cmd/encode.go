package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Raster-Lab/J2KSwift-sub002/internal/bitplane"
	"github.com/Raster-Lab/J2KSwift-sub002/internal/codeblock"
	"github.com/Raster-Lab/J2KSwift-sub002/internal/ctxmodel"
	"github.com/Raster-Lab/J2KSwift-sub002/internal/mqc"
)

// NewEncodeCmd codes one code-block's worth of coefficients and writes
// the resulting CodeBlock container to disk.
func NewEncodeCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "code a coefficient plane into a code-block",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, _ := cmd.Flags().GetString("in")
			out, _ := cmd.Flags().GetString("out")
			width, _ := cmd.Flags().GetInt("width")
			height, _ := cmd.Flags().GetInt("height")
			bitDepth, _ := cmd.Flags().GetInt("bit-depth")
			guardBits, _ := cmd.Flags().GetInt("guard-bits")
			orientation, _ := cmd.Flags().GetString("orientation")

			if in == "" || out == "" {
				return fmt.Errorf("--in and --out are required")
			}

			orient, err := parseOrientation(orientation)
			if err != nil {
				return err
			}
			style, err := styleFromFlags(cmd)
			if err != nil {
				return err
			}
			termination, err := terminationFromFlag(cmd)
			if err != nil {
				return err
			}
			collectDistortion, _ := cmd.Flags().GetBool("collect-distortion")

			coeffs, err := readCoefficients(in, width, height)
			if err != nil {
				return fmt.Errorf("read coefficients: %w", err)
			}

			opts := codeblock.Options{
				GuardBits:         guardBits,
				Style:             style,
				Termination:       termination,
				CollectDistortion: collectDistortion,
			}
			block, err := codeblock.Encode(coeffs, width, height, orient, bitDepth, opts)
			if err != nil {
				return fmt.Errorf("encode: %w", err)
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := writeContainer(f, block); err != nil {
				return fmt.Errorf("write container: %w", err)
			}

			slog.InfoContext(ctx, "encoded code-block",
				"width", width, "height", height, "passes", block.PassCount(),
				"zero_bit_planes", block.ZeroBitPlaneCount(), "bytes", len(block.Data))
			return nil
		},
	}

	pf := cmd.Flags()
	pf.String("in", "", "path to a little-endian int32 coefficient plane")
	pf.String("out", "", "path to write the coded code-block container")
	pf.Int("width", 0, "block width in samples")
	pf.Int("height", 0, "block height in samples")
	pf.Int("bit-depth", 8, "source sample bit depth")
	pf.Int("guard-bits", 2, "guard bit count")
	pf.String("orientation", "ll", "subband orientation: ll, hl, lh, hh")
	pf.Bool("selective-bypass", false, "enable the selective arithmetic coding bypass style")
	pf.Bool("reset-contexts", false, "reset contexts at every terminated segment boundary (passes inside one segment share contexts)")
	pf.Bool("terminate-per-pass", false, "terminate the MQ coder after every pass")
	pf.Bool("vertically-causal", false, "form contexts without state from the row below (VSC)")
	pf.Bool("segmentation-symbols", false, "encode a segmentation symbol at the end of every cleanup pass")
	pf.Bool("predictable-termination", false, "use predictable termination on every terminated segment")
	pf.String("termination", "default", "MQ termination mode: default, predictable, near-optimal")
	pf.Bool("collect-distortion", false, "record per-pass distortion/slope for rate control")
	return cmd
}

func parseOrientation(name string) (ctxmodel.Orientation, error) {
	switch name {
	case "ll", "LL":
		return ctxmodel.LL, nil
	case "hl", "HL":
		return ctxmodel.HL, nil
	case "lh", "LH":
		return ctxmodel.LH, nil
	case "hh", "HH":
		return ctxmodel.HH, nil
	default:
		return 0, fmt.Errorf("unknown orientation %q (want ll, hl, lh, hh)", name)
	}
}

func styleFromFlags(cmd *cobra.Command) (bitplane.BlockStyle, error) {
	var style bitplane.BlockStyle
	set := func(flag string, bit bitplane.BlockStyle) {
		if v, _ := cmd.Flags().GetBool(flag); v {
			style |= bit
		}
	}
	set("selective-bypass", bitplane.StyleSelectiveBypass)
	set("reset-contexts", bitplane.StyleResetContexts)
	set("terminate-per-pass", bitplane.StyleTerminatePerPass)
	set("vertically-causal", bitplane.StyleVerticallyCausal)
	set("predictable-termination", bitplane.StylePredictableTermination)
	set("segmentation-symbols", bitplane.StyleSegmentationSymbols)
	return style, nil
}

func terminationFromFlag(cmd *cobra.Command) (mqc.Termination, error) {
	name, _ := cmd.Flags().GetString("termination")
	return terminationFromFlagName(name)
}

func terminationFromFlagName(name string) (mqc.Termination, error) {
	switch name {
	case "default", "":
		return mqc.TerminationDefault, nil
	case "predictable":
		return mqc.TerminationPredictable, nil
	case "near-optimal":
		return mqc.TerminationNearOptimal, nil
	default:
		return 0, fmt.Errorf("unknown termination mode %q", name)
	}
}
