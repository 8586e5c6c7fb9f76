package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Raster-Lab/J2KSwift-sub002/internal/ratecontrol"
)

// NewBenchRCCmd runs PCRD-opt layer formation over a directory of coded
// code-block containers (produced by "encode --collect-distortion") and
// reports the resulting per-layer, per-block pass allocation as JSON.
func NewBenchRCCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench-rc",
		Short: "run PCRD-opt layer formation over a directory of coded blocks",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("blocks-dir")
			mode, _ := cmd.Flags().GetString("mode")
			layerCount, _ := cmd.Flags().GetInt("layers")
			targetBPP, _ := cmd.Flags().GetFloat64("target-bpp")
			quality, _ := cmd.Flags().GetFloat64("quality")
			strict, _ := cmd.Flags().GetBool("strict")
			estimator, _ := cmd.Flags().GetString("estimator")

			if dir == "" {
				return fmt.Errorf("--blocks-dir is required")
			}

			blocks, totalPixels, err := loadRateBlocks(dir)
			if err != nil {
				return err
			}

			rcMode, err := parseRCMode(mode)
			if err != nil {
				return err
			}
			rcEstimator, err := parseEstimator(estimator)
			if err != nil {
				return err
			}

			config := ratecontrol.Configuration{
				Mode:                 rcMode,
				LayerCount:           layerCount,
				DistortionEstimation: rcEstimator,
				StrictRateMatching:   strict,
				TargetBPP:            targetBPP,
				Quality:              quality,
			}
			layers, err := ratecontrol.AllocateLayers(blocks, totalPixels, config)
			if err != nil {
				return fmt.Errorf("allocate layers: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(layers)
		},
	}

	pf := cmd.Flags()
	pf.String("blocks-dir", "", "directory of coded code-block containers to allocate layers over")
	pf.String("mode", "lossless", "rate control mode: lossless, target_bitrate, constant_quality")
	pf.Int("layers", 1, "number of quality layers to form")
	pf.Float64("target-bpp", 1.0, "target bits-per-pixel for target_bitrate mode")
	pf.Float64("quality", 0.5, "target quality in [0,1] for constant_quality mode")
	pf.Bool("strict", false, "back off passes until every layer's byte budget is strictly met")
	pf.String("estimator", "norm_based", "distortion estimator: norm_based, mse_based, simplified")
	return cmd
}

func loadRateBlocks(dir string) ([]ratecontrol.Block, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, err
	}

	var blocks []ratecontrol.Block
	totalPixels := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, err
		}
		cb, err := readContainer(f)
		f.Close()
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", path, err)
		}

		passes := make([]ratecontrol.PassPoint, len(cb.Passes))
		for i, p := range cb.Passes {
			passes[i] = ratecontrol.PassPoint{
				CumulativeRate:       p.CumulativeBytes,
				CumulativeDistortion: p.Distortion,
			}
		}
		blocks = append(blocks, ratecontrol.Block{ID: entry.Name(), Passes: passes, SubbandGain: 1, StepSize: 1})
		totalPixels += cb.Width * cb.Height
	}
	return blocks, totalPixels, nil
}

func parseRCMode(name string) (ratecontrol.Mode, error) {
	switch name {
	case "lossless", "":
		return ratecontrol.Lossless, nil
	case "target_bitrate":
		return ratecontrol.TargetBitrate, nil
	case "constant_quality":
		return ratecontrol.ConstantQuality, nil
	default:
		return 0, fmt.Errorf("unknown rate control mode %q", name)
	}
}

func parseEstimator(name string) (ratecontrol.DistortionEstimator, error) {
	switch name {
	case "norm_based", "":
		return ratecontrol.NormBased, nil
	case "mse_based":
		return ratecontrol.MSEBased, nil
	case "simplified":
		return ratecontrol.Simplified, nil
	default:
		return 0, fmt.Errorf("unknown distortion estimator %q", name)
	}
}
