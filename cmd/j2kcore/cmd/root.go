// Package cmd implements the j2kcore command-line front end: thin glue
// over internal/codeblock and internal/ratecontrol for exercising the
// Tier-1 coder and PCRD-opt allocator from the shell.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Raster-Lab/J2KSwift-sub002/internal/obslog"
)

// NewRoot builds the j2kcore command tree.
func NewRoot(ctx context.Context, gitsha string) *cobra.Command {
	root := &cobra.Command{
		Use:   "j2kcore",
		Short: "Tier-1 entropy coder and PCRD-opt rate allocator",
		Long:  "j2kcore exercises the MQ coder, context model, bit-plane coder and PCRD-opt rate controller from the command line.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFile, _ := cmd.Flags().GetString("log-file")
			logJSON, _ := cmd.Flags().GetBool("log-json")

			var level slog.Level
			if err := level.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
				level = slog.LevelInfo
			}

			var logger *slog.Logger
			if logFile != "" {
				w := obslog.NewFileWriter(obslog.FileConfig{
					Path:       logFile,
					MaxSizeMB:  50,
					MaxBackups: 3,
					MaxAgeDays: 14,
					Compress:   true,
				})
				logger = obslog.Logger(w, logJSON, level)
			} else {
				logger = obslog.Logger(os.Stderr, logJSON, level)
			}
			slog.SetDefault(logger)

			if err := level.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
				slog.WarnContext(ctx, "invalid log level, defaulting to INFO", "level", logLevel, "error", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			printCommandTree(cmd, 0)
			return nil
		},
	}

	root.AddCommand(
		NewVersionCmd(gitsha),
		NewEncodeCmd(ctx),
		NewDecodeCmd(ctx),
		NewBenchRCCmd(ctx),
	)

	pf := root.PersistentFlags()
	pf.String("log-level", "INFO", "log level (DEBUG, INFO, WARN, ERROR)")
	pf.String("log-file", "", "rotate logs to this file instead of stderr")
	pf.Bool("log-json", false, "emit structured JSON log records")
	return root
}

func printCommandTree(cmd *cobra.Command, indent int) {
	fmt.Println(strings.Repeat("  ", indent), cmd.Use+":", cmd.Short)
	for _, sub := range cmd.Commands() {
		printCommandTree(sub, indent+1)
	}
}

// NewVersionCmd reports the build's git sha.
func NewVersionCmd(gitsha string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the build's git sha",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(gitsha)
		},
	}
}
