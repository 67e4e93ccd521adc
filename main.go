package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/VladMinzatu/monodroid-extractor/internal/exporter"
	"github.com/VladMinzatu/monodroid-extractor/internal/extractor"
	"github.com/VladMinzatu/monodroid-extractor/internal/pprof"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

type reportOptions struct {
	pprof  string
	folded string
	otlp   string
}

func main() {
	if err := newRootCmd(afero.NewOsFs(), os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("[!] Extraction failed:"), err)
		os.Exit(1)
	}
}

func newRootCmd(fs afero.Fs, stdout io.Writer) *cobra.Command {
	var (
		opts    extractor.Options
		reports reportOptions
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "monodroid-extractor <apk|libmonodroid_bundle_app.so>",
		Short: "Extract the managed assemblies embedded in a Xamarin/Mono Android bundle",
		Long: `Extract the .NET assemblies that mkbundle embeds in libmonodroid_bundle_app.so.

The input is either the bundle library itself or an APK containing it under
lib/<abi>/. Assemblies are written to the output directory, gunzipped when stored
compressed. For APK input the bundle library is copied next to a dlls/ directory.`,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			setupLogging(verbose)

			res, err := extractor.New(fs).Extract(args[0], opts)
			if err != nil {
				return err
			}
			printResult(stdout, res)
			return writeReports(fs, res, reports)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.OutDir, "out", "o", extractor.DefaultOutDir, "output directory")
	flags.StringVar(&opts.Arch, "arch", "", "preferred ABI when the input is an APK (e.g. arm64-v8a)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&reports.pprof, "pprof", "", "write a pprof profile of the assembly sizes to this file")
	flags.StringVar(&reports.folded, "folded", "", "write folded stacks of the assembly sizes to this file")
	flags.StringVar(&reports.otlp, "otlp", "", "write an OTLP profile of the assembly sizes to this file")
	return cmd
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func printResult(w io.Writer, res *extractor.Result) {
	dir, err := filepath.Abs(res.OutDir)
	if err != nil {
		dir = res.OutDir
	}
	color.New(color.FgGreen).Fprintf(w, "[+] Extracted %d assemblies to %s:\n", len(res.Artifacts), dir)
	for _, a := range res.Artifacts {
		fmt.Fprintf(w, "    %s -> %s (%s)\n", color.CyanString(a.Name), a.Path, humanize.Bytes(a.Size))
	}
}

func writeReports(fs afero.Fs, res *extractor.Result, reports reportOptions) error {
	if reports.pprof != "" {
		p, err := pprof.BuildSizeProfile(res, time.Now())
		if err != nil {
			return fmt.Errorf("build pprof profile: %w", err)
		}
		if err := pprof.WriteProfile(fs, p, reports.pprof); err != nil {
			return fmt.Errorf("write pprof profile: %w", err)
		}
		slog.Info("Wrote pprof profile", "path", reports.pprof)
	}
	if reports.folded != "" {
		if err := exporter.WriteFoldedStacks(fs, exporter.BuildFoldedStacks(res), reports.folded); err != nil {
			return fmt.Errorf("write folded stacks: %w", err)
		}
		slog.Info("Wrote folded stacks", "path", reports.folded)
	}
	if reports.otlp != "" {
		data := exporter.BuildOltpProfile(res, func() uint64 { return uint64(time.Now().UnixNano()) })
		if err := exporter.WriteOltpProfile(fs, data, reports.otlp); err != nil {
			return fmt.Errorf("write otlp profile: %w", err)
		}
		slog.Info("Wrote OTLP profile", "path", reports.otlp)
	}
	return nil
}
