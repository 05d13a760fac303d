package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/book-expert/voiceclone/internal/segmenter"
	"github.com/spf13/cobra"
)

const (
	flagWindow    = "window"
	flagMinLength = "min-length"
)

type segmentFlags struct {
	input     string
	outputDir string
	window    time.Duration
	minLength time.Duration
}

func newSegmentCmd(a *app) *cobra.Command {
	flags := &segmentFlags{}

	cmd := &cobra.Command{
		Use:   "segment --input FILE",
		Short: "Cut a recording into normalized voice samples",
		Long: `Cut a recording into fixed-length windows, drop a trailing piece shorter than
the minimum length, peak-normalize every piece and write them as numbered WAV
files plus a segments.yaml manifest. Either every sample is written or none is.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runSegment(cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.input, "input", "i", "", "Recording to segment (wav, mp3, flac, ogg, m4a, aac)")
	cmd.Flags().StringVarP(&flags.outputDir, "output-dir", "o", "", "Directory for the voice samples (default from config)")
	cmd.Flags().DurationVar(&flags.window, flagWindow, 0, "Segment window length (default from config, 20s)")
	cmd.Flags().DurationVar(&flags.minLength, flagMinLength, 0,
		"Minimum length of the trailing segment, 0 keeps any tail (default from config, 5s)")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func (a *app) runSegment(cmd *cobra.Command, flags *segmentFlags) error {
	options := segmenter.Options{
		Window:     a.cfg.Segmenter.Window(),
		MinLength:  a.cfg.Segmenter.MinLength(),
		HeadroomDB: a.cfg.Segmenter.Headroom(),
		SampleRate: a.cfg.Segmenter.SampleRate,
		FilePrefix: a.cfg.Segmenter.FilePrefix,
	}

	if cmd.Flags().Changed(flagWindow) {
		options.Window = flags.window
	}

	if cmd.Flags().Changed(flagMinLength) {
		options.MinLength = flags.minLength
	}

	outputDir := flags.outputDir
	if outputDir == "" {
		outputDir = a.cfg.Paths.VoiceSamplesDir
	}

	seg, err := segmenter.New(options, a.log)
	if err != nil {
		return err
	}

	manifest, err := seg.Run(cmd.Context(), flags.input, outputDir)
	if err != nil {
		return fmt.Errorf("segmentation failed: %w", err)
	}

	out := cmd.OutOrStdout()

	if a.verbose {
		for _, segment := range manifest.Segments {
			fmt.Fprintf(out, "Saved: %s (%.2f seconds, %+.2f dB)\n",
				filepath.Join(outputDir, segment.File), float64(segment.DurationMS)/1000, segment.GainDB)
		}
	}

	fmt.Fprintf(out, "Finished: %d voice samples saved to %s\n", len(manifest.Segments), outputDir)

	return nil
}
