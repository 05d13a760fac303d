package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/book-expert/voiceclone/internal/engine"
	"github.com/book-expert/voiceclone/internal/fileutil"
	"github.com/book-expert/voiceclone/internal/synth"
	"github.com/spf13/cobra"
)

const flagSeed = "seed"

type synthesizeFlags struct {
	text      string
	voiceDir  string
	voice     string
	output    string
	quality   string
	seed      int
	emotion   string
	normalize bool
}

func newSynthesizeCmd(a *app) *cobra.Command {
	flags := &synthesizeFlags{}

	cmd := &cobra.Command{
		Use:   "synthesize --text TEXT",
		Short: "Generate speech in the cloned voice",
		Long: `Load every WAV sample from the voice directory and ask the engine for speech,
falling back through cheaper parameter sets until one succeeds. The result is
written as a WAV file and checked for a minimum size.

Quality tiers: ` + strings.Join(synth.QualityNames(), ", "),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runSynthesize(cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.text, "text", "t", "", "Text to speak")
	cmd.Flags().StringVar(&flags.voiceDir, "voice-dir", "", "Directory of voice samples (default from config)")
	cmd.Flags().StringVar(&flags.voice, "voice", "", "Named voice under the configured voices directory")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Output WAV file; bare names go under the output directory")
	cmd.Flags().StringVarP(&flags.quality, "quality", "q", "", "Quality tier (default from config, high_quality)")
	cmd.Flags().IntVar(&flags.seed, flagSeed, 0, "Random seed for reproducible output")
	cmd.Flags().StringVar(&flags.emotion, "emotion", "", "Emotion label passed to the engine")
	cmd.Flags().BoolVar(&flags.normalize, "normalize-text", false, "Spell out numbers and abbreviations before generation")
	_ = cmd.MarkFlagRequired("text")
	cmd.MarkFlagsMutuallyExclusive("voice-dir", "voice")

	return cmd
}

func (a *app) runSynthesize(cmd *cobra.Command, flags *synthesizeFlags) error {
	qualityName := flags.quality
	if qualityName == "" {
		qualityName = a.cfg.Synthesizer.DefaultQuality
	}

	quality, err := synth.ParseQuality(qualityName)
	if err != nil {
		return err
	}

	voiceDir, err := a.resolveVoiceDir(flags)
	if err != nil {
		return err
	}

	ttsEngine, err := engine.New(a.cfg, a.log)
	if err != nil {
		return err
	}

	synthesizer, err := synth.New(ttsEngine, synth.Settings{
		SampleRate:     a.cfg.Synthesizer.SampleRate,
		OutputDir:      a.cfg.Paths.OutputDir,
		MinOutputBytes: a.cfg.Synthesizer.MinOutputSize(),
		NormalizeText:  flags.normalize || a.cfg.Synthesizer.NormalizeText,
	}, a.log)
	if err != nil {
		return err
	}

	request := synth.Request{
		Text:       flags.text,
		VoiceDir:   voiceDir,
		OutputName: flags.output,
		Quality:    quality,
		Emotion:    flags.emotion,
	}

	if request.OutputName == "" {
		request.OutputName = a.cfg.Synthesizer.OutputName
	}

	if cmd.Flags().Changed(flagSeed) {
		seed := flags.seed
		request.Seed = &seed
	}

	out := cmd.OutOrStdout()

	result, err := synthesizer.Synthesize(cmd.Context(), request)

	if a.verbose && result != nil {
		fmt.Fprintf(out, "States: %s\n", joinStates(result.Trail))
	}

	if err != nil {
		return fmt.Errorf("synthesis failed: %w", err)
	}

	fmt.Fprintf(out, "Generated speech saved to %s (%s, %s)\n",
		result.OutputPath, fileutil.FormatBytes(result.Bytes), fileutil.FormatDuration(result.Duration))

	if a.verbose {
		fmt.Fprintf(out, "Rung: %s after %d attempt(s), %d voice sample(s)\n",
			result.Rung.Name, result.Attempts, result.References)
	}

	return nil
}

func (a *app) resolveVoiceDir(flags *synthesizeFlags) (string, error) {
	if flags.voiceDir != "" {
		return flags.voiceDir, nil
	}

	if flags.voice == "" {
		return a.cfg.Paths.VoiceSamplesDir, nil
	}

	nameErr := fileutil.ValidateName(flags.voice)
	if nameErr != nil {
		return "", nameErr
	}

	return filepath.Join(a.cfg.Paths.VoicesDir, flags.voice), nil
}

func joinStates(states []synth.State) string {
	names := make([]string, len(states))
	for i, state := range states {
		names[i] = string(state)
	}

	return strings.Join(names, " -> ")
}
