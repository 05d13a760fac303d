package main

import (
	"context"
	"fmt"

	"github.com/book-expert/voiceclone/internal/engine"
	"github.com/spf13/cobra"
)

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the text-to-speech engine is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ttsEngine, err := engine.New(a.cfg, a.log)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Engine.HealthTimeout())
			defer cancel()

			err = ttsEngine.HealthCheck(ctx)
			if err != nil {
				return fmt.Errorf("TTS engine is not healthy: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "TTS engine is healthy")

			return nil
		},
	}
}
