package main

import (
	"fmt"

	"github.com/book-expert/voiceclone/internal/fileutil"
	"github.com/spf13/cobra"
)

func newVoicesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List the voices available under the voices directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			voices, err := fileutil.ListSubdirs(a.cfg.Paths.VoicesDir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if len(voices) == 0 {
				fmt.Fprintf(out, "No voices found in %s\n", a.cfg.Paths.VoicesDir)

				return nil
			}

			for _, voice := range voices {
				fmt.Fprintln(out, voice)
			}

			return nil
		},
	}
}
