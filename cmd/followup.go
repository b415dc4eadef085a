package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var followupAsOf string

var followupCmd = &cobra.Command{
	Use:   "followup",
	Short: "Send follow-ups for attempts with no reply past the delay",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("followup"); err != nil {
			return err
		}

		asOf := time.Now().UTC()
		if followupAsOf != "" {
			parsed, err := time.Parse(time.RFC3339, followupAsOf)
			if err != nil {
				return eris.Wrap(err, "parse --as-of")
			}
			asOf = parsed
		}

		eng, s, err := initEngine(ctx, false, true)
		if err != nil {
			return err
		}
		defer s.Close()

		sent, err := eng.SweepFollowUps(ctx, asOf)
		if err != nil {
			zap.L().Warn("sweep finished with failures", zap.Error(err))
		}
		zap.L().Info("follow-up sweep complete",
			zap.Time("as_of", asOf),
			zap.Int("sent", sent),
		)
		return nil
	},
}

func init() {
	followupCmd.Flags().StringVar(&followupAsOf, "as-of", "", "sweep cutoff as RFC3339 (default now)")
	rootCmd.AddCommand(followupCmd)
}
