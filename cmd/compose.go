package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	composeWave     string
	composeAttempt  string
	composeAttendee string
)

var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Generate grounded outreach messages for pending attempts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("compose"); err != nil {
			return err
		}
		if composeWave == "" && composeAttempt == "" {
			return eris.New("--wave or --attempt is required")
		}
		if composeAttendee != "" && composeWave == "" {
			return eris.New("--attendee requires --wave")
		}

		eng, s, err := initEngine(ctx, true, false)
		if err != nil {
			return err
		}
		defer s.Close()

		if composeAttendee != "" {
			att, err := s.GetAttemptByAttendee(ctx, composeAttendee, composeWave)
			if err != nil {
				return eris.Wrap(err, "compose attendee")
			}
			if att == nil {
				return eris.Errorf("no attempt for attendee %q in wave %q", composeAttendee, composeWave)
			}
			composeAttempt = att.ID
		}

		if composeAttempt != "" {
			if err := eng.ComposeAttempt(ctx, composeAttempt); err != nil {
				return eris.Wrap(err, "compose attempt")
			}
			zap.L().Info("compose complete", zap.String("attempt", composeAttempt))
			return nil
		}

		generated, err := eng.ComposeWave(ctx, composeWave)
		if err != nil {
			zap.L().Warn("compose finished with failures", zap.Error(err))
		}
		zap.L().Info("compose complete",
			zap.String("wave", composeWave),
			zap.Int("generated", generated),
		)
		return nil
	},
}

func init() {
	composeCmd.Flags().StringVar(&composeWave, "wave", "", "wave identifier")
	composeCmd.Flags().StringVar(&composeAttempt, "attempt", "", "single attempt id (overrides --wave)")
	composeCmd.Flags().StringVar(&composeAttendee, "attendee", "", "single attendee id (requires --wave)")
	rootCmd.AddCommand(composeCmd)
}
