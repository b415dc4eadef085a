package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	sigpkg "github.com/sells-group/outreach-cli/internal/signals"
)

var (
	sendWave    string
	sendAttempt string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send generated messages through SES",
	Long:  "Sends every generated attempt in a wave. Each send consumes the attempt's budget slot exactly once; failed sends keep their slot and can be retried.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("send"); err != nil {
			return err
		}
		if sendWave == "" && sendAttempt == "" {
			return eris.New("--wave or --attempt is required")
		}

		eng, s, err := initEngine(ctx, false, true)
		if err != nil {
			return err
		}
		defer s.Close()

		if sendAttempt != "" {
			if err := eng.SendAttempt(ctx, sendAttempt); err != nil {
				return eris.Wrap(err, "send attempt")
			}
			zap.L().Info("send complete", zap.String("attempt", sendAttempt))
			return nil
		}

		sent, err := eng.SendWave(ctx, sendWave)
		if err != nil {
			zap.L().Warn("send finished with failures", zap.Error(err))
		}
		zap.L().Info("send complete",
			zap.String("wave", sendWave),
			zap.Int("sent", sent),
		)

		// With CRM credentials configured, stamp the delivered contacts so
		// reps see the touch in Salesforce.
		if cfg.Salesforce.Username != "" {
			sf, err := initSalesforce()
			if err != nil {
				return eris.Wrap(err, "send: crm stamp")
			}
			stamped, err := sigpkg.NewContactStamper(sf, s).Stamp(ctx, sendWave)
			if err != nil {
				zap.L().Warn("crm stamp finished with failures", zap.Error(err))
			}
			zap.L().Info("crm stamp complete",
				zap.String("wave", sendWave),
				zap.Int("stamped", stamped),
			)
		}
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendWave, "wave", "", "wave identifier")
	sendCmd.Flags().StringVar(&sendAttempt, "attempt", "", "single attempt id (overrides --wave)")
	rootCmd.AddCommand(sendCmd)
}
