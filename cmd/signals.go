package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	sigpkg "github.com/sells-group/outreach-cli/internal/signals"
)

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Ingest reply and claim signals",
}

var signalsConsumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Consume signal events from the queue until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("signals"); err != nil {
			return err
		}

		eng, s, err := initEngine(ctx, false, false)
		if err != nil {
			return err
		}
		defer s.Close()

		consumer := sigpkg.NewConsumer(cfg.Signals, eng)
		return consumer.Run(ctx)
	},
}

var (
	pullWave  string
	pullSince string
)

var signalsPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull claimed-elsewhere signals from Salesforce activity",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		since, err := time.Parse("2006-01-02", pullSince)
		if err != nil {
			return eris.Wrap(err, "parse --since")
		}

		sf, err := initSalesforce()
		if err != nil {
			return err
		}

		eng, s, err := initEngine(ctx, false, false)
		if err != nil {
			return err
		}
		defer s.Close()

		applied, err := sigpkg.NewClaimPuller(sf, s, eng).Pull(ctx, pullWave, since)
		if err != nil {
			return eris.Wrap(err, "pull claims")
		}

		zap.L().Info("claim pull complete",
			zap.String("wave", pullWave),
			zap.Int("applied", applied),
		)
		return nil
	},
}

func init() {
	signalsPullCmd.Flags().StringVar(&pullWave, "wave", "", "wave identifier (required)")
	signalsPullCmd.Flags().StringVar(&pullSince, "since", "", "activity cutoff date YYYY-MM-DD (required)")
	_ = signalsPullCmd.MarkFlagRequired("wave")
	_ = signalsPullCmd.MarkFlagRequired("since")

	signalsCmd.AddCommand(signalsConsumeCmd)
	signalsCmd.AddCommand(signalsPullCmd)
	rootCmd.AddCommand(signalsCmd)
}
