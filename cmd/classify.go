package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	classifyWave    string
	classifyCompany string
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Assign treatments and budget ranks for a wave",
	Long:  "Runs the decision table over every researched company's attendees, locks per-company budget rankings, and creates one pending attempt per attendee. Re-running is a no-op for attendees already classified.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("classify"); err != nil {
			return err
		}

		eng, s, err := initEngine(ctx, false, false)
		if err != nil {
			return err
		}
		defer s.Close()

		var created int
		if classifyCompany != "" {
			created, err = eng.ClassifyCompany(ctx, classifyCompany, classifyWave)
		} else {
			created, err = eng.ClassifyWave(ctx, classifyWave)
		}
		if err != nil {
			return eris.Wrap(err, "classify wave")
		}

		zap.L().Info("classification complete",
			zap.String("wave", classifyWave),
			zap.Int("attempts_created", created),
		)
		return nil
	},
}

func init() {
	classifyCmd.Flags().StringVar(&classifyWave, "wave", "", "wave identifier (required)")
	classifyCmd.Flags().StringVar(&classifyCompany, "company", "", "classify a single company instead of the whole wave")
	_ = classifyCmd.MarkFlagRequired("wave")
	rootCmd.AddCommand(classifyCmd)
}
