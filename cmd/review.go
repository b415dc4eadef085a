package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/review"
	"github.com/sells-group/outreach-cli/pkg/notion"
)

var reviewWave string

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Mirror attempts needing a human decision to Notion",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("review"); err != nil {
			return err
		}

		s, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		mirror := review.NewMirror(notion.NewClient(cfg.Review.Token), s, cfg.Review.DatabaseID)
		created, err := mirror.Sync(ctx, reviewWave)
		if err != nil {
			return eris.Wrap(err, "sync review board")
		}

		zap.L().Info("review sync complete",
			zap.String("wave", reviewWave),
			zap.Int("pages_created", created),
		)
		return nil
	},
}

func init() {
	reviewCmd.Flags().StringVar(&reviewWave, "wave", "", "wave identifier (required)")
	_ = reviewCmd.MarkFlagRequired("wave")
	rootCmd.AddCommand(reviewCmd)
}
