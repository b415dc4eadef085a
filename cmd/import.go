package main

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/fetcher"
)

var (
	importSource  string
	importCharset string
	importSheet   string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a registration roster into the store",
	Long:  "Reads a roster CSV or XLSX from a local path, HTTP URL, or FTP URL, deduplicates registrations, and upserts attendees and their companies.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		source := importSource
		if source == "" {
			source = cfg.Import.Source
		}
		if source == "" {
			return eris.New("roster source is required (--source or OUTREACH_IMPORT_SOURCE)")
		}
		charset := importCharset
		if charset == "" {
			charset = cfg.Import.Charset
		}

		s, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate")
		}

		var recs []fetcher.Record
		if strings.HasSuffix(strings.ToLower(source), ".xlsx") {
			sheet := importSheet
			if sheet == "" {
				sheet = cfg.Import.Sheet
			}
			recs, err = fetcher.ParseXLSX(source, fetcher.XLSXOptions{SheetName: sheet})
		} else {
			var r io.ReadCloser
			r, err = fetcher.Open(ctx, source)
			if err != nil {
				return err
			}
			defer r.Close()
			recs, err = fetcher.ParseCSV(ctx, r, fetcher.CSVOptions{Charset: charset})
		}
		if err != nil {
			return err
		}

		res, err := fetcher.NewImporter(s).Import(ctx, recs)
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.String("source", source),
			zap.Int("attendees", res.Attendees),
			zap.Int("companies_created", res.CompaniesCreated),
			zap.Int("skipped", res.Skipped),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importSource, "source", "", "roster path or URL (csv or xlsx)")
	importCmd.Flags().StringVar(&importCharset, "charset", "", "roster charset, e.g. windows-1252")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "xlsx sheet name (default first sheet)")
	rootCmd.AddCommand(importCmd)
}
