package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/demographics-cli/internal/ingest"
)

var (
	importCSVPath   string
	importDelimiter string
	importChunkSize int
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import property listings with coordinates from CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		opts := ingest.CSVOptions{LazyQuotes: true}
		if importDelimiter != "" {
			opts.Delimiter = []rune(importDelimiter)[0]
		}

		f, err := os.Open(importCSVPath)
		if err != nil {
			return eris.Wrap(err, "open csv")
		}
		defer f.Close() //nolint:errcheck

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := ingest.Import(ctx, f, st, opts, importChunkSize)
		if err != nil {
			return eris.Wrap(err, "import csv")
		}

		zap.L().Info("import complete",
			zap.Int("rows", res.Rows),
			zap.Int64("imported", res.Imported),
			zap.Int("skipped", res.Skipped),
			zap.String("csv", importCSVPath),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importCSVPath, "csv", "", "path to CSV file (required)")
	importCmd.Flags().StringVar(&importDelimiter, "delimiter", "", "field delimiter (default ',')")
	importCmd.Flags().IntVar(&importChunkSize, "chunk-size", 5000, "rows per store write")
	_ = importCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(importCmd)
}
