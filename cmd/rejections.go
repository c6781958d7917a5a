package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/leadgrid/lead-engine/internal/export"
)

var (
	rejectionsFormat string
	rejectionsOut    string
)

var rejectionsCmd = &cobra.Command{
	Use:   "rejections <run-id>",
	Short: "Export a run's rejection records as CSV or XLSX",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		rejections, err := st.ListRejections(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := os.Stdout
		if rejectionsOut != "" {
			f, createErr := os.Create(rejectionsOut)
			if createErr != nil {
				return eris.Wrap(createErr, "create output file")
			}
			defer f.Close()
			out = f
		}

		switch rejectionsFormat {
		case "csv":
			err = export.WriteCSV(out, rejections)
		case "xlsx":
			if rejectionsOut == "" {
				return eris.New("xlsx output requires --out")
			}
			err = export.WriteXLSX(out, rejections)
		default:
			return eris.Errorf("unknown format %q (want csv or xlsx)", rejectionsFormat)
		}
		if err != nil {
			return err
		}

		if rejectionsOut != "" {
			fmt.Printf("wrote %d rejections to %s\n", len(rejections), rejectionsOut)
		}
		return nil
	},
}

func init() {
	rejectionsCmd.Flags().StringVar(&rejectionsFormat, "format", "csv", "output format: csv or xlsx")
	rejectionsCmd.Flags().StringVar(&rejectionsOut, "out", "", "output file (default stdout for csv)")
	rootCmd.AddCommand(rejectionsCmd)
}
