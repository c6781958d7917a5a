package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var verifyDrainLimit int

var verifyDrainCmd = &cobra.Command{
	Use:   "verify-drain",
	Short: "Retry queued email verifications that are due",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Verify.BaseURL == "" {
			return eris.New("verify.base_url is not configured")
		}

		if err := cfg.Validate(); err != nil {
			return err
		}
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		_, worker := initVerification(st)

		stats, err := worker.ProcessDue(cmd.Context(), verifyDrainLimit)
		if err != nil {
			return err
		}
		fmt.Printf("processed=%d verified=%d retried=%d failed=%d\n",
			stats.Processed, stats.Verified, stats.Retried, stats.Failed)
		return nil
	},
}

func init() {
	verifyDrainCmd.Flags().IntVar(&verifyDrainLimit, "limit", 100, "maximum queue entries to process")
	rootCmd.AddCommand(verifyDrainCmd)
}
