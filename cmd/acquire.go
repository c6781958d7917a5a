package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leadgrid/lead-engine/internal/routing"
)

var (
	acquireSubscriber string
	acquireWorkspace  string
)

var acquireCmd = &cobra.Command{
	Use:   "acquire <lead-id>",
	Short: "Record a direct marketplace purchase of a lead",
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

		a, created, err := routing.AcquireLead(cmd.Context(), st, args[0], acquireSubscriber, acquireWorkspace)
		if err != nil {
			return err
		}
		if !created {
			fmt.Printf("subscriber %s already holds lead %s\n", acquireSubscriber, args[0])
			return nil
		}
		fmt.Printf("assignment %s created (lead %s -> subscriber %s)\n", a.ID, a.LeadID, a.SubscriberID)
		return nil
	},
}

func init() {
	acquireCmd.Flags().StringVar(&acquireSubscriber, "subscriber", "", "buying subscriber ID")
	acquireCmd.Flags().StringVar(&acquireWorkspace, "workspace", "", "buyer's workspace ID")
	_ = acquireCmd.MarkFlagRequired("subscriber")
	_ = acquireCmd.MarkFlagRequired("workspace")
	rootCmd.AddCommand(acquireCmd)
}
