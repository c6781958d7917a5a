package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/leadgrid/lead-engine/internal/model"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles <file>",
	Short: "Load or update subscriber targeting profiles from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "read profiles file")
		}
		var profiles []model.TargetingProfile
		if err := json.Unmarshal(data, &profiles); err != nil {
			return eris.Wrap(err, "decode profiles json")
		}

		if err := cfg.Validate(); err != nil {
			return err
		}
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(cmd.Context()); err != nil {
			return err
		}

		for i := range profiles {
			if err := st.UpsertProfile(cmd.Context(), &profiles[i]); err != nil {
				return err
			}
		}
		fmt.Printf("upserted %d profiles\n", len(profiles))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profilesCmd)
}
