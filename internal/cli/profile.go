package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newProfileCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the saved preferences and conversation thread",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}

			profile := sess.Profile()
			if profile == nil {
				return errors.New("no saved profile; run `advisor recommend --city <city>` first")
			}

			data, err := yaml.Marshal(profile)
			if err != nil {
				return fmt.Errorf("failed to encode profile: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
