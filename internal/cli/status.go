package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/neighborhood-advisor/internal/model"
)

func newStatusCommand(a *app) *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check a recommendation job once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			sess, err := a.session(ctx)
			if err != nil {
				return err
			}
			sess.SetRunID(runID)

			resp, err := sess.Status(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "status: %s\n", resp.Status)
			if !model.JobStatus(resp.Status).Terminal() {
				fmt.Fprintln(out, "still running, check again later")
				return nil
			}
			if resp.Response != "" {
				fmt.Fprintln(out, resp.Response)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Job id printed by recommend")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}
