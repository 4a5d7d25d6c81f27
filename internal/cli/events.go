package cli

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/spf13/cobra"

	natsclient "github.com/capitalize-ai/neighborhood-advisor/internal/nats"
)

func newEventsCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "events [thread-id]",
		Short: "List the lifecycle events of a thread from NATS",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			threadID := ""
			if len(args) == 1 {
				threadID = args[0]
			} else {
				sess, err := a.session(ctx)
				if err != nil {
					return err
				}
				threadID = sess.ThreadID()
			}
			if threadID == "" {
				return fmt.Errorf("no thread id given and none saved")
			}

			nc, err := a.connectNATS(ctx)
			if err != nil {
				return err
			}

			events, err := natsclient.NewEventStream(nc).ThreadEvents(ctx, threadID, limit)
			if err != nil {
				return err
			}

			for _, ev := range events {
				line := fmt.Sprintf("%6d  %s  %-18s", ev.Sequence, ev.CreatedAt.Format(time.RFC3339), ev.Type)
				if ev.JobID != "" {
					line += "  job=" + ev.JobID
				}
				for _, k := range slices.Sorted(maps.Keys(ev.Metadata)) {
					line += fmt.Sprintf("  %s=%v", k, ev.Metadata[k])
				}
				if ev.Reason != "" {
					line += "  " + ev.Reason
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of events to show")
	return cmd
}
