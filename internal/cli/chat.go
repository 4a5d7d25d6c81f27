package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newChatCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message]",
		Short: "Ask follow-up questions about your recommendations",
		Long: `chat sends one message when given as arguments. Without arguments it
reads questions from standard input, one per line, until EOF.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			sess, err := a.session(ctx)
			if err != nil {
				return err
			}

			// On failure the transcript ends with the apology entry.
			ask := func(msg string) error {
				err := sess.Chat(ctx, msg, func(token string) {
					fmt.Fprint(out, token)
				})
				fmt.Fprintln(out)
				if transcript := sess.Transcript(); err != nil && len(transcript) > 0 {
					fmt.Fprintln(out, transcript[len(transcript)-1].Content)
				}
				return err
			}

			if len(args) > 0 {
				return ask(strings.Join(args, " "))
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			fmt.Fprint(out, "> ")
			for scanner.Scan() {
				msg := strings.TrimSpace(scanner.Text())
				if msg != "" {
					if err := ask(msg); err != nil {
						a.logger.Debug("chat failed", zap.Error(err))
					}
				}
				fmt.Fprint(out, "> ")
			}
			return scanner.Err()
		},
	}
}
