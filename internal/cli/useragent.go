package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raysh454/browserfetch/internal/app"
)

func (c *rootCommand) userAgentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "user-agent",
		Short: "Print the browser's navigator.userAgent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(cmd, func(ctx context.Context, a *app.Application, id string) error {
				ua, err := a.Sessions.UserAgent(ctx, id)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(c.stdout, ua)
				return err
			})
		},
	}
}
