package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/palantir-watch/palantir-go/pkg/session"
)

func joinCmd() *cobra.Command {
	var (
		server   string
		username string
		metrics  bool
		password string
	)

	cmd := &cobra.Command{
		Use:   "join <room-id>",
		Short: "Join an existing room",
		Long: `Connect and join the room with the given identifier.

Examples:
  palantir join 0f1e2d3c-4b5a-6978-8796-a5b4c3d2e1f0
  palantir join 0f1e2d3c-4b5a-6978-8796-a5b4c3d2e1f0 --password=secret`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(server, username, metrics, func(ctx context.Context, sess *session.Session) error {
				return sess.JoinRoom(ctx, args[0], password)
			})
		},
	}

	addClientFlags(cmd, &server, &username, &metrics)
	cmd.Flags().StringVarP(&password, "password", "p", "", "Room password (optional)")

	return cmd
}
