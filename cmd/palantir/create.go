package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/palantir-watch/palantir-go/pkg/session"
)

func createCmd() *cobra.Command {
	var (
		server   string
		username string
		metrics  bool
		name     string
		password string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a room and host it",
		Long: `Connect, create a room, and stay in it until interrupted.

The room identifier is printed once the server delivers the room
state; share it with participants so they can join.

Examples:
  palantir create --name="Movie Night"
  palantir create --name="Movie Night" --password=secret`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(server, username, metrics, func(ctx context.Context, sess *session.Session) error {
				return sess.CreateRoom(ctx, session.RoomInit{Name: name, Password: password})
			})
		},
	}

	addClientFlags(cmd, &server, &username, &metrics)
	cmd.Flags().StringVarP(&name, "name", "n", "", "Room name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Room password (optional)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}
