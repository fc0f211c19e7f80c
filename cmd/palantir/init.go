package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/palantir-watch/palantir-go/internal/config"
)

func initCmd() *cobra.Command {
	var (
		server   string
		username string
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a palantir.json in the current directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			if config.Exists(wd) && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", config.ConfigFileName)
			}

			cfg := config.New()
			if server != "" {
				cfg.Server = server
			}
			cfg.Username = username

			path := filepath.Join(wd, config.ConfigFileName)
			if err := cfg.SaveTo(path); err != nil {
				return err
			}
			success("Wrote %s", path)
			if username == "" {
				info("Set \"username\" before connecting")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&server, "server", "S", "", "Server URL")
	cmd.Flags().StringVarP(&username, "username", "u", "", "Display name")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	return cmd
}
