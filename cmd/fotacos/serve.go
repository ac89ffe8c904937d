package main

import (
	"github.com/spf13/cobra"

	"fotacos/internal/app"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"web"},
		Short:   "Run the HTTP API, the event feed and the inbox watcher",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, log, err := flags.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return app.Run(cmd.Context(), cfg, log)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides API_HOST)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides API_PORT)")
	return cmd
}
