package cli

import (
	"github.com/spf13/cobra"

	"portal-sync/internal/server"
)

// ServeCmd serves the sync trigger and the CRM webhook until interrupted.
func ServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve GET /api/sync and the HubSpot push-update webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := loadDeps(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			if addr == "" {
				addr = d.cfg.HTTPAddr
			}
			if d.cfg.WebhookSecret == "" {
				d.log.Warn("PORTAL_WEBHOOK_SECRET is not set, push-update will reject every request")
			}

			srv := server.New(server.Config{
				Addr:          addr,
				WebhookSecret: d.cfg.WebhookSecret,
			}, d.runner, d.store, d.log.Named("http"))
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default HTTP_ADDR or :8080)")
	return cmd
}
