package cmd

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"shiptrack/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve tracking queries over HTTP",
		Long: `Run the tracking API:

    GET    /api/track/{number}
    GET    /api/packages
    POST   /api/packages          {"tracking_number": "..."}
    DELETE /api/packages/{number}
    GET    /api/health`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			if err := a.openTracker(nil); err != nil {
				return err
			}

			srv := &http.Server{
				Addr: a.cfg.Address(),
				Handler: server.NewRouter(server.Deps{
					Tracker: a.tracker,
					List:    a.stores.Packages,
					Health:  a.stores,
					Logger:  a.logger,
				}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			return server.Serve(cmd.Context(), srv, a.cfg.Server.ShutdownTimeout, a.logger)
		},
	}

	cmd.Flags().String("host", "localhost", "Address to listen on")
	cmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	a.v.BindPFlag("server.host", cmd.Flags().Lookup("host"))
	a.v.BindPFlag("server.port", cmd.Flags().Lookup("port"))

	return cmd
}
