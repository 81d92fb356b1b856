package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/otherwisedev/otherwise"
	"github.com/otherwisedev/otherwise/views"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := otherwise.LoadConfig(v)
			if err != nil {
				return err
			}

			app := otherwise.New(cfg, views.New(cfg))
			defer app.Close()

			app.Echo.Logger.Infof("otherwise %s listening on %s", version, cfg.Addr)
			return app.Start(cmd.Context())
		},
	}

	cmd.Flags().String("addr", "", "listen address (default :3000)")
	_ = v.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	return cmd
}
