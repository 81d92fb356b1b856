package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/otherwisedev/otherwise"
)

const defaultConfigFile = "otherwise.yaml"

func newRootCmd(v *viper.Viper) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "otherwise",
		Short:         "Otherwise is the marketing site and content manager for otherwise.dev",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			switch {
			case configPath != "":
				v.SetConfigFile(configPath)
			case fileExists(defaultConfigFile):
				v.SetConfigFile(defaultConfigFile)
			}
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (yaml, toml, json or .env)")
	cmd.PersistentFlags().String("db", "", "SQLite database path (default data/otherwise.db)")
	_ = v.BindPFlag("database_path", cmd.PersistentFlags().Lookup("db"))

	cmd.AddCommand(
		newServeCmd(v),
		newUserCmd(v),
		newVersionCmd(),
	)
	return cmd
}

// openStore loads configuration and opens the database without starting
// the web server.
func openStore(v *viper.Viper) (*otherwise.Store, error) {
	cfg, err := otherwise.LoadConfig(v)
	if err != nil {
		return nil, err
	}
	return otherwise.NewStore(cfg.DatabasePath)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
