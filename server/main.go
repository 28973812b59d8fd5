package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/derktes/pi-ir/config"
	"github.com/derktes/pi-ir/server/server"
	"github.com/spf13/cobra"
)

func main() {
	var (
		configPath string
		driver     string
		port       int
		dataDir    string
	)
	rootCmd := &cobra.Command{
		Use:          "server",
		Short:        "Serve the IR code library and hardware over HTTP",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if configPath != "" || config.ConfigExists(config.GetDefaultConfigPath()) {
				if configPath == "" {
					configPath = config.GetDefaultConfigPath()
				}
				loaded, err := config.LoadConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if cmd.Flags().Changed("driver") {
				cfg.GPIO.Driver = driver
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("data-dir") {
				cfg.Server.DataDir = dataDir
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, err := cfg.NewLogger()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return server.Start(ctx, cfg, log)
		},
	}
	flags := rootCmd.Flags()
	flags.StringVar(&configPath, "config", "", "Path of the YAML configuration file")
	flags.StringVar(&driver, "driver", config.DriverSerial, "GPIO driver, serial or loopback")
	flags.IntVarP(&port, "port", "p", 8080, "Port to listen on")
	flags.StringVarP(&dataDir, "data-dir", "d", "./data", "Directory of the code library")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
