package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lkarlslund/aigateway/pkg/config"
	"github.com/lkarlslund/aigateway/pkg/gateway"
	"github.com/lkarlslund/aigateway/pkg/logutil"
	"github.com/lkarlslund/aigateway/pkg/upstream"
)

var (
	serveConfigPath         string
	serveListenAddrOverride string
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the capability gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Credentials may live in a .env file next to the process;
			// missing files are fine.
			_ = godotenv.Load()

			cfg, err := config.LoadGatewayConfig(serveConfigPath)
			if err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("load gateway config: %w", err)
				}
				cfg, err = config.LoadOrCreateGatewayConfig(serveConfigPath)
				if err != nil {
					return fmt.Errorf("create default gateway config: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote default config to %s\n", serveConfigPath)
			}
			if cmd.Flags().Changed("listen-addr") {
				cfg.ListenAddr = serveListenAddrOverride
			}
			if !cmd.Flags().Changed("loglevel") {
				if err := logutil.Configure(cfg.LogLevel); err != nil {
					return err
				}
			}

			client := upstream.NewClient(cfg.Upstream)
			srv := gateway.NewServer(cfg, client)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return srv.Run(ctx)
		},
	}
	serveCmd.Flags().StringVar(&serveConfigPath, "config", config.DefaultConfigPath(), "Gateway config TOML path")
	serveCmd.Flags().StringVar(&serveListenAddrOverride, "listen-addr", "", "Override listen address from config (e.g. 127.0.0.1:8080)")
	rootCmd.AddCommand(serveCmd)
}
