// Command skuad serves table statistics of a skua backend and drives load
// against its queues.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"skua/backend"
	"skua/config"
	"skua/internal/logging"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	log := logging.NewLogger()
	defer log.Sync() //nolint:errcheck

	return newRootCmd().ExecuteContext(logging.WithLogger(ctx, log))
}

func newRootCmd() *cobra.Command {
	var path string
	root := &cobra.Command{
		Use:          "skuad",
		Short:        "Inspect and exercise skua collections",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&path, "config", "c", "", "path to config.yml")
	load := func() (config.Config, error) { return config.Load(path) }

	root.AddCommand(newServeCmd(load), newStatsCmd(load), newBenchCmd(load))
	return root
}

func newServeCmd(load func() (config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve health, table and metrics endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logging.FromContext(cmd.Context()))
		},
	}
}

func serve(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (err error) {
	a, err := backend.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, a.Close()) }()

	ln, err := net.Listen("tcp", cfg.Server.ListenAddr)
	if err != nil {
		return err
	}
	log.Infow("START", "backend", cfg.Backend, "tables", cfg.Server.Tables)
	err = NewServer(a, cfg.Server.Tables, log).Serve(ctx, ln)
	log.Info("STOP")
	return err
}

func newStatsCmd(load func() (config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [TABLE...]",
		Short: "Print row counts of tables",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, err := load()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				args = cfg.Server.Tables
			}
			ctx := cmd.Context()
			log := logging.FromContext(ctx)
			a, err := backend.Open(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, a.Close()) }()

			srv := NewServer(a, nil, log)
			for _, table := range args {
				info, err := srv.info(ctx, table)
				if err != nil {
					return fmt.Errorf("%s: %w", table, err)
				}
				if !info.Exists {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tmissing\n", table)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", table, info.Rows)
			}
			return nil
		},
	}
}
