package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ChuLiYu/decision-engine/internal/metrics"
	"github.com/ChuLiYu/decision-engine/internal/server"
)

func buildServeCommand() *cobra.Command {
	var (
		port        int
		metricsPort int
		withMetrics bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Planner over gRPC",
		Long:  "Start the gRPC Planner and health services and, when enabled, the Prometheus /metrics endpoint. Stops on SIGINT or SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app, out io.Writer) error {
				if cmd.Flags().Changed("port") {
					a.cfg.Server.Port = port
				}
				if cmd.Flags().Changed("metrics-port") {
					a.cfg.Metrics.Port = metricsPort
				}
				if cmd.Flags().Changed("metrics") {
					a.cfg.Metrics.Enabled = withMetrics
				}
				return serve(ctx, a, out)
			})
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "gRPC port (default from config)")
	cmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "metrics port (default from config)")
	cmd.Flags().BoolVar(&withMetrics, "metrics", false, "serve /metrics (default from config)")
	return cmd
}

func serve(ctx context.Context, a *app, out io.Writer) error {
	p, err := a.openPlanner()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", a.cfg.Server.Port, err)
	}
	srv := server.New(p, server.WithLogger(a.logger))
	fmt.Fprintf(out, "planner listening on %s\n", lis.Addr())

	var metricsSrv *http.Server
	if a.cfg.Metrics.Enabled {
		metricsSrv = metrics.NewServer(fmt.Sprintf(":%d", a.cfg.Metrics.Port), a.registry)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(lis)
	})
	if metricsSrv != nil {
		g.Go(func() error {
			a.logger.Info("metrics server listening", "addr", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down", "timeout", a.cfg.Server.ShutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()

		srv.Stop(shutdownCtx)
		if metricsSrv != nil {
			return metricsSrv.Shutdown(shutdownCtx)
		}
		return nil
	})

	return g.Wait()
}
