package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	zp "github.com/Keksclan/zoraprofiles"
	"github.com/Keksclan/zoraprofiles/internal/settings"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(v)
			if err != nil {
				return err
			}
			defer rt.close()
			return serve(cmd.Context(), rt)
		},
	}
	cmd.Flags().String("addr", "", "listen address (env ADDR, or HOST and PORT)")
	cmd.Flags().String("allowed-origins", "", "comma-separated CORS allow-list (env ALLOWED_ORIGINS)")
	bindFlags(v, cmd.Flags(), map[string]string{
		"addr":            settings.KeyAddr,
		"allowed-origins": settings.KeyAllowedOrigins,
	})
	return cmd
}

func serve(ctx context.Context, rt *runtime) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := zp.NewServer(append(rt.opts, zp.WithMetrics(reg))...)
	defer srv.Close()

	if err := srv.Service().Ready(); err != nil {
		rt.logger.Warn("aggregation requests will fail until configured", zap.Error(err))
	}

	httpSrv := &http.Server{
		Addr:              rt.settings.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("listening", zap.String("addr", httpSrv.Addr), zap.Int("concurrency", rt.settings.Concurrency))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	rt.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
