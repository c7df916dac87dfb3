package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"kbengine/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newMetricsCmd(rt *runtime) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Serve Prometheus metrics until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("addr") {
				addr = rt.cfg.MetricsAddr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			rollup := telemetry.NewRollupCollector(rt.store, rt.cfg.AnalyticsWindowDays, rt.now)
			return serveMetrics(ctx, addr, rt.healthHandler(), rollup)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default metrics_addr)")
	return cmd
}

func (rt *runtime) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := rt.store.Ping(r.Context()); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}
}

// newMetricsMux serves the process registry together with the collectors
// passed in.
func newMetricsMux(health http.Handler, collectors ...prometheus.Collector) *http.ServeMux {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors...)
	gatherers := prometheus.Gatherers{prometheus.DefaultGatherer, reg}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)
	return mux
}

func serveMetrics(ctx context.Context, addr string, health http.Handler, collectors ...prometheus.Collector) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           newMetricsMux(health, collectors...),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("metrics listening addr=%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Printf("metrics shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
