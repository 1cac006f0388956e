package cmd

import (
	"fmt"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mccartykim/swarmd/internal/adminapi"
	"github.com/mccartykim/swarmd/internal/config"
	"github.com/mccartykim/swarmd/internal/metrics"
	"github.com/mccartykim/swarmd/internal/trackerserver"
	"github.com/mccartykim/swarmd/internal/trackerstore"
)

var trackerCmd = &cobra.Command{
	Use:   "tracker",
	Short: "Run a tracker: accepts RegisterPeer/PeerList requests over TCP",
	RunE:  runTracker,
}

func init() {
	trackerCmd.Flags().String("listen", "0.0.0.0:6969", "tracker TCP listen address")
	trackerCmd.Flags().String("admin-addr", "", "optional read-only HTTP admin address (empty disables it)")
	trackerCmd.Flags().String("metrics-addr", "", "optional Prometheus metrics address (empty disables it)")
	trackerCmd.Flags().String("redis-dsn", "", "optional redis DSN backing the tracker registry (empty uses an in-memory store)")
	_ = v.BindPFlag("listen_addr", trackerCmd.Flags().Lookup("listen"))
	_ = v.BindPFlag("admin_addr", trackerCmd.Flags().Lookup("admin-addr"))
	_ = v.BindPFlag("metrics_addr", trackerCmd.Flags().Lookup("metrics-addr"))
	_ = v.BindPFlag("redis_dsn", trackerCmd.Flags().Lookup("redis-dsn"))
}

func runTracker(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	store, err := buildStore(cfg.RedisDSN)
	if err != nil {
		return err
	}

	trackerMetrics := metrics.NewTracker(prometheus.DefaultRegisterer)

	srv, err := trackerserver.Listen(store, cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("tracker: listen %s: %w", cfg.ListenAddr, err)
	}
	srv.WithMetrics(trackerMetrics)
	log.WithField("addr", srv.Addr().String()).Info("tracker: listening")

	if cfg.AdminAddr != "" {
		admin := adminapi.New(store)
		go func() {
			log.WithField("addr", cfg.AdminAddr).Info("tracker: admin API listening")
			if err := http.ListenAndServe(cfg.AdminAddr, admin.Handler()); err != nil {
				log.WithError(err).Warn("tracker: admin API stopped")
			}
		}()
	}

	if cfg.MetricsAddr != "" {
		go func() {
			log.WithField("addr", cfg.MetricsAddr).Info("tracker: metrics listening")
			if err := http.ListenAndServe(cfg.MetricsAddr, promhttp.Handler()); err != nil {
				log.WithError(err).Warn("tracker: metrics server stopped")
			}
		}()
	}

	return srv.Serve()
}

func buildStore(redisDSN string) (trackerstore.Store, error) {
	if redisDSN == "" {
		return trackerstore.NewMemStore(), nil
	}
	opts, err := redis.ParseURL(redisDSN)
	if err != nil {
		return nil, fmt.Errorf("tracker: parse redis dsn: %w", err)
	}
	return trackerstore.NewRedisStore(redis.NewClient(opts), "swarmd"), nil
}
