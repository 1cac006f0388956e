package cmd

import (
	"context"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mccartykim/swarmd/internal/clientcore"
	"github.com/mccartykim/swarmd/internal/config"
	"github.com/mccartykim/swarmd/internal/metrics"
)

var seedCmd = &cobra.Command{
	Use:   "seed <file> <tracker-list>",
	Short: "Seed an existing local file to one or more trackers",
	Args:  cobra.ExactArgs(2),
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().String("listen", "0.0.0.0:0", "data port to listen on (0 picks an ephemeral port)")
	seedCmd.Flags().Int64("block-size", 256*1024, "block size in bytes")
	seedCmd.Flags().String("metrics-addr", "", "optional Prometheus metrics address (empty disables it)")
}

func runSeed(cmd *cobra.Command, args []string) error {
	filePath := args[0]
	trackers, err := parseTrackerList(args[1])
	if err != nil {
		return err
	}
	blockSize, err := cmd.Flags().GetInt64("block-size")
	if err != nil {
		return err
	}
	listenAddr, err := cmd.Flags().GetString("listen")
	if err != nil {
		return err
	}
	metricsAddr, err := cmd.Flags().GetString("metrics-addr")
	if err != nil {
		return err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	ctx, cancel := withShutdownSignal(context.Background())
	defer cancel()

	clientMetrics := metrics.NewClient(prometheus.DefaultRegisterer)
	if metricsAddr != "" {
		serveMetrics(metricsAddr)
	}

	core := clientcore.New(ctx, cfg.DataDir, clientMetrics)
	filename := filepath.Base(filePath)

	ft, err := core.Seed(filename, filePath, blockSize, listenAddr, trackers)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"filename": ft.Filename, "trackers": len(trackers)}).Info("seed: serving until interrupted")

	<-ctx.Done()
	return nil
}
