package cmd

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mccartykim/swarmd/internal/clientcore"
	"github.com/mccartykim/swarmd/internal/config"
	"github.com/mccartykim/swarmd/internal/metrics"
)

var downloadCmd = &cobra.Command{
	Use:   "download <filename> <tracker-list> <local-path>",
	Short: "Join a swarm and download filename to local-path",
	Args:  cobra.ExactArgs(3),
	RunE:  runDownload,
}

func init() {
	downloadCmd.Flags().Bool("seed-after", false, "keep seeding the completed file once the download finishes")
	downloadCmd.Flags().String("seed-listen", "0.0.0.0:0", "data port to seed on, if --seed-after is set")
	downloadCmd.Flags().String("metrics-addr", "", "optional Prometheus metrics address (empty disables it)")
}

func runDownload(cmd *cobra.Command, args []string) error {
	filename := args[0]
	trackers, err := parseTrackerList(args[1])
	if err != nil {
		return err
	}
	localPath := args[2]

	seedAfter, err := cmd.Flags().GetBool("seed-after")
	if err != nil {
		return err
	}
	seedListen, err := cmd.Flags().GetString("seed-listen")
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
	if _, err := core.Download(filename, localPath, trackers); err != nil {
		return err
	}

	if err := core.WaitFor(filename); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	ft, ok := core.Transfer(filename)
	if !ok || !ft.IsComplete() {
		log.WithField("filename", filename).Warn("download: ended without completing")
		return nil
	}
	log.WithField("filename", filename).Info("download: complete")

	if seedAfter {
		if err := core.StartSeeding(filename, seedListen); err != nil {
			return err
		}
		log.WithField("filename", filename).Info("download: now seeding until interrupted")
		<-ctx.Done()
	}
	return nil
}
