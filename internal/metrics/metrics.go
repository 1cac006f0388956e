// Package metrics defines the Prometheus counters/gauges exposed by the
// tracker and client roles, grounded on the pack's near-universal
// prometheus/client_golang usage for exactly this kind of swarm/tracker
// observability surface (Dragonfly2, chihaya, uber-kraken all export a
// comparable counter set for announce/peer-serving activity).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Tracker holds the counters a TrackerServer updates as it dispatches
// requests.
type Tracker struct {
	RegisterPeerTotal prometheus.Counter
	PeerListTotal     prometheus.Counter
	RegisteredFiles   prometheus.Gauge
}

// NewTracker registers Tracker's metrics against reg and returns the
// handle. reg is typically prometheus.DefaultRegisterer.
func NewTracker(reg prometheus.Registerer) *Tracker {
	factory := promauto.With(reg)
	return &Tracker{
		RegisterPeerTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "swarmd_tracker_register_peer_total",
			Help: "Total number of RegisterPeer requests handled.",
		}),
		PeerListTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "swarmd_tracker_peer_list_total",
			Help: "Total number of PeerList requests handled.",
		}),
		RegisteredFiles: factory.NewGauge(prometheus.GaugeOpts{
			Name: "swarmd_tracker_registered_files",
			Help: "Current number of distinct filenames with at least one registered peer.",
		}),
	}
}

// Client holds the counters a Downloader/Seeder/ClientCore updates.
type Client struct {
	BlocksDownloaded prometheus.Counter
	BlocksServed     prometheus.Counter
	BytesDownloaded  prometheus.Counter
	BytesServed      prometheus.Counter
	ActiveTransfers  prometheus.Gauge
}

// NewClient registers Client's metrics against reg and returns the handle.
func NewClient(reg prometheus.Registerer) *Client {
	factory := promauto.With(reg)
	return &Client{
		BlocksDownloaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "swarmd_client_blocks_downloaded_total",
			Help: "Total blocks recorded by downloaders across all transfers.",
		}),
		BlocksServed: factory.NewCounter(prometheus.CounterOpts{
			Name: "swarmd_client_blocks_served_total",
			Help: "Total blocks served by seeders across all transfers.",
		}),
		BytesDownloaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "swarmd_client_bytes_downloaded_total",
			Help: "Total bytes recorded by downloaders across all transfers.",
		}),
		BytesServed: factory.NewCounter(prometheus.CounterOpts{
			Name: "swarmd_client_bytes_served_total",
			Help: "Total bytes served by seeders across all transfers.",
		}),
		ActiveTransfers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "swarmd_client_active_transfers",
			Help: "Number of FileTransfers currently owned by this ClientCore.",
		}),
	}
}
