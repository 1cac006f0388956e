package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/mccartykim/swarmd/internal/peerinfo"
)

// parseTrackerList splits a comma-separated "host:port,host:port" list
// into TrackerEndpoints, the CLI surface spec.md §6 describes as
// "<tracker-list>".
func parseTrackerList(raw string) ([]peerinfo.TrackerEndpoint, error) {
	parts := strings.Split(raw, ",")
	out := make([]peerinfo.TrackerEndpoint, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		host, portStr, err := net.SplitHostPort(p)
		if err != nil {
			return nil, fmt.Errorf("tracker list entry %q: %w", p, err)
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("tracker list entry %q: bad port: %w", p, err)
		}
		out = append(out, peerinfo.TrackerEndpoint{Host: host, Port: uint16(port)})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("tracker list %q: no valid entries", raw)
	}
	return out, nil
}

// withShutdownSignal returns a context cancelled on SIGINT/SIGTERM, the
// same graceful-shutdown shape the teacher's main.go wires around its
// Download.Run call.
func withShutdownSignal(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			log.Info("cmd: received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// serveMetrics starts a background Prometheus /metrics HTTP server on
// addr; failures are logged, not fatal, mirroring how the Seeder treats
// a single failed tracker registration as non-fatal to the process.
func serveMetrics(addr string) {
	go func() {
		log.WithField("addr", addr).Info("cmd: metrics listening")
		if err := http.ListenAndServe(addr, promhttp.Handler()); err != nil {
			log.WithError(err).Warn("cmd: metrics server stopped")
		}
	}()
}
