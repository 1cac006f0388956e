// Package trackerserver accepts client connections and dispatches
// tracker requests against a trackerstore.Store, the way the teacher
// corpus's tracker-facing HTTP handler dispatches announce requests
// against a registry, adapted here to a raw length-prefixed TCP stream
// instead of HTTP.
package trackerserver

import (
	"errors"
	"net"

	log "github.com/sirupsen/logrus"

	"github.com/mccartykim/swarmd/internal/codec"
	"github.com/mccartykim/swarmd/internal/metrics"
	"github.com/mccartykim/swarmd/internal/peerinfo"
	"github.com/mccartykim/swarmd/internal/trackerstore"
)

// Server accepts inbound connections on a single listener and dispatches
// each request against store.
type Server struct {
	store    trackerstore.Store
	listener net.Listener
	metrics  *metrics.Tracker
}

// New wraps an already-bound listener. Callers choose how to construct
// the listener (net.Listen, a test net.Pipe-backed fake, etc).
func New(store trackerstore.Store, listener net.Listener) *Server {
	return &Server{store: store, listener: listener}
}

// WithMetrics attaches a Tracker metrics handle; every dispatched request
// updates its counters. Optional — a Server with no metrics attached just
// skips the increments.
func (s *Server) WithMetrics(m *metrics.Tracker) *Server {
	s.metrics = m
	return s
}

// Listen opens a TCP listener on addr and wraps it.
func Listen(store trackerstore.Store, addr string) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return New(store, l), nil
}

// Addr returns the listener's bound address, useful when addr was
// "host:0" and the OS chose an ephemeral port.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until the listener is closed, spawning one
// handler goroutine per connection. It returns nil when the listener is
// closed deliberately (via Close) and the underlying error otherwise.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.handle(conn)
	}
}

// Close stops accepting new connections. In-flight handlers finish on
// their own.
func (s *Server) Close() error {
	return s.listener.Close()
}

// handle services one connection until the peer disconnects or sends
// something the codec can't parse; any error ends the handler silently,
// per the protocol's "close on error, don't reply" rule.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	host, err := codec.HostFromConn(conn)
	if err != nil {
		log.WithError(err).Debug("trackerserver: could not derive host, closing connection")
		return
	}

	for {
		req, err := codec.Decode(conn)
		if err != nil {
			return
		}

		resp, ok := s.dispatch(host, req)
		if !ok {
			return
		}
		if err := codec.Encode(resp, conn); err != nil {
			return
		}
	}
}

// dispatch maps one decoded request to its response. The bool return is
// false only for request kinds the tracker protocol doesn't define (such
// as a peer-protocol message sent to the tracker); handle then closes the
// connection without replying.
func (s *Server) dispatch(host string, req codec.Message) (codec.Message, bool) {
	switch m := req.(type) {
	case codec.RegisterPeer:
		ep := peerinfo.PeerEndpoint{Host: host, DataPort: m.DataPort}
		if err := s.store.AddPeer(m.Filename, ep); err != nil {
			log.WithError(err).WithField("filename", m.Filename).Warn("trackerserver: addPeer failed")
			return codec.TrackerError{Reason: "internal error"}, true
		}
		if s.metrics != nil {
			s.metrics.RegisterPeerTotal.Inc()
			if names, err := s.store.Filenames(); err == nil {
				s.metrics.RegisteredFiles.Set(float64(len(names)))
			}
		}
		return codec.Success{}, true

	case codec.PeerList:
		peers, err := s.store.PeersOf(m.Filename)
		if err != nil {
			log.WithError(err).WithField("filename", m.Filename).Warn("trackerserver: peersOf failed")
			return codec.TrackerError{Reason: "internal error"}, true
		}
		if s.metrics != nil {
			s.metrics.PeerListTotal.Inc()
		}
		return codec.PeerListResp{Peers: peers}, true

	default:
		log.WithField("type", req).Debug("trackerserver: unexpected request kind")
		return nil, false
	}
}
