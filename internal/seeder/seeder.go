// Package seeder serves metadata and block reads to incoming peer
// connections for one FileTransfer, and registers that transfer's data
// port with its configured trackers. Grounded on the teacher's peer.Conn
// server-side message loop, adapted from the raw BitTorrent wire format
// to this codebase's request/response codec.
package seeder

import (
	"errors"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mccartykim/swarmd/internal/codec"
	"github.com/mccartykim/swarmd/internal/metrics"
	"github.com/mccartykim/swarmd/internal/peerconn"
	"github.com/mccartykim/swarmd/internal/peerinfo"
	"github.com/mccartykim/swarmd/internal/storage"
	"github.com/mccartykim/swarmd/internal/transfer"
)

// ErrAlreadyStarted is returned by Start if called more than once, per
// spec.md §3's "each may be started at most once per FileTransfer".
var ErrAlreadyStarted = errors.New("seeder: already started")

// Seeder binds a data port and serves one FileTransfer's content.
type Seeder struct {
	ft       *transfer.FileTransfer
	file     *storage.BlockFile
	listener net.Listener
	dataPort uint16
	metrics  *metrics.Client

	started bool
}

// New builds a Seeder for ft backed by file, not yet listening.
func New(ft *transfer.FileTransfer, file *storage.BlockFile) *Seeder {
	return &Seeder{ft: ft, file: file}
}

// WithMetrics attaches a Client metrics handle; every served block
// updates its counters. Optional.
func (s *Seeder) WithMetrics(m *metrics.Client) *Seeder {
	s.metrics = m
	return s
}

// Start binds listenAddr (host:port, port may be "0" for an ephemeral
// port), begins accepting connections in the background, and registers
// with every tracker configured on ft. Registration failures are logged
// per-tracker and otherwise ignored, per spec.md §4.8.
func (s *Seeder) Start(listenAddr string) error {
	if s.started {
		return ErrAlreadyStarted
	}
	l, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("seeder: listen %s: %w", listenAddr, err)
	}
	s.listener = l

	_, portStr, err := net.SplitHostPort(l.Addr().String())
	if err != nil {
		l.Close()
		return fmt.Errorf("seeder: parse listener addr: %w", err)
	}
	var port uint16
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		l.Close()
		return fmt.Errorf("seeder: parse listener port: %w", err)
	}
	s.dataPort = port
	s.started = true

	go s.acceptLoop()
	s.registerWithTrackers()
	return nil
}

// DataPort returns the port this seeder is listening on, valid after Start.
func (s *Seeder) DataPort() uint16 {
	return s.dataPort
}

// Close stops accepting new connections.
func (s *Seeder) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Seeder) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.WithError(err).Debug("seeder: accept failed")
			return
		}
		go s.handle(conn)
	}
}

func (s *Seeder) handle(conn net.Conn) {
	defer conn.Close()
	for {
		req, err := codec.Decode(conn)
		if err != nil {
			return
		}
		resp := s.dispatch(req)
		if err := codec.Encode(resp, conn); err != nil {
			return
		}
	}
}

func (s *Seeder) dispatch(req codec.Message) codec.Message {
	switch m := req.(type) {
	case codec.MetadataRequest:
		if m.Filename != s.ft.Filename {
			return codec.PeerError{Reason: "unknown file"}
		}
		if !s.ft.MetadataLoaded() {
			return codec.PeerError{Reason: "no metadata"}
		}
		fileSize, blockSize, _ := s.ft.Metadata()
		return codec.MetadataResp{FileSize: fileSize, BlockSize: blockSize}

	case codec.BlockRequest:
		if m.Filename != s.ft.Filename {
			return codec.PeerError{Reason: "unknown file"}
		}
		if !s.ft.HasBlock(uint(m.BlockIndex)) {
			return codec.PeerError{Reason: "not available"}
		}
		length, err := s.ft.BlockLength(uint(m.BlockIndex))
		if err != nil {
			return codec.PeerError{Reason: "not available"}
		}
		data, err := s.file.ReadBlock(uint(m.BlockIndex), length)
		if err != nil {
			log.WithError(err).WithField("block", m.BlockIndex).Warn("seeder: read failed")
			return codec.PeerError{Reason: "not available"}
		}
		if s.metrics != nil {
			s.metrics.BlocksServed.Inc()
			s.metrics.BytesServed.Add(float64(len(data)))
		}
		return codec.BlockResp{BlockIndex: m.BlockIndex, Bytes: data}

	case codec.BitmapRequest:
		if m.Filename != s.ft.Filename {
			return codec.PeerError{Reason: "unknown file"}
		}
		bitmap, err := s.ft.MarshalBitmap()
		if err != nil {
			return codec.PeerError{Reason: "not available"}
		}
		return codec.BitmapResp{Bitmap: bitmap}

	default:
		return codec.PeerError{Reason: "unexpected request"}
	}
}

// registerWithTrackers sends RegisterPeer to every tracker on ft. A
// per-tracker failure is logged and the remaining trackers still get a
// chance, matching spec.md §4.8's fault isolation.
func (s *Seeder) registerWithTrackers() {
	for _, tr := range s.ft.Trackers() {
		if err := s.registerWithTracker(tr); err != nil {
			log.WithError(err).WithField("tracker", tr.String()).Warn("seeder: registration failed")
		}
	}
}

func (s *Seeder) registerWithTracker(tr peerinfo.TrackerEndpoint) error {
	conn, err := peerconn.Dial(tr.String(), 10*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()

	resp, err := conn.SendAndReceive(codec.RegisterPeer{Filename: s.ft.Filename, DataPort: s.dataPort}, 10*time.Second)
	if err != nil {
		return err
	}
	if _, ok := resp.(codec.Success); !ok {
		return fmt.Errorf("seeder: unexpected register response %T", resp)
	}
	return nil
}
