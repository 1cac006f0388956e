// Package clientcore implements ClientCore: the owner of every active
// FileTransfer on one client process, plus the shared worker pool and
// log sink described in spec.md §4.9. Grounded on the teacher's
// download.Download (one struct owning a map of live peer connections
// under a mutex, a cancel func, and a Run/Close lifecycle), generalized
// from "one torrent per process" to "many named FileTransfers per
// process", and from a bare sync.WaitGroup to a shared
// golang.org/x/sync/errgroup.Group so one transfer's failure can never
// take down another's.
package clientcore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mccartykim/swarmd/internal/downloader"
	"github.com/mccartykim/swarmd/internal/metrics"
	"github.com/mccartykim/swarmd/internal/peerinfo"
	"github.com/mccartykim/swarmd/internal/seeder"
	"github.com/mccartykim/swarmd/internal/storage"
	"github.com/mccartykim/swarmd/internal/transfer"
)

// ErrUnknownTransfer is returned when a caller references a filename
// ClientCore has no FileTransfer for.
var ErrUnknownTransfer = errors.New("clientcore: no such transfer")

// ClientCore owns the set of active FileTransfers for one client
// process, and the shared errgroup/log sink their Downloader/Seeder
// tasks run under.
type ClientCore struct {
	// id identifies this client instance in logs and, eventually, any
	// multi-process admin surface; it never appears on the wire, since
	// spec.md's protocol has no peer-ID concept, only (host, dataPort).
	id      uuid.UUID
	dataDir string
	metrics *metrics.Client

	mu        sync.Mutex
	transfers map[string]*entry
	group     *errgroup.Group
	groupCtx  context.Context
}

type entry struct {
	ft  *transfer.FileTransfer
	sd  *seeder.Seeder
	dl  *downloader.Downloader
	err chan error // buffered 1; Downloader's terminal error, if any
}

// New builds a ClientCore rooted at dataDir (where transfer content is
// stored) and supervised by ctx: cancelling ctx stops every downloader
// this ClientCore has started.
func New(ctx context.Context, dataDir string, m *metrics.Client) *ClientCore {
	g, gctx := errgroup.WithContext(ctx)
	return &ClientCore{
		id:        uuid.New(),
		dataDir:   dataDir,
		metrics:   m,
		transfers: make(map[string]*entry),
		group:     g,
		groupCtx:  gctx,
	}
}

// ID returns this ClientCore's process-lifetime instance identifier,
// for log correlation across its transfers.
func (c *ClientCore) ID() uuid.UUID {
	return c.id
}

// Seed loads an existing local file and starts serving it: metadata is
// read from disk, every block is marked present, and the seeder begins
// listening and registers with every tracker in trackers.
func (c *ClientCore) Seed(filename, localPath string, blockSize int64, listenAddr string, trackers []peerinfo.TrackerEndpoint) (*transfer.FileTransfer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.transfers[filename]; exists {
		return nil, fmt.Errorf("clientcore: transfer %q already active", filename)
	}

	ft := transfer.New(filename, localPath)
	for _, tr := range trackers {
		ft.AddTracker(tr)
	}

	f, err := storage.OpenExisting(localPath, blockSize)
	if err != nil {
		return nil, fmt.Errorf("clientcore: open %s: %w", localPath, err)
	}
	if _, _, err := ft.SetMetadata(f.Size(), blockSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("clientcore: set metadata: %w", err)
	}
	_, _, numBlocks := ft.Metadata()
	for i := uint(0); i < numBlocks; i++ {
		if _, err := ft.RecordBlock(i); err != nil {
			f.Close()
			return nil, fmt.Errorf("clientcore: mark block %d present: %w", i, err)
		}
	}

	sd := seeder.New(ft, f)
	if c.metrics != nil {
		sd = sd.WithMetrics(c.metrics)
	}
	if err := sd.Start(listenAddr); err != nil {
		f.Close()
		return nil, fmt.Errorf("clientcore: start seeder: %w", err)
	}

	c.transfers[filename] = &entry{ft: ft, sd: sd}
	if c.metrics != nil {
		c.metrics.ActiveTransfers.Set(float64(len(c.transfers)))
	}
	log.WithFields(log.Fields{"filename": filename, "client_id": c.id}).Info("clientcore: seeding started")
	return ft, nil
}

// Download creates a FileTransfer for filename, starts its Downloader in
// the shared errgroup, and returns immediately; WaitFor (or Wait) is
// how a caller learns the outcome. Once complete, the same content can
// be seeded with StartSeeding.
func (c *ClientCore) Download(filename, localPath string, trackers []peerinfo.TrackerEndpoint) (*transfer.FileTransfer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.transfers[filename]; exists {
		return nil, fmt.Errorf("clientcore: transfer %q already active", filename)
	}

	ft := transfer.New(filename, localPath)
	for _, tr := range trackers {
		ft.AddTracker(tr)
	}

	dl := downloader.New(ft, func(fileSize, blockSize int64) (*storage.BlockFile, error) {
		return storage.Create(localPath, fileSize, blockSize)
	})
	if c.metrics != nil {
		dl = dl.WithMetrics(c.metrics)
	}

	e := &entry{ft: ft, dl: dl, err: make(chan error, 1)}
	c.transfers[filename] = e
	if c.metrics != nil {
		c.metrics.ActiveTransfers.Set(float64(len(c.transfers)))
	}

	c.group.Go(func() error {
		err := dl.Run(c.groupCtx)
		e.err <- err
		if err != nil {
			log.WithError(err).WithFields(log.Fields{"filename": filename, "client_id": c.id}).Warn("clientcore: download ended with error")
		} else {
			log.WithFields(log.Fields{"filename": filename, "client_id": c.id}).Info("clientcore: download complete")
		}
		return nil // one transfer's failure must not cancel the group (shared with other transfers)
	})

	return ft, nil
}

// StartSeeding begins serving an already-tracked FileTransfer (typically
// one Download just finished) on listenAddr, reusing the same trackers.
func (c *ClientCore) StartSeeding(filename, listenAddr string) error {
	c.mu.Lock()
	e, ok := c.transfers[filename]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTransfer, filename)
	}
	if e.sd != nil {
		return nil // already seeding
	}

	_, blockSize, _ := e.ft.Metadata()
	f, err := storage.OpenExisting(e.ft.LocalPath, blockSize)
	if err != nil {
		return fmt.Errorf("clientcore: reopen %s: %w", e.ft.LocalPath, err)
	}

	sd := seeder.New(e.ft, f)
	if c.metrics != nil {
		sd = sd.WithMetrics(c.metrics)
	}
	if err := sd.Start(listenAddr); err != nil {
		f.Close()
		return fmt.Errorf("clientcore: start seeder: %w", err)
	}

	c.mu.Lock()
	e.sd = sd
	c.mu.Unlock()
	return nil
}

// PathFor joins filename onto this ClientCore's data directory, the
// default local path callers use when they don't supply one explicitly.
func (c *ClientCore) PathFor(filename string) string {
	return filepath.Join(c.dataDir, filename)
}

// Transfer returns the named transfer's handle, or false if unknown.
func (c *ClientCore) Transfer(filename string) (*transfer.FileTransfer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.transfers[filename]
	if !ok {
		return nil, false
	}
	return e.ft, true
}

// Transfers returns every currently tracked FileTransfer.
func (c *ClientCore) Transfers() []*transfer.FileTransfer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*transfer.FileTransfer, 0, len(c.transfers))
	for _, e := range c.transfers {
		out = append(out, e.ft)
	}
	return out
}

// Wait blocks until every Downloader this ClientCore started has
// returned (normally because its transfer completed, or because the
// governing context was cancelled).
func (c *ClientCore) Wait() error {
	return c.group.Wait()
}

// WaitFor blocks until filename's Downloader returns, and reports its
// terminal error (nil on a clean completion or context cancellation).
// It panics if filename was never started with Download — a programmer
// error, not a runtime condition callers need to handle.
func (c *ClientCore) WaitFor(filename string) error {
	c.mu.Lock()
	e, ok := c.transfers[filename]
	c.mu.Unlock()
	if !ok || e.err == nil {
		panic(fmt.Sprintf("clientcore: WaitFor(%q): not a download transfer", filename))
	}
	return <-e.err
}
