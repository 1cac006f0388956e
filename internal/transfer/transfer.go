// Package transfer implements FileTransfer: the per-file client-side state
// described in spec.md §3 — metadata, the presence/assigned bitmaps, and
// the tracker/seed peer sets.
package transfer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bitset"

	"github.com/mccartykim/swarmd/internal/peerinfo"
)

// ErrMetadataAlreadySet is returned by SetMetadata when metadata was
// already loaded; the caller gets the values that actually won back.
var ErrMetadataAlreadySet = errors.New("transfer: metadata already set")

// FileTransfer is one swarm-wide file a client is seeding, downloading, or
// both. Zero value is not usable; construct with New.
type FileTransfer struct {
	Filename  string
	LocalPath string

	mu             sync.Mutex
	metadataLoaded bool
	fileSize       int64
	blockSize      int64
	numBlocks      uint

	blocksPresent  *bitset.BitSet
	blocksAssigned *bitset.BitSet

	trackers peerinfo.TrackerSet
	seeds    peerinfo.PeerSet
}

// New creates a FileTransfer with no metadata loaded yet.
func New(filename, localPath string) *FileTransfer {
	return &FileTransfer{
		Filename:  filename,
		LocalPath: localPath,
		trackers:  peerinfo.NewTrackerSet(),
		seeds:     peerinfo.NewPeerSet(),
	}
}

// numBlocks returns ceil(fileSize / blockSize), the invariant 1 bound for
// blocksPresent, or 0 when fileSize is 0.
func numBlocks(fileSize, blockSize int64) uint {
	if fileSize <= 0 {
		return 0
	}
	return uint((fileSize + blockSize - 1) / blockSize)
}

// SetMetadata loads fileSize/blockSize exactly once. Subsequent calls are
// no-ops that return the values that won the race, per spec.md §4.5 and
// the "setMetadata called twice retains the first values" property.
func (ft *FileTransfer) SetMetadata(fileSize, blockSize int64) (actualFileSize, actualBlockSize int64, err error) {
	if blockSize <= 0 {
		return 0, 0, fmt.Errorf("transfer: block size must be positive, got %d", blockSize)
	}
	if fileSize < 0 {
		return 0, 0, fmt.Errorf("transfer: file size must be non-negative, got %d", fileSize)
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()

	if ft.metadataLoaded {
		return ft.fileSize, ft.blockSize, ErrMetadataAlreadySet
	}

	ft.fileSize = fileSize
	ft.blockSize = blockSize
	ft.numBlocks = numBlocks(fileSize, blockSize)
	ft.blocksPresent = bitset.New(maxUint(ft.numBlocks, 1))
	ft.blocksAssigned = bitset.New(maxUint(ft.numBlocks, 1))
	ft.metadataLoaded = true

	return fileSize, blockSize, nil
}

func maxUint(a, b uint) uint {
	if a > b {
		return a
	}
	return b
}

// MetadataLoaded reports whether SetMetadata has succeeded.
func (ft *FileTransfer) MetadataLoaded() bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.metadataLoaded
}

// Metadata returns the loaded fileSize, blockSize, and numBlocks. Callers
// must check MetadataLoaded first; calling before metadata is loaded
// returns zero values.
func (ft *FileTransfer) Metadata() (fileSize, blockSize int64, numBlocks uint) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.fileSize, ft.blockSize, ft.numBlocks
}

// BlockLength returns the byte length of block i, accounting for a short
// final block (fileSize - (numBlocks-1)*blockSize).
func (ft *FileTransfer) BlockLength(i uint) (int64, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if !ft.metadataLoaded || i >= ft.numBlocks {
		return 0, fmt.Errorf("transfer: block %d out of range", i)
	}
	if i == ft.numBlocks-1 {
		return ft.fileSize - int64(i)*ft.blockSize, nil
	}
	return ft.blockSize, nil
}

// RecordBlock marks block i present. It is a no-op (idempotent, per
// spec.md's last-writer-discarded rule) if the bit is already set; the
// bool return reports whether this call was the one that set it, so
// callers can decide whether to actually persist bytes.
func (ft *FileTransfer) RecordBlock(i uint) (didSet bool, err error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if !ft.metadataLoaded || i >= ft.numBlocks {
		return false, fmt.Errorf("transfer: block %d out of range", i)
	}
	if ft.blocksPresent.Test(i) {
		return false, nil
	}
	ft.blocksPresent.Set(i)
	ft.blocksAssigned.Clear(i)
	return true, nil
}

// ClearAssigned releases block i back to the pool, e.g. after a peer
// disconnects mid-request.
func (ft *FileTransfer) ClearAssigned(i uint) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if ft.blocksAssigned != nil {
		ft.blocksAssigned.Clear(i)
	}
}

// HasBlock reports whether block i is present locally.
func (ft *FileTransfer) HasBlock(i uint) bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.metadataLoaded && ft.blocksPresent.Test(i)
}

// IsComplete reports whether every block is present. A zero-block
// transfer (fileSize == 0) is complete as soon as metadata loads.
func (ft *FileTransfer) IsComplete() bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if !ft.metadataLoaded {
		return false
	}
	return ft.blocksPresent.Count() == uint(ft.numBlocks)
}

// MarshalBitmap returns the wire form of the local blocksPresent bitmap,
// for answering a peer's BitmapRequest.
func (ft *FileTransfer) MarshalBitmap() ([]byte, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if ft.blocksPresent == nil {
		return bitset.New(1).MarshalBinary()
	}
	return ft.blocksPresent.MarshalBinary()
}

// Snapshot returns copies of the local and assigned bitmaps, for use by
// the scheduler without holding the transfer's lock across a decision.
func (ft *FileTransfer) Snapshot() (local, assigned *bitset.BitSet) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if ft.blocksPresent == nil {
		return bitset.New(1), bitset.New(1)
	}
	return ft.blocksPresent.Clone(), ft.blocksAssigned.Clone()
}

// MarkAssigned sets bit i in blocksAssigned under the transfer's guard.
// It takes the guard on its own, so it is not atomic with an earlier read
// of the bitmaps; the downloader's scheduler path instead sets assigned
// bits inside WithLock, in the same critical section as its read.
func (ft *FileTransfer) MarkAssigned(i uint) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if ft.blocksAssigned != nil {
		ft.blocksAssigned.Set(i)
	}
}

// WithLock runs fn with the transfer's guard held, passing the live
// (non-cloned) bitmaps. This is how the scheduler performs its atomic
// read-then-set-assigned decision without a snapshot-then-race window.
func (ft *FileTransfer) WithLock(fn func(local, assigned *bitset.BitSet)) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	fn(ft.blocksPresent, ft.blocksAssigned)
}

// AddTracker adds a tracker endpoint to this transfer's additive set.
func (ft *FileTransfer) AddTracker(ep peerinfo.TrackerEndpoint) {
	ft.trackers.Add(ep)
}

// Trackers returns a snapshot slice of configured trackers.
func (ft *FileTransfer) Trackers() []peerinfo.TrackerEndpoint {
	return ft.trackers.ToSlice()
}

// AddSeed adds a peer endpoint to this transfer's additive seed set.
// Returns true if the peer was newly added (not previously known).
func (ft *FileTransfer) AddSeed(ep peerinfo.PeerEndpoint) bool {
	if ft.seeds.Contains(ep) {
		return false
	}
	return ft.seeds.Add(ep)
}

// Seeds returns a snapshot slice of known peers.
func (ft *FileTransfer) Seeds() []peerinfo.PeerEndpoint {
	return ft.seeds.ToSlice()
}
