// Package trackerstore implements TrackerRegistry behind a pluggable
// Store interface, the way the teacher corpus's tracker implementations
// split their peer registries behind a storage-backend interface (memory,
// redis, mysql) rather than hard-coding one representation.
package trackerstore

import "github.com/mccartykim/swarmd/internal/peerinfo"

// Store is TrackerRegistry's contract: addPeer is idempotent and
// concurrency-safe per filename; peersOf returns a stable snapshot and an
// empty result for unknown filenames; there is no removal operation, so
// every implementation's memory/storage footprint grows monotonically.
type Store interface {
	// AddPeer registers ep under filename, creating the filename's set if
	// this is the first peer seen for it. Re-adding an already-known peer
	// is a no-op.
	AddPeer(filename string, ep peerinfo.PeerEndpoint) error

	// PeersOf returns a snapshot of filename's currently registered peers,
	// or an empty result (nil from MemStore, an empty slice from
	// RedisStore) for a filename that has never been registered.
	PeersOf(filename string) ([]peerinfo.PeerEndpoint, error)

	// Filenames lists every filename that has ever had a peer registered.
	// Used by the admin/metrics surfaces only; the wire protocol never
	// calls this (spec.md defines no enumeration request).
	Filenames() ([]string, error)
}
