// Package peerinfo holds the value types that identify trackers and peers
// on the wire and in the tracker's registry.
package peerinfo

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
)

// PeerEndpoint identifies a client's data port. Equality is by both fields,
// and values are immutable after construction.
type PeerEndpoint struct {
	Host     string
	DataPort uint16
}

func (e PeerEndpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Host, e.DataPort)
}

// TrackerEndpoint identifies a tracker process.
type TrackerEndpoint struct {
	Host string
	Port uint16
}

func (e TrackerEndpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// PeerSet is a deduplicated, concurrency-safe-to-share set of PeerEndpoint.
// ToSlice on a mapset.Set returns a fresh slice, which is what callers need
// for a "stable snapshot" (spec.md's peersOf contract).
type PeerSet = mapset.Set[PeerEndpoint]

// TrackerSet is a deduplicated set of TrackerEndpoint.
type TrackerSet = mapset.Set[TrackerEndpoint]

// NewPeerSet returns an empty, thread-safe PeerSet.
func NewPeerSet(initial ...PeerEndpoint) PeerSet {
	return mapset.NewSet(initial...)
}

// NewTrackerSet returns an empty, thread-safe TrackerSet.
func NewTrackerSet(initial ...TrackerEndpoint) TrackerSet {
	return mapset.NewSet(initial...)
}
