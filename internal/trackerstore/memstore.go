package trackerstore

import (
	"sync"

	"github.com/mccartykim/swarmd/internal/peerinfo"
)

// MemStore is the default in-process Store: a map from filename to a
// per-filename peer set, each independently guarded so that addPeer/
// peersOf on different filenames never contend (spec.md §4.2: "set
// mutations must be safe against concurrent addPeer and peersOf calls on
// the same filename" — this also happens to make different filenames
// lock-independent, a stronger guarantee the spec permits but doesn't
// require).
type MemStore struct {
	mu    sync.RWMutex
	files map[string]*fileEntry
}

type fileEntry struct {
	mu    sync.Mutex
	peers peerinfo.PeerSet
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{files: make(map[string]*fileEntry)}
}

func (s *MemStore) entry(filename string) *fileEntry {
	s.mu.RLock()
	e, ok := s.files[filename]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.files[filename]; ok {
		return e
	}
	e = &fileEntry{peers: peerinfo.NewPeerSet()}
	s.files[filename] = e
	return e
}

// AddPeer implements Store.
func (s *MemStore) AddPeer(filename string, ep peerinfo.PeerEndpoint) error {
	e := s.entry(filename)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.peers.Add(ep)
	return nil
}

// PeersOf implements Store.
func (s *MemStore) PeersOf(filename string) ([]peerinfo.PeerEndpoint, error) {
	s.mu.RLock()
	e, ok := s.files[filename]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peers.ToSlice(), nil
}

// Filenames implements Store.
func (s *MemStore) Filenames() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	return names, nil
}
