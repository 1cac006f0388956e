package trackerstore

import (
	"sort"
	"sync"
	"testing"

	"github.com/mccartykim/swarmd/internal/peerinfo"
)

var (
	_ Store = (*MemStore)(nil)
	_ Store = (*RedisStore)(nil)
)

func TestAddPeerIdempotent(t *testing.T) {
	s := NewMemStore()
	ep := peerinfo.PeerEndpoint{Host: "1.2.3.4", DataPort: 6881}

	if err := s.AddPeer("movie.mkv", ep); err != nil {
		t.Fatal(err)
	}
	if err := s.AddPeer("movie.mkv", ep); err != nil {
		t.Fatal(err)
	}

	peers, err := s.PeersOf("movie.mkv")
	if err != nil {
		t.Fatal(err)
	}
	if len(peers) != 1 {
		t.Errorf("expected exactly one peer after duplicate registration, got %v", peers)
	}
}

func TestPeersOfUnknownFilenameIsEmpty(t *testing.T) {
	s := NewMemStore()
	peers, err := s.PeersOf("never-registered.bin")
	if err != nil {
		t.Fatal(err)
	}
	if len(peers) != 0 {
		t.Errorf("expected no peers for unknown filename, got %v", peers)
	}
}

func TestAddPeerConcurrentDedup(t *testing.T) {
	s := NewMemStore()
	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddPeer("big.iso", peerinfo.PeerEndpoint{Host: "10.0.0.1", DataPort: uint16(6000 + i%10)})
		}()
	}
	wg.Wait()

	peers, err := s.PeersOf("big.iso")
	if err != nil {
		t.Fatal(err)
	}
	if len(peers) != 10 {
		t.Errorf("expected 10 distinct ports registered, got %d: %v", len(peers), peers)
	}
}

func TestPeersOfSnapshotIsStable(t *testing.T) {
	s := NewMemStore()
	s.AddPeer("f", peerinfo.PeerEndpoint{Host: "a", DataPort: 1})

	snap, err := s.PeersOf("f")
	if err != nil {
		t.Fatal(err)
	}

	s.AddPeer("f", peerinfo.PeerEndpoint{Host: "b", DataPort: 2})

	if len(snap) != 1 {
		t.Errorf("expected snapshot taken before second AddPeer to still have 1 entry, got %d", len(snap))
	}
}

func TestFilenamesListsRegisteredFiles(t *testing.T) {
	s := NewMemStore()
	s.AddPeer("a.bin", peerinfo.PeerEndpoint{Host: "h", DataPort: 1})
	s.AddPeer("b.bin", peerinfo.PeerEndpoint{Host: "h", DataPort: 2})

	names, err := s.Filenames()
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "a.bin" || names[1] != "b.bin" {
		t.Errorf("unexpected filenames: %v", names)
	}
}
