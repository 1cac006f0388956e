package trackerstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/mccartykim/swarmd/internal/peerinfo"
)

// RedisStore backs the same Store contract with a redis set per filename,
// grounded on the teacher corpus's tracker-store split (a dedicated redis
// backend satisfying the same storage interface as the in-memory one).
// It exists for operators who want a tracker's registry to outlive a
// single process restart — this is a tracker-registry durability choice,
// not the client-side "persistent resume state" spec.md excludes as a
// Non-goal.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing redis client. prefix namespaces keys so
// a tracker can share a redis instance with other tenants.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "swarmd"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) setKey(filename string) string {
	return fmt.Sprintf("%s:peers:%s", s.prefix, filename)
}

func (s *RedisStore) filesKey() string {
	return fmt.Sprintf("%s:files", s.prefix)
}

func memberFor(ep peerinfo.PeerEndpoint) string {
	return ep.Host + ":" + strconv.FormatUint(uint64(ep.DataPort), 10)
}

func endpointFromMember(member string) (peerinfo.PeerEndpoint, error) {
	idx := strings.LastIndex(member, ":")
	if idx < 0 {
		return peerinfo.PeerEndpoint{}, fmt.Errorf("trackerstore: malformed redis member %q", member)
	}
	port, err := strconv.ParseUint(member[idx+1:], 10, 16)
	if err != nil {
		return peerinfo.PeerEndpoint{}, fmt.Errorf("trackerstore: malformed port in %q: %w", member, err)
	}
	return peerinfo.PeerEndpoint{Host: member[:idx], DataPort: uint16(port)}, nil
}

// AddPeer implements Store.
func (s *RedisStore) AddPeer(filename string, ep peerinfo.PeerEndpoint) error {
	ctx := context.Background()
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, s.setKey(filename), memberFor(ep))
	pipe.SAdd(ctx, s.filesKey(), filename)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("trackerstore: redis AddPeer: %w", err)
	}
	return nil
}

// PeersOf implements Store.
func (s *RedisStore) PeersOf(filename string) ([]peerinfo.PeerEndpoint, error) {
	members, err := s.client.SMembers(context.Background(), s.setKey(filename)).Result()
	if err != nil {
		return nil, fmt.Errorf("trackerstore: redis PeersOf: %w", err)
	}
	peers := make([]peerinfo.PeerEndpoint, 0, len(members))
	for _, m := range members {
		ep, err := endpointFromMember(m)
		if err != nil {
			return nil, err
		}
		peers = append(peers, ep)
	}
	return peers, nil
}

// Filenames implements Store.
func (s *RedisStore) Filenames() ([]string, error) {
	names, err := s.client.SMembers(context.Background(), s.filesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("trackerstore: redis Filenames: %w", err)
	}
	return names, nil
}
