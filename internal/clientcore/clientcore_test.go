package clientcore

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mccartykim/swarmd/internal/peerinfo"
	"github.com/mccartykim/swarmd/internal/trackerserver"
	"github.com/mccartykim/swarmd/internal/trackerstore"
)

func startTracker(t *testing.T) peerinfo.TrackerEndpoint {
	t.Helper()
	srv, err := trackerserver.Listen(trackerstore.NewMemStore(), "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve()
	t.Cleanup(func() { srv.Close() })

	host, portStr, err := net.SplitHostPort(srv.Addr().String())
	require.NoError(t, err)
	port, err := strconv.ParseUint(portStr, 10, 16)
	require.NoError(t, err)
	return peerinfo.TrackerEndpoint{Host: host, Port: uint16(port)}
}

func TestClientCoreSeedThenDownload(t *testing.T) {
	tr := startTracker(t)

	seedDir := t.TempDir()
	content := []byte("the quick brown fox jumps over the lazy dog")
	seedPath := filepath.Join(seedDir, "fox.txt")
	require.NoError(t, os.WriteFile(seedPath, content, 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	seedCore := New(ctx, seedDir, nil)
	_, err := seedCore.Seed("fox.txt", seedPath, 8, "127.0.0.1:0", []peerinfo.TrackerEndpoint{tr})
	require.NoError(t, err)

	dlDir := t.TempDir()
	dlCore := New(ctx, dlDir, nil)
	dlPath := dlCore.PathFor("fox.txt")
	ft, err := dlCore.Download("fox.txt", dlPath, []peerinfo.TrackerEndpoint{tr})
	require.NoError(t, err)

	require.Eventually(t, ft.IsComplete, 8*time.Second, 20*time.Millisecond)

	got, err := os.ReadFile(dlPath)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestClientCoreRejectsDuplicateTransfer(t *testing.T) {
	tr := startTracker(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "dup.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	core := New(ctx, dir, nil)
	_, err := core.Seed("dup.txt", path, 4, "127.0.0.1:0", []peerinfo.TrackerEndpoint{tr})
	require.NoError(t, err)

	_, err = core.Seed("dup.txt", path, 4, "127.0.0.1:0", []peerinfo.TrackerEndpoint{tr})
	require.Error(t, err)
}
