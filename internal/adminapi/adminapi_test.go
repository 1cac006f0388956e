package adminapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mccartykim/swarmd/internal/peerinfo"
	"github.com/mccartykim/swarmd/internal/trackerstore"
)

func TestHealthz(t *testing.T) {
	srv := New(trackerstore.NewMemStore())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStatsReflectsRegisteredPeers(t *testing.T) {
	store := trackerstore.NewMemStore()
	require.NoError(t, store.AddPeer("movie.mkv", peerinfo.PeerEndpoint{Host: "10.0.0.1", DataPort: 6881}))
	require.NoError(t, store.AddPeer("movie.mkv", peerinfo.PeerEndpoint{Host: "10.0.0.2", DataPort: 6881}))
	require.NoError(t, store.AddPeer("other.iso", peerinfo.PeerEndpoint{Host: "10.0.0.3", DataPort: 6882}))

	srv := New(store)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Files      int `json:"files"`
		TotalPeers int `json:"total_peers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 2, body.Files)
	require.Equal(t, 3, body.TotalPeers)
}

func TestFilePeersUnknownFilenameIsEmpty(t *testing.T) {
	srv := New(trackerstore.NewMemStore())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/files/never-seen/peers", nil)
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Filename string `json:"filename"`
		Peers    []struct {
			Host     string `json:"host"`
			DataPort int    `json:"data_port"`
		} `json:"peers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "never-seen", body.Filename)
	require.Empty(t, body.Peers)
}
