// Package adminapi exposes a read-only gin-gonic/gin HTTP surface over a
// tracker's registry, for operator visibility without touching the wire
// protocol. Grounded on the pack's gin-based tracker HTTP handler
// (modasi-mika's http/announce.go, Dragonfly2's gin-based admin/manager
// servers) — adapted here from an announce endpoint to a read-only stats
// surface, since addPeer is only ever reachable through the TCP protocol
// (spec.md §4.3's invariant that dedup-by-source-address happens in
// exactly one place).
package adminapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mccartykim/swarmd/internal/trackerstore"
)

// Server wraps a gin engine bound to one trackerstore.Store.
type Server struct {
	store  trackerstore.Store
	engine *gin.Engine
}

// New builds the gin engine with the three read-only routes. gin.New is
// used rather than gin.Default so this admin surface doesn't pull in
// gin's default console logging middleware; callers that want request
// logging attach their own logrus-backed middleware.
func New(store trackerstore.Store) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{store: store, engine: engine}
	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/stats", s.handleStats)
	engine.GET("/files/:name/peers", s.handleFilePeers)
	return s
}

// Handler returns the http.Handler to pass to an http.Server, so the
// caller controls listener lifecycle (matching Seeder/TrackerServer's
// pattern of owning their own net.Listener).
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStats(c *gin.Context) {
	names, err := s.store.Filenames()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	totalPeers := 0
	for _, name := range names {
		peers, err := s.store.PeersOf(name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		totalPeers += len(peers)
	}
	c.JSON(http.StatusOK, gin.H{
		"files":       len(names),
		"total_peers": totalPeers,
	})
}

func (s *Server) handleFilePeers(c *gin.Context) {
	name := c.Param("name")
	peers, err := s.store.PeersOf(name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := make([]gin.H, 0, len(peers))
	for _, p := range peers {
		resp = append(resp, gin.H{"host": p.Host, "data_port": p.DataPort})
	}
	c.JSON(http.StatusOK, gin.H{"filename": name, "peers": resp})
}
