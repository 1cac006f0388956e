package trackerserver

import (
	"net"
	"testing"
	"time"

	"github.com/mccartykim/swarmd/internal/codec"
	"github.com/mccartykim/swarmd/internal/trackerstore"
)

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	srv, err := Listen(trackerstore.NewMemStore(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	go srv.Serve()
	t.Cleanup(func() { srv.Close() })
	return srv, srv.Addr().String()
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestRegisterPeerThenPeerList(t *testing.T) {
	_, addr := startTestServer(t)
	conn := dial(t, addr)

	if err := codec.Encode(codec.RegisterPeer{Filename: "movie.mkv", DataPort: 6881}, conn); err != nil {
		t.Fatal(err)
	}
	resp, err := codec.Decode(conn)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := resp.(codec.Success); !ok {
		t.Fatalf("expected Success, got %T", resp)
	}

	if err := codec.Encode(codec.PeerList{Filename: "movie.mkv"}, conn); err != nil {
		t.Fatal(err)
	}
	resp, err = codec.Decode(conn)
	if err != nil {
		t.Fatal(err)
	}
	plr, ok := resp.(codec.PeerListResp)
	if !ok {
		t.Fatalf("expected PeerListResp, got %T", resp)
	}
	if len(plr.Peers) != 1 {
		t.Fatalf("expected exactly 1 peer, got %d", len(plr.Peers))
	}
	if plr.Peers[0].DataPort != 6881 {
		t.Errorf("unexpected data port %d", plr.Peers[0].DataPort)
	}
}

func TestHostDerivedFromConnectionNotRequest(t *testing.T) {
	_, addr := startTestServer(t)
	conn := dial(t, addr)

	if err := codec.Encode(codec.RegisterPeer{Filename: "f", DataPort: 1}, conn); err != nil {
		t.Fatal(err)
	}
	if _, err := codec.Decode(conn); err != nil {
		t.Fatal(err)
	}

	if err := codec.Encode(codec.PeerList{Filename: "f"}, conn); err != nil {
		t.Fatal(err)
	}
	resp, err := codec.Decode(conn)
	if err != nil {
		t.Fatal(err)
	}
	plr := resp.(codec.PeerListResp)
	localHost, _, _ := net.SplitHostPort(conn.LocalAddr().String())
	if plr.Peers[0].Host != localHost {
		t.Errorf("expected registered host %q to equal connection's local address host %q", plr.Peers[0].Host, localHost)
	}
}

func TestPeerListUnknownFilenameIsEmpty(t *testing.T) {
	_, addr := startTestServer(t)
	conn := dial(t, addr)

	if err := codec.Encode(codec.PeerList{Filename: "never-seen"}, conn); err != nil {
		t.Fatal(err)
	}
	resp, err := codec.Decode(conn)
	if err != nil {
		t.Fatal(err)
	}
	plr := resp.(codec.PeerListResp)
	if len(plr.Peers) != 0 {
		t.Errorf("expected no peers, got %v", plr.Peers)
	}
}

func TestConnectionClosesSilentlyOnMalformedFrame(t *testing.T) {
	_, addr := startTestServer(t)
	conn := dial(t, addr)

	// Write a length prefix claiming a huge body the server will refuse.
	if _, err := conn.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF}); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err := conn.Read(buf)
	if err == nil {
		t.Fatal("expected connection to be closed by the server after a malformed frame")
	}
}
