package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"
	"testing"

	"github.com/mccartykim/swarmd/internal/bencode"
	"github.com/mccartykim/swarmd/internal/peerinfo"
)

func writeFrame(buf *bytes.Buffer, body []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	buf.Write(lenBuf[:])
	buf.Write(body)
}

func encodeDictForTest(dict map[string]interface{}) ([]byte, error) {
	return bencode.Encode(dict)
}

func roundTrip(t *testing.T, msg Message) Message {
	t.Helper()
	var buf bytes.Buffer
	if err := Encode(msg, &buf); err != nil {
		t.Fatalf("Encode(%#v) failed: %v", msg, err)
	}
	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	return decoded
}

func TestRoundTripAllMessageTypes(t *testing.T) {
	cases := []Message{
		RegisterPeer{Filename: "movie.mkv", DataPort: 6881},
		PeerList{Filename: "movie.mkv"},
		Success{},
		PeerListResp{Peers: []peerinfo.PeerEndpoint{
			{Host: "10.0.0.1", DataPort: 6881},
			{Host: "10.0.0.2", DataPort: 6882},
		}},
		TrackerError{Reason: "unknown swarm"},
		MetadataRequest{Filename: "movie.mkv"},
		BlockRequest{Filename: "movie.mkv", BlockIndex: 3},
		MetadataResp{FileSize: 10, BlockSize: 3},
		BlockResp{BlockIndex: 3, Bytes: []byte("x")},
		PeerError{Reason: "not available"},
	}

	for _, c := range cases {
		got := roundTrip(t, c)
		if !reflect.DeepEqual(got, c) {
			t.Errorf("round trip mismatch: want %#v, got %#v", c, got)
		}
	}
}

func TestRoundTripEmptyPeerList(t *testing.T) {
	got := roundTrip(t, PeerListResp{Peers: nil})
	resp, ok := got.(PeerListResp)
	if !ok {
		t.Fatalf("expected PeerListResp, got %T", got)
	}
	if len(resp.Peers) != 0 {
		t.Errorf("expected no peers, got %v", resp.Peers)
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	var buf bytes.Buffer
	dict := map[string]interface{}{"t": "not_a_real_tag"}
	body, err := encodeDictForTest(dict)
	if err != nil {
		t.Fatal(err)
	}
	writeFrame(&buf, body)

	_, err = Decode(&buf)
	if !errors.Is(err, ErrProtocol) {
		t.Errorf("expected ErrProtocol, got %v", err)
	}
}

func TestDecodeTruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 10}) // claims 10 bytes, provides none
	if _, err := Decode(&buf); !errors.Is(err, ErrProtocol) {
		t.Errorf("expected ErrProtocol on truncated frame, got %v", err)
	}
}

func TestDecodeOversizeFrame(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	if _, err := Decode(&buf); !errors.Is(err, ErrProtocol) {
		t.Errorf("expected ErrProtocol on oversize frame, got %v", err)
	}
}

func TestDecodeMissingRequiredField(t *testing.T) {
	var buf bytes.Buffer
	dict := map[string]interface{}{"t": string(TagRegisterPeer)} // missing filename/data_port
	body, err := encodeDictForTest(dict)
	if err != nil {
		t.Fatal(err)
	}
	writeFrame(&buf, body)

	if _, err := Decode(&buf); !errors.Is(err, ErrProtocol) {
		t.Errorf("expected ErrProtocol on missing field, got %v", err)
	}
}
