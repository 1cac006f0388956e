// Package codec implements MessageCodec: encoding and decoding of the
// closed set of tracker and peer wire messages. Frames are a 4-byte
// big-endian length prefix followed by a bencoded dictionary body, the
// same length-prefixing idiom the reference peer-wire implementation in
// this codebase's lineage used for its messages.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/mccartykim/swarmd/internal/bencode"
	"github.com/mccartykim/swarmd/internal/peerinfo"
)

// ErrProtocol is wrapped by every decode failure: an unknown tag, a
// truncated frame, an out-of-range length, or a dict missing a field its
// tag requires.
var ErrProtocol = errors.New("codec: protocol error")

// MaxFrameSize bounds the length prefix so a corrupt or hostile peer can't
// force an unbounded allocation.
const MaxFrameSize = 32 * 1024 * 1024

// Encode writes msg to w as one length-prefixed bencoded frame.
func Encode(msg Message, w io.Writer) error {
	dict, err := toDict(msg)
	if err != nil {
		return err
	}
	body, err := bencode.Encode(dict)
	if err != nil {
		return fmt.Errorf("codec: encode: %w", err)
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("codec: write length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("codec: write body: %w", err)
	}
	return nil
}

// Decode reads exactly one length-prefixed frame from r and returns the
// decoded Message, or ErrProtocol if the frame is malformed.
func Decode(r io.Reader) (Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: frame length: %v", ErrProtocol, err)
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 || length > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame length %d out of range", ErrProtocol, length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("%w: frame body: %v", ErrProtocol, err)
	}

	decoded, err := bencode.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	dict, ok := decoded.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: frame body is not a dict", ErrProtocol)
	}
	return fromDict(dict)
}

func toDict(msg Message) (map[string]interface{}, error) {
	d := map[string]interface{}{"t": string(msg.tag())}
	switch m := msg.(type) {
	case RegisterPeer:
		d["filename"] = m.Filename
		d["data_port"] = int64(m.DataPort)
	case PeerList:
		d["filename"] = m.Filename
	case Success:
		// no fields
	case PeerListResp:
		peers := make([]interface{}, 0, len(m.Peers))
		for _, p := range m.Peers {
			peers = append(peers, map[string]interface{}{
				"host": p.Host,
				"port": int64(p.DataPort),
			})
		}
		d["peers"] = peers
	case TrackerError:
		d["reason"] = m.Reason
	case MetadataRequest:
		d["filename"] = m.Filename
	case BlockRequest:
		d["filename"] = m.Filename
		d["index"] = int64(m.BlockIndex)
	case MetadataResp:
		d["file_size"] = m.FileSize
		d["block_size"] = m.BlockSize
	case BlockResp:
		d["index"] = int64(m.BlockIndex)
		d["bytes"] = string(m.Bytes)
	case PeerError:
		d["reason"] = m.Reason
	case BitmapRequest:
		d["filename"] = m.Filename
	case BitmapResp:
		d["bitmap"] = string(m.Bitmap)
	default:
		return nil, fmt.Errorf("codec: unknown message type %T", msg)
	}
	return d, nil
}

func fromDict(d map[string]interface{}) (Message, error) {
	tagVal, ok := d["t"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: missing tag", ErrProtocol)
	}

	switch Tag(tagVal) {
	case TagRegisterPeer:
		filename, err := reqString(d, "filename")
		if err != nil {
			return nil, err
		}
		port, err := reqInt(d, "data_port")
		if err != nil {
			return nil, err
		}
		return RegisterPeer{Filename: filename, DataPort: uint16(port)}, nil

	case TagPeerList:
		filename, err := reqString(d, "filename")
		if err != nil {
			return nil, err
		}
		return PeerList{Filename: filename}, nil

	case TagSuccess:
		return Success{}, nil

	case TagPeerListResp:
		rawPeers, ok := d["peers"].([]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: peer_list_resp missing peers", ErrProtocol)
		}
		peers := make([]peerinfo.PeerEndpoint, 0, len(rawPeers))
		for _, rp := range rawPeers {
			pd, ok := rp.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%w: peer entry is not a dict", ErrProtocol)
			}
			host, err := reqString(pd, "host")
			if err != nil {
				return nil, err
			}
			port, err := reqInt(pd, "port")
			if err != nil {
				return nil, err
			}
			peers = append(peers, peerinfo.PeerEndpoint{Host: host, DataPort: uint16(port)})
		}
		return PeerListResp{Peers: peers}, nil

	case TagTrackerError:
		reason, err := reqString(d, "reason")
		if err != nil {
			return nil, err
		}
		return TrackerError{Reason: reason}, nil

	case TagMetadataRequest:
		filename, err := reqString(d, "filename")
		if err != nil {
			return nil, err
		}
		return MetadataRequest{Filename: filename}, nil

	case TagBlockRequest:
		filename, err := reqString(d, "filename")
		if err != nil {
			return nil, err
		}
		index, err := reqInt(d, "index")
		if err != nil {
			return nil, err
		}
		return BlockRequest{Filename: filename, BlockIndex: uint32(index)}, nil

	case TagMetadataResp:
		fileSize, err := reqInt(d, "file_size")
		if err != nil {
			return nil, err
		}
		blockSize, err := reqInt(d, "block_size")
		if err != nil {
			return nil, err
		}
		return MetadataResp{FileSize: fileSize, BlockSize: blockSize}, nil

	case TagBlockResp:
		index, err := reqInt(d, "index")
		if err != nil {
			return nil, err
		}
		bytesVal, err := reqString(d, "bytes")
		if err != nil {
			return nil, err
		}
		return BlockResp{BlockIndex: uint32(index), Bytes: []byte(bytesVal)}, nil

	case TagPeerError:
		reason, err := reqString(d, "reason")
		if err != nil {
			return nil, err
		}
		return PeerError{Reason: reason}, nil

	case TagBitmapRequest:
		filename, err := reqString(d, "filename")
		if err != nil {
			return nil, err
		}
		return BitmapRequest{Filename: filename}, nil

	case TagBitmapResp:
		bitmap, err := reqString(d, "bitmap")
		if err != nil {
			return nil, err
		}
		return BitmapResp{Bitmap: []byte(bitmap)}, nil

	default:
		return nil, fmt.Errorf("%w: unknown tag %q", ErrProtocol, tagVal)
	}
}

func reqString(d map[string]interface{}, key string) (string, error) {
	v, ok := d[key].(string)
	if !ok {
		return "", fmt.Errorf("%w: missing or malformed field %q", ErrProtocol, key)
	}
	return v, nil
}

func reqInt(d map[string]interface{}, key string) (int64, error) {
	v, ok := d[key].(int64)
	if !ok {
		return 0, fmt.Errorf("%w: missing or malformed field %q", ErrProtocol, key)
	}
	return v, nil
}

// HostFromConn derives the host part of a connection's remote address, for
// the tracker's authoritative RegisterPeer dispatch (spec: never trust a
// client-supplied host).
func HostFromConn(conn net.Conn) (string, error) {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return "", fmt.Errorf("codec: split remote addr: %w", err)
	}
	return host, nil
}
