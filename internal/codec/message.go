package codec

import "github.com/mccartykim/swarmd/internal/peerinfo"

// Tag identifies which of the closed set of wire messages a frame carries.
type Tag string

const (
	TagRegisterPeer     Tag = "register_peer"
	TagPeerList         Tag = "peer_list"
	TagSuccess          Tag = "success"
	TagPeerListResp     Tag = "peer_list_resp"
	TagTrackerError     Tag = "tracker_error"
	TagMetadataRequest  Tag = "metadata_request"
	TagBlockRequest     Tag = "block_request"
	TagMetadataResp     Tag = "metadata_resp"
	TagBlockResp        Tag = "block_resp"
	TagPeerError        Tag = "peer_error"
	TagBitmapRequest    Tag = "bitmap_request"
	TagBitmapResp       Tag = "bitmap_resp"
)

// Message is implemented by every member of the protocol's tagged union.
// tag identifies the wire type; it is unexported so the union stays closed
// to this package.
type Message interface {
	tag() Tag
}

// Tracker requests.

// RegisterPeer announces that the sender holds (or will hold) blocks of
// filename and can be reached on dataPort. The tracker derives host from
// the connection, not from this message.
type RegisterPeer struct {
	Filename string
	DataPort uint16
}

func (RegisterPeer) tag() Tag { return TagRegisterPeer }

// PeerList asks the tracker for the current peer set of filename.
type PeerList struct {
	Filename string
}

func (PeerList) tag() Tag { return TagPeerList }

// Tracker responses.

// Success acknowledges a RegisterPeer.
type Success struct{}

func (Success) tag() Tag { return TagSuccess }

// PeerListResp answers a PeerList request with a snapshot of known peers.
type PeerListResp struct {
	Peers []peerinfo.PeerEndpoint
}

func (PeerListResp) tag() Tag { return TagPeerListResp }

// TrackerError reports a tracker-side failure.
type TrackerError struct {
	Reason string
}

func (TrackerError) tag() Tag { return TagTrackerError }

// Peer requests.

// MetadataRequest asks a peer for a file's size and block size.
type MetadataRequest struct {
	Filename string
}

func (MetadataRequest) tag() Tag { return TagMetadataRequest }

// BlockRequest asks a peer for one block's bytes.
type BlockRequest struct {
	Filename   string
	BlockIndex uint32
}

func (BlockRequest) tag() Tag { return TagBlockRequest }

// Peer responses.

// MetadataResp answers a MetadataRequest.
type MetadataResp struct {
	FileSize  int64
	BlockSize int64
}

func (MetadataResp) tag() Tag { return TagMetadataResp }

// BlockResp answers a BlockRequest with the block's raw bytes.
type BlockResp struct {
	BlockIndex uint32
	Bytes      []byte
}

func (BlockResp) tag() Tag { return TagBlockResp }

// PeerError reports a peer-side failure (unknown file, block not yet held).
type PeerError struct {
	Reason string
}

func (PeerError) tag() Tag { return TagPeerError }

// BitmapRequest asks a peer which blocks of filename it currently holds.
// Not part of the original closed vocabulary; spec.md §4.7 explicitly
// permits a dedicated message for this so the scheduler can be handed a
// real peer bitmap instead of piggy-backing stale data on MetadataResp.
type BitmapRequest struct {
	Filename string
}

func (BitmapRequest) tag() Tag { return TagBitmapRequest }

// BitmapResp answers a BitmapRequest with a serialized bitset (see
// bits-and-blooms/bitset's MarshalBinary) of the blocks the responder
// currently has present.
type BitmapResp struct {
	Bitmap []byte
}

func (BitmapResp) tag() Tag { return TagBitmapResp }
