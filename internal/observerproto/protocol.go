package observerproto

// Version is the observer protocol version.
const Version = "1"

const (
	TypeSubscribe     = "SUBSCRIBE"
	TypeSetBlock      = "SET_BLOCK"
	TypeSectionUpdate = "SECTION_UPDATE"
	TypeSetBlockAck   = "SET_BLOCK_ACK"
	TypeError         = "ERROR"
)

// EncodingRLENibble means: base64 of the run-length encoded 2048 byte nibble
// array, two voxels per byte, low nibble first, index x | z<<4 | y<<8.
const EncodingRLENibble = "RLE_NIBBLE"

// Client -> Server. First message on the websocket, and can be re-sent to
// move the subscribed area.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// Center is a chunk position [cx, cz].
	Center [2]int `json:"center"`
	Radius int    `json:"radius"`
}

// Client -> Server. Replace one voxel; the server answers with SET_BLOCK_ACK
// and the light change arrives as SECTION_UPDATE messages.
type SetBlockMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id,omitempty"`
	Pos             [3]int `json:"pos"`
	Block           string `json:"block"`
}

type SetBlockAckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id,omitempty"`
	Changed         bool   `json:"changed"`
	Tick            uint64 `json:"tick"`
}

// Server -> Client. Published light of one section.
type SectionUpdateMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Section         [3]int `json:"section"`
	Channel         string `json:"channel"`
	// State is null, uninitialized or initialized; only initialized sections
	// carry data.
	State    string `json:"state"`
	Encoding string `json:"encoding,omitempty"`
	Data     string `json:"data,omitempty"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

// HTTP response for GET /v1/light.
type LightResponse struct {
	Pos   [3]int `json:"pos"`
	Lit   bool   `json:"lit"`
	Block int    `json:"block"`
	Sky   int    `json:"sky"`
	// Voxel is the block name at Pos.
	Voxel string `json:"voxel"`
}

// HTTP response for GET /v1/section.
type SectionResponse struct {
	Section  [3]int `json:"section"`
	Channel  string `json:"channel"`
	State    string `json:"state"`
	Encoding string `json:"encoding,omitempty"`
	Data     string `json:"data,omitempty"`
}

// HTTP response for GET /v1/status.
type StatusResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
	LoadedChunks    int         `json:"loaded_chunks"`
	LitChunks       int         `json:"lit_chunks"`
	Observers       int         `json:"observers"`
	Light           LightStats  `json:"light"`
}

type WorldParams struct {
	Seed       int64    `json:"seed"`
	MinSection int      `json:"min_section"`
	MaxSection int      `json:"max_section"`
	BoundaryR  int      `json:"boundary_r"`
	Block      bool     `json:"block_light"`
	Sky        bool     `json:"sky_light"`
	Palette    []string `json:"block_palette"`
}

type LightStats struct {
	ChunksLit         uint64 `json:"chunks_lit"`
	Relights          uint64 `json:"relights"`
	Propagations      uint64 `json:"propagations"`
	SectionsPublished uint64 `json:"sections_published"`
	PendingChunks     int    `json:"pending_chunks"`
	BlockEngines      int    `json:"block_engines"`
	SkyEngines        int    `json:"sky_engines"`
}
