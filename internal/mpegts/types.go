// Package mpegts implements a pull-based MPEG-TS demuxer. It discovers
// programs through PAT/PMT, reassembles PES packets per PID with PTS/DTS
// extraction, and records the file offset of the first transport packet of
// every unit so callers can report positions.
package mpegts

// PMT stream_type values the file backend understands.
const (
	StreamTypeAAC  = 0x0F
	StreamTypeH264 = 0x1B
	StreamTypeH265 = 0x24
)

// Packet is a parsed 188-byte MPEG-TS transport stream packet.
type Packet struct {
	Header  PacketHeader
	Payload []byte
	Offset  int64 // byte offset of the packet in the input
}

// PacketHeader contains the parsed header fields of a transport stream packet.
type PacketHeader struct {
	PID                       uint16
	ContinuityCounter         uint8
	HasAdaptationField        bool
	HasPayload                bool
	PayloadUnitStartIndicator bool
	TransportErrorIndicator   bool
	DiscontinuityIndicator    bool
	RandomAccessIndicator     bool
}

// DemuxerData is one logical unit produced by the demuxer. Exactly one of
// PAT, PMT or PES is non-nil.
type DemuxerData struct {
	PID    uint16
	Offset int64 // offset of the first transport packet of the unit
	PAT    *PATData
	PMT    *PMTData
	PES    *PESData

	// RandomAccess is set when the first transport packet of a PES carried
	// the adaptation-field random_access_indicator.
	RandomAccess bool
}

// PATData contains the parsed Program Association Table.
type PATData struct {
	Programs []PATProgram
}

// PATProgram maps a program number to its PMT PID.
type PATProgram struct {
	ProgramNumber uint16
	ProgramMapID  uint16
}

// PMTData contains the parsed Program Map Table.
type PMTData struct {
	ProgramNumber     uint16
	ElementaryStreams []PMTElementaryStream
}

// PMTElementaryStream describes a single elementary stream in a PMT.
type PMTElementaryStream struct {
	ElementaryPID uint16
	StreamType    uint8
}

// PESData contains a reassembled Packetized Elementary Stream packet.
type PESData struct {
	StreamID uint8
	PTS      *int64 // 90 kHz, nil when absent
	DTS      *int64
	Data     []byte
}
