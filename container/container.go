// Package container defines the boundary between the NAL source core and a
// concrete container library. A Session is one opened input with its stream
// table; it hands out demuxed packets in file order and repositions its read
// cursor on request.
//
// Backends live in subpackages: [github.com/zsiec/nalsource/container/tsfile]
// for MPEG-TS, [github.com/zsiec/nalsource/container/fmp4file] for fragmented
// MP4 and, behind the "ffmpeg" build tag,
// [github.com/zsiec/nalsource/container/ffmpeg] for anything libavformat opens.
package container

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrAgain is returned by Session.ReadPacket for transient conditions. The
// caller retries the read; the packet argument holds no data.
var ErrAgain = errors.New("container: resource temporarily unavailable")

// NoPTS marks a packet timestamp the container did not carry. It has the
// same value as libav's AV_NOPTS_VALUE.
const NoPTS int64 = math.MinInt64

// MediaType classifies a stream.
type MediaType int

const (
	MediaTypeUnknown MediaType = iota
	MediaTypeVideo
	MediaTypeAudio
	MediaTypeSubtitle
	MediaTypeData
)

func (m MediaType) String() string {
	switch m {
	case MediaTypeVideo:
		return "video"
	case MediaTypeAudio:
		return "audio"
	case MediaTypeSubtitle:
		return "subtitle"
	case MediaTypeData:
		return "data"
	default:
		return "unknown"
	}
}

// ColorSpace is the matrix-coefficients tag of a video stream, using the
// values of ITU-T H.273 (shared by H.264 and H.265 VUI).
type ColorSpace int

const (
	ColorSpaceUnspecified ColorSpace = 2
	ColorSpaceBT709       ColorSpace = 1
	ColorSpaceBT470BG     ColorSpace = 5
	ColorSpaceSMPTE170M   ColorSpace = 6
	ColorSpaceBT2020NCL   ColorSpace = 9
	ColorSpaceBT2020CL    ColorSpace = 10
)

// Rational is a fraction such as a time base or a frame rate.
type Rational struct {
	Num int
	Den int
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// CodecParams describes how a stream is coded. PixelFormat is the backend's
// own name for the sample layout (libav naming, e.g. "yuv420p10le").
type CodecParams struct {
	Codec        string // "h264", "h265", "aac", ...
	PixelFormat  string
	Width        int
	Height       int
	AvgFrameRate Rational
	TimeBase     Rational
	ColorSpace   ColorSpace
	Extradata    []byte
}

// Stream is one entry of a session's stream table.
type Stream struct {
	Index     int
	MediaType MediaType
	Params    CodecParams
}

// Packet is one demuxed, still-compressed access unit. A session overwrites
// the packet handed to ReadPacket, so Data is only valid until the next read
// or Reset.
type Packet struct {
	StreamIndex int
	PTS         int64
	DTS         int64
	Keyframe    bool
	Data        []byte
	Pos         int64 // byte offset in the file, -1 if unknown
}

// Size returns the payload length in bytes.
func (p *Packet) Size() int {
	return len(p.Data)
}

// Reset drops the packet's reference to its payload. It is safe to call on
// an already empty packet.
func (p *Packet) Reset() {
	*p = Packet{Pos: -1}
}

// Session is an opened container. Implementations are not safe for
// concurrent use; open one session per consumer.
type Session interface {
	// Streams returns the stream table in index order.
	Streams() []Stream
	// Duration returns the container duration in microseconds, or 0 when
	// unknown.
	Duration() int64
	// ReadPacket fills pkt with the next packet of any stream. It returns
	// io.EOF once the container is exhausted and ErrAgain for conditions
	// that go away on retry.
	ReadPacket(pkt *Packet) error
	// Seek repositions the read cursor so that the next packet of
	// streamIndex is the last keyframe with PTS at or before pts, or the
	// first packet of the stream if no keyframe qualifies. On error the
	// cursor is left where it was.
	Seek(streamIndex int, pts int64) error
	// Close releases the session.
	Close() error
}

// Opener opens a container session for a path.
type Opener func(ctx context.Context, path string) (Session, error)
