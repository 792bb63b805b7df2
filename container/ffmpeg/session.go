//go:build ffmpeg

// Package ffmpeg is a container.Session backend on libavformat through
// go-astiav. It opens anything the linked FFmpeg build can demux and hands
// out packets exactly as libav produces them: MP4-family inputs carry
// length-prefixed NAL units and the extradata is libav's own (avcC/hvcC).
//
// Building it needs cgo and the FFmpeg development libraries, so it is only
// compiled with the "ffmpeg" build tag.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/asticode/go-astiav"

	"github.com/zsiec/nalsource/container"
)

// Session is an opened libavformat input.
type Session struct {
	log     *slog.Logger
	fc      *astiav.FormatContext
	pkt     *astiav.Packet
	streams []container.Stream
}

// Opener returns a container.Opener backed by libavformat.
func Opener(log *slog.Logger) container.Opener {
	return func(ctx context.Context, path string) (container.Session, error) {
		return Open(ctx, path, log)
	}
}

// Open opens path with libavformat and probes its streams. If log is nil,
// slog.Default() is used. libav calls are not interruptible, so ctx is only
// checked before opening.
func Open(ctx context.Context, path string, log *slog.Logger) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, errors.New("ffmpeg: allocating format context failed")
	}
	if err := fc.OpenInput(path, nil, nil); err != nil {
		fc.Free()
		return nil, fmt.Errorf("ffmpeg: open input: %w", err)
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		fc.CloseInput()
		fc.Free()
		return nil, fmt.Errorf("ffmpeg: find stream info: %w", err)
	}

	s := &Session{
		log: log.With("component", "ffmpeg", "path", path),
		fc:  fc,
		pkt: astiav.AllocPacket(),
	}
	for _, st := range fc.Streams() {
		s.streams = append(s.streams, convertStream(st))
	}
	s.log.Debug("opened", "streams", len(s.streams), "duration_us", fc.Duration())
	return s, nil
}

func convertStream(st *astiav.Stream) container.Stream {
	cp := st.CodecParameters()
	out := container.Stream{
		Index: st.Index(),
		Params: container.CodecParams{
			Codec:        cp.CodecID().Name(),
			Width:        cp.Width(),
			Height:       cp.Height(),
			AvgFrameRate: rational(st.AvgFrameRate()),
			TimeBase:     rational(st.TimeBase()),
			// AVColorSpace uses the H.273 matrix_coefficients numbering.
			ColorSpace: container.ColorSpace(cp.ColorSpace()),
			Extradata:  cp.ExtraData(),
		},
	}

	switch cp.MediaType() {
	case astiav.MediaTypeVideo:
		out.MediaType = container.MediaTypeVideo
		out.Params.PixelFormat = cp.PixelFormat().String()
	case astiav.MediaTypeAudio:
		out.MediaType = container.MediaTypeAudio
	case astiav.MediaTypeSubtitle:
		out.MediaType = container.MediaTypeSubtitle
	case astiav.MediaTypeData:
		out.MediaType = container.MediaTypeData
	default:
		out.MediaType = container.MediaTypeUnknown
	}
	switch cp.CodecID() {
	case astiav.CodecIDH264:
		out.Params.Codec = "h264"
	case astiav.CodecIDHevc:
		out.Params.Codec = "h265"
	}
	return out
}

func rational(r astiav.Rational) container.Rational {
	return container.Rational{Num: r.Num(), Den: r.Den()}
}

// Streams implements container.Session.
func (s *Session) Streams() []container.Stream {
	return s.streams
}

// Duration implements container.Session.
func (s *Session) Duration() int64 {
	return s.fc.Duration()
}

// ReadPacket implements container.Session. The payload is copied out of
// the libav packet, which is unreferenced before returning.
func (s *Session) ReadPacket(pkt *container.Packet) error {
	pkt.Reset()
	err := s.fc.ReadFrame(s.pkt)
	switch {
	case errors.Is(err, astiav.ErrEof):
		return io.EOF
	case errors.Is(err, astiav.ErrEagain):
		return container.ErrAgain
	case err != nil:
		return fmt.Errorf("ffmpeg: read frame: %w", err)
	}
	defer s.pkt.Unref()

	pkt.StreamIndex = s.pkt.StreamIndex()
	pkt.PTS = s.pkt.Pts()
	pkt.DTS = s.pkt.Dts()
	pkt.Keyframe = s.pkt.Flags().Has(astiav.PacketFlagKey)
	pkt.Data = s.pkt.Data()
	pkt.Pos = s.pkt.Pos()
	return nil
}

// Seek implements container.Session with a backward av_seek_frame, which
// lands on the closest keyframe at or before pts.
func (s *Session) Seek(streamIndex int, pts int64) error {
	if streamIndex < 0 || streamIndex >= len(s.streams) {
		return fmt.Errorf("ffmpeg: stream %d out of range", streamIndex)
	}
	if err := s.fc.SeekFrame(streamIndex, pts, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
		return fmt.Errorf("ffmpeg: seek stream %d to %d: %w", streamIndex, pts, err)
	}
	return nil
}

// Close implements container.Session.
func (s *Session) Close() error {
	s.pkt.Free()
	s.fc.CloseInput()
	s.fc.Free()
	return nil
}
