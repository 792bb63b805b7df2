// Package source turns an opened media container into a stream of
// length-prefixed NAL units for the first video stream it holds.
//
// Opening a Source selects the video stream, scans it once to count frames
// and record keyframes (or copies that information from a sibling Source on
// the same file), and rewinds to the start. Consumers then pull NAL units or
// whole packets, and reposition with ClosestSeekableBefore and SeekToPTS.
//
// A Source is not safe for concurrent use. Open one per consumer; siblings
// can share the scan result through WithSibling.
package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zsiec/nalsource/container"
)

// Source is an opened file positioned on its first video stream.
type Source struct {
	log    *slog.Logger
	path   string
	opener container.Opener
	sib    *Source

	sess   container.Session
	stream container.Stream
	info   StreamInfo
	it     *iterator

	frames int
	index  SeekIndex

	// NAL cursor into the held packet.
	payload    []byte
	payloadOff int
	pos        int64
}

// Option configures Open.
type Option func(*Source)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Source) {
		if log != nil {
			s.log = log
		}
	}
}

// WithSibling seeds the frame count and seek index from another Source,
// skipping the scan, when that Source is open on the same path.
func WithSibling(other *Source) Option {
	return func(s *Source) {
		s.sib = other
	}
}

// WithOpener sets the container backend. The default is DefaultOpener.
func WithOpener(o container.Opener) Option {
	return func(s *Source) {
		if o != nil {
			s.opener = o
		}
	}
}

// Open opens path, selects its first video stream and builds the seek
// index. ctx bounds the open and the scan. Every error wraps ErrOpen.
func Open(ctx context.Context, path string, opts ...Option) (*Source, error) {
	s := &Source{
		log:  slog.Default(),
		path: filepath.Clean(path),
		pos:  -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "source", "path", s.path)
	if s.opener == nil {
		s.opener = DefaultOpener(s.log)
	}

	fi, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %w: %s", ErrOpen, ErrNotRegularFile, s.path)
	}

	sess, err := s.opener(ctx, s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	if err := s.init(ctx, sess); err != nil {
		sess.Close()
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	s.sib = nil
	return s, nil
}

func (s *Source) init(ctx context.Context, sess container.Session) error {
	st, ok := selectVideoStream(sess.Streams())
	if !ok {
		return ErrNoVideoStream
	}
	s.sess = sess
	s.stream = st
	s.info = newStreamInfo(st, sess.Duration())
	s.it = newIterator(sess, st.Index, s.log)

	scanned := false
	if sib := s.sib; sib != nil && sib.sess != nil && sib.path == s.path {
		s.frames = sib.frames
		s.index = sib.index.Clone()
		s.log.Debug("copied seek index from sibling", "frames", s.frames, "keyframes", len(s.index))
	} else {
		frames, index, err := scan(ctx, s.it)
		if err != nil {
			s.sess = nil
			return fmt.Errorf("scan: %w", err)
		}
		s.frames, s.index, scanned = frames, index, true
		s.log.Info("scanned stream", "frames", frames, "keyframes", len(index))
	}

	if scanned && s.frames == 0 {
		// Nothing to rewind to; the iterator already reports end of stream.
		return nil
	}
	if err := s.SeekToPTS(0); err != nil {
		if scanned {
			s.sess = nil
			return fmt.Errorf("rewind after scan: %w", err)
		}
		s.log.Warn("rewind failed", "error", err)
	}
	return nil
}

// Close releases the container session. Further calls return ErrNotOpen.
func (s *Source) Close() error {
	if s.sess == nil {
		return ErrNotOpen
	}
	s.it.release()
	s.payload = nil
	err := s.sess.Close()
	s.sess = nil
	return err
}

// Path returns the cleaned path the Source was opened on.
func (s *Source) Path() string {
	return s.path
}

// StreamInfo describes the selected video stream.
func (s *Source) StreamInfo() StreamInfo {
	return s.info
}

// FrameCount returns the number of video packets in the stream.
func (s *Source) FrameCount() int {
	return s.frames
}

// SeekIndex returns a copy of the keyframe index.
func (s *Source) SeekIndex() SeekIndex {
	return s.index.Clone()
}

// Position returns the file offset of the held packet, or -1 when none is
// held or the stream is exhausted.
func (s *Source) Position() int64 {
	return s.pos
}

// Err returns the read error that ended iteration early, or nil if the
// stream ended normally.
func (s *Source) Err() error {
	if s.it == nil {
		return nil
	}
	return s.it.err
}

// Extradata returns a copy of the codec configuration record of the video
// stream, or nil when the container has none.
func (s *Source) Extradata() []byte {
	if len(s.stream.Params.Extradata) == 0 {
		return nil
	}
	return append([]byte(nil), s.stream.Params.Extradata...)
}

// ParameterSets returns the parameter-set NAL units carried in the
// extradata: avcC for H.264, the hvcC layout otherwise.
func (s *Source) ParameterSets() ([][]byte, error) {
	if s.sess == nil {
		return nil, ErrNotOpen
	}
	return parameterSets(s.stream.Params.Codec, s.stream.Params.Extradata)
}

// Packet returns the next video packet. With reuseLast the packet read last
// is returned again if one is held. At end of stream it returns io.EOF.
// The packet is owned by the Source and valid until the next call that
// moves the read position.
func (s *Source) Packet(reuseLast bool) (*container.Packet, error) {
	if s.sess == nil {
		return nil, ErrNotOpen
	}
	if reuseLast && s.it.held {
		return &s.it.pkt, nil
	}
	s.payload = nil
	if !s.advance() {
		return nil, io.EOF
	}
	return &s.it.pkt, nil
}

func (s *Source) advance() bool {
	if !s.it.advance() {
		s.pos = -1
		return false
	}
	s.pos = s.it.pkt.Pos
	return true
}

// ClosestSeekableBefore returns the PTS to seek to in order to decode frame
// and the frame that seek lands on.
func (s *Source) ClosestSeekableBefore(frame int) (pts int64, landing int) {
	return s.index.FindSeekTarget(frame)
}

// SeekToPTS repositions the video stream to the last keyframe at or before
// pts. On success the held packet is dropped and end of stream is cleared;
// on failure nothing changes and the error wraps ErrSeek.
func (s *Source) SeekToPTS(pts int64) error {
	if s.sess == nil {
		return ErrNotOpen
	}
	if err := s.sess.Seek(s.stream.Index, pts); err != nil {
		s.log.Debug("seek failed", "pts", pts, "error", err)
		return fmt.Errorf("%w: pts %d: %w", ErrSeek, pts, err)
	}
	s.it.rewind()
	s.payload = nil
	s.pos = -1
	s.log.Debug("seeked", "pts", pts)
	return nil
}

// MaxPTS returns the container duration converted with the stream time
// base as duration*den/num/1000.
func (s *Source) MaxPTS() (int64, error) {
	if s.sess == nil {
		return 0, ErrNotOpen
	}
	tb := s.info.TimeBase
	if tb.Num == 0 {
		return 0, ErrTimeBaseUndefined
	}
	return s.info.Duration * int64(tb.Den) / int64(tb.Num) / 1000, nil
}

// IsOpen reports whether the Source holds a container session.
func (s *Source) IsOpen() bool {
	return s.sess != nil
}
