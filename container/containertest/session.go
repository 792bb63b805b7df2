// Package containertest provides an in-memory container.Session for tests.
package containertest

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/zsiec/nalsource/container"
)

// ErrClosed is returned by a Session after Close.
var ErrClosed = errors.New("containertest: session closed")

// Session replays a fixed packet list. Packets are delivered in slice order
// regardless of stream; Seek follows the container.Session contract over
// the packets of the requested stream.
type Session struct {
	StreamList    []container.Stream
	Packets       []container.Packet
	DurationValue int64

	// ReadHook, when set, is called before every ReadPacket with the
	// zero-based read count. A non-nil result is returned instead of a
	// packet and the cursor does not move.
	ReadHook func(n int) error
	// SeekErr, when set, fails every Seek.
	SeekErr error

	pos    int
	reads  int
	closed bool
	seeks  []int64
}

// Streams implements container.Session.
func (s *Session) Streams() []container.Stream {
	return s.StreamList
}

// Duration implements container.Session.
func (s *Session) Duration() int64 {
	return s.DurationValue
}

// ReadPacket implements container.Session.
func (s *Session) ReadPacket(pkt *container.Packet) error {
	if s.closed {
		return ErrClosed
	}
	n := s.reads
	s.reads++
	if s.ReadHook != nil {
		if err := s.ReadHook(n); err != nil {
			return err
		}
	}
	if s.pos >= len(s.Packets) {
		return io.EOF
	}
	*pkt = s.Packets[s.pos]
	s.pos++
	return nil
}

// Seek implements container.Session.
func (s *Session) Seek(streamIndex int, pts int64) error {
	if s.closed {
		return ErrClosed
	}
	if s.SeekErr != nil {
		return s.SeekErr
	}
	first, target := -1, -1
	for i, p := range s.Packets {
		if p.StreamIndex != streamIndex {
			continue
		}
		if first < 0 {
			first = i
		}
		if p.Keyframe && p.PTS <= pts {
			target = i
		}
	}
	if first < 0 {
		return fmt.Errorf("containertest: stream %d has no packets", streamIndex)
	}
	if target < 0 {
		target = first
	}
	s.pos = target
	s.seeks = append(s.seeks, pts)
	return nil
}

// Close implements container.Session.
func (s *Session) Close() error {
	s.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	return s.closed
}

// Reads returns the number of ReadPacket calls so far.
func (s *Session) Reads() int {
	return s.reads
}

// Seeks returns the PTS values of every successful Seek in call order.
func (s *Session) Seeks() []int64 {
	return append([]int64(nil), s.seeks...)
}

// Opener returns a container.Opener that hands out sessions built by newFn,
// so every open gets its own cursor.
func Opener(newFn func() *Session) container.Opener {
	return func(ctx context.Context, path string) (container.Session, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return newFn(), nil
	}
}
