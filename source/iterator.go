package source

import (
	"errors"
	"io"
	"log/slog"

	"github.com/zsiec/nalsource/container"
)

// maxAgain bounds consecutive container.ErrAgain results before a read is
// treated as failed.
const maxAgain = 1000

// iterator pulls packets of one stream from a session. Packets of other
// streams are dropped as they are read. Once a read fails the iterator stays
// exhausted until rewind is called after a successful seek.
type iterator struct {
	log    *slog.Logger
	sess   container.Session
	stream int

	pkt  container.Packet
	held bool
	eof  bool
	err  error // last hard read error, nil for a clean end of stream
}

func newIterator(sess container.Session, stream int, log *slog.Logger) *iterator {
	it := &iterator{log: log, sess: sess, stream: stream}
	it.pkt.Reset()
	return it
}

// advance releases the held packet and reads until a packet of the selected
// stream arrives. It reports false at end of stream.
func (it *iterator) advance() bool {
	it.release()
	if it.eof {
		return false
	}

	again := 0
	for {
		err := it.sess.ReadPacket(&it.pkt)
		switch {
		case err == nil:
			if it.pkt.StreamIndex != it.stream {
				it.pkt.Reset()
				continue
			}
			it.held = true
			it.log.Debug("packet", "pts", it.pkt.PTS, "dts", it.pkt.DTS, "keyframe", it.pkt.Keyframe, "size", it.pkt.Size())
			return true
		case errors.Is(err, container.ErrAgain) && again < maxAgain:
			again++
			continue
		case errors.Is(err, io.EOF):
			it.eof = true
			return false
		default:
			it.log.Warn("read failed, treating as end of stream", "error", err)
			it.err = err
			it.eof = true
			return false
		}
	}
}

func (it *iterator) release() {
	it.pkt.Reset()
	it.held = false
}

// rewind clears the end-of-stream state after the session was repositioned.
func (it *iterator) rewind() {
	it.release()
	it.eof = false
	it.err = nil
}
