package source

import (
	"encoding/binary"
	"fmt"
	"io"
)

// nalLengthSize is the size of the big-endian length in front of every NAL
// unit (ISO/IEC 14496-15 with lengthSizeMinusOne = 3).
const nalLengthSize = 4

// NextNALUnit returns the next NAL unit of the video stream and the PTS of
// the packet it came from; NAL units of one packet share that PTS. It pulls
// a new packet whenever the held one is used up and returns io.EOF at end of
// stream.
//
// A length prefix that is truncated or points past the end of the packet
// yields ErrMalformedPayload; the remainder of that packet is skipped and
// the next call continues with the following packet.
func (s *Source) NextNALUnit() ([]byte, int64, error) {
	if s.sess == nil {
		return nil, 0, ErrNotOpen
	}
	for s.payload == nil {
		if !s.advance() {
			return nil, 0, io.EOF
		}
		if len(s.it.pkt.Data) > 0 {
			s.payload = s.it.pkt.Data
			s.payloadOff = 0
		}
	}

	pts := s.it.pkt.PTS
	nalu, next, err := readLengthPrefixed(s.payload, s.payloadOff)
	if err != nil {
		s.log.Warn("dropping rest of packet", "pts", pts, "offset", s.payloadOff, "error", err)
		s.payload = nil
		return nil, pts, err
	}
	s.payloadOff = next
	if s.payloadOff >= len(s.payload) {
		s.payload = nil
	}
	return nalu, pts, nil
}

// readLengthPrefixed reads the NAL unit whose length prefix starts at off
// and returns it with the offset just past it.
func readLengthPrefixed(buf []byte, off int) ([]byte, int, error) {
	if off+nalLengthSize > len(buf) {
		return nil, 0, fmt.Errorf("%w: %d bytes left for a %d-byte length", ErrMalformedPayload, len(buf)-off, nalLengthSize)
	}
	n := binary.BigEndian.Uint32(buf[off:])
	start := off + nalLengthSize
	if uint64(n) > uint64(len(buf)-start) {
		return nil, 0, fmt.Errorf("%w: length %d exceeds %d remaining bytes", ErrMalformedPayload, n, len(buf)-start)
	}
	end := start + int(n)
	return buf[start:end:end], end, nil
}
