package source

import (
	"encoding/binary"
	"fmt"

	"github.com/zsiec/nalsource/internal/codec"
)

// hvcCArraysOffset is where numOfArrays sits in an hvcC record, after the
// fixed 22-byte header.
const hvcCArraysOffset = 22

// ParseParameterSets extracts the parameter-set NAL units from an hvcC-style
// configuration record: version byte 1, numOfArrays at offset 22, then per
// array a type byte and a NAL count, then per NAL a length and the NAL unit
// including its header. Counts and lengths are read as (b0<<7)+b1, which
// matches the libav-written records this parser was built for as long as
// the values stay below 128.
//
// Extradata that is empty or does not start with version 1 yields no
// parameter sets. Records shorter than what they declare return
// ErrCorruptConfigRecord.
func ParseParameterSets(extradata []byte) ([][]byte, error) {
	if len(extradata) == 0 || extradata[0] != 1 {
		return nil, nil
	}
	r := recordReader{buf: extradata, pos: hvcCArraysOffset}
	numArrays, err := r.u8()
	if err != nil {
		return nil, err
	}

	var sets [][]byte
	for range int(numArrays) {
		if _, err := r.u8(); err != nil { // array_completeness + NAL type
			return nil, err
		}
		numNalus, err := r.shift7()
		if err != nil {
			return nil, err
		}
		for range numNalus {
			n, err := r.shift7()
			if err != nil {
				return nil, err
			}
			nalu, err := r.take(n)
			if err != nil {
				return nil, err
			}
			sets = append(sets, nalu)
		}
	}
	return sets, nil
}

// parseAVCParameterSets extracts SPS and PPS units from an avcC record
// (ISO/IEC 14496-15 5.3.3.1), whose lengths are plain big-endian.
func parseAVCParameterSets(extradata []byte) ([][]byte, error) {
	if len(extradata) == 0 || extradata[0] != 1 {
		return nil, nil
	}
	r := recordReader{buf: extradata, pos: 5}
	var sets [][]byte
	for _, mask := range []byte{0x1F, 0xFF} { // SPS count, then PPS count
		count, err := r.u8()
		if err != nil {
			return nil, err
		}
		for range int(count & mask) {
			n, err := r.u16()
			if err != nil {
				return nil, err
			}
			nalu, err := r.take(n)
			if err != nil {
				return nil, err
			}
			sets = append(sets, nalu)
		}
	}
	return sets, nil
}

// parameterSets dispatches on the codec: avcC for H.264, the hvcC layout
// for everything else.
func parameterSets(codecName string, extradata []byte) ([][]byte, error) {
	if codecName == codec.H264 {
		return parseAVCParameterSets(extradata)
	}
	return ParseParameterSets(extradata)
}

// recordReader reads a configuration record with bounds checks.
type recordReader struct {
	buf []byte
	pos int
}

func (r *recordReader) need(n int) error {
	if n < 0 || r.pos+n > len(r.buf) {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrCorruptConfigRecord, n, r.pos, len(r.buf))
	}
	return nil
}

func (r *recordReader) u8() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *recordReader) shift7() (int, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := int(r.buf[r.pos])<<7 + int(r.buf[r.pos+1])
	r.pos += 2
	return v, nil
}

func (r *recordReader) u16() (int, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := int(binary.BigEndian.Uint16(r.buf[r.pos:]))
	r.pos += 2
	return v, nil
}

func (r *recordReader) take(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return b, nil
}
