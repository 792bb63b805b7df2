package mpegts

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Muxer writes a minimal single-program transport stream: PAT, PMT and PES
// units, each starting a new transport packet and padded with adaptation
// field stuffing. It exists to produce fixtures and re-mux extracted streams,
// not to pace a broadcast.
type Muxer struct {
	w  io.Writer
	cc map[uint16]uint8
}

// NewMuxer creates a muxer writing to w.
func NewMuxer(w io.Writer) *Muxer {
	return &Muxer{w: w, cc: make(map[uint16]uint8)}
}

// WritePAT writes a PAT announcing one program.
func (m *Muxer) WritePAT(programNumber, pmtPID uint16) error {
	section := []byte{
		tableIDPAT, 0xB0, 0, // section_length patched below
		0x00, 0x01, // transport_stream_id
		0xC1, 0x00, 0x00, // version 0, current, section 0/0
	}
	section = binary.BigEndian.AppendUint16(section, programNumber)
	section = binary.BigEndian.AppendUint16(section, 0xE000|pmtPID&0x1FFF)
	return m.writeSection(pidPAT, section)
}

// WritePMT writes a PMT for programNumber on pmtPID.
func (m *Muxer) WritePMT(programNumber, pmtPID, pcrPID uint16, streams []PMTElementaryStream) error {
	section := []byte{tableIDPMT, 0xB0, 0}
	section = binary.BigEndian.AppendUint16(section, programNumber)
	section = append(section, 0xC1, 0x00, 0x00)
	section = binary.BigEndian.AppendUint16(section, 0xE000|pcrPID&0x1FFF)
	section = append(section, 0xF0, 0x00) // program_info_length = 0
	for _, s := range streams {
		section = append(section, s.StreamType)
		section = binary.BigEndian.AppendUint16(section, 0xE000|s.ElementaryPID&0x1FFF)
		section = append(section, 0xF0, 0x00) // ES_info_length = 0
	}
	return m.writeSection(pmtPID, section)
}

func (m *Muxer) writeSection(pid uint16, section []byte) error {
	sectionLength := len(section) - 3 + 4 // + CRC32
	section[1] = 0xB0 | byte(sectionLength>>8)&0x0F
	section[2] = byte(sectionLength)
	section = binary.BigEndian.AppendUint32(section, CRC32(section))
	return m.writeUnit(pid, append([]byte{0x00}, section...), false)
}

// WritePES writes one PES packet. Video stream IDs (0xE0-0xEF) use the
// unbounded PES length; dts is only written when pts is set.
func (m *Muxer) WritePES(pid uint16, streamID byte, pts, dts *int64, data []byte, randomAccess bool) error {
	var opt []byte
	indicator := byte(0)
	switch {
	case pts != nil && dts != nil:
		indicator = 3
		opt = append(encodeTimestamp(0x03, *pts), encodeTimestamp(0x01, *dts)...)
	case pts != nil:
		indicator = 2
		opt = encodeTimestamp(0x02, *pts)
	}

	packetLength := 3 + len(opt) + len(data)
	if streamID&0xF0 == 0xE0 {
		packetLength = 0
	} else if packetLength > 0xFFFF {
		return fmt.Errorf("mpegts: PES payload of %d bytes too large for stream 0x%02X", len(data), streamID)
	}

	pes := make([]byte, 0, 9+len(opt)+len(data))
	pes = append(pes, 0x00, 0x00, 0x01, streamID)
	pes = binary.BigEndian.AppendUint16(pes, uint16(packetLength))
	pes = append(pes, 0x80, indicator<<6, byte(len(opt)))
	pes = append(pes, opt...)
	pes = append(pes, data...)
	return m.writeUnit(pid, pes, randomAccess)
}

// writeUnit splits payload into transport packets. The first packet has
// payload_unit_start_indicator set and, with randomAccess, an adaptation
// field carrying random_access_indicator.
func (m *Muxer) writeUnit(pid uint16, payload []byte, randomAccess bool) error {
	buf := make([]byte, PacketSize)
	for first := true; first || len(payload) > 0; first = false {
		withFlags := first && randomAccess
		room := PacketSize - 4
		if withFlags {
			room -= 2
		}
		n := min(len(payload), room)
		afLen := PacketSize - 4 - n // adaptation field bytes including its length byte

		cc := m.cc[pid]
		m.cc[pid] = (cc + 1) & 0x0F

		buf[0] = syncByte
		buf[1] = byte(pid>>8) & 0x1F
		if first {
			buf[1] |= 0x40
		}
		buf[2] = byte(pid)
		buf[3] = 0x10 | cc
		pos := 4
		if afLen > 0 {
			buf[3] |= 0x20
			buf[pos] = byte(afLen - 1)
			pos++
			if afLen > 1 {
				buf[pos] = 0
				if withFlags {
					buf[pos] = 0x40
				}
				pos++
				for ; pos < 4+afLen; pos++ {
					buf[pos] = 0xFF
				}
			}
		}
		copy(buf[pos:], payload[:n])
		payload = payload[n:]

		if _, err := m.w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// encodeTimestamp encodes a 33-bit PTS/DTS into 5 bytes with marker bits.
func encodeTimestamp(marker byte, value int64) []byte {
	return []byte{
		marker<<4 | byte((value>>29)&0x0E) | 0x01,
		byte(value >> 22),
		byte((value>>14)&0xFE) | 0x01,
		byte(value >> 7),
		byte((value<<1)&0xFE) | 0x01,
	}
}
