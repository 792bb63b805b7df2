package mpegts

import "encoding/binary"

// makePacket builds a 188-byte packet with payload and zero padding.
func makePacket(pid uint16, cc uint8, pusi bool, payload []byte) []byte {
	pkt := make([]byte, PacketSize)
	pkt[0] = syncByte
	pkt[1] = byte(pid>>8) & 0x1F
	if pusi {
		pkt[1] |= 0x40
	}
	pkt[2] = byte(pid)
	pkt[3] = 0x10 | cc&0x0F
	copy(pkt[4:], payload)
	return pkt
}

// buildPAT builds a PAT section with a valid CRC.
func buildPAT(programs map[uint16]uint16) []byte {
	section := []byte{tableIDPAT, 0xB0, 0, 0x00, 0x01, 0xC1, 0x00, 0x00}
	for num, pid := range programs {
		section = binary.BigEndian.AppendUint16(section, num)
		section = binary.BigEndian.AppendUint16(section, 0xE000|pid)
	}
	return finishSection(section)
}

// buildPMT builds a PMT section with one 2-byte program descriptor.
func buildPMT(programNum, pcrPID uint16, streams []PMTElementaryStream) []byte {
	section := []byte{tableIDPMT, 0xB0, 0}
	section = binary.BigEndian.AppendUint16(section, programNum)
	section = append(section, 0xC1, 0x00, 0x00)
	section = binary.BigEndian.AppendUint16(section, 0xE000|pcrPID)
	section = append(section, 0xF0, 0x02, 0x0A, 0x00)
	for _, s := range streams {
		section = append(section, s.StreamType)
		section = binary.BigEndian.AppendUint16(section, 0xE000|s.ElementaryPID)
		section = append(section, 0xF0, 0x00)
	}
	return finishSection(section)
}

func finishSection(section []byte) []byte {
	n := len(section) - 3 + 4
	section[1] = 0xB0 | byte(n>>8)&0x0F
	section[2] = byte(n)
	return binary.BigEndian.AppendUint32(section, CRC32(section))
}

func ptr(v int64) *int64 { return &v }
