package mpegts

import "fmt"

const (
	// PacketSize is the size of one transport stream packet.
	PacketSize = 188
	syncByte   = 0x47
)

func parsePacket(buf []byte) (*Packet, error) {
	if len(buf) != PacketSize {
		return nil, fmt.Errorf("mpegts: packet size %d, expected %d", len(buf), PacketSize)
	}
	if buf[0] != syncByte {
		return nil, fmt.Errorf("mpegts: invalid sync byte 0x%02X", buf[0])
	}

	p := &Packet{}
	p.Header.TransportErrorIndicator = buf[1]&0x80 != 0
	p.Header.PayloadUnitStartIndicator = buf[1]&0x40 != 0
	p.Header.PID = uint16(buf[1]&0x1F)<<8 | uint16(buf[2])
	p.Header.HasAdaptationField = buf[3]&0x20 != 0
	p.Header.HasPayload = buf[3]&0x10 != 0
	p.Header.ContinuityCounter = buf[3] & 0x0F

	offset := 4
	if p.Header.HasAdaptationField {
		afLen := int(buf[offset])
		if afLen > 0 {
			p.Header.DiscontinuityIndicator = buf[offset+1]&0x80 != 0
			p.Header.RandomAccessIndicator = buf[offset+1]&0x40 != 0
		}
		offset += 1 + afLen
		if offset > PacketSize {
			offset = PacketSize
		}
	}

	if p.Header.HasPayload && offset < PacketSize {
		p.Payload = make([]byte, PacketSize-offset)
		copy(p.Payload, buf[offset:])
	}
	return p, nil
}

// MPEG-2 CRC32 with polynomial 0x04C11DB7.
var crc32Table [256]uint32

func init() {
	for i := 0; i < 256; i++ {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
		crc32Table[i] = crc
	}
}

// CRC32 computes the MPEG-2 CRC of data. A section followed by its own CRC
// sums to zero.
func CRC32(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = (crc << 8) ^ crc32Table[byte(crc>>24)^b]
	}
	return crc
}

func verifyCRC32(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("mpegts: data too short for CRC32")
	}
	if CRC32(data) != 0 {
		return fmt.Errorf("mpegts: CRC32 mismatch")
	}
	return nil
}
