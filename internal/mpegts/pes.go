package mpegts

import "fmt"

// isPESPayload checks for the PES start code prefix (0x000001).
func isPESPayload(data []byte) bool {
	return len(data) >= 3 && data[0] == 0x00 && data[1] == 0x00 && data[2] == 0x01
}

func parsePES(payload []byte) (*PESData, error) {
	if len(payload) < 6 {
		return nil, fmt.Errorf("mpegts: PES packet too short (%d bytes)", len(payload))
	}
	if !isPESPayload(payload) {
		return nil, fmt.Errorf("mpegts: invalid PES start code")
	}

	pes := &PESData{StreamID: payload[3]}
	packetLength := int(payload[4])<<8 | int(payload[5])

	// limit trims to the declared PES length; 0 means unbounded (video).
	limit := func(start int) []byte {
		if packetLength > 0 && 6+packetLength <= len(payload) {
			return payload[start : 6+packetLength]
		}
		return payload[start:]
	}

	// padding, private_stream_2, ECM, EMM, DSMCC, H.222.1 type E and the
	// program stream directory carry no optional header.
	switch pes.StreamID {
	case 0xBE, 0xBF, 0xF0, 0xF1, 0xF2, 0xF8, 0xFF:
		pes.Data = limit(6)
		return pes, nil
	}

	if len(payload) < 9 {
		return nil, fmt.Errorf("mpegts: PES optional header too short")
	}

	// payload[7]: PTS_DTS_indicator(2) + ESCR(1) + ES_rate(1) + DSM_trick(1)
	// + additional_copy(1) + CRC(1) + extension(1); payload[8]: header length.
	ptsDTSIndicator := (payload[7] >> 6) & 0x03
	dataStart := 9 + int(payload[8])
	if dataStart > len(payload) {
		dataStart = len(payload)
	}

	switch ptsDTSIndicator {
	case 2:
		if len(payload) >= 14 {
			pts := parseTimestamp(payload[9:14])
			pes.PTS = &pts
		}
	case 3:
		if len(payload) >= 19 {
			pts := parseTimestamp(payload[9:14])
			dts := parseTimestamp(payload[14:19])
			pes.PTS, pes.DTS = &pts, &dts
		}
	}

	if dataStart > 6+packetLength && packetLength > 0 {
		return nil, fmt.Errorf("mpegts: PES header longer than packet")
	}
	pes.Data = limit(dataStart)
	return pes, nil
}

// parseTimestamp extracts a 33-bit timestamp from 5 PES timestamp bytes.
func parseTimestamp(bs []byte) int64 {
	return int64(bs[0]>>1&0x07)<<30 |
		int64(bs[1])<<22 |
		int64(bs[2]>>1&0x7F)<<15 |
		int64(bs[3])<<7 |
		int64(bs[4]>>1&0x7F)
}
