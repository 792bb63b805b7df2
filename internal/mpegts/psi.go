package mpegts

import "fmt"

const (
	pidPAT     = 0x0000
	tableIDPAT = 0x00
	tableIDPMT = 0x02
)

// programMap tracks which PIDs carry PMT sections.
type programMap map[uint16]bool

func (pm programMap) isPSI(pid uint16) bool {
	return pid == pidPAT || pm[pid]
}

// sections walks the PSI sections of a payload (pointer field first) and
// calls fn for each complete section. It stops at stuffing or padding.
func sections(payload []byte, fn func(tableID byte, section []byte) error) error {
	if len(payload) < 1 {
		return fmt.Errorf("mpegts: PSI payload too short")
	}
	offset := 1 + int(payload[0])
	if offset >= len(payload) {
		return fmt.Errorf("mpegts: PSI pointer field out of range")
	}

	for offset+3 <= len(payload) {
		tableID := payload[offset]
		if tableID == 0xFF {
			return nil
		}
		// section_syntax_indicator is 1 for PAT/PMT; zero padding has it clear.
		if payload[offset+1]&0x80 == 0 {
			return nil
		}
		sectionEnd := offset + 3 + (int(payload[offset+1]&0x0F)<<8 | int(payload[offset+2]))
		if sectionEnd > len(payload) {
			return nil
		}
		if err := fn(tableID, payload[offset:sectionEnd]); err != nil {
			return err
		}
		offset = sectionEnd
	}
	return nil
}

// psiComplete reports whether payload holds every section it announces.
func psiComplete(payload []byte) bool {
	if len(payload) < 1 {
		return false
	}
	offset := 1 + int(payload[0])
	for offset < len(payload) {
		if payload[offset] == 0xFF {
			return true
		}
		if offset+3 > len(payload) {
			return false
		}
		if payload[offset+1]&0x80 == 0 {
			return true
		}
		offset += 3 + (int(payload[offset+1]&0x0F)<<8 | int(payload[offset+2]))
		if offset > len(payload) {
			return false
		}
	}
	return true
}

func parsePSI(payload []byte, pid uint16, offset int64) ([]*DemuxerData, error) {
	var results []*DemuxerData
	err := sections(payload, func(tableID byte, section []byte) error {
		switch tableID {
		case tableIDPAT:
			pat, err := parsePATSection(section)
			if err != nil {
				return err
			}
			results = append(results, &DemuxerData{PID: pid, Offset: offset, PAT: pat})
		case tableIDPMT:
			pmt, err := parsePMTSection(section)
			if err != nil {
				return err
			}
			results = append(results, &DemuxerData{PID: pid, Offset: offset, PMT: pmt})
		}
		return nil
	})
	return results, err
}

// parsePATSection decodes a PAT section including its trailing CRC32:
// 8 header bytes, 4 bytes per program, CRC.
func parsePATSection(data []byte) (*PATData, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("mpegts: PAT too short")
	}
	if err := verifyCRC32(data); err != nil {
		return nil, fmt.Errorf("mpegts: PAT %w", err)
	}

	pat := &PATData{}
	for i := 8; i+4 <= len(data)-4; i += 4 {
		programNumber := uint16(data[i])<<8 | uint16(data[i+1])
		if programNumber == 0 {
			continue // NIT
		}
		pat.Programs = append(pat.Programs, PATProgram{
			ProgramNumber: programNumber,
			ProgramMapID:  uint16(data[i+2]&0x1F)<<8 | uint16(data[i+3]),
		})
	}
	return pat, nil
}

// parsePMTSection decodes a PMT section including its trailing CRC32:
// 12 header bytes, program descriptors, 5+N bytes per elementary stream, CRC.
func parsePMTSection(data []byte) (*PMTData, error) {
	if len(data) < 16 {
		return nil, fmt.Errorf("mpegts: PMT too short")
	}
	if err := verifyCRC32(data); err != nil {
		return nil, fmt.Errorf("mpegts: PMT %w", err)
	}

	pmt := &PMTData{ProgramNumber: uint16(data[3])<<8 | uint16(data[4])}
	end := len(data) - 4
	offset := 12 + (int(data[10]&0x0F)<<8 | int(data[11]))
	for offset+5 <= end {
		pmt.ElementaryStreams = append(pmt.ElementaryStreams, PMTElementaryStream{
			StreamType:    data[offset],
			ElementaryPID: uint16(data[offset+1]&0x1F)<<8 | uint16(data[offset+2]),
		})
		offset += 5 + (int(data[offset+3]&0x0F)<<8 | int(data[offset+4]))
	}
	return pmt, nil
}
