// Package codec holds the H.264 and H.265 bitstream helpers the container
// backends need: NAL unit classification, SPS parsing for stream geometry,
// Annex B splitting, 4-byte length-prefixed framing (ISO/IEC 14496-15) and
// avcC/hvcC decoder configuration records.
package codec

import (
	"encoding/binary"
	"errors"
)

// Codec names used in container.CodecParams.
const (
	H264 = "h264"
	H265 = "h265"
)

// H.264 NAL unit type constants as defined in ITU-T H.264 Table 7-1.
const (
	NALTypeSlice      = 1
	NALTypeIDR        = 5
	NALTypeSEI        = 6
	NALTypeSPS        = 7
	NALTypePPS        = 8
	NALTypeAUD        = 9
	NALTypeFillerData = 12
)

// H.265/HEVC NAL unit type constants as defined in ITU-T H.265 Table 7-1.
const (
	HEVCNALBlaWLP     = 16
	HEVCNALIDRWRadl   = 19
	HEVCNALIDRNlp     = 20
	HEVCNALCraNut     = 21
	HEVCNALVPS        = 32
	HEVCNALSPS        = 33
	HEVCNALPPS        = 34
	HEVCNALAUD        = 35
	HEVCNALFillerData = 38
	HEVCNALSEIPrefix  = 39
)

var errSPSTooShort = errors.New("SPS data too short")

// NALUnit is one NAL unit without start code or length prefix.
type NALUnit struct {
	Type byte   // 5-bit for H.264, 6-bit for H.265
	Data []byte // raw NAL data including the NAL header byte(s)
}

// NALType returns the codec-specific NAL unit type of nalu, or 0 if nalu is
// too short to carry a header.
func NALType(codec string, nalu []byte) byte {
	if len(nalu) == 0 {
		return 0
	}
	if codec == H265 {
		return HEVCNALType(nalu[0])
	}
	return nalu[0] & 0x1F
}

// HEVCNALType extracts the NAL unit type from the first byte of an HEVC
// 2-byte NAL header: forbidden(1) | type(6) | layerID_high(1).
func HEVCNALType(firstByte byte) byte {
	return (firstByte >> 1) & 0x3F
}

// IsKeyframe reports whether an H.264 NAL type is an IDR slice.
func IsKeyframe(nalType byte) bool {
	return nalType == NALTypeIDR
}

// IsHEVCKeyframe reports whether an HEVC NAL type is a random access point
// (BLA, IDR or CRA).
func IsHEVCKeyframe(nalType byte) bool {
	return nalType >= HEVCNALBlaWLP && nalType <= HEVCNALCraNut
}

// IsSEI reports whether nalu is an SEI message for codec.
func IsSEI(codec string, nalu []byte) bool {
	t := NALType(codec, nalu)
	if codec == H265 {
		return t == HEVCNALSEIPrefix && len(nalu) > 2
	}
	return t == NALTypeSEI && len(nalu) > 1
}

// parseAnnexBGeneric scans an Annex B byte stream for start codes and
// extracts NAL units. Both 3-byte (0x000001) and 4-byte (0x00000001) start
// codes are recognized. minNALBytes is the minimum NAL data length (1 for
// H.264, 2 for HEVC).
func parseAnnexBGeneric(data []byte, minNALBytes int, nalTypeFunc func([]byte) byte) []NALUnit {
	n := len(data)
	if n < 4 {
		return nil
	}

	type scPos struct {
		scStart   int
		dataStart int
	}

	var positions []scPos
	for i := 0; i < n-2; {
		if data[i] == 0 && data[i+1] == 0 {
			if i < n-3 && data[i+2] == 0 && data[i+3] == 1 {
				positions = append(positions, scPos{scStart: i, dataStart: i + 4})
				i += 4
				continue
			}
			if data[i+2] == 1 {
				positions = append(positions, scPos{scStart: i, dataStart: i + 3})
				i += 3
				continue
			}
		}
		i++
	}

	var units []NALUnit
	for idx, pos := range positions {
		end := n
		if idx+1 < len(positions) {
			end = positions[idx+1].scStart
		}
		if pos.dataStart >= end {
			continue
		}
		nalData := data[pos.dataStart:end]
		if len(nalData) < minNALBytes {
			continue
		}
		units = append(units, NALUnit{
			Type: nalTypeFunc(nalData),
			Data: nalData,
		})
	}
	return units
}

// ParseAnnexB splits an H.264 Annex B byte stream into NAL units.
func ParseAnnexB(data []byte) []NALUnit {
	return parseAnnexBGeneric(data, 1, func(d []byte) byte { return d[0] & 0x1F })
}

// ParseAnnexBHEVC splits an H.265 Annex B byte stream into NAL units using
// the 2-byte HEVC NAL header for type extraction.
func ParseAnnexBHEVC(data []byte) []NALUnit {
	return parseAnnexBGeneric(data, 2, func(d []byte) byte { return HEVCNALType(d[0]) })
}

// SplitAnnexB dispatches to ParseAnnexB or ParseAnnexBHEVC by codec name.
func SplitAnnexB(codec string, data []byte) []NALUnit {
	if codec == H265 {
		return ParseAnnexBHEVC(data)
	}
	return ParseAnnexB(data)
}

// AppendLengthPrefixed appends each NAL unit to dst behind a 4-byte
// big-endian length, the framing MP4-family containers use for samples.
func AppendLengthPrefixed(dst []byte, nalus ...[]byte) []byte {
	for _, n := range nalus {
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(n)))
		dst = append(dst, n...)
	}
	return dst
}

// AppendAnnexB appends each NAL unit to dst behind a 4-byte start code.
func AppendAnnexB(dst []byte, nalus ...[]byte) []byte {
	for _, n := range nalus {
		dst = append(dst, 0, 0, 0, 1)
		dst = append(dst, n...)
	}
	return dst
}

func removeEmulationPrevention(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if i+2 < len(data) && data[i] == 0 && data[i+1] == 0 && data[i+2] == 3 &&
			(i+3 >= len(data) || data[i+3] <= 3) {
			out = append(out, 0, 0)
			i += 2
		} else {
			out = append(out, data[i])
		}
	}
	return out
}

type bitReader struct {
	data []byte
	pos  int
	bit  int
}

func newBitReader(data []byte) *bitReader {
	return &bitReader{data: data}
}

func (br *bitReader) readBit() (uint, error) {
	if br.pos >= len(br.data) {
		return 0, errSPSTooShort
	}
	val := uint((br.data[br.pos] >> (7 - br.bit)) & 1)
	br.bit++
	if br.bit == 8 {
		br.bit = 0
		br.pos++
	}
	return val, nil
}

func (br *bitReader) readBits(n int) (uint, error) {
	var val uint
	for i := 0; i < n; i++ {
		b, err := br.readBit()
		if err != nil {
			return 0, err
		}
		val = (val << 1) | b
	}
	return val, nil
}

func (br *bitReader) readUE() (uint, error) {
	zeros := 0
	for {
		b, err := br.readBit()
		if err != nil {
			return 0, err
		}
		if b == 1 {
			break
		}
		zeros++
		if zeros > 31 {
			return 0, errSPSTooShort
		}
	}
	if zeros == 0 {
		return 0, nil
	}
	suffix, err := br.readBits(zeros)
	if err != nil {
		return 0, err
	}
	return (1 << zeros) - 1 + suffix, nil
}

func (br *bitReader) readSE() (int, error) {
	val, err := br.readUE()
	if err != nil {
		return 0, err
	}
	if val%2 == 0 {
		return -int(val / 2), nil
	}
	return int((val + 1) / 2), nil
}

func (br *bitReader) skipScalingList(size int) error {
	lastScale := 8
	nextScale := 8
	for j := 0; j < size; j++ {
		if nextScale != 0 {
			delta, err := br.readSE()
			if err != nil {
				return err
			}
			nextScale = (lastScale + delta + 256) % 256
		}
		if nextScale != 0 {
			lastScale = nextScale
		}
	}
	return nil
}
