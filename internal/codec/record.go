package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNoSPS is returned when a configuration record is requested without any
// sequence parameter set.
var ErrNoSPS = errors.New("codec: no SPS available")

// hvcCFixedHeaderLen is the size of the fixed part of an
// HEVCDecoderConfigurationRecord; numOfArrays sits at this offset.
const hvcCFixedHeaderLen = 22

// ParameterSets collects the out-of-band parameter sets of one stream.
type ParameterSets struct {
	VPS [][]byte
	SPS [][]byte
	PPS [][]byte
}

// Add files nalu under its parameter-set class and reports whether it was
// one. Identical copies already held are ignored.
func (ps *ParameterSets) Add(codec string, nalu []byte) bool {
	var dst *[][]byte
	switch t := NALType(codec, nalu); {
	case codec == H265 && t == HEVCNALVPS:
		dst = &ps.VPS
	case codec == H265 && t == HEVCNALSPS, codec != H265 && t == NALTypeSPS:
		dst = &ps.SPS
	case codec == H265 && t == HEVCNALPPS, codec != H265 && t == NALTypePPS:
		dst = &ps.PPS
	default:
		return false
	}
	for _, have := range *dst {
		if string(have) == string(nalu) {
			return true
		}
	}
	*dst = append(*dst, append([]byte(nil), nalu...))
	return true
}

// Empty reports whether no SPS has been collected yet.
func (ps *ParameterSets) Empty() bool {
	return len(ps.SPS) == 0
}

// Record builds the decoder configuration record for codec: avcC for H.264,
// hvcC for H.265.
func (ps *ParameterSets) Record(codec string) ([]byte, error) {
	if codec == H265 {
		return HEVCDecoderConfigurationRecord(ps.VPS, ps.SPS, ps.PPS)
	}
	return AVCDecoderConfigurationRecord(ps.SPS, ps.PPS)
}

// AVCDecoderConfigurationRecord builds an ISO/IEC 14496-15 avcC record with
// a 4-byte NAL length size.
func AVCDecoderConfigurationRecord(sps, pps [][]byte) ([]byte, error) {
	if len(sps) == 0 || len(sps[0]) < 4 {
		return nil, ErrNoSPS
	}
	if len(sps) > 31 || len(pps) > 255 {
		return nil, fmt.Errorf("codec: too many parameter sets (%d SPS, %d PPS)", len(sps), len(pps))
	}

	buf := []byte{
		1,         // configurationVersion
		sps[0][1], // AVCProfileIndication
		sps[0][2], // profile_compatibility
		sps[0][3], // AVCLevelIndication
		0xFC | 3,  // reserved(6) + lengthSizeMinusOne
		0xE0 | byte(len(sps)),
	}
	for _, s := range sps {
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
		buf = append(buf, s...)
	}
	buf = append(buf, byte(len(pps)))
	for _, p := range pps {
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(p)))
		buf = append(buf, p...)
	}
	return buf, nil
}

// HEVCDecoderConfigurationRecord builds an ISO/IEC 14496-15 hvcC record with
// a 4-byte NAL length size. The general profile fields are taken from the
// first SPS; one array is written per non-empty parameter-set class, in
// VPS, SPS, PPS order.
func HEVCDecoderConfigurationRecord(vps, sps, pps [][]byte) ([]byte, error) {
	if len(sps) == 0 {
		return nil, ErrNoSPS
	}
	info, err := ParseHEVCSPS(sps[0])
	if err != nil {
		return nil, fmt.Errorf("codec: hvcC from SPS: %w", err)
	}

	buf := make([]byte, hvcCFixedHeaderLen, hvcCFixedHeaderLen+64)
	buf[0] = 1 // configurationVersion
	buf[1] = info.TierFlag<<5 | info.ProfileIDC&0x1F
	binary.BigEndian.PutUint32(buf[2:6], info.ProfileCompatibilityFlags)
	for i := 0; i < 6; i++ {
		buf[6+i] = byte(info.ConstraintIndicatorFlags >> uint((5-i)*8))
	}
	buf[12] = info.LevelIDC
	buf[13], buf[14] = 0xF0, 0x00 // min_spatial_segmentation_idc = 0
	buf[15] = 0xFC                // parallelismType = 0
	buf[16] = 0xFC | info.ChromaFormatIdc&0x03
	buf[17] = 0xF8 | info.BitDepthLumaMinus8&0x07
	buf[18] = 0xF8 | info.BitDepthChromaMinus8&0x07
	// avgFrameRate (19-20) = 0
	buf[21] = 0x0F // constantFrameRate=0, numTemporalLayers=1, temporalIdNested=1, lengthSizeMinusOne=3

	arrays := []struct {
		nalType byte
		nalus   [][]byte
	}{
		{HEVCNALVPS, vps},
		{HEVCNALSPS, sps},
		{HEVCNALPPS, pps},
	}
	var numArrays byte
	for _, a := range arrays {
		if len(a.nalus) > 0 {
			numArrays++
		}
	}
	buf = append(buf, numArrays)
	for _, a := range arrays {
		if len(a.nalus) == 0 {
			continue
		}
		buf = append(buf, 0x80|a.nalType) // array_completeness=1
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(a.nalus)))
		for _, n := range a.nalus {
			buf = binary.BigEndian.AppendUint16(buf, uint16(len(n)))
			buf = append(buf, n...)
		}
	}
	return buf, nil
}
