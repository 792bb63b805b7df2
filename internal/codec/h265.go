package codec

import (
	"fmt"
	"math/bits"
)

// HEVCSPSInfo holds parameters extracted from an HEVC SPS NAL unit.
type HEVCSPSInfo struct {
	Width      int
	Height     int
	ProfileIDC byte
	TierFlag   byte
	LevelIDC   byte

	ProfileCompatibilityFlags uint32
	ConstraintIndicatorFlags  uint64 // low 48 bits

	ChromaFormatIdc      byte
	BitDepthLumaMinus8   byte
	BitDepthChromaMinus8 byte
}

// CodecString returns the RFC 6381 codec parameter string (e.g.
// "hev1.1.6.L93.B0").
func (s HEVCSPSInfo) CodecString() string {
	tier := "L"
	if s.TierFlag == 1 {
		tier = "H"
	}

	reversed := bits.Reverse32(s.ProfileCompatibilityFlags)

	// 6 constraint bytes, trailing zero bytes omitted
	var constraintBytes [6]byte
	for i := 0; i < 6; i++ {
		constraintBytes[i] = byte((s.ConstraintIndicatorFlags >> uint((5-i)*8)) & 0xFF)
	}
	lastNonZero := -1
	for i := 5; i >= 0; i-- {
		if constraintBytes[i] != 0 {
			lastNonZero = i
			break
		}
	}

	codec := fmt.Sprintf("hev1.%d.%X.%s%d", s.ProfileIDC, reversed, tier, s.LevelIDC)
	for i := 0; i <= lastNonZero; i++ {
		codec += fmt.Sprintf(".%X", constraintBytes[i])
	}
	return codec
}

// ParseHEVCSPS parses an HEVC SPS NAL unit to extract resolution, sample
// layout and profile/tier/level. The input is the raw NAL data including
// the 2-byte NAL header. Fields after the picture size are best effort: a
// truncated SPS still reports its geometry.
func ParseHEVCSPS(nalu []byte) (HEVCSPSInfo, error) {
	if len(nalu) < 4 {
		return HEVCSPSInfo{}, errSPSTooShort
	}

	rbsp := removeEmulationPrevention(nalu[2:])
	br := newBitReader(rbsp)

	// sps_video_parameter_set_id
	if _, err := br.readBits(4); err != nil {
		return HEVCSPSInfo{}, err
	}
	maxSubLayersMinus1, err := br.readBits(3)
	if err != nil {
		return HEVCSPSInfo{}, err
	}
	// sps_temporal_id_nesting_flag
	if _, err := br.readBits(1); err != nil {
		return HEVCSPSInfo{}, err
	}

	info := HEVCSPSInfo{ChromaFormatIdc: 1}
	if err := parseHEVCProfileTierLevel(br, &info, maxSubLayersMinus1); err != nil {
		return HEVCSPSInfo{}, err
	}

	// sps_seq_parameter_set_id
	if _, err := br.readUE(); err != nil {
		return HEVCSPSInfo{}, err
	}

	chromaFormatIdc, err := br.readUE()
	if err != nil {
		return HEVCSPSInfo{}, err
	}
	info.ChromaFormatIdc = byte(chromaFormatIdc)
	if chromaFormatIdc == 3 {
		// separate_colour_plane_flag
		if _, err := br.readBits(1); err != nil {
			return HEVCSPSInfo{}, err
		}
	}

	width, err := br.readUE()
	if err != nil {
		return HEVCSPSInfo{}, err
	}
	height, err := br.readUE()
	if err != nil {
		return HEVCSPSInfo{}, err
	}
	info.Width = int(width)
	info.Height = int(height)

	confWindowFlag, err := br.readBits(1)
	if err != nil {
		return info, nil
	}
	if confWindowFlag == 1 {
		var win [4]uint
		for i := range win {
			if win[i], err = br.readUE(); err != nil {
				return info, nil
			}
		}

		var subWidthC, subHeightC uint
		switch chromaFormatIdc {
		case 1:
			subWidthC, subHeightC = 2, 2
		case 2:
			subWidthC, subHeightC = 2, 1
		default:
			subWidthC, subHeightC = 1, 1
		}
		info.Width -= int((win[0] + win[1]) * subWidthC)
		info.Height -= int((win[2] + win[3]) * subHeightC)
	}

	bdl, err := br.readUE()
	if err != nil {
		return info, nil
	}
	info.BitDepthLumaMinus8 = byte(bdl)

	bdc, err := br.readUE()
	if err != nil {
		return info, nil
	}
	info.BitDepthChromaMinus8 = byte(bdc)

	return info, nil
}

func parseHEVCProfileTierLevel(br *bitReader, info *HEVCSPSInfo, maxSubLayersMinus1 uint) error {
	// general_profile_space
	if _, err := br.readBits(2); err != nil {
		return err
	}

	tierFlag, err := br.readBits(1)
	if err != nil {
		return err
	}
	info.TierFlag = byte(tierFlag)

	profileIDC, err := br.readBits(5)
	if err != nil {
		return err
	}
	info.ProfileIDC = byte(profileIDC)

	hi, err := br.readBits(16)
	if err != nil {
		return err
	}
	lo, err := br.readBits(16)
	if err != nil {
		return err
	}
	info.ProfileCompatibilityFlags = uint32(hi)<<16 | uint32(lo)

	var cif uint64
	for i := 0; i < 6; i++ {
		b, err := br.readBits(8)
		if err != nil {
			return err
		}
		cif = (cif << 8) | uint64(b)
	}
	info.ConstraintIndicatorFlags = cif

	levelIDC, err := br.readBits(8)
	if err != nil {
		return err
	}
	info.LevelIDC = byte(levelIDC)

	if maxSubLayersMinus1 == 0 {
		return nil
	}

	var subLayerProfilePresent, subLayerLevelPresent [8]bool
	for i := uint(0); i < maxSubLayersMinus1; i++ {
		pp, err := br.readBits(1)
		if err != nil {
			return err
		}
		subLayerProfilePresent[i] = pp == 1
		lp, err := br.readBits(1)
		if err != nil {
			return err
		}
		subLayerLevelPresent[i] = lp == 1
	}
	for i := maxSubLayersMinus1; i < 8; i++ {
		if _, err := br.readBits(2); err != nil {
			return err
		}
	}
	for i := uint(0); i < maxSubLayersMinus1; i++ {
		if subLayerProfilePresent[i] {
			// sub_layer profile: 2+1+5+32+48 = 88 bits
			for _, n := range []int{32, 32, 24} {
				if _, err := br.readBits(n); err != nil {
					return err
				}
			}
		}
		if subLayerLevelPresent[i] {
			if _, err := br.readBits(8); err != nil {
				return err
			}
		}
	}
	return nil
}
