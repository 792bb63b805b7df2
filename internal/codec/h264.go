package codec

import "fmt"

// SPSInfo holds the H.264 Sequence Parameter Set fields a container needs
// to describe a stream: geometry, profile/level, sample layout, the VUI
// colour matrix and the VUI timing clock.
type SPSInfo struct {
	Width           int
	Height          int
	ProfileIDC      byte
	ConstraintFlags byte
	LevelIDC        byte
	ChromaFormatIdc byte
	BitDepthLuma    int

	// MatrixCoefficients is 2 (unspecified) unless the VUI carries a
	// colour description.
	MatrixCoefficients byte
	NumUnitsInTick     uint32
	TimeScale          uint32
}

// CodecString returns the RFC 6381 codec parameter string (e.g. "avc1.42E01E").
func (s SPSInfo) CodecString() string {
	return fmt.Sprintf("avc1.%02X%02X%02X", s.ProfileIDC, s.ConstraintFlags, s.LevelIDC)
}

// FrameRate returns the frame rate signalled by the VUI timing info as a
// num/den pair, or 0/0 when absent. H.264 counts field ticks, hence the
// factor of two.
func (s SPSInfo) FrameRate() (num, den int) {
	if s.NumUnitsInTick == 0 || s.TimeScale == 0 {
		return 0, 0
	}
	return int(s.TimeScale), int(2 * s.NumUnitsInTick)
}

// ParseSPS parses an H.264 SPS NAL unit. The input is the raw NAL data
// including the NAL header byte but without start code or length prefix.
func ParseSPS(nalu []byte) (SPSInfo, error) {
	if len(nalu) < 4 {
		return SPSInfo{}, errSPSTooShort
	}

	rbsp := removeEmulationPrevention(nalu[1:])
	br := newBitReader(rbsp)

	profileIdc, err := br.readBits(8)
	if err != nil {
		return SPSInfo{}, err
	}
	constraintFlags, err := br.readBits(8)
	if err != nil {
		return SPSInfo{}, err
	}
	levelIdc, err := br.readBits(8)
	if err != nil {
		return SPSInfo{}, err
	}
	if _, err := br.readUE(); err != nil {
		return SPSInfo{}, err
	}

	chromaFormatIdc := uint(1)
	bitDepthLumaMinus8 := uint(0)
	separateColourPlane := false

	switch profileIdc {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134:
		chromaFormatIdc, err = br.readUE()
		if err != nil {
			return SPSInfo{}, err
		}
		if chromaFormatIdc == 3 {
			val, err := br.readBits(1)
			if err != nil {
				return SPSInfo{}, err
			}
			separateColourPlane = val == 1
		}
		bitDepthLumaMinus8, err = br.readUE()
		if err != nil {
			return SPSInfo{}, err
		}
		if _, err := br.readUE(); err != nil { // bit_depth_chroma_minus8
			return SPSInfo{}, err
		}
		if _, err := br.readBits(1); err != nil { // qpprime_y_zero_transform_bypass_flag
			return SPSInfo{}, err
		}

		seqScalingMatrixPresent, err := br.readBits(1)
		if err != nil {
			return SPSInfo{}, err
		}
		if seqScalingMatrixPresent == 1 {
			limit := 8
			if chromaFormatIdc == 3 {
				limit = 12
			}
			for i := 0; i < limit; i++ {
				flag, err := br.readBits(1)
				if err != nil {
					return SPSInfo{}, err
				}
				if flag == 1 {
					size := 16
					if i >= 6 {
						size = 64
					}
					if err := br.skipScalingList(size); err != nil {
						return SPSInfo{}, err
					}
				}
			}
		}
	}

	if _, err := br.readUE(); err != nil { // log2_max_frame_num_minus4
		return SPSInfo{}, err
	}

	picOrderCntType, err := br.readUE()
	if err != nil {
		return SPSInfo{}, err
	}
	switch picOrderCntType {
	case 0:
		if _, err := br.readUE(); err != nil {
			return SPSInfo{}, err
		}
	case 1:
		if _, err := br.readBits(1); err != nil {
			return SPSInfo{}, err
		}
		if _, err := br.readSE(); err != nil {
			return SPSInfo{}, err
		}
		if _, err := br.readSE(); err != nil {
			return SPSInfo{}, err
		}
		numRefFrames, err := br.readUE()
		if err != nil {
			return SPSInfo{}, err
		}
		for i := uint(0); i < numRefFrames; i++ {
			if _, err := br.readSE(); err != nil {
				return SPSInfo{}, err
			}
		}
	}

	if _, err := br.readUE(); err != nil { // max_num_ref_frames
		return SPSInfo{}, err
	}
	if _, err := br.readBits(1); err != nil { // gaps_in_frame_num_value_allowed_flag
		return SPSInfo{}, err
	}

	picWidthMbs, err := br.readUE()
	if err != nil {
		return SPSInfo{}, err
	}
	picHeightMapUnits, err := br.readUE()
	if err != nil {
		return SPSInfo{}, err
	}

	frameMbsOnly, err := br.readBits(1)
	if err != nil {
		return SPSInfo{}, err
	}
	if frameMbsOnly == 0 {
		if _, err := br.readBits(1); err != nil {
			return SPSInfo{}, err
		}
	}
	if _, err := br.readBits(1); err != nil { // direct_8x8_inference_flag
		return SPSInfo{}, err
	}

	var cropLeft, cropRight, cropTop, cropBottom uint
	frameCroppingFlag, err := br.readBits(1)
	if err != nil {
		return SPSInfo{}, err
	}
	if frameCroppingFlag == 1 {
		for _, dst := range []*uint{&cropLeft, &cropRight, &cropTop, &cropBottom} {
			if *dst, err = br.readUE(); err != nil {
				return SPSInfo{}, err
			}
		}
	}

	chromaArrayType := chromaFormatIdc
	if separateColourPlane {
		chromaArrayType = 0
	}
	var subWidthC, subHeightC uint
	switch chromaArrayType {
	case 0, 3:
		subWidthC, subHeightC = 1, 1
	case 2:
		subWidthC, subHeightC = 2, 1
	default:
		subWidthC, subHeightC = 2, 2
	}

	cropUnitX := subWidthC
	cropUnitY := subHeightC * (2 - frameMbsOnly)

	info := SPSInfo{
		Width:              int((picWidthMbs+1)*16 - cropUnitX*(cropLeft+cropRight)),
		Height:             int((picHeightMapUnits+1)*16*(2-frameMbsOnly) - cropUnitY*(cropTop+cropBottom)),
		ProfileIDC:         byte(profileIdc),
		ConstraintFlags:    byte(constraintFlags),
		LevelIDC:           byte(levelIdc),
		ChromaFormatIdc:    byte(chromaFormatIdc),
		BitDepthLuma:       int(bitDepthLumaMinus8) + 8,
		MatrixCoefficients: 2,
	}

	// Everything past the geometry is optional; a truncated VUI still
	// yields a usable SPSInfo.
	vuiPresent, err := br.readBits(1)
	if err != nil || vuiPresent == 0 {
		return info, nil
	}

	arPresent, _ := br.readBits(1)
	if arPresent == 1 {
		arIdc, _ := br.readBits(8)
		if arIdc == 255 {
			br.readBits(32) // sar_width + sar_height
		}
	}

	overscan, _ := br.readBits(1)
	if overscan == 1 {
		br.readBits(1)
	}

	videoSignal, _ := br.readBits(1)
	if videoSignal == 1 {
		br.readBits(4) // video_format + video_full_range_flag
		colourDesc, _ := br.readBits(1)
		if colourDesc == 1 {
			br.readBits(16) // colour_primaries + transfer_characteristics
			if mc, err := br.readBits(8); err == nil {
				info.MatrixCoefficients = byte(mc)
			}
		}
	}

	chromaLoc, _ := br.readBits(1)
	if chromaLoc == 1 {
		br.readUE()
		br.readUE()
	}

	timingPresent, _ := br.readBits(1)
	if timingPresent == 1 {
		tick, err1 := br.readBits(32)
		scale, err2 := br.readBits(32)
		if err1 == nil && err2 == nil {
			info.NumUnitsInTick = uint32(tick)
			info.TimeScale = uint32(scale)
		}
	}

	return info, nil
}

// PixelFormatName returns the libav pixel format name for a chroma format
// and luma bit depth ("yuv420p", "yuv422p10le", "gray", ...), or "" when the
// combination has no name.
func PixelFormatName(chromaFormatIdc byte, bitDepth int) string {
	var base string
	switch chromaFormatIdc {
	case 0:
		base = "gray"
	case 1:
		base = "yuv420p"
	case 2:
		base = "yuv422p"
	case 3:
		base = "yuv444p"
	default:
		return ""
	}
	switch bitDepth {
	case 0, 8:
		return base
	case 9, 10, 12, 14, 16:
		return fmt.Sprintf("%s%dle", base, bitDepth)
	default:
		return ""
	}
}
