package source

import (
	"strconv"
	"strings"

	"github.com/zsiec/nalsource/container"
)

// ColorConversion is the YUV to RGB matrix a renderer should apply.
type ColorConversion int

const (
	BT709LimitedRange ColorConversion = iota
	BT601LimitedRange
	BT2020LimitedRange
)

func (c ColorConversion) String() string {
	switch c {
	case BT601LimitedRange:
		return "bt601-limited"
	case BT2020LimitedRange:
		return "bt2020-limited"
	default:
		return "bt709-limited"
	}
}

// colorConversion maps a colour-space tag to a conversion. Unset and
// unknown tags get BT.709.
func colorConversion(cs container.ColorSpace) ColorConversion {
	switch cs {
	case container.ColorSpaceBT2020NCL, container.ColorSpaceBT2020CL:
		return BT2020LimitedRange
	case container.ColorSpaceBT470BG, container.ColorSpaceSMPTE170M:
		return BT601LimitedRange
	default:
		return BT709LimitedRange
	}
}

// Subsampling is the chroma layout of a pixel format.
type Subsampling int

const (
	SubsamplingUnknown Subsampling = iota
	Subsampling400
	Subsampling420
	Subsampling422
	Subsampling444
)

func (s Subsampling) String() string {
	switch s {
	case Subsampling400:
		return "4:0:0"
	case Subsampling420:
		return "4:2:0"
	case Subsampling422:
		return "4:2:2"
	case Subsampling444:
		return "4:4:4"
	default:
		return "unknown"
	}
}

// PixelFormat is the canonical description of a YUV sample layout,
// independent of the naming used by the container library.
type PixelFormat struct {
	Subsampling Subsampling
	BitDepth    int
	// SemiPlanar is set for interleaved chroma planes (NV12, P010).
	SemiPlanar bool
	BigEndian  bool
	// FullRange is set for the JPEG-range "yuvj" formats.
	FullRange bool
}

// Known reports whether the format was recognised.
func (p PixelFormat) Known() bool {
	return p.Subsampling != SubsamplingUnknown
}

func (p PixelFormat) String() string {
	if !p.Known() {
		return "unknown"
	}
	s := p.Subsampling.String() + " " + strconv.Itoa(p.BitDepth) + "-bit"
	if p.SemiPlanar {
		s += " semi-planar"
	}
	if p.BigEndian {
		s += " BE"
	}
	if p.FullRange {
		s += " full-range"
	}
	return s
}

var pixelFormatBases = []struct {
	prefix string
	format PixelFormat
}{
	{"yuvj420p", PixelFormat{Subsampling: Subsampling420, BitDepth: 8, FullRange: true}},
	{"yuvj422p", PixelFormat{Subsampling: Subsampling422, BitDepth: 8, FullRange: true}},
	{"yuvj444p", PixelFormat{Subsampling: Subsampling444, BitDepth: 8, FullRange: true}},
	{"yuv420p", PixelFormat{Subsampling: Subsampling420, BitDepth: 8}},
	{"yuv422p", PixelFormat{Subsampling: Subsampling422, BitDepth: 8}},
	{"yuv444p", PixelFormat{Subsampling: Subsampling444, BitDepth: 8}},
	{"gray", PixelFormat{Subsampling: Subsampling400, BitDepth: 8}},
	{"nv12", PixelFormat{Subsampling: Subsampling420, BitDepth: 8, SemiPlanar: true}},
	{"nv16", PixelFormat{Subsampling: Subsampling422, BitDepth: 8, SemiPlanar: true}},
	{"p010", PixelFormat{Subsampling: Subsampling420, BitDepth: 10, SemiPlanar: true}},
	{"p016", PixelFormat{Subsampling: Subsampling420, BitDepth: 16, SemiPlanar: true}},
}

// ParsePixelFormat translates a libav pixel format name such as "yuv420p",
// "yuv422p10le" or "gray12be". Unrecognised names give the zero value.
func ParsePixelFormat(name string) PixelFormat {
	for _, b := range pixelFormatBases {
		rest, ok := strings.CutPrefix(name, b.prefix)
		if !ok {
			continue
		}
		f := b.format
		switch {
		case rest == "":
			return f
		case strings.HasSuffix(rest, "le"):
			rest = strings.TrimSuffix(rest, "le")
		case strings.HasSuffix(rest, "be"):
			rest = strings.TrimSuffix(rest, "be")
			f.BigEndian = true
		default:
			return PixelFormat{}
		}
		if rest == "" {
			return f
		}
		depth, err := strconv.Atoi(rest)
		if err != nil || depth < 8 || depth > 16 {
			return PixelFormat{}
		}
		f.BitDepth = depth
		return f
	}
	return PixelFormat{}
}

// StreamInfo describes the selected video stream. It is fixed once the
// Source is open.
type StreamInfo struct {
	Index       int
	Codec       string
	PixelFormat PixelFormat
	Width       int
	Height      int
	// FrameRate is the average frame rate, or -1 when the container does
	// not know it.
	FrameRate float64
	TimeBase  container.Rational
	// Duration is the container duration in microseconds.
	Duration        int64
	ColorConversion ColorConversion
}

// selectVideoStream returns the first video stream of the table.
func selectVideoStream(streams []container.Stream) (container.Stream, bool) {
	for _, st := range streams {
		if st.MediaType == container.MediaTypeVideo {
			return st, true
		}
	}
	return container.Stream{}, false
}

func newStreamInfo(st container.Stream, duration int64) StreamInfo {
	p := st.Params
	info := StreamInfo{
		Index:           st.Index,
		Codec:           p.Codec,
		PixelFormat:     ParsePixelFormat(p.PixelFormat),
		Width:           p.Width,
		Height:          p.Height,
		FrameRate:       -1,
		TimeBase:        p.TimeBase,
		Duration:        duration,
		ColorConversion: colorConversion(p.ColorSpace),
	}
	if p.AvgFrameRate.Den != 0 {
		info.FrameRate = float64(p.AvgFrameRate.Num) / float64(p.AvgFrameRate.Den)
	}
	return info
}
