package source

import (
	"testing"

	"github.com/zsiec/nalsource/container"
)

func TestParsePixelFormat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		want PixelFormat
	}{
		{"yuv420p", PixelFormat{Subsampling: Subsampling420, BitDepth: 8}},
		{"yuvj420p", PixelFormat{Subsampling: Subsampling420, BitDepth: 8, FullRange: true}},
		{"yuv422p10le", PixelFormat{Subsampling: Subsampling422, BitDepth: 10}},
		{"yuv444p12be", PixelFormat{Subsampling: Subsampling444, BitDepth: 12, BigEndian: true}},
		{"gray", PixelFormat{Subsampling: Subsampling400, BitDepth: 8}},
		{"gray10le", PixelFormat{Subsampling: Subsampling400, BitDepth: 10}},
		{"nv12", PixelFormat{Subsampling: Subsampling420, BitDepth: 8, SemiPlanar: true}},
		{"p010le", PixelFormat{Subsampling: Subsampling420, BitDepth: 10, SemiPlanar: true}},
		{"yuv420p9", PixelFormat{}},
		{"yuv420p32le", PixelFormat{}},
		{"rgb24", PixelFormat{}},
		{"", PixelFormat{}},
	}
	for _, tt := range tests {
		if got := ParsePixelFormat(tt.name); got != tt.want {
			t.Errorf("ParsePixelFormat(%q) = %+v, want %+v", tt.name, got, tt.want)
		}
	}
}

func TestPixelFormatString(t *testing.T) {
	t.Parallel()
	if got := ParsePixelFormat("p010be").String(); got != "4:2:0 10-bit semi-planar BE" {
		t.Errorf("String = %q", got)
	}
	if got := (PixelFormat{}).String(); got != "unknown" {
		t.Errorf("zero String = %q", got)
	}
}

func TestColorConversion(t *testing.T) {
	t.Parallel()
	tests := []struct {
		cs   container.ColorSpace
		want ColorConversion
	}{
		{container.ColorSpaceBT709, BT709LimitedRange},
		{container.ColorSpaceUnspecified, BT709LimitedRange},
		{container.ColorSpaceBT470BG, BT601LimitedRange},
		{container.ColorSpaceSMPTE170M, BT601LimitedRange},
		{container.ColorSpaceBT2020NCL, BT2020LimitedRange},
		{container.ColorSpaceBT2020CL, BT2020LimitedRange},
		{container.ColorSpace(99), BT709LimitedRange},
	}
	for _, tt := range tests {
		if got := colorConversion(tt.cs); got != tt.want {
			t.Errorf("colorConversion(%d) = %v, want %v", tt.cs, got, tt.want)
		}
	}
}

func TestSelectVideoStream(t *testing.T) {
	t.Parallel()
	streams := []container.Stream{
		{Index: 0, MediaType: container.MediaTypeAudio},
		{Index: 1, MediaType: container.MediaTypeVideo, Params: container.CodecParams{Codec: "h265"}},
		{Index: 2, MediaType: container.MediaTypeVideo, Params: container.CodecParams{Codec: "h264"}},
	}
	st, ok := selectVideoStream(streams)
	if !ok || st.Index != 1 {
		t.Errorf("selectVideoStream = (%d, %v), want (1, true)", st.Index, ok)
	}
	if _, ok := selectVideoStream(streams[:1]); ok {
		t.Error("audio-only table selected a stream")
	}
}
