package codec

import (
	"bytes"
	"testing"
)

func TestParseAnnexB(t *testing.T) {
	t.Parallel()
	data := []byte{
		0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0x00, 0x1E,
		0x00, 0x00, 0x01, 0x68, 0xCE,
		0x00, 0x00, 0x00, 0x01, 0x65, 0x88, 0x84,
	}
	nalus := ParseAnnexB(data)
	if len(nalus) != 3 {
		t.Fatalf("got %d NAL units, want 3", len(nalus))
	}
	wantTypes := []byte{NALTypeSPS, NALTypePPS, NALTypeIDR}
	for i, want := range wantTypes {
		if nalus[i].Type != want {
			t.Errorf("NAL %d type = %d, want %d", i, nalus[i].Type, want)
		}
	}
	if !bytes.Equal(nalus[1].Data, []byte{0x68, 0xCE}) {
		t.Errorf("PPS data = %x", nalus[1].Data)
	}
	if !IsKeyframe(nalus[2].Type) {
		t.Error("IDR should be a keyframe")
	}
}

func TestParseAnnexBEmpty(t *testing.T) {
	t.Parallel()
	if got := ParseAnnexB(nil); got != nil {
		t.Errorf("ParseAnnexB(nil) = %v", got)
	}
	if got := ParseAnnexB([]byte{0x00, 0x00, 0x01}); got != nil {
		t.Errorf("ParseAnnexB(start code only) = %v", got)
	}
}

func TestSplitAnnexBHEVC(t *testing.T) {
	t.Parallel()
	data := AppendAnnexB(nil, vpsHEVC, spsHEVC, ppsHEVC, []byte{0x26, 0x01, 0xAF})
	nalus := SplitAnnexB(H265, data)
	if len(nalus) != 4 {
		t.Fatalf("got %d NAL units, want 4", len(nalus))
	}
	wantTypes := []byte{HEVCNALVPS, HEVCNALSPS, HEVCNALPPS, HEVCNALIDRWRadl}
	for i, want := range wantTypes {
		if nalus[i].Type != want {
			t.Errorf("NAL %d type = %d, want %d", i, nalus[i].Type, want)
		}
	}
	if !IsHEVCKeyframe(nalus[3].Type) {
		t.Error("IDR_W_RADL should be a keyframe")
	}
}

func TestHEVCNALType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		firstByte byte
		want      byte
	}{
		{"VPS (32)", 0x40, HEVCNALVPS},
		{"SPS (33)", 0x42, HEVCNALSPS},
		{"PPS (34)", 0x44, HEVCNALPPS},
		{"IDR_N_LP (20)", 0x28, HEVCNALIDRNlp},
		{"CRA (21)", 0x2A, HEVCNALCraNut},
		{"TRAIL_R (1)", 0x02, 1},
		{"SEI_PREFIX (39)", 0x4E, HEVCNALSEIPrefix},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := HEVCNALType(tt.firstByte); got != tt.want {
				t.Errorf("HEVCNALType(0x%02X) = %d, want %d", tt.firstByte, got, tt.want)
			}
		})
	}
}

func TestIsSEI(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		codec string
		nalu  []byte
		want  bool
	}{
		{"h264 sei", H264, []byte{0x06, 0x04}, true},
		{"h264 header only", H264, []byte{0x06}, false},
		{"h264 idr", H264, []byte{0x65, 0x88}, false},
		{"h265 prefix sei", H265, []byte{0x4E, 0x01, 0x04}, true},
		{"h265 sps", H265, spsHEVC, false},
		{"empty", H264, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsSEI(tt.codec, tt.nalu); got != tt.want {
				t.Errorf("IsSEI = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppendLengthPrefixed(t *testing.T) {
	t.Parallel()
	got := AppendLengthPrefixed([]byte{0xEE}, []byte{0x65, 0x01}, []byte{0x41})
	want := []byte{0xEE, 0, 0, 0, 2, 0x65, 0x01, 0, 0, 0, 1, 0x41}
	if !bytes.Equal(got, want) {
		t.Errorf("AppendLengthPrefixed = %x, want %x", got, want)
	}
}

func TestRemoveEmulationPrevention(t *testing.T) {
	t.Parallel()
	got := removeEmulationPrevention([]byte{0x00, 0x00, 0x03, 0x01, 0x00, 0x00, 0x03, 0x05})
	want := []byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x03, 0x05}
	if !bytes.Equal(got, want) {
		t.Errorf("removeEmulationPrevention = %x, want %x", got, want)
	}
}
