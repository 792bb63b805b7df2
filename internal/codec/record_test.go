package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestParameterSetsAdd(t *testing.T) {
	t.Parallel()
	var ps ParameterSets
	if !ps.Empty() {
		t.Fatal("new ParameterSets should be empty")
	}
	if !ps.Add(H264, sps720p) || !ps.Add(H264, pps264) {
		t.Fatal("SPS/PPS not recognised")
	}
	if !ps.Add(H264, sps720p) {
		t.Fatal("duplicate SPS not recognised")
	}
	if ps.Add(H264, []byte{0x65, 0x88}) {
		t.Fatal("IDR slice accepted as parameter set")
	}
	if len(ps.SPS) != 1 || len(ps.PPS) != 1 {
		t.Fatalf("got %d SPS, %d PPS, want 1 each", len(ps.SPS), len(ps.PPS))
	}
	if ps.Empty() {
		t.Fatal("ParameterSets with SPS reports empty")
	}

	var hevc ParameterSets
	for _, n := range [][]byte{vpsHEVC, spsHEVC, ppsHEVC} {
		if !hevc.Add(H265, n) {
			t.Fatalf("HEVC NAL %x not recognised", n[:2])
		}
	}
	if len(hevc.VPS) != 1 || len(hevc.SPS) != 1 || len(hevc.PPS) != 1 {
		t.Fatalf("HEVC sets = %d/%d/%d", len(hevc.VPS), len(hevc.SPS), len(hevc.PPS))
	}
}

func TestAVCDecoderConfigurationRecord(t *testing.T) {
	t.Parallel()
	rec, err := AVCDecoderConfigurationRecord([][]byte{sps720p}, [][]byte{pps264})
	if err != nil {
		t.Fatalf("AVCDecoderConfigurationRecord: %v", err)
	}
	head := []byte{1, 0x64, 0x00, 0x1f, 0xFF, 0xE1}
	if !bytes.Equal(rec[:6], head) {
		t.Fatalf("header = %x, want %x", rec[:6], head)
	}
	if n := int(binary.BigEndian.Uint16(rec[6:8])); n != len(sps720p) {
		t.Fatalf("SPS length = %d, want %d", n, len(sps720p))
	}
	off := 8 + len(sps720p)
	if !bytes.Equal(rec[8:off], sps720p) {
		t.Fatal("SPS payload mismatch")
	}
	if rec[off] != 1 {
		t.Fatalf("numOfPictureParameterSets = %d, want 1", rec[off])
	}
	if !bytes.Equal(rec[off+3:], pps264) {
		t.Fatalf("PPS payload = %x", rec[off+3:])
	}

	if _, err := AVCDecoderConfigurationRecord(nil, nil); !errors.Is(err, ErrNoSPS) {
		t.Fatalf("error = %v, want ErrNoSPS", err)
	}
}

func TestHEVCDecoderConfigurationRecord(t *testing.T) {
	t.Parallel()
	var ps ParameterSets
	ps.Add(H265, vpsHEVC)
	ps.Add(H265, spsHEVC)
	ps.Add(H265, ppsHEVC)
	rec, err := ps.Record(H265)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	if rec[0] != 1 {
		t.Errorf("configurationVersion = %d, want 1", rec[0])
	}
	if rec[1]&0x1F != 1 {
		t.Errorf("general_profile_idc = %d, want 1", rec[1]&0x1F)
	}
	if rec[12] != 93 {
		t.Errorf("general_level_idc = %d, want 93", rec[12])
	}
	if rec[21]&0x03 != 3 {
		t.Errorf("lengthSizeMinusOne = %d, want 3", rec[21]&0x03)
	}
	if rec[hvcCFixedHeaderLen] != 3 {
		t.Fatalf("numOfArrays = %d, want 3", rec[hvcCFixedHeaderLen])
	}

	off := hvcCFixedHeaderLen + 1
	for _, want := range [][]byte{vpsHEVC, spsHEVC, ppsHEVC} {
		if rec[off]&0x3F != HEVCNALType(want[0]) {
			t.Fatalf("array type = %d, want %d", rec[off]&0x3F, HEVCNALType(want[0]))
		}
		if n := binary.BigEndian.Uint16(rec[off+1:]); n != 1 {
			t.Fatalf("numNalus = %d, want 1", n)
		}
		size := int(binary.BigEndian.Uint16(rec[off+3:]))
		if !bytes.Equal(rec[off+5:off+5+size], want) {
			t.Fatalf("NAL payload = %x, want %x", rec[off+5:off+5+size], want)
		}
		off += 5 + size
	}
	if off != len(rec) {
		t.Errorf("record has %d trailing bytes", len(rec)-off)
	}
}

func TestHEVCDecoderConfigurationRecordNoSPS(t *testing.T) {
	t.Parallel()
	if _, err := HEVCDecoderConfigurationRecord([][]byte{vpsHEVC}, nil, nil); !errors.Is(err, ErrNoSPS) {
		t.Fatalf("error = %v, want ErrNoSPS", err)
	}
}
