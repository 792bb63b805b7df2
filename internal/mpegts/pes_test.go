package mpegts

import (
	"bytes"
	"testing"
)

func buildPES(streamID byte, pts, dts *int64, data []byte) []byte {
	var buf bytes.Buffer
	m := NewMuxer(&buf)
	if err := m.WritePES(0x100, streamID, pts, dts, data, false); err != nil {
		panic(err)
	}
	// Reassemble the payloads of the written packets.
	var payload []byte
	raw := buf.Bytes()
	for i := 0; i < len(raw); i += PacketSize {
		p, err := parsePacket(raw[i : i+PacketSize])
		if err != nil {
			panic(err)
		}
		payload = append(payload, p.Payload...)
	}
	return payload
}

func TestParsePES(t *testing.T) {
	t.Parallel()
	data := []byte{0x00, 0x00, 0x00, 0x01, 0x09, 0xF0}

	tests := []struct {
		name    string
		payload []byte
		pts     *int64
		dts     *int64
	}{
		{"pts only", buildPES(0xE0, ptr(90000), nil, data), ptr(90000), nil},
		{"pts and dts", buildPES(0xE0, ptr(93003), ptr(90000), data), ptr(93003), ptr(90000)},
		{"33-bit pts", buildPES(0xC0, ptr(1<<32+5), nil, data), ptr(1<<32 + 5), nil},
		{"no timestamps", buildPES(0xE0, nil, nil, data), nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pes, err := parsePES(tt.payload)
			if err != nil {
				t.Fatalf("parsePES: %v", err)
			}
			checkTimestamp(t, "PTS", pes.PTS, tt.pts)
			checkTimestamp(t, "DTS", pes.DTS, tt.dts)
			if !bytes.Equal(pes.Data, data) {
				t.Errorf("Data = %x, want %x", pes.Data, data)
			}
		})
	}
}

func checkTimestamp(t *testing.T, name string, got, want *int64) {
	t.Helper()
	switch {
	case got == nil && want == nil:
	case got == nil || want == nil:
		t.Errorf("%s = %v, want %v", name, got, want)
	case *got != *want:
		t.Errorf("%s = %d, want %d", name, *got, *want)
	}
}

func TestParsePES_Errors(t *testing.T) {
	t.Parallel()
	if _, err := parsePES([]byte{0, 0, 1}); err == nil {
		t.Error("expected error for short PES")
	}
	if _, err := parsePES([]byte{0, 0, 2, 0xE0, 0, 0}); err == nil {
		t.Error("expected error for bad start code")
	}
	if _, err := parsePES([]byte{0, 0, 1, 0xE0, 0, 0, 0x80}); err == nil {
		t.Error("expected error for truncated optional header")
	}
}

func TestParsePES_NoOptionalHeader(t *testing.T) {
	t.Parallel()
	pes, err := parsePES([]byte{0, 0, 1, 0xBE, 0, 2, 0xFF, 0xFF, 0xAA})
	if err != nil {
		t.Fatalf("parsePES: %v", err)
	}
	if !bytes.Equal(pes.Data, []byte{0xFF, 0xFF}) {
		t.Errorf("Data = %x, want ffff", pes.Data)
	}
}
