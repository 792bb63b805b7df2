package source

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestParseBackend(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    Backend
		wantErr bool
	}{
		{in: "", want: BackendAuto},
		{in: "auto", want: BackendAuto},
		{in: " TS ", want: BackendTS},
		{in: "fmp4", want: BackendFMP4},
		{in: "avi", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseBackend(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBackend(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseBackend(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOpenerFor(t *testing.T) {
	t.Parallel()
	for _, b := range []Backend{BackendAuto, BackendTS, BackendFMP4} {
		if o, err := OpenerFor(b, nil); err != nil || o == nil {
			t.Errorf("OpenerFor(%q) = (%v, %v)", b, o, err)
		}
	}
	if _, err := OpenerFor("mkv", nil); err == nil {
		t.Error("OpenerFor(mkv) succeeded")
	}
}

func TestDetectBackend(t *testing.T) {
	t.Parallel()
	ts := make([]byte, 2*188)
	ts[0], ts[188] = 0x47, 0x47
	mp4 := append([]byte{0, 0, 0, 0x18}, []byte("ftypisom")...)

	tests := []struct {
		name    string
		file    string
		data    []byte
		want    Backend
		wantErr bool
	}{
		{name: "ts extension", file: "a.m2ts", data: mp4, want: BackendTS},
		{name: "mp4 extension", file: "a.MP4", data: ts, want: BackendFMP4},
		{name: "sniff ts", file: "a.bin", data: ts, want: BackendTS},
		{name: "sniff short ts", file: "a.bin", data: ts[:188], want: BackendTS},
		{name: "sniff fmp4", file: "a.bin", data: mp4, want: BackendFMP4},
		{name: "sniff segment", file: "a", data: append([]byte{0, 0, 0, 0x10}, []byte("styp")...), want: BackendFMP4},
		{name: "unknown", file: "a.bin", data: bytes.Repeat([]byte{1}, 400), wantErr: true},
		{name: "empty", file: "a.bin", data: nil, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, tt.data, 0o644); err != nil {
				t.Fatal(err)
			}
			got, err := detectBackend(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("detectBackend = %q, want %q", got, tt.want)
			}
		})
	}
}
