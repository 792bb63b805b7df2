//go:build ffmpeg

package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/zsiec/nalsource/container"
	"github.com/zsiec/nalsource/internal/codec"
	"github.com/zsiec/nalsource/internal/mpegts"
)

var sps720p = []byte{
	0x67, 0x64, 0x00, 0x1f, 0xac, 0xd9, 0x40, 0x50,
	0x05, 0xbb, 0xff, 0x00, 0x03, 0x00, 0x04, 0x6a,
	0x02, 0x02, 0x02, 0x80, 0x00, 0x01, 0xf4, 0x80,
	0x00, 0x5d, 0xc0, 0x07, 0x8c, 0x18, 0xcb,
}

func writeTS(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	m := mpegts.NewMuxer(&buf)
	if err := m.WritePAT(1, 0x1000); err != nil {
		t.Fatal(err)
	}
	if err := m.WritePMT(1, 0x1000, 0x100, []mpegts.PMTElementaryStream{
		{ElementaryPID: 0x100, StreamType: mpegts.StreamTypeH264},
	}); err != nil {
		t.Fatal(err)
	}
	pps := []byte{0x68, 0xeb, 0xe3, 0xcb, 0x22, 0xc0}
	for i := range 8 {
		pts := int64(90000 + i*3003)
		au := codec.AppendAnnexB(nil, []byte{0x41, 0x9a, 0x21, 0x6c})
		if i%4 == 0 {
			au = codec.AppendAnnexB(nil, sps720p, pps, []byte{0x65, 0x88, 0x84, 0x21})
		}
		if err := m.WritePES(0x100, 0xE0, &pts, &pts, au, i%4 == 0); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(t.TempDir(), "in.ts")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenAndRead(t *testing.T) {
	s, err := Open(context.Background(), writeTS(t), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	streams := s.Streams()
	if len(streams) != 1 || streams[0].MediaType != container.MediaTypeVideo {
		t.Fatalf("streams = %+v, want one video stream", streams)
	}
	if p := streams[0].Params; p.Codec != codec.H264 || p.Width != 1280 || p.Height != 720 {
		t.Errorf("params = %s %dx%d, want h264 1280x720", p.Codec, p.Width, p.Height)
	}

	var pkt container.Packet
	n := 0
	for {
		err := s.ReadPacket(&pkt)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, container.ErrAgain) {
			continue
		}
		if err != nil {
			t.Fatalf("ReadPacket: %v", err)
		}
		n++
	}
	if n == 0 {
		t.Fatal("no packets read")
	}

	if err := s.Seek(0, 90000); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if err := s.ReadPacket(&pkt); err != nil {
		t.Fatalf("ReadPacket after seek: %v", err)
	}
}
