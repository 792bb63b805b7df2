package mpegts

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

func buildStream(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	m := NewMuxer(&buf)
	if err := m.WritePAT(1, 0x1000); err != nil {
		t.Fatal(err)
	}
	err := m.WritePMT(1, 0x1000, 0x100, []PMTElementaryStream{
		{ElementaryPID: 0x100, StreamType: StreamTypeH264},
		{ElementaryPID: 0x101, StreamType: StreamTypeAAC},
	})
	if err != nil {
		t.Fatal(err)
	}
	// A video unit spanning several transport packets.
	big := bytes.Repeat([]byte{0xAB}, 500)
	if err := m.WritePES(0x100, 0xE0, ptr(93003), ptr(90000), big, true); err != nil {
		t.Fatal(err)
	}
	if err := m.WritePES(0x101, 0xC0, ptr(90000), nil, []byte{0xFF, 0xF1}, false); err != nil {
		t.Fatal(err)
	}
	if err := m.WritePES(0x100, 0xE0, ptr(96006), nil, []byte{1, 2, 3}, false); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func collect(t *testing.T, d *Demuxer) []*DemuxerData {
	t.Helper()
	var out []*DemuxerData
	for {
		data, err := d.NextData()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("NextData: %v", err)
		}
		out = append(out, data)
	}
}

func TestDemuxer_Synthetic(t *testing.T) {
	t.Parallel()
	stream := buildStream(t)
	units := collect(t, NewDemuxer(context.Background(), bytes.NewReader(stream)))

	if len(units) != 5 {
		t.Fatalf("got %d units, want 5", len(units))
	}
	if units[0].PAT == nil || units[0].PAT.Programs[0].ProgramMapID != 0x1000 {
		t.Fatalf("unit 0 = %+v, want PAT", units[0])
	}
	if units[1].PMT == nil || len(units[1].PMT.ElementaryStreams) != 2 {
		t.Fatalf("unit 1 = %+v, want PMT with 2 streams", units[1])
	}

	video := units[2]
	if video.PES == nil || video.PID != 0x100 {
		t.Fatalf("unit 2 = %+v, want video PES", video)
	}
	if !video.RandomAccess {
		t.Error("video PES should carry random access")
	}
	if len(video.PES.Data) != 500 {
		t.Errorf("video data = %d bytes, want 500", len(video.PES.Data))
	}
	checkTimestamp(t, "PTS", video.PES.PTS, ptr(93003))
	checkTimestamp(t, "DTS", video.PES.DTS, ptr(90000))
	if video.Offset != 2*PacketSize {
		t.Errorf("video offset = %d, want %d", video.Offset, 2*PacketSize)
	}

	if units[3].PID != 0x101 || units[3].RandomAccess {
		t.Errorf("unit 3 = %+v, want audio PES without random access", units[3])
	}
	// The last unit is only flushed at end of input.
	if units[4].PID != 0x100 || !bytes.Equal(units[4].PES.Data, []byte{1, 2, 3}) {
		t.Errorf("unit 4 = %+v, want trailing video PES", units[4])
	}
}

func TestDemuxer_BaseOffset(t *testing.T) {
	t.Parallel()
	stream := buildStream(t)
	const base = 10 * PacketSize
	units := collect(t, NewDemuxer(context.Background(), bytes.NewReader(stream), DemuxerOptBaseOffset(base)))
	if units[0].Offset != base {
		t.Errorf("PAT offset = %d, want %d", units[0].Offset, base)
	}
}

func TestDemuxer_SkipsCorruptPackets(t *testing.T) {
	t.Parallel()
	stream := buildStream(t)
	garbage := bytes.Repeat([]byte{0x00}, PacketSize)
	input := append(append([]byte{}, garbage...), stream...)

	units := collect(t, NewDemuxer(context.Background(), bytes.NewReader(input)))
	if len(units) != 5 {
		t.Fatalf("got %d units, want 5", len(units))
	}
	if units[0].Offset != PacketSize {
		t.Errorf("PAT offset = %d, want %d", units[0].Offset, PacketSize)
	}
}

func TestDemuxer_TruncatedTail(t *testing.T) {
	t.Parallel()
	stream := buildStream(t)
	units := collect(t, NewDemuxer(context.Background(), bytes.NewReader(stream[:len(stream)-50])))
	// The final packet is incomplete and ignored; its unit is lost.
	if len(units) != 4 {
		t.Fatalf("got %d units, want 4", len(units))
	}
}

func TestDemuxer_ContextCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := NewDemuxer(ctx, bytes.NewReader(buildStream(t)))
	if _, err := d.NextData(); !errors.Is(err, context.Canceled) {
		t.Fatalf("NextData error = %v, want context.Canceled", err)
	}
}

func TestDemuxer_EmptyInput(t *testing.T) {
	t.Parallel()
	d := NewDemuxer(context.Background(), bytes.NewReader(nil))
	if _, err := d.NextData(); !errors.Is(err, io.EOF) {
		t.Fatalf("NextData error = %v, want io.EOF", err)
	}
	if _, err := d.NextData(); !errors.Is(err, io.EOF) {
		t.Fatalf("second NextData error = %v, want io.EOF", err)
	}
}

func FuzzDemuxer(f *testing.F) {
	var buf bytes.Buffer
	m := NewMuxer(&buf)
	_ = m.WritePAT(1, 0x1000)
	_ = m.WritePMT(1, 0x1000, 0x100, []PMTElementaryStream{{ElementaryPID: 0x100, StreamType: StreamTypeH264}})
	_ = m.WritePES(0x100, 0xE0, ptr(0), nil, []byte{0, 0, 0, 1, 0x65}, true)
	f.Add(buf.Bytes())

	f.Fuzz(func(t *testing.T, data []byte) {
		d := NewDemuxer(context.Background(), bytes.NewReader(data))
		for range 10000 {
			if _, err := d.NextData(); err != nil {
				return
			}
		}
	})
}
