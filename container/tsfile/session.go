// Package tsfile is a container.Session backend for MPEG-TS files. It maps
// the first program's PMT onto a stream table, reassembles PES packets with
// the internal demuxer and hands out video access units as 4-byte
// length-prefixed NAL units so they look like MP4 samples to the caller.
//
// Timestamps are the raw 90 kHz PES clock; every stream has time base
// 1/90000. Extradata for H.264 and H.265 streams is an avcC or hvcC record
// synthesized from the first in-band parameter sets.
package tsfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/zsiec/nalsource/container"
	"github.com/zsiec/nalsource/internal/codec"
	"github.com/zsiec/nalsource/internal/mpegts"
)

const (
	// probeLimit bounds how far into the file Open looks for parameter sets.
	probeLimit = 16 << 20
	// tailProbe is the amount of file end scanned for the last timestamp.
	tailProbe = 2 << 20

	clockRate = 90000
)

var timeBase = container.Rational{Num: 1, Den: clockRate}

// unitRef locates one PES unit of a stream in the file.
type unitRef struct {
	offset   int64
	pts      int64
	keyframe bool
}

// Session is an opened MPEG-TS file.
type Session struct {
	log      *slog.Logger
	ctx      context.Context
	f        *os.File
	size     int64
	streams  []container.Stream
	pids     map[uint16]int
	duration int64

	demux *mpegts.Demuxer
	buf   []byte
	units map[int][]unitRef // built on first Seek
}

// Opener returns a container.Opener for MPEG-TS files.
func Opener(log *slog.Logger) container.Opener {
	return func(ctx context.Context, path string) (container.Session, error) {
		return Open(ctx, path, log)
	}
}

// Open opens path and probes its stream table. If log is nil, slog.Default()
// is used.
func Open(ctx context.Context, path string, log *slog.Logger) (*Session, error) {
	if log == nil {
		log = slog.Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	s := &Session{
		log:  log.With("component", "tsfile", "path", path),
		ctx:  context.WithoutCancel(ctx),
		f:    f,
		size: fi.Size(),
		pids: make(map[uint16]int),
	}
	if err := s.probe(ctx); err != nil {
		f.Close()
		return nil, err
	}
	s.demux = s.demuxerAt(0)
	return s, nil
}

func (s *Session) demuxerAt(offset int64) *mpegts.Demuxer {
	return mpegts.NewDemuxer(s.ctx, io.NewSectionReader(s.f, offset, s.size-offset),
		mpegts.DemuxerOptBaseOffset(offset),
		mpegts.DemuxerOptLogger(s.log),
	)
}

// probe reads the PMT of the first program, collects parameter sets for the
// video streams and measures the duration from the first and last PTS.
func (s *Session) probe(ctx context.Context) error {
	d := mpegts.NewDemuxer(ctx, io.NewSectionReader(s.f, 0, s.size), mpegts.DemuxerOptLogger(s.log))

	var (
		sets     = make(map[int]*codec.ParameterSets)
		firstPTS = container.NoPTS
		haveAll  bool
	)
	for !haveAll {
		data, err := d.NextData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if data.Offset > probeLimit && s.streams != nil {
			break
		}

		switch {
		case data.PMT != nil && s.streams == nil:
			s.setStreams(data.PMT)
			for i, st := range s.streams {
				if st.MediaType == container.MediaTypeVideo {
					sets[i] = &codec.ParameterSets{}
				}
			}
		case data.PES != nil && s.streams != nil:
			idx, ok := s.pids[data.PID]
			if !ok {
				continue
			}
			if firstPTS == container.NoPTS && data.PES.PTS != nil && s.streams[idx].MediaType == container.MediaTypeVideo {
				firstPTS = *data.PES.PTS
			}
			if ps := sets[idx]; ps != nil {
				c := s.streams[idx].Params.Codec
				for _, nalu := range codec.SplitAnnexB(c, data.PES.Data) {
					ps.Add(c, nalu.Data)
				}
			}
			haveAll = firstPTS != container.NoPTS && complete(s.streams, sets)
		}
	}
	if s.streams == nil {
		return errors.New("tsfile: no PMT found")
	}

	for idx, ps := range sets {
		if ps.Empty() {
			s.log.Warn("no parameter sets found", "stream", idx)
			continue
		}
		s.describeVideo(&s.streams[idx].Params, ps)
	}

	if firstPTS != container.NoPTS {
		if last, ok := s.lastVideoPTS(ctx); ok && last > firstPTS {
			s.duration = (last - firstPTS) * 1_000_000 / clockRate
		}
	}
	s.log.Debug("probed", "streams", len(s.streams), "duration_us", s.duration)
	return nil
}

func complete(streams []container.Stream, sets map[int]*codec.ParameterSets) bool {
	for idx, ps := range sets {
		if len(ps.SPS) == 0 || len(ps.PPS) == 0 {
			return false
		}
		if streams[idx].Params.Codec == codec.H265 && len(ps.VPS) == 0 {
			return false
		}
	}
	return true
}

func (s *Session) setStreams(pmt *mpegts.PMTData) {
	for i, es := range pmt.ElementaryStreams {
		st := container.Stream{
			Index: i,
			Params: container.CodecParams{
				TimeBase:   timeBase,
				ColorSpace: container.ColorSpaceUnspecified,
			},
		}
		switch es.StreamType {
		case mpegts.StreamTypeH264:
			st.MediaType = container.MediaTypeVideo
			st.Params.Codec = codec.H264
		case mpegts.StreamTypeH265:
			st.MediaType = container.MediaTypeVideo
			st.Params.Codec = codec.H265
		case mpegts.StreamTypeAAC:
			st.MediaType = container.MediaTypeAudio
			st.Params.Codec = "aac"
		default:
			st.MediaType = container.MediaTypeData
			st.Params.Codec = fmt.Sprintf("stream_type_0x%02x", es.StreamType)
		}
		s.pids[es.ElementaryPID] = i
		s.streams = append(s.streams, st)
	}
}

// describeVideo fills geometry, sample layout and extradata from the first
// SPS of a stream.
func (s *Session) describeVideo(p *container.CodecParams, ps *codec.ParameterSets) {
	rec, err := ps.Record(p.Codec)
	if err != nil {
		s.log.Warn("cannot build configuration record", "codec", p.Codec, "error", err)
	} else {
		p.Extradata = rec
	}

	switch p.Codec {
	case codec.H264:
		info, err := codec.ParseSPS(ps.SPS[0])
		if err != nil {
			s.log.Warn("bad SPS", "error", err)
			return
		}
		p.Width, p.Height = info.Width, info.Height
		p.PixelFormat = codec.PixelFormatName(info.ChromaFormatIdc, info.BitDepthLuma)
		p.ColorSpace = container.ColorSpace(info.MatrixCoefficients)
		num, den := info.FrameRate()
		p.AvgFrameRate = container.Rational{Num: num, Den: den}
	case codec.H265:
		info, err := codec.ParseHEVCSPS(ps.SPS[0])
		if err != nil {
			s.log.Warn("bad SPS", "error", err)
			return
		}
		p.Width, p.Height = info.Width, info.Height
		p.PixelFormat = codec.PixelFormatName(info.ChromaFormatIdc, int(info.BitDepthLumaMinus8)+8)
	}
}

// lastVideoPTS scans the end of the file for the highest video PTS.
func (s *Session) lastVideoPTS(ctx context.Context) (int64, bool) {
	start := max(0, s.size-tailProbe)
	start -= start % mpegts.PacketSize
	d := mpegts.NewDemuxer(ctx, io.NewSectionReader(s.f, start, s.size-start), mpegts.DemuxerOptLogger(s.log))

	last, ok := int64(0), false
	for {
		data, err := d.NextData()
		if err != nil {
			return last, ok
		}
		if data.PES == nil || data.PES.PTS == nil {
			continue
		}
		if idx, known := s.pids[data.PID]; known && s.streams[idx].MediaType == container.MediaTypeVideo {
			if !ok || *data.PES.PTS > last {
				last, ok = *data.PES.PTS, true
			}
		}
	}
}

// Streams implements container.Session.
func (s *Session) Streams() []container.Stream {
	return s.streams
}

// Duration implements container.Session.
func (s *Session) Duration() int64 {
	return s.duration
}

// ReadPacket implements container.Session. Units of PIDs outside the stream
// table are skipped; video units whose payload holds no NAL unit too.
func (s *Session) ReadPacket(pkt *container.Packet) error {
	for {
		data, err := s.demux.NextData()
		if err != nil {
			return err
		}
		if data.PES == nil {
			continue
		}
		idx, ok := s.pids[data.PID]
		if !ok {
			continue
		}

		st := &s.streams[idx]
		pkt.Reset()
		pkt.StreamIndex = idx
		pkt.Pos = data.Offset
		pkt.PTS, pkt.DTS = timestamps(data.PES)

		if st.MediaType != container.MediaTypeVideo {
			pkt.Keyframe = true
			pkt.Data = data.PES.Data
			return nil
		}

		var keyframe bool
		s.buf, keyframe = lengthPrefixed(s.buf[:0], st.Params.Codec, data.PES.Data)
		if len(s.buf) == 0 {
			s.log.Debug("skipping empty video unit", "offset", data.Offset)
			continue
		}
		pkt.Keyframe = keyframe
		pkt.Data = s.buf
		return nil
	}
}

func timestamps(pes *mpegts.PESData) (pts, dts int64) {
	pts, dts = container.NoPTS, container.NoPTS
	if pes.PTS != nil {
		pts = *pes.PTS
		dts = pts
	}
	if pes.DTS != nil {
		dts = *pes.DTS
	}
	return pts, dts
}

// lengthPrefixed converts an Annex B access unit to 4-byte length-prefixed
// framing and reports whether it contains a random access picture.
func lengthPrefixed(dst []byte, c string, annexB []byte) ([]byte, bool) {
	keyframe := false
	for _, nalu := range codec.SplitAnnexB(c, annexB) {
		if c == codec.H265 {
			keyframe = keyframe || codec.IsHEVCKeyframe(nalu.Type)
		} else {
			keyframe = keyframe || codec.IsKeyframe(nalu.Type)
		}
		dst = codec.AppendLengthPrefixed(dst, nalu.Data)
	}
	return dst, keyframe
}

// Seek implements container.Session. The first call indexes every PES unit
// of the file; the read cursor is only replaced once a target is found.
func (s *Session) Seek(streamIndex int, pts int64) error {
	if streamIndex < 0 || streamIndex >= len(s.streams) {
		return fmt.Errorf("tsfile: stream %d out of range", streamIndex)
	}
	if s.units == nil {
		units, err := s.indexUnits()
		if err != nil {
			return fmt.Errorf("tsfile: index: %w", err)
		}
		s.units = units
	}

	refs := s.units[streamIndex]
	if len(refs) == 0 {
		return fmt.Errorf("tsfile: stream %d has no packets", streamIndex)
	}
	target := refs[0].offset
	for _, r := range refs {
		if r.keyframe && r.pts != container.NoPTS && r.pts <= pts {
			target = r.offset
		}
	}
	s.log.Debug("seek", "stream", streamIndex, "pts", pts, "offset", target)
	s.demux = s.demuxerAt(target)
	return nil
}

func (s *Session) indexUnits() (map[int][]unitRef, error) {
	d := s.demuxerAt(0)
	units := make(map[int][]unitRef)
	for {
		data, err := d.NextData()
		if errors.Is(err, io.EOF) {
			return units, nil
		}
		if err != nil {
			return nil, err
		}
		if data.PES == nil {
			continue
		}
		idx, ok := s.pids[data.PID]
		if !ok {
			continue
		}
		ref := unitRef{offset: data.Offset, keyframe: true}
		ref.pts, _ = timestamps(data.PES)
		if st := s.streams[idx]; st.MediaType == container.MediaTypeVideo {
			var n []byte
			n, ref.keyframe = lengthPrefixed(nil, st.Params.Codec, data.PES.Data)
			if len(n) == 0 {
				continue
			}
		}
		units[idx] = append(units[idx], ref)
	}
}

// Close implements container.Session.
func (s *Session) Close() error {
	return s.f.Close()
}
