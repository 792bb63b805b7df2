// Package fmp4file is a container.Session backend for fragmented MP4 files
// (ftyp + moov followed by moof/mdat pairs, as written by CMAF and DASH
// packagers). Samples are already 4-byte length-prefixed for H.264 and H.265
// tracks, so payloads are handed out unchanged.
//
// Open reads the sample tables of every fragment; payloads are loaded one
// fragment at a time while reading.
package fmp4file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	amp4 "github.com/abema/go-mp4"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"github.com/zsiec/nalsource/container"
	"github.com/zsiec/nalsource/internal/codec"
)

// fragment is one moof+mdat pair.
type fragment struct {
	offset int64
	size   int64
	first  int // index of its first sample in Session.samples
}

type sampleRef struct {
	frag     int
	stream   int
	pts, dts int64
	keyframe bool
}

// Session is an opened fragmented MP4 file.
type Session struct {
	log      *slog.Logger
	f        *os.File
	streams  []container.Stream
	tracks   map[int]int // track ID -> stream index
	duration int64

	frags   []fragment
	samples []sampleRef
	pos     int

	loaded   int // fragment whose payloads are held, -1 for none
	payloads [][]byte
}

// Opener returns a container.Opener for fragmented MP4 files.
func Opener(log *slog.Logger) container.Opener {
	return func(ctx context.Context, path string) (container.Session, error) {
		return Open(ctx, path, log)
	}
}

// Open opens path and reads its track and sample tables. If log is nil,
// slog.Default() is used.
func Open(ctx context.Context, path string, log *slog.Logger) (*Session, error) {
	if log == nil {
		log = slog.Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	s := &Session{
		log:    log.With("component", "fmp4file", "path", path),
		f:      f,
		tracks: make(map[int]int),
		loaded: -1,
	}
	if err := s.load(ctx); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) load(ctx context.Context) error {
	initEnd, err := s.walk()
	if err != nil {
		return err
	}
	if initEnd == 0 {
		return errors.New("fmp4file: no moov box")
	}

	initBytes := make([]byte, initEnd)
	if _, err := s.f.ReadAt(initBytes, 0); err != nil {
		return fmt.Errorf("fmp4file: read init: %w", err)
	}
	var init fmp4.Init
	if err := init.Unmarshal(bytes.NewReader(initBytes)); err != nil {
		return fmt.Errorf("fmp4file: init: %w", err)
	}
	s.setStreams(&init)

	type span struct{ first, last, lastDur int64 }
	spans := make(map[int]*span)

	for i := range s.frags {
		if err := ctx.Err(); err != nil {
			return err
		}
		parts, err := s.readFragment(i)
		if err != nil {
			return err
		}
		s.frags[i].first = len(s.samples)
		flatten(parts, func(track *fmp4.PartTrack, dts int64, smp *fmp4.Sample) {
			idx, ok := s.tracks[track.ID]
			if !ok {
				return
			}
			pts := dts + int64(smp.PTSOffset)
			s.samples = append(s.samples, sampleRef{
				frag:     i,
				stream:   idx,
				pts:      pts,
				dts:      dts,
				keyframe: !smp.IsNonSyncSample,
			})

			sp := spans[idx]
			if sp == nil {
				sp = &span{first: dts}
				spans[idx] = sp
			}
			sp.last, sp.lastDur = dts, int64(smp.Duration)
		})
	}

	for idx, sp := range spans {
		tb := s.streams[idx].Params.TimeBase
		if tb.Den == 0 {
			continue
		}
		d := (sp.last + sp.lastDur - sp.first) * 1_000_000 * int64(tb.Num) / int64(tb.Den)
		s.duration = max(s.duration, d)
	}
	s.fillFrameRates()
	s.log.Debug("loaded", "streams", len(s.streams), "fragments", len(s.frags), "samples", len(s.samples))
	return nil
}

// walk records the top-level layout: the end of the moov box and the extent
// of every moof+mdat pair.
func (s *Session) walk() (int64, error) {
	var initEnd int64
	var moof int64 = -1
	_, err := amp4.ReadBoxStructure(s.f, func(h *amp4.ReadHandle) (interface{}, error) {
		bi := h.BoxInfo
		start, end := int64(bi.Offset), int64(bi.Offset+bi.Size)
		switch bi.Type {
		case amp4.BoxTypeMoov():
			initEnd = end
		case amp4.BoxTypeMoof():
			moof = start
		case amp4.BoxTypeMdat():
			if moof >= 0 {
				s.frags = append(s.frags, fragment{offset: moof, size: end - moof})
				moof = -1
			}
		}
		return nil, nil
	})
	if err != nil {
		return 0, fmt.Errorf("fmp4file: box structure: %w", err)
	}
	return initEnd, nil
}

func (s *Session) readFragment(i int) (fmp4.Parts, error) {
	fr := s.frags[i]
	buf := make([]byte, fr.size)
	if _, err := s.f.ReadAt(buf, fr.offset); err != nil {
		return nil, fmt.Errorf("fmp4file: read fragment at %d: %w", fr.offset, err)
	}
	var parts fmp4.Parts
	if err := parts.Unmarshal(buf); err != nil {
		return nil, fmt.Errorf("fmp4file: fragment at %d: %w", fr.offset, err)
	}
	return parts, nil
}

// flatten visits the samples of parts in storage order with their decode
// timestamps.
func flatten(parts fmp4.Parts, fn func(track *fmp4.PartTrack, dts int64, smp *fmp4.Sample)) {
	for _, part := range parts {
		for _, track := range part.Tracks {
			dts := int64(track.BaseTime)
			for _, smp := range track.Samples {
				fn(track, dts, smp)
				dts += int64(smp.Duration)
			}
		}
	}
}

func (s *Session) setStreams(init *fmp4.Init) {
	for _, track := range init.Tracks {
		st := container.Stream{
			Index: len(s.streams),
			Params: container.CodecParams{
				TimeBase:   container.Rational{Num: 1, Den: int(track.TimeScale)},
				ColorSpace: container.ColorSpaceUnspecified,
			},
		}
		var ps codec.ParameterSets
		switch c := track.Codec.(type) {
		case *mp4.CodecH264:
			st.MediaType = container.MediaTypeVideo
			st.Params.Codec = codec.H264
			ps.Add(codec.H264, c.SPS)
			ps.Add(codec.H264, c.PPS)
			s.describeH264(&st.Params, c.SPS)
		case *mp4.CodecH265:
			st.MediaType = container.MediaTypeVideo
			st.Params.Codec = codec.H265
			ps.Add(codec.H265, c.VPS)
			ps.Add(codec.H265, c.SPS)
			ps.Add(codec.H265, c.PPS)
			s.describeH265(&st.Params, c.SPS)
		case *mp4.CodecAV1:
			st.MediaType = container.MediaTypeVideo
			st.Params.Codec = "av1"
		case *mp4.CodecVP9:
			st.MediaType = container.MediaTypeVideo
			st.Params.Codec = "vp9"
			st.Params.Width, st.Params.Height = c.Width, c.Height
		case *mp4.CodecMPEG4Audio:
			st.MediaType = container.MediaTypeAudio
			st.Params.Codec = "aac"
		case *mp4.CodecOpus:
			st.MediaType = container.MediaTypeAudio
			st.Params.Codec = "opus"
		case *mp4.CodecAC3:
			st.MediaType = container.MediaTypeAudio
			st.Params.Codec = "ac3"
		case *mp4.CodecMPEG1Audio:
			st.MediaType = container.MediaTypeAudio
			st.Params.Codec = "mp3"
		default:
			st.MediaType = container.MediaTypeData
			st.Params.Codec = fmt.Sprintf("%T", c)
		}

		if !ps.Empty() {
			rec, err := ps.Record(st.Params.Codec)
			if err != nil {
				s.log.Warn("cannot build configuration record", "track", track.ID, "error", err)
			}
			st.Params.Extradata = rec
		}
		s.tracks[track.ID] = st.Index
		s.streams = append(s.streams, st)
	}
}

// describeH264 fills the video parameters from the SPS. mediacommon's
// parser is only consulted for the geometry when ours rejects the SPS.
func (s *Session) describeH264(p *container.CodecParams, sps []byte) {
	info, err := codec.ParseSPS(sps)
	if err == nil {
		p.Width, p.Height = info.Width, info.Height
		p.PixelFormat = codec.PixelFormatName(info.ChromaFormatIdc, info.BitDepthLuma)
		p.ColorSpace = container.ColorSpace(info.MatrixCoefficients)
		num, den := info.FrameRate()
		p.AvgFrameRate = container.Rational{Num: num, Den: den}
		return
	}
	var mc h264.SPS
	if mcErr := mc.Unmarshal(sps); mcErr != nil {
		s.log.Warn("bad SPS", "codec", codec.H264, "error", err, "fallback_error", mcErr)
		return
	}
	p.Width, p.Height = mc.Width(), mc.Height()
}

func (s *Session) describeH265(p *container.CodecParams, sps []byte) {
	info, err := codec.ParseHEVCSPS(sps)
	if err == nil {
		p.Width, p.Height = info.Width, info.Height
		p.PixelFormat = codec.PixelFormatName(info.ChromaFormatIdc, int(info.BitDepthLumaMinus8)+8)
		return
	}
	var mc h265.SPS
	if mcErr := mc.Unmarshal(sps); mcErr != nil {
		s.log.Warn("bad SPS", "codec", codec.H265, "error", err, "fallback_error", mcErr)
		return
	}
	p.Width, p.Height = mc.Width(), mc.Height()
}

// fillFrameRates derives the frame rate of video streams without VUI
// timing from the spacing of their first two samples.
func (s *Session) fillFrameRates() {
	firstDTS := make(map[int]int64)
	for _, smp := range s.samples {
		p := &s.streams[smp.stream].Params
		if s.streams[smp.stream].MediaType != container.MediaTypeVideo || p.AvgFrameRate.Den != 0 {
			continue
		}
		prev, seen := firstDTS[smp.stream]
		if !seen {
			firstDTS[smp.stream] = smp.dts
			continue
		}
		if delta := smp.dts - prev; delta > 0 {
			p.AvgFrameRate = container.Rational{Num: p.TimeBase.Den, Den: int(delta) * p.TimeBase.Num}
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

// ReadPacket implements container.Session.
func (s *Session) ReadPacket(pkt *container.Packet) error {
	if s.pos >= len(s.samples) {
		return io.EOF
	}
	ref := s.samples[s.pos]
	if ref.frag != s.loaded {
		if err := s.loadPayloads(ref.frag); err != nil {
			return err
		}
	}

	pkt.Reset()
	pkt.StreamIndex = ref.stream
	pkt.PTS, pkt.DTS = ref.pts, ref.dts
	pkt.Keyframe = ref.keyframe
	pkt.Data = s.payloads[s.pos-s.frags[ref.frag].first]
	pkt.Pos = s.frags[ref.frag].offset
	s.pos++
	return nil
}

func (s *Session) loadPayloads(i int) error {
	parts, err := s.readFragment(i)
	if err != nil {
		return err
	}
	s.payloads = s.payloads[:0]
	flatten(parts, func(track *fmp4.PartTrack, _ int64, smp *fmp4.Sample) {
		if _, ok := s.tracks[track.ID]; ok {
			s.payloads = append(s.payloads, smp.Payload)
		}
	})
	s.loaded = i
	return nil
}

// Seek implements container.Session.
func (s *Session) Seek(streamIndex int, pts int64) error {
	first, target := -1, -1
	for i, smp := range s.samples {
		if smp.stream != streamIndex {
			continue
		}
		if first < 0 {
			first = i
		}
		if smp.keyframe && smp.pts <= pts {
			target = i
		}
	}
	if first < 0 {
		return fmt.Errorf("fmp4file: stream %d has no samples", streamIndex)
	}
	if target < 0 {
		target = first
	}
	s.log.Debug("seek", "stream", streamIndex, "pts", pts, "sample", target)
	s.pos = target
	return nil
}

// Close implements container.Session.
func (s *Session) Close() error {
	return s.f.Close()
}
