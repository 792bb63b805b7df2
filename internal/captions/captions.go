// Package captions decodes CEA-608 and CEA-708 closed captions carried in
// the SEI NAL units of an H.264 or H.265 stream.
package captions

import (
	"log/slog"

	"github.com/zsiec/ccx"

	"github.com/zsiec/nalsource/internal/codec"
)

// Channels 1-4 are CEA-608 CC1-CC4; CEA-708 services 1-6 are reported as
// channels 7-12.
const serviceChannelOffset = 6

// Extractor turns SEI NAL units into caption frames. Feed it every NAL unit
// of the stream in decode order. It is not safe for concurrent use.
type Extractor struct {
	log   *slog.Logger
	codec string

	dec608 map[int]*ccx.CEA608Decoder
	svc708 map[int]*ccx.CEA708Service
	dtvcc  []byte

	frame   int64
	lastPTS int64
	started bool
	ctrl    ctrlFilter
}

// New returns an Extractor for a stream of the given codec ("h264" or
// "h265").
func New(codecName string, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	e := &Extractor{
		log:    log.With("component", "captions"),
		codec:  codecName,
		dec608: make(map[int]*ccx.CEA608Decoder, 4),
		svc708: make(map[int]*ccx.CEA708Service, 6),
	}
	for ch := 1; ch <= 4; ch++ {
		e.dec608[ch] = ccx.NewCEA608Decoder()
	}
	for svc := 1; svc <= 6; svc++ {
		e.svc708[svc] = ccx.NewCEA708Service()
	}
	return e
}

// Feed consumes one NAL unit with the PTS of its access unit and returns
// the caption frames it completed. NAL units other than SEI are only used
// to track access-unit boundaries.
func (e *Extractor) Feed(nalu []byte, pts int64) []*ccx.CaptionFrame {
	if !e.started || pts != e.lastPTS {
		e.frame++
		e.lastPTS = pts
		e.started = true
	}
	if !codec.IsSEI(e.codec, nalu) {
		return nil
	}
	cd := ccx.ExtractCaptions(nalu)
	if cd == nil {
		return nil
	}

	var out []*ccx.CaptionFrame
	for _, pair := range cd.CC608Pairs {
		cc1, cc2 := pair.Data[0], pair.Data[1]
		if !e.ctrl.keep(int(pair.Field), [2]byte{cc1, cc2}, e.frame) {
			continue
		}
		dec := e.dec608[pair.Channel]
		if dec == nil {
			continue
		}
		if text := dec.Decode(cc1, cc2); text != "" {
			frame := &ccx.CaptionFrame{PTS: pts, Text: text, Channel: pair.Channel}
			frame.Regions = dec.StyledRegions()
			out = append(out, frame)
		}
	}

	for _, t := range cd.DTVCC {
		if t.Start {
			out = e.drainDTVCC(out, pts)
			e.dtvcc = e.dtvcc[:0]
		}
		e.dtvcc = append(e.dtvcc, t.Data[0], t.Data[1])
	}
	return out
}

// Flush decodes a DTVCC packet still pending at end of stream.
func (e *Extractor) Flush(pts int64) []*ccx.CaptionFrame {
	out := e.drainDTVCC(nil, pts)
	e.dtvcc = e.dtvcc[:0]
	return out
}

func (e *Extractor) drainDTVCC(out []*ccx.CaptionFrame, pts int64) []*ccx.CaptionFrame {
	if len(e.dtvcc) < 1 {
		return out
	}
	size := ccx.DTVCCPacketSize(e.dtvcc[0])
	if len(e.dtvcc) < size {
		e.log.Debug("incomplete DTVCC packet", "have", len(e.dtvcc), "want", size)
		return out
	}
	for _, block := range ccx.ParseDTVCCPacket(e.dtvcc[:size]) {
		svc := e.svc708[block.ServiceNum]
		if svc == nil || !svc.ProcessBlock(block.Data) {
			continue
		}
		if text := svc.DisplayText(); text != "" {
			channel := block.ServiceNum + serviceChannelOffset
			frame := &ccx.CaptionFrame{PTS: pts, Text: text, Channel: channel}
			frame.Regions = svc.StyledRegions()
			out = append(out, frame)
		}
	}
	return out
}

// ctrlFilter drops the redundant second transmission of a CEA-608 control
// code pair, which broadcasters send twice in consecutive frames.
type ctrlFilter struct {
	last    [2][2]byte
	wasCtrl [2]bool
	frame   [2]int64
}

func (c *ctrlFilter) keep(field int, cc [2]byte, frame int64) bool {
	if field < 0 || field > 1 {
		return true
	}
	if cc[0] < 0x10 || cc[0] > 0x1F {
		c.wasCtrl[field] = false
		return true
	}
	if c.wasCtrl[field] && c.last[field] == cc && frame-c.frame[field] <= 2 {
		c.wasCtrl[field] = false
		return false
	}
	c.last[field] = cc
	c.wasCtrl[field] = true
	c.frame[field] = frame
	return true
}
