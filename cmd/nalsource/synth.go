package main

import (
	"bufio"
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"

	"github.com/zsiec/nalsource/internal/captions"
	"github.com/zsiec/nalsource/internal/codec"
	"github.com/zsiec/nalsource/internal/mpegts"
)

// Placeholder 1280x720 High profile parameter sets and slice payloads. The
// output is structurally valid for demuxing and NAL tooling but does not
// decode to pictures.
var (
	synthSPS = []byte{
		0x67, 0x64, 0x00, 0x1f, 0xac, 0xd9, 0x40, 0x50,
		0x05, 0xbb, 0xff, 0x00, 0x03, 0x00, 0x04, 0x6a,
		0x02, 0x02, 0x02, 0x80, 0x00, 0x01, 0xf4, 0x80,
		0x00, 0x5d, 0xc0, 0x07, 0x8c, 0x18, 0xcb,
	}
	synthPPS   = []byte{0x68, 0xeb, 0xe3, 0xcb, 0x22, 0xc0}
	synthIDR   = []byte{0x65, 0x88, 0x84, 0x21, 0xa0}
	synthSlice = []byte{0x41, 0x9a, 0x21, 0x6c, 0x42}
)

const (
	synthPMTPID   = 0x1000
	synthVideoPID = 0x100
	synthTicks    = 3003 // 29.97 fps at 90 kHz
)

func runSynth(args []string) error {
	fs := flag.NewFlagSet("synth", flag.ContinueOnError)
	out := fs.String("o", "", "output .ts file")
	frames := fs.Int("frames", 150, "number of frames")
	gop := fs.Int("gop", 30, "frames per IDR")
	text := fs.String("text", "HELLO FROM NALSOURCE", "CC1 roll-up caption text, empty for none")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return errors.New("synth needs -o")
	}
	if *frames < 1 || *gop < 1 {
		return errors.New("synth: -frames and -gop must be positive")
	}

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	if err := writeSynth(bw, *frames, *gop, *text); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	slog.Info("synthetic stream written", "path", *out, "frames", *frames, "gop", *gop)
	return f.Close()
}

// writeSynth writes PAT and PMT ahead of every IDR, one video PES per frame
// and one caption pair per frame, padding once the caption is sent.
func writeSynth(w io.Writer, frames, gop int, text string) error {
	m := mpegts.NewMuxer(w)
	var cc []captions.CC608
	if text != "" {
		cc = captions.RollUp(text)
	}
	padding := captions.CC608{Field: captions.Field1, Data: [2]byte{0x80, 0x80}}

	for i := range frames {
		key := i%gop == 0
		if key {
			if err := m.WritePAT(1, synthPMTPID); err != nil {
				return err
			}
			if err := m.WritePMT(1, synthPMTPID, synthVideoPID, []mpegts.PMTElementaryStream{
				{ElementaryPID: synthVideoPID, StreamType: mpegts.StreamTypeH264},
			}); err != nil {
				return err
			}
		}

		pair := padding
		if i < len(cc) {
			pair = cc[i]
		}
		au := codec.AppendAnnexB(nil, []byte{codec.NALTypeAUD, 0xf0})
		if key {
			au = codec.AppendAnnexB(au, synthSPS, synthPPS)
		}
		au = codec.AppendAnnexB(au, captions.BuildSEI(codec.H264, []captions.CC608{pair}))
		if key {
			au = codec.AppendAnnexB(au, synthIDR)
		} else {
			au = codec.AppendAnnexB(au, synthSlice)
		}

		pts := int64(126000 + i*synthTicks)
		dts := pts
		if err := m.WritePES(synthVideoPID, 0xE0, &pts, &dts, au, key); err != nil {
			return err
		}
	}
	return nil
}
