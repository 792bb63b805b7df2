package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/nalsource/internal/captions"
	"github.com/zsiec/nalsource/internal/codec"
	"github.com/zsiec/nalsource/internal/config"
	"github.com/zsiec/nalsource/source"
)

// perFile runs fn for every file with at most cfg.Parallel files open, then
// writes the outputs in argument order.
func perFile(ctx context.Context, cfg config.Config, files []string, stdout io.Writer, fn func(ctx context.Context, src *source.Source, w *strings.Builder) error) error {
	if len(files) == 0 {
		return errors.New("no input files")
	}
	reg, err := newRegistry(cfg)
	if err != nil {
		return err
	}
	defer reg.Close()

	out := make([]strings.Builder, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Parallel)
	for i, path := range files {
		g.Go(func() error {
			e, err := reg.Open(ctx, path)
			if err != nil {
				return err
			}
			defer reg.Release(e)
			if err := fn(ctx, e.Source, &out[i]); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i := range out {
		if _, err := io.WriteString(stdout, out[i].String()); err != nil {
			return err
		}
	}
	return nil
}

func runInfo(ctx context.Context, cfg config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	commonFlags(fs, &cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return perFile(ctx, cfg, fs.Args(), stdout, func(_ context.Context, src *source.Source, w *strings.Builder) error {
		info := src.StreamInfo()
		fmt.Fprintf(w, "%s\n", src.Path())
		fmt.Fprintf(w, "  stream     %d\n", info.Index)
		fmt.Fprintf(w, "  codec      %s\n", info.Codec)
		fmt.Fprintf(w, "  size       %dx%d\n", info.Width, info.Height)
		fmt.Fprintf(w, "  pixels     %s\n", info.PixelFormat)
		if info.FrameRate < 0 {
			fmt.Fprintf(w, "  frame rate unknown\n")
		} else {
			fmt.Fprintf(w, "  frame rate %.3f\n", info.FrameRate)
		}
		fmt.Fprintf(w, "  time base  %d/%d\n", info.TimeBase.Num, info.TimeBase.Den)
		fmt.Fprintf(w, "  duration   %.3fs\n", float64(info.Duration)/1e6)
		fmt.Fprintf(w, "  colour     %s\n", info.ColorConversion)
		fmt.Fprintf(w, "  frames     %d\n", src.FrameCount())
		fmt.Fprintf(w, "  keyframes  %d\n", len(src.SeekIndex()))
		if maxPTS, err := src.MaxPTS(); err == nil {
			fmt.Fprintf(w, "  max pts    %d\n", maxPTS)
		}
		sets, err := src.ParameterSets()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  param sets %d\n", len(sets))
		return nil
	})
}

func runIndex(ctx context.Context, cfg config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	commonFlags(fs, &cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return perFile(ctx, cfg, fs.Args(), stdout, func(_ context.Context, src *source.Source, w *strings.Builder) error {
		tb := src.StreamInfo().TimeBase
		fmt.Fprintf(w, "# %s frames=%d\n", src.Path(), src.FrameCount())
		for _, e := range src.SeekIndex() {
			fmt.Fprintf(w, "%d\t%d\t%.3f\n", e.Frame, e.PTS, seconds(e.PTS, tb.Num, tb.Den))
		}
		return nil
	})
}

func runCaptions(ctx context.Context, cfg config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("captions", flag.ContinueOnError)
	commonFlags(fs, &cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return perFile(ctx, cfg, fs.Args(), stdout, func(ctx context.Context, src *source.Source, w *strings.Builder) error {
		info := src.StreamInfo()
		ex := captions.New(info.Codec, nil)
		var lastPTS int64
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			nalu, pts, err := src.NextNALUnit()
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, source.ErrMalformedPayload) {
				continue
			}
			if err != nil {
				return err
			}
			lastPTS = pts
			for _, f := range ex.Feed(nalu, pts) {
				fmt.Fprintf(w, "%s\tCC%d\t%.3f\t%q\n", src.Path(), f.Channel, seconds(f.PTS, info.TimeBase.Num, info.TimeBase.Den), f.Text)
			}
		}
		for _, f := range ex.Flush(lastPTS) {
			fmt.Fprintf(w, "%s\tCC%d\t%.3f\t%q\n", src.Path(), f.Channel, seconds(f.PTS, info.TimeBase.Num, info.TimeBase.Den), f.Text)
		}
		return src.Err()
	})
}

func runDump(ctx context.Context, cfg config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	commonFlags(fs, &cfg)
	out := fs.String("o", "-", "output file, - for stdout")
	from := fs.Int("from", 0, "first frame to write; output starts at the keyframe before it")
	limit := fs.Int("frames", 0, "stop after this many frames, 0 for all")
	fs.BoolVar(&cfg.StartCodes, "start-codes", cfg.StartCodes, "write Annex B start codes instead of 4-byte lengths")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("dump takes exactly one input file")
	}

	reg, err := newRegistry(cfg)
	if err != nil {
		return err
	}
	defer reg.Close()
	e, err := reg.Open(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	src := e.Source

	dst := stdout
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		dst = f
	}
	bw := bufio.NewWriter(dst)

	frames, err := dumpStream(ctx, src, bw, *from, *limit, cfg.StartCodes)
	if err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	slog.Info("dump complete", "path", src.Path(), "frames", frames, "output", *out)
	return nil
}

// dumpStream writes the parameter sets from the extradata followed by every
// NAL unit from the keyframe at or before frame from. A malformed packet
// tail is skipped with a warning.
func dumpStream(ctx context.Context, src *source.Source, w io.Writer, from, limit int, startCodes bool) (int, error) {
	appendNALs := codec.AppendLengthPrefixed
	if startCodes {
		appendNALs = codec.AppendAnnexB
	}

	sets, err := src.ParameterSets()
	if err != nil {
		slog.Warn("ignoring unreadable extradata", "path", src.Path(), "error", err)
	}
	if len(sets) > 0 {
		if _, err := w.Write(appendNALs(nil, sets...)); err != nil {
			return 0, err
		}
	}

	if from > 0 {
		pts, landing := src.ClosestSeekableBefore(from)
		if err := src.SeekToPTS(pts); err != nil {
			return 0, err
		}
		slog.Debug("seeked for dump", "target", from, "landing", landing, "pts", pts)
	}

	var (
		buf     []byte
		frames  int
		lastPTS int64
		started bool
	)
	for {
		if err := ctx.Err(); err != nil {
			return frames, err
		}
		nalu, pts, err := src.NextNALUnit()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, source.ErrMalformedPayload) {
			slog.Warn("skipping malformed packet tail", "path", src.Path(), "pts", pts, "error", err)
			continue
		}
		if err != nil {
			return frames, err
		}
		if !started || pts != lastPTS {
			if limit > 0 && frames == limit {
				break
			}
			frames++
			lastPTS, started = pts, true
		}
		buf = appendNALs(buf[:0], nalu)
		if _, err := w.Write(buf); err != nil {
			return frames, err
		}
	}
	return frames, src.Err()
}

func seconds(pts int64, num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(pts) * float64(num) / float64(den)
}
