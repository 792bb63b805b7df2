// Command nalsource inspects H.264/H.265 video in MPEG-TS and fragmented
// MP4 files: stream info, keyframe index, elementary stream dumps and
// embedded closed captions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/zsiec/nalsource/container"
	"github.com/zsiec/nalsource/internal/config"
	"github.com/zsiec/nalsource/internal/registry"
	"github.com/zsiec/nalsource/source"
)

var version = "dev"

// extraBackends holds backends compiled in with build tags.
var extraBackends = map[string]func(*slog.Logger) container.Opener{}

const usage = `usage: nalsource <command> [flags] <file>...

commands:
  info      print the video stream description of each file
  index     print the keyframe index of each file
  dump      write the video elementary stream of one file
  captions  print CEA-608/708 captions carried in SEI messages
  synth     write a synthetic H.264 transport stream with captions
  version   print the version
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, stopping", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		slog.Error("nalsource failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, cmd string, args []string, stdout io.Writer) error {
	switch cmd {
	case "info":
		return runInfo(ctx, cfg, args, stdout)
	case "index":
		return runIndex(ctx, cfg, args, stdout)
	case "dump":
		return runDump(ctx, cfg, args, stdout)
	case "captions":
		return runCaptions(ctx, cfg, args, stdout)
	case "synth":
		return runSynth(args)
	case "version":
		fmt.Fprintln(stdout, version)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// commonFlags registers the flags every file command shares. Flags default
// to the environment configuration.
func commonFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "container backend: auto, ts, fmp4 or ffmpeg")
	fs.IntVar(&cfg.Parallel, "parallel", cfg.Parallel, "files processed at once")
}

func resolveOpener(name string, log *slog.Logger) (container.Opener, error) {
	if newFn, ok := extraBackends[name]; ok {
		return newFn(log), nil
	}
	if name == "ffmpeg" {
		return nil, errors.New("backend ffmpeg: binary built without the ffmpeg tag")
	}
	b, err := source.ParseBackend(name)
	if err != nil {
		return nil, err
	}
	return source.OpenerFor(b, log)
}

func newRegistry(cfg config.Config) (*registry.Manager, error) {
	log := slog.Default()
	opener, err := resolveOpener(cfg.Backend, log)
	if err != nil {
		return nil, err
	}
	return registry.NewManager(log, source.WithLogger(log), source.WithOpener(opener)), nil
}
