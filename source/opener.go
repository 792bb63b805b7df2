package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/zsiec/nalsource/container"
	"github.com/zsiec/nalsource/container/fmp4file"
	"github.com/zsiec/nalsource/container/tsfile"
)

// Backend names a container implementation.
type Backend string

const (
	BackendAuto Backend = "auto"
	BackendTS   Backend = "ts"
	BackendFMP4 Backend = "fmp4"
)

// ParseBackend accepts the backend names used on the command line and in
// the environment. The empty string means auto.
func ParseBackend(name string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(name))); b {
	case "", BackendAuto:
		return BackendAuto, nil
	case BackendTS, BackendFMP4:
		return b, nil
	default:
		return "", fmt.Errorf("unknown backend %q", name)
	}
}

// OpenerFor returns the opener of one backend. BackendAuto picks per file,
// see DefaultOpener.
func OpenerFor(b Backend, log *slog.Logger) (container.Opener, error) {
	if log == nil {
		log = slog.Default()
	}
	switch b {
	case "", BackendAuto:
		return DefaultOpener(log), nil
	case BackendTS:
		return tsfile.Opener(log), nil
	case BackendFMP4:
		return fmp4file.Opener(log), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", b)
	}
}

// DefaultOpener picks the backend from the file extension and falls back
// to sniffing the first bytes of the file.
func DefaultOpener(log *slog.Logger) container.Opener {
	if log == nil {
		log = slog.Default()
	}
	ts := tsfile.Opener(log)
	mp4 := fmp4file.Opener(log)
	return func(ctx context.Context, path string) (container.Session, error) {
		b, err := detectBackend(path)
		if err != nil {
			return nil, err
		}
		log.Debug("selected backend", "path", path, "backend", b)
		if b == BackendTS {
			return ts(ctx, path)
		}
		return mp4(ctx, path)
	}
}

func detectBackend(path string) (Backend, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".m2ts", ".mts", ".trp":
		return BackendTS, nil
	case ".mp4", ".m4s", ".m4v", ".cmfv", ".mov":
		return BackendFMP4, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	head := make([]byte, 2*188)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("sniff %s: %w", path, err)
	}
	return sniff(head[:n])
}

func sniff(head []byte) (Backend, error) {
	if len(head) >= 8 {
		switch {
		case bytes.Equal(head[4:8], []byte("ftyp")), bytes.Equal(head[4:8], []byte("styp")):
			return BackendFMP4, nil
		}
	}
	if len(head) > 188 && head[0] == 0x47 && head[188] == 0x47 {
		return BackendTS, nil
	}
	if len(head) > 0 && len(head) <= 188 && head[0] == 0x47 {
		return BackendTS, nil
	}
	return "", fmt.Errorf("unrecognised container format")
}
