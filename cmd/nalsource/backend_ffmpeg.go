//go:build ffmpeg

package main

import "github.com/zsiec/nalsource/container/ffmpeg"

func init() {
	extraBackends["ffmpeg"] = ffmpeg.Opener
}
