package source

import (
	"context"
	"slices"
	"sort"
)

// KeyframeEntry locates one keyframe: its ordinal in decode order and its
// presentation timestamp in stream time-base units.
type KeyframeEntry struct {
	Frame int
	PTS   int64
}

// SeekIndex lists the seekable frames of a stream in ascending frame order.
// The first entry is always frame 0.
type SeekIndex []KeyframeEntry

// Clone returns an independent copy of the index.
func (ix SeekIndex) Clone() SeekIndex {
	return slices.Clone(ix)
}

// FindSeekTarget returns the PTS to seek to for reaching targetFrame and the
// frame a decoder will land on: the last entry at or before targetFrame, or
// the first entry when none is.
func (ix SeekIndex) FindSeekTarget(targetFrame int) (pts int64, frame int) {
	if len(ix) == 0 {
		return 0, 0
	}
	i := sort.Search(len(ix), func(i int) bool { return ix[i].Frame > targetFrame })
	if i == 0 {
		return ix[0].PTS, ix[0].Frame
	}
	return ix[i-1].PTS, ix[i-1].Frame
}

// scan reads the stream to its end from the current position, counting
// frames and recording keyframes. When the first packet is not flagged as a
// keyframe an entry for frame 0 is added anyway, since the start of the
// stream can always be sought to.
func scan(ctx context.Context, it *iterator) (int, SeekIndex, error) {
	var (
		frames int
		index  SeekIndex
	)
	for {
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}
		if !it.advance() {
			break
		}
		if it.pkt.Keyframe || frames == 0 {
			index = append(index, KeyframeEntry{Frame: frames, PTS: it.pkt.PTS})
		}
		frames++
	}
	if it.err != nil {
		return 0, nil, it.err
	}
	if len(index) == 0 {
		index = SeekIndex{{Frame: 0, PTS: 0}}
	}
	return frames, index, nil
}
