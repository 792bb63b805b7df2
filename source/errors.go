package source

import "errors"

// Open failures all wrap ErrOpen; the more specific causes below are joined
// to it so callers can tell them apart with errors.Is.
var (
	ErrOpen           = errors.New("source: open failed")
	ErrNotRegularFile = errors.New("source: not a regular file")
	ErrNoVideoStream  = errors.New("source: no video stream")
)

var (
	// ErrNotOpen is returned by every operation on a closed Source.
	ErrNotOpen = errors.New("source: not open")

	// ErrSeek is returned when the container rejects a seek. The read
	// position and end-of-stream state are unchanged.
	ErrSeek = errors.New("source: seek failed")

	// ErrCorruptConfigRecord is returned when extradata is shorter than the
	// counts and lengths it declares.
	ErrCorruptConfigRecord = errors.New("source: corrupt configuration record")

	// ErrMalformedPayload is returned when a NAL length prefix is truncated
	// or runs past the end of its packet. The rest of the packet is dropped.
	ErrMalformedPayload = errors.New("source: malformed NAL unit length")

	// ErrTimeBaseUndefined is returned by MaxPTS when the stream time base
	// has a zero numerator.
	ErrTimeBaseUndefined = errors.New("source: time base undefined")
)
