package mpegts

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// Demuxer reads MPEG-TS packets from a reader and produces DemuxerData
// containing parsed PAT, PMT and PES units.
type Demuxer struct {
	ctx        context.Context
	log        *slog.Logger
	reader     io.Reader
	readBuf    []byte
	offset     int64
	programMap programMap
	pool       *pool
	pending    []*DemuxerData
	eof        bool
}

// NewDemuxer creates a demuxer reading from r.
func NewDemuxer(ctx context.Context, r io.Reader, opts ...func(*Demuxer)) *Demuxer {
	d := &Demuxer{
		ctx:        ctx,
		log:        slog.Default(),
		reader:     r,
		readBuf:    make([]byte, PacketSize),
		programMap: make(programMap),
	}
	d.pool = newPool(d.programMap.isPSI)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DemuxerOptLogger sets the logger used for skipped-packet diagnostics.
func DemuxerOptLogger(log *slog.Logger) func(*Demuxer) {
	return func(d *Demuxer) {
		if log != nil {
			d.log = log
		}
	}
}

// DemuxerOptBaseOffset sets the file offset of the first byte of the
// reader, so reported offsets match the file when r is a section of it.
func DemuxerOptBaseOffset(base int64) func(*Demuxer) {
	return func(d *Demuxer) {
		d.offset = base
	}
}

// NextData returns the next parsed unit from the stream. It returns io.EOF
// once all data has been consumed. Corrupt packets and sections are skipped.
func (d *Demuxer) NextData() (*DemuxerData, error) {
	for {
		if len(d.pending) > 0 {
			data := d.pending[0]
			d.pending = d.pending[1:]
			return data, nil
		}
		if d.eof {
			return nil, io.EOF
		}
		if err := d.ctx.Err(); err != nil {
			return nil, err
		}

		offset := d.offset
		_, err := io.ReadFull(d.reader, d.readBuf)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				d.eof = true
				for _, packets := range d.pool.dump() {
					d.process(packets)
				}
				continue
			}
			return nil, err
		}
		d.offset += PacketSize

		pkt, err := parsePacket(d.readBuf)
		if err != nil {
			d.log.Debug("skipping corrupt packet", "offset", offset, "error", err)
			continue
		}
		pkt.Offset = offset

		if flushed := d.pool.add(pkt); flushed != nil {
			d.process(flushed)
		}
	}
}

// process parses one accumulated unit and queues the results.
func (d *Demuxer) process(packets []*Packet) {
	first := packets[0]
	pid := first.Header.PID
	payload := joinPayloads(packets)
	if len(payload) == 0 {
		return
	}

	if d.programMap.isPSI(pid) {
		results, err := parsePSI(payload, pid, first.Offset)
		if err != nil {
			d.log.Debug("skipping corrupt section", "pid", pid, "offset", first.Offset, "error", err)
		}
		for _, r := range results {
			if r.PAT != nil {
				for _, p := range r.PAT.Programs {
					d.programMap[p.ProgramMapID] = true
				}
			}
		}
		d.pending = append(d.pending, results...)
		return
	}

	if !isPESPayload(payload) {
		return
	}
	pes, err := parsePES(payload)
	if err != nil {
		d.log.Debug("skipping corrupt PES", "pid", pid, "offset", first.Offset, "error", err)
		return
	}
	d.pending = append(d.pending, &DemuxerData{
		PID:          pid,
		Offset:       first.Offset,
		PES:          pes,
		RandomAccess: first.Header.RandomAccessIndicator,
	})
}
