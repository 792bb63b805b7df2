package mpegts

import "sort"

// accumulator buffers the transport packets of one PID until the unit they
// carry is complete.
type accumulator struct {
	pid     uint16
	psi     func(uint16) bool
	packets []*Packet
}

// add buffers p and returns the packets of the previous unit when p
// completes or starts one.
func (a *accumulator) add(p *Packet) []*Packet {
	if p.Header.TransportErrorIndicator {
		a.packets = nil
		return nil
	}
	if !p.Header.HasPayload {
		return nil
	}

	// A signaled discontinuity indicator makes a CC jump expected.
	if len(a.packets) > 0 && !p.Header.DiscontinuityIndicator {
		prev := a.packets[len(a.packets)-1].Header.ContinuityCounter
		if p.Header.ContinuityCounter != (prev+1)&0x0F {
			if p.Header.ContinuityCounter == prev {
				return nil // duplicate
			}
			a.packets = nil
		}
	}

	var flushed []*Packet
	if p.Header.PayloadUnitStartIndicator && len(a.packets) > 0 {
		flushed = a.packets
		a.packets = nil
	}
	if !p.Header.PayloadUnitStartIndicator && len(a.packets) == 0 {
		return flushed // continuation of a unit whose start was lost
	}
	a.packets = append(a.packets, p)

	if flushed == nil && a.psi(a.pid) && psiComplete(joinPayloads(a.packets)) {
		flushed = a.packets
		a.packets = nil
	}
	return flushed
}

func (a *accumulator) flush() []*Packet {
	flushed := a.packets
	a.packets = nil
	return flushed
}

// pool manages per-PID accumulators.
type pool struct {
	accs map[uint16]*accumulator
	psi  func(uint16) bool
}

func newPool(psi func(uint16) bool) *pool {
	return &pool{accs: make(map[uint16]*accumulator), psi: psi}
}

func (pp *pool) add(p *Packet) []*Packet {
	acc, ok := pp.accs[p.Header.PID]
	if !ok {
		acc = &accumulator{pid: p.Header.PID, psi: pp.psi}
		pp.accs[p.Header.PID] = acc
	}
	return acc.add(p)
}

// dump flushes every accumulator in file order of the unit start, so the
// tail of the input comes out the way it went in.
func (pp *pool) dump() [][]*Packet {
	var all [][]*Packet
	for _, acc := range pp.accs {
		if packets := acc.flush(); len(packets) > 0 {
			all = append(all, packets)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i][0].Offset < all[j][0].Offset
	})
	return all
}

func joinPayloads(packets []*Packet) []byte {
	var payload []byte
	for _, p := range packets {
		payload = append(payload, p.Payload...)
	}
	return payload
}
