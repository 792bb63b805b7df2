package source

import (
	"errors"
	"testing"
)

func FuzzParseParameterSets(f *testing.F) {
	f.Add(hvcC(1, 0xA0, 0, 2, 0, 3, 0x40, 0x01, 0x0c, 0, 1, 0x42))
	f.Add(hvcC(1, 0xA0, 1, 0))
	f.Add([]byte{1, 0x64, 0x00, 0x1f, 0xff, 0xe1, 0, 2, 0x67, 0x64, 1, 0, 2, 0x68, 0xee})
	f.Add([]byte{1})

	f.Fuzz(func(t *testing.T, data []byte) {
		for _, parse := range []func([]byte) ([][]byte, error){ParseParameterSets, parseAVCParameterSets} {
			sets, err := parse(data)
			if err != nil {
				if !errors.Is(err, ErrCorruptConfigRecord) {
					t.Fatalf("error %v does not wrap ErrCorruptConfigRecord", err)
				}
				continue
			}
			total := 0
			for _, s := range sets {
				total += len(s)
			}
			if total > len(data) {
				t.Fatalf("parameter sets hold %d bytes, record has %d", total, len(data))
			}
		}
	})
}

func FuzzReadLengthPrefixed(f *testing.F) {
	f.Add(lp([]byte{0x65, 0x88}, []byte{0x06}))
	f.Add([]byte{0, 0, 0, 9, 1})
	f.Add([]byte{0xff, 0xff, 0xff, 0xff})
	f.Add([]byte{0, 0})

	f.Fuzz(func(t *testing.T, data []byte) {
		off := 0
		for off < len(data) {
			nalu, next, err := readLengthPrefixed(data, off)
			if err != nil {
				if !errors.Is(err, ErrMalformedPayload) {
					t.Fatalf("error %v does not wrap ErrMalformedPayload", err)
				}
				return
			}
			if next <= off || next > len(data) {
				t.Fatalf("next offset %d out of range (off %d, len %d)", next, off, len(data))
			}
			if len(nalu) != next-off-nalLengthSize {
				t.Fatalf("nal unit length %d, want %d", len(nalu), next-off-nalLengthSize)
			}
			off = next
		}
	})
}
