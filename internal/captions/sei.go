package captions

import "github.com/zsiec/nalsource/internal/codec"

// Field1 carries CC1/CC2, Field2 carries CC3/CC4.
const (
	Field1 byte = 0
	Field2 byte = 1
)

// CC608 is one CEA-608 byte pair without parity.
type CC608 struct {
	Field byte
	Data  [2]byte
}

// Control returns a control-code pair for field 1.
func Control(cc1, cc2 byte) CC608 {
	return CC608{Field: Field1, Data: [2]byte{cc1, cc2}}
}

// TextPairs splits printable ASCII into field-1 pairs, padding an odd tail
// with a null.
func TextPairs(text string) []CC608 {
	var b []byte
	for _, r := range text {
		if r >= 0x20 && r <= 0x7E {
			b = append(b, byte(r))
		} else {
			b = append(b, '?')
		}
	}
	var out []CC608
	for i := 0; i < len(b); i += 2 {
		p := CC608{Field: Field1, Data: [2]byte{b[i], 0x80}}
		if i+1 < len(b) {
			p.Data[1] = b[i+1]
		}
		out = append(out, p)
	}
	return out
}

// RollUp returns the CEA-608 sequence that shows text on a two-row roll-up
// caption at the bottom row: RU2, EDM and PAC (each sent twice), the text,
// then a carriage return.
func RollUp(text string) []CC608 {
	seq := []CC608{
		Control(0x14, 0x25), Control(0x14, 0x25),
		Control(0x14, 0x2C), Control(0x14, 0x2C),
		Control(0x14, 0x60), Control(0x14, 0x60),
	}
	seq = append(seq, TextPairs(text)...)
	return append(seq, Control(0x14, 0x2D), Control(0x14, 0x2D))
}

// BuildSEI returns an SEI NAL unit, header included, carrying pairs as
// ATSC A/53 cc_data in a user_data_registered_itu_t_t35 message. At most
// 31 pairs fit in one message; the rest are dropped.
func BuildSEI(codecName string, pairs []CC608) []byte {
	if len(pairs) > 31 {
		pairs = pairs[:31]
	}
	payload := []byte{
		0xB5,       // itu_t_t35_country_code: United States
		0x00, 0x31, // provider: ATSC
		'G', 'A', '9', '4',
		0x03, // cc_data
		0x40 | byte(len(pairs)),
		0xFF,
	}
	for _, p := range pairs {
		payload = append(payload, 0xFC|p.Field&0x03, oddParity(p.Data[0]), oddParity(p.Data[1]))
	}
	payload = append(payload, 0xFF)

	msg := []byte{4, byte(len(payload))}
	msg = append(msg, payload...)
	msg = append(msg, 0x80)

	var nal []byte
	if codecName == codec.H265 {
		nal = []byte{codec.HEVCNALSEIPrefix << 1, 0x01}
	} else {
		nal = []byte{codec.NALTypeSEI}
	}
	return append(nal, addEmulationPrevention(msg)...)
}

func oddParity(b byte) byte {
	b &= 0x7F
	ones := 0
	for v := b; v != 0; v >>= 1 {
		ones += int(v & 1)
	}
	if ones%2 == 0 {
		return b | 0x80
	}
	return b
}

func addEmulationPrevention(data []byte) []byte {
	out := make([]byte, 0, len(data)+4)
	zeros := 0
	for _, b := range data {
		if zeros >= 2 && b <= 0x03 {
			out = append(out, 0x03)
			zeros = 0
		}
		out = append(out, b)
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}
