package codec

// Parameter sets captured from real encoders.
var (
	sps720p = []byte{
		0x67, 0x64, 0x00, 0x1f, 0xac, 0xd9, 0x40, 0x50,
		0x05, 0xbb, 0xff, 0x00, 0x03, 0x00, 0x04, 0x6a,
		0x02, 0x02, 0x02, 0x80, 0x00, 0x01, 0xf4, 0x80,
		0x00, 0x5d, 0xc0, 0x07, 0x8c, 0x18, 0xcb,
	}
	sps256x192 = []byte{
		0x67, 0x4d, 0x40, 0x1f, 0xb9, 0x08, 0x08, 0x0c,
		0xd8, 0x0b, 0x50, 0x10, 0x10, 0x14, 0x00, 0x00,
		0x0f, 0xa4, 0x00, 0x02, 0xee, 0x03, 0x81, 0x80,
		0x04, 0x93, 0xc0, 0x02, 0x49, 0xe8, 0xa0, 0xc0,
		0x3a, 0x8e, 0x18, 0xc9,
	}
	pps264 = []byte{0x68, 0xeb, 0xe3, 0xcb, 0x22, 0xc0}

	// Main profile, 320x240, level 3.1.
	spsHEVC = []byte{
		0x42, 0x01,
		0x01,
		0x01,
		0x40, 0x00, 0x00, 0x00,
		0xB0, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x5D,
		0xA0, 0x0A, 0x08, 0x0F, 0x10,
	}
	vpsHEVC = []byte{0x40, 0x01, 0x0c, 0x01, 0xff, 0xff}
	ppsHEVC = []byte{0x44, 0x01, 0xc1, 0x72, 0xb4}
)
