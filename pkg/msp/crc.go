package msp

// crc8 updates a CRC8/DVB-S2 checksum with one byte.
func crc8(crc, b byte) byte {
	crc ^= b
	for i := 0; i < 8; i++ {
		if crc&0x80 != 0 {
			crc = (crc << 1) ^ 0xd5
		} else {
			crc <<= 1
		}
	}
	return crc
}

// crc8Sum computes the CRC8/DVB-S2 checksum of a byte sequence.
func crc8Sum(bs []byte) byte {
	var crc byte
	for _, b := range bs {
		crc = crc8(crc, b)
	}
	return crc
}
