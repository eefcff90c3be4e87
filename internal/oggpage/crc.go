package oggpage

import "encoding/binary"

const crcPolynomial = 0x04C11DB7

var crcTable = func() [256]uint32 {
	var t [256]uint32
	for i := range t {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if r&0x80000000 != 0 {
				r = (r << 1) ^ crcPolynomial
			} else {
				r <<= 1
			}
		}
		t[i] = r
	}
	return t
}()

// Checksum computes the page CRC over page with the checksum field treated as
// zero. The CRC is MSB-first, unreflected, with no final xor.
func Checksum(page []byte) uint32 {
	var crc uint32
	for i, b := range page {
		if i >= checksumOffset && i < checksumOffset+4 {
			b = 0
		}
		crc = (crc << 8) ^ crcTable[byte(crc>>24)^b]
	}
	return crc
}

// Verify reports whether the stored checksum of page matches its contents.
func Verify(page []byte) bool {
	if len(page) < headerSize {
		return false
	}
	return binary.LittleEndian.Uint32(page[checksumOffset:]) == Checksum(page)
}
