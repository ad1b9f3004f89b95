package geotile

import "hash/crc32"

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// crc32c computes the CRC32C (Castagnoli) checksum of data, per spec §6.1.
func crc32c(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}
