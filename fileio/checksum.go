package fileio

import (
	"encoding/binary"
	"encoding/hex"
	"hash/crc32"
)

// UpdateCRC32 incrementally calculates CRC32 checksum
func UpdateCRC32(crc uint32, data []byte) uint32 {
	return crc32.Update(crc, crc32.IEEETable, data)
}

// CRC32Hex formats checksum the way it is logged
func CRC32Hex(crc uint32) string {
	return hex.EncodeToString(binary.BigEndian.AppendUint32(make([]byte, 0, 4), crc))
}
