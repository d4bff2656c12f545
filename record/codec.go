package record

import "encoding/binary"

// EncodeKey appends the big-endian form of id to prefix. Big-endian keeps
// byte order equal to numeric order for any fixed prefix.
func EncodeKey(prefix []byte, id ID) []byte {
	k := make([]byte, len(prefix)+8)
	copy(k, prefix)
	binary.BigEndian.PutUint64(k[len(prefix):], uint64(id))
	return k
}

// DecodeID reads the id back from the last 8 bytes of a key.
func DecodeID(key []byte) ID {
	return ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}

// NextPrefix returns the lexicographically next byte string after p: the
// shortest string greater than every key starting with p. Returns nil if no
// such string exists (p is all 0xff).
func NextPrefix(p []byte) []byte {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] != 0xff {
			np := make([]byte, i+1)
			copy(np, p[:i+1])
			np[i]++
			return np
		}
	}
	return nil
}

// Counters persist as signed 64-bit little-endian values.

func EncodeCounter(v int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}

func DecodeCounter(b []byte) int64 {
	if len(b) < 8 {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b))
}

// EncodeTrackerValue and DecodeTrackerValue codec the oplog key tracker's
// little-endian 32-bit payload length.

func EncodeTrackerValue(n int) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(n))
	return b
}

func DecodeTrackerValue(b []byte) int {
	if len(b) < 4 {
		return 0
	}
	return int(binary.LittleEndian.Uint32(b))
}
