package pebble

import (
	"encoding/binary"
)

const (
	metaPrefix = 1
	rowPrefix  = 2
)

// Prefix|Table
func metaKey(table string) []byte {
	b := make([]byte, 0, len(table)+1)
	b = append(b, metaPrefix)
	b = append(b, table...)
	return b
}

// Prefix|Table|0|Seq
// table names never contain 0, and big-endian seq keeps rows in insert order
func rowKey(table string, seq uint64) []byte {
	b := make([]byte, 0, len(table)+10)
	b = append(b, rowPrefix)
	b = append(b, table...)
	b = append(b, 0)
	return binary.BigEndian.AppendUint64(b, seq)
}

// rowBounds returns the [lower, upper) range holding every row of table.
func rowBounds(table string) ([]byte, []byte) {
	lower := make([]byte, 0, len(table)+2)
	lower = append(lower, rowPrefix)
	lower = append(lower, table...)
	lower = append(lower, 0)
	upper := append([]byte(nil), lower...)
	upper[len(upper)-1] = 1
	return lower, upper
}
