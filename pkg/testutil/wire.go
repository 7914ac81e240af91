package testutil

import (
	"math"

	"github.com/jackc/pgio"
)

// CopySignature is the 11-byte signature that opens a binary COPY stream.
const CopySignature = "PGCOPY\n\xff\r\n\x00"

// CopyHeader returns a binary COPY header with the given flags and no
// header extension.
func CopyHeader(flags uint32) []byte {
	buf := append([]byte(nil), CopySignature...)
	buf = pgio.AppendUint32(buf, flags)
	return pgio.AppendInt32(buf, 0)
}

// CopyRow returns one binary COPY tuple per value, each with a field count
// of 1. A nil value is encoded as NULL.
func CopyRow(values ...[]byte) []byte {
	var buf []byte
	for _, v := range values {
		buf = pgio.AppendInt16(buf, 1)
		buf = appendValue(buf, v)
	}
	return buf
}

// CopyTrailer returns the end-of-data marker.
func CopyTrailer() []byte {
	return pgio.AppendInt16(nil, -1)
}

// Concat joins chunks into one.
func Concat(chunks ...[]byte) []byte {
	var buf []byte
	for _, c := range chunks {
		buf = append(buf, c...)
	}
	return buf
}

// RecordField is one field of a binary record value.
type RecordField struct {
	OID   uint32
	Value []byte
}

// Record encodes fields in the binary record format. A nil Value is NULL.
func Record(fields ...RecordField) []byte {
	buf := pgio.AppendInt32(nil, int32(len(fields)))
	for _, f := range fields {
		buf = pgio.AppendUint32(buf, f.OID)
		buf = appendValue(buf, f.Value)
	}
	return buf
}

func appendValue(buf, v []byte) []byte {
	if v == nil {
		return pgio.AppendInt32(buf, -1)
	}
	buf = pgio.AppendInt32(buf, int32(len(v)))
	return append(buf, v...)
}

// Int2 encodes an int2 value.
func Int2(v int16) []byte { return pgio.AppendInt16(nil, v) }

// Int4 encodes an int4 value.
func Int4(v int32) []byte { return pgio.AppendInt32(nil, v) }

// Int8 encodes an int8 value.
func Int8(v int64) []byte { return pgio.AppendInt64(nil, v) }

// Float8 encodes a float8 value.
func Float8(v float64) []byte { return pgio.AppendUint64(nil, math.Float64bits(v)) }

// Text encodes a text value. The empty string encodes as a zero-length
// value, not NULL.
func Text(s string) []byte { return append([]byte{}, s...) }
