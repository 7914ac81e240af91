// Package strings provides pooled, low-allocation string building for pgstream,
// including the SQL builder used to render projections and COPY commands.
package strings

import (
	"fmt"
	"sync"
	"unsafe"
)

// bytesToString converts a byte slice to a string without allocation.
// The string shares memory with b, which must not be modified afterwards.
func bytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// builder is an append-only byte buffer whose String does not copy.
type builder struct {
	buf []byte
}

func newBuilder(capacity int) *builder {
	return &builder{
		buf: make([]byte, 0, capacity),
	}
}

func (b *builder) WriteString(s string) {
	b.buf = append(b.buf, s...)
}

func (b *builder) WriteByte(c byte) {
	b.buf = append(b.buf, c)
}

// Write implements io.Writer
func (b *builder) Write(p []byte) (n int, err error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// String shares memory with the builder; clone it before the builder is reused.
func (b *builder) String() string {
	return bytesToString(b.buf)
}

func (b *builder) Len() int {
	return len(b.buf)
}

func (b *builder) Reset() {
	b.buf = b.buf[:0]
}

func clone(s string) string {
	if len(s) == 0 {
		return ""
	}
	b := make([]byte, len(s))
	copy(b, s)
	return bytesToString(b)
}

// Global pools for different string building scenarios
var (
	// Small strings (< 1KB): error messages, identifiers
	smallBuilderPool = &sync.Pool{
		New: func() interface{} {
			return newBuilder(1024)
		},
	}

	// Medium strings (1KB - 16KB): projections of wide records
	mediumBuilderPool = &sync.Pool{
		New: func() interface{} {
			return newBuilder(16 * 1024)
		},
	}

	// Large strings (16KB+): very large user queries
	largeBuilderPool = &sync.Pool{
		New: func() interface{} {
			return newBuilder(64 * 1024)
		},
	}
)

type builderSize int

const (
	small  builderSize = iota // < 1KB
	medium                    // 1KB - 16KB
	large                     // 16KB+
)

func poolFor(size builderSize) *sync.Pool {
	switch size {
	case medium:
		return mediumBuilderPool
	case large:
		return largeBuilderPool
	default:
		return smallBuilderPool
	}
}

func sizeFor(estimatedLength int) builderSize {
	switch {
	case estimatedLength > 16*1024:
		return large
	case estimatedLength > 1024:
		return medium
	default:
		return small
	}
}

func getBuilder(size builderSize) *builder {
	b := poolFor(size).Get().(*builder)
	b.Reset()
	return b
}

func putBuilder(b *builder, size builderSize) {
	if b == nil {
		return
	}
	b.Reset()
	poolFor(size).Put(b)
}

// Sprintf provides a pooled alternative to fmt.Sprintf
func Sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}

	size := sizeFor(len(format) + len(args)*16)
	b := getBuilder(size)
	defer putBuilder(b, size)

	fmt.Fprintf(b, format, args...)

	return clone(b.String())
}

// SQLBuilder provides optimized SQL query building
type SQLBuilder struct {
	builder *builder
	size    builderSize
}

// NewSQLBuilder creates a new SQL builder
func NewSQLBuilder(estimatedLength int) *SQLBuilder {
	size := sizeFor(estimatedLength)
	return &SQLBuilder{
		builder: getBuilder(size),
		size:    size,
	}
}

// WriteQuery writes a SQL query part verbatim
func (sb *SQLBuilder) WriteQuery(query string) *SQLBuilder {
	sb.builder.WriteString(query)
	return sb
}

// WriteIdentifier writes a quoted identifier, doubling embedded double quotes.
// Every other byte, NUL included, is written unchanged.
// See https://www.postgresql.org/docs/current/sql-syntax-lexical.html#SQL-SYNTAX-IDENTIFIERS
func (sb *SQLBuilder) WriteIdentifier(name string) *SQLBuilder {
	sb.builder.WriteByte('"')
	for i := 0; i < len(name); i++ {
		if name[i] == '"' {
			sb.builder.WriteString(`""`)
		} else {
			sb.builder.WriteByte(name[i])
		}
	}
	sb.builder.WriteByte('"')
	return sb
}

// String returns the built SQL query
func (sb *SQLBuilder) String() string {
	return clone(sb.builder.String())
}

// Close releases the builder back to the pool
func (sb *SQLBuilder) Close() {
	if sb.builder != nil {
		putBuilder(sb.builder, sb.size)
		sb.builder = nil
	}
}
