package pgdata

import (
	"encoding/binary"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ajitpratap0/pgstream/pkg/streamerrors"
	stringpool "github.com/ajitpratap0/pgstream/pkg/strings"
)

// RecordReader walks the binary form of a record value: a field count
// followed by (type OID, length, bytes) for each field, where a length of -1
// is NULL.
type RecordReader struct {
	buf       []byte
	fields    int
	remaining int
}

// NewRecordReader reads the field count of a binary record.
func NewRecordReader(raw []byte) (*RecordReader, error) {
	if len(raw) < 4 {
		return nil, streamerrors.New(streamerrors.ErrorTypeDecode, "record is too short for its field count").
			WithDetail("length", len(raw))
	}
	count := int32(binary.BigEndian.Uint32(raw))
	if count < 0 {
		return nil, streamerrors.Newf(streamerrors.ErrorTypeDecode, "record has negative field count %d", count)
	}
	return &RecordReader{buf: raw[4:], fields: int(count), remaining: int(count)}, nil
}

// Len returns the number of fields the record declares.
func (r *RecordReader) Len() int {
	return r.fields
}

// Next returns the type OID and raw bytes of the next field. A NULL field has
// a nil value. The value aliases the record buffer.
func (r *RecordReader) Next() (uint32, []byte, error) {
	if r.remaining == 0 {
		return 0, nil, streamerrors.New(streamerrors.ErrorTypeDecode, "record has no more fields")
	}
	if len(r.buf) < 8 {
		return 0, nil, streamerrors.New(streamerrors.ErrorTypeDecode, "record field header is truncated").
			WithDetail("field", r.fields-r.remaining)
	}
	oid := binary.BigEndian.Uint32(r.buf)
	length := int32(binary.BigEndian.Uint32(r.buf[4:]))
	r.buf = r.buf[8:]
	r.remaining--

	if length == -1 {
		return oid, nil, nil
	}
	if length < 0 || int(length) > len(r.buf) {
		return 0, nil, streamerrors.Newf(streamerrors.ErrorTypeDecode, "record field length %d exceeds remaining %d bytes", length, len(r.buf)).
			WithDetail("field", r.fields-r.remaining-1)
	}
	value := r.buf[:length:length]
	r.buf = r.buf[length:]
	return oid, value, nil
}

// Close reports an error if fields or bytes were left unread.
func (r *RecordReader) Close() error {
	if r.remaining != 0 || len(r.buf) != 0 {
		return streamerrors.Newf(streamerrors.ErrorTypeDecode, "record has %d unread fields and %d trailing bytes", r.remaining, len(r.buf))
	}
	return nil
}

// allNull reports whether raw is a well-formed record of at least one field
// in which every field is NULL.
func allNull(raw []byte) bool {
	rr, err := NewRecordReader(raw)
	if err != nil || rr.Len() == 0 {
		return false
	}
	for i := 0; i < rr.Len(); i++ {
		_, value, err := rr.Next()
		if err != nil || value != nil {
			return false
		}
	}
	return rr.Close() == nil
}

// FieldCodec is one named field of a record type S. Build one with Field.
type FieldCodec[S any] interface {
	Name() string
	columns(b *stringpool.SQLBuilder, path *Path)
	decodeInto(types *pgtype.Map, oid uint32, raw []byte, dst *S) error
}

type field[S, F any] struct {
	name  string
	codec Codec[F]
	ref   func(*S) *F
}

// Field describes the field name of S, decoded with codec and stored through
// ref.
func Field[S, F any](name string, codec Codec[F], ref func(*S) *F) FieldCodec[S] {
	return field[S, F]{name: name, codec: codec, ref: ref}
}

func (f field[S, F]) Name() string { return f.name }

func (f field[S, F]) columns(b *stringpool.SQLBuilder, path *Path) {
	f.codec.Columns(b, path.Child(f.name))
}

func (f field[S, F]) decodeInto(types *pgtype.Map, oid uint32, raw []byte, dst *S) error {
	v, err := f.codec.Decode(types, oid, raw)
	if err != nil {
		return err
	}
	*f.ref(dst) = v
	return nil
}

type record[S any] struct {
	fields []FieldCodec[S]
}

// Struct returns a codec for the record type S made of the given fields, in
// order. It projects ROW(f1, f2, ...) with each field rendered under its own
// name, and decodes the resulting record positionally.
func Struct[S any](fields ...FieldCodec[S]) Codec[S] {
	return record[S]{fields: fields}
}

func (r record[S]) Columns(b *stringpool.SQLBuilder, path *Path) {
	b.WriteQuery("ROW(")
	for i, f := range r.fields {
		if i > 0 {
			b.WriteQuery(", ")
		}
		f.columns(b, path)
	}
	b.WriteQuery(")")
}

func (r record[S]) Decode(types *pgtype.Map, _ uint32, raw []byte) (S, error) {
	var s S
	if raw == nil {
		return s, errUnexpectedNull(s)
	}

	rr, err := NewRecordReader(raw)
	if err != nil {
		return s, err
	}
	if rr.Len() != len(r.fields) {
		return s, streamerrors.Newf(streamerrors.ErrorTypeDecode, "record has %d fields, %T expects %d", rr.Len(), s, len(r.fields))
	}

	for _, f := range r.fields {
		oid, value, err := rr.Next()
		if err != nil {
			return s, err
		}
		if err := f.decodeInto(types, oid, value, &s); err != nil {
			return s, streamerrors.Wrap(err, streamerrors.ErrorTypeDecode, stringpool.Sprintf("field %q", f.Name())).
				WithDetail("oid", oid)
		}
	}
	return s, rr.Close()
}
