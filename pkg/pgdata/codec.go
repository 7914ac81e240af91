package pgdata

import (
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ajitpratap0/pgstream/pkg/streamerrors"
	stringpool "github.com/ajitpratap0/pgstream/pkg/strings"
)

// Codec renders the projection for T and decodes the matching binary value.
//
// Decode receives the declared type OID of the value and its raw bytes; a nil
// raw slice is SQL NULL, a non-nil empty slice is a zero-length value. The raw
// bytes are borrowed from the export buffer and must not be retained: any
// value that outlives the call has to be copied by the codec.
type Codec[T any] interface {
	Columns(b *stringpool.SQLBuilder, path *Path)
	Decode(types *pgtype.Map, oid uint32, raw []byte) (T, error)
}

// Decodable is the method form of the capability, for types that would rather
// describe themselves than be described by a Codec value.
type Decodable interface {
	WriteColumns(b *stringpool.SQLBuilder, path *Path)
	DecodeBinary(types *pgtype.Map, oid uint32, raw []byte) error
}

// Of adapts a Decodable type to a Codec. WriteColumns is called on the zero
// value of T.
func Of[T any, PT interface {
	*T
	Decodable
}]() Codec[T] {
	return capability[T, PT]{}
}

type capability[T any, PT interface {
	*T
	Decodable
}] struct{}

func (capability[T, PT]) Columns(b *stringpool.SQLBuilder, path *Path) {
	var zero T
	PT(&zero).WriteColumns(b, path)
}

func (capability[T, PT]) Decode(types *pgtype.Map, oid uint32, raw []byte) (T, error) {
	var v T
	if err := PT(&v).DecodeBinary(types, oid, raw); err != nil {
		if streamerrors.TypeOf(err) == streamerrors.ErrorTypeDecode {
			return v, err
		}
		return v, streamerrors.Wrap(err, streamerrors.ErrorTypeDecode, stringpool.Sprintf("cannot decode %T", v))
	}
	return v, nil
}

// RenderColumns renders the projection of a codec at the top level.
func RenderColumns[T any](c Codec[T]) string {
	b := stringpool.NewSQLBuilder(256)
	defer b.Close()
	c.Columns(b, nil)
	return b.String()
}

// writeLeaf renders a scalar column. A scalar at the top level has no name to
// select by, so it projects the relation's only column with *.
func writeLeaf(b *stringpool.SQLBuilder, path *Path) {
	if path == nil {
		b.WriteQuery("*")
		return
	}
	path.Render(b)
}

func errUnexpectedNull(target interface{}) *streamerrors.Error {
	return streamerrors.Newf(streamerrors.ErrorTypeDecode, "unexpected NULL for %T", target)
}
