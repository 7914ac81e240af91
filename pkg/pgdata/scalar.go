package pgdata

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ajitpratap0/pgstream/pkg/streamerrors"
	stringpool "github.com/ajitpratap0/pgstream/pkg/strings"
)

// scalar decodes a single binary value through the pgtype codec registered
// for its OID.
type scalar[T any] struct {
	oid uint32
}

// Scalar returns a leaf codec for T whose native PostgreSQL type is oid. The
// native type is used to decode values whose declared type is unknown, which
// is the case for a top-level value exported as an anonymous record.
func Scalar[T any](oid uint32) Codec[T] {
	return scalar[T]{oid: oid}
}

func (s scalar[T]) Columns(b *stringpool.SQLBuilder, path *Path) {
	writeLeaf(b, path)
}

func (s scalar[T]) Decode(types *pgtype.Map, oid uint32, raw []byte) (T, error) {
	var v T
	if raw == nil {
		return v, errUnexpectedNull(v)
	}
	if oid == 0 || oid == pgtype.RecordOID {
		oid = s.oid
	}
	if err := types.Scan(oid, pgtype.BinaryFormatCode, raw, &v); err != nil {
		return v, streamerrors.Wrap(err, streamerrors.ErrorTypeDecode, stringpool.Sprintf("cannot decode %T", v)).
			WithDetail("oid", oid).
			WithDetail("length", len(raw))
	}
	return v, nil
}

// Leaf codecs for the built-in types.

func Bool() Codec[bool]                { return Scalar[bool](pgtype.BoolOID) }
func Int16() Codec[int16]              { return Scalar[int16](pgtype.Int2OID) }
func Int32() Codec[int32]              { return Scalar[int32](pgtype.Int4OID) }
func Int64() Codec[int64]              { return Scalar[int64](pgtype.Int8OID) }
func Float32() Codec[float32]          { return Scalar[float32](pgtype.Float4OID) }
func Float64() Codec[float64]          { return Scalar[float64](pgtype.Float8OID) }
func Text() Codec[string]              { return Scalar[string](pgtype.TextOID) }
func Bytea() Codec[[]byte]             { return Scalar[[]byte](pgtype.ByteaOID) }
func Timestamp() Codec[time.Time]      { return Scalar[time.Time](pgtype.TimestampOID) }
func Timestamptz() Codec[time.Time]    { return Scalar[time.Time](pgtype.TimestamptzOID) }
func Date() Codec[time.Time]           { return Scalar[time.Time](pgtype.DateOID) }
func Numeric() Codec[pgtype.Numeric]   { return Scalar[pgtype.Numeric](pgtype.NumericOID) }
func Interval() Codec[pgtype.Interval] { return Scalar[pgtype.Interval](pgtype.IntervalOID) }

// JSON decodes a jsonb (or json) value into T with the map's JSON codec.
func JSON[T any]() Codec[T] { return Scalar[T](pgtype.JSONBOID) }

// UUID decodes a uuid value.
func UUID() Codec[uuid.UUID] { return uuidCodec{} }

type uuidCodec struct{}

func (uuidCodec) Columns(b *stringpool.SQLBuilder, path *Path) {
	writeLeaf(b, path)
}

func (uuidCodec) Decode(_ *pgtype.Map, oid uint32, raw []byte) (uuid.UUID, error) {
	if raw == nil {
		return uuid.Nil, errUnexpectedNull(uuid.Nil)
	}
	if oid != 0 && oid != pgtype.RecordOID && oid != pgtype.UUIDOID {
		return uuid.Nil, streamerrors.Newf(streamerrors.ErrorTypeDecode, "cannot decode oid %d as uuid", oid)
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return uuid.Nil, streamerrors.Wrap(err, streamerrors.ErrorTypeDecode, "cannot decode uuid").
			WithDetail("length", len(raw))
	}
	return id, nil
}
