package pgdata

import (
	"github.com/jackc/pgx/v5/pgtype"

	stringpool "github.com/ajitpratap0/pgstream/pkg/strings"
)

// Boxed forwards to c and stores the result behind a pointer. Unlike
// Nullable, a NULL is still an error unless c accepts it.
func Boxed[T any](c Codec[T]) Codec[*T] {
	return boxed[T]{inner: c}
}

type boxed[T any] struct {
	inner Codec[T]
}

func (b boxed[T]) Columns(sb *stringpool.SQLBuilder, path *Path) {
	b.inner.Columns(sb, path)
}

func (b boxed[T]) Decode(types *pgtype.Map, oid uint32, raw []byte) (*T, error) {
	v, err := b.inner.Decode(types, oid, raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Nullable decodes NULL as a nil pointer and anything else with c.
//
// When c projects a ROW(...), as Struct and Values do, a record whose fields
// are all NULL is also decoded as nil: that is what a NULL composite column
// looks like once its fields are selected one by one. A present value with
// only NULL fields cannot be told apart and decodes as nil too.
func Nullable[T any](c Codec[T]) Codec[*T] {
	return nullable[T]{inner: c}
}

type nullable[T any] struct {
	inner Codec[T]
}

func (n nullable[T]) Columns(sb *stringpool.SQLBuilder, path *Path) {
	n.inner.Columns(sb, path)
}

func (n nullable[T]) Decode(types *pgtype.Map, oid uint32, raw []byte) (*T, error) {
	if raw == nil {
		return nil, nil
	}
	if _, ok := n.inner.(composite); ok && allNull(raw) {
		return nil, nil
	}
	v, err := n.inner.Decode(types, oid, raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// composite marks codecs that project a ROW(...) constructor.
type composite interface {
	composite()
}

func (record[S]) composite() {}

func (values) composite() {}
