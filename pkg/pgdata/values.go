package pgdata

import (
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ajitpratap0/pgstream/pkg/streamerrors"
	stringpool "github.com/ajitpratap0/pgstream/pkg/strings"
)

// Values returns a codec that exports the named columns as a map keyed by
// column name. Each value is decoded with whatever codec the map has
// registered for its OID; values of unregistered types are returned as a
// copy of their raw bytes. NULL is a nil entry.
func Values(columns ...string) Codec[map[string]any] {
	return values{columns: columns}
}

type values struct {
	columns []string
}

func (v values) Columns(b *stringpool.SQLBuilder, path *Path) {
	b.WriteQuery("ROW(")
	for i, name := range v.columns {
		if i > 0 {
			b.WriteQuery(", ")
		}
		path.Child(name).Render(b)
	}
	b.WriteQuery(")")
}

func (v values) Decode(types *pgtype.Map, _ uint32, raw []byte) (map[string]any, error) {
	if raw == nil {
		return nil, errUnexpectedNull(map[string]any(nil))
	}
	rr, err := NewRecordReader(raw)
	if err != nil {
		return nil, err
	}
	if rr.Len() != len(v.columns) {
		return nil, streamerrors.Newf(streamerrors.ErrorTypeDecode, "record has %d fields, expected %d columns", rr.Len(), len(v.columns))
	}

	row := make(map[string]any, len(v.columns))
	for _, name := range v.columns {
		oid, value, err := rr.Next()
		if err != nil {
			return nil, err
		}
		if value == nil {
			row[name] = nil
			continue
		}
		typ, ok := types.TypeForOID(oid)
		if !ok {
			row[name] = append([]byte(nil), value...)
			continue
		}
		decoded, err := typ.Codec.DecodeValue(types, oid, pgtype.BinaryFormatCode, value)
		if err != nil {
			return nil, streamerrors.Wrap(err, streamerrors.ErrorTypeDecode, stringpool.Sprintf("column %q", name)).
				WithDetail("oid", oid).
				WithDetail("type", typ.Name)
		}
		row[name] = decoded
	}
	return row, rr.Close()
}
