package postgresql

import (
	"github.com/ajitpratap0/pgstream/pkg/pgdata"
	stringpool "github.com/ajitpratap0/pgstream/pkg/strings"
)

// CopyQuery renders the command that exports rel with the projection of
// codec:
//
//	COPY (SELECT <columns> FROM <relation>) TO STDOUT (FORMAT BINARY)
func CopyQuery[T any](codec pgdata.Codec[T], rel Relation) string {
	b := stringpool.NewSQLBuilder(128)
	defer b.Close()

	b.WriteQuery("COPY (SELECT ")
	codec.Columns(b, nil)
	b.WriteQuery(" FROM ")
	rel.render(b)
	b.WriteQuery(") TO STDOUT (FORMAT BINARY)")
	return b.String()
}
