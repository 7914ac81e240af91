package postgresql

import (
	"strings"

	"github.com/ajitpratap0/pgstream/pkg/streamerrors"
	stringpool "github.com/ajitpratap0/pgstream/pkg/strings"
)

// Relation is something rows can be selected from: a Table or a Query.
type Relation interface {
	// String renders the relation as it appears after FROM.
	String() string
	render(b *stringpool.SQLBuilder)
}

// Table is a table or view, optionally schema-qualified.
type Table struct {
	Schema string `json:"schema,omitempty" yaml:"schema,omitempty"`
	Name   string `json:"name" yaml:"name"`
}

func (t Table) String() string {
	b := stringpool.NewSQLBuilder(len(t.Schema) + len(t.Name) + 8)
	defer b.Close()
	t.render(b)
	return b.String()
}

func (t Table) render(b *stringpool.SQLBuilder) {
	if t.Schema != "" {
		b.WriteIdentifier(t.Schema).WriteQuery(".")
	}
	b.WriteIdentifier(t.Name)
}

// Validate rejects a table that cannot be named in SQL: an empty name or a
// NUL byte in either part. Quotes are escaped when rendering.
func (t Table) Validate() error {
	if t.Name == "" {
		return streamerrors.New(streamerrors.ErrorTypeValidation, "table name is empty")
	}
	if strings.IndexByte(t.Schema, 0) >= 0 || strings.IndexByte(t.Name, 0) >= 0 {
		return streamerrors.Newf(streamerrors.ErrorTypeValidation, "table name %q contains a NUL byte", t.Schema+"."+t.Name).
			WithDetail("schema", t.Schema).
			WithDetail("name", t.Name)
	}
	return nil
}

// ParseTable parses "name" or "schema.name". Text containing a double quote
// is refused rather than escaped, as is anything with more than one dot.
func ParseTable(s string) (Table, error) {
	if strings.IndexByte(s, '"') >= 0 {
		return Table{}, streamerrors.Newf(streamerrors.ErrorTypeValidation, "table name %q contains a forbidden character", s)
	}
	var t Table
	parts := strings.Split(s, ".")
	switch {
	case len(parts) == 1:
		t = Table{Name: parts[0]}
	case len(parts) == 2 && parts[0] != "":
		t = Table{Schema: parts[0], Name: parts[1]}
	default:
		return Table{}, streamerrors.Newf(streamerrors.ErrorTypeValidation, "invalid table name %q", s)
	}
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// Query is an arbitrary SELECT used as a derived table. It is embedded
// verbatim.
type Query struct {
	SQL string `json:"sql" yaml:"sql"`
}

func (q Query) String() string {
	b := stringpool.NewSQLBuilder(len(q.SQL) + 8)
	defer b.Close()
	q.render(b)
	return b.String()
}

func (q Query) render(b *stringpool.SQLBuilder) {
	b.WriteQuery("(").WriteQuery(q.SQL).WriteQuery(") _")
}

func relationKind(r Relation) string {
	if _, ok := r.(Query); ok {
		return "query"
	}
	return "table"
}

// relationJSON is the wire form of a Relation: exactly one field is set.
type relationJSON struct {
	Table *Table `json:"table,omitempty"`
	Query *Query `json:"query,omitempty"`
}

func toRelationJSON(r Relation) (relationJSON, error) {
	switch r := r.(type) {
	case Table:
		return relationJSON{Table: &r}, nil
	case Query:
		return relationJSON{Query: &r}, nil
	default:
		return relationJSON{}, streamerrors.Newf(streamerrors.ErrorTypeValidation, "unsupported relation %T", r)
	}
}

func (r relationJSON) relation() (Relation, error) {
	switch {
	case r.Table != nil && r.Query == nil:
		if err := r.Table.Validate(); err != nil {
			return nil, err
		}
		return *r.Table, nil
	case r.Query != nil && r.Table == nil:
		return *r.Query, nil
	default:
		return nil, streamerrors.New(streamerrors.ErrorTypeValidation, "relation must have exactly one of table or query")
	}
}
