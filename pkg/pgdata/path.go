package pgdata

import (
	stringpool "github.com/ajitpratap0/pgstream/pkg/strings"
)

// Path is the column-name path of a value inside a projection. The nil *Path
// is the empty path of the top-level row. Paths are immutable; Child returns
// a new node linked to its parent.
type Path struct {
	parent *Path
	name   string
}

// Child returns the path of the named field nested under p.
func (p *Path) Child(name string) *Path {
	return &Path{parent: p, name: name}
}

// Name returns the last segment of the path, or "" for the empty path.
func (p *Path) Name() string {
	if p == nil {
		return ""
	}
	return p.name
}

// Depth returns the number of segments in the path.
func (p *Path) Depth() int {
	depth := 0
	for n := p; n != nil; n = n.parent {
		depth++
	}
	return depth
}

// Render writes the qualified expression for the path. Each nesting level is
// parenthesized so that composite column access parses: a.b.c renders as
// (("a")."b")."c". The empty path renders nothing.
func (p *Path) Render(b *stringpool.SQLBuilder) {
	if p == nil {
		return
	}
	if p.parent != nil {
		b.WriteQuery("(")
		p.parent.Render(b)
		b.WriteQuery(").")
	}
	b.WriteIdentifier(p.name)
}

// String renders the path as SQL text.
func (p *Path) String() string {
	b := stringpool.NewSQLBuilder(64)
	defer b.Close()
	p.Render(b)
	return b.String()
}
