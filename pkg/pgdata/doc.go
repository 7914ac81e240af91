// Package pgdata is the row decode capability of pgstream: the contract a Go
// type satisfies to be exported from PostgreSQL with COPY ... (FORMAT BINARY).
//
// A Codec does two things that are driven by the same description of a type:
//
//   - Columns renders the projection the export must select, given the
//     column-name Path of the value being described
//   - Decode parses the binary value the server sends back for that projection
//
// Because one description drives both, changing the shape of a record type
// changes the query and the decoder together; there is no separate
// schema-matching pass.
//
// # Composition
//
// Leaf codecs (Int64, Text, Timestamptz, UUID, ...) render a qualified column
// name and parse one binary value with the pgtype codecs of pgx. Composite
// types are derived without reflection by listing their fields:
//
//	type Point struct{ X, Y float64 }
//	type Weather struct {
//	    City   string
//	    TempLo int32
//	    Loc    *Point
//	}
//
//	var pointCodec = pgdata.Struct(
//	    pgdata.Field("x", pgdata.Float64(), func(p *Point) *float64 { return &p.X }),
//	    pgdata.Field("y", pgdata.Float64(), func(p *Point) *float64 { return &p.Y }),
//	)
//
//	var weatherCodec = pgdata.Struct(
//	    pgdata.Field("city", pgdata.Text(), func(w *Weather) *string { return &w.City }),
//	    pgdata.Field("temp_lo", pgdata.Int32(), func(w *Weather) *int32 { return &w.TempLo }),
//	    pgdata.Field("loc", pgdata.Nullable(pointCodec), func(w *Weather) **Point { return &w.Loc }),
//	)
//
// weatherCodec selects ROW("city", "temp_lo", ROW(("loc")."x", ("loc")."y"))
// and decodes the resulting anonymous record positionally. Boxed and Nullable
// wrap another codec without adding a column-name segment.
//
// Types that prefer methods implement Decodable and are adapted with Of.
package pgdata
