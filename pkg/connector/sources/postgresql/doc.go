// Package postgresql exports PostgreSQL relations as typed row streams using
// COPY ... TO STDOUT (FORMAT BINARY).
//
// # Overview
//
// A Source is built from a pgdata.Codec for the row type and a list of
// Assignments. An Assignment is one connection descriptor plus the relations
// to export over that connection, in order:
//
//	codec := pgdata.Struct(
//	    pgdata.Field("city", pgdata.Text(), func(w *Weather) *string { return &w.City }),
//	    pgdata.Field("temp_lo", pgdata.Int32(), func(w *Weather) *int32 { return &w.TempLo }),
//	)
//
//	source := postgresql.NewSource(codec, []postgresql.Assignment{{
//	    Params: postgresql.ConnectParams{
//	        Hosts:    []postgresql.Host{postgresql.TCPHost("db1")},
//	        User:     "reader",
//	        Database: "weather",
//	    },
//	    Relations: []postgresql.Relation{
//	        postgresql.Table{Schema: "public", Name: "weather_2023"},
//	        postgresql.Table{Schema: "public", Name: "weather_2024"},
//	    },
//	}})
//
//	stream := source.Stream(ctx, pipeline.NewThreadPool(4))
//	defer stream.Close()
//	for row, err := range stream.All() {
//	    ...
//	}
//
// For every relation the source issues
//
//	COPY (SELECT <projection> FROM <relation>) TO STDOUT (FORMAT BINARY)
//
// where the projection is rendered by the codec, and decodes each exported
// value with the same codec.
//
// # Failure model
//
// Each assignment runs on its own connection. Any failure (connecting, an
// error reported by the server, a malformed frame, a value that does not
// decode) is delivered as one error item and ends that assignment only; the
// other assignments carry on. Nothing is retried.
//
// # Connections
//
// Each open connection is owned by a driver goroutine that runs the exports
// and hands CopyData payloads to the consumer through a bounded channel, so
// network reads and decoding overlap. Closing the connection stops the
// driver.
package postgresql
