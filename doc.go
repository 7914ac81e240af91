// Package pgstream turns PostgreSQL into a typed, partitionable stream of
// rows.
//
// Callers describe where data lives (connection descriptors and the tables or
// queries to read over each) and what shape a row takes (a pgdata.Codec for a
// Go type). Every relation is exported with
//
//	COPY (SELECT <projection> FROM <relation>) TO STDOUT (FORMAT BINARY)
//
// and decoded straight off the wire without an intermediate text form.
//
// # Quick Start
//
//	import (
//	    "github.com/ajitpratap0/pgstream/pkg/connector/sources/postgresql"
//	    "github.com/ajitpratap0/pgstream/pkg/pgdata"
//	    "github.com/ajitpratap0/pgstream/pkg/pipeline"
//	)
//
//	type Weather struct {
//	    City   string
//	    TempLo int32
//	}
//
//	codec := pgdata.Struct(
//	    pgdata.Field("city", pgdata.Text(), func(w *Weather) *string { return &w.City }),
//	    pgdata.Field("temp_lo", pgdata.Int32(), func(w *Weather) *int32 { return &w.TempLo }),
//	)
//
//	params, _ := postgresql.ParseConnectParams("postgres://reader@db1/weather")
//	source := postgresql.NewSource(codec, []postgresql.Assignment{{
//	    Params:    params,
//	    Relations: []postgresql.Relation{postgresql.Table{Name: "weather"}},
//	}})
//
//	stream := source.Stream(ctx, pipeline.NewThreadPool(4))
//	defer stream.Close()
//	for row, err := range stream.All() {
//	    ...
//	}
//
// # Key Packages
//
//	pkg/connector/sources/postgresql - Source, connection descriptors, COPY framing
//	pkg/pgdata                       - Row codecs: projection rendering and binary decoding
//	pkg/pipeline                     - Worker pools and merged result streams
//	pkg/streamerrors                 - Structured errors (transport, driver, decode)
//	pkg/config                       - YAML export configuration
//	pkg/logger                       - Structured logging
//	pkg/metrics                      - Prometheus collectors
//	pkg/observability                - OpenTelemetry tracing
//	pkg/json, pkg/compression        - Output encoding for the CLI
//
// # Command Line
//
// cmd/pgstream runs an export described by a YAML file and writes JSON rows,
// optionally compressed:
//
//	pgstream validate --config weather.yaml
//	pgstream export --config weather.yaml --output weather.jsonl.zst --compression zstd
package pgstream
