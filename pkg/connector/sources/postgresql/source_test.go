package postgresql

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/pgstream/pkg/config"
	"github.com/ajitpratap0/pgstream/pkg/logger"
	"github.com/ajitpratap0/pgstream/pkg/pgdata"
	"github.com/ajitpratap0/pgstream/pkg/pipeline"
	"github.com/ajitpratap0/pgstream/pkg/streamerrors"
	"github.com/ajitpratap0/pgstream/pkg/testutil"
)

type person struct {
	ID   int32
	Name *string
}

var personCodec = pgdata.Struct(
	pgdata.Field("id", pgdata.Int32(), func(p *person) *int32 { return &p.ID }),
	pgdata.Field("name", pgdata.Nullable(pgdata.Text()), func(p *person) **string { return &p.Name }),
)

func personRecord(id int32, name string) []byte {
	var value []byte
	if name != "" {
		value = testutil.Text(name)
	}
	return testutil.Record(
		testutil.RecordField{OID: pgtype.Int4OID, Value: testutil.Int4(id)},
		testutil.RecordField{OID: pgtype.TextOID, Value: value},
	)
}

type fakeExport struct {
	chunks [][]byte
	err    error
}

// completeExport frames rows as a full COPY stream, one CopyData message per
// row.
func completeExport(rows ...[]byte) fakeExport {
	e := fakeExport{chunks: [][]byte{testutil.CopyHeader(0)}}
	for _, r := range rows {
		e.chunks = append(e.chunks, testutil.CopyRow(r))
	}
	e.chunks = append(e.chunks, testutil.CopyTrailer())
	return e
}

type fakeConn struct {
	mu      sync.Mutex
	exports []fakeExport
	queries []string
	closed  atomic.Bool
}

func (c *fakeConn) CopyOut(_ context.Context, sql string) (ChunkSource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, sql)
	if len(c.exports) == 0 {
		return nil, streamerrors.New(streamerrors.ErrorTypeDriver, "unexpected export")
	}
	e := c.exports[0]
	c.exports = c.exports[1:]
	return &sliceSource{chunks: e.chunks, err: e.err}, nil
}

func (c *fakeConn) Close(context.Context) error {
	c.closed.Store(true)
	return nil
}

func (c *fakeConn) Queries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queries...)
}

type fakeConnector struct {
	conns map[string]*fakeConn

	mu     sync.Mutex
	params []ConnectParams
}

func (f *fakeConnector) Connect(_ context.Context, p ConnectParams) (Conn, error) {
	f.mu.Lock()
	f.params = append(f.params, p)
	f.mu.Unlock()

	conn, ok := f.conns[p.Hosts[0].TCP]
	if !ok {
		return nil, streamerrors.New(streamerrors.ErrorTypeTransport, "connection refused").
			WithDetail("host", p.Hosts[0].TCP)
	}
	return conn, nil
}

func assignment(host string, relations ...Relation) Assignment {
	return Assignment{Params: ConnectParams{Hosts: []Host{TCPHost(host)}}, Relations: relations}
}

func collect(t *testing.T, stream *pipeline.Stream[person]) ([]person, []error) {
	t.Helper()
	var rows []person
	var errs []error
	for row, err := range stream.All() {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rows = append(rows, row)
	}
	require.NoError(t, stream.Close())
	return rows, errs
}

func TestSourceRelationsInOrder(t *testing.T) {
	conn := &fakeConn{exports: []fakeExport{
		completeExport(personRecord(1, "ann"), personRecord(2, "")),
		completeExport(),
		completeExport(personRecord(3, "cy")),
	}}
	connector := &fakeConnector{conns: map[string]*fakeConn{"db1": conn}}

	tables := []Relation{
		Table{Schema: "public", Name: "people"},
		Query{SQL: "SELECT id, name FROM nobody"},
		Table{Name: "more_people"},
	}
	source := NewSource(personCodec, []Assignment{assignment("db1", tables...)},
		WithConnector(connector), WithLogger(testutil.TestLogger(t)))

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	rows, errs := collect(t, source.Stream(ctx, pipeline.NewLocalPool()))

	require.Empty(t, errs)
	require.Len(t, rows, 3)
	assert.Equal(t, int32(1), rows[0].ID)
	require.NotNil(t, rows[0].Name)
	assert.Equal(t, "ann", *rows[0].Name)
	assert.Equal(t, int32(2), rows[1].ID)
	assert.Nil(t, rows[1].Name)
	assert.Equal(t, int32(3), rows[2].ID)

	assert.Equal(t, []string{
		`COPY (SELECT ROW("id", "name") FROM "public"."people") TO STDOUT (FORMAT BINARY)`,
		`COPY (SELECT ROW("id", "name") FROM (SELECT id, name FROM nobody) _) TO STDOUT (FORMAT BINARY)`,
		`COPY (SELECT ROW("id", "name") FROM "more_people") TO STDOUT (FORMAT BINARY)`,
	}, conn.Queries())
	assert.True(t, conn.closed.Load())
}

func TestSourceAssignmentIsolation(t *testing.T) {
	driverErr := streamerrors.New(streamerrors.ErrorTypeDriver, "permission denied for table secrets").
		WithDetail("code", "42501")

	healthy := &fakeConn{exports: []fakeExport{
		completeExport(personRecord(1, "a"), personRecord(2, "b")),
		completeExport(personRecord(3, "c")),
	}}
	badRow := &fakeConn{exports: []fakeExport{
		completeExport(
			personRecord(10, "ok"),
			testutil.Record(testutil.RecordField{OID: pgtype.Int4OID, Value: testutil.Int4(11)}),
			personRecord(12, "never"),
		),
		completeExport(personRecord(13, "never")),
	}}
	denied := &fakeConn{exports: []fakeExport{{
		chunks: [][]byte{testutil.CopyHeader(0), testutil.CopyRow(personRecord(20, "x"))},
		err:    driverErr,
	}}}
	connector := &fakeConnector{conns: map[string]*fakeConn{
		"healthy": healthy,
		"bad-row": badRow,
		"denied":  denied,
	}}

	source := NewSource(personCodec, []Assignment{
		assignment("healthy", Table{Name: "a"}, Table{Name: "b"}),
		assignment("down", Table{Name: "a"}),
		assignment("bad-row", Table{Name: "a"}, Table{Name: "b"}),
		assignment("denied", Table{Name: "secrets"}),
	}, WithConnector(connector), WithLogger(testutil.TestLogger(t)))

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	rows, errs := collect(t, source.Stream(ctx, pipeline.NewThreadPool(4)))

	ids := make([]int, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, int(r.ID))
	}
	sort.Ints(ids)
	assert.Equal(t, []int{1, 2, 3, 10, 20}, ids)

	require.Len(t, errs, 3)
	types := map[streamerrors.ErrorType]error{}
	for _, err := range errs {
		types[streamerrors.TypeOf(err)] = err
	}
	require.Contains(t, types, streamerrors.ErrorTypeTransport)
	require.Contains(t, types, streamerrors.ErrorTypeDecode)
	require.Contains(t, types, streamerrors.ErrorTypeDriver)

	assert.Contains(t, types[streamerrors.ErrorTypeTransport].Error(), "connection refused")
	assert.ErrorIs(t, types[streamerrors.ErrorTypeDriver], driverErr)
	assert.Contains(t, types[streamerrors.ErrorTypeDriver].Error(), "permission denied")

	var decodeErr *streamerrors.Error
	require.ErrorAs(t, types[streamerrors.ErrorTypeDecode], &decodeErr)
	assert.Equal(t, `"a"`, decodeErr.Details["relation"])

	// a decode error ends the assignment: the second relation is never exported
	assert.Len(t, badRow.Queries(), 1)
	for _, c := range []*fakeConn{healthy, badRow, denied} {
		assert.True(t, c.closed.Load())
	}
}

func TestSourceStopsWhenConsumerStops(t *testing.T) {
	rows := make([][]byte, 0, 50)
	for i := 0; i < 50; i++ {
		rows = append(rows, personRecord(int32(i), "p"))
	}
	conn := &fakeConn{exports: []fakeExport{completeExport(rows...), completeExport(rows...)}}
	connector := &fakeConnector{conns: map[string]*fakeConn{"db1": conn}}

	source := NewSource(personCodec, []Assignment{assignment("db1", Table{Name: "a"}, Table{Name: "b"})},
		WithConnector(connector), WithLogger(testutil.TestLogger(t)))

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	stream := source.Stream(ctx, pipeline.NewThreadPool(1))

	seen := 0
	for _, err := range stream.All() {
		require.NoError(t, err)
		seen++
		if seen == 3 {
			break
		}
	}
	require.NoError(t, stream.Close())

	assert.Equal(t, 3, seen)
	assert.True(t, conn.closed.Load())
	assert.LessOrEqual(t, len(conn.Queries()), 2)
}

func TestSourceRejectsUnnameableTable(t *testing.T) {
	conn := &fakeConn{exports: []fakeExport{completeExport(personRecord(1, "a"))}}
	connector := &fakeConnector{conns: map[string]*fakeConn{"db1": conn}}
	source := NewSource(personCodec,
		[]Assignment{assignment("db1", Table{Name: "users\x00_archive"}, Table{Name: "users"})},
		WithConnector(connector), WithLogger(testutil.TestLogger(t)))

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	rows, errs := collect(t, source.Stream(ctx, pipeline.NewLocalPool()))

	assert.Empty(t, rows)
	require.Len(t, errs, 1)
	assert.True(t, streamerrors.IsType(errs[0], streamerrors.ErrorTypeValidation))
	assert.Empty(t, conn.Queries())
	assert.True(t, conn.closed.Load())
}

func TestSourceLogsCarryContext(t *testing.T) {
	conn := &fakeConn{exports: []fakeExport{completeExport(personRecord(1, "a"))}}
	connector := &fakeConnector{conns: map[string]*fakeConn{
		"db1": conn,
	}}
	core, logs := observer.New(zap.InfoLevel)
	source := NewSource(personCodec,
		[]Assignment{assignment("down", Table{Name: "a"}), assignment("db1", Table{Schema: "public", Name: "people"})},
		WithConnector(connector), WithLogger(zap.New(core)))

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	ctx = context.WithValue(ctx, logger.ExportKey, "people")
	_, errs := collect(t, source.Stream(ctx, pipeline.NewLocalPool()))
	require.Len(t, errs, 1)

	exported := logs.FilterMessage("relation exported").All()
	require.Len(t, exported, 1)
	fields := exported[0].ContextMap()
	assert.Equal(t, "people", fields["export"])
	assert.Equal(t, int64(1), fields["assignment"])
	assert.Equal(t, `"public"."people"`, fields["relation"])
	assert.Equal(t, int64(1), fields["rows"])

	failed := logs.FilterMessage("assignment failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, int64(0), failed[0].ContextMap()["assignment"])
	assert.NotContains(t, failed[0].ContextMap(), "relation")
}

func TestSourceConnectTimeout(t *testing.T) {
	connector := &fakeConnector{conns: map[string]*fakeConn{
		"a": {exports: []fakeExport{completeExport()}},
		"b": {exports: []fakeExport{completeExport()}},
	}}

	explicit := assignment("b", Table{Name: "t"})
	explicit.Params.ConnectTimeout = time.Second

	source := NewSource(personCodec, []Assignment{assignment("a", Table{Name: "t"}), explicit},
		WithConnector(connector), WithConnectTimeout(7*time.Second), WithLogger(testutil.TestLogger(t)))

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	_, errs := collect(t, source.Stream(ctx, pipeline.NewLocalPool()))
	require.Empty(t, errs)

	require.Len(t, connector.params, 2)
	assert.Equal(t, 7*time.Second, connector.params[0].ConnectTimeout)
	assert.Equal(t, time.Second, connector.params[1].ConnectTimeout)
}

func TestSourceCancelledContext(t *testing.T) {
	conn := &fakeConn{exports: []fakeExport{completeExport(personRecord(1, "a"))}}
	connector := &fakeConnector{conns: map[string]*fakeConn{"db1": conn}}
	source := NewSource(personCodec, []Assignment{assignment("db1", Table{Name: "a"})},
		WithConnector(connector), WithLogger(testutil.TestLogger(t)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rows, _ := collect(t, source.Stream(ctx, pipeline.NewThreadPool(2)))
	assert.LessOrEqual(t, len(rows), 1)
	if len(connector.params) > 0 {
		assert.True(t, conn.closed.Load())
	}
}

func TestAssignmentsFromConfig(t *testing.T) {
	cfg := config.NewExportConfig("people")
	cfg.Timeouts.Connection = 4 * time.Second
	cfg.Columns = []string{"id", "name"}
	cfg.Assignments = []config.AssignmentConfig{
		{
			Connection: config.ConnectionConfig{
				Hosts:    []string{"db1", "/var/run/postgresql"},
				Ports:    []uint16{5433},
				User:     "reader",
				Password: "pw",
				Database: "people",
			},
			Relations: []config.RelationConfig{
				{Schema: "public", Table: "people"},
				{Table: "archive.people"},
				{Query: "SELECT 1 AS id, 'x' AS name"},
			},
		},
		{
			Connection: config.ConnectionConfig{
				ConnString:     "postgres://u@db2:6000/d?sslmode=disable",
				Database:       "other",
				ConnectTimeout: time.Second,
			},
			Relations: []config.RelationConfig{{Table: "t"}},
		},
	}

	assignments, err := AssignmentsFromConfig(cfg)
	require.NoError(t, err)
	require.Len(t, assignments, 2)

	first := assignments[0]
	assert.Equal(t, []Host{TCPHost("db1"), UnixHost("/var/run/postgresql")}, first.Params.Hosts)
	assert.Equal(t, []uint16{5433}, first.Params.Ports)
	assert.Equal(t, "reader", first.Params.User)
	assert.Equal(t, []byte("pw"), first.Params.Password)
	assert.Equal(t, 4*time.Second, first.Params.ConnectTimeout)
	assert.Equal(t, []Relation{
		Table{Schema: "public", Name: "people"},
		Table{Schema: "archive", Name: "people"},
		Query{SQL: "SELECT 1 AS id, 'x' AS name"},
	}, first.Relations)

	second := assignments[1]
	assert.Equal(t, []Host{TCPHost("db2")}, second.Params.Hosts)
	assert.Equal(t, []uint16{6000}, second.Params.Ports)
	assert.Equal(t, "u", second.Params.User)
	assert.Equal(t, "other", second.Params.Database)
	assert.Equal(t, time.Second, second.Params.ConnectTimeout)

	cfg.Assignments[0].Relations = []config.RelationConfig{{Table: `bad"name`}}
	_, err = AssignmentsFromConfig(cfg)
	require.Error(t, err)
	assert.True(t, streamerrors.IsType(err, streamerrors.ErrorTypeValidation))
}
