package postgresql

import (
	"context"
	"errors"
	"io"
	"iter"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/pgstream/pkg/json"
	"github.com/ajitpratap0/pgstream/pkg/logger"
	"github.com/ajitpratap0/pgstream/pkg/metrics"
	"github.com/ajitpratap0/pgstream/pkg/observability"
	"github.com/ajitpratap0/pgstream/pkg/pgdata"
	"github.com/ajitpratap0/pgstream/pkg/pipeline"
	"github.com/ajitpratap0/pgstream/pkg/streamerrors"
)

// Assignment is one unit of work: a connection and the relations exported
// over it, in order. It is plain data and round-trips through JSON.
type Assignment struct {
	Params    ConnectParams
	Relations []Relation
}

type assignmentJSON struct {
	Params    ConnectParams  `json:"params"`
	Relations []relationJSON `json:"relations"`
}

// MarshalJSON implements json.Marshaler.
func (a Assignment) MarshalJSON() ([]byte, error) {
	out := assignmentJSON{Params: a.Params, Relations: make([]relationJSON, 0, len(a.Relations))}
	for _, r := range a.Relations {
		rj, err := toRelationJSON(r)
		if err != nil {
			return nil, err
		}
		out.Relations = append(out.Relations, rj)
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Assignment) UnmarshalJSON(data []byte) error {
	var in assignmentJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return streamerrors.Wrap(err, streamerrors.ErrorTypeValidation, "invalid assignment")
	}
	relations := make([]Relation, 0, len(in.Relations))
	for _, rj := range in.Relations {
		r, err := rj.relation()
		if err != nil {
			return err
		}
		relations = append(relations, r)
	}
	a.Params = in.Params
	a.Relations = relations
	return nil
}

type sourceOptions struct {
	connector      Connector
	logger         *zap.Logger
	chunkBuffer    int
	connectTimeout time.Duration
}

// Option configures a Source.
type Option func(*sourceOptions)

// WithConnector replaces the pgconn connector, mostly for tests.
func WithConnector(c Connector) Option {
	return func(o *sourceOptions) { o.connector = c }
}

// WithLogger sets the logger. The global logger is used otherwise.
func WithLogger(l *zap.Logger) Option {
	return func(o *sourceOptions) { o.logger = l }
}

// WithChunkBuffer bounds the CopyData payloads buffered per connection.
func WithChunkBuffer(n int) Option {
	return func(o *sourceOptions) { o.chunkBuffer = n }
}

// WithConnectTimeout sets the connect timeout for descriptors that carry
// none.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *sourceOptions) { o.connectTimeout = d }
}

// Source exports relations as rows of type Row.
type Source[Row any] struct {
	codec       pgdata.Codec[Row]
	assignments []Assignment
	opts        sourceOptions
}

// NewSource creates a source that decodes every row with codec.
func NewSource[Row any](codec pgdata.Codec[Row], assignments []Assignment, opts ...Option) *Source[Row] {
	o := sourceOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get()
	}
	if o.connector == nil {
		o.connector = PgConnector{ChunkBuffer: o.chunkBuffer, Logger: o.logger}
	}
	return &Source[Row]{codec: codec, assignments: assignments, opts: o}
}

type job struct {
	index      int
	assignment Assignment
}

// Stream runs every assignment on pool and merges their rows. Rows of one
// assignment arrive in relation order and export order; rows of different
// assignments interleave arbitrarily. The caller must drain or close the
// stream.
func (s *Source[Row]) Stream(ctx context.Context, pool pipeline.Pool) *pipeline.Stream[Row] {
	jobs := make([]job, len(s.assignments))
	for i, a := range s.assignments {
		jobs[i] = job{index: i, assignment: a}
	}
	return pipeline.FlatMap(ctx, pool, jobs, s.export)
}

// errStopped reports that the consumer stopped reading.
var errStopped = errors.New("consumer stopped")

func (s *Source[Row]) export(ctx context.Context, j job) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		ctx := context.WithValue(ctx, logger.AssignmentKey, j.index)
		log := logger.FromContext(ctx, s.opts.logger)

		ctx, span := observability.StartSpan(ctx, "pgstream.assignment",
			attribute.Int("assignment", j.index),
			attribute.Int("relations", len(j.assignment.Relations)))

		err := s.runAssignment(ctx, j.assignment, log, yield)
		if errors.Is(err, errStopped) {
			observability.EndSpan(span, nil)
			return
		}
		observability.EndSpan(span, err)

		if err != nil {
			metrics.Assignments.WithLabelValues(metrics.OutcomeFailed).Inc()
			log.Warn("assignment failed", zap.Error(err))
			var zero Row
			yield(zero, err)
			return
		}
		metrics.Assignments.WithLabelValues(metrics.OutcomeCompleted).Inc()
	}
}

func (s *Source[Row]) runAssignment(ctx context.Context, a Assignment, log *zap.Logger, yield func(Row, error) bool) error {
	params := a.Params
	if params.ConnectTimeout == 0 {
		params.ConnectTimeout = s.opts.connectTimeout
	}

	conn, err := s.opts.connector.Connect(ctx, params)
	if err != nil {
		metrics.Connections.WithLabelValues(metrics.OutcomeFailed).Inc()
		return err
	}
	metrics.Connections.WithLabelValues(metrics.OutcomeOpened).Inc()
	metrics.ActiveConnections.Inc()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := conn.Close(closeCtx); err != nil {
			log.Debug("error closing connection", zap.Error(err))
		}
		metrics.ActiveConnections.Dec()
	}()

	types := pgtype.NewMap()
	for _, rel := range a.Relations {
		if err := s.exportRelation(ctx, conn, types, rel, yield); err != nil {
			return err
		}
	}
	return nil
}

func (s *Source[Row]) exportRelation(ctx context.Context, conn Conn, types *pgtype.Map, rel Relation, yield func(Row, error) bool) (err error) {
	kind := relationKind(rel)
	ctx = context.WithValue(ctx, logger.RelationKey, rel.String())
	log := logger.FromContext(ctx, s.opts.logger)

	ctx, span := observability.StartSpan(ctx, "pgstream.relation", attribute.String("relation.kind", kind))
	defer func() {
		if errors.Is(err, errStopped) {
			observability.EndSpan(span, nil)
			return
		}
		observability.EndSpan(span, err)
	}()

	if t, ok := rel.(Table); ok {
		if err := t.Validate(); err != nil {
			return annotate(err, rel)
		}
	}

	sql := CopyQuery(s.codec, rel)
	log.Debug("starting export", zap.String("query", sql))
	timer := metrics.NewTimer(kind)

	src, err := conn.CopyOut(ctx, sql)
	if err != nil {
		return annotate(err, rel)
	}

	frames := NewBinaryCopyOutStream(src)
	var rows int64
	for {
		raw, err := frames.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return annotate(err, rel)
		}

		row, err := s.codec.Decode(types, pgtype.RecordOID, raw)
		if err != nil {
			metrics.RowsExported.WithLabelValues(metrics.OutcomeFailed).Inc()
			return annotate(err, rel)
		}
		metrics.RowsExported.WithLabelValues(metrics.OutcomeDecoded).Inc()
		rows++

		if !yield(row, nil) {
			return errStopped
		}
	}

	if err := drain(ctx, src); err != nil {
		return annotate(err, rel)
	}

	elapsed := timer.Stop()
	metrics.RelationDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	span.SetAttributes(attribute.Int64("rows", rows))
	log.Info("relation exported", zap.Int64("rows", rows), zap.Duration("duration", elapsed))
	return nil
}

// annotate records the relation on err without changing its category.
// Errors from outside the error model are treated as transport failures.
func annotate(err error, rel Relation) error {
	var e *streamerrors.Error
	if errors.As(err, &e) {
		return e.WithDetail("relation", rel.String())
	}
	return streamerrors.Wrap(err, streamerrors.ErrorTypeTransport, "export failed").
		WithDetail("relation", rel.String())
}
