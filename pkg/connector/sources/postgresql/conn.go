package postgresql

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/ajitpratap0/pgstream/pkg/logger"
	"github.com/ajitpratap0/pgstream/pkg/metrics"
	"github.com/ajitpratap0/pgstream/pkg/streamerrors"
)

// Connector opens connections for assignments.
type Connector interface {
	Connect(ctx context.Context, params ConnectParams) (Conn, error)
}

// Conn is one open connection. Exports run one at a time: CopyOut blocks
// until the previous export has been drained.
type Conn interface {
	CopyOut(ctx context.Context, sql string) (ChunkSource, error)
	Close(ctx context.Context) error
}

const (
	defaultChunkBuffer = 16
	closeTimeout       = 5 * time.Second
)

// PgConnector connects with pgconn. The zero value is ready to use.
type PgConnector struct {
	// ChunkBuffer bounds the CopyData payloads buffered between the driver
	// and the consumer.
	ChunkBuffer int
	Logger      *zap.Logger
}

// Connect opens a connection and starts its driver. The driver stops when ctx
// is cancelled or the connection is closed.
func (c PgConnector) Connect(ctx context.Context, params ConnectParams) (Conn, error) {
	cfg, err := params.Config()
	if err != nil {
		return nil, err
	}

	pc, err := pgconn.ConnectConfig(ctx, &cfg.Config)
	if err != nil {
		return nil, classify(err, "failed to connect").
			WithDetail("host", cfg.Host).
			WithDetail("port", cfg.Port)
	}

	buffer := c.ChunkBuffer
	if buffer <= 0 {
		buffer = defaultChunkBuffer
	}
	log := c.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return startDriver(ctx, pc, buffer, log), nil
}

// classify maps a pgconn error to the error model: anything the server
// reported is a driver error carrying its SQLSTATE, the rest is transport.
func classify(err error, message string) *streamerrors.Error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return streamerrors.Wrap(err, streamerrors.ErrorTypeDriver, message).
			WithDetail("code", pgErr.Code)
	}
	return streamerrors.Wrap(err, streamerrors.ErrorTypeTransport, message)
}

type copyRequest struct {
	ctx    context.Context
	sql    string
	chunks chan []byte
	result chan error
}

// driver owns a pgconn and runs copy requests on its own goroutine.
type driver struct {
	pc       *pgconn.PgConn
	requests chan copyRequest
	cancel   context.CancelFunc
	done     chan struct{}
	buffer   int
	logger   *zap.Logger
}

func startDriver(ctx context.Context, pc *pgconn.PgConn, buffer int, log *zap.Logger) *driver {
	ctx, cancel := context.WithCancel(ctx)
	d := &driver{
		pc:       pc,
		requests: make(chan copyRequest),
		cancel:   cancel,
		done:     make(chan struct{}),
		buffer:   buffer,
		logger:   log,
	}
	go d.run(ctx)
	return d
}

func (d *driver) run(ctx context.Context) {
	defer close(d.done)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := d.pc.Close(closeCtx); err != nil {
			d.logger.Debug("error closing connection", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.requests:
			d.serve(ctx, req)
		}
	}
}

func (d *driver) serve(ctx context.Context, req copyRequest) {
	reqCtx, cancel := context.WithCancel(req.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	timer := metrics.NewTimer("copy")
	tag, err := d.pc.CopyTo(reqCtx, &chunkWriter{ctx: reqCtx, chunks: req.chunks}, req.sql)
	close(req.chunks)

	if err != nil {
		req.result <- classify(err, "copy failed")
		return
	}
	logger.FromContext(req.ctx, d.logger).Debug("copy complete",
		zap.Int64("rows", tag.RowsAffected()),
		zap.Duration("duration", timer.Stop()))
	req.result <- nil
}

func (d *driver) CopyOut(ctx context.Context, sql string) (ChunkSource, error) {
	req := copyRequest{
		ctx:    ctx,
		sql:    sql,
		chunks: make(chan []byte, d.buffer),
		result: make(chan error, 1),
	}
	select {
	case d.requests <- req:
		return &chunkStream{chunks: req.chunks, result: req.result}, nil
	case <-d.done:
		return nil, streamerrors.New(streamerrors.ErrorTypeTransport, "connection is closed")
	case <-ctx.Done():
		return nil, streamerrors.Wrap(ctx.Err(), streamerrors.ErrorTypeTransport, "copy was not started")
	}
}

// Close stops the driver, which closes the connection, and waits for it.
func (d *driver) Close(ctx context.Context) error {
	d.cancel()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return streamerrors.Wrap(ctx.Err(), streamerrors.ErrorTypeTransport, "timed out closing connection")
	}
}

// chunkWriter receives CopyData payloads from pgconn. pgconn reuses its read
// buffer, so every payload is copied before it is handed over.
type chunkWriter struct {
	ctx    context.Context
	chunks chan<- []byte
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	chunk := append([]byte(nil), p...)
	select {
	case w.chunks <- chunk:
		metrics.CopyBytes.Add(float64(len(p)))
		return len(p), nil
	case <-w.ctx.Done():
		return 0, w.ctx.Err()
	}
}

// chunkStream is the consumer side of one copy request.
type chunkStream struct {
	chunks <-chan []byte
	result <-chan error
	err    error
}

func (s *chunkStream) Next(ctx context.Context) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	select {
	case chunk, ok := <-s.chunks:
		if ok {
			return chunk, nil
		}
		s.err = <-s.result
		if s.err == nil {
			s.err = io.EOF
		}
		return nil, s.err
	case <-ctx.Done():
		return nil, streamerrors.Wrap(ctx.Err(), streamerrors.ErrorTypeTransport, "copy cancelled")
	}
}

// drain reads src to its end so that the export's final status is observed.
func drain(ctx context.Context, src ChunkSource) error {
	for {
		_, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
