package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ajitpratap0/pgstream/pkg/compression"
	"github.com/ajitpratap0/pgstream/pkg/config"
	"github.com/ajitpratap0/pgstream/pkg/connector/sources/postgresql"
	"github.com/ajitpratap0/pgstream/pkg/json"
	"github.com/ajitpratap0/pgstream/pkg/logger"
	"github.com/ajitpratap0/pgstream/pkg/metrics"
	"github.com/ajitpratap0/pgstream/pkg/observability"
	"github.com/ajitpratap0/pgstream/pkg/pgdata"
	"github.com/ajitpratap0/pgstream/pkg/pipeline"
	"github.com/ajitpratap0/pgstream/pkg/streamerrors"
)

const (
	progressInterval       = 10 * time.Second
	metricsShutdownTimeout = 5 * time.Second
)

// runExport streams every row of cfg to its output. Errors of individual
// assignments are logged as they arrive; the export still fails at the end
// if there were any.
func runExport(ctx context.Context, cfg *config.ExportConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := logger.Init(logger.Config{
		Level:    cfg.Observability.LogLevel,
		Encoding: cfg.Observability.LogEncoding,
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx = context.WithValue(ctx, logger.ExportKey, cfg.Name)
	base := logger.Get().With(zap.String("component", "pgstream-cli"))
	log := logger.FromContext(ctx, base)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Timeouts.Export > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeouts.Export)
		defer cancel()
	}

	if cfg.Observability.EnableTracing {
		tracing := observability.DefaultTracingConfig()
		tracing.ServiceVersion = version
		tracing.SamplingRate = cfg.Observability.TracingSampleRate
		shutdown, err := observability.Init(tracing)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Warn("failed to flush traces", zap.Error(err))
			}
		}()
	}

	if cfg.Observability.EnableMetrics {
		srv := serveMetrics(cfg.Observability.MetricsAddr, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	assignments, err := postgresql.AssignmentsFromConfig(cfg)
	if err != nil {
		return err
	}

	out, err := openOutput(cfg.Output)
	if err != nil {
		return err
	}
	format, err := json.ParseFormat(cfg.Output.Format)
	if err != nil {
		_ = out.Close()
		return err
	}
	encoder := json.NewStreamingEncoder(out, format)

	source := postgresql.NewSource(pgdata.Values(cfg.Columns...), assignments,
		postgresql.WithLogger(base),
		postgresql.WithChunkBuffer(cfg.Performance.ChunkBuffer),
		postgresql.WithConnectTimeout(cfg.Timeouts.Connection))

	log.Info("starting export",
		zap.Int("assignments", len(assignments)),
		zap.Int("workers", cfg.Performance.Workers),
		zap.String("output", cfg.Output.Path),
		zap.String("compression", cfg.Output.Compression))

	start := time.Now()
	stream := source.Stream(ctx, pipeline.NewThreadPool(cfg.Performance.Workers))
	failures, firstErr, writeErr := drainRows(stream, encoder, metrics.NewThroughputTracker(cfg.Name), log)

	closeErr := stream.Close()
	if err := encoder.Close(); err != nil && writeErr == nil {
		writeErr = err
	}
	if err := out.Close(); err != nil && writeErr == nil {
		writeErr = streamerrors.Wrap(err, streamerrors.ErrorTypeTransport, "failed to close output")
	}

	log.Info("export finished",
		zap.Int64("rows", encoder.Count()),
		zap.Int("failures", failures),
		zap.Duration("duration", time.Since(start)))

	switch {
	case writeErr != nil:
		return writeErr
	case closeErr != nil:
		return closeErr
	case failures > 0:
		return streamerrors.Wrap(firstErr, streamerrors.TypeOf(firstErr), "export finished with failed assignments").
			WithDetail("failures", failures)
	case ctx.Err() != nil:
		return streamerrors.Wrap(ctx.Err(), streamerrors.ErrorTypeTransport, "export interrupted")
	}
	return nil
}

// drainRows writes every row of stream to encoder until the stream ends or
// a write fails.
func drainRows(stream *pipeline.Stream[map[string]any], encoder *json.StreamingEncoder, tracker *metrics.ThroughputTracker, log *zap.Logger) (failures int, firstErr, writeErr error) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	results := stream.C()
	for {
		select {
		case r, ok := <-results:
			if !ok {
				return failures, firstErr, nil
			}
			if r.Err != nil {
				failures++
				if firstErr == nil {
					firstErr = r.Err
				}
				log.Error("assignment failed", zap.Error(r.Err))
				continue
			}
			if err := encoder.Encode(r.Value); err != nil {
				return failures, firstErr, err
			}
			tracker.Increment(1)

		case <-ticker.C:
			log.Info("export progress",
				zap.Int64("rows", encoder.Count()),
				zap.Float64("rows_per_second", tracker.GetAndReset()))
		}
	}
}

// openOutput opens the configured destination, wrapped in the configured
// compression.
func openOutput(cfg config.OutputConfig) (io.WriteCloser, error) {
	alg, err := compression.ParseAlgorithm(cfg.Compression)
	if err != nil {
		return nil, err
	}

	var file io.WriteCloser
	if cfg.Path == "" || cfg.Path == "-" {
		file = nopCloser{os.Stdout}
	} else {
		f, err := os.Create(cfg.Path) //nolint:gosec // G304: path comes from the operator's configuration
		if err != nil {
			return nil, streamerrors.Wrap(err, streamerrors.ErrorTypeConfig, "failed to create output file").
				WithDetail("path", cfg.Path)
		}
		file = f
	}

	if alg == compression.None {
		return file, nil
	}
	level := compression.Level(cfg.CompressionLevel)
	if level == 0 {
		level = compression.Default
	}
	w, err := compression.NewWriter(file, alg, level)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return &stackedWriter{WriteCloser: w, file: file}, nil
}

// stackedWriter closes the compressor before the file under it.
type stackedWriter struct {
	io.WriteCloser
	file io.Closer
}

func (w *stackedWriter) Close() error {
	return errors.Join(w.WriteCloser.Close(), w.file.Close())
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func serveMetrics(addr string, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))
	return srv
}
