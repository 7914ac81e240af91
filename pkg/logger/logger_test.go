package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/pgstream/pkg/streamerrors"
)

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	require.Error(t, err)
	assert.True(t, streamerrors.IsType(err, streamerrors.ErrorTypeConfig))
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	ctx := context.WithValue(context.Background(), ExportKey, "weather")
	ctx = context.WithValue(ctx, AssignmentKey, 3)
	ctx = context.WithValue(ctx, RelationKey, `"public"."weather"`)

	FromContext(ctx, base).Info("relation started")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "weather", fields["export"])
	assert.Equal(t, int64(3), fields["assignment"])
	assert.Equal(t, `"public"."weather"`, fields["relation"])
}

func TestSetAndGet(t *testing.T) {
	prev := Get()
	defer Set(prev)

	core, logs := observer.New(zap.InfoLevel)
	Set(zap.New(core))
	Get().Info("hello", zap.String("k", "v"))
	Get().Debug("dropped")

	assert.Equal(t, 1, logs.Len())
}
