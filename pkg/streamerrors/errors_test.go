package streamerrors

import (
	"errors"
	"fmt"
	"io"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(io.ErrUnexpectedEOF, ErrorTypeTransport, "short frame")

	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, ErrorTypeTransport, TypeOf(err))
	assert.Equal(t, "transport: short frame: unexpected EOF", err.Error())
	assert.NotEmpty(t, err.Stack)
	assert.Nil(t, Wrap(nil, ErrorTypeTransport, "nothing"))
}

func TestWrapPreservesStack(t *testing.T) {
	inner := New(ErrorTypeDecode, "bad int8")
	outer := Wrap(inner, ErrorTypeDecode, "field temp_lo")

	assert.Equal(t, inner.Stack, outer.Stack)
	assert.True(t, IsType(outer, ErrorTypeDecode))
	assert.False(t, IsType(outer, ErrorTypeDriver))
}

func TestIsTypeWalksChain(t *testing.T) {
	inner := New(ErrorTypeDecode, "bad int8")
	outer := Wrap(fmt.Errorf("row 3: %w", inner), ErrorTypeTransport, "export failed")

	assert.Equal(t, ErrorTypeTransport, TypeOf(outer))
	assert.True(t, IsType(outer, ErrorTypeTransport))
	assert.True(t, IsType(outer, ErrorTypeDecode))
	assert.False(t, IsType(outer, ErrorTypeConfig))
	assert.False(t, IsType(io.EOF, ErrorTypeTransport))
	assert.False(t, IsType(nil, ErrorTypeTransport))
}

func TestEqualIsCoarse(t *testing.T) {
	a := Wrap(io.EOF, ErrorTypeTransport, "connection closed")
	b := Wrap(errors.New("EOF"), ErrorTypeTransport, "connection closed")
	c := Wrap(errors.New("EOF"), ErrorTypeDriver, "connection closed")

	assert.True(t, a.Equal(b), "transport errors compare by rendered text")
	assert.False(t, a.Equal(c), "categories must match")
	assert.False(t, a.Equal(nil))
	assert.True(t, (*Error)(nil).Equal(nil))
}

func TestErrorSurvivesJSON(t *testing.T) {
	orig := Wrap(io.ErrUnexpectedEOF, ErrorTypeTransport, "copy stream ended before trailer").
		WithDetail("relation", "weather")

	data, err := gojson.Marshal(orig)
	require.NoError(t, err)

	var decoded Error
	require.NoError(t, gojson.Unmarshal(data, &decoded))

	assert.Nil(t, decoded.Cause)
	assert.Equal(t, orig.Error(), decoded.Error())
	assert.True(t, orig.Equal(&decoded))
	assert.Equal(t, "weather", decoded.Details["relation"])
}

func TestNewf(t *testing.T) {
	err := Newf(ErrorTypeDecode, "invalid length for %s: %d", "int8", 3)
	assert.Equal(t, "decode: invalid length for int8: 3", err.Error())
}
