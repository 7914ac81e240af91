package postgresql

import (
	"context"
	"encoding/binary"
	"errors"
	"io"

	"github.com/ajitpratap0/pgstream/pkg/streamerrors"
)

// ChunkSource yields the CopyData payloads of one export in order. Next
// returns io.EOF once the export has completed successfully, or the error
// that ended it.
type ChunkSource interface {
	Next(ctx context.Context) ([]byte, error)
}

const (
	copySignature = "PGCOPY\n\xff\r\n\x00"
	// signature, flags, header extension length
	copyHeaderLen = len(copySignature) + 4 + 4
	copyHasOIDs   = 1 << 16
)

// BinaryCopyOutStream splits a binary COPY stream into field values. Every
// tuple must carry exactly one field.
//
// Values are sub-slices of the chunk they arrived in and stay valid until the
// next call to Next. A frame is never reassembled across chunks: the server
// sends each tuple in a single CopyData message, so a frame that runs past
// the end of its chunk is reported as truncated.
type BinaryCopyOutStream struct {
	src    ChunkSource
	chunk  []byte
	header bool
	done   bool
	err    error
}

// NewBinaryCopyOutStream decodes the export delivered by src.
func NewBinaryCopyOutStream(src ChunkSource) *BinaryCopyOutStream {
	return &BinaryCopyOutStream{src: src}
}

// Next returns the next value. A NULL is a nil slice; a zero-length value is
// a non-nil empty slice. After the trailer Next returns io.EOF, and after
// any other error it keeps returning that error.
func (s *BinaryCopyOutStream) Next(ctx context.Context) ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}
	if s.err != nil {
		return nil, s.err
	}

	value, err := s.next(ctx)
	if err == io.EOF {
		s.done = true
		return nil, io.EOF
	}
	if err != nil {
		s.err = err
		return nil, err
	}
	return value, nil
}

func (s *BinaryCopyOutStream) next(ctx context.Context) ([]byte, error) {
	if !s.header {
		if err := s.readHeader(ctx); err != nil {
			return nil, err
		}
		s.header = true
	}

	if err := s.fill(ctx); err != nil {
		return nil, err
	}
	b, err := s.take(2)
	if err != nil {
		return nil, err
	}
	switch count := int16(binary.BigEndian.Uint16(b)); count {
	case -1:
		return nil, io.EOF
	case 1:
	default:
		return nil, streamerrors.Newf(streamerrors.ErrorTypeTransport, "tuple has %d fields, expected 1", count)
	}

	if b, err = s.take(4); err != nil {
		return nil, err
	}
	length := int32(binary.BigEndian.Uint32(b))
	switch {
	case length == -1:
		return nil, nil
	case length < 0:
		return nil, streamerrors.Newf(streamerrors.ErrorTypeTransport, "invalid field length %d", length)
	}
	return s.take(int(length))
}

func (s *BinaryCopyOutStream) readHeader(ctx context.Context) error {
	if err := s.fill(ctx); err != nil {
		return err
	}
	b, err := s.take(copyHeaderLen)
	if err != nil {
		return err
	}
	if string(b[:len(copySignature)]) != copySignature {
		return streamerrors.New(streamerrors.ErrorTypeTransport, "invalid copy signature")
	}
	flags := binary.BigEndian.Uint32(b[len(copySignature):])
	if flags&copyHasOIDs != 0 {
		return streamerrors.New(streamerrors.ErrorTypeTransport, "copy stream includes OIDs, which is not supported")
	}
	extension := int32(binary.BigEndian.Uint32(b[len(copySignature)+4:]))
	if extension < 0 {
		return streamerrors.Newf(streamerrors.ErrorTypeTransport, "invalid header extension length %d", extension)
	}
	_, err = s.take(int(extension))
	return err
}

// fill pulls chunks until the cursor has data. Empty chunks are skipped.
func (s *BinaryCopyOutStream) fill(ctx context.Context) error {
	for len(s.chunk) == 0 {
		chunk, err := s.src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return streamerrors.Wrap(io.ErrUnexpectedEOF, streamerrors.ErrorTypeTransport, "copy stream ended before trailer")
		}
		if err != nil {
			return err
		}
		s.chunk = chunk
	}
	return nil
}

// take consumes n bytes from the current chunk.
func (s *BinaryCopyOutStream) take(n int) ([]byte, error) {
	if n > len(s.chunk) {
		return nil, streamerrors.Wrap(io.ErrUnexpectedEOF, streamerrors.ErrorTypeTransport, "copy frame truncated").
			WithDetail("need", n).
			WithDetail("have", len(s.chunk))
	}
	b := s.chunk[:n:n]
	s.chunk = s.chunk[n:]
	return b, nil
}
