package swap

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Codec transforms tile payloads on their way to and from a driver.
type Codec interface {
	Name() string
	Encode(src []byte) ([]byte, error)
	Decode(src []byte) ([]byte, error)
}

const (
	CodecNone = "none"
	CodecZstd = "zstd"
	CodecXZ   = "xz"
)

func NewCodec(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", CodecNone:
		return noneCodec{}, nil
	case CodecZstd:
		return newZstdCodec()
	case CodecXZ:
		return xzCodec{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}

type noneCodec struct{}

func (noneCodec) Name() string { return CodecNone }

func (noneCodec) Encode(src []byte) ([]byte, error) {
	return bytes.Clone(src), nil
}

func (noneCodec) Decode(src []byte) ([]byte, error) {
	return src, nil
}

// zstdCodec shares one encoder and decoder; EncodeAll and DecodeAll are safe
// for concurrent use.
type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec() (*zstdCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &zstdCodec{enc: enc, dec: dec}, nil
}

func (c *zstdCodec) Name() string { return CodecZstd }

func (c *zstdCodec) Encode(src []byte) ([]byte, error) {
	return c.enc.EncodeAll(src, make([]byte, 0, len(src)/2)), nil
}

func (c *zstdCodec) Decode(src []byte) ([]byte, error) {
	out, err := c.dec.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}

type xzCodec struct{}

func (xzCodec) Name() string { return CodecXZ }

func (xzCodec) Encode(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("create xz writer: %w", err)
	}
	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("xz encode: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("xz encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (xzCodec) Decode(src []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("xz decode: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("xz decode: %w", err)
	}
	return out, nil
}
