package codec

import (
	"fmt"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// zstdCodec 复用一对无状态的 encoder/decoder，EncodeAll/DecodeAll 可并发调用。
type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec() zstdCodec {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		panic(err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		panic(err)
	}
	return zstdCodec{enc: enc, dec: dec}
}

func (zstdCodec) Name() string { return "zstd" }

func (c zstdCodec) Encode(raw []byte) ([]byte, error) {
	return c.enc.EncodeAll(raw, nil), nil
}

func (c zstdCodec) Decode(payload []byte) ([]byte, error) {
	out, err := c.dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}

type s2Codec struct{}

func (s2Codec) Name() string { return "s2" }

func (s2Codec) Encode(raw []byte) ([]byte, error) {
	return s2.Encode(nil, raw), nil
}

func (s2Codec) Decode(payload []byte) ([]byte, error) {
	out, err := s2.Decode(nil, payload)
	if err != nil {
		return nil, fmt.Errorf("s2 decompress: %w", err)
	}
	return out, nil
}
