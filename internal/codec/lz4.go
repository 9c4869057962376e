package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// lz4 负载格式：4 字节小端的解压后长度，后接一个 lz4 block。
const lz4HeaderLen = 4

// lz4MaxRatio 是 lz4 block 能达到的最大压缩比上限（每个长度字节最多表示 255 字节）。
const lz4MaxRatio = 256

type lz4Codec struct{}

func (lz4Codec) Name() string { return "lz4" }

func (lz4Codec) Encode(raw []byte) ([]byte, error) {
	out := make([]byte, lz4HeaderLen+lz4.CompressBlockBound(len(raw)))
	binary.LittleEndian.PutUint32(out, uint32(len(raw)))
	if len(raw) == 0 {
		return out[:lz4HeaderLen], nil
	}

	var c lz4.Compressor
	n, err := c.CompressBlock(raw, out[lz4HeaderLen:])
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 {
		return nil, errors.New("lz4 compress: incompressible block")
	}
	return out[:lz4HeaderLen+n], nil
}

func (lz4Codec) Decode(payload []byte) ([]byte, error) {
	if len(payload) < lz4HeaderLen {
		return nil, fmt.Errorf("lz4 payload too short: %d bytes", len(payload))
	}
	size := binary.LittleEndian.Uint32(payload)
	if size == 0 {
		return []byte{}, nil
	}
	block := payload[lz4HeaderLen:]
	if uint64(size) > MaxBlobSize || uint64(size) > uint64(len(block))*lz4MaxRatio+16 {
		return nil, fmt.Errorf("lz4 payload declares %d bytes from a %d byte block", size, len(block))
	}

	out := make([]byte, size)
	n, err := lz4.UncompressBlock(block, out)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if n != int(size) {
		return nil, fmt.Errorf("lz4 decompress: expected %d bytes, got %d", size, n)
	}
	return out, nil
}
