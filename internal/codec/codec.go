// Package codec 提供 remote 通道上 blob 负载的压缩格式。缓存中的 blob 始终以解压后形式落盘，
// 只有线上传输是压缩的。
package codec

import (
	"fmt"
	"sort"
	"strings"
)

// Codec 负责一种负载格式的编解码。
type Codec interface {
	Name() string
	Encode(raw []byte) ([]byte, error)
	Decode(payload []byte) ([]byte, error)
}

// Default is the codec spoken by existing getfiles peers.
const Default = "lz4"

// MaxBlobSize 是单个 blob 压缩前后允许的最大字节数，防止损坏的长度字段触发超大分配。
const MaxBlobSize = 1 << 30

var codecs = map[string]Codec{
	"lz4":  lz4Codec{},
	"zstd": newZstdCodec(),
	"s2":   s2Codec{},
}

// Lookup 根据名称返回 codec，名称大小写不敏感，空串视为默认 lz4。
func Lookup(name string) (Codec, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = Default
	}
	c, ok := codecs[key]
	if !ok {
		return nil, fmt.Errorf("unknown payload codec %q (supported: %s)", name, strings.Join(Names(), "|"))
	}
	return c, nil
}

// Names 返回按字母排序的 codec 名称。
func Names() []string {
	names := make([]string, 0, len(codecs))
	for name := range codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
