package daemon

import "github.com/any-hub/blobfetch/internal/cachekey"

// nullChannel 是没有配置 daemon 时的替身：每个 key 都是 miss，set/exit 都是 no-op。
type nullChannel struct{}

// NewNull returns a Channel that reports every requested key as a miss.
func NewNull() Channel {
	return nullChannel{}
}

func (nullChannel) Request(keys []cachekey.CacheKey, _ func(int)) ([]cachekey.CacheKey, error) {
	misses := make([]cachekey.CacheKey, len(keys))
	copy(misses, keys)
	return misses, nil
}

func (nullChannel) Populate([]cachekey.CacheKey) error { return nil }

func (nullChannel) Close() error { return nil }
