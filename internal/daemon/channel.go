package daemon

import (
	"github.com/sirupsen/logrus"

	"github.com/any-hub/blobfetch/internal/cachekey"
)

// Channel 是与本地缓存 daemon 的会话。实现不要求并发安全，由 fetch.Client 独占使用。
type Channel interface {
	// Request 询问 daemon 哪些 key 缺失。onHits 在每次收到 _hits_ 进度行时以累计命中数回调，可为 nil。
	Request(keys []cachekey.CacheKey, onHits func(hits int)) ([]cachekey.CacheKey, error)
	// Populate 通知 daemon 这些 key 已经落盘，可并入它自己的索引。
	Populate(keys []cachekey.CacheKey) error
	// Close 结束会话，重复调用是 no-op。
	Close() error
}

// Options 描述如何建立 daemon 会话。
type Options struct {
	// Command 为空时使用 null channel。
	Command   string
	CacheRoot string
	Logger    *logrus.Logger
}

// Dial 在构造时选择具体实现：配置了 Command 时拉起子进程，否则返回 null channel。
func Dial(opts Options) (Channel, error) {
	if opts.Command == "" {
		return NewNull(), nil
	}
	return Spawn(opts.Command, opts.CacheRoot, opts.Logger)
}
