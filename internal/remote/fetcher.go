package remote

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/blobfetch/internal/cachekey"
	"github.com/any-hub/blobfetch/internal/codec"
	"github.com/any-hub/blobfetch/internal/fetcherr"
)

const (
	// DefaultBatchSize 限制单批未确认请求的数量。
	DefaultBatchSize = 10000

	getFilesCommand = "getfiles"
	protocolStage   = "file contents"
)

// Miss 是 daemon 报告缺失、需要从 origin 拉取的一个条目。
type Miss struct {
	Key  cachekey.CacheKey
	Path string
}

// BlobWriter 接收解压后的 blob，通常是 cache.Store。
type BlobWriter interface {
	Write(key cachekey.CacheKey, data []byte) error
}

// Populator 接收成功落盘的 key 列表，通常是 daemon.Channel。
type Populator interface {
	Populate(keys []cachekey.CacheKey) error
}

// Options 组装 Fetcher 的依赖。
type Options struct {
	Peer      Peer
	Codec     codec.Codec
	Store     BlobWriter
	BatchSize int
	// MaxPayloadSize 限制单个响应声明的长度，默认 codec.MaxBlobSize。
	MaxPayloadSize int64
	Logger         *logrus.Logger
}

// Fetcher 负责 getfiles 批量拉取。
type Fetcher struct {
	peer       Peer
	codec      codec.Codec
	store      BlobWriter
	batchSize  int
	maxPayload int64
	logger     *logrus.Logger
}

// NewFetcher 校验依赖并填充默认值。
func NewFetcher(opts Options) (*Fetcher, error) {
	if opts.Peer == nil {
		return nil, errors.New("remote peer is required")
	}
	if opts.Store == nil {
		return nil, errors.New("blob store is required")
	}
	if opts.Codec == nil {
		c, err := codec.Lookup(codec.Default)
		if err != nil {
			return nil, err
		}
		opts.Codec = c
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxPayloadSize <= 0 {
		opts.MaxPayloadSize = codec.MaxBlobSize
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Fetcher{
		peer:       opts.Peer,
		codec:      opts.Codec,
		store:      opts.Store,
		batchSize:  opts.BatchSize,
		maxPayload: opts.MaxPayloadSize,
		logger:     opts.Logger,
	}, nil
}

// Fetch 按批拉取 misses 并写入 store。所有批次成功后关闭远端流，再通过 populator（可为 nil）
// 通知 daemon。onEntry（可为 nil）在每个条目落盘后回调。任何协议错误都会中止整个调用。
func (f *Fetcher) Fetch(ctx context.Context, misses []Miss, populator Populator, onEntry func()) error {
	if len(misses) == 0 {
		return nil
	}
	for _, m := range misses {
		if err := checkFraming(m); err != nil {
			return err
		}
	}

	stream, err := f.peer.CallStream(ctx, getFilesCommand)
	if err != nil {
		return fmt.Errorf("open %s stream: %w", getFilesCommand, err)
	}
	closed := false
	defer func() {
		if !closed {
			_ = stream.Close()
		}
	}()

	for start := 0; start < len(misses); start += f.batchSize {
		end := start + f.batchSize
		if end > len(misses) {
			end = len(misses)
		}
		batch := misses[start:end]

		for _, m := range batch {
			if _, err := io.WriteString(stream, m.Key.Rev()+m.Path+"\n"); err != nil {
				return fmt.Errorf("send %s request: %w", getFilesCommand, err)
			}
		}
		if err := stream.Flush(); err != nil {
			return fmt.Errorf("flush %s batch: %w", getFilesCommand, err)
		}

		r := stream.Reader()
		for _, m := range batch {
			if err := f.receive(r, m); err != nil {
				return err
			}
			if onEntry != nil {
				onEntry()
			}
		}

		f.logger.WithFields(logrus.Fields{
			"action":  "remote_batch",
			"entries": len(batch),
			"done":    end,
			"total":   len(misses),
		}).Debug("remote batch received")
	}

	closed = true
	if err := stream.Close(); err != nil {
		return err
	}

	if populator == nil {
		return nil
	}
	keys := make([]cachekey.CacheKey, len(misses))
	for i, m := range misses {
		keys[i] = m.Key
	}
	if err := populator.Populate(keys); err != nil {
		return fmt.Errorf("populate daemon: %w", err)
	}
	return nil
}

// receive 读取一个 "<len>\n<bytes>" 响应，解压后写入 store。
func (f *Fetcher) receive(r *bufio.Reader, m Miss) error {
	line, err := r.ReadString('\n')
	if err != nil {
		return fetcherr.NewClosedEarly(protocolStage)
	}
	line = strings.TrimSuffix(line, "\n")
	if line == "" {
		return fetcherr.NewClosedEarly(protocolStage)
	}

	size, err := strconv.ParseInt(line, 10, 64)
	if err != nil || size < 0 {
		return fetcherr.NewProtocolError(protocolStage, fmt.Errorf("invalid length %q for %s", line, m.Path))
	}
	if size > f.maxPayload {
		return fetcherr.NewProtocolError(protocolStage, fmt.Errorf("length %d for %s exceeds limit %d", size, m.Path, f.maxPayload))
	}

	// 按实际到达的数据增长缓冲区，短流在分配大块内存之前就会失败。
	var payload bytes.Buffer
	if _, err := io.CopyN(&payload, r, size); err != nil {
		return fetcherr.NewClosedEarly(protocolStage)
	}

	raw, err := f.codec.Decode(payload.Bytes())
	if err != nil {
		return fetcherr.NewProtocolError(protocolStage, fmt.Errorf("%s@%s: %w", m.Path, m.Key.Rev(), err))
	}
	return f.store.Write(m.Key, raw)
}

// checkFraming 拒绝无法用定宽 id + 路径 + 换行表达的请求。
func checkFraming(m Miss) error {
	if len(m.Key) < cachekey.RevLength {
		return fetcherr.NewProtocolError(protocolStage, fmt.Errorf("key %q is shorter than a revision id", m.Key))
	}
	if strings.ContainsAny(m.Path, "\n") {
		return fetcherr.NewProtocolError(protocolStage, fmt.Errorf("path %q contains a newline", m.Path))
	}
	return nil
}
