package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/blobfetch/internal/cache"
	"github.com/any-hub/blobfetch/internal/cachekey"
	"github.com/any-hub/blobfetch/internal/daemon"
	"github.com/any-hub/blobfetch/internal/fetcherr"
	"github.com/any-hub/blobfetch/internal/logging"
	"github.com/any-hub/blobfetch/internal/progress"
	"github.com/any-hub/blobfetch/internal/remote"
)

const progressLabel = "downloading"

// DefaultExcludePaths 是永远不参与缓存的保留路径。
var DefaultExcludePaths = []string{".hgtags"}

// ErrClientClosed 表示 Client 已经 Close，不能再发起请求。
var ErrClientClosed = errors.New("fetch client closed")

// State 描述与 daemon 的连接状态。
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RemoteFetcher 从 origin 拉取 daemon 缺失的条目，*remote.Fetcher 即为实现。
type RemoteFetcher interface {
	Fetch(ctx context.Context, misses []remote.Miss, populator remote.Populator, onEntry func()) error
}

// Options 组装 Client 的依赖。
type Options struct {
	// Namespace 是缓存键的命名空间（通常是仓库名），必填。
	Namespace string
	// RepoPath 非空时，每次访问 daemon 后登记到缓存根目录的 repos 文件。
	RepoPath string
	Store    cache.Store
	// Host 为 nil 时不检查宿主存储。
	Host HostStore
	// Dial 在首次请求时建立 daemon 会话；为 nil 时使用 null channel。
	Dial func() (daemon.Channel, error)
	// Remote 为 nil 时 daemon 的 miss 全部视为不可用。
	Remote RemoteFetcher
	Sink   progress.Sink
	Logger *logrus.Logger
	// Debug 打开时，Close 会通过 Sink.Warn 输出统计摘要。
	Debug bool
	// Exclude 为 nil 时使用 DefaultExcludePaths。
	Exclude []string
	// Matcher 返回 false 的路径不参与缓存，可为 nil。
	Matcher func(path string) bool
	// Stats 允许注入外部统计对象，为 nil 时 Client 自建。
	Stats *Statistics
}

// Client 是 FetchCoordinator。它独占 daemon 会话，不支持并发调用 Prefetch。
type Client struct {
	namespace string
	repoPath  string
	store     cache.Store
	host      HostStore
	dial      func() (daemon.Channel, error)
	remote    RemoteFetcher
	sink      progress.Sink
	logger    *logrus.Logger
	debug     bool
	exclude   map[string]struct{}
	matcher   func(path string) bool
	stats     *Statistics
	now       func() time.Time

	channel daemon.Channel
	// state 允许 HTTP 诊断接口在 Prefetch 进行中并发读取。
	state atomic.Int32
}

// New 校验依赖并构造处于 Disconnected 状态的 Client。
func New(opts Options) (*Client, error) {
	if opts.Namespace == "" {
		return nil, errors.New("cache namespace is required")
	}
	if opts.Store == nil {
		return nil, errors.New("cache store is required")
	}
	if opts.Dial == nil {
		opts.Dial = func() (daemon.Channel, error) { return daemon.NewNull(), nil }
	}
	if opts.Sink == nil {
		opts.Sink = progress.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Exclude == nil {
		opts.Exclude = DefaultExcludePaths
	}
	if opts.Stats == nil {
		opts.Stats = &Statistics{}
	}

	exclude := make(map[string]struct{}, len(opts.Exclude))
	for _, p := range opts.Exclude {
		exclude[p] = struct{}{}
	}

	c := &Client{
		namespace: opts.Namespace,
		repoPath:  opts.RepoPath,
		store:     opts.Store,
		host:      opts.Host,
		dial:      opts.Dial,
		remote:    opts.Remote,
		sink:      opts.Sink,
		logger:    opts.Logger,
		debug:     opts.Debug,
		exclude:   exclude,
		matcher:   opts.Matcher,
		stats:     opts.Stats,
		now:       time.Now,
	}
	c.setState(StateDisconnected)
	return c, nil
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// Stats returns the client's statistics.
func (c *Client) Stats() *Statistics {
	return c.stats
}

// Prefetch 把 entries 中尚未缓存的 blob 下载到共享缓存。force 为 true 时不跳过已存在的条目。
// 过滤后没有需要下载的条目时直接返回，不产生网络请求也不更新统计。
func (c *Client) Prefetch(ctx context.Context, entries []cachekey.FileID, force bool) error {
	if c.State() == StateClosed {
		return ErrClientClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	missing := c.filter(entries, force)
	if len(missing) == 0 {
		return nil
	}

	c.stats.recordFetch(len(missing))
	started := c.now()
	if err := c.request(ctx, missing); err != nil {
		c.logger.WithError(err).
			WithFields(logging.FetchFields(c.namespace, len(missing))).
			Warn("prefetch_failed")
		return err
	}
	elapsed := c.now().Sub(started)
	c.stats.recordCost(elapsed)
	return nil
}

// filter 去掉保留路径、工作区版本、重复条目，以及（非 force 时）已在共享缓存或宿主存储中的条目。
func (c *Client) filter(entries []cachekey.FileID, force bool) []cachekey.FileID {
	seen := make(map[cachekey.CacheKey]struct{}, len(entries))
	var missing []cachekey.FileID
	for _, id := range entries {
		if _, skip := c.exclude[id.Path]; skip {
			continue
		}
		if cachekey.IsWorkingRev(id.Rev) {
			continue
		}
		if c.matcher != nil && !c.matcher(id.Path) {
			continue
		}

		key := id.CacheKey(c.namespace)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if !force {
			if c.store.Exists(key) {
				continue
			}
			if c.host != nil && c.host.Has(id.LocalKey()) {
				continue
			}
		}
		missing = append(missing, id)
	}
	return missing
}

func (c *Client) request(ctx context.Context, ids []cachekey.FileID) error {
	ch, err := c.connect()
	if err != nil {
		return err
	}

	keys := make([]cachekey.CacheKey, len(ids))
	paths := make(map[cachekey.CacheKey]string, len(ids))
	for i, id := range ids {
		keys[i] = id.CacheKey(c.namespace)
		paths[keys[i]] = id.Path
	}

	total := len(keys)
	c.sink.Report(progressLabel, 0, total)
	defer c.sink.Clear(progressLabel)

	misses, err := ch.Request(keys, func(hits int) {
		c.sink.Report(progressLabel, hits, total)
	})
	if err != nil {
		c.disconnect()
		return err
	}

	remoteMisses := make([]remote.Miss, 0, len(misses))
	for _, key := range misses {
		p, ok := paths[key]
		if !ok {
			c.disconnect()
			return fetcherr.NewProtocolError("cached file", fmt.Errorf("daemon reported unrequested key %q", key))
		}
		remoteMisses = append(remoteMisses, remote.Miss{Key: key, Path: p})
	}

	c.stats.recordMisses(len(misses))
	done := total - len(misses)
	c.sink.Report(progressLabel, done, total)

	if len(remoteMisses) > 0 && c.remote != nil {
		err := c.remote.Fetch(ctx, remoteMisses, ch, func() {
			done++
			c.sink.Report(progressLabel, done, total)
		})
		if err != nil {
			return err
		}
	}

	if c.repoPath != "" {
		if err := c.store.Registry().Record(c.repoPath); err != nil {
			return err
		}
	}

	unavailable := 0
	for _, key := range misses {
		if !c.store.Exists(key) {
			unavailable++
		}
	}

	fields := logging.FetchFields(c.namespace, total)
	fields["misses"] = len(misses)
	fields["unavailable"] = unavailable
	c.logger.WithFields(fields).Debug("prefetch_round")

	if unavailable > 0 {
		return &fetcherr.UnavailableError{Count: unavailable}
	}
	return nil
}

// connect 懒建立 daemon 会话，之后的调用复用同一会话直到 Close。
func (c *Client) connect() (daemon.Channel, error) {
	if c.channel != nil {
		return c.channel, nil
	}
	ch, err := c.dial()
	if err != nil {
		return nil, fmt.Errorf("connect cache daemon: %w", err)
	}
	c.channel = ch
	c.setState(StateConnected)
	return ch, nil
}

// disconnect 丢弃出错的 daemon 会话，下一次请求会重新建立连接。
func (c *Client) disconnect() {
	if c.channel == nil {
		return
	}
	ch := c.channel
	c.channel = nil
	c.setState(StateDisconnected)
	if err := ch.Close(); err != nil {
		c.logger.WithError(err).
			WithFields(logrus.Fields{"action": "cache_daemon", "repo": c.namespace}).
			Warn("daemon_close_failed")
	}
}

// Close 在 debug 模式下输出统计摘要，然后结束 daemon 会话。重复调用是 no-op。
func (c *Client) Close() error {
	if c.State() == StateClosed {
		return nil
	}
	c.setState(StateClosed)

	if snap := c.stats.Snapshot(); c.debug && snap.Fetches > 0 {
		c.sink.Warn(snap.Summary())
	}

	if c.channel == nil {
		return nil
	}
	ch := c.channel
	c.channel = nil
	return ch.Close()
}
