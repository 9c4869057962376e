package server

import (
	"context"
	"sync"

	"github.com/any-hub/blobfetch/internal/cachekey"
	"github.com/any-hub/blobfetch/internal/fetch"
)

// Prefetcher 是 HTTP 层需要的 fetch.Client 能力，测试中可以替换。
type Prefetcher interface {
	Prefetch(ctx context.Context, entries []cachekey.FileID, force bool) error
	Stats() *fetch.Statistics
	State() fetch.State
	Close() error
}

// Service 串行化对 Prefetcher 的 Prefetch/Close 调用：daemon 会话不支持并发请求。
// Stats 与 State 本身并发安全，Status 不需要等待进行中的请求。
type Service struct {
	mu     sync.Mutex
	client Prefetcher
}

// NewService wraps client.
func NewService(client Prefetcher) *Service {
	return &Service{client: client}
}

// Prefetch 在持锁状态下转发给底层 client，并返回调用结束时的统计快照。
func (s *Service) Prefetch(ctx context.Context, entries []cachekey.FileID, force bool) (fetch.StatsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.client.Prefetch(ctx, entries, force)
	return s.client.Stats().Snapshot(), err
}

// Status 返回统计快照与连接状态。
func (s *Service) Status() (fetch.StatsSnapshot, fetch.State) {
	return s.client.Stats().Snapshot(), s.client.State()
}

// Close 等待进行中的请求结束后关闭底层 client。
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.Close()
}
