package fetch

import (
	"fmt"
	"sync"
	"time"
)

// Statistics 累计一个 Client 生命周期内的 fetch 指标。所有方法并发安全，便于 HTTP 服务读取快照。
type Statistics struct {
	mu      sync.Mutex
	fetches int
	fetched int
	misses  int
	cost    time.Duration
}

// StatsSnapshot 是 Statistics 的只读副本。
type StatsSnapshot struct {
	// Fetches 是真正产生网络请求的 Prefetch 次数。
	Fetches int `json:"fetches"`
	// Fetched 是请求过的条目总数。
	Fetched int `json:"fetched"`
	// FetchMisses 是 daemon 未能提供的条目数。
	FetchMisses int `json:"fetch_misses"`
	// FetchCost 是累计耗时（秒）。
	FetchCost float64 `json:"fetch_cost_seconds"`
}

// Snapshot returns a copy of the counters.
func (s *Statistics) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		Fetches:     s.fetches,
		Fetched:     s.fetched,
		FetchMisses: s.misses,
		FetchCost:   s.cost.Seconds(),
	}
}

// Reset zeroes all counters.
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches, s.fetched, s.misses, s.cost = 0, 0, 0, 0
}

func (s *Statistics) recordFetch(entries int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	s.fetched += entries
}

func (s *Statistics) recordMisses(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.misses += n
}

func (s *Statistics) recordCost(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cost += d
}

// HitRatio 返回 daemon 命中率（百分比）；尚无请求时为 0。
func (s StatsSnapshot) HitRatio() float64 {
	if s.Fetched == 0 {
		return 0
	}
	return float64(s.Fetched-s.FetchMisses) / float64(s.Fetched) * 100.0
}

// Summary 生成关闭连接时输出的统计摘要行。
func (s StatsSnapshot) Summary() string {
	return fmt.Sprintf("%d files fetched over %d fetches - (%d misses, %0.2f%% hit ratio) over %0.2fs",
		s.Fetched, s.Fetches, s.FetchMisses, s.HitRatio(), s.FetchCost)
}
