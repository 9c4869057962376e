package cache

import (
	"errors"

	"github.com/any-hub/blobfetch/internal/cachekey"
)

// Store 负责管理共享磁盘缓存的读写。磁盘布局遵循：
//
//	<CachePath>/<namespace>/<hash[0:2]>/<hash[2:]>/<rev>    # 解压后的 blob
//	<CachePath>/repos                                      # 使用该缓存的仓库列表
//
// 写入失败以 *fetcherr.StorageError 返回，本层不做重试。
type Store interface {
	// Exists 仅根据路径是否存在判断命中。
	Exists(key cachekey.CacheKey) bool

	// Read 返回 blob 内容，不存在时返回 ErrNotFound。
	Read(key cachekey.CacheKey) ([]byte, error)

	// Write 创建缺失的父目录（带共享权限），通过临时文件 + rename 写入 blob，
	// 并在文件归当前用户所有时放宽为 0664。
	Write(key cachekey.CacheKey, data []byte) error

	// Registry 返回与该缓存根目录绑定的仓库登记文件。
	Registry() *RepoRegistry

	// Root 返回缓存根目录的绝对路径。
	Root() string
}

// Options 控制缓存根目录初始化与权限放宽的行为。
type Options struct {
	// Group 非空时，新建的根目录会 chown 到该组并设置 setgid。
	Group string
	// OwnerUID 是视为"自己"的用户 id，只有归它所有的目录/文件才会被放宽权限。
	// 为负数时使用当前进程的 uid。
	OwnerUID int
}

// ErrNotFound 表示缓存不存在。
var ErrNotFound = errors.New("cache entry not found")
