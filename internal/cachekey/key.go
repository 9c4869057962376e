// Package cachekey derives the content-addressed names used by the shared
// blob cache, the cache daemon protocol and the host's own local store.
package cachekey

import (
	"crypto/sha1"
	"encoding/hex"
	"path"
)

const (
	// RevLength 是 revision id 的固定宽度（40 位十六进制），remote 请求行依赖该宽度切分路径。
	RevLength = 40
	// WorkingRevLength 表示工作区尚未提交版本的哨兵长度，这类 id 永远不会出现在任何缓存中。
	WorkingRevLength = 42
)

// FileID 标识一个不可变的 blob：仓库内路径 + revision id。
type FileID struct {
	Path string `json:"path"`
	Rev  string `json:"rev"`
}

// CacheKey 是共享缓存中的相对路径：<namespace>/<hash[0:2]>/<hash[2:]>/<rev>。
type CacheKey string

// LocalKey 是不带 namespace 的变体：<hash>/<rev>，用于查询宿主自身的本地存储。
type LocalKey string

// IsWorkingRev 判断 rev 是否为工作区哨兵 id。
func IsWorkingRev(rev string) bool {
	return len(rev) == WorkingRevLength
}

// PathHash 返回路径的 SHA-1 小写十六进制摘要，跨进程、跨语言保持稳定。
func PathHash(filePath string) string {
	sum := sha1.Sum([]byte(filePath))
	return hex.EncodeToString(sum[:])
}

// CacheKeyFor 为 (namespace, path, rev) 计算缓存键。
func CacheKeyFor(namespace, filePath, rev string) CacheKey {
	h := PathHash(filePath)
	return CacheKey(path.Join(namespace, h[:2], h[2:], rev))
}

// LocalKeyFor 计算宿主本地存储使用的键。
func LocalKeyFor(filePath, rev string) LocalKey {
	return LocalKey(path.Join(PathHash(filePath), rev))
}

// CacheKey returns the shared cache key of the identifier.
func (id FileID) CacheKey(namespace string) CacheKey {
	return CacheKeyFor(namespace, id.Path, id.Rev)
}

// LocalKey returns the host-store key of the identifier.
func (id FileID) LocalKey() LocalKey {
	return LocalKeyFor(id.Path, id.Rev)
}

// Rev 返回键末尾固定宽度的 revision id；键长度不足时返回整个键。
func (k CacheKey) Rev() string {
	s := string(k)
	if len(s) < RevLength {
		return s
	}
	return s[len(s)-RevLength:]
}

func (k CacheKey) String() string { return string(k) }

func (k LocalKey) String() string { return string(k) }

// Strings 把键列表转换为字符串切片，便于协议层按行写出。
func Strings(keys []CacheKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}
