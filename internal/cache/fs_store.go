package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/any-hub/blobfetch/internal/cachekey"
	"github.com/any-hub/blobfetch/internal/fetcherr"
)

// NewStore 以 root 为根目录构建共享缓存，整个进程复用一份实例。
func NewStore(root string, opts Options) (Store, error) {
	if root == "" {
		return nil, errors.New("cache path required")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve cache path: %w", err)
	}

	owner := opts.OwnerUID
	if owner < 0 {
		owner = currentUID()
	}

	if err := initRoot(abs, opts.Group, owner); err != nil {
		return nil, err
	}

	return &fileStore{
		root:     abs,
		ownerUID: owner,
		registry: NewRepoRegistry(abs, owner),
		locks:    make(map[string]*entryLock),
	}, nil
}

// fileStore 通过 entryLock 避免同一进程内对同一 key 的并发写入，跨进程依赖内容寻址。
type fileStore struct {
	root     string
	ownerUID int
	registry *RepoRegistry

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (s *fileStore) Root() string { return s.root }

func (s *fileStore) Registry() *RepoRegistry { return s.registry }

func (s *fileStore) Exists(key cachekey.CacheKey) bool {
	filePath, err := s.entryPath(key)
	if err != nil {
		return false
	}
	_, err = os.Stat(filePath)
	return err == nil
}

func (s *fileStore) Read(key cachekey.CacheKey) ([]byte, error) {
	filePath, err := s.entryPath(key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}
	return os.ReadFile(filePath)
}

func (s *fileStore) Write(key cachekey.CacheKey, data []byte) error {
	unlock := s.lockEntry(key)
	defer unlock()

	filePath, err := s.entryPath(key)
	if err != nil {
		return fetcherr.Storage("write", string(key), err)
	}

	return withUmask(sharedUmask, func() error {
		dir := filepath.Dir(filePath)
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			if err := EnsureSharedDirectory(s.root, dir, s.ownerUID); err != nil {
				return fetcherr.Storage("mkdir", dir, err)
			}
		}

		tempFile, err := os.CreateTemp(dir, ".blob-*")
		if err != nil {
			return fetcherr.Storage("write", filePath, err)
		}
		tempName := tempFile.Name()

		_, err = tempFile.Write(data)
		closeErr := tempFile.Close()
		if err == nil {
			err = closeErr
		}
		if err != nil {
			os.Remove(tempName)
			return fetcherr.Storage("write", filePath, err)
		}

		if err := os.Rename(tempName, filePath); err != nil {
			os.Remove(tempName)
			return fetcherr.Storage("rename", filePath, err)
		}

		return fetcherr.Storage("chmod", filePath, relaxIfOwned(filePath, s.ownerUID, sharedFileMode))
	})
}

func (s *fileStore) lockEntry(key cachekey.CacheKey) func() {
	k := string(key)
	s.mu.Lock()
	lock := s.locks[k]
	if lock == nil {
		lock = &entryLock{}
		s.locks[k] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, k)
		}
		s.mu.Unlock()
	}
}

func (s *fileStore) entryPath(key cachekey.CacheKey) (string, error) {
	rel := string(key)
	if rel == "" {
		return "", errors.New("cache key required")
	}
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")
	if rel == "" || rel != string(key) {
		return "", fmt.Errorf("invalid cache key %q", key)
	}

	filePath := filepath.Join(s.root, filepath.FromSlash(rel))
	if !strings.HasPrefix(filePath, s.root+string(filepath.Separator)) {
		return "", errors.New("invalid cache path")
	}
	return filePath, nil
}
