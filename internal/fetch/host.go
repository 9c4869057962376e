package fetch

import (
	"os"
	"path/filepath"

	"github.com/any-hub/blobfetch/internal/cachekey"
)

// HostStore 查询宿主自己的本地存储是否已经持有某个 blob。
type HostStore interface {
	Has(key cachekey.LocalKey) bool
}

// DirHostStore 对应 <StorePath>/data/<hash>/<rev> 的目录布局。
type DirHostStore struct {
	dataDir string
}

// NewDirHostStore 返回基于 storePath 的 HostStore；storePath 为空时返回 nil，表示没有宿主存储。
func NewDirHostStore(storePath string) *DirHostStore {
	if storePath == "" {
		return nil
	}
	return &DirHostStore{dataDir: filepath.Join(storePath, "data")}
}

func (s *DirHostStore) Has(key cachekey.LocalKey) bool {
	if s == nil {
		return false
	}
	_, err := os.Stat(filepath.Join(s.dataDir, filepath.FromSlash(string(key))))
	return err == nil
}
