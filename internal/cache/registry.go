package cache

import (
	"os"
	"path/filepath"

	"github.com/any-hub/blobfetch/internal/fetcherr"
)

const registryFileName = "repos"

// RepoRegistry 记录使用该共享缓存的宿主仓库路径（每行一个，只追加），供外部 GC 工具使用。
type RepoRegistry struct {
	path     string
	ownerUID int
}

// NewRepoRegistry 返回 root/repos 对应的登记文件。
func NewRepoRegistry(root string, ownerUID int) *RepoRegistry {
	return &RepoRegistry{
		path:     filepath.Join(root, registryFileName),
		ownerUID: ownerUID,
	}
}

// Path returns the registry file location.
func (r *RepoRegistry) Path() string {
	return r.path
}

// Record 追加一行 repoPath；文件不存在时创建，并在归自己所有时放宽为 0664。
func (r *RepoRegistry) Record(repoPath string) error {
	return withUmask(sharedUmask, func() error {
		f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o666)
		if err != nil {
			return fetcherr.Storage("open", r.path, err)
		}
		_, err = f.WriteString(repoPath + "\n")
		closeErr := f.Close()
		if err == nil {
			err = closeErr
		}
		if err != nil {
			return fetcherr.Storage("append", r.path, err)
		}
		return fetcherr.Storage("chmod", r.path, relaxIfOwned(r.path, r.ownerUID, sharedFileMode))
	})
}
