package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/any-hub/blobfetch/internal/fetcherr"
)

const (
	sharedUmask    = 0o002
	sharedDirMode  = 0o2775
	sharedFileMode = 0o664
)

// umask 是进程级状态，所有修改都经由 umaskMu 串行化。
var umaskMu sync.Mutex

func withUmask(mask int, fn func() error) error {
	umaskMu.Lock()
	defer umaskMu.Unlock()

	old := unix.Umask(mask)
	defer unix.Umask(old)
	return fn()
}

func currentUID() int {
	return unix.Getuid()
}

func ownerOf(p string) (int, error) {
	var st unix.Stat_t
	if err := unix.Stat(p, &st); err != nil {
		return -1, err
	}
	return int(st.Uid), nil
}

// relaxIfOwned 仅在 p 归 ownerUID 所有时修改权限，别人的文件保持原样。
func relaxIfOwned(p string, ownerUID int, mode uint32) error {
	uid, err := ownerOf(p)
	if err != nil {
		return err
	}
	if uid != ownerUID {
		return nil
	}
	return unix.Chmod(p, mode)
}

// EnsureSharedDirectory 创建 dir（含缺失的父目录），随后从 dir 向上逐级走到 root（不含 root），
// 把归 ownerUID 所有的目录统一设置为 02775，使多个非特权用户可以共享同一棵缓存树。
// 重复调用是幂等的。
func EnsureSharedDirectory(root, dir string, ownerUID int) error {
	root = filepath.Clean(root)
	dir = filepath.Clean(dir)

	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s is outside cache root %s", dir, root)
	}

	if err := os.MkdirAll(dir, 0o777); err != nil {
		return err
	}

	for p := dir; p != root; p = filepath.Dir(p) {
		if err := relaxIfOwned(p, ownerUID, sharedDirMode); err != nil {
			return err
		}
		if filepath.Dir(p) == p {
			break
		}
	}
	return nil
}

// initRoot 在根目录不存在时以 umask 002 创建它；配置了 group 时 chown 到该组并设置 setgid，
// 让所有子孙目录继承组可写。
func initRoot(root, group string, ownerUID int) error {
	if _, err := os.Stat(root); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fetcherr.Storage("stat", root, err)
	}

	return withUmask(sharedUmask, func() error {
		if err := os.MkdirAll(root, 0o777); err != nil {
			return fetcherr.Storage("mkdir", root, err)
		}
		if group == "" {
			return nil
		}

		gid, err := lookupGID(group)
		if err != nil {
			return err
		}
		if gid == 0 {
			return nil
		}
		if err := unix.Chown(root, currentUID(), gid); err != nil {
			return fetcherr.Storage("chown", root, err)
		}
		return fetcherr.Storage("chmod", root, unix.Chmod(root, sharedDirMode))
	})
}

func lookupGID(name string) (int, error) {
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, fmt.Errorf("lookup cache group %s: %w", name, err)
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return 0, fmt.Errorf("parse gid of %s: %w", name, err)
	}
	return gid, nil
}
