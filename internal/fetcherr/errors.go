// Package fetcherr 定义 fetch 流程对外暴露的错误分类：协议错误、条目不可用、存储错误。
package fetcherr

import (
	"errors"
	"fmt"
)

// ErrClosedEarly 表示对端在给出完整的终止符/长度行之前关闭了连接。
var ErrClosedEarly = errors.New("connection closed early")

// ProtocolError 描述 daemon 或 remote 通道上的协议违例，对当前请求是致命的。
type ProtocolError struct {
	// Stage 说明出错时正在读取的内容，例如 "cached file" / "file contents"。
	Stage string
	Err   error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("error downloading %s: %v", e.Stage, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewClosedEarly 构造 "connection closed early" 类的协议错误。
func NewClosedEarly(stage string) error {
	return &ProtocolError{Stage: stage, Err: ErrClosedEarly}
}

// NewProtocolError wraps a malformed-frame error.
func NewProtocolError(stage string, err error) error {
	return &ProtocolError{Stage: stage, Err: err}
}

// UnavailableError 表示 daemon + remote 回退之后仍有条目无法获取。
type UnavailableError struct {
	Count int
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("unable to download %d files", e.Count)
}

// StorageError 包装本地文件系统写入/权限失败，原样向上传递。
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Storage 在 err 非空时返回 StorageError，方便调用方一行包装。
func Storage(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Path: path, Err: err}
}

// IsProtocol reports whether err carries a ProtocolError.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// UnavailableCount 返回 err 中携带的不可用条目数量；不是 UnavailableError 时返回 false。
func UnavailableCount(err error) (int, bool) {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return ue.Count, true
	}
	return 0, false
}
