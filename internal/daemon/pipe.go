package daemon

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/any-hub/blobfetch/internal/cachekey"
	"github.com/any-hub/blobfetch/internal/fetcherr"
)

const (
	cmdGet  = "get"
	cmdSet  = "set"
	cmdExit = "exit"

	terminator = "0"
	hitsPrefix = "_hits_"

	protocolStage = "cached file"
)

// pipeChannel 在一对字节流上实现 daemon 协议：in 写往 daemon，out 读自 daemon。
type pipeChannel struct {
	in       *bufio.Writer
	inCloser io.Closer
	out      *bufio.Reader
	closers  []io.Closer
	wait     func() error
	closed   bool
	// broken 记录第一次读写失败；之后管道里可能残留上一次回复，不能再复用。
	broken error
}

// NewPipe 基于已建立的双向字节流构造 Channel。wait 在 Close 时调用，用于回收子进程，可为 nil。
func NewPipe(in io.WriteCloser, out io.Reader, wait func() error) Channel {
	c := &pipeChannel{
		in:       bufio.NewWriter(in),
		inCloser: in,
		out:      bufio.NewReader(out),
		wait:     wait,
	}
	if rc, ok := out.(io.Closer); ok {
		c.closers = append(c.closers, rc)
	}
	return c
}

func (c *pipeChannel) Request(keys []cachekey.CacheKey, onHits func(hits int)) ([]cachekey.CacheKey, error) {
	if c.closed {
		return nil, fmt.Errorf("daemon channel closed")
	}
	if c.broken != nil {
		return nil, fmt.Errorf("daemon channel unusable: %w", c.broken)
	}
	misses, err := c.request(keys, onHits)
	if err != nil {
		c.broken = err
		return nil, err
	}
	return misses, nil
}

func (c *pipeChannel) request(keys []cachekey.CacheKey, onHits func(hits int)) ([]cachekey.CacheKey, error) {
	if err := c.send(cmdGet, keys); err != nil {
		return nil, fmt.Errorf("send get request: %w", err)
	}

	var (
		misses []cachekey.CacheKey
		hits   int
	)
	for {
		line, err := c.readLine()
		if err != nil {
			return nil, err
		}
		switch {
		case line == terminator:
			return misses, nil
		case strings.HasPrefix(line, hitsPrefix):
			n, err := parseHits(line)
			if err != nil {
				return nil, fetcherr.NewProtocolError(protocolStage, err)
			}
			hits += n
			if onHits != nil {
				onHits(hits)
			}
		default:
			misses = append(misses, cachekey.CacheKey(line))
		}
	}
}

func (c *pipeChannel) Populate(keys []cachekey.CacheKey) error {
	if len(keys) == 0 {
		return nil
	}
	if c.closed {
		return fmt.Errorf("daemon channel closed")
	}
	if c.broken != nil {
		return fmt.Errorf("daemon channel unusable: %w", c.broken)
	}
	if err := c.send(cmdSet, keys); err != nil {
		c.broken = err
		return fmt.Errorf("send set request: %w", err)
	}
	return nil
}

// Close 发送 exit，关闭两端管道并等待 daemon 退出。exit 的写入失败会被忽略，daemon 可能已自行退出。
func (c *pipeChannel) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	_, _ = c.in.WriteString(cmdExit + "\n")
	_ = c.in.Flush()
	_ = c.inCloser.Close()
	for _, closer := range c.closers {
		_ = closer.Close()
	}
	if c.wait != nil {
		return c.wait()
	}
	return nil
}

func (c *pipeChannel) send(cmd string, keys []cachekey.CacheKey) error {
	var b strings.Builder
	b.WriteString(cmd)
	b.WriteByte('\n')
	b.WriteString(strconv.Itoa(len(keys)))
	b.WriteByte('\n')
	for _, k := range keys {
		b.WriteString(string(k))
		b.WriteByte('\n')
	}
	if _, err := c.in.WriteString(b.String()); err != nil {
		return err
	}
	return c.in.Flush()
}

// readLine 读取一行并去掉换行；EOF、半行或空行都意味着 daemon 提前断开。
func (c *pipeChannel) readLine() (string, error) {
	line, err := c.out.ReadString('\n')
	if err != nil {
		return "", fetcherr.NewClosedEarly(protocolStage)
	}
	line = strings.TrimSuffix(line, "\n")
	if line == "" {
		return "", fetcherr.NewClosedEarly(protocolStage)
	}
	return line, nil
}

// parseHits 解析 _hits_<ignored>_<count>，取最后一个非空字段作为命中数。
func parseHits(line string) (int, error) {
	fields := strings.Split(strings.TrimPrefix(line, hitsPrefix), "_")
	for i := len(fields) - 1; i >= 0; i-- {
		if fields[i] == "" {
			continue
		}
		n, err := strconv.Atoi(fields[i])
		if err != nil {
			return 0, fmt.Errorf("malformed hits line %q: %w", line, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("malformed hits line %q", line)
}
