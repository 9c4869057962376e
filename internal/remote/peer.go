package remote

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/sirupsen/logrus"
)

// Peer 代表远端 origin 的连接能力，由调用方提供具体传输。
type Peer interface {
	// CallStream 在远端开启 command 对应的流式子协议。
	CallStream(ctx context.Context, command string) (Stream, error)
}

// Stream 是一个已开启的双向子协议流。
type Stream interface {
	io.Writer
	// Flush 把已写入的请求真正发往远端。
	Flush() error
	// Reader 返回读取当前批次响应的 reader，须在 Flush 之后调用。
	Reader() *bufio.Reader
	// Close 释放连接。
	Close() error
}

// CommandPeer 通过 /bin/sh 运行一条命令（典型是 ssh 到 origin），其 stdin/stdout 即子协议流。
type CommandPeer struct {
	Command string
	Logger  *logrus.Logger
}

// NewCommandPeer returns a Peer that spawns command for every stream.
func NewCommandPeer(command string, logger *logrus.Logger) *CommandPeer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CommandPeer{Command: command, Logger: logger}
}

func (p *CommandPeer) CallStream(ctx context.Context, command string) (Stream, error) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", p.Command)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("remote stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("remote stdout: %w", err)
	}
	stderr := p.Logger.WithFields(logrus.Fields{
		"action": "remote_peer",
		"remote": p.Command,
	}).WriterLevel(logrus.WarnLevel)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		stderr.Close()
		return nil, fmt.Errorf("start remote %q: %w", p.Command, err)
	}

	s := &commandStream{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		w:      bufio.NewWriter(stdin),
		r:      bufio.NewReader(stdout),
		stderr: stderr,
	}
	if _, err := s.w.WriteString(command + "\n"); err != nil {
		s.Close()
		return nil, fmt.Errorf("send %s: %w", command, err)
	}
	return s, nil
}

type commandStream struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Closer
	w      *bufio.Writer
	r      *bufio.Reader
	stderr io.Closer
	closed bool
}

func (s *commandStream) Write(p []byte) (int, error) { return s.w.Write(p) }

func (s *commandStream) Flush() error { return s.w.Flush() }

func (s *commandStream) Reader() *bufio.Reader { return s.r }

// Close 关闭 stdin 让远端命令自然退出；同时关闭 stdout，避免中途出错时远端阻塞在写上。
func (s *commandStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.stderr.Close()

	_ = s.w.Flush()
	_ = s.stdin.Close()
	_ = s.stdout.Close()
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("remote exit: %w", err)
	}
	return nil
}
